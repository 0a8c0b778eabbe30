package frame

import "github.com/go-gl/mathgl/mgl32"

type Vertex struct {
	Position mgl32.Vec2
	UV       mgl32.Vec2
}

// Quad is the rectangle drawn every frame, ordered as a triangle strip.
var Quad = [4]Vertex{
	{Position: mgl32.Vec2{-0.5, -0.5}, UV: mgl32.Vec2{0, 0}},
	{Position: mgl32.Vec2{-0.5, 0.5}, UV: mgl32.Vec2{0, 1}},
	{Position: mgl32.Vec2{0.5, -0.5}, UV: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec2{0.5, 0.5}, UV: mgl32.Vec2{1, 1}},
}
