// Package frame drives the acquire/record/submit/present loop independently of
// the graphics API behind it.
package frame

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfDate reports that the swapchain no longer matches the surface and
	// must be rebuilt before it can be used again.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrSuboptimal reports that presentation succeeded but the swapchain should
	// be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	// ErrUnsupportedDimensions reports that no swapchain can be built at the
	// requested size, e.g. while the window is minimized.
	ErrUnsupportedDimensions = errors.New("unsupported swapchain dimensions")
)

type Extent struct {
	Width  int
	Height int
}

func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Viewport is the drawable rectangle in pixels with its depth range.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Image is one presentable image of the current swapchain generation.
type Image interface {
	Extent() Extent
}

// RenderTarget can be bound as the sole color attachment of one render pass
// instance. It belongs to exactly one swapchain generation.
type RenderTarget interface {
	Extent() Extent
	Destroy()
}

type RenderPass interface {
	NewTarget(image Image) (RenderTarget, error)
}

type Acquired struct {
	Index int
	// Suboptimal images can still be drawn, but the swapchain should be rebuilt.
	Suboptimal bool
}

type Swapchain interface {
	// Recreate discards the current images and builds a new set sized to extent.
	Recreate(extent Extent) ([]Image, error)
	// Acquire blocks until an image is available.
	Acquire() (Acquired, error)
}

// Commands is one recorded command sequence.
type Commands interface {
	Free()
}

type Recorder interface {
	Record(target RenderTarget, viewport Viewport) (Commands, error)
}

// Token is the completion signal of submitted work.
type Token interface {
	Wait() error
	// Release frees resources held for the work. Only call it after Wait.
	Release()
}

type Queue interface {
	// Submit executes commands once both after has completed and the acquired
	// image is ready, then presents the image. It owns commands from the call
	// on. A nil token means nothing reached the device. A non-nil token may be
	// returned alongside ErrOutOfDate or ErrSuboptimal from presentation.
	Submit(after Token, acquired Acquired, commands Commands) (Token, error)
	// Now returns a token that is already complete.
	Now() Token
	WaitIdle() error
}

// Surface reports the current drawable size of the window.
type Surface interface {
	Extent() Extent
}

type Event int

const (
	EventOther Event = iota
	EventClose
	EventResized
)

type EventSource interface {
	Poll() (Event, bool)
	// Wait blocks until the next event arrives.
	Wait() Event
}
