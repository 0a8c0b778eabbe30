// Package config holds the fixed settings of the quad demo.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

type Config struct {
	Title  string
	Width  int
	Height int

	ApplicationName string
	EngineName      string

	// ClearColor is the RGBA background written before the quad is drawn.
	ClearColor mgl32.Vec4

	// Validation enables the layers below when the loader has them installed.
	Validation       bool
	ValidationLayers []string

	// StatsInterval is how often frame statistics are logged. Zero disables them.
	StatsInterval time.Duration
}

func Default() Config {
	return Config{
		Title:  "Vulkan",
		Width:  800,
		Height: 600,

		ApplicationName: "Textured Quad",
		EngineName:      "No Engine",

		ClearColor: mgl32.Vec4{1, 1, 1, 1},

		Validation:       true,
		ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},

		StatsInterval: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("window size %dx%d must be positive", c.Width, c.Height)
	}

	for i, v := range c.ClearColor {
		if v < 0 || v > 1 {
			return errors.Errorf("clear color component %d = %v is outside [0,1]", i, v)
		}
	}
	if c.ClearColor[3] != 1 {
		return errors.Errorf("clear color must be opaque, alpha is %v", c.ClearColor[3])
	}

	if c.StatsInterval < 0 {
		return errors.Errorf("stats interval %s is negative", c.StatsInterval)
	}

	return nil
}
