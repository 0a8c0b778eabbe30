// Package window opens the SDL window the quad is presented to and turns its
// events into frame events.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/quad/config"
	"github.com/vkngwrapper/quad/frame"
)

// Window must be used from the thread that called Open.
type Window struct {
	*sdl.Window
}

func Open(cfg config.Config) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{Window: window}, nil
}

// Extent is the drawable size in pixels, or zero while the window is
// minimized.
func (w *Window) Extent() frame.Extent {
	if w.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return frame.Extent{}
	}

	width, height := w.VulkanGetDrawableSize()
	return frame.Extent{Width: int(width), Height: int(height)}
}

func (w *Window) Poll() (frame.Event, bool) {
	event := sdl.PollEvent()
	if event == nil {
		return frame.EventOther, false
	}
	return Translate(event), true
}

func (w *Window) Wait() frame.Event {
	return Translate(sdl.WaitEvent())
}

func (w *Window) Close() {
	if w.Window != nil {
		w.Window.Destroy()
		w.Window = nil
	}
	sdl.Quit()
}

// Translate maps an SDL event onto the events the renderer reacts to.
func Translate(event sdl.Event) frame.Event {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return frame.EventClose
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return frame.EventClose
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED,
			sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
			return frame.EventResized
		}
	}
	return frame.EventOther
}
