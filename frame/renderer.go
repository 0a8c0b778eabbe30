package frame

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/quad/stats"
)

// Outcome describes what one call to Renderer.Frame did.
type Outcome int

const (
	// Drawn means a frame was submitted, or its submission failed recoverably.
	Drawn Outcome = iota
	// Skipped means no swapchain could be built at the current window size.
	Skipped
	// Stale means acquisition found the swapchain out of date; it is rebuilt on
	// the next call.
	Stale
	// Failed accompanies every error returned by Frame.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Drawn:
		return "drawn"
	case Skipped:
		return "skipped"
	case Stale:
		return "stale"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Options struct {
	Surface   Surface
	Swapchain Swapchain
	Pass      RenderPass
	Recorder  Recorder
	Queue     Queue

	Logger *log.Logger
	Meter  *stats.Meter
}

// Renderer owns all state carried between frames. It must be driven from a
// single goroutine.
type Renderer struct {
	surface   Surface
	swapchain Swapchain
	pass      RenderPass
	recorder  Recorder
	queue     Queue
	logger    *log.Logger
	meter     *stats.Meter

	targets  []RenderTarget
	viewport Viewport
	rebuild  bool
	inFlight Token
}

// NewRenderer builds the first set of render targets. A window that starts with
// an unusable size is not an error; the targets are built on a later frame.
func NewRenderer(opts Options) (*Renderer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := &Renderer{
		surface:   opts.Surface,
		swapchain: opts.Swapchain,
		pass:      opts.Pass,
		recorder:  opts.Recorder,
		queue:     opts.Queue,
		logger:    logger,
		meter:     opts.Meter,
		rebuild:   true,
	}
	r.inFlight = r.queue.Now()

	err := r.rebuildSwapchain()
	if err != nil && !errors.Is(err, ErrUnsupportedDimensions) {
		return nil, err
	}

	return r, nil
}

// Resized schedules a swapchain rebuild before the next frame.
func (r *Renderer) Resized() {
	r.rebuild = true
}

// Frame runs one iteration of the loop. Only unrecoverable failures are
// returned as errors, always with the Failed outcome.
func (r *Renderer) Frame() (Outcome, error) {
	if r.rebuild {
		err := r.rebuildSwapchain()
		if errors.Is(err, ErrUnsupportedDimensions) {
			return Skipped, nil
		} else if err != nil {
			return Failed, err
		}
	}

	acquired, err := r.swapchain.Acquire()
	if errors.Is(err, ErrOutOfDate) {
		r.rebuild = true
		return Stale, nil
	} else if err != nil {
		return Failed, errors.Wrap(err, "acquire next image")
	}

	if acquired.Suboptimal {
		r.rebuild = true
	}

	if acquired.Index < 0 || acquired.Index >= len(r.targets) {
		return Failed, errors.Errorf("acquired image %d but only %d render targets exist", acquired.Index, len(r.targets))
	}

	commands, err := r.recorder.Record(r.targets[acquired.Index], r.viewport)
	if err != nil {
		return Failed, errors.Wrapf(err, "record frame for image %d", acquired.Index)
	}

	// Any failure may leave the acquired image unpresented; only a new
	// swapchain gets it back.
	token, err := r.queue.Submit(r.inFlight, acquired, commands)
	if err != nil {
		r.rebuild = true
		if !errors.Is(err, ErrOutOfDate) && !errors.Is(err, ErrSuboptimal) {
			r.logger.Printf("submit frame: %v", err)
		}
	}

	if token == nil {
		token = r.queue.Now()
	}

	err = token.Wait()
	if err != nil {
		r.logger.Printf("wait for frame: %v", err)
		token.Release()
		token = r.queue.Now()
	}

	r.inFlight.Release()
	r.inFlight = token

	return Drawn, nil
}

// Run handles window events and draws until the window is closed.
func (r *Renderer) Run(events EventSource) error {
	for {
		for event, ok := events.Poll(); ok; event, ok = events.Poll() {
			if r.handle(event) {
				return nil
			}
		}

		start := hrtime.Now()
		outcome, err := r.Frame()
		if err != nil {
			return err
		}

		switch outcome {
		case Drawn:
			if report, ok := r.meter.Observe(hrtime.Since(start)); ok {
				r.logger.Printf("frames: %s", report)
			}
		case Skipped:
			// Nothing can be drawn until the window changes size again
			if r.handle(events.Wait()) {
				return nil
			}
		}
	}
}

func (r *Renderer) handle(event Event) (quit bool) {
	switch event {
	case EventClose:
		return true
	case EventResized:
		r.Resized()
	}
	return false
}

// Close waits for outstanding work and destroys the render targets. The
// swapchain, pass, recorder and queue stay owned by the caller.
func (r *Renderer) Close() error {
	waitErr := r.inFlight.Wait()
	r.inFlight.Release()
	r.inFlight = r.queue.Now()

	idleErr := r.queue.WaitIdle()

	destroyTargets(r.targets)
	r.targets = nil

	return errors.CombineErrors(waitErr, idleErr)
}

func (r *Renderer) rebuildSwapchain() error {
	destroyTargets(r.targets)
	r.targets = nil

	extent := r.surface.Extent()
	images, err := r.swapchain.Recreate(extent)
	if err != nil {
		return errors.Wrapf(err, "recreate swapchain at %s", extent)
	}

	targets, viewport, err := BuildTargets(images, r.pass)
	if err != nil {
		return errors.Wrap(err, "build render targets")
	}

	r.targets = targets
	r.viewport = viewport
	r.rebuild = false
	return nil
}
