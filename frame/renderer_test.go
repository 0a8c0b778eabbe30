package frame

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newRenderer(t *testing.T, h *harness) *Renderer {
	t.Helper()
	r, err := NewRenderer(h.options())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func mustFrame(t *testing.T, r *Renderer, want Outcome) {
	t.Helper()
	got, err := r.Frame()
	if err != nil {
		t.Fatalf("Frame: %+v", err)
	}
	if got != want {
		t.Fatalf("Frame outcome = %s, want %s", got, want)
	}
}

func wantViewport(t *testing.T, r *Renderer, extent Extent) {
	t.Helper()
	want := Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1}
	if r.viewport != want {
		t.Errorf("viewport = %+v, want %+v", r.viewport, want)
	}
}

func TestNewRendererBuildsTargets(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)

	if len(r.targets) != 3 {
		t.Fatalf("got %d targets, want 3", len(r.targets))
	}
	wantViewport(t, r, Extent{800, 600})
	if r.rebuild {
		t.Error("rebuild still scheduled after a successful build")
	}
	if h.queue.live() != 1 {
		t.Errorf("%d live tokens, want 1", h.queue.live())
	}
}

func TestResizeRebuildsTargets(t *testing.T) {
	tests := []struct {
		name    string
		extents []Extent
		counts  []int
	}{
		{"shrink", []Extent{{400, 300}}, []int{3}},
		{"grow with more images", []Extent{{1024, 768}, {1920, 1080}}, []int{2, 4}},
		{"repeat same size", []Extent{{800, 600}, {800, 600}, {640, 480}}, []int{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Extent{800, 600}, 3)
			r := newRenderer(t, h)

			for i, extent := range tt.extents {
				h.surface.extent = extent
				h.swapchain.imageCount = tt.counts[i]
				r.Resized()
				mustFrame(t, r, Drawn)

				if len(r.targets) != tt.counts[i] {
					t.Errorf("resize %d: %d targets, want %d", i, len(r.targets), tt.counts[i])
				}
				if h.pass.live() != tt.counts[i] {
					t.Errorf("resize %d: %d live targets, old generation not destroyed", i, h.pass.live())
				}
				wantViewport(t, r, extent)
			}
		})
	}
}

func TestFrameRecordsAndSubmits(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 2)
	r := newRenderer(t, h)

	mustFrame(t, r, Drawn)
	mustFrame(t, r, Drawn)

	if len(h.queue.submissions) != 2 {
		t.Fatalf("%d submissions, want 2", len(h.queue.submissions))
	}
	for i, s := range h.queue.submissions {
		if s.acquired.Index != i {
			t.Errorf("submission %d used image %d", i, s.acquired.Index)
		}
		if s.commands.target != r.targets[i] {
			t.Errorf("submission %d recorded against the wrong target", i)
		}
		if s.commands.viewport != r.viewport {
			t.Errorf("submission %d viewport = %+v", i, s.commands.viewport)
		}
	}

	token := r.inFlight.(*fakeToken)
	if !token.waited {
		t.Error("in-flight token was not waited at the end of the frame")
	}
}

func TestAcquireOutOfDateSchedulesRebuild(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)
	h.swapchain.acquires = []acquireResult{{err: errors.Wrap(ErrOutOfDate, "acquire")}}

	mustFrame(t, r, Stale)
	if !r.rebuild {
		t.Fatal("rebuild not scheduled")
	}
	if len(h.queue.submissions) != 0 {
		t.Fatalf("stale frame was submitted")
	}

	h.surface.extent = Extent{1024, 768}
	mustFrame(t, r, Drawn)
	if got := h.swapchain.recreated[len(h.swapchain.recreated)-1]; got != (Extent{1024, 768}) {
		t.Errorf("rebuilt at %s, want the current window size", got)
	}
	if len(h.queue.submissions) != 1 {
		t.Errorf("%d submissions after rebuild, want 1", len(h.queue.submissions))
	}
}

func TestAcquireSuboptimalDrawsThenRebuilds(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)
	h.swapchain.acquires = []acquireResult{{acquired: Acquired{Index: 1, Suboptimal: true}}}

	mustFrame(t, r, Drawn)
	if len(h.queue.submissions) != 1 {
		t.Fatal("suboptimal image was not drawn")
	}
	if !r.rebuild {
		t.Fatal("rebuild not scheduled after a suboptimal acquire")
	}

	before := len(h.swapchain.recreated)
	mustFrame(t, r, Drawn)
	if len(h.swapchain.recreated) != before+1 {
		t.Error("swapchain was not rebuilt on the next frame")
	}
}

func TestPresentStaleSchedulesRebuild(t *testing.T) {
	for _, sentinel := range []error{ErrOutOfDate, ErrSuboptimal} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			h := newHarness(t, Extent{800, 600}, 3)
			r := newRenderer(t, h)
			h.queue.results = []submitResult{{err: errors.Wrap(sentinel, "present")}}

			mustFrame(t, r, Drawn)
			if !r.rebuild {
				t.Fatal("rebuild not scheduled")
			}
			token := r.inFlight.(*fakeToken)
			if token.noop || !token.waited {
				t.Error("the submitted frame's token should be kept and waited")
			}

			mustFrame(t, r, Drawn)
			if r.rebuild {
				t.Error("rebuild still pending after the next frame")
			}
		})
	}
}

func TestSubmitFailureResetsToken(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	var logs bytes.Buffer
	opts := h.options()
	opts.Logger = log.New(&logs, "", 0)
	r, err := NewRenderer(opts)
	if err != nil {
		t.Fatal(err)
	}
	h.queue.results = []submitResult{{nilToken: true, err: errors.New("device busy")}}

	mustFrame(t, r, Drawn)
	if !strings.Contains(logs.String(), "device busy") {
		t.Errorf("submit failure not logged: %q", logs.String())
	}
	if token := r.inFlight.(*fakeToken); !token.noop {
		t.Error("in-flight token was not reset to a no-op token")
	}
	if !r.rebuild {
		t.Error("the unpresented image was not reclaimed by scheduling a rebuild")
	}
	if !h.queue.submissions[0].commands.freed {
		t.Error("commands of the failed submission were not freed")
	}

	mustFrame(t, r, Drawn)
	if len(h.queue.submissions) != 2 {
		t.Error("loop did not continue after a submit failure")
	}
	if len(h.swapchain.recreated) != 2 {
		t.Errorf("swapchain recreated %d times, want 2", len(h.swapchain.recreated))
	}
	if r.rebuild {
		t.Error("rebuild still pending after the next frame")
	}
}

func TestFailedSubmitsNeverExhaustImages(t *testing.T) {
	tests := []struct {
		name   string
		result submitResult
	}{
		{name: "nothing submitted", result: submitResult{nilToken: true, err: errors.New("create fence")}},
		{name: "present failed", result: submitResult{err: errors.New("surface lost")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Extent{800, 600}, 3)
			r := newRenderer(t, h)
			h.queue.results = []submitResult{tt.result, tt.result, tt.result}

			// Every failed frame keeps one image acquired until the swapchain
			// generation it belongs to is replaced.
			for i := 0; i < 3; i++ {
				generation := len(h.swapchain.recreated)
				mustFrame(t, r, Drawn)
				if !r.rebuild {
					t.Fatalf("frame %d: failure did not schedule a rebuild", i)
				}
				want := generation
				if i > 0 {
					want++
				}
				if len(h.swapchain.recreated) != want {
					t.Fatalf("frame %d: acquired from a generation with an unreturned image", i)
				}
			}
		})
	}
}

func TestWaitFailureResetsToken(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)
	h.queue.results = []submitResult{{waitErr: errors.New("fence lost")}}

	mustFrame(t, r, Drawn)
	if token := r.inFlight.(*fakeToken); !token.noop {
		t.Error("in-flight token was not reset after a failed wait")
	}
	if h.queue.tokens[len(h.queue.tokens)-2].released != true {
		t.Error("failed token was not released")
	}
}

func TestSingleTokenInFlight(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)
	h.queue.results = []submitResult{
		{},
		{err: ErrOutOfDate},
		{nilToken: true, err: errors.New("oom")},
		{waitErr: errors.New("lost")},
		{err: ErrSuboptimal},
		{},
	}
	h.swapchain.acquires = []acquireResult{
		{acquired: Acquired{Index: 0}},
		{acquired: Acquired{Index: 1}},
		{err: ErrOutOfDate},
		{acquired: Acquired{Index: 2, Suboptimal: true}},
	}

	for i := 0; i < 10; i++ {
		if _, err := r.Frame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if live := h.queue.live(); live != 1 {
			t.Fatalf("frame %d: %d live tokens, want 1", i, live)
		}
	}
}

func TestMinimizedWindowSkipsFrame(t *testing.T) {
	h := newHarness(t, Extent{0, 0}, 3)
	r := newRenderer(t, h)

	mustFrame(t, r, Skipped)
	if h.swapchain.acquired != 0 || len(h.queue.submissions) != 0 {
		t.Fatal("skipped frame reached acquisition or submission")
	}
	if !r.rebuild {
		t.Fatal("rebuild dropped while the window is minimized")
	}

	h.surface.extent = Extent{800, 600}
	mustFrame(t, r, Drawn)
	wantViewport(t, r, Extent{800, 600})
}

func TestResizeToZeroSkipsFrame(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)

	h.surface.extent = Extent{0, 600}
	r.Resized()
	mustFrame(t, r, Skipped)
	if len(r.targets) != 0 {
		t.Errorf("stale targets kept after a failed rebuild")
	}
}

func TestFatalErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(*harness)
	}{
		{"acquire", func(h *harness) { h.swapchain.acquires = []acquireResult{{err: boom}} }},
		{"record", func(h *harness) { h.recorder.err = boom }},
		{"recreate", func(h *harness) { h.swapchain.recreateErr = boom }},
		{"target", func(h *harness) { h.pass.failAt = len(h.pass.targets); h.pass.err = boom }},
		{"image index", func(h *harness) { h.swapchain.acquires = []acquireResult{{acquired: Acquired{Index: 7}}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Extent{800, 600}, 3)
			r := newRenderer(t, h)
			r.Resized()
			tt.setup(h)

			outcome, err := r.Frame()
			if err == nil {
				t.Fatal("expected a fatal error")
			}
			if outcome != Failed {
				t.Errorf("outcome = %s, want %s", outcome, Failed)
			}
			if len(h.queue.submissions) != 0 {
				t.Error("work was submitted despite a fatal error")
			}
		})
	}
}

func TestNewRendererFatalRecreate(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	h.swapchain.recreateErr = errors.New("no surface formats")

	if _, err := NewRenderer(h.options()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)

	events := &fakeEvents{
		batches: [][]Event{
			{},
			{EventOther, EventResized},
			{EventClose},
		},
		before: map[int]func(){
			1: func() {
				h.surface.extent = Extent{400, 300}
				h.swapchain.imageCount = 2
			},
		},
	}

	if err := r.Run(events); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if events.exhausted {
		t.Fatal("loop kept running after the close event")
	}

	if len(h.queue.submissions) != 2 {
		t.Fatalf("%d submissions, want 2", len(h.queue.submissions))
	}
	first := h.queue.submissions[0].commands
	if first.target.Extent() != (Extent{800, 600}) {
		t.Errorf("first frame drawn at %s", first.target.Extent())
	}
	second := h.queue.submissions[1].commands
	if second.viewport.Width != 400 || second.viewport.Height != 300 {
		t.Errorf("second frame viewport = %+v", second.viewport)
	}
	if len(r.targets) != 2 {
		t.Errorf("%d targets after resize, want 2", len(r.targets))
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if len(h.queue.submissions) != 2 {
		t.Error("work submitted after close")
	}
	if h.queue.idle != 1 {
		t.Errorf("WaitIdle called %d times, want 1", h.queue.idle)
	}
	if h.pass.live() != 0 {
		t.Errorf("%d targets survived Close", h.pass.live())
	}
}

func TestRunWaitsWhileMinimized(t *testing.T) {
	h := newHarness(t, Extent{0, 0}, 3)
	r := newRenderer(t, h)

	events := &fakeEvents{
		batches: [][]Event{{}, {}, {EventClose}},
		waits:   []Event{EventResized},
	}
	events.before = map[int]func(){
		1: func() { h.surface.extent = Extent{640, 480} },
	}

	if err := r.Run(events); err != nil {
		t.Fatal(err)
	}
	if events.exhausted {
		t.Fatal("loop did not stop at the close event")
	}
	if events.waited != 1 {
		t.Errorf("Wait called %d times, want 1", events.waited)
	}
	if len(h.queue.submissions) != 1 {
		t.Errorf("%d submissions, want 1 once the window was restored", len(h.queue.submissions))
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	h := newHarness(t, Extent{800, 600}, 3)
	r := newRenderer(t, h)
	h.recorder.err = errors.New("out of host memory")

	err := r.Run(&fakeEvents{batches: [][]Event{{}}})
	if err == nil || !strings.Contains(err.Error(), "out of host memory") {
		t.Fatalf("Run error = %v", err)
	}
}

func TestOutcomeString(t *testing.T) {
	for outcome, want := range map[Outcome]string{Drawn: "drawn", Skipped: "skipped", Stale: "stale", Failed: "failed", Outcome(9): "unknown"} {
		if got := outcome.String(); got != want {
			t.Errorf("%d: got %q, want %q", outcome, got, want)
		}
	}
}
