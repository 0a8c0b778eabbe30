package frame

import (
	"testing"
)

type fakeImage struct {
	extent Extent
}

func (i fakeImage) Extent() Extent { return i.extent }

type fakeTarget struct {
	image     fakeImage
	destroyed bool
}

func (t *fakeTarget) Extent() Extent { return t.image.extent }
func (t *fakeTarget) Destroy()       { t.destroyed = true }

type fakePass struct {
	failAt  int
	err     error
	targets []*fakeTarget
}

func newFakePass() *fakePass {
	return &fakePass{failAt: -1}
}

func (p *fakePass) NewTarget(image Image) (RenderTarget, error) {
	if p.failAt >= 0 && len(p.targets) == p.failAt {
		return nil, p.err
	}
	target := &fakeTarget{image: image.(fakeImage)}
	p.targets = append(p.targets, target)
	return target, nil
}

func (p *fakePass) live() int {
	n := 0
	for _, target := range p.targets {
		if !target.destroyed {
			n++
		}
	}
	return n
}

type fakeSurface struct {
	extent Extent
}

func (s *fakeSurface) Extent() Extent { return s.extent }

type acquireResult struct {
	acquired Acquired
	err      error
}

type fakeSwapchain struct {
	imageCount  int
	recreateErr error
	acquires    []acquireResult

	images    []Image
	recreated []Extent
	acquired  int
	next      int
}

func (s *fakeSwapchain) Recreate(extent Extent) ([]Image, error) {
	s.recreated = append(s.recreated, extent)
	if s.recreateErr != nil {
		return nil, s.recreateErr
	}
	if extent.Empty() {
		return nil, ErrUnsupportedDimensions
	}

	s.images = s.images[:0]
	for i := 0; i < s.imageCount; i++ {
		s.images = append(s.images, fakeImage{extent: extent})
	}
	return s.images, nil
}

func (s *fakeSwapchain) Acquire() (Acquired, error) {
	s.acquired++
	if len(s.acquires) > 0 {
		result := s.acquires[0]
		s.acquires = s.acquires[1:]
		return result.acquired, result.err
	}

	index := s.next % len(s.images)
	s.next++
	return Acquired{Index: index}, nil
}

type fakeCommands struct {
	target   RenderTarget
	viewport Viewport
	freed    bool
}

func (c *fakeCommands) Free() { c.freed = true }

type fakeRecorder struct {
	err      error
	recorded []*fakeCommands
}

func (r *fakeRecorder) Record(target RenderTarget, viewport Viewport) (Commands, error) {
	if r.err != nil {
		return nil, r.err
	}
	commands := &fakeCommands{target: target, viewport: viewport}
	r.recorded = append(r.recorded, commands)
	return commands, nil
}

type fakeToken struct {
	noop     bool
	waitErr  error
	waited   bool
	released bool
}

func (t *fakeToken) Wait() error {
	t.waited = true
	return t.waitErr
}

func (t *fakeToken) Release() { t.released = true }

type submitResult struct {
	nilToken bool
	err      error
	waitErr  error
}

type submission struct {
	acquired Acquired
	commands *fakeCommands
}

type fakeQueue struct {
	t       *testing.T
	results []submitResult

	tokens      []*fakeToken
	submissions []submission
	idle        int
}

func (q *fakeQueue) Submit(after Token, acquired Acquired, commands Commands) (Token, error) {
	previous := after.(*fakeToken)
	if !previous.noop && !previous.waited {
		q.t.Errorf("submission %d issued before the previous token was waited on", len(q.submissions))
	}
	if previous.released {
		q.t.Errorf("submission %d issued after a released token", len(q.submissions))
	}

	q.submissions = append(q.submissions, submission{acquired: acquired, commands: commands.(*fakeCommands)})

	var result submitResult
	if len(q.results) > 0 {
		result = q.results[0]
		q.results = q.results[1:]
	}

	if result.nilToken {
		commands.Free()
		return nil, result.err
	}

	token := &fakeToken{waitErr: result.waitErr}
	q.tokens = append(q.tokens, token)
	return token, result.err
}

func (q *fakeQueue) Now() Token {
	token := &fakeToken{noop: true}
	q.tokens = append(q.tokens, token)
	return token
}

func (q *fakeQueue) WaitIdle() error {
	q.idle++
	return nil
}

func (q *fakeQueue) live() int {
	n := 0
	for _, token := range q.tokens {
		if !token.released {
			n++
		}
	}
	return n
}

// fakeEvents hands out one batch of events per Poll drain. before[i] runs when
// batch i starts being delivered.
type fakeEvents struct {
	batches [][]Event
	before  map[int]func()
	waits   []Event

	batch     int
	pos       int
	started   bool
	waited    int
	exhausted bool
}

func (e *fakeEvents) Poll() (Event, bool) {
	if e.batch >= len(e.batches) {
		e.exhausted = true
		return EventClose, true
	}

	if !e.started {
		e.started = true
		if hook := e.before[e.batch]; hook != nil {
			hook()
		}
	}

	if e.pos < len(e.batches[e.batch]) {
		event := e.batches[e.batch][e.pos]
		e.pos++
		return event, true
	}

	e.batch++
	e.pos = 0
	e.started = false
	return EventOther, false
}

func (e *fakeEvents) Wait() Event {
	e.waited++
	if len(e.waits) == 0 {
		e.exhausted = true
		return EventClose
	}
	event := e.waits[0]
	e.waits = e.waits[1:]
	return event
}

type harness struct {
	surface   *fakeSurface
	swapchain *fakeSwapchain
	pass      *fakePass
	recorder  *fakeRecorder
	queue     *fakeQueue
}

func newHarness(t *testing.T, extent Extent, imageCount int) *harness {
	return &harness{
		surface:   &fakeSurface{extent: extent},
		swapchain: &fakeSwapchain{imageCount: imageCount},
		pass:      newFakePass(),
		recorder:  &fakeRecorder{},
		queue:     &fakeQueue{t: t},
	}
}

func (h *harness) options() Options {
	return Options{
		Surface:   h.surface,
		Swapchain: h.swapchain,
		Pass:      h.pass,
		Recorder:  h.recorder,
		Queue:     h.queue,
		Logger:    discardLogger(),
	}
}
