// Package stats aggregates frame timings into periodic reports.
package stats

import (
	"fmt"
	"time"

	"github.com/loov/hrtime"
)

type Report struct {
	Frames  int
	Elapsed time.Duration
	Average time.Duration
	Worst   time.Duration
}

func (r Report) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

func (r Report) String() string {
	return fmt.Sprintf("%d frames in %s (%.1f fps), avg %s, worst %s",
		r.Frames, r.Elapsed.Round(time.Millisecond), r.FPS(), r.Average, r.Worst)
}

// Meter collects frame durations and emits a Report once per interval.
// A nil Meter ignores every observation.
type Meter struct {
	interval time.Duration
	now      func() time.Duration

	start  time.Duration
	frames int
	total  time.Duration
	worst  time.Duration
}

func NewMeter(interval time.Duration) *Meter {
	return newMeter(interval, hrtime.Now)
}

func newMeter(interval time.Duration, now func() time.Duration) *Meter {
	if interval <= 0 {
		return nil
	}
	return &Meter{
		interval: interval,
		now:      now,
		start:    now(),
	}
}

// Observe records one frame. ok is true when the interval elapsed and the
// returned report covers every frame since the previous one.
func (m *Meter) Observe(frame time.Duration) (report Report, ok bool) {
	if m == nil {
		return Report{}, false
	}

	m.frames++
	m.total += frame
	if frame > m.worst {
		m.worst = frame
	}

	now := m.now()
	elapsed := now - m.start
	if elapsed < m.interval {
		return Report{}, false
	}

	report = Report{
		Frames:  m.frames,
		Elapsed: elapsed,
		Average: m.total / time.Duration(m.frames),
		Worst:   m.worst,
	}

	m.start = now
	m.frames = 0
	m.total = 0
	m.worst = 0
	return report, true
}
