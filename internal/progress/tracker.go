package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiowebux/chirpload/internal/scenario"
)

// PhaseView is the progress of one phase
type PhaseView struct {
	Index     int
	Name      string
	Tag       string
	Completed int
	Total     int
	Elapsed   time.Duration
	Done      bool
}

// Percent returns completion in [0, 100]
func (p PhaseView) Percent() float64 {
	if p.Total <= 0 {
		if p.Done {
			return 100
		}
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// View is a point-in-time copy of a run's progress
type View struct {
	State      scenario.State
	StateLabel string
	Elapsed    time.Duration
	Current    *PhaseView
	Finished   []PhaseView
	PhaseCount int
	InFlight   int
}

// Tracker is a scenario.Listener that keeps the latest progress for
// pollers (the terminal UI, the websocket stream). TaskDone only touches
// an atomic counter.
type Tracker struct {
	mu         sync.RWMutex
	state      scenario.State
	stateLabel string
	started    time.Time
	current    *scenario.PhaseInfo
	phaseStart time.Time
	finished   []PhaseView
	phaseCount int

	completed atomic.Int64
	inFlight  func() int

	now func() time.Time
}

// NewTracker creates a tracker. inFlight, when non-nil, reports the
// requests currently holding a permit.
func NewTracker(phaseCount int, inFlight func() int) *Tracker {
	return &Tracker{
		phaseCount: phaseCount,
		inFlight:   inFlight,
		now:        time.Now,
	}
}

func (t *Tracker) StateChanged(state scenario.State, phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started.IsZero() && state != scenario.StateIdle {
		t.started = t.now()
	}
	t.state = state
	t.stateLabel = phase
}

func (t *Tracker) PhaseStarted(p scenario.PhaseInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := p
	t.current = &info
	t.phaseStart = t.now()
	t.completed.Store(0)
}

func (t *Tracker) TaskDone(p scenario.PhaseInfo, completed int) {
	for {
		cur := t.completed.Load()
		if int64(completed) <= cur || t.completed.CompareAndSwap(cur, int64(completed)) {
			return
		}
	}
}

func (t *Tracker) PhaseFinished(p scenario.PhaseInfo, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finished = append(t.finished, PhaseView{
		Index:     p.Index,
		Name:      p.Name,
		Tag:       string(p.Tag),
		Completed: int(t.completed.Load()),
		Total:     p.Total,
		Elapsed:   elapsed,
		Done:      true,
	})
	t.current = nil
}

// Snapshot returns the current progress
func (t *Tracker) Snapshot() View {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v := View{
		State:      t.state,
		StateLabel: t.stateLabel,
		Finished:   append([]PhaseView(nil), t.finished...),
		PhaseCount: t.phaseCount,
	}
	if t.inFlight != nil {
		v.InFlight = t.inFlight()
	}
	if !t.started.IsZero() {
		v.Elapsed = t.now().Sub(t.started)
	}
	if t.current != nil {
		v.Current = &PhaseView{
			Index:     t.current.Index,
			Name:      t.current.Name,
			Tag:       string(t.current.Tag),
			Completed: int(t.completed.Load()),
			Total:     t.current.Total,
			Elapsed:   t.now().Sub(t.phaseStart),
		}
	}
	return v
}
