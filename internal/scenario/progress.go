package scenario

import (
	"time"

	"github.com/studiowebux/chirpload/internal/metrics"
)

// PhaseInfo identifies a phase in progress callbacks
type PhaseInfo struct {
	Index int // zero-based position in the plan
	Name  string
	Tag   metrics.Phase
	Total int // materialized task count
}

// Listener receives live progress from the runner. Callbacks for task
// completion arrive from many goroutines at once and must not block.
type Listener interface {
	StateChanged(state State, phase string)
	PhaseStarted(p PhaseInfo)
	TaskDone(p PhaseInfo, completed int)
	PhaseFinished(p PhaseInfo, elapsed time.Duration)
}

// Listeners fans callbacks out to several listeners
type Listeners []Listener

func (ls Listeners) StateChanged(state State, phase string) {
	for _, l := range ls {
		l.StateChanged(state, phase)
	}
}

func (ls Listeners) PhaseStarted(p PhaseInfo) {
	for _, l := range ls {
		l.PhaseStarted(p)
	}
}

func (ls Listeners) TaskDone(p PhaseInfo, completed int) {
	for _, l := range ls {
		l.TaskDone(p, completed)
	}
}

func (ls Listeners) PhaseFinished(p PhaseInfo, elapsed time.Duration) {
	for _, l := range ls {
		l.PhaseFinished(p, elapsed)
	}
}
