package scenario

// State is the runner's position in its lifecycle
type State int

const (
	StateIdle State = iota
	StateSetup
	StateRunning
	StateTransition
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateTransition:
		return "transition"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the runner can no longer make progress
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}
