package orchestrator

// State is a step of a single run's lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateRunning
	StateExited
	StateFinalizedSuccess
	StateFinalizedError
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFinalizedSuccess:
		return "finalized_success"
	case StateFinalizedError:
		return "finalized_error"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinalizedSuccess || s == StateFinalizedError
}

// next lists the legal transitions out of each state.
var next = map[State][]State{
	StateNotStarted: {StateLaunching, StateFinalizedError},
	StateLaunching:  {StateRunning, StateFinalizedError},
	StateRunning:    {StateExited, StateFinalizedError},
	StateExited:     {StateFinalizedSuccess, StateFinalizedError},
}

// CanTransition reports whether moving from s to to is legal.
func (s State) CanTransition(to State) bool {
	for _, allowed := range next[s] {
		if allowed == to {
			return true
		}
	}
	return false
}
