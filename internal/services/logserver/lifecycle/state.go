// Package lifecycle owns the log server's process-wide lifecycle state: the
// running flag observed by every loop, the state machine, and the ordered
// release of shared resources on shutdown.
package lifecycle

import "fmt"

// State is a server lifecycle state.
type State int

const (
	Created State = iota
	Initializing
	Listening
	ShuttingDown
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Initializing:
		return "initializing"
	case Listening:
		return "listening"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// allowed lists the legal transitions. Initializing may fall straight to
// Stopped when startup fails.
var allowed = map[State][]State{
	Created:      {Initializing},
	Initializing: {Listening, Stopped},
	Listening:    {ShuttingDown},
	ShuttingDown: {Stopped},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
