package simpletq

import (
	"strings"

	"github.com/UniQw/simpletq/internal/layout"
)

// State is a task state. The value is the name of the directory below the
// queue root that holds records in that state.
type State string

const (
	// StateQueued contains pending task scripts.
	StateQueued State = layout.QueueDir
	// StateRunning contains record directories of tasks being executed.
	StateRunning State = layout.RunningDir
	// StateFailed contains records whose script exited non-zero.
	StateFailed State = layout.FailedDir
	// StateFinished contains records whose script exited with status zero.
	StateFinished State = layout.FinishedDir
)

// AllStates lists every task state in lifecycle order.
var AllStates = []State{StateQueued, StateRunning, StateFinished, StateFailed}

// String returns the raw string value of the state.
func (s State) String() string { return string(s) }

// Terminal reports whether no further transition leaves this state.
func (s State) Terminal() bool { return s == StateFailed || s == StateFinished }

// ParseState converts a string into a State. Directory names and their lower-case
// forms are accepted ("QUEUE", "queue", "queued", ...).
func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QUEUE", "QUEUED", "PENDING":
		return StateQueued, nil
	case "RUNNING":
		return StateRunning, nil
	case "FAILED":
		return StateFailed, nil
	case "FINISHED":
		return StateFinished, nil
	default:
		return "", ErrUnknownState
	}
}

func (s State) dir(l layout.Layout) (string, error) {
	switch s {
	case StateQueued:
		return l.Queue, nil
	case StateRunning:
		return l.Running, nil
	case StateFailed:
		return l.Failed, nil
	case StateFinished:
		return l.Finished, nil
	default:
		return "", ErrUnknownState
	}
}
