package pipeline

import "fmt"

// State is an orchestrator lifecycle state.
type State int

const (
	Idle State = iota
	Discovering
	Transforming
	Extracting
	Naming
	Emitting
	Done
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Discovering:  "discovering",
	Transforming: "transforming",
	Extracting:   "extracting",
	Naming:       "naming",
	Emitting:     "emitting",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether a build has finished in s.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed
}

// active reports whether s is a working state Failed may be entered from.
func (s State) active() bool {
	return s >= Discovering && s <= Emitting
}

func isAllowedTransition(from, to State) bool {
	switch {
	case to == Failed:
		return from.active()
	case from.IsTerminal():
		return to == Idle
	case from == Emitting:
		return to == Done
	default:
		return to == from+1
	}
}

// transition moves *cur to next, rejecting transitions the lifecycle does not allow.
func transition(cur *State, next State) error {
	if !isAllowedTransition(*cur, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *cur, next)
	}
	*cur = next
	return nil
}
