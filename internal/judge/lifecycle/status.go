// Package lifecycle holds the submission state machine and turns judge reports
// into terminal submission states.
package lifecycle

import (
	"errors"
	"fmt"
)

// Status is the submission-level state.
type Status string

const (
	Pending             Status = "Pending"
	Running             Status = "Running"
	Passed              Status = "Passed"
	WrongAnswer         Status = "WrongAnswer"
	TimeLimitExceeded   Status = "TimeLimitExceeded"
	MemoryLimitExceeded Status = "MemoryLimitExceeded"
	RuntimeError        Status = "RuntimeError"
	InternalError       Status = "InternalError"
	CompilationError    Status = "CompilationError"
)

var terminal = map[Status]bool{
	Passed:              true,
	WrongAnswer:         true,
	TimeLimitExceeded:   true,
	MemoryLimitExceeded: true,
	RuntimeError:        true,
	InternalError:       true,
	CompilationError:    true,
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool { return terminal[s] }

// Valid reports whether s is a known state.
func (s Status) Valid() bool { return s == Pending || s == Running || terminal[s] }

// TerminalStatuses lists every terminal state.
func TerminalStatuses() []Status {
	return []Status{Passed, WrongAnswer, TimeLimitExceeded, MemoryLimitExceeded, RuntimeError, InternalError, CompilationError}
}

var (
	ErrTerminal          = errors.New("submission is in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CheckTransition validates from -> to. A terminal state reached straight from
// Pending is accepted: the judge may report a result before its running event is
// applied, and the Running step is then implied.
func CheckTransition(from, to Status) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	switch {
	case from == Pending && to == Running:
		return nil
	case (from == Pending || from == Running) && to.IsTerminal():
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}
