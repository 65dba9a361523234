// Package result defines per-test-case outcomes and the compact compare-result codec.
package result

import "fmt"

// StatusCode is the outcome of a single test case.
type StatusCode int

const (
	Passed              StatusCode = 0
	TimeLimitExceeded   StatusCode = 1
	MemoryLimitExceeded StatusCode = 2
	RuntimeError        StatusCode = 3
	InternalError       StatusCode = 4
	WrongAnswer         StatusCode = 5
	CompilationError    StatusCode = 6
	Skipped             StatusCode = 7

	// Unknown is produced when decoding a character outside the table.
	Unknown StatusCode = -1
)

// Severity is the display class of an outcome.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeverityMuted   Severity = "muted"
	SeverityUnknown Severity = "unknown"
)

// Rank orders outcomes for submission-level labelling. Higher wins.
type Rank int

const (
	RankPassed Rank = iota
	RankWrong
	RankLimit
	RankFatal
)

type statusInfo struct {
	char     byte
	label    string
	short    string
	severity Severity
	rank     Rank
}

// statusTable is indexed by StatusCode. Adding a code means adding a row here;
// TestStatusTableComplete fails otherwise.
var statusTable = [...]statusInfo{
	Passed:              {'0', "Passed", "AC", SeveritySuccess, RankPassed},
	TimeLimitExceeded:   {'1', "Time Limit Exceeded", "TLE", SeverityWarning, RankLimit},
	MemoryLimitExceeded: {'2', "Memory Limit Exceeded", "MLE", SeverityWarning, RankLimit},
	RuntimeError:        {'3', "Runtime Error", "RE", SeverityDanger, RankFatal},
	InternalError:       {'4', "Internal Error", "IE", SeverityDanger, RankFatal},
	WrongAnswer:         {'5', "Wrong Answer", "WA", SeverityDanger, RankWrong},
	CompilationError:    {'6', "Compilation Error", "CE", SeverityDanger, RankFatal},
	Skipped:             {'7', "Skipped", "SK", SeverityMuted, RankWrong},
}

var unknownInfo = statusInfo{'?', "Unknown", "??", SeverityUnknown, RankFatal}

// charToStatus is derived from statusTable so the two directions cannot drift.
var charToStatus = func() map[byte]StatusCode {
	m := make(map[byte]StatusCode, len(statusTable))
	for code, info := range statusTable {
		m[info.char] = StatusCode(code)
	}
	return m
}()

func (s StatusCode) info() statusInfo {
	if s.Known() {
		return statusTable[s]
	}
	return unknownInfo
}

// Known reports whether s is one of the enumerated codes.
func (s StatusCode) Known() bool {
	return s >= 0 && int(s) < len(statusTable)
}

// Char returns the encoding character, or '?' for codes outside the table.
func (s StatusCode) Char() byte { return s.info().char }

// Label returns the human readable name.
func (s StatusCode) Label() string { return s.info().label }

// Short returns the abbreviated name (AC, WA, ...).
func (s StatusCode) Short() string { return s.info().short }

// Severity returns the display class.
func (s StatusCode) Severity() Severity { return s.info().severity }

// Rank returns the precedence tier used when labelling a whole submission.
func (s StatusCode) Rank() Rank { return s.info().rank }

func (s StatusCode) String() string {
	if s.Known() {
		return s.info().label
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// All returns every known code in table order.
func All() []StatusCode {
	out := make([]StatusCode, len(statusTable))
	for i := range statusTable {
		out[i] = StatusCode(i)
	}
	return out
}
