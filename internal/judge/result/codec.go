package result

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyOutcomes = errors.New("compare result needs at least one outcome")
	ErrUnknownStatus = errors.New("status code has no encoding")
)

// Encode concatenates the character of each outcome in order.
func Encode(outcomes []StatusCode) (string, error) {
	if len(outcomes) == 0 {
		return "", ErrEmptyOutcomes
	}
	var b strings.Builder
	b.Grow(len(outcomes))
	for i, code := range outcomes {
		if !code.Known() {
			return "", fmt.Errorf("%w: position %d", ErrUnknownStatus, i+1)
		}
		b.WriteByte(code.Char())
	}
	return b.String(), nil
}

// Decode maps every byte of s back to a StatusCode. Bytes outside the table
// decode to Unknown; Decode never fails.
func Decode(s string) []StatusCode {
	out := make([]StatusCode, len(s))
	for i := 0; i < len(s); i++ {
		if code, ok := charToStatus[s[i]]; ok {
			out[i] = code
			continue
		}
		out[i] = Unknown
	}
	return out
}

// TestCaseOutcome is one decoded position of a compare result. The payload fields
// are only set when the judge reports rich detail.
type TestCaseOutcome struct {
	Index    int        `json:"index"`
	Status   StatusCode `json:"status"`
	Label    string     `json:"label"`
	Severity Severity   `json:"severity"`
	Input    *string    `json:"input,omitempty"`
	Expected *string    `json:"expected,omitempty"`
	Actual   *string    `json:"actual,omitempty"`
	TimeMs   *int64     `json:"time_ms,omitempty"`
	MemoryKB *int64     `json:"memory_kb,omitempty"`
}

// DecodeOutcomes decodes s into 1-based outcomes ready for display.
func DecodeOutcomes(s string) []TestCaseOutcome {
	codes := Decode(s)
	out := make([]TestCaseOutcome, len(codes))
	for i, code := range codes {
		out[i] = TestCaseOutcome{
			Index:    i + 1,
			Status:   code,
			Label:    code.Label(),
			Severity: code.Severity(),
		}
	}
	return out
}

// CountPassed returns how many positions of s decode to Passed.
func CountPassed(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == statusTable[Passed].char {
			n++
		}
	}
	return n
}
