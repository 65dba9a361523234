package lifecycle

import (
	"errors"
	"fmt"

	"ucode/internal/judge/result"
)

// Report is what the judge sends when it is done with a submission.
type Report struct {
	// CompileFailed marks a submission whose source did not compile.
	CompileFailed bool `json:"compile_failed"`
	// SystemFailed marks a judge-side failure before any test case ran.
	SystemFailed   bool   `json:"system_failed"`
	CompareResult  string `json:"compare_result"`
	TotalTestCases int    `json:"total_test_cases"`
	TimeMs         int64  `json:"time_ms"`
	MemoryKB       int64  `json:"memory_kb"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Outcome is the normalised terminal state written to the submission.
type Outcome struct {
	Status          Status
	TotalTestCases  int
	PassedTestCases int
	// CompareResult is nil when no per-test-case result exists.
	CompareResult *string
	TimeMs        int64
	MemoryKB      int64
	ErrorMessage  string
}

var ErrCompareResultLength = errors.New("compare result length does not match total test cases")

// Finalize normalises a judge report.
//
// A compile failure, or a CompilationError anywhere in the compare result, yields
// CompilationError with zero counters and no compare result. Otherwise the compare
// result must have exactly TotalTestCases positions, the pass count is taken from
// it, and the label is the first outcome of the highest ranked tier.
func Finalize(r Report) (Outcome, error) {
	out := Outcome{
		TimeMs:       r.TimeMs,
		MemoryKB:     r.MemoryKB,
		ErrorMessage: r.ErrorMessage,
	}

	codes := result.Decode(r.CompareResult)
	if r.CompileFailed || containsCode(codes, result.CompilationError) {
		out.Status = CompilationError
		return out, nil
	}
	if r.SystemFailed && r.CompareResult == "" {
		out.Status = InternalError
		return out, nil
	}

	if r.TotalTestCases <= 0 || len(codes) != r.TotalTestCases {
		return Outcome{}, fmt.Errorf("%w: got %d, want %d", ErrCompareResultLength, len(codes), r.TotalTestCases)
	}

	compare := r.CompareResult
	out.CompareResult = &compare
	out.TotalTestCases = r.TotalTestCases
	out.PassedTestCases = result.CountPassed(compare)
	out.Status = Label(codes)
	if r.SystemFailed && out.Status == Passed {
		out.Status = InternalError
	}
	return out, nil
}

// Label picks the submission status for a sequence of outcomes.
// Runtime/internal errors outrank time/memory limits, which outrank wrong answers.
// Within a tier the first occurrence wins.
func Label(codes []result.StatusCode) Status {
	best := result.Passed
	for _, code := range codes {
		if code.Rank() > best.Rank() {
			best = code
		}
	}
	return fromCode(best)
}

func fromCode(code result.StatusCode) Status {
	switch code {
	case result.Passed:
		return Passed
	case result.TimeLimitExceeded:
		return TimeLimitExceeded
	case result.MemoryLimitExceeded:
		return MemoryLimitExceeded
	case result.RuntimeError:
		return RuntimeError
	case result.WrongAnswer, result.Skipped:
		return WrongAnswer
	case result.CompilationError:
		return CompilationError
	default:
		return InternalError
	}
}

func containsCode(codes []result.StatusCode, want result.StatusCode) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
