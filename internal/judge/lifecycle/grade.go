package lifecycle

import "ucode/internal/judge/scoring"

// Grade scores a terminal outcome. Compilation and internal errors skip the
// calculator and score zero.
func Grade(o Outcome, maxScore int) scoring.Score {
	switch o.Status {
	case CompilationError:
		return scoring.ForFailure(scoring.CompilationError, maxScore)
	case InternalError:
		return scoring.ForFailure(scoring.InternalError, maxScore)
	}
	return scoring.Calculate(o.PassedTestCases, o.TotalTestCases, maxScore)
}
