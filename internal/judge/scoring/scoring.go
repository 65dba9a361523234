// Package scoring turns test case counts into a score and a verdict.
package scoring

// Verdict is the graded classification of a submission.
type Verdict string

const (
	Accepted          Verdict = "Accepted"
	PartiallyAccepted Verdict = "PartiallyAccepted"
	WrongAnswer       Verdict = "WrongAnswer"
	CompilationError  Verdict = "CompilationError"
	InternalError     Verdict = "InternalError"
)

// Score is the outcome of grading one submission.
type Score struct {
	Score    int     `json:"score"`
	MaxScore int     `json:"max_score"`
	Verdict  Verdict `json:"verdict"`
}

// Calculate returns round(passed/total*maxScore), rounding halves up, and the
// verdict that follows from it. total == 0 scores zero. Out-of-range inputs are
// clamped so the score always lies in [0, maxScore].
func Calculate(passed, total, maxScore int) Score {
	if maxScore < 0 {
		maxScore = 0
	}
	if total <= 0 || maxScore == 0 {
		return Score{Score: 0, MaxScore: maxScore, Verdict: WrongAnswer}
	}
	if passed < 0 {
		passed = 0
	}
	if passed > total {
		passed = total
	}

	// floor((2*p*m + t) / (2*t)) == floor(p*m/t + 1/2)
	num := 2*int64(passed)*int64(maxScore) + int64(total)
	score := int(num / (2 * int64(total)))

	return Score{Score: score, MaxScore: maxScore, Verdict: verdictFor(score, maxScore)}
}

func verdictFor(score, maxScore int) Verdict {
	switch {
	case score >= maxScore:
		return Accepted
	case score > 0:
		return PartiallyAccepted
	default:
		return WrongAnswer
	}
}

// ForFailure grades a submission that never produced comparable output. The pass
// count is ignored.
func ForFailure(v Verdict, maxScore int) Score {
	if maxScore < 0 {
		maxScore = 0
	}
	return Score{Score: 0, MaxScore: maxScore, Verdict: v}
}
