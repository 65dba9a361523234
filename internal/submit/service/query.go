package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/model"
	"ucode/internal/judge/poller"
	"ucode/internal/judge/result"
	"ucode/internal/judge/scoring"
	"ucode/internal/submit/repository"
	appErr "ucode/pkg/errors"
	pkgrepo "ucode/pkg/repository"
	"ucode/pkg/utils/logger"

	"go.uber.org/zap"
)

// LimitsView reports the effective limits a submission ran with.
type LimitsView struct {
	TimeLimitMs   int64   `json:"time_limit_ms"`
	MemoryLimitKB int64   `json:"memory_limit_kb"`
	TimeFactor    float64 `json:"time_factor"`
}

// SubmissionView is the read model of a submission.
type SubmissionView struct {
	ID              string                   `json:"submission_id"`
	Kind            string                   `json:"kind"`
	UserID          int64                    `json:"user_id"`
	ProblemID       int64                    `json:"problem_id"`
	AssignmentID    *int64                   `json:"assignment_id,omitempty"`
	LanguageCode    string                   `json:"language_code"`
	SourceCode      string                   `json:"source_code,omitempty"`
	Status          lifecycle.Status         `json:"status"`
	Terminal        bool                     `json:"terminal"`
	TotalTestCases  int                      `json:"total_test_cases"`
	PassedTestCases int                      `json:"passed_test_cases"`
	TimeMs          int64                    `json:"time_ms"`
	MemoryKB        int64                    `json:"memory_kb"`
	ErrorMessage    *string                  `json:"error_message,omitempty"`
	CompareResult   *string                  `json:"compare_result,omitempty"`
	Outcomes        []result.TestCaseOutcome `json:"outcomes"`
	Score           *scoring.Score           `json:"score,omitempty"`
	Limits          LimitsView               `json:"limits"`
	CreatedAt       time.Time                `json:"created_at"`
	SubmittedAt     time.Time                `json:"submitted_at"`
	StartedAt       *time.Time               `json:"started_at,omitempty"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
}

// ListInput filters and pages a submission listing. Kind defaults to graded;
// runs are only listed when asked for.
type ListInput struct {
	UserID    int64
	ProblemID int64
	Kind      string
	Page      int
	PageSize  int
}

// WaitResult is the outcome of a server-side wait.
type WaitResult struct {
	Submission SubmissionView `json:"submission"`
	TimedOut   bool           `json:"timed_out"`
	Attempts   int            `json:"attempts"`
}

// GetSubmission returns the detail view of a submission, read through to the
// database.
func (s *SubmitService) GetSubmission(ctx context.Context, submissionID string) (SubmissionView, error) {
	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionView{}, err
	}
	return newSubmissionView(submission, true), nil
}

// ListSubmissions returns one page of submissions. A page past the end is empty.
func (s *SubmitService) ListSubmissions(ctx context.Context, input ListInput) (pkgrepo.PaginationResult[SubmissionView], error) {
	var empty pkgrepo.PaginationResult[SubmissionView]
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	switch kind {
	case "":
		kind = model.KindGraded
	case model.KindGraded, model.KindRun:
	default:
		return empty, appErr.ValidationError("kind", "invalid")
	}
	if input.UserID < 0 || input.ProblemID < 0 {
		return empty, appErr.ValidationError("filter", "invalid")
	}
	opts := pkgrepo.ListOptions{Page: input.Page, PageSize: input.PageSize}
	if err := opts.Validate(s.pageBounds); err != nil {
		if errors.Is(err, pkgrepo.ErrInvalidPage) {
			return empty, appErr.ValidationError("page", "must be >= 1")
		}
		return empty, appErr.ValidationError("page_size", "out of range").
			WithDetail("min", s.pageBounds.MinPageSize).
			WithDetail("max", s.pageBounds.MaxPageSize)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	filter := repository.SubmissionFilter{UserID: input.UserID, ProblemID: input.ProblemID, Kind: kind}
	items, total, err := s.submissionRepo.List(ctxDB.ctx, filter, opts)
	if err != nil {
		return empty, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	views := make([]SubmissionView, 0, len(items))
	for _, item := range items {
		views = append(views, newSubmissionView(item, false))
	}
	return pkgrepo.NewPaginationResult(views, total, opts), nil
}

// DeleteSubmission removes a submission, its grading record and its stored
// source.
func (s *SubmitService) DeleteSubmission(ctx context.Context, submissionID string) error {
	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Delete(ctxDB.ctx, nil, submissionID); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return appErr.Wrapf(err, appErr.SubmissionDeleteFailed, "delete submission failed")
	}
	s.removeSource(ctx, submission.SourceKey)
	logger.Info(ctx, "submission deleted", zap.String("submission_id", submissionID))
	return nil
}

// WaitSubmission polls a submission until it is terminal or the configured
// attempt budget runs out.
func (s *SubmitService) WaitSubmission(ctx context.Context, submissionID string) (WaitResult, error) {
	if _, err := s.getSubmission(ctx, submissionID); err != nil {
		return WaitResult{}, err
	}

	p := poller.New[*repository.Submission](
		func(ctx context.Context) (*repository.Submission, error) {
			ctxDB := withTimeout(ctx, s.timeouts.DB)
			defer ctxDB.cancel()
			return s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
		},
		func(sub *repository.Submission) bool { return sub.Status.IsTerminal() },
		poller.WithConfig[*repository.Submission](s.wait),
		poller.WithSleep[*repository.Submission](s.sleep),
		poller.WithAttemptHook[*repository.Submission](func(attempt int, _ *repository.Submission, err error) {
			if err != nil {
				logger.Warn(ctx, "poll attempt failed",
					zap.String("submission_id", submissionID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
		}),
	)
	outcome := p.Poll(ctx)

	switch outcome.Kind {
	case poller.Terminal:
		return WaitResult{Submission: newSubmissionView(outcome.Last, true), Attempts: outcome.Attempts}, nil
	case poller.Timeout:
		if !outcome.HasLast {
			return WaitResult{}, appErr.Wrapf(outcome.Err(), appErr.PollTimeout, "still processing, check back later")
		}
		return WaitResult{Submission: newSubmissionView(outcome.Last, true), TimedOut: true, Attempts: outcome.Attempts}, nil
	default:
		return WaitResult{}, appErr.Wrapf(outcome.Err(), appErr.Timeout, "wait canceled")
	}
}

// GetGrading returns the grading record of a graded assignment submission.
func (s *SubmitService) GetGrading(ctx context.Context, submissionID string) (*repository.AssignmentProblemSubmission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	record, err := s.gradingRepo.GetBySubmission(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrGradingRecordNotFound) {
			return nil, appErr.New(appErr.GradingRecordNotFound).WithMessage("grading record not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get grading record failed")
	}
	return record, nil
}

func (s *SubmitService) getSubmission(ctx context.Context, submissionID string) (*repository.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

func newSubmissionView(sub *repository.Submission, detail bool) SubmissionView {
	view := SubmissionView{
		ID:              sub.ID,
		Kind:            sub.Kind,
		UserID:          sub.UserID,
		ProblemID:       sub.ProblemID,
		AssignmentID:    sub.AssignmentID,
		LanguageCode:    sub.LanguageCode,
		Status:          sub.Status,
		Terminal:        sub.Status.IsTerminal(),
		TotalTestCases:  sub.TotalTestCases,
		PassedTestCases: sub.PassedTestCases,
		TimeMs:          sub.TimeMs,
		MemoryKB:        sub.MemoryKB,
		ErrorMessage:    sub.ErrorMessage,
		CompareResult:   sub.CompareResult,
		Outcomes:        []result.TestCaseOutcome{},
		Limits: LimitsView{
			TimeLimitMs:   sub.TimeLimitMs,
			MemoryLimitKB: sub.MemoryLimitKB,
			TimeFactor:    sub.TimeFactor,
		},
		CreatedAt:   sub.CreatedAt,
		SubmittedAt: sub.SubmittedAt,
		StartedAt:   sub.StartedAt,
		CompletedAt: sub.CompletedAt,
	}
	if detail {
		view.SourceCode = sub.SourceCode
	}
	if sub.CompareResult != nil {
		view.Outcomes = result.DecodeOutcomes(*sub.CompareResult)
	}
	if sub.Score != nil && sub.MaxScore != nil && sub.Verdict != nil {
		view.Score = &scoring.Score{Score: *sub.Score, MaxScore: *sub.MaxScore, Verdict: scoring.Verdict(*sub.Verdict)}
	}
	return view
}
