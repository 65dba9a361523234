package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ucode/internal/common/db"
	"ucode/internal/common/mq"
	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/model"
	"ucode/internal/submit/repository"
	appErr "ucode/pkg/errors"
	"ucode/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleStatusMessage processes status events published by the judge.
// Events that cannot change state any more are acknowledged and logged.
func (s *SubmitService) HandleStatusMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event model.StatusEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error(ctx, "drop undecodable status event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if event.SubmissionID == "" {
		logger.Error(ctx, "drop status event without submission id", zap.String("message_id", msg.ID))
		return nil
	}

	switch event.Type {
	case model.StatusEventRunning:
		return s.HandleRunning(ctx, event.SubmissionID)
	case model.StatusEventFinal:
		if event.Report == nil {
			logger.Error(ctx, "drop final status event without report", zap.String("submission_id", event.SubmissionID))
			return nil
		}
		return s.HandleFinal(ctx, event.SubmissionID, *event.Report)
	default:
		logger.Warn(ctx, "drop status event of unknown type",
			zap.String("submission_id", event.SubmissionID),
			zap.String("type", string(event.Type)),
		)
		return nil
	}
}

// HandleRunning records that the judge picked up a submission.
func (s *SubmitService) HandleRunning(ctx context.Context, submissionID string) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	moved, err := s.submissionRepo.MarkRunning(ctxDB.ctx, nil, submissionID, s.now())
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark submission running failed")
	}
	if !moved {
		logger.Info(ctx, "ignore running event", zap.String("submission_id", submissionID))
		return nil
	}
	logger.Info(ctx, "submission running", zap.String("submission_id", submissionID))
	return nil
}

// HandleFinal normalises and scores a judge report and writes the terminal
// state. Graded assignment submissions get a grading record in the same
// transaction.
func (s *SubmitService) HandleFinal(ctx context.Context, submissionID string, report lifecycle.Report) error {
	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		if appErr.Is(err, appErr.SubmissionNotFound) {
			logger.Warn(ctx, "drop final event of unknown submission", zap.String("submission_id", submissionID))
			return nil
		}
		return err
	}
	outcome, err := lifecycle.Finalize(report)
	if err != nil {
		logger.Error(ctx, "reject judge report",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		outcome = lifecycle.Outcome{
			Status:       lifecycle.InternalError,
			TimeMs:       report.TimeMs,
			MemoryKB:     report.MemoryKB,
			ErrorMessage: appErr.CompareResultInvalid.Message(),
		}
	}
	if err := lifecycle.CheckTransition(submission.Status, outcome.Status); err != nil {
		logger.Warn(ctx, "ignore final event of terminal submission",
			zap.String("submission_id", submissionID),
			zap.String("status", string(submission.Status)),
			zap.Error(err),
		)
		return nil
	}

	maxScore, assignmentUserID, err := s.gradingContext(ctx, submission)
	if err != nil {
		return err
	}
	score := lifecycle.Grade(outcome, maxScore)
	update := repository.ResultUpdate{Outcome: outcome, Score: score, CompletedAt: s.now()}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	var record *repository.AssignmentProblemSubmission
	err = s.db.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		if err := s.submissionRepo.ApplyResult(ctxDB.ctx, tx, submissionID, update); err != nil {
			return err
		}
		if assignmentUserID == 0 {
			return nil
		}
		record = &repository.AssignmentProblemSubmission{
			SubmissionID:     submissionID,
			AssignmentUserID: assignmentUserID,
			ProblemID:        submission.ProblemID,
			Score:            score.Score,
			MaxScore:         score.MaxScore,
			Status:           string(score.Verdict),
			CreatedAt:        update.CompletedAt,
		}
		return s.gradingRepo.Insert(ctxDB.ctx, tx, record)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSubmissionTerminal), errors.Is(err, repository.ErrGradingRecordExists):
			logger.Warn(ctx, "ignore final event of terminal submission", zap.String("submission_id", submissionID), zap.Error(err))
			return nil
		case errors.Is(err, repository.ErrSubmissionNotFound):
			logger.Warn(ctx, "drop final event of deleted submission", zap.String("submission_id", submissionID))
			return nil
		}
		return appErr.Wrapf(err, appErr.GradingRecordFailed, "apply judge result failed")
	}

	fields := []zap.Field{
		zap.String("submission_id", submissionID),
		zap.String("status", string(outcome.Status)),
		zap.Int("score", score.Score),
		zap.Int("max_score", score.MaxScore),
	}
	if record != nil {
		fields = append(fields, zap.Int("attempt", record.Attempt))
	}
	logger.Info(ctx, "submission finalized", fields...)
	return nil
}

// gradingContext returns the max score of a submission and, for graded
// assignment submissions, the enrollment the grading record belongs to.
func (s *SubmitService) gradingContext(ctx context.Context, submission *repository.Submission) (int, int64, error) {
	if submission.Kind != model.KindGraded || submission.AssignmentID == nil {
		return s.practiceMaxScore, 0, nil
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	assignmentID := *submission.AssignmentID
	maxScore, err := s.catalogRepo.GetAssignmentMaxScore(ctxDB.ctx, assignmentID, submission.ProblemID)
	if err != nil {
		if errors.Is(err, repository.ErrAssignmentProblemNotFound) {
			logger.Warn(ctx, "assignment problem vanished, scoring as practice",
				zap.String("submission_id", submission.ID),
				zap.Int64("assignment_id", assignmentID),
			)
			return s.practiceMaxScore, 0, nil
		}
		return 0, 0, appErr.Wrapf(err, appErr.DatabaseError, "get assignment problem failed")
	}
	assignmentUserID, err := s.catalogRepo.GetAssignmentUserID(ctxDB.ctx, assignmentID, submission.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			logger.Warn(ctx, "user left assignment, skipping grading record",
				zap.String("submission_id", submission.ID),
				zap.Int64("assignment_id", assignmentID),
			)
			return maxScore, 0, nil
		}
		return 0, 0, appErr.Wrapf(err, appErr.DatabaseError, "get assignment user failed")
	}
	return maxScore, assignmentUserID, nil
}

// Subscribe registers HandleStatusMessage on the status topic.
func (s *SubmitService) Subscribe(ctx context.Context, consumer mq.Consumer, opts *mq.SubscribeOptions) error {
	if s.topics.Status == "" {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("status topic is not configured")
	}
	if opts == nil {
		opts = &mq.SubscribeOptions{RetryDelay: time.Second}
	}
	return consumer.Subscribe(ctx, s.topics.Status, s.HandleStatusMessage, opts)
}
