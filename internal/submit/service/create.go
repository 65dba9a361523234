package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ucode/internal/common/storage"
	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/limits"
	"ucode/internal/judge/model"
	"ucode/internal/submit/repository"
	appErr "ucode/pkg/errors"
	"ucode/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	rateIPKeyPrefix      = "submit:rate:ip:"
	processingMarker     = "processing"
)

// Judge priorities. Lower is served first.
const (
	priorityAssignment = 0
	priorityPractice   = 1
	priorityRun        = 2
)

// CreateInput describes a run or graded submission request. UserID is the
// acting user and must be passed explicitly.
type CreateInput struct {
	UserID         int64
	ProblemID      int64
	AssignmentID   *int64
	LanguageCode   string
	SourceCode     string
	IdempotencyKey string
	ClientIP       string
}

// CreateResult is returned by CreateRun and CreateGraded.
type CreateResult struct {
	SubmissionID string           `json:"submission_id"`
	Kind         string           `json:"kind"`
	Status       lifecycle.Status `json:"status"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	Limits       limits.Effective `json:"limits"`
}

// CreateRun creates a scratch run. Runs are judged like graded submissions but
// never produce grading records.
func (s *SubmitService) CreateRun(ctx context.Context, input CreateInput) (CreateResult, error) {
	return s.create(ctx, model.KindRun, input)
}

// CreateGraded creates a recorded submission.
func (s *SubmitService) CreateGraded(ctx context.Context, input CreateInput) (CreateResult, error) {
	return s.create(ctx, model.KindGraded, input)
}

func (s *SubmitService) create(ctx context.Context, kind string, input CreateInput) (CreateResult, error) {
	input.LanguageCode = strings.TrimSpace(input.LanguageCode)
	if err := s.validateInput(input); err != nil {
		return CreateResult{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return CreateResult{}, err
	}

	idemKey := s.idempotencyKey(input.UserID, kind, input.IdempotencyKey)
	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return CreateResult{}, err
	}
	if !acquired && existingID != "" {
		return s.existingResult(ctx, existingID)
	}

	res, err := s.createNew(ctx, kind, input)
	if err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return CreateResult{}, err
	}
	s.finalizeIdempotency(ctx, idemKey, res.SubmissionID, acquired)
	return res, nil
}

func (s *SubmitService) createNew(ctx context.Context, kind string, input CreateInput) (CreateResult, error) {
	effective, err := s.resolveLimits(ctx, input.ProblemID, input.LanguageCode)
	if err != nil {
		return CreateResult{}, err
	}
	if kind == model.KindGraded && input.AssignmentID != nil {
		if err := s.checkAssignment(ctx, *input.AssignmentID, input.ProblemID, input.UserID); err != nil {
			return CreateResult{}, err
		}
	}

	submissionID := uuid.NewString()
	sourceKey := s.buildSourceKey(submissionID)
	now := s.now()

	if err := s.uploadSource(ctx, sourceKey, input.SourceCode); err != nil {
		return CreateResult{}, err
	}

	submission := &repository.Submission{
		ID:            submissionID,
		Kind:          kind,
		UserID:        input.UserID,
		ProblemID:     input.ProblemID,
		AssignmentID:  input.AssignmentID,
		LanguageCode:  input.LanguageCode,
		SourceCode:    input.SourceCode,
		SourceKey:     sourceKey,
		SourceHash:    hashSource(input.SourceCode),
		Status:        lifecycle.Pending,
		TimeLimitMs:   effective.TimeLimitMs,
		MemoryLimitKB: effective.MemoryLimitKB,
		TimeFactor:    effective.TimeFactor,
		CreatedAt:     now,
		SubmittedAt:   now,
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		s.removeSource(ctx, sourceKey)
		return CreateResult{}, err
	}

	topic, priority := s.route(kind, input.AssignmentID)
	if err := s.dispatch(ctx, topic, model.JudgeMessage{
		SubmissionID: submissionID,
		Kind:         kind,
		ProblemID:    input.ProblemID,
		AssignmentID: input.AssignmentID,
		UserID:       input.UserID,
		LanguageCode: input.LanguageCode,
		SourceKey:    sourceKey,
		SourceHash:   submission.SourceHash,
		Limits:       effective,
		Priority:     priority,
		QueuedAt:     now.Unix(),
	}); err != nil {
		s.discardSubmission(ctx, submissionID, sourceKey)
		return CreateResult{}, err
	}

	logger.Info(ctx, "submission created",
		zap.String("submission_id", submissionID),
		zap.String("kind", kind),
		zap.Int64("user_id", input.UserID),
		zap.Int64("problem_id", input.ProblemID),
	)
	return CreateResult{
		SubmissionID: submissionID,
		Kind:         kind,
		Status:       lifecycle.Pending,
		SubmittedAt:  now,
		Limits:       effective,
	}, nil
}

func (s *SubmitService) validateInput(input CreateInput) error {
	if input.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if input.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if input.AssignmentID != nil && *input.AssignmentID <= 0 {
		return appErr.ValidationError("assignment_id", "invalid")
	}
	if input.LanguageCode == "" {
		return appErr.ValidationError("language_code", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if s.maxCodeBytes > 0 && len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *SubmitService) resolveLimits(ctx context.Context, problemID int64, languageCode string) (limits.Effective, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	effective, err := s.limits.ResolveLimits(ctxDB.ctx, problemID, languageCode)
	if err != nil {
		if appErr.GetCode(err) == appErr.LanguageNotFound {
			return limits.Effective{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q is not supported", languageCode)
		}
		return limits.Effective{}, err
	}
	return effective, nil
}

func (s *SubmitService) checkAssignment(ctx context.Context, assignmentID, problemID, userID int64) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if _, err := s.catalogRepo.GetAssignmentMaxScore(ctxDB.ctx, assignmentID, problemID); err != nil {
		if errors.Is(err, repository.ErrAssignmentProblemNotFound) {
			return appErr.New(appErr.AssignmentProblemNotFound).WithMessage("problem is not part of this assignment")
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "get assignment problem failed")
	}
	if _, err := s.catalogRepo.GetAssignmentUserID(ctxDB.ctx, assignmentID, userID); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return appErr.New(appErr.NotEnrolled).WithMessage("user is not enrolled in this assignment")
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "get assignment user failed")
	}
	return nil
}

func (s *SubmitService) existingResult(ctx context.Context, submissionID string) (CreateResult, error) {
	submission, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{
		SubmissionID: submission.ID,
		Kind:         submission.Kind,
		Status:       submission.Status,
		SubmittedAt:  submission.SubmittedAt,
		Limits: limits.Effective{
			LanguageCode:  submission.LanguageCode,
			TimeFactor:    submission.TimeFactor,
			TimeLimitMs:   submission.TimeLimitMs,
			MemoryLimitKB: submission.MemoryLimitKB,
		},
	}, nil
}

func (s *SubmitService) idempotencyKey(userID int64, kind, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return idempotencyKeyPrefix + strconv.FormatInt(userID, 10) + ":" + kind + ":" + key
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, cacheKey string) (bool, string, error) {
	if cacheKey == "" {
		return true, "", nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, cacheKey, submissionID string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, cacheKey, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, cacheKey string, acquired bool) {
	if !acquired || cacheKey == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, cacheKey); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64, clientIP string) error {
	if s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 {
		if err := s.checkRateCounter(ctxCache.ctx, rateUserKeyPrefix+strconv.FormatInt(userID, 10), s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, limit int) error {
	count, err := s.cache.IncrWindow(ctx, key, s.rateLimit.Window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count > int64(limit) {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

func (s *SubmitService) uploadSource(ctx context.Context, objectKey, source string) error {
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := storage.PutCompressed(ctxStorage.ctx, s.storage, s.sourceBucket, objectKey, []byte(source)); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return nil
}

func (s *SubmitService) removeSource(ctx context.Context, objectKey string) {
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.storage.RemoveObject(ctxStorage.ctx, s.sourceBucket, objectKey); err != nil {
		logger.Warn(ctx, "remove source object failed", zap.String("object_key", objectKey), zap.Error(err))
	}
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

// discardSubmission removes a submission that never reached the judge.
func (s *SubmitService) discardSubmission(ctx context.Context, submissionID, sourceKey string) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Delete(ctxDB.ctx, nil, submissionID); err != nil {
		logger.Error(ctx, "discard undispatched submission failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
	s.removeSource(ctx, sourceKey)
}

func (s *SubmitService) dispatch(ctx context.Context, topic string, message model.JudgeMessage) error {
	if topic == "" {
		return appErr.New(appErr.SubmissionCreateFailed).WithMessage("judge topic is not configured")
	}
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.dispatcher.Dispatch(ctxMQ.ctx, topic, message); err != nil {
		code := appErr.SubmissionCreateFailed
		if message.Kind == model.KindRun {
			code = appErr.RunFailed
		}
		return appErr.Wrapf(err, code, "dispatch submission failed")
	}
	return nil
}

func (s *SubmitService) route(kind string, assignmentID *int64) (string, int) {
	switch {
	case kind == model.KindRun:
		return s.topics.Run, priorityRun
	case assignmentID != nil:
		return s.topics.Graded, priorityAssignment
	default:
		return s.topics.Practice, priorityPractice
	}
}

func (s *SubmitService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.zst", s.sourceKeyPrefix, submissionID)
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
