package service

import (
	"context"
	"fmt"
	"time"

	"ucode/internal/common/cache"
	"ucode/internal/common/db"
	"ucode/internal/common/storage"
	"ucode/internal/judge/limits"
	"ucode/internal/judge/poller"
	"ucode/internal/submit/repository"
	pkgrepo "ucode/pkg/repository"
)

const (
	defaultSourcePrefix     = "submissions"
	defaultPracticeMaxScore = 100
	defaultIdempotencyTTL   = 10 * time.Minute
)

// TopicConfig defines routing topics for judge tasks and the topic the judge
// reports status on.
type TopicConfig struct {
	Graded   string `yaml:"graded"`
	Practice string `yaml:"practice"`
	Run      string `yaml:"run"`
	Status   string `yaml:"status"`
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// LimitResolver resolves the effective limits of a (problem, language) pair.
type LimitResolver interface {
	ResolveLimits(ctx context.Context, problemID int64, languageCode string) (limits.Effective, error)
}

// Config holds submit service dependencies and settings.
type Config struct {
	DB             db.Database
	SubmissionRepo repository.SubmissionRepository
	GradingRepo    repository.GradingRepository
	CatalogRepo    repository.CatalogRepository
	Dispatcher     repository.JudgeDispatcher
	Limits         LimitResolver
	Storage        storage.ObjectStorage
	Cache          cache.Cache

	Topics           TopicConfig
	SourceBucket     string
	SourceKeyPrefix  string
	MaxCodeBytes     int
	PracticeMaxScore int
	IdempotencyTTL   time.Duration
	RateLimit        RateLimitConfig
	Timeouts         TimeoutConfig
	PageBounds       pkgrepo.PageBounds
	// Wait is the attempt budget of the server-side wait endpoint.
	Wait poller.Config
	// Sleep overrides the wait between poll attempts.
	Sleep poller.SleepFunc
}

// SubmitService handles submission intake, dispatch, judge status events and
// read access to submissions.
type SubmitService struct {
	db             db.Database
	submissionRepo repository.SubmissionRepository
	gradingRepo    repository.GradingRepository
	catalogRepo    repository.CatalogRepository
	dispatcher     repository.JudgeDispatcher
	limits         LimitResolver
	storage        storage.ObjectStorage
	cache          cache.Cache

	topics           TopicConfig
	sourceBucket     string
	sourceKeyPrefix  string
	maxCodeBytes     int
	practiceMaxScore int
	idempotencyTTL   time.Duration
	rateLimit        RateLimitConfig
	timeouts         TimeoutConfig
	pageBounds       pkgrepo.PageBounds
	wait             poller.Config
	sleep            poller.SleepFunc
	now              func() time.Time
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.GradingRepo == nil {
		return nil, fmt.Errorf("grading repository is required")
	}
	if cfg.CatalogRepo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("judge dispatcher is required")
	}
	if cfg.Limits == nil {
		return nil, fmt.Errorf("limit resolver is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.PracticeMaxScore <= 0 {
		cfg.PracticeMaxScore = defaultPracticeMaxScore
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.Sleep == nil {
		cfg.Sleep = poller.Sleep
	}
	return &SubmitService{
		db:               cfg.DB,
		submissionRepo:   cfg.SubmissionRepo,
		gradingRepo:      cfg.GradingRepo,
		catalogRepo:      cfg.CatalogRepo,
		dispatcher:       cfg.Dispatcher,
		limits:           cfg.Limits,
		storage:          cfg.Storage,
		cache:            cfg.Cache,
		topics:           cfg.Topics,
		sourceBucket:     cfg.SourceBucket,
		sourceKeyPrefix:  cfg.SourceKeyPrefix,
		maxCodeBytes:     cfg.MaxCodeBytes,
		practiceMaxScore: cfg.PracticeMaxScore,
		idempotencyTTL:   cfg.IdempotencyTTL,
		rateLimit:        cfg.RateLimit,
		timeouts:         cfg.Timeouts,
		pageBounds:       cfg.PageBounds.Normalize(),
		wait:             cfg.Wait.Normalize(),
		sleep:            cfg.Sleep,
		now:              time.Now,
	}, nil
}

// PageBounds returns the normalised listing bounds.
func (s *SubmitService) PageBounds() pkgrepo.PageBounds {
	return s.pageBounds
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
