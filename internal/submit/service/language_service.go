package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ucode/internal/judge/limits"
	"ucode/internal/submit/repository"
	appErr "ucode/pkg/errors"
	"ucode/pkg/utils/logger"

	"go.uber.org/zap"
)

// LanguageServiceConfig holds language service dependencies.
type LanguageServiceConfig struct {
	LanguageRepo repository.LanguageRepository
	CatalogRepo  repository.CatalogRepository
	Timeouts     TimeoutConfig
}

// LanguageService saves language configurations and resolves effective limits.
type LanguageService struct {
	languageRepo repository.LanguageRepository
	catalogRepo  repository.CatalogRepository
	timeouts     TimeoutConfig
}

// SaveLanguageInput describes a language to create or update.
type SaveLanguageInput struct {
	Code              string
	Name              string
	DefaultTimeFactor float64
	DefaultMemoryKB   int64
	Template          limits.Template
}

// SaveOverrideInput describes a per-problem override. Nil fields inherit the
// language defaults.
type SaveOverrideInput struct {
	ProblemID    int64
	LanguageCode string
	TimeFactor   *float64
	MemoryKB     *int64
	Template     limits.TemplateOverride
}

// ResolvedLimits is the effective configuration of a (problem, language) pair.
type ResolvedLimits struct {
	ProblemID   int64                `json:"problem_id"`
	Overridden  bool                 `json:"overridden"`
	Effective   limits.Effective     `json:"effective"`
	ProblemBase limits.ProblemLimits `json:"problem_base"`
}

// NewLanguageService creates a new language service.
func NewLanguageService(cfg LanguageServiceConfig) (*LanguageService, error) {
	if cfg.LanguageRepo == nil {
		return nil, fmt.Errorf("language repository is required")
	}
	if cfg.CatalogRepo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	return &LanguageService{
		languageRepo: cfg.LanguageRepo,
		catalogRepo:  cfg.CatalogRepo,
		timeouts:     cfg.Timeouts,
	}, nil
}

// SaveLanguage validates and stores a language. Invalid limits are rejected here
// so resolution never has to default them.
func (s *LanguageService) SaveLanguage(ctx context.Context, input SaveLanguageInput) (*limits.LanguageConfig, error) {
	lang := &limits.LanguageConfig{
		Code:              strings.TrimSpace(input.Code),
		Name:              strings.TrimSpace(input.Name),
		DefaultTimeFactor: input.DefaultTimeFactor,
		DefaultMemoryKB:   input.DefaultMemoryKB,
		Template:          input.Template,
	}
	if err := limits.ValidateLanguage(*lang); err != nil {
		return nil, configError(err)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if _, err := s.languageRepo.Save(ctxDB.ctx, lang); err != nil {
		return nil, appErr.Wrapf(err, appErr.LanguageSaveFailed, "save language failed")
	}
	logger.Info(ctx, "language saved", zap.String("code", lang.Code), zap.Int64("language_id", lang.ID))
	return lang, nil
}

// SaveOverride validates and stores a per-problem override.
func (s *LanguageService) SaveOverride(ctx context.Context, input SaveOverrideInput) (*limits.ProblemLanguageOverride, error) {
	if input.ProblemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	lang, err := s.getLanguage(ctx, input.LanguageCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.getProblemLimits(ctx, input.ProblemID); err != nil {
		return nil, err
	}

	override := &limits.ProblemLanguageOverride{
		ProblemID:  input.ProblemID,
		LanguageID: lang.ID,
		TimeFactor: input.TimeFactor,
		MemoryKB:   input.MemoryKB,
		Template:   input.Template,
	}
	if err := limits.ValidateOverride(*override); err != nil {
		return nil, configError(err)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.languageRepo.SaveOverride(ctxDB.ctx, override); err != nil {
		return nil, appErr.Wrapf(err, appErr.LanguageSaveFailed, "save language override failed")
	}
	logger.Info(ctx, "language override saved",
		zap.Int64("problem_id", input.ProblemID),
		zap.String("code", lang.Code),
	)
	return override, nil
}

// ResolveLimits returns the effective limits of languageCode on problemID.
func (s *LanguageService) ResolveLimits(ctx context.Context, problemID int64, languageCode string) (limits.Effective, error) {
	resolved, err := s.Resolve(ctx, problemID, languageCode)
	if err != nil {
		return limits.Effective{}, err
	}
	return resolved.Effective, nil
}

// Resolve returns the effective limits together with the problem base limits.
func (s *LanguageService) Resolve(ctx context.Context, problemID int64, languageCode string) (ResolvedLimits, error) {
	if problemID <= 0 {
		return ResolvedLimits{}, appErr.ValidationError("problem_id", "required")
	}
	lang, err := s.getLanguage(ctx, languageCode)
	if err != nil {
		return ResolvedLimits{}, err
	}
	base, err := s.getProblemLimits(ctx, problemID)
	if err != nil {
		return ResolvedLimits{}, err
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	override, err := s.languageRepo.GetOverride(ctxDB.ctx, problemID, lang.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrOverrideNotFound) {
			return ResolvedLimits{}, appErr.Wrapf(err, appErr.DatabaseError, "get language override failed")
		}
		override = nil
	}

	return ResolvedLimits{
		ProblemID:   problemID,
		Overridden:  override != nil,
		Effective:   limits.Resolve(base, *lang, override),
		ProblemBase: base,
	}, nil
}

func (s *LanguageService) getLanguage(ctx context.Context, code string) (*limits.LanguageConfig, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErr.ValidationError("language_code", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	lang, err := s.languageRepo.GetByCode(ctxDB.ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, appErr.New(appErr.LanguageNotFound).WithMessagef("language %q not found", code)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get language failed")
	}
	return lang, nil
}

func (s *LanguageService) getProblemLimits(ctx context.Context, problemID int64) (limits.ProblemLimits, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	base, err := s.catalogRepo.GetProblemLimits(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return limits.ProblemLimits{}, appErr.New(appErr.ProblemNotSubmittable).WithMessage("problem not found")
		}
		return limits.ProblemLimits{}, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	return base, nil
}

func configError(err error) error {
	var cfgErr *limits.ConfigError
	if !errors.As(err, &cfgErr) {
		return appErr.Wrapf(err, appErr.LanguageConfigInvalid, "invalid language configuration")
	}
	return appErr.New(appErr.LanguageConfigInvalid).
		WithMessage(cfgErr.Error()).
		WithDetail("violations", cfgErr.Violations)
}
