package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ucode/internal/common/cache"
	"ucode/internal/common/db"
	"ucode/internal/judge/limits"
	pkgrepo "ucode/pkg/repository"
)

const (
	defaultLanguageCacheTTL      = 30 * time.Minute
	defaultLanguageCacheEmptyTTL = 5 * time.Minute
	languageCacheKeyPrefix       = "language:code:"
	overrideCacheKeyPrefix       = "language:override:"
)

var (
	ErrLanguageNotFound = fmt.Errorf("language %w", pkgrepo.ErrNotFound)
	ErrOverrideNotFound = fmt.Errorf("problem language override %w", pkgrepo.ErrNotFound)
)

// LanguageRepository persists language configs and per-problem overrides.
type LanguageRepository interface {
	GetByCode(ctx context.Context, code string) (*limits.LanguageConfig, error)
	// Save inserts or updates a language by code and returns its id.
	Save(ctx context.Context, lang *limits.LanguageConfig) (int64, error)
	GetOverride(ctx context.Context, problemID, languageID int64) (*limits.ProblemLanguageOverride, error)
	SaveOverride(ctx context.Context, override *limits.ProblemLanguageOverride) error
}

// MySQLLanguageRepository implements LanguageRepository with MySQL and an
// optional cache-aside layer.
type MySQLLanguageRepository struct {
	db     db.Database
	cache  cache.Cache
	policy cache.Policy
}

// NewLanguageRepository creates a language repository with default TTLs.
func NewLanguageRepository(database db.Database, cacheClient cache.Cache) *MySQLLanguageRepository {
	return NewLanguageRepositoryWithTTL(database, cacheClient, defaultLanguageCacheTTL, defaultLanguageCacheEmptyTTL)
}

// NewLanguageRepositoryWithTTL creates a language repository with custom TTLs.
func NewLanguageRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLLanguageRepository {
	if ttl <= 0 {
		ttl = defaultLanguageCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultLanguageCacheEmptyTTL
	}
	return &MySQLLanguageRepository{
		db:     database,
		cache:  cacheClient,
		policy: cache.Policy{TTL: ttl, EmptyTTL: emptyTTL},
	}
}

// GetByCode returns the language with the given code.
func (r *MySQLLanguageRepository) GetByCode(ctx context.Context, code string) (*limits.LanguageConfig, error) {
	if code == "" {
		return nil, errors.New("language code is required")
	}
	load := func(ctx context.Context) (limits.LanguageConfig, bool, error) {
		lang, err := r.getByCodeFromDB(ctx, code)
		if err != nil {
			if errors.Is(err, ErrLanguageNotFound) {
				return limits.LanguageConfig{}, false, nil
			}
			return limits.LanguageConfig{}, false, err
		}
		return *lang, true, nil
	}

	var (
		lang  limits.LanguageConfig
		found bool
		err   error
	)
	if r.cache != nil {
		lang, found, err = cache.GetWithCached(ctx, r.cache, languageCacheKey(code), r.policy, cache.JSONCodec[limits.LanguageConfig](), load)
	} else {
		lang, found, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrLanguageNotFound
	}
	return &lang, nil
}

// Save upserts lang by code.
func (r *MySQLLanguageRepository) Save(ctx context.Context, lang *limits.LanguageConfig) (int64, error) {
	if lang == nil {
		return 0, errors.New("language is nil")
	}
	var id int64
	save := func(ctx context.Context) error {
		query := `
			INSERT INTO languages
			(code, name, default_time_factor, default_memory_kb, template_head, template_body, template_tail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				id = LAST_INSERT_ID(id),
				name = VALUES(name),
				default_time_factor = VALUES(default_time_factor),
				default_memory_kb = VALUES(default_memory_kb),
				template_head = VALUES(template_head),
				template_body = VALUES(template_body),
				template_tail = VALUES(template_tail)
		`
		res, err := r.db.Exec(
			ctx,
			query,
			lang.Code,
			lang.Name,
			lang.DefaultTimeFactor,
			lang.DefaultMemoryKB,
			lang.Template.Head,
			lang.Template.Body,
			lang.Template.Tail,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	}

	var err error
	if r.cache != nil {
		err = cache.UpdateCached(ctx, r.cache, save, languageCacheKey(lang.Code))
	} else {
		err = save(ctx)
	}
	if err != nil {
		return 0, err
	}
	lang.ID = id
	return id, nil
}

// GetOverride returns the override of a (problem, language) pair.
func (r *MySQLLanguageRepository) GetOverride(ctx context.Context, problemID, languageID int64) (*limits.ProblemLanguageOverride, error) {
	load := func(ctx context.Context) (limits.ProblemLanguageOverride, bool, error) {
		o, err := r.getOverrideFromDB(ctx, problemID, languageID)
		if err != nil {
			if errors.Is(err, ErrOverrideNotFound) {
				return limits.ProblemLanguageOverride{}, false, nil
			}
			return limits.ProblemLanguageOverride{}, false, err
		}
		return *o, true, nil
	}

	var (
		o     limits.ProblemLanguageOverride
		found bool
		err   error
	)
	if r.cache != nil {
		o, found, err = cache.GetWithCached(ctx, r.cache, overrideCacheKey(problemID, languageID), r.policy, cache.JSONCodec[limits.ProblemLanguageOverride](), load)
	} else {
		o, found, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOverrideNotFound
	}
	return &o, nil
}

// SaveOverride upserts an override. Nil fields are stored as NULL and inherit.
func (r *MySQLLanguageRepository) SaveOverride(ctx context.Context, o *limits.ProblemLanguageOverride) error {
	if o == nil {
		return errors.New("override is nil")
	}
	save := func(ctx context.Context) error {
		query := `
			INSERT INTO problem_languages
			(problem_id, language_id, time_factor, memory_kb, template_head, template_body, template_tail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				time_factor = VALUES(time_factor),
				memory_kb = VALUES(memory_kb),
				template_head = VALUES(template_head),
				template_body = VALUES(template_body),
				template_tail = VALUES(template_tail)
		`
		_, err := r.db.Exec(
			ctx,
			query,
			o.ProblemID,
			o.LanguageID,
			o.TimeFactor,
			o.MemoryKB,
			o.Template.Head,
			o.Template.Body,
			o.Template.Tail,
		)
		return err
	}
	if r.cache != nil {
		return cache.UpdateCached(ctx, r.cache, save, overrideCacheKey(o.ProblemID, o.LanguageID))
	}
	return save(ctx)
}

func (r *MySQLLanguageRepository) getByCodeFromDB(ctx context.Context, code string) (*limits.LanguageConfig, error) {
	query := `
		SELECT id, code, name, default_time_factor, default_memory_kb, template_head, template_body, template_tail
		FROM languages WHERE code = ? LIMIT 1
	`
	lang := &limits.LanguageConfig{}
	err := r.db.QueryRow(ctx, query, code).Scan(
		&lang.ID,
		&lang.Code,
		&lang.Name,
		&lang.DefaultTimeFactor,
		&lang.DefaultMemoryKB,
		&lang.Template.Head,
		&lang.Template.Body,
		&lang.Template.Tail,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}
	return lang, nil
}

func (r *MySQLLanguageRepository) getOverrideFromDB(ctx context.Context, problemID, languageID int64) (*limits.ProblemLanguageOverride, error) {
	query := `
		SELECT problem_id, language_id, time_factor, memory_kb, template_head, template_body, template_tail
		FROM problem_languages WHERE problem_id = ? AND language_id = ? LIMIT 1
	`
	o := &limits.ProblemLanguageOverride{}
	err := r.db.QueryRow(ctx, query, problemID, languageID).Scan(
		&o.ProblemID,
		&o.LanguageID,
		&o.TimeFactor,
		&o.MemoryKB,
		&o.Template.Head,
		&o.Template.Body,
		&o.Template.Tail,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	return o, nil
}

func languageCacheKey(code string) string {
	return languageCacheKeyPrefix + code
}

func overrideCacheKey(problemID, languageID int64) string {
	return overrideCacheKeyPrefix + strconv.FormatInt(problemID, 10) + ":" + strconv.FormatInt(languageID, 10)
}
