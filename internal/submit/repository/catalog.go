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
	defaultProblemCacheTTL = 10 * time.Minute
	problemCacheKeyPrefix  = "problem:limits:"
)

var (
	ErrProblemNotFound           = fmt.Errorf("problem %w", pkgrepo.ErrNotFound)
	ErrAssignmentProblemNotFound = fmt.Errorf("assignment problem %w", pkgrepo.ErrNotFound)
	ErrNotEnrolled               = fmt.Errorf("assignment user %w", pkgrepo.ErrNotFound)
)

// CatalogRepository reads the problem and assignment tables owned by the
// course platform.
type CatalogRepository interface {
	GetProblemLimits(ctx context.Context, problemID int64) (limits.ProblemLimits, error)
	// GetAssignmentMaxScore returns the points a problem is worth in an assignment.
	GetAssignmentMaxScore(ctx context.Context, assignmentID, problemID int64) (int, error)
	// GetAssignmentUserID returns the enrollment id of a user in an assignment.
	GetAssignmentUserID(ctx context.Context, assignmentID, userID int64) (int64, error)
}

// MySQLCatalogRepository implements CatalogRepository with MySQL. Problem
// limits are cached; enrollment is always read from the database.
type MySQLCatalogRepository struct {
	db     db.Database
	cache  cache.Cache
	policy cache.Policy
}

// NewCatalogRepository creates a catalog repository.
func NewCatalogRepository(database db.Database, cacheClient cache.Cache) *MySQLCatalogRepository {
	return &MySQLCatalogRepository{
		db:     database,
		cache:  cacheClient,
		policy: cache.Policy{TTL: defaultProblemCacheTTL, EmptyTTL: defaultLanguageCacheEmptyTTL},
	}
}

// GetProblemLimits returns the base limits of a problem.
func (r *MySQLCatalogRepository) GetProblemLimits(ctx context.Context, problemID int64) (limits.ProblemLimits, error) {
	load := func(ctx context.Context) (limits.ProblemLimits, bool, error) {
		var pl limits.ProblemLimits
		err := r.db.QueryRow(ctx, "SELECT time_limit_ms, memory_limit_kb FROM problems WHERE id = ? LIMIT 1", problemID).
			Scan(&pl.TimeLimitMs, &pl.MemoryLimitKB)
		if err != nil {
			if db.IsNoRows(err) {
				return limits.ProblemLimits{}, false, nil
			}
			return limits.ProblemLimits{}, false, err
		}
		return pl, true, nil
	}

	var (
		pl    limits.ProblemLimits
		found bool
		err   error
	)
	if r.cache != nil {
		key := problemCacheKeyPrefix + strconv.FormatInt(problemID, 10)
		pl, found, err = cache.GetWithCached(ctx, r.cache, key, r.policy, cache.JSONCodec[limits.ProblemLimits](), load)
	} else {
		pl, found, err = load(ctx)
	}
	if err != nil {
		return limits.ProblemLimits{}, err
	}
	if !found {
		return limits.ProblemLimits{}, ErrProblemNotFound
	}
	return pl, nil
}

// GetAssignmentMaxScore returns the max score of a problem in an assignment.
func (r *MySQLCatalogRepository) GetAssignmentMaxScore(ctx context.Context, assignmentID, problemID int64) (int, error) {
	var maxScore int
	err := r.db.QueryRow(
		ctx,
		"SELECT max_score FROM assignment_problems WHERE assignment_id = ? AND problem_id = ? LIMIT 1",
		assignmentID,
		problemID,
	).Scan(&maxScore)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, ErrAssignmentProblemNotFound
		}
		return 0, err
	}
	if maxScore <= 0 {
		return 0, errors.New("assignment problem max score must be positive")
	}
	return maxScore, nil
}

// GetAssignmentUserID returns the enrollment id of userID in assignmentID.
func (r *MySQLCatalogRepository) GetAssignmentUserID(ctx context.Context, assignmentID, userID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(
		ctx,
		"SELECT id FROM assignment_users WHERE assignment_id = ? AND user_id = ? LIMIT 1",
		assignmentID,
		userID,
	).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, ErrNotEnrolled
		}
		return 0, err
	}
	return id, nil
}
