package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"ucode/internal/common/cache"
	"ucode/internal/judge/limits"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var languageColumnNames = []string{"id", "code", "name", "default_time_factor", "default_memory_kb", "template_head", "template_body", "template_tail"}

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLanguageRepository_GetByCodeCachesRow(t *testing.T) {
	database, mock := newMockDB(t)
	c, mr := newTestCache(t)
	repo := NewLanguageRepository(database, c)

	mock.ExpectQuery(regexp.QuoteMeta("FROM languages WHERE code = ?")).
		WithArgs("cpp").
		WillReturnRows(sqlmock.NewRows(languageColumnNames).
			AddRow(int64(1), "cpp", "C++17", 1.0, int64(262144), "#include <bits/stdc++.h>", "", ""))

	first, err := repo.GetByCode(context.Background(), "cpp")
	require.NoError(t, err)
	assert.Equal(t, "C++17", first.Name)
	assert.True(t, mr.Exists("language:code:cpp"))

	// Second read is served by the cache; sqlmock fails on an unexpected query.
	second, err := repo.GetByCode(context.Background(), "cpp")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLanguageRepository_GetByCodeMissingIsCached(t *testing.T) {
	database, mock := newMockDB(t)
	c, mr := newTestCache(t)
	repo := NewLanguageRepository(database, c)

	mock.ExpectQuery(regexp.QuoteMeta("FROM languages WHERE code = ?")).
		WithArgs("cobol").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "cobol")
	assert.ErrorIs(t, err, ErrLanguageNotFound)
	got, _ := mr.Get("language:code:cobol")
	assert.Equal(t, cache.NullCacheValue, got)

	_, err = repo.GetByCode(context.Background(), "cobol")
	assert.ErrorIs(t, err, ErrLanguageNotFound)
}

func TestLanguageRepository_SaveInvalidatesCache(t *testing.T) {
	database, mock := newMockDB(t)
	c, mr := newTestCache(t)
	repo := NewLanguageRepository(database, c)
	require.NoError(t, mr.Set("language:code:py", `{"code":"py"}`))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO languages")).
		WithArgs("py", "Python 3", 3.0, int64(524288), "", "", "").
		WillReturnResult(sqlmock.NewResult(5, 1))

	lang := &limits.LanguageConfig{Code: "py", Name: "Python 3", DefaultTimeFactor: 3.0, DefaultMemoryKB: 524288}
	id, err := repo.Save(context.Background(), lang)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int64(5), lang.ID)
	assert.False(t, mr.Exists("language:code:py"))
}

func TestLanguageRepository_GetOverrideWithNulls(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewLanguageRepository(database, nil)

	cols := []string{"problem_id", "language_id", "time_factor", "memory_kb", "template_head", "template_body", "template_tail"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM problem_languages WHERE problem_id = ? AND language_id = ?")).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(42), int64(1), 2.0, nil, nil, "solve();", nil))

	o, err := repo.GetOverride(context.Background(), 42, 1)
	require.NoError(t, err)
	require.NotNil(t, o.TimeFactor)
	assert.Equal(t, 2.0, *o.TimeFactor)
	assert.Nil(t, o.MemoryKB)
	assert.Nil(t, o.Template.Head)
	require.NotNil(t, o.Template.Body)
	assert.Equal(t, "solve();", *o.Template.Body)
}

func TestLanguageRepository_GetOverrideMissing(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewLanguageRepository(database, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM problem_languages")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetOverride(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrOverrideNotFound)
}

func TestLanguageRepository_SaveOverrideInvalidatesCache(t *testing.T) {
	database, mock := newMockDB(t)
	c, mr := newTestCache(t)
	repo := NewLanguageRepository(database, c)
	require.NoError(t, mr.Set("language:override:42:1", cache.NullCacheValue))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO problem_languages")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	factor := 2.0
	err := repo.SaveOverride(context.Background(), &limits.ProblemLanguageOverride{ProblemID: 42, LanguageID: 1, TimeFactor: &factor})
	require.NoError(t, err)
	assert.False(t, mr.Exists("language:override:42:1"))
}
