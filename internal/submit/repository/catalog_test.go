package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"ucode/internal/common/mq"
	"ucode/internal/judge/limits"
	"ucode/internal/judge/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepository_GetProblemLimitsCached(t *testing.T) {
	database, mock := newMockDB(t)
	c, _ := newTestCache(t)
	repo := NewCatalogRepository(database, c)

	mock.ExpectQuery(regexp.QuoteMeta("FROM problems WHERE id = ?")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"time_limit_ms", "memory_limit_kb"}).AddRow(int64(1000), int64(65536)))

	for i := 0; i < 2; i++ {
		got, err := repo.GetProblemLimits(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, limits.ProblemLimits{TimeLimitMs: 1000, MemoryLimitKB: 65536}, got)
	}
}

func TestCatalogRepository_GetProblemLimitsMissing(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCatalogRepository(database, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM problems WHERE id = ?")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProblemLimits(context.Background(), 404)
	assert.ErrorIs(t, err, ErrProblemNotFound)
}

func TestCatalogRepository_Assignment(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCatalogRepository(database, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_score FROM assignment_problems")).
		WithArgs(int64(3), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"max_score"}).AddRow(50))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_score FROM assignment_problems")).
		WithArgs(int64(3), int64(43)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM assignment_users")).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM assignment_users")).
		WithArgs(int64(3), int64(8)).
		WillReturnError(sql.ErrNoRows)

	maxScore, err := repo.GetAssignmentMaxScore(context.Background(), 3, 42)
	require.NoError(t, err)
	assert.Equal(t, 50, maxScore)

	_, err = repo.GetAssignmentMaxScore(context.Background(), 3, 43)
	assert.ErrorIs(t, err, ErrAssignmentProblemNotFound)

	id, err := repo.GetAssignmentUserID(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	_, err = repo.GetAssignmentUserID(context.Background(), 3, 8)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

type recordingProducer struct {
	topic string
	msg   *mq.Message
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	p.topic = topic
	p.msg = message
	return p.err
}

func TestMQJudgeDispatcher_Dispatch(t *testing.T) {
	producer := &recordingProducer{}
	d := NewMQJudgeDispatcher(producer)

	msg := model.JudgeMessage{SubmissionID: "s-1", Kind: model.KindRun, ProblemID: 42, LanguageCode: "cpp"}
	require.NoError(t, d.Dispatch(context.Background(), "judge.run", msg))

	assert.Equal(t, "judge.run", producer.topic)
	assert.Equal(t, "s-1", producer.msg.ID)
	assert.Equal(t, model.KindRun, producer.msg.Headers["kind"])

	var decoded model.JudgeMessage
	require.NoError(t, json.Unmarshal(producer.msg.Body, &decoded))
	assert.Equal(t, int64(42), decoded.ProblemID)
	assert.NotZero(t, decoded.QueuedAt)
}

func TestMQJudgeDispatcher_Errors(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	d := NewMQJudgeDispatcher(producer)

	assert.Error(t, d.Dispatch(context.Background(), "", model.JudgeMessage{SubmissionID: "s-1"}))
	assert.Error(t, d.Dispatch(context.Background(), "judge.run", model.JudgeMessage{}))
	assert.ErrorContains(t, d.Dispatch(context.Background(), "judge.run", model.JudgeMessage{SubmissionID: "s-1"}), "broker down")
}
