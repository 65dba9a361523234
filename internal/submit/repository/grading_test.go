package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selectMaxAttempt = "SELECT COALESCE(MAX(attempt), 0) FROM assignment_problem_submissions"
	insertGrading    = "INSERT INTO assignment_problem_submissions"
)

func newRecord() *AssignmentProblemSubmission {
	return &AssignmentProblemSubmission{
		SubmissionID:     "s-1",
		AssignmentUserID: 11,
		ProblemID:        42,
		Score:            70,
		MaxScore:         100,
		Status:           "PartiallyAccepted",
	}
}

func TestGradingRepository_InsertNextAttempt(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewGradingRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta(selectMaxAttempt)).
		WithArgs(int64(11), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(insertGrading)).
		WithArgs("s-1", int64(11), int64(42), 3, 70, 100, "PartiallyAccepted", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(9, 1))

	record := newRecord()
	require.NoError(t, repo.Insert(context.Background(), nil, record))
	assert.Equal(t, 3, record.Attempt)
	assert.Equal(t, int64(9), record.ID)
}

func TestGradingRepository_InsertFirstAttempt(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewGradingRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta(selectMaxAttempt)).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(insertGrading)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := newRecord()
	require.NoError(t, repo.Insert(context.Background(), nil, record))
	assert.Equal(t, 1, record.Attempt)
}

func TestGradingRepository_InsertRetriesAttemptCollision(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewGradingRepository(database)

	collision := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '11-42-3' for key 'assignment_problem_submissions.uk_aps_attempt'"}
	mock.ExpectQuery(regexp.QuoteMeta(selectMaxAttempt)).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(insertGrading)).
		WillReturnError(collision)
	mock.ExpectQuery(regexp.QuoteMeta(selectMaxAttempt)).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(insertGrading)).
		WithArgs("s-1", int64(11), int64(42), 4, 70, 100, "PartiallyAccepted", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(10, 1))

	record := newRecord()
	require.NoError(t, repo.Insert(context.Background(), nil, record))
	assert.Equal(t, 4, record.Attempt)
}

func TestGradingRepository_InsertDuplicateSubmission(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewGradingRepository(database)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 's-1' for key 'assignment_problem_submissions.uk_aps_submission'"}
	mock.ExpectQuery(regexp.QuoteMeta(selectMaxAttempt)).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(insertGrading)).
		WillReturnError(dup)

	err := repo.Insert(context.Background(), nil, newRecord())
	assert.ErrorIs(t, err, ErrGradingRecordExists)
}

func TestGradingRepository_InsertRejectsScoreAboveMax(t *testing.T) {
	database, _ := newMockDB(t)
	repo := NewGradingRepository(database)

	record := newRecord()
	record.Score = 101
	assert.Error(t, repo.Insert(context.Background(), nil, record))
}

func TestGradingRepository_GetBySubmission(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewGradingRepository(database)
	now := time.Now()

	cols := []string{"id", "submission_id", "assignment_user_id", "problem_id", "attempt", "score", "max_score", "status", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignment_problem_submissions WHERE submission_id = ?")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(9), "s-1", int64(11), int64(42), 3, 70, 100, "PartiallyAccepted", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignment_problem_submissions WHERE submission_id = ?")).
		WithArgs("s-2").
		WillReturnError(sql.ErrNoRows)

	record, err := repo.GetBySubmission(context.Background(), nil, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, record.Attempt)
	assert.Equal(t, 70, record.Score)

	_, err = repo.GetBySubmission(context.Background(), nil, "s-2")
	assert.ErrorIs(t, err, ErrGradingRecordNotFound)
}
