package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ucode/internal/common/db"
	pkgrepo "ucode/pkg/repository"
)

const (
	attemptKeyName      = "uk_aps_attempt"
	maxAttemptRetries   = 3
	gradingColumns      = "id, submission_id, assignment_user_id, problem_id, attempt, score, max_score, status, created_at, updated_at"
	gradingInsertColumn = "submission_id, assignment_user_id, problem_id, attempt, score, max_score, status, created_at, updated_at"
)

var (
	ErrGradingRecordNotFound = fmt.Errorf("grading record %w", pkgrepo.ErrNotFound)
	ErrGradingRecordExists   = fmt.Errorf("grading record %w", pkgrepo.ErrAlreadyExists)
)

// AssignmentProblemSubmission is the grading record of one graded attempt
// within an assignment.
type AssignmentProblemSubmission struct {
	ID               int64     `json:"id"`
	SubmissionID     string    `json:"submission_id"`
	AssignmentUserID int64     `json:"assignment_user_id"`
	ProblemID        int64     `json:"problem_id"`
	Attempt          int       `json:"attempt"`
	Score            int       `json:"score"`
	MaxScore         int       `json:"max_score"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GradingRepository persists grading records.
type GradingRepository interface {
	// Insert stores record with the next attempt number of its
	// (assignment user, problem) pair and sets record.Attempt and record.ID.
	Insert(ctx context.Context, tx db.Transaction, record *AssignmentProblemSubmission) error
	GetBySubmission(ctx context.Context, tx db.Transaction, submissionID string) (*AssignmentProblemSubmission, error)
}

// MySQLGradingRepository implements GradingRepository with MySQL.
type MySQLGradingRepository struct {
	db db.Database
}

// NewGradingRepository creates a grading repository.
func NewGradingRepository(database db.Database) *MySQLGradingRepository {
	return &MySQLGradingRepository{db: database}
}

// Insert allocates the attempt number under a row lock and retries when a
// concurrent insert took the same number first.
func (r *MySQLGradingRepository) Insert(ctx context.Context, tx db.Transaction, record *AssignmentProblemSubmission) error {
	if record == nil {
		return errors.New("grading record is nil")
	}
	if record.SubmissionID == "" || record.AssignmentUserID <= 0 || record.ProblemID <= 0 {
		return errors.New("submissionID, assignmentUserID and problemID are required")
	}
	if record.Score < 0 || record.Score > record.MaxScore {
		return fmt.Errorf("score %d out of range [0, %d]", record.Score, record.MaxScore)
	}
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	q := db.GetQuerier(r.db, tx)
	var lastErr error
	for i := 0; i < maxAttemptRetries; i++ {
		var last int
		err := q.QueryRow(
			ctx,
			"SELECT COALESCE(MAX(attempt), 0) FROM assignment_problem_submissions WHERE assignment_user_id = ? AND problem_id = ? FOR UPDATE",
			record.AssignmentUserID,
			record.ProblemID,
		).Scan(&last)
		if err != nil {
			return err
		}

		res, err := q.Exec(
			ctx,
			"INSERT INTO assignment_problem_submissions ("+gradingInsertColumn+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			record.SubmissionID,
			record.AssignmentUserID,
			record.ProblemID,
			last+1,
			record.Score,
			record.MaxScore,
			record.Status,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			key, dup := db.UniqueViolation(err)
			if !dup {
				return err
			}
			if key != attemptKeyName && key != "assignment_problem_submissions."+attemptKeyName {
				return ErrGradingRecordExists
			}
			lastErr = err
			continue
		}
		record.Attempt = last + 1
		if id, err := res.LastInsertId(); err == nil {
			record.ID = id
		}
		return nil
	}
	return fmt.Errorf("allocate attempt number failed: %w", lastErr)
}

// GetBySubmission returns the grading record created for a submission.
func (r *MySQLGradingRepository) GetBySubmission(ctx context.Context, tx db.Transaction, submissionID string) (*AssignmentProblemSubmission, error) {
	query := "SELECT " + gradingColumns + " FROM assignment_problem_submissions WHERE submission_id = ? LIMIT 1"
	record := &AssignmentProblemSubmission{}
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID).Scan(
		&record.ID,
		&record.SubmissionID,
		&record.AssignmentUserID,
		&record.ProblemID,
		&record.Attempt,
		&record.Score,
		&record.MaxScore,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrGradingRecordNotFound
		}
		return nil, err
	}
	return record, nil
}
