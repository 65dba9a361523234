package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ucode/internal/common/db"
	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/scoring"
	pkgrepo "ucode/pkg/repository"
)

var (
	ErrSubmissionNotFound = fmt.Errorf("submission %w", pkgrepo.ErrNotFound)
	// ErrSubmissionTerminal is returned when a write targets a submission that
	// already reached a terminal status.
	ErrSubmissionTerminal = fmt.Errorf("submission is terminal: %w", pkgrepo.ErrConflict)
)

// Submission represents one stored submission, run or graded.
type Submission struct {
	ID           string
	Kind         string
	UserID       int64
	ProblemID    int64
	AssignmentID *int64
	LanguageCode string
	SourceCode   string
	SourceKey    string
	SourceHash   string

	Status          lifecycle.Status
	TotalTestCases  int
	PassedTestCases int
	TimeMs          int64
	MemoryKB        int64
	ErrorMessage    *string
	CompareResult   *string
	Score           *int
	MaxScore        *int
	Verdict         *string

	TimeLimitMs   int64
	MemoryLimitKB int64
	TimeFactor    float64

	CreatedAt   time.Time
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SubmissionFilter narrows a listing. Zero fields do not filter.
type SubmissionFilter struct {
	UserID    int64
	ProblemID int64
	Kind      string
}

// ResultUpdate is the terminal state written by ApplyResult.
type ResultUpdate struct {
	Outcome     lifecycle.Outcome
	Score       scoring.Score
	CompletedAt time.Time
}

// SubmissionRepository defines submission persistence interfaces.
// Reads always go to the database: a cached non-terminal row could hide a
// terminal write from a poller.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	List(ctx context.Context, filter SubmissionFilter, opts pkgrepo.ListOptions) ([]*Submission, int64, error)
	// MarkRunning moves a pending submission to running. It reports false when
	// the submission was not pending.
	MarkRunning(ctx context.Context, tx db.Transaction, submissionID string, at time.Time) (bool, error)
	// ApplyResult writes a terminal state to a pending or running submission.
	ApplyResult(ctx context.Context, tx db.Transaction, submissionID string, update ResultUpdate) error
	Delete(ctx context.Context, tx db.Transaction, submissionID string) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "id, kind, user_id, problem_id, assignment_id, language_code, source_code, source_key, source_hash, " +
	"status, total_test_cases, passed_test_cases, time_ms, memory_kb, error_message, compare_result, score, max_score, verdict, " +
	"time_limit_ms, memory_limit_kb, time_factor, created_at, submitted_at, started_at, completed_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.LanguageCode == "" {
		return errors.New("languageCode is required")
	}
	if submission.SourceKey == "" || submission.SourceHash == "" {
		return errors.New("source key and hash are required")
	}
	if submission.Status == "" {
		submission.Status = lifecycle.Pending
	}

	query := `
		INSERT INTO submissions
		(id, kind, user_id, problem_id, assignment_id, language_code, source_code, source_key, source_hash,
		 status, time_limit_ms, memory_limit_kb, time_factor, created_at, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.Kind,
		submission.UserID,
		submission.ProblemID,
		submission.AssignmentID,
		submission.LanguageCode,
		submission.SourceCode,
		submission.SourceKey,
		submission.SourceHash,
		string(submission.Status),
		submission.TimeLimitMs,
		submission.MemoryLimitKB,
		submission.TimeFactor,
		submission.CreatedAt,
		submission.SubmittedAt,
	)
	return err
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	submission, err := scanSubmission(db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// List returns one page of submissions, newest first, and the total match count.
func (r *MySQLSubmissionRepository) List(ctx context.Context, filter SubmissionFilter, opts pkgrepo.ListOptions) ([]*Submission, int64, error) {
	where, args := filter.clause()

	var total int64
	countQuery := "SELECT COUNT(*) FROM submissions" + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || int64(opts.Offset()) >= total {
		return []*Submission{}, total, nil
	}

	query := "SELECT " + submissionColumns + " FROM submissions" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(ctx, query, append(args, opts.Limit(), opts.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*Submission, 0, opts.Limit())
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkRunning moves a pending submission to running.
func (r *MySQLSubmissionRepository) MarkRunning(ctx context.Context, tx db.Transaction, submissionID string, at time.Time) (bool, error) {
	query := "UPDATE submissions SET status = ?, started_at = ? WHERE id = ? AND status = ?"
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, string(lifecycle.Running), at, submissionID, string(lifecycle.Pending))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ApplyResult writes a terminal state. A submission that is already terminal is
// left untouched and ErrSubmissionTerminal is returned.
func (r *MySQLSubmissionRepository) ApplyResult(ctx context.Context, tx db.Transaction, submissionID string, update ResultUpdate) error {
	if !update.Outcome.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", lifecycle.ErrInvalidTransition, update.Outcome.Status)
	}
	o := update.Outcome
	var errorMessage *string
	if o.ErrorMessage != "" {
		errorMessage = &o.ErrorMessage
	}
	verdict := string(update.Score.Verdict)

	query := `
		UPDATE submissions SET
			status = ?, total_test_cases = ?, passed_test_cases = ?, time_ms = ?, memory_kb = ?,
			error_message = ?, compare_result = ?, score = ?, max_score = ?, verdict = ?,
			started_at = COALESCE(started_at, ?), completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	q := db.GetQuerier(r.db, tx)
	res, err := q.Exec(
		ctx,
		query,
		string(o.Status),
		o.TotalTestCases,
		o.PassedTestCases,
		o.TimeMs,
		o.MemoryKB,
		errorMessage,
		o.CompareResult,
		update.Score.Score,
		update.Score.MaxScore,
		verdict,
		update.CompletedAt,
		update.CompletedAt,
		submissionID,
		string(lifecycle.Pending),
		string(lifecycle.Running),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var status string
	if err := q.QueryRow(ctx, "SELECT status FROM submissions WHERE id = ?", submissionID).Scan(&status); err != nil {
		if db.IsNoRows(err) {
			return ErrSubmissionNotFound
		}
		return err
	}
	return ErrSubmissionTerminal
}

// Delete removes a submission. Grading records go with it through the foreign key.
func (r *MySQLSubmissionRepository) Delete(ctx context.Context, tx db.Transaction, submissionID string) error {
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM submissions WHERE id = ?", submissionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (f SubmissionFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.UserID > 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ProblemID > 0 {
		conds = append(conds, "problem_id = ?")
		args = append(args, f.ProblemID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanSubmission(row db.Row) (*Submission, error) {
	s := &Submission{}
	var status string
	if err := row.Scan(
		&s.ID,
		&s.Kind,
		&s.UserID,
		&s.ProblemID,
		&s.AssignmentID,
		&s.LanguageCode,
		&s.SourceCode,
		&s.SourceKey,
		&s.SourceHash,
		&status,
		&s.TotalTestCases,
		&s.PassedTestCases,
		&s.TimeMs,
		&s.MemoryKB,
		&s.ErrorMessage,
		&s.CompareResult,
		&s.Score,
		&s.MaxScore,
		&s.Verdict,
		&s.TimeLimitMs,
		&s.MemoryLimitKB,
		&s.TimeFactor,
		&s.CreatedAt,
		&s.SubmittedAt,
		&s.StartedAt,
		&s.CompletedAt,
	); err != nil {
		return nil, err
	}
	s.Status = lifecycle.Status(status)
	return s, nil
}
