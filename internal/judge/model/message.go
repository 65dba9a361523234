package model

import "ucode/internal/judge/limits"

// Submission kinds.
const (
	KindRun    = "run"
	KindGraded = "graded"
)

// JudgeMessage is the Kafka payload that hands a submission to the judge.
type JudgeMessage struct {
	SubmissionID string `json:"submission_id"`
	Kind         string `json:"kind"`
	ProblemID    int64  `json:"problem_id"`
	AssignmentID *int64 `json:"assignment_id,omitempty"`
	UserID       int64  `json:"user_id"`
	LanguageCode string `json:"language_code"`
	// SourceKey points at the zstd-compressed source in object storage.
	SourceKey  string `json:"source_key"`
	SourceHash string `json:"source_hash"`
	// Limits carries the effective time/memory limits and the resolved template.
	Limits   limits.Effective `json:"limits"`
	Priority int              `json:"priority"`
	QueuedAt int64            `json:"queued_at"`
}
