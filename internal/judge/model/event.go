package model

import "ucode/internal/judge/lifecycle"

// StatusEventType distinguishes the two events a judge emits per submission.
type StatusEventType string

const (
	StatusEventRunning StatusEventType = "running"
	StatusEventFinal   StatusEventType = "final"
)

// StatusEvent is published by the judge on the status topic.
type StatusEvent struct {
	Type         StatusEventType   `json:"type"`
	SubmissionID string            `json:"submission_id"`
	Report       *lifecycle.Report `json:"report,omitempty"`
	CreatedAt    int64             `json:"created_at"`
}
