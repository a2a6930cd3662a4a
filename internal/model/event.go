package model

import (
	"time"
)

// EventType represents the type of lifecycle event.
type EventType string

const (
	EventConfirmationCreated  EventType = "confirmation_created"
	EventConfirmationResolved EventType = "confirmation_resolved"
	EventJobQueued            EventType = "job_queued"
	EventJobRunning           EventType = "job_running"
	EventJobSucceeded         EventType = "job_succeeded"
	EventJobFailed            EventType = "job_failed"
	EventSummaryUpdated       EventType = "summary_updated"
)

// Event records a state change for downstream consumers.
type Event struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Type      EventType         `json:"type"`
	SubjectID string            `json:"subject_id"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Sequence  uint64            `json:"sequence,omitempty"`
}
