package model

import (
	"encoding/json"
	"time"
)

// ConfirmationStatus is the lifecycle state of a confirmation.
type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationDenied   ConfirmationStatus = "denied"
)

// Confirmation is a durable record of a proposed action awaiting approval.
// Once it leaves pending it never changes again.
type Confirmation struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenant_id"`
	UserID     string             `json:"user_id"`
	SessionID  string             `json:"session_id"`
	ToolName   string             `json:"tool_name"`
	Payload    json.RawMessage    `json:"payload"`
	Status     ConfirmationStatus `json:"status"`
	JobID      string             `json:"job_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
}

// Scope returns the scope the confirmation belongs to.
func (c *Confirmation) Scope() Scope {
	return Scope{TenantID: c.TenantID, UserID: c.UserID, SessionID: c.SessionID}
}
