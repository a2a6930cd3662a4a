// Package model defines data structures for the copilot service.
package model

import (
	"time"
)

// Scope identifies the tenant, user and session a request acts on.
// Every read and write path filters by it.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Conversation represents a chat session owned by a tenant user.
type Conversation struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Summary is the rolling compaction of a session's oldest messages.
type Summary struct {
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatRequest is the inbound message turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ConfirmRequest resolves a pending confirmation by id.
type ConfirmRequest struct {
	SessionID      string `json:"session_id"`
	ConfirmationID string `json:"confirmation_id"`
	Approved       bool   `json:"approved"`
}
