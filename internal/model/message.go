package model

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message. Messages are append-only;
// Sequence is the sole ordering used for windows and summaries.
type Message struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sequence  int64     `json:"sequence"`
}

// ResponseType tags a turn response.
type ResponseType string

const (
	ResponseReply        ResponseType = "reply"
	ResponseConfirmation ResponseType = "confirmation"
)

// TurnResponse is returned for every chat or confirm turn.
type TurnResponse struct {
	Type    ResponseType `json:"type"`
	Content string       `json:"content,omitempty"`

	// Confirmation fields
	Prompt         string          `json:"prompt,omitempty"`
	ConfirmationID string          `json:"confirmation_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`

	// Resolution fields
	JobID      string `json:"job_id,omitempty"`
	NextAction string `json:"next_action,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
