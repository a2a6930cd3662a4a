package model

import (
	"time"
)

// Profile is a saved candidate profile.
type Profile struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	UserID      string              `json:"user_id"`
	ContactInfo map[string]string   `json:"contact_info"`
	Skills      []string            `json:"skills"`
	Experience  []map[string]string `json:"experience"`
	Projects    []map[string]string `json:"projects"`
	Education   []map[string]string `json:"education"`
	RawText     string              `json:"raw_text,omitempty"`

	// ConfirmationID is the approval that saved the profile, if any.
	ConfirmationID string    `json:"confirmation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository is an ingested source repository keyed by its normalized URL.
type Repository struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	UserID        string            `json:"user_id"`
	SourceURL     string            `json:"source_url"`
	NormalizedURL string            `json:"normalized_url"`
	Metadata      map[string]string `json:"metadata"`
	FileMap       map[string]string `json:"file_map"`
	StackSignals  []string          `json:"stack_signals"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// WorkspaceSnapshot lists everything a tenant user has saved.
type WorkspaceSnapshot struct {
	Profiles     []Profile    `json:"profiles"`
	Repositories []Repository `json:"repositories"`
}
