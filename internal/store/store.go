// Package store provides data persistence interfaces and implementations.
//
// Every method takes the tenant/user(/session) scope of the caller and
// filters by it. Lookups outside that scope report model.ErrNotFound.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("duplicate record")

// ConversationStore persists sessions and their append-only messages.
type ConversationStore interface {
	// EnsureConversation creates the session row if it does not exist yet.
	EnsureConversation(ctx context.Context, scope model.Scope) (created bool, err error)

	// GetConversation returns the session with its message count.
	GetConversation(ctx context.Context, scope model.Scope) (*model.Conversation, error)

	// AppendMessage stores msg and fills in its Sequence.
	AppendMessage(ctx context.Context, scope model.Scope, msg *model.Message) error

	// CountMessages returns the number of stored messages for the session.
	CountMessages(ctx context.Context, scope model.Scope) (int, error)

	// RecentMessages returns the newest limit messages in chronological order.
	RecentMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error)

	// OldestMessages returns the oldest limit messages in chronological order.
	OldestMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error)
}

// SummaryStore persists the one rolling summary per session.
type SummaryStore interface {
	GetSummary(ctx context.Context, scope model.Scope) (*model.Summary, error)
	UpsertSummary(ctx context.Context, scope model.Scope, text string, updatedAt time.Time) error
}

// ConfirmationStore persists approval requests.
//
// notBefore excludes pending rows created earlier than it; the zero time
// disables the filter.
type ConfirmationStore interface {
	CreateConfirmation(ctx context.Context, c *model.Confirmation) error
	GetConfirmation(ctx context.Context, scope model.Scope, id string) (*model.Confirmation, error)
	GetPendingConfirmation(ctx context.Context, scope model.Scope, id string, notBefore time.Time) (*model.Confirmation, error)
	LatestPendingConfirmation(ctx context.Context, scope model.Scope, notBefore time.Time) (*model.Confirmation, error)

	// ResolveConfirmation moves a pending row to status. It is a
	// compare-and-swap on status: only the first caller to observe pending
	// succeeds, later callers get model.ErrNotFound.
	ResolveConfirmation(ctx context.Context, scope model.Scope, id string, status model.ConfirmationStatus, jobID string, resolvedAt, notBefore time.Time) (*model.Confirmation, error)
}

// JobStore persists background jobs, scoped by tenant and user.
type JobStore interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, tenantID, userID, id string) (*model.Job, error)
	JobForConfirmation(ctx context.Context, tenantID, userID, confirmationID string) (*model.Job, error)

	// ClaimJob moves a queued job to running. A job that is not queued
	// reports model.ErrNotFound.
	ClaimJob(ctx context.Context, tenantID, userID, id string, startedAt time.Time) (*model.Job, error)

	// FinishJob moves a running job to succeeded or failed.
	FinishJob(ctx context.Context, tenantID, userID, id string, status model.JobStatus, result json.RawMessage, errText string, completedAt time.Time) error

	// QueuedJobs lists jobs still waiting for a worker, oldest first. It is
	// the only cross-tenant read and is used for startup recovery.
	QueuedJobs(ctx context.Context, limit int) ([]model.Job, error)
}

// WorkspaceStore persists the domain entities produced by approved actions.
type WorkspaceStore interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	ListProfiles(ctx context.Context, tenantID, userID string) ([]model.Profile, error)

	// UpsertRepository inserts r or updates the row with the same
	// normalized URL, filling r.ID and r.CreatedAt from the stored row.
	UpsertRepository(ctx context.Context, r *model.Repository) error
	GetRepositoryByURL(ctx context.Context, tenantID, userID, normalizedURL string) (*model.Repository, error)
	ListRepositories(ctx context.Context, tenantID, userID string) ([]model.Repository, error)
}

// Repository aggregates every store the service needs.
type Repository interface {
	ConversationStore
	SummaryStore
	ConfirmationStore
	JobStore
	WorkspaceStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
