// Package ledger owns the lifecycle of confirmations: durable approval
// requests for gated actions.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/events"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// Ledger creates, looks up and resolves confirmations.
//
// Pending confirmations older than the TTL are invisible to every lookup
// and cannot be resolved. A zero TTL disables expiry.
type Ledger struct {
	store  store.ConfirmationStore
	events events.Publisher
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// New creates a ledger.
func New(s store.ConfirmationStore, publisher events.Publisher, ttl time.Duration, log *logger.Logger) *Ledger {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Ledger{
		store:  s,
		events: publisher,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.Named("ledger"),
	}
}

// CreatePending records a new pending confirmation for toolName.
func (l *Ledger) CreatePending(ctx context.Context, scope model.Scope, toolName string, payload json.RawMessage) (*model.Confirmation, error) {
	c := &model.Confirmation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  scope.TenantID,
		UserID:    scope.UserID,
		SessionID: scope.SessionID,
		ToolName:  toolName,
		Payload:   payload,
		Status:    model.ConfirmationPending,
		CreatedAt: l.now(),
	}
	if err := l.store.CreateConfirmation(ctx, c); err != nil {
		return nil, fmt.Errorf("create confirmation: %w", err)
	}

	metrics.ConfirmationsTotal.WithLabelValues(toolName, string(model.ConfirmationPending)).Inc()
	event := events.New(model.EventConfirmationCreated, scope, c.ID)
	event.Metadata = map[string]string{"tool_name": toolName}
	l.publish(ctx, event)

	return c, nil
}

// GetPending returns the confirmation while it is still pending. Missing,
// resolved and expired confirmations all report model.ErrNotFound.
func (l *Ledger) GetPending(ctx context.Context, scope model.Scope, id string) (*model.Confirmation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.Invalid("confirmation_id", "must be a UUID")
	}
	c, err := l.store.GetPendingConfirmation(ctx, scope, id, l.notBefore())
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LatestPending returns the most recently created pending confirmation for
// the session, or nil when there is none.
func (l *Ledger) LatestPending(ctx context.Context, scope model.Scope) (*model.Confirmation, error) {
	c, err := l.store.LatestPendingConfirmation(ctx, scope, l.notBefore())
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest pending confirmation: %w", err)
	}
	return c, nil
}

// Resolve moves a pending confirmation to approved or denied, recording
// jobID when the approval started one. Only the first resolve succeeds;
// any later attempt reports model.ErrNotFound.
func (l *Ledger) Resolve(ctx context.Context, scope model.Scope, id string, approved bool, jobID string) (*model.Confirmation, error) {
	status := model.ConfirmationDenied
	if approved {
		status = model.ConfirmationApproved
	}

	c, err := l.store.ResolveConfirmation(ctx, scope, id, status, jobID, l.now(), l.notBefore())
	if err != nil {
		return nil, err
	}

	metrics.ConfirmationsTotal.WithLabelValues(c.ToolName, string(status)).Inc()
	event := events.New(model.EventConfirmationResolved, scope, c.ID)
	event.Reason = string(status)
	event.Metadata = map[string]string{"tool_name": c.ToolName}
	if jobID != "" {
		event.Metadata["job_id"] = jobID
	}
	l.publish(ctx, event)

	return c, nil
}

func (l *Ledger) notBefore() time.Time {
	if l.ttl <= 0 {
		return time.Time{}
	}
	return l.now().Add(-l.ttl)
}

func (l *Ledger) publish(ctx context.Context, event *model.Event) {
	if err := l.events.PublishEvent(ctx, event); err != nil {
		l.logger.Warn("failed to publish confirmation event",
			zap.String("confirmation_id", event.SubjectID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
