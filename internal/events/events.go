// Package events defines the lifecycle event sink used by the core
// components.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// Publisher delivers lifecycle events downstream. Delivery is best effort:
// callers log failures and carry on.
type Publisher interface {
	PublishEvent(ctx context.Context, event *model.Event) error
}

// Nop discards every event. It is used when NATS is not configured.
type Nop struct{}

// PublishEvent implements Publisher.
func (Nop) PublishEvent(context.Context, *model.Event) error { return nil }

// New builds an event for scope about subjectID.
func New(eventType model.EventType, scope model.Scope, subjectID string) *model.Event {
	return &model.Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  scope.TenantID,
		UserID:    scope.UserID,
		SessionID: scope.SessionID,
		Type:      eventType,
		SubjectID: subjectID,
		CreatedAt: time.Now().UTC(),
	}
}
