// Package service provides business logic over the copilot store.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// ConversationService handles session operations.
type ConversationService struct {
	store  store.ConversationStore
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(s store.ConversationStore, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  s,
		logger: log.Named("conversations"),
	}
}

// EnsureSession creates the session on first use.
func (s *ConversationService) EnsureSession(ctx context.Context, scope model.Scope) error {
	created, err := s.store.EnsureConversation(ctx, scope)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if created {
		metrics.ConversationsTotal.WithLabelValues(scope.TenantID).Inc()
		s.logger.Info("session created",
			zap.String("tenant_id", scope.TenantID),
			zap.String("user_id", scope.UserID),
			zap.String("session_id", scope.SessionID),
		)
	}
	return nil
}

// Get retrieves a session with its message count.
func (s *ConversationService) Get(ctx context.Context, scope model.Scope) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, scope)
}
