package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// MessagePublisher mirrors stored messages to a downstream stream.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg *model.Message) (uint64, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishMessage(context.Context, *model.Message) (uint64, error) { return 0, nil }

// MessageService handles message operations.
type MessageService struct {
	store     store.ConversationStore
	publisher MessagePublisher
	logger    *logger.Logger
}

// NewMessageService creates a new message service. publisher may be nil.
func NewMessageService(s store.ConversationStore, publisher MessagePublisher, log *logger.Logger) *MessageService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &MessageService{
		store:     s,
		publisher: publisher,
		logger:    log.Named("messages"),
	}
}

// Append stores a message at the end of the session. The store is the
// record of truth; mirroring to the stream is best effort.
func (s *MessageService) Append(ctx context.Context, scope model.Scope, role model.Role, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  scope.TenantID,
		SessionID: scope.SessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, scope, msg); err != nil {
		return nil, fmt.Errorf("append %s message: %w", role, err)
	}

	metrics.MessagesTotal.WithLabelValues(scope.TenantID, string(role)).Inc()

	if _, err := s.publisher.PublishMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to publish message",
			zap.String("message_id", msg.ID),
			zap.String("session_id", scope.SessionID),
			zap.Error(err),
		)
	}
	return msg, nil
}

// Recent returns the newest limit messages in chronological order.
func (s *MessageService) Recent(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error) {
	return s.store.RecentMessages(ctx, scope, limit)
}

// List returns the newest messages of an existing session.
func (s *MessageService) List(ctx context.Context, scope model.Scope, limit int) (*model.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	conv, err := s.store.GetConversation(ctx, scope)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.RecentMessages(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return &model.ListMessagesResponse{
		Messages: messages,
		Total:    conv.MessageCount,
	}, nil
}
