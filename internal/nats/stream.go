package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

const (
	// StreamName is the name of the copilot stream.
	StreamName = "COPILOT"

	// SubjectPrefix is the prefix for all copilot subjects.
	SubjectPrefix = "copilot"

	// noSession stands in for the session token of user-scoped events such
	// as job transitions.
	noSession = "_"
)

// StreamManager publishes conversation messages and lifecycle events to
// JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the copilot stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Copilot conversation messages and lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return noSession
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// MessageSubject returns the subject for a message.
func MessageSubject(tenantID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, token(tenantID), token(sessionID), role)
}

// EventSubject returns the subject for an event. Events without a session
// use "_" in the session position.
func EventSubject(tenantID, sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, token(tenantID), token(sessionID), eventType)
}

// PublishMessage publishes a message to JetStream.
func (m *StreamManager) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	subject := MessageSubject(msg.TenantID, msg.SessionID, msg.Role)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(msg.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// PublishEvent publishes a lifecycle event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.Event) error {
	subject := EventSubject(event.TenantID, event.SessionID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	event.Sequence = ack.Sequence

	return nil
}

// eventFilters returns the subjects holding a session's events and the
// tenant's session-less events.
func eventFilters(tenantID, sessionID string) []string {
	return []string{
		fmt.Sprintf("%s.%s.%s.event.*", SubjectPrefix, token(tenantID), token(sessionID)),
		fmt.Sprintf("%s.%s.%s.event.*", SubjectPrefix, token(tenantID), noSession),
	}
}

// WatchEvents delivers the session's events, plus the tenant's
// session-less job events, starting after stream sequence afterSeq. It
// blocks until ctx is done or fn returns an error.
func (m *StreamManager) WatchEvents(ctx context.Context, tenantID, sessionID string, afterSeq uint64, fn func(*model.Event) error) error {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: eventFilters(tenantID, sessionID),
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSeq > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSeq + 1
	}

	cons, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer iter.Stop()
	stop := context.AfterFunc(ctx, iter.Stop)
	defer stop()

	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		var event model.Event
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			event.Sequence = meta.Sequence.Stream
		}
		if err := fn(&event); err != nil {
			return err
		}
	}
}
