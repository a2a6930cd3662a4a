package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// EnsureConversation creates the session row if it does not exist yet.
func (s *SQLiteStore) EnsureConversation(ctx context.Context, scope model.Scope) (bool, error) {
	now := toNanos(time.Now())
	var created bool
	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (tenant_id, user_id, session_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, user_id, session_id) DO NOTHING
		`, scope.TenantID, scope.UserID, scope.SessionID, now, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ensure conversation: %w", err)
	}
	return created, nil
}

// GetConversation returns the session with its message count.
func (s *SQLiteStore) GetConversation(ctx context.Context, scope model.Scope) (*model.Conversation, error) {
	var createdAt, updatedAt int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.tenant_id = c.tenant_id AND m.user_id = c.user_id AND m.session_id = c.session_id)
		FROM conversations c
		WHERE c.tenant_id = ? AND c.user_id = ? AND c.session_id = ?
	`, scope.TenantID, scope.UserID, scope.SessionID).Scan(&createdAt, &updatedAt, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &model.Conversation{
		ID:           scope.SessionID,
		TenantID:     scope.TenantID,
		UserID:       scope.UserID,
		CreatedAt:    fromNanos(createdAt),
		UpdatedAt:    fromNanos(updatedAt),
		MessageCount: count,
	}, nil
}

// AppendMessage stores msg and fills in its Sequence.
func (s *SQLiteStore) AppendMessage(ctx context.Context, scope model.Scope, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.TenantID = scope.TenantID
	msg.SessionID = scope.SessionID

	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, tenant_id, user_id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, scope.TenantID, scope.UserID, scope.SessionID, string(msg.Role), msg.Content, toNanos(msg.CreatedAt))
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = ?
			WHERE tenant_id = ? AND user_id = ? AND session_id = ?
		`, toNanos(msg.CreatedAt), scope.TenantID, scope.UserID, scope.SessionID); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		msg.Sequence = seq
		return nil
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// CountMessages returns the number of stored messages for the session.
func (s *SQLiteStore) CountMessages(ctx context.Context, scope model.Scope) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE tenant_id = ? AND user_id = ? AND session_id = ?
	`, scope.TenantID, scope.UserID, scope.SessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// RecentMessages returns the newest limit messages in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, role, content, created_at FROM (
			SELECT seq, id, role, content, created_at FROM messages
			WHERE tenant_id = ? AND user_id = ? AND session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, scope.TenantID, scope.UserID, scope.SessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return scanMessages(rows, scope)
}

// OldestMessages returns the oldest limit messages in chronological order.
func (s *SQLiteStore) OldestMessages(ctx context.Context, scope model.Scope, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, role, content, created_at FROM messages
		WHERE tenant_id = ? AND user_id = ? AND session_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, scope.TenantID, scope.UserID, scope.SessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("oldest messages: %w", err)
	}
	return scanMessages(rows, scope)
}

func scanMessages(rows *sql.Rows, scope model.Scope) ([]model.Message, error) {
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.Sequence, &m.ID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.CreatedAt = fromNanos(createdAt)
		m.TenantID = scope.TenantID
		m.SessionID = scope.SessionID
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetSummary returns the session's rolling summary.
func (s *SQLiteStore) GetSummary(ctx context.Context, scope model.Scope) (*model.Summary, error) {
	var text string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT summary_text, updated_at FROM summaries
		WHERE tenant_id = ? AND user_id = ? AND session_id = ?
	`, scope.TenantID, scope.UserID, scope.SessionID).Scan(&text, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &model.Summary{
		TenantID:  scope.TenantID,
		SessionID: scope.SessionID,
		Text:      text,
		UpdatedAt: fromNanos(updatedAt),
	}, nil
}

// UpsertSummary replaces the session's rolling summary.
func (s *SQLiteStore) UpsertSummary(ctx context.Context, scope model.Scope, text string, updatedAt time.Time) error {
	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO summaries (tenant_id, user_id, session_id, summary_text, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, user_id, session_id) DO UPDATE SET
				summary_text = excluded.summary_text,
				updated_at = excluded.updated_at
		`, scope.TenantID, scope.UserID, scope.SessionID, text, toNanos(updatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}
