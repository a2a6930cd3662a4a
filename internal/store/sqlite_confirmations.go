package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

const confirmationColumns = `id, tenant_id, user_id, session_id, tool_name, payload, status, job_id, created_at, resolved_at`

// CreateConfirmation inserts a pending confirmation.
func (s *SQLiteStore) CreateConfirmation(ctx context.Context, c *model.Confirmation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.ConfirmationPending
	}
	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO confirmations (`+confirmationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		`, c.ID, c.TenantID, c.UserID, c.SessionID, c.ToolName, string(c.Payload), string(c.Status),
			nullString(c.JobID), toNanos(c.CreatedAt))
		return err
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create confirmation: %w", err)
	}
	return nil
}

// GetConfirmation returns a confirmation in any status.
func (s *SQLiteStore) GetConfirmation(ctx context.Context, scope model.Scope, id string) (*model.Confirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+confirmationColumns+` FROM confirmations
		WHERE id = ? AND tenant_id = ? AND user_id = ? AND session_id = ?
	`, id, scope.TenantID, scope.UserID, scope.SessionID)
	return scanConfirmation(row)
}

// GetPendingConfirmation returns the confirmation only while it is pending
// and not older than notBefore.
func (s *SQLiteStore) GetPendingConfirmation(ctx context.Context, scope model.Scope, id string, notBefore time.Time) (*model.Confirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+confirmationColumns+` FROM confirmations
		WHERE id = ? AND tenant_id = ? AND user_id = ? AND session_id = ?
			AND status = 'pending' AND created_at >= ?
	`, id, scope.TenantID, scope.UserID, scope.SessionID, cutoff(notBefore))
	return scanConfirmation(row)
}

// LatestPendingConfirmation returns the most recently created pending
// confirmation for the session.
func (s *SQLiteStore) LatestPendingConfirmation(ctx context.Context, scope model.Scope, notBefore time.Time) (*model.Confirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+confirmationColumns+` FROM confirmations
		WHERE tenant_id = ? AND user_id = ? AND session_id = ?
			AND status = 'pending' AND created_at >= ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, scope.TenantID, scope.UserID, scope.SessionID, cutoff(notBefore))
	return scanConfirmation(row)
}

// ResolveConfirmation moves a pending confirmation to status.
func (s *SQLiteStore) ResolveConfirmation(ctx context.Context, scope model.Scope, id string, status model.ConfirmationStatus, jobID string, resolvedAt, notBefore time.Time) (*model.Confirmation, error) {
	if status != model.ConfirmationApproved && status != model.ConfirmationDenied {
		return nil, model.Invalid("status", "must be approved or denied")
	}

	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE confirmations SET status = ?, job_id = ?, resolved_at = ?
			WHERE id = ? AND tenant_id = ? AND user_id = ? AND session_id = ?
				AND status = 'pending' AND created_at >= ?
		`, string(status), nullString(jobID), toNanos(resolvedAt),
			id, scope.TenantID, scope.UserID, scope.SessionID, cutoff(notBefore))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve confirmation: %w", err)
	}

	return s.GetConfirmation(ctx, scope, id)
}

func cutoff(notBefore time.Time) int64 {
	if notBefore.IsZero() {
		return 0
	}
	return toNanos(notBefore)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfirmation(row rowScanner) (*model.Confirmation, error) {
	var c model.Confirmation
	var payload, status string
	var jobID sql.NullString
	var createdAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &c.SessionID, &c.ToolName, &payload, &status,
		&jobID, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan confirmation: %w", err)
	}

	c.Payload = []byte(payload)
	c.Status = model.ConfirmationStatus(status)
	c.JobID = jobID.String
	c.CreatedAt = fromNanos(createdAt)
	c.ResolvedAt = nullableNanos(resolvedAt)
	return &c, nil
}
