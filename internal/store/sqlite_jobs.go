package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

const jobColumns = `id, tenant_id, user_id, job_type, status, payload, result, error, confirmation_id, created_at, started_at, completed_at`

// CreateJob inserts a queued job. A second job for the same confirmation
// returns ErrDuplicate.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = model.JobQueued
	}
	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, NULL, NULL)
		`, j.ID, j.TenantID, j.UserID, j.JobType, string(j.Status), string(j.Payload),
			nullString(j.ConfirmationID), toNanos(j.CreatedAt))
		return err
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob returns a job owned by the tenant user.
func (s *SQLiteStore) GetJob(ctx context.Context, tenantID, userID, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE id = ? AND tenant_id = ? AND user_id = ?
	`, id, tenantID, userID)
	return scanJob(row)
}

// JobForConfirmation returns the job created for a confirmation.
func (s *SQLiteStore) JobForConfirmation(ctx context.Context, tenantID, userID, confirmationID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE confirmation_id = ? AND tenant_id = ? AND user_id = ?
	`, confirmationID, tenantID, userID)
	return scanJob(row)
}

// ClaimJob moves a queued job to running.
func (s *SQLiteStore) ClaimJob(ctx context.Context, tenantID, userID, id string, startedAt time.Time) (*model.Job, error) {
	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'running', started_at = ?
			WHERE id = ? AND tenant_id = ? AND user_id = ? AND status = 'queued'
		`, toNanos(startedAt), id, tenantID, userID)
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
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.GetJob(ctx, tenantID, userID, id)
}

// FinishJob moves a running job to a terminal status.
func (s *SQLiteStore) FinishJob(ctx context.Context, tenantID, userID, id string, status model.JobStatus, result json.RawMessage, errText string, completedAt time.Time) error {
	if !model.CanTransition(model.JobRunning, status) {
		return model.Invalid("status", fmt.Sprintf("cannot finish job as %s", status))
	}
	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, result = ?, error = ?, completed_at = ?
			WHERE id = ? AND tenant_id = ? AND user_id = ? AND status = 'running'
		`, string(status), nullJSON(result), nullString(errText), toNanos(completedAt), id, tenantID, userID)
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
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// QueuedJobs lists queued jobs across all tenants, oldest first.
func (s *SQLiteStore) QueuedJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var status, payload string
	var result, errText, confirmationID sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(&j.ID, &j.TenantID, &j.UserID, &j.JobType, &status, &payload, &result, &errText,
		&confirmationID, &createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Status = model.JobStatus(status)
	j.Payload = []byte(payload)
	if result.Valid {
		j.Result = []byte(result.String)
	}
	j.Error = errText.String
	j.ConfirmationID = confirmationID.String
	j.CreatedAt = fromNanos(createdAt)
	j.StartedAt = nullableNanos(startedAt)
	j.CompletedAt = nullableNanos(completedAt)
	return &j, nil
}
