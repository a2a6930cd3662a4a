package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// CreateProfile inserts a saved candidate profile. A second profile for the
// same confirmation returns ErrDuplicate.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	contact, err := marshalColumn(nonNilMap(p.ContactInfo))
	if err != nil {
		return err
	}
	skills, err := marshalColumn(nonNilStrings(p.Skills))
	if err != nil {
		return err
	}
	experience, err := marshalColumn(nonNilRecords(p.Experience))
	if err != nil {
		return err
	}
	projects, err := marshalColumn(nonNilRecords(p.Projects))
	if err != nil {
		return err
	}
	education, err := marshalColumn(nonNilRecords(p.Education))
	if err != nil {
		return err
	}

	err = withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO profiles (id, tenant_id, user_id, contact_info, skills, experience, projects, education, raw_text, confirmation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.TenantID, p.UserID, contact, skills, experience, projects, education,
			nullString(p.RawText), nullString(p.ConfirmationID), toNanos(p.CreatedAt))
		return err
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// ListProfiles returns the tenant user's profiles, newest first.
func (s *SQLiteStore) ListProfiles(ctx context.Context, tenantID, userID string) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, contact_info, skills, experience, projects, education, raw_text, confirmation_id, created_at
		FROM profiles
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		var p model.Profile
		var contact, skills, experience, projects, education string
		var rawText, confirmationID sql.NullString
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.TenantID, &p.UserID, &contact, &skills, &experience, &projects,
			&education, &rawText, &confirmationID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := unmarshalColumn(contact, &p.ContactInfo); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(skills, &p.Skills); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(experience, &p.Experience); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(projects, &p.Projects); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(education, &p.Education); err != nil {
			return nil, err
		}
		p.RawText = rawText.String
		p.ConfirmationID = confirmationID.String
		p.CreatedAt = fromNanos(createdAt)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

const repositoryColumns = `id, tenant_id, user_id, source_url, normalized_url, metadata, file_map, stack_signals, artifacts, created_at, updated_at`

// UpsertRepository inserts r or refreshes the row with the same normalized
// URL for the tenant user.
func (s *SQLiteStore) UpsertRepository(ctx context.Context, r *model.Repository) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	metadata, err := marshalColumn(nonNilMap(r.Metadata))
	if err != nil {
		return err
	}
	fileMap, err := marshalColumn(nonNilMap(r.FileMap))
	if err != nil {
		return err
	}
	signals, err := marshalColumn(nonNilStrings(r.StackSignals))
	if err != nil {
		return err
	}
	artifacts, err := marshalColumn(nonNilMap(r.Artifacts))
	if err != nil {
		return err
	}

	err = withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO repositories (`+repositoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, user_id, normalized_url) DO UPDATE SET
				source_url = excluded.source_url,
				metadata = excluded.metadata,
				file_map = excluded.file_map,
				stack_signals = excluded.stack_signals,
				artifacts = excluded.artifacts,
				updated_at = excluded.updated_at
		`, r.ID, r.TenantID, r.UserID, r.SourceURL, r.NormalizedURL, metadata, fileMap, signals, artifacts,
			toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}

	stored, err := s.GetRepositoryByURL(ctx, r.TenantID, r.UserID, r.NormalizedURL)
	if err != nil {
		return err
	}
	r.ID = stored.ID
	r.CreatedAt = stored.CreatedAt
	return nil
}

// GetRepositoryByURL returns the repository stored under normalizedURL.
func (s *SQLiteStore) GetRepositoryByURL(ctx context.Context, tenantID, userID, normalizedURL string) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+repositoryColumns+` FROM repositories
		WHERE tenant_id = ? AND user_id = ? AND normalized_url = ?
	`, tenantID, userID, normalizedURL)
	return scanRepository(row)
}

// ListRepositories returns the tenant user's repositories, most recently
// updated first.
func (s *SQLiteStore) ListRepositories(ctx context.Context, tenantID, userID string) ([]model.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+repositoryColumns+` FROM repositories
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY updated_at DESC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}
	return repos, nil
}

func scanRepository(row rowScanner) (*model.Repository, error) {
	var r model.Repository
	var metadata, fileMap, signals, artifacts string
	var createdAt, updatedAt int64

	err := row.Scan(&r.ID, &r.TenantID, &r.UserID, &r.SourceURL, &r.NormalizedURL, &metadata, &fileMap,
		&signals, &artifacts, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}

	if err := unmarshalColumn(metadata, &r.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(fileMap, &r.FileMap); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(signals, &r.StackSignals); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(artifacts, &r.Artifacts); err != nil {
		return nil, err
	}
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRecords(r []map[string]string) []map[string]string {
	if r == nil {
		return []map[string]string{}
	}
	return r
}
