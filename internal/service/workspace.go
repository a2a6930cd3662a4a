package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
)

const (
	profileRawTextLimit = 2000
	artifactLimit       = 3000
)

// WorkspaceService exposes saved profiles and repositories.
type WorkspaceService struct {
	store store.WorkspaceStore
}

// NewWorkspaceService creates a new workspace service.
func NewWorkspaceService(s store.WorkspaceStore) *WorkspaceService {
	return &WorkspaceService{store: s}
}

// Snapshot lists everything the tenant user has saved.
func (s *WorkspaceService) Snapshot(ctx context.Context, tenantID, userID string) (*model.WorkspaceSnapshot, error) {
	profiles, err := s.store.ListProfiles(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	repos, err := s.store.ListRepositories(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return &model.WorkspaceSnapshot{Profiles: profiles, Repositories: repos}, nil
}

// RetrievalTexts renders saved entities as plain text for the reasoning
// engine's context, profiles first.
func (s *WorkspaceService) RetrievalTexts(ctx context.Context, tenantID, userID string) ([]string, error) {
	snap, err := s.Snapshot(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(snap.Profiles)+len(snap.Repositories))
	for _, p := range snap.Profiles {
		if t := profileText(p); t != "" {
			texts = append(texts, t)
		}
	}
	for _, r := range snap.Repositories {
		texts = append(texts, repositoryText(r))
	}
	return texts, nil
}

func profileText(p model.Profile) string {
	var parts []string
	if len(p.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(p.Skills, ", "))
	}
	for _, e := range p.Experience {
		parts = append(parts, fmt.Sprintf("Experience: %s at %s", e["role"], e["company"]))
	}
	if p.RawText != "" {
		parts = append(parts, truncate(p.RawText, profileRawTextLimit))
	}
	return strings.Join(parts, "\n")
}

func repositoryText(r model.Repository) string {
	parts := []string{"Repository: " + r.NormalizedURL}
	if len(r.Metadata) > 0 {
		keys := sortedKeys(r.Metadata)
		meta := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := r.Metadata[k]; v != "" {
				meta = append(meta, k+"="+v)
			}
		}
		parts = append(parts, "Metadata: "+strings.Join(meta, ", "))
	}
	if len(r.StackSignals) > 0 {
		parts = append(parts, "Stack: "+strings.Join(r.StackSignals, ", "))
	}
	for _, path := range sortedKeys(r.Artifacts) {
		parts = append(parts, path+":\n"+truncate(r.Artifacts[path], artifactLimit))
	}
	return strings.Join(parts, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
