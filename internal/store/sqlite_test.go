package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "copilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var (
	scopeA = model.Scope{TenantID: "tenant-a", UserID: "user-1", SessionID: "session-1"}
	scopeB = model.Scope{TenantID: "tenant-b", UserID: "user-1", SessionID: "session-1"}
)

func appendN(t *testing.T, s *SQLiteStore, scope model.Scope, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msg := &model.Message{ID: uuid.NewString(), Role: role, Content: string(rune('a' + i))}
		require.NoError(t, s.AppendMessage(ctx, scope, msg))
		require.NotZero(t, msg.Sequence)
	}
}

func TestEnsureConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureConversation(ctx, scopeA)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureConversation(ctx, scopeA)
	require.NoError(t, err)
	assert.False(t, created)

	appendN(t, s, scopeA, 3)
	conv, err := s.GetConversation(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.MessageCount)

	_, err = s.GetConversation(ctx, scopeB)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMessageWindows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, scopeA)
	require.NoError(t, err)
	appendN(t, s, scopeA, 6)

	recent, err := s.RecentMessages(ctx, scopeA, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, []string{"c", "d", "e", "f"}, contents(recent))

	oldest, err := s.OldestMessages(ctx, scopeA, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, contents(oldest))

	count, err := s.CountMessages(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	other, err := s.RecentMessages(ctx, scopeB, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestSummaryUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSummary(ctx, scopeA)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.UpsertSummary(ctx, scopeA, "first", time.Now()))
	require.NoError(t, s.UpsertSummary(ctx, scopeA, "second", time.Now()))

	sum, err := s.GetSummary(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, "second", sum.Text)

	_, err = s.GetSummary(ctx, scopeB)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func newConfirmation(scope model.Scope, createdAt time.Time) *model.Confirmation {
	return &model.Confirmation{
		ID:        uuid.NewString(),
		TenantID:  scope.TenantID,
		UserID:    scope.UserID,
		SessionID: scope.SessionID,
		ToolName:  "ingest_repository",
		Payload:   json.RawMessage(`{"source_url":"https://github.com/acme/widgets"}`),
		CreatedAt: createdAt,
	}
}

func TestResolveConfirmationOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newConfirmation(scopeA, time.Now())
	require.NoError(t, s.CreateConfirmation(ctx, c))

	pending, err := s.GetPendingConfirmation(ctx, scopeA, c.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationPending, pending.Status)
	assert.JSONEq(t, string(c.Payload), string(pending.Payload))

	resolved, err := s.ResolveConfirmation(ctx, scopeA, c.ID, model.ConfirmationApproved, "job-1", time.Now(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationApproved, resolved.Status)
	assert.Equal(t, "job-1", resolved.JobID)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = s.ResolveConfirmation(ctx, scopeA, c.ID, model.ConfirmationDenied, "", time.Now(), time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.GetPendingConfirmation(ctx, scopeA, c.ID, time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmationScopeIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newConfirmation(scopeA, time.Now())
	require.NoError(t, s.CreateConfirmation(ctx, c))

	_, err := s.GetPendingConfirmation(ctx, scopeB, c.ID, time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.ResolveConfirmation(ctx, scopeB, c.ID, model.ConfirmationApproved, "", time.Now(), time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	otherSession := scopeA
	otherSession.SessionID = "session-2"
	_, err = s.LatestPendingConfirmation(ctx, otherSession, time.Time{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLatestPendingConfirmation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	older := newConfirmation(scopeA, base)
	newer := newConfirmation(scopeA, base.Add(time.Second))
	require.NoError(t, s.CreateConfirmation(ctx, older))
	require.NoError(t, s.CreateConfirmation(ctx, newer))

	latest, err := s.LatestPendingConfirmation(ctx, scopeA, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = s.LatestPendingConfirmation(ctx, scopeA, time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func newJob(tenantID, userID, confirmationID string) *model.Job {
	return &model.Job{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		UserID:         userID,
		JobType:        model.JobTypeIngestion,
		Payload:        json.RawMessage(`{"source_url":"https://github.com/acme/widgets"}`),
		ConfirmationID: confirmationID,
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newJob("tenant-a", "user-1", "conf-1")
	require.NoError(t, s.CreateJob(ctx, j))

	got, err := s.GetJob(ctx, "tenant-a", "user-1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, got.Status)
	assert.Nil(t, got.StartedAt)

	_, err = s.GetJob(ctx, "tenant-b", "user-1", j.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	queued, err := s.QueuedJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	claimed, err := s.ClaimJob(ctx, "tenant-a", "user-1", j.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.JobRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	_, err = s.ClaimJob(ctx, "tenant-a", "user-1", j.ID, time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.FinishJob(ctx, "tenant-a", "user-1", j.ID, model.JobSucceeded, json.RawMessage(`{"ok":true}`), "", time.Now()))

	done, err := s.GetJob(ctx, "tenant-a", "user-1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, done.Status)
	assert.JSONEq(t, `{"ok":true}`, string(done.Result))
	require.NotNil(t, done.CompletedAt)

	err = s.FinishJob(ctx, "tenant-a", "user-1", j.ID, model.JobFailed, nil, "late", time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = s.FinishJob(ctx, "tenant-a", "user-1", j.ID, model.JobQueued, nil, "", time.Now())
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOneJobPerConfirmation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newJob("tenant-a", "user-1", "conf-1")
	require.NoError(t, s.CreateJob(ctx, first))

	err := s.CreateJob(ctx, newJob("tenant-a", "user-1", "conf-1"))
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.JobForConfirmation(ctx, "tenant-a", "user-1", "conf-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Jobs without a confirmation are not constrained.
	require.NoError(t, s.CreateJob(ctx, newJob("tenant-a", "user-1", "")))
	require.NoError(t, s.CreateJob(ctx, newJob("tenant-a", "user-1", "")))
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &model.Profile{
		ID:          uuid.NewString(),
		TenantID:    "tenant-a",
		UserID:      "user-1",
		ContactInfo: map[string]string{"email": "jane@example.com"},
		Skills:      []string{"Go", "SQL"},
		Experience:  []map[string]string{{"role": "Engineer", "company": "Acme"}},
	}
	require.NoError(t, s.CreateProfile(ctx, p))

	profiles, err := s.ListProfiles(ctx, "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, []string{"Go", "SQL"}, profiles[0].Skills)
	assert.Equal(t, "jane@example.com", profiles[0].ContactInfo["email"])
	assert.Empty(t, profiles[0].Projects)

	other, err := s.ListProfiles(ctx, "tenant-b", "user-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpsertRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &model.Repository{
		ID:            uuid.NewString(),
		TenantID:      "tenant-a",
		UserID:        "user-1",
		SourceURL:     "github.com/acme/widgets",
		NormalizedURL: "https://github.com/acme/widgets",
		Metadata:      map[string]string{"language": "Go"},
		StackSignals:  []string{"Go"},
	}
	require.NoError(t, s.UpsertRepository(ctx, r))
	firstID := r.ID

	again := &model.Repository{
		ID:            uuid.NewString(),
		TenantID:      "tenant-a",
		UserID:        "user-1",
		SourceURL:     "https://github.com/acme/widgets/",
		NormalizedURL: "https://github.com/acme/widgets",
		Metadata:      map[string]string{"language": "Rust"},
	}
	require.NoError(t, s.UpsertRepository(ctx, again))
	assert.Equal(t, firstID, again.ID)

	repos, err := s.ListRepositories(ctx, "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "Rust", repos[0].Metadata["language"])
	assert.Equal(t, "https://github.com/acme/widgets/", repos[0].SourceURL)

	_, err = s.GetRepositoryByURL(ctx, "tenant-b", "user-1", "https://github.com/acme/widgets")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	_, err = s.EnsureConversation(context.Background(), scopeA)
	require.NoError(t, err)
}
