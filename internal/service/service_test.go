package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

var scope = model.Scope{TenantID: "tenant-a", UserID: "user-1", SessionID: "session-1"}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type failingPublisher struct {
	calls int
}

func (f *failingPublisher) PublishMessage(context.Context, *model.Message) (uint64, error) {
	f.calls++
	return 0, errors.New("nats unavailable")
}

func TestAppendAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	convs := NewConversationService(s, logger.NewNop())
	pub := &failingPublisher{}
	msgs := NewMessageService(s, pub, logger.NewNop())

	_, err := msgs.List(ctx, scope, 10)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, convs.EnsureSession(ctx, scope))
	require.NoError(t, convs.EnsureSession(ctx, scope))

	first, err := msgs.Append(ctx, scope, model.RoleUser, "hello")
	require.NoError(t, err)
	second, err := msgs.Append(ctx, scope, model.RoleAssistant, "hi")
	require.NoError(t, err)
	assert.Less(t, first.Sequence, second.Sequence)
	assert.Equal(t, 2, pub.calls)

	list, err := msgs.List(ctx, scope, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "hi", list.Messages[0].Content)

	conv, err := convs.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestRetrievalTexts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProfile(ctx, &model.Profile{
		ID:         "p1",
		TenantID:   "tenant-a",
		UserID:     "user-1",
		Skills:     []string{"Go", "SQL"},
		Experience: []map[string]string{{"role": "Engineer", "company": "Acme"}},
		RawText:    strings.Repeat("x", 2500),
	}))
	require.NoError(t, s.UpsertRepository(ctx, &model.Repository{
		ID:            "r1",
		TenantID:      "tenant-a",
		UserID:        "user-1",
		SourceURL:     "acme/widget",
		NormalizedURL: "https://github.com/acme/widget",
		Metadata:      map[string]string{"language": "Go", "description": ""},
		StackSignals:  []string{"Go"},
		Artifacts:     map[string]string{"README.md": "# Widget"},
	}))

	ws := NewWorkspaceService(s)
	texts, err := ws.RetrievalTexts(ctx, "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, texts, 2)

	assert.True(t, strings.HasPrefix(texts[0], "Skills: Go, SQL\nExperience: Engineer at Acme\n"))
	assert.Len(t, texts[0], len("Skills: Go, SQL\nExperience: Engineer at Acme\n")+2000)
	assert.Equal(t, "Repository: https://github.com/acme/widget\nMetadata: language=Go\nStack: Go\nREADME.md:\n# Widget", texts[1])

	other, err := ws.RetrievalTexts(ctx, "tenant-b", "user-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}
