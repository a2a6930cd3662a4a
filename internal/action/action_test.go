package action

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/talent-copilot/internal/ingest"
	"github.com/capitalize-ai/talent-copilot/internal/jobs"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
)

var scope = model.Scope{TenantID: "tenant-a", UserID: "user-1", SessionID: "session-1"}

type fakeSubmitter struct {
	requests []jobs.SubmitRequest
}

func (f *fakeSubmitter) Submit(_ context.Context, req jobs.SubmitRequest) (*model.Job, error) {
	f.requests = append(f.requests, req)
	return &model.Job{ID: "job-1", Status: model.JobQueued, JobType: req.JobType, Payload: req.Payload}, nil
}

type fakeFetcher struct {
	res *ingest.Result
	err error
}

func (f fakeFetcher) Fetch(context.Context, string) (*ingest.Result, error) {
	return f.res, f.err
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "action.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegistry(t *testing.T) {
	s := newStore(t)
	r := NewRegistry(NewIngestTool(&fakeSubmitter{}, fakeFetcher{}, s), NewSaveProfileTool(s))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, IngestToolName, defs[0].Name)
	assert.Equal(t, SaveProfileToolName, defs[1].Name)

	_, _, err := r.Validate("delete_everything", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestIngestValidate(t *testing.T) {
	tool := NewIngestTool(&fakeSubmitter{}, fakeFetcher{}, nil)

	canonical, err := tool.Validate(json.RawMessage(`{"source_url":"  github.com/acme/widget ","extra":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source_url":"github.com/acme/widget"}`, string(canonical))
	assert.Equal(t, "Would you like me to crawl this repository: github.com/acme/widget ? (yes/no)", tool.Prompt(canonical))

	for _, bad := range []string{``, `not json`, `{}`, `{"source_url":"acme"}`} {
		_, err := tool.Validate(json.RawMessage(bad))
		assert.ErrorIs(t, err, model.ErrValidation, bad)
	}
}

func TestIngestExecuteSubmitsJob(t *testing.T) {
	sub := &fakeSubmitter{}
	tool := NewIngestTool(sub, fakeFetcher{}, nil)
	payload := json.RawMessage(`{"source_url":"github.com/acme/widget"}`)

	out, err := tool.Execute(context.Background(), ExecContext{Scope: scope, ConfirmationID: "conf-1"}, payload)
	require.NoError(t, err)
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "Ingestion job started. Job ID: job-1", out.Message)
	assert.Equal(t, "ingest_started", out.NextAction)

	require.Len(t, sub.requests, 1)
	assert.Equal(t, model.JobTypeIngestion, sub.requests[0].JobType)
	assert.Equal(t, "conf-1", sub.requests[0].ConfirmationID)
	assert.Equal(t, "tenant-a", sub.requests[0].TenantID)
	assert.JSONEq(t, string(payload), string(sub.requests[0].Payload))
}

func TestIngestRunUpsertsRepository(t *testing.T) {
	s := newStore(t)
	fetched := &ingest.Result{
		NormalizedURL: "https://github.com/acme/widget",
		Metadata:      map[string]string{"name": "widget"},
		FileMap:       map[string]string{"main.go": "file", "cmd": "dir"},
		StackSignals:  []string{"Go"},
		Artifacts:     map[string]string{"README.md": "# Widget"},
	}
	tool := NewIngestTool(&fakeSubmitter{}, fakeFetcher{res: fetched}, s)

	job := &model.Job{TenantID: "tenant-a", UserID: "user-1", Payload: json.RawMessage(`{"source_url":"github.com/acme/widget"}`)}
	first, err := tool.Run(context.Background(), job)
	require.NoError(t, err)
	second, err := tool.Run(context.Background(), job)
	require.NoError(t, err)

	var a, b ingestResult
	require.NoError(t, json.Unmarshal(first, &a))
	require.NoError(t, json.Unmarshal(second, &b))
	assert.True(t, a.Ingested)
	assert.Equal(t, 2, a.Files)
	assert.Equal(t, a.RepositoryID, b.RepositoryID)

	repos, err := s.ListRepositories(context.Background(), "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "# Widget", repos[0].Artifacts["README.md"])
}

func TestIngestRunFetchFailure(t *testing.T) {
	tool := NewIngestTool(&fakeSubmitter{}, fakeFetcher{err: errors.New("cannot access repository")}, newStore(t))
	job := &model.Job{TenantID: "tenant-a", UserID: "user-1", Payload: json.RawMessage(`{"source_url":"acme/widget"}`)}

	_, err := tool.Run(context.Background(), job)
	assert.EqualError(t, err, "cannot access repository")
}

func TestSaveProfile(t *testing.T) {
	s := newStore(t)
	tool := NewSaveProfileTool(s)

	canonical, err := tool.Validate(json.RawMessage(`{"skills":["Go"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"contact_info":{},"skills":["Go"],"experience":[],"projects":[],"education":[]}`, string(canonical))
	assert.Equal(t, SaveProfilePrompt, tool.Prompt(canonical))

	_, err = tool.Validate(json.RawMessage(`{"skills":"Go"}`))
	assert.ErrorIs(t, err, model.ErrValidation)

	out, err := tool.Execute(context.Background(), ExecContext{Scope: scope, ConfirmationID: uuid.NewString()}, canonical)
	require.NoError(t, err)
	assert.Empty(t, out.JobID)
	assert.Equal(t, "Candidate profile saved to workspace.", out.Message)

	profiles, err := s.ListProfiles(context.Background(), "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, []string{"Go"}, profiles[0].Skills)
}

func TestSaveProfileRetriedApprovalKeepsOneRow(t *testing.T) {
	s := newStore(t)
	tool := NewSaveProfileTool(s)
	payload := json.RawMessage(`{"contact_info":{},"skills":["Go"],"experience":[],"projects":[],"education":[]}`)
	ec := ExecContext{Scope: scope, ConfirmationID: uuid.NewString()}

	for i := 0; i < 2; i++ {
		out, err := tool.Execute(context.Background(), ec, payload)
		require.NoError(t, err)
		assert.Equal(t, "candidate_saved", out.NextAction)
	}

	profiles, err := s.ListProfiles(context.Background(), "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, ec.ConfirmationID, profiles[0].ConfirmationID)

	// Saves without an approval id are never deduplicated.
	_, err = tool.Execute(context.Background(), ExecContext{Scope: scope}, payload)
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), ExecContext{Scope: scope}, payload)
	require.NoError(t, err)
	profiles, err = s.ListProfiles(context.Background(), "tenant-a", "user-1")
	require.NoError(t, err)
	assert.Len(t, profiles, 3)
}
