package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/talent-copilot/internal/action"
	"github.com/capitalize-ai/talent-copilot/internal/events/eventstest"
	"github.com/capitalize-ai/talent-copilot/internal/jobs"
	"github.com/capitalize-ai/talent-copilot/internal/ledger"
	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/memory"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/internal/store"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const crawlPrompt = "Would you like me to crawl this repository: github.com/acme/widget ? (yes/no)"

var scope = model.Scope{TenantID: "tenant-a", UserID: "user-1", SessionID: "session-1"}

type scriptedDecider struct {
	mu        sync.Mutex
	decisions []*llm.Decision
	err       error
	inputs    []llm.DecideInput
}

func (d *scriptedDecider) Decide(_ context.Context, in llm.DecideInput) (*llm.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = append(d.inputs, in)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.decisions) == 0 {
		return &llm.Decision{Reply: "ok"}, nil
	}
	next := d.decisions[0]
	d.decisions = d.decisions[1:]
	return next, nil
}

func (d *scriptedDecider) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

type recordingSummarizer struct {
	mu          sync.Mutex
	transcripts []string
}

func (s *recordingSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, transcript)
	return fmt.Sprintf("summary #%d", len(s.transcripts)), nil
}

func (s *recordingSummarizer) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcripts...)
}

type fixture struct {
	orch       *Orchestrator
	store      *store.SQLiteStore
	decider    *scriptedDecider
	summarizer *recordingSummarizer
	messages   *service.MessageService
}

func newFixture(t *testing.T, windowSize int) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log := logger.NewNop()
	publisher := &eventstest.Recorder{}

	scheduler := jobs.New(s, publisher, jobs.Config{QueueSize: 16}, log)
	ingestTool := action.NewIngestTool(scheduler, nil, s)
	scheduler.Register(model.JobTypeIngestion, ingestTool.Run)

	summarizer := &recordingSummarizer{}
	decider := &scriptedDecider{}
	messages := service.NewMessageService(s, nil, log)
	window := memory.New(s, summarizer, service.NewWorkspaceService(s), publisher, memory.Config{Size: windowSize}, log)

	orch := New(Deps{
		Sessions: service.NewConversationService(s, log),
		Messages: messages,
		Window:   window,
		Ledger:   ledger.New(s, publisher, 0, log),
		Registry: action.NewRegistry(ingestTool, action.NewSaveProfileTool(s)),
		Decider:  decider,
	}, log)
	t.Cleanup(orch.Wait)

	return &fixture{orch: orch, store: s, decider: decider, summarizer: summarizer, messages: messages}
}

func (f *fixture) say(t *testing.T, sc model.Scope, text string) *model.TurnResponse {
	t.Helper()
	resp, err := f.orch.HandleMessage(context.Background(), sc, text)
	require.NoError(t, err)
	f.orch.Wait()
	return resp
}

func (f *fixture) history(t *testing.T, sc model.Scope) []model.Message {
	t.Helper()
	msgs, err := f.store.RecentMessages(context.Background(), sc, 100)
	require.NoError(t, err)
	return msgs
}

func crawlAction(url string) *llm.Decision {
	return &llm.Decision{Action: &llm.ActionRequest{
		ToolName: action.IngestToolName,
		Payload:  json.RawMessage(`{"source_url":"` + url + `"}`),
	}}
}

func TestStructuredApprovalStartsJob(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.decider.decisions = []*llm.Decision{crawlAction("github.com/acme/widget")}

	resp := f.say(t, scope, "Please crawl github.com/acme/widget")
	require.Equal(t, model.ResponseConfirmation, resp.Type)
	assert.Equal(t, crawlPrompt, resp.Prompt)
	assert.Equal(t, action.IngestToolName, resp.ToolName)
	require.NotEmpty(t, resp.ConfirmationID)
	confirmationID := resp.ConfirmationID

	resp = f.say(t, scope, "yes")
	require.Equal(t, model.ResponseReply, resp.Type)
	require.NotEmpty(t, resp.JobID)
	assert.Equal(t, "Ingestion job started. Job ID: "+resp.JobID, resp.Content)
	assert.Equal(t, "ingest_started", resp.NextAction)
	assert.Equal(t, 1, f.decider.calls(), "a verdict is not sent to the reasoning engine")

	job, err := f.store.GetJob(ctx, scope.TenantID, scope.UserID, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Equal(t, model.JobTypeIngestion, job.JobType)
	assert.Equal(t, confirmationID, job.ConfirmationID)
	assert.JSONEq(t, `{"source_url":"github.com/acme/widget"}`, string(job.Payload))

	c, err := f.store.GetConfirmation(ctx, scope, confirmationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationApproved, c.Status)
	assert.Equal(t, resp.JobID, c.JobID)
	assert.NotNil(t, c.ResolvedAt)

	msgs := f.history(t, scope)
	require.Len(t, msgs, 3, "the prompt itself is not stored")
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "yes", msgs[1].Content)
	assert.Equal(t, resp.Content, msgs[2].Content)
}

func TestStructuredDenialRunsNothing(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.decider.decisions = []*llm.Decision{crawlAction("github.com/acme/widget")}

	first := f.say(t, scope, "Please crawl github.com/acme/widget")
	resp := f.say(t, scope, "no")
	assert.Equal(t, DenialReply, resp.Content)
	assert.Empty(t, resp.JobID)

	_, err := f.store.JobForConfirmation(ctx, scope.TenantID, scope.UserID, first.ConfirmationID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := f.store.GetConfirmation(ctx, scope, first.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationDenied, c.Status)

	repos, err := f.store.ListRepositories(ctx, scope.TenantID, scope.UserID)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestFreeTextPromptIsResolvedLikeStructured(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	structured := scope
	inferred := model.Scope{TenantID: scope.TenantID, UserID: scope.UserID, SessionID: "session-2"}

	f.decider.decisions = []*llm.Decision{crawlAction("github.com/acme/widget")}
	f.say(t, structured, "crawl it")
	viaLedger := f.say(t, structured, "yes")

	f.decider.decisions = []*llm.Decision{{Reply: crawlPrompt}}
	reply := f.say(t, inferred, "crawl it")
	require.Equal(t, model.ResponseReply, reply.Type)
	viaText := f.say(t, inferred, "Y")
	require.NotEmpty(t, viaText.JobID)
	assert.Equal(t, viaLedger.NextAction, viaText.NextAction)
	assert.Equal(t, 2, f.decider.calls())

	a, err := f.store.GetJob(ctx, scope.TenantID, scope.UserID, viaLedger.JobID)
	require.NoError(t, err)
	b, err := f.store.GetJob(ctx, scope.TenantID, scope.UserID, viaText.JobID)
	require.NoError(t, err)
	assert.Equal(t, a.JobType, b.JobType)
	assert.Equal(t, a.Status, b.Status)
	assert.JSONEq(t, string(a.Payload), string(b.Payload))
	assert.Empty(t, b.ConfirmationID)
}

func TestFreeTextDenial(t *testing.T) {
	f := newFixture(t, 10)
	f.decider.decisions = []*llm.Decision{{Reply: crawlPrompt}}
	f.say(t, scope, "crawl it")

	resp := f.say(t, scope, "n")
	assert.Equal(t, DenialReply, resp.Content)
	assert.Empty(t, resp.JobID)
	assert.Equal(t, 1, f.decider.calls())
}

func TestVerdictWithoutPromptGoesToReasoner(t *testing.T) {
	f := newFixture(t, 10)
	f.decider.decisions = []*llm.Decision{{Reply: "Yes to what?"}}

	resp := f.say(t, scope, "yes")
	assert.Equal(t, "Yes to what?", resp.Content)
	assert.Equal(t, 1, f.decider.calls())
}

func TestOtherMessageLeavesConfirmationPending(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.decider.decisions = []*llm.Decision{crawlAction("github.com/acme/widget"), {Reply: "It is a widget library."}}

	first := f.say(t, scope, "crawl github.com/acme/widget")
	resp := f.say(t, scope, "what is it?")
	assert.Equal(t, "It is a widget library.", resp.Content)

	c, err := f.store.GetConfirmation(ctx, scope, first.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationPending, c.Status)

	resp = f.say(t, scope, "yes")
	assert.NotEmpty(t, resp.JobID)
}

func TestHandleConfirmation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.decider.decisions = []*llm.Decision{crawlAction("https://github.com/acme/widget")}

	first := f.say(t, scope, "crawl it")

	resp, err := f.orch.HandleConfirmation(ctx, scope, first.ConfirmationID, true)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)

	_, err = f.orch.HandleConfirmation(ctx, scope, first.ConfirmationID, true)
	assert.ErrorIs(t, err, model.ErrNotFound, "a resolved confirmation reads as not found")

	_, err = f.orch.HandleConfirmation(ctx, scope, "not-a-uuid", true)
	assert.ErrorIs(t, err, model.ErrValidation)

	other := model.Scope{TenantID: "tenant-b", UserID: scope.UserID, SessionID: scope.SessionID}
	f.decider.decisions = []*llm.Decision{crawlAction("acme/widget")}
	second := f.say(t, scope, "crawl again")
	_, err = f.orch.HandleConfirmation(ctx, other, second.ConfirmationID, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProposeSaveProfile(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	resp, err := f.orch.Propose(ctx, scope, action.SaveProfileToolName, json.RawMessage(`{"skills":["Go"]}`))
	require.NoError(t, err)
	assert.Equal(t, model.ResponseConfirmation, resp.Type)
	assert.Equal(t, action.SaveProfilePrompt, resp.Prompt)

	done, err := f.orch.HandleConfirmation(ctx, scope, resp.ConfirmationID, true)
	require.NoError(t, err)
	f.orch.Wait()
	assert.Equal(t, "Candidate profile saved to workspace.", done.Content)
	assert.Equal(t, "candidate_saved", done.NextAction)
	assert.Empty(t, done.JobID)

	profiles, err := f.store.ListProfiles(ctx, scope.TenantID, scope.UserID)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, []string{"Go"}, profiles[0].Skills)
}

func TestReasonerFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.decider.err = fmt.Errorf("%w: openai: timeout", model.ErrExternalService)

	_, err := f.orch.HandleMessage(context.Background(), scope, "hello")
	assert.ErrorIs(t, err, model.ErrExternalService)

	msgs := f.history(t, scope)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestInvalidActionIsExternalFailure(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.decider.decisions = []*llm.Decision{
		{Action: &llm.ActionRequest{ToolName: action.IngestToolName, Payload: json.RawMessage(`{}`)}},
		{Action: &llm.ActionRequest{ToolName: "delete_everything", Payload: json.RawMessage(`{}`)}},
	}

	for i := 0; i < 2; i++ {
		_, err := f.orch.HandleMessage(ctx, scope, "do it")
		assert.ErrorIs(t, err, model.ErrExternalService)
	}

	pending, err := f.store.LatestPendingConfirmation(ctx, scope, time.Time{})
	assert.Nil(t, pending)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.orch.HandleMessage(ctx, scope, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.orch.HandleMessage(ctx, model.Scope{TenantID: "t", UserID: "u"}, "hi")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 0, f.decider.calls())
}

func TestCompactionAfterThreshold(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.decider.decisions = []*llm.Decision{{Reply: "r1"}, {Reply: "r2"}, {Reply: "r3"}}
	f.say(t, scope, "m1")
	f.say(t, scope, "m2")
	assert.Empty(t, f.summarizer.all(), "four messages do not exceed twice the window")
	_, err := f.store.GetSummary(ctx, scope)
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.say(t, scope, "m3")
	transcripts := f.summarizer.all()
	require.Len(t, transcripts, 1)
	assert.Equal(t, "user: m1\nassistant: r1", transcripts[0])

	summary, err := f.store.GetSummary(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "summary #1", summary.Text)

	f.decider.decisions = []*llm.Decision{{Reply: "r4"}}
	f.say(t, scope, "m4")
	last := f.decider.inputs[len(f.decider.inputs)-1]
	assert.Equal(t, "summary #1", last.Summary)
	assert.Len(t, last.History, 2)
}

func TestWorkspaceTextReachesReasoner(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.store.CreateProfile(ctx, &model.Profile{
		ID:       "p1",
		TenantID: scope.TenantID,
		UserID:   scope.UserID,
		Skills:   []string{"Go"},
	}))

	f.say(t, scope, "who do we have?")
	require.Equal(t, 1, f.decider.calls())
	assert.Equal(t, "Skills: Go", f.decider.inputs[0].Workspace)
}
