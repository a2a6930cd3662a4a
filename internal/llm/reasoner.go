package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

// IngestPromptTemplate is the fixed confirmation prompt for repository
// ingestion. A model that cannot call tools is told to ask with it, and the
// orchestrator recovers the URL from the echoed text.
const IngestPromptTemplate = "Would you like me to crawl this repository: %s ? (yes/no)"

// SystemPrompt is the instruction set sent with every decision.
var SystemPrompt = `You are TalentCopilot, an assistant for recruiting teams. You help with:
- Answering questions about candidate experience and skills, using workspace context when available.
- Answering questions about ingested GitHub repositories (structure, stack, quality).
- Generating interview questions and evaluation notes.

Rules:
1. When the user wants you to use a GitHub repository, call ingest_repository with its URL. Never claim to have crawled it yourself.
2. If you cannot call ingest_repository, reply with exactly this sentence and nothing else, with the repository URL in place of <repo_url>:
` + fmt.Sprintf(IngestPromptTemplate, "<repo_url>") + `
3. When the user asks to save a parsed candidate profile, call save_profile with the structured profile.
4. Actions that change the workspace always require the user's approval. Request them through a tool call and never perform them directly.
5. For normal chat, just respond in a helpful, professional tone.`

// SummaryInstruction is prepended to compaction transcripts.
const SummaryInstruction = "Summarize this conversation history in a short paragraph for context. Keep only key facts, decisions, and topics."

// DecideInput is the bounded context for one decision.
type DecideInput struct {
	Summary   string
	Workspace string
	History   []ChatMessage
}

// ActionRequest is a gated action the model wants to perform.
type ActionRequest struct {
	ToolName string
	Payload  json.RawMessage
}

// Decision is either a direct reply or an action request.
type Decision struct {
	Reply  string
	Action *ActionRequest
}

// Reasoner turns conversation context into decisions and summaries.
// It never executes side effects.
type Reasoner struct {
	client  Client
	model   string
	tools   []ToolDefinition
	timeout time.Duration
	logger  *logger.Logger
}

// NewReasoner creates a reasoner over client offering tools to the model.
func NewReasoner(client Client, modelName string, tools []ToolDefinition, timeout time.Duration, log *logger.Logger) *Reasoner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reasoner{
		client:  client,
		model:   modelName,
		tools:   tools,
		timeout: timeout,
		logger:  log.Named("reasoner"),
	}
}

// Decide asks the model for the next step. Any provider failure is
// reported as model.ErrExternalService.
func (r *Reasoner) Decide(ctx context.Context, in DecideInput) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.complete(ctx, "decide", &CompletionRequest{
		Model:       r.model,
		System:      buildSystem(in.Summary, in.Workspace),
		Messages:    in.History,
		Tools:       r.tools,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	for _, call := range resp.ToolCalls {
		if r.offers(call.Name) {
			return &Decision{Action: &ActionRequest{ToolName: call.Name, Payload: call.Arguments}}, nil
		}
		r.logger.Warn("model called unknown tool", zap.String("tool", call.Name))
	}

	return &Decision{Reply: strings.TrimSpace(resp.Content)}, nil
}

// Summarize condenses a rendered transcript into a short paragraph.
func (r *Reasoner) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := r.complete(ctx, "summarize", &CompletionRequest{
		Model: r.model,
		Messages: []ChatMessage{
			{Role: "user", Content: SummaryInstruction + "\n\n" + transcript},
		},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (r *Reasoner) complete(ctx context.Context, purpose string, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := r.client.Complete(ctx, req)
	duration := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordLLMCall(r.client.Name(), purpose, "error", duration, req.Model, 0, 0)
		r.logger.Error("llm call failed",
			zap.String("purpose", purpose),
			zap.String("provider", r.client.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", model.ErrExternalService, r.client.Name(), err)
	}
	metrics.RecordLLMCall(r.client.Name(), purpose, "ok", duration, resp.Model, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func (r *Reasoner) offers(name string) bool {
	for _, t := range r.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func buildSystem(summary, workspace string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	if summary != "" {
		b.WriteString("\n\nSession summary (earlier context):\n")
		b.WriteString(summary)
	}
	if workspace != "" {
		b.WriteString("\n\nWorkspace context (candidates and repos):\n")
		b.WriteString(workspace)
	}
	return b.String()
}
