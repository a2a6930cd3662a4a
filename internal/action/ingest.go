package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/capitalize-ai/talent-copilot/internal/ingest"
	"github.com/capitalize-ai/talent-copilot/internal/jobs"
	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/store"
)

// IngestToolName is the symbolic name of repository ingestion.
const IngestToolName = "ingest_repository"

// IngestPromptTemplate is the fixed confirmation prompt for ingestion.
const IngestPromptTemplate = llm.IngestPromptTemplate

// IngestPayload is the ingest_repository payload.
type IngestPayload struct {
	SourceURL string `json:"source_url"`
}

// Submitter enqueues background jobs.
type Submitter interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*model.Job, error)
}

// Fetcher reads a repository.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*ingest.Result, error)
}

// IngestTool gates repository ingestion. Execution enqueues a job; Run is
// the job handler that performs the fetch.
type IngestTool struct {
	jobs    Submitter
	fetcher Fetcher
	repos   store.WorkspaceStore
}

// NewIngestTool creates the ingestion tool.
func NewIngestTool(submitter Submitter, fetcher Fetcher, repos store.WorkspaceStore) *IngestTool {
	return &IngestTool{jobs: submitter, fetcher: fetcher, repos: repos}
}

// Name implements Tool.
func (t *IngestTool) Name() string { return IngestToolName }

// Definition implements Tool.
func (t *IngestTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        IngestToolName,
		Description: "Request approval to crawl a GitHub repository and add it to the workspace. Call this when the user wants you to use a repository; it does not crawl until the user approves.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source_url": map[string]interface{}{
					"type":        "string",
					"description": "Repository URL, e.g. https://github.com/owner/repo",
				},
			},
			"required": []string{"source_url"},
		},
	}
}

// Validate implements Tool.
func (t *IngestTool) Validate(payload json.RawMessage) (json.RawMessage, error) {
	var p IngestPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	if _, _, err := ingest.ParseRepoURL(p.SourceURL); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Prompt implements Tool.
func (t *IngestTool) Prompt(payload json.RawMessage) string {
	var p IngestPayload
	_ = json.Unmarshal(payload, &p)
	return fmt.Sprintf(IngestPromptTemplate, p.SourceURL)
}

// Execute enqueues an ingestion job and returns immediately with its id.
func (t *IngestTool) Execute(ctx context.Context, ec ExecContext, payload json.RawMessage) (*Outcome, error) {
	job, err := t.jobs.Submit(ctx, jobs.SubmitRequest{
		TenantID:       ec.Scope.TenantID,
		UserID:         ec.Scope.UserID,
		JobType:        model.JobTypeIngestion,
		Payload:        payload,
		ConfirmationID: ec.ConfirmationID,
	})
	if err != nil {
		return nil, fmt.Errorf("submit ingestion job: %w", err)
	}
	return &Outcome{
		JobID:      job.ID,
		Message:    fmt.Sprintf("Ingestion job started. Job ID: %s", job.ID),
		NextAction: "ingest_started",
	}, nil
}

// ingestResult is stored as the job result.
type ingestResult struct {
	RepoURL       string `json:"repo_url"`
	NormalizedURL string `json:"normalized_url"`
	RepositoryID  string `json:"repository_id"`
	Ingested      bool   `json:"ingested"`
	Files         int    `json:"files"`
}

// Run is the ingestion job handler: it fetches the repository and upserts
// it keyed by normalized URL.
func (t *IngestTool) Run(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p IngestPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode ingestion payload: %w", err)
	}

	res, err := t.fetcher.Fetch(ctx, p.SourceURL)
	if err != nil {
		return nil, err
	}

	repo := &model.Repository{
		ID:            uuid.Must(uuid.NewV7()).String(),
		TenantID:      job.TenantID,
		UserID:        job.UserID,
		SourceURL:     p.SourceURL,
		NormalizedURL: res.NormalizedURL,
		Metadata:      res.Metadata,
		FileMap:       res.FileMap,
		StackSignals:  res.StackSignals,
		Artifacts:     res.Artifacts,
	}
	if err := t.repos.UpsertRepository(ctx, repo); err != nil {
		return nil, fmt.Errorf("store repository: %w", err)
	}

	return json.Marshal(ingestResult{
		RepoURL:       p.SourceURL,
		NormalizedURL: repo.NormalizedURL,
		RepositoryID:  repo.ID,
		Ingested:      true,
		Files:         len(repo.FileMap),
	})
}
