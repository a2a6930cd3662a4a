// Package action maps symbolic tool names to gated executors.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// ExecContext carries the caller scope and the approval an execution
// belongs to.
type ExecContext struct {
	Scope          model.Scope
	ConfirmationID string
}

// Outcome is the result of executing an approved action.
type Outcome struct {
	JobID      string
	Message    string
	NextAction string
}

// Tool is a gated action. Validate is called before a confirmation is
// created; Execute only after it is approved.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition

	// Validate checks payload and returns its canonical form.
	Validate(payload json.RawMessage) (json.RawMessage, error)

	// Prompt is the yes/no question shown to the user for payload.
	Prompt(payload json.RawMessage) string

	Execute(ctx context.Context, ec ExecContext, payload json.RawMessage) (*Outcome, error)
}

// Registry holds the available tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered as name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate looks up name and validates payload against it.
func (r *Registry) Validate(name string, payload json.RawMessage) (Tool, json.RawMessage, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, nil, model.Invalid("tool_name", fmt.Sprintf("unknown tool %q", name))
	}
	canonical, err := t.Validate(payload)
	if err != nil {
		return nil, nil, err
	}
	return t, canonical, nil
}

// Definitions lists tool definitions sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return model.Invalid("payload", "is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return model.Invalid("payload", "is not valid JSON for this tool")
	}
	return nil
}
