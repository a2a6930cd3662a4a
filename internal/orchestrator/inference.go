package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/capitalize-ai/talent-copilot/internal/action"
	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/model"
)

var (
	affirmative = map[string]bool{"yes": true, "y": true}
	negative    = map[string]bool{"no": true, "n": true}
)

// ParseVerdict reports whether text is a bare yes/no token and, if so,
// whether it approves.
func ParseVerdict(text string) (approved, ok bool) {
	token := strings.ToLower(strings.TrimSpace(text))
	switch {
	case affirmative[token]:
		return true, true
	case negative[token]:
		return false, true
	}
	return false, false
}

var ingestPromptPattern = templatePattern(action.IngestPromptTemplate)

// templatePattern compiles a one-verb fmt template into a regexp that
// captures the %s argument. Whitespace in the template matches any run of
// whitespace, including none.
func templatePattern(tmpl string) *regexp.Regexp {
	before, after, _ := strings.Cut(tmpl, "%s")
	return regexp.MustCompile(`(?i)` + loose(before) + `(\S+?)` + loose(after))
}

func loose(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return `\s*` + strings.Join(fields, `\s*`) + `\s*`
}

// InferAction recovers an ingest_repository request from an assistant
// message that asked for approval in free text. It returns nil when the
// message does not carry the crawl prompt.
func InferAction(assistantText string) *llm.ActionRequest {
	m := ingestPromptPattern.FindStringSubmatch(assistantText)
	if m == nil {
		return nil
	}
	url := strings.TrimRight(m[1], ".,;:!")
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(action.IngestPayload{SourceURL: url})
	if err != nil {
		return nil
	}
	return &llm.ActionRequest{ToolName: action.IngestToolName, Payload: payload}
}

// precedingPrompt returns the action implied by the assistant message
// directly before the newest message in recent, if any.
func precedingPrompt(recent []model.Message) *llm.ActionRequest {
	if len(recent) < 2 {
		return nil
	}
	prev := recent[len(recent)-2]
	if prev.Role != model.RoleAssistant {
		return nil
	}
	return InferAction(prev.Content)
}
