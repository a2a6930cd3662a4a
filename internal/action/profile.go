package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/profile"
	"github.com/capitalize-ai/talent-copilot/internal/store"
)

// SaveProfileToolName is the symbolic name of saving a candidate profile.
const SaveProfileToolName = "save_profile"

// SaveProfilePrompt is the fixed confirmation prompt for saving a profile.
const SaveProfilePrompt = "Do you want me to save this candidate profile to the workspace? (yes/no)"

// SaveProfileTool gates profile persistence. Saving is synchronous; no job
// is created.
type SaveProfileTool struct {
	profiles store.WorkspaceStore
}

// NewSaveProfileTool creates the profile tool.
func NewSaveProfileTool(profiles store.WorkspaceStore) *SaveProfileTool {
	return &SaveProfileTool{profiles: profiles}
}

// Name implements Tool.
func (t *SaveProfileTool) Name() string { return SaveProfileToolName }

// Definition implements Tool.
func (t *SaveProfileTool) Definition() llm.ToolDefinition {
	records := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "array",
			"description": desc,
			"items": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": map[string]interface{}{"type": "string"},
			},
		}
	}
	return llm.ToolDefinition{
		Name:        SaveProfileToolName,
		Description: "Request approval to save a parsed candidate profile to the workspace. It is not saved until the user approves.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"contact_info": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
				"skills": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"experience": records("Roles with role, company and dates"),
				"projects":   records("Projects with name and description"),
				"education":  records("Education with institution, degree and year"),
			},
			"required": []string{"contact_info", "skills", "experience", "projects", "education"},
		},
	}
}

// Validate implements Tool. Missing sections become empty containers.
func (t *SaveProfileTool) Validate(payload json.RawMessage) (json.RawMessage, error) {
	var p profile.Profile
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	normalize(&p)
	return json.Marshal(p)
}

// Prompt implements Tool.
func (t *SaveProfileTool) Prompt(json.RawMessage) string {
	return SaveProfilePrompt
}

// Execute stores the profile inline. Re-running an approval that already
// saved its profile reports success without a second row.
func (t *SaveProfileTool) Execute(ctx context.Context, ec ExecContext, payload json.RawMessage) (*Outcome, error) {
	var p profile.Profile
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	normalize(&p)

	rec := &model.Profile{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TenantID:    ec.Scope.TenantID,
		UserID:      ec.Scope.UserID,
		ContactInfo: p.ContactInfo,
		Skills:      p.Skills,
		Experience:  p.Experience,
		Projects:    p.Projects,
		Education:   p.Education,
		RawText:     p.RawText,

		ConfirmationID: ec.ConfirmationID,
	}
	err := t.profiles.CreateProfile(ctx, rec)
	if err != nil && !(errors.Is(err, store.ErrDuplicate) && ec.ConfirmationID != "") {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	return &Outcome{
		Message:    "Candidate profile saved to workspace.",
		NextAction: "candidate_saved",
	}, nil
}

func normalize(p *profile.Profile) {
	if p.ContactInfo == nil {
		p.ContactInfo = map[string]string{}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Experience == nil {
		p.Experience = []map[string]string{}
	}
	if p.Projects == nil {
		p.Projects = []map[string]string{}
	}
	if p.Education == nil {
		p.Education = []map[string]string{}
	}
}
