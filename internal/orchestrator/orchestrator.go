// Package orchestrator runs the per-turn control loop: it routes a user
// message to a confirmation resolution or to the reasoning engine, creates
// pending confirmations for requested actions and executes approved ones.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/talent-copilot/internal/action"
	"github.com/capitalize-ai/talent-copilot/internal/ledger"
	"github.com/capitalize-ai/talent-copilot/internal/llm"
	"github.com/capitalize-ai/talent-copilot/internal/memory"
	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/internal/service"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

const (
	// DenialReply acknowledges a denied action.
	DenialReply = "Understood, I did not perform that action."

	emptyReply = "Sorry, I could not come up with a response. Please try again."
)

// Decider is the reasoning engine.
type Decider interface {
	Decide(ctx context.Context, in llm.DecideInput) (*llm.Decision, error)
}

// Orchestrator handles chat and confirmation turns.
type Orchestrator struct {
	sessions *service.ConversationService
	messages *service.MessageService
	window   *memory.Window
	ledger   *ledger.Ledger
	registry *action.Registry
	decider  Decider
	logger   *logger.Logger
	tracer   trace.Tracer
}

// Deps lists the collaborators of an Orchestrator.
type Deps struct {
	Sessions *service.ConversationService
	Messages *service.MessageService
	Window   *memory.Window
	Ledger   *ledger.Ledger
	Registry *action.Registry
	Decider  Decider
}

// New creates an orchestrator.
func New(deps Deps, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		sessions: deps.Sessions,
		messages: deps.Messages,
		window:   deps.Window,
		ledger:   deps.Ledger,
		registry: deps.Registry,
		decider:  deps.Decider,
		logger:   log.Named("orchestrator"),
		tracer:   otel.Tracer("talent-copilot/orchestrator"),
	}
}

// resolution is an approval decision about one action. confirmationID is
// empty when the action was inferred from a free-text prompt.
type resolution struct {
	confirmationID string
	toolName       string
	payload        json.RawMessage
}

// HandleMessage processes one user message.
func (o *Orchestrator) HandleMessage(ctx context.Context, scope model.Scope, text string) (*model.TurnResponse, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.Invalid("message", "is required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.message", trace.WithAttributes(
		attribute.String("tenant_id", scope.TenantID),
		attribute.String("session_id", scope.SessionID),
	))
	defer span.End()

	resp, machine, err := o.handleMessage(ctx, scope, text)
	if machine != nil {
		span.SetAttributes(attribute.String("turn.state", string(machine.State())))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (o *Orchestrator) handleMessage(ctx context.Context, scope model.Scope, text string) (*model.TurnResponse, *Machine, error) {
	if err := o.sessions.EnsureSession(ctx, scope); err != nil {
		return nil, nil, err
	}
	if _, err := o.messages.Append(ctx, scope, model.RoleUser, text); err != nil {
		return nil, nil, err
	}

	pending, err := o.ledger.LatestPending(ctx, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("load pending confirmation: %w", err)
	}

	approved, verdict := ParseVerdict(text)
	var inferred *llm.ActionRequest
	var inferErr error
	ev := Classify(pending != nil, verdict, func() bool {
		inferred, inferErr = o.inferFromHistory(ctx, scope)
		return inferred != nil
	})
	if inferErr != nil {
		return nil, nil, inferErr
	}

	machine := NewMachine(pending != nil)
	if err := machine.Fire(ev); err != nil {
		return nil, machine, err
	}

	switch ev {
	case EventVerdict:
		resp, err := o.resolve(ctx, scope, resolution{
			confirmationID: pending.ID,
			toolName:       pending.ToolName,
			payload:        pending.Payload,
		}, approved)
		return resp, machine, err

	case EventInferredVerdict:
		_, payload, err := o.registry.Validate(inferred.ToolName, inferred.Payload)
		if err != nil {
			return nil, machine, err
		}
		metrics.InferredResolutionsTotal.WithLabelValues(inferred.ToolName, strconv.FormatBool(approved)).Inc()
		resp, err := o.resolve(ctx, scope, resolution{
			toolName: inferred.ToolName,
			payload:  payload,
		}, approved)
		return resp, machine, err
	}

	resp, err := o.decide(ctx, scope, machine)
	return resp, machine, err
}

// HandleConfirmation resolves a pending confirmation by id.
func (o *Orchestrator) HandleConfirmation(ctx context.Context, scope model.Scope, confirmationID string, approved bool) (*model.TurnResponse, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.confirm", trace.WithAttributes(
		attribute.String("tenant_id", scope.TenantID),
		attribute.String("session_id", scope.SessionID),
		attribute.String("confirmation_id", confirmationID),
		attribute.Bool("approved", approved),
	))
	defer span.End()

	resp, err := o.handleConfirmation(ctx, scope, confirmationID, approved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, scope model.Scope, confirmationID string, approved bool) (*model.TurnResponse, error) {
	c, err := o.ledger.GetPending(ctx, scope, confirmationID)
	if err != nil {
		return nil, err
	}

	machine := NewMachine(true)
	if err := machine.Fire(EventVerdict); err != nil {
		return nil, err
	}

	return o.resolve(ctx, scope, resolution{
		confirmationID: c.ID,
		toolName:       c.ToolName,
		payload:        c.Payload,
	}, approved)
}

// Propose creates a pending confirmation for an action requested outside
// the reasoning engine, such as a document upload.
func (o *Orchestrator) Propose(ctx context.Context, scope model.Scope, toolName string, payload json.RawMessage) (*model.TurnResponse, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if err := o.sessions.EnsureSession(ctx, scope); err != nil {
		return nil, err
	}
	tool, canonical, err := o.registry.Validate(toolName, payload)
	if err != nil {
		return nil, err
	}
	return o.requestConfirmation(ctx, scope, tool, canonical)
}

// decide consults the reasoning engine on the bounded context.
func (o *Orchestrator) decide(ctx context.Context, scope model.Scope, machine *Machine) (*model.TurnResponse, error) {
	window, err := o.window.Build(ctx, scope)
	if err != nil {
		return nil, err
	}

	history := make([]llm.ChatMessage, 0, len(window.Recent))
	for _, m := range window.Recent {
		history = append(history, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	decision, err := o.decider.Decide(ctx, llm.DecideInput{
		Summary:   window.Summary,
		Workspace: window.Workspace,
		History:   history,
	})
	if err != nil {
		return nil, err
	}

	if decision.Action != nil {
		tool, payload, err := o.registry.Validate(decision.Action.ToolName, decision.Action.Payload)
		if err != nil {
			o.logger.Warn("reasoning engine requested an invalid action",
				zap.String("tool", decision.Action.ToolName),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: invalid action %q: %v", model.ErrExternalService, decision.Action.ToolName, err)
		}
		if err := machine.Fire(EventActionRequested); err != nil {
			return nil, err
		}
		return o.requestConfirmation(ctx, scope, tool, payload)
	}

	if err := machine.Fire(EventReply); err != nil {
		return nil, err
	}
	reply := decision.Reply
	if reply == "" {
		reply = emptyReply
	}
	return o.finish(ctx, scope, &model.TurnResponse{Type: model.ResponseReply, Content: reply})
}

// requestConfirmation records a pending confirmation and returns its
// prompt. The prompt is not stored as an assistant message.
func (o *Orchestrator) requestConfirmation(ctx context.Context, scope model.Scope, tool action.Tool, payload json.RawMessage) (*model.TurnResponse, error) {
	c, err := o.ledger.CreatePending(ctx, scope, tool.Name(), payload)
	if err != nil {
		return nil, err
	}
	return &model.TurnResponse{
		Type:           model.ResponseConfirmation,
		Prompt:         tool.Prompt(payload),
		ConfirmationID: c.ID,
		ToolName:       c.ToolName,
		Payload:        c.Payload,
	}, nil
}

// resolve executes an approved action, or acknowledges a denial, and only
// then resolves the ledger row.
func (o *Orchestrator) resolve(ctx context.Context, scope model.Scope, res resolution, approved bool) (*model.TurnResponse, error) {
	resp := &model.TurnResponse{Type: model.ResponseReply, Content: DenialReply}

	if approved {
		tool, ok := o.registry.Get(res.toolName)
		if !ok {
			return nil, model.Invalid("tool_name", fmt.Sprintf("unknown tool %q", res.toolName))
		}
		out, err := tool.Execute(ctx, action.ExecContext{Scope: scope, ConfirmationID: res.confirmationID}, res.payload)
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", res.toolName, err)
		}
		resp.Content = out.Message
		resp.JobID = out.JobID
		resp.NextAction = out.NextAction
	}

	if res.confirmationID != "" {
		if _, err := o.ledger.Resolve(ctx, scope, res.confirmationID, approved, resp.JobID); err != nil {
			return nil, err
		}
	}

	o.logger.WithScope(scope.TenantID, scope.UserID, scope.SessionID).Info("action resolved",
		zap.String("tool", res.toolName),
		zap.String("confirmation_id", res.confirmationID),
		zap.Bool("approved", approved),
		zap.String("job_id", resp.JobID),
	)

	return o.finish(ctx, scope, resp)
}

// finish stores the reply as an assistant message and schedules
// compaction.
func (o *Orchestrator) finish(ctx context.Context, scope model.Scope, resp *model.TurnResponse) (*model.TurnResponse, error) {
	if _, err := o.messages.Append(ctx, scope, model.RoleAssistant, resp.Content); err != nil {
		return nil, err
	}
	o.window.CompactAsync(scope)
	return resp, nil
}

func (o *Orchestrator) inferFromHistory(ctx context.Context, scope model.Scope) (*llm.ActionRequest, error) {
	recent, err := o.messages.Recent(ctx, scope, 2)
	if err != nil {
		return nil, fmt.Errorf("load previous message: %w", err)
	}
	return precedingPrompt(recent), nil
}

// Wait blocks until background compactions have finished.
func (o *Orchestrator) Wait() {
	o.window.Wait()
}

func validateScope(scope model.Scope) error {
	switch {
	case scope.TenantID == "":
		return model.Invalid("tenant_id", "is required")
	case scope.UserID == "":
		return model.Invalid("user_id", "is required")
	case scope.SessionID == "":
		return model.Invalid("session_id", "is required")
	}
	return nil
}
