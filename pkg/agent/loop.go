package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/skills"
	"github.com/harun/quill/pkg/toolexecutor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MaxToolRounds caps model round trips in the tool loop.
const MaxToolRounds = 8

// LimitReachedMessage ends a tool loop that did not converge.
const LimitReachedMessage = "I could not finish this request within the allowed number of steps. Please refine your request and try again."

// Converse executes the tool-loop lane: native tool calling for at most
// MaxToolRounds model round trips. Tools that require approval are never
// executed; the model is told they await approval.
func (o *Orchestrator) Converse(ctx context.Context, req RunRequest) (resp *RunResponse, err error) {
	start := time.Now()
	outcome := "error"
	defer func() { observability.RecordAgentRun(string(ledger.LaneCampaign), outcome, time.Since(start)) }()

	r, ctx, cancel, err := o.begin(ctx, req, ledger.LaneCampaign)
	if err != nil {
		outcome = errorOutcome(err)
		return nil, err
	}
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.converse",
		attribute.String("agent.lane", string(ledger.LaneCampaign)),
		attribute.String("agent.track", string(r.track)),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	prompt := skills.BuildToolLoopPrompt(o.base, o.activeSkills(r.track), r.track, r.tenant.BrandVoice)
	tools := ToolSpecs(o.executor.Definitions())
	toolCtx := toolexecutor.ContextWithRunContext(ctx, runContext(r.tenant))

	messages := []AgentMessage{{Role: "user", Content: r.message}}
	var (
		activities []ToolActivity
		pending    []ledger.PendingAction
	)

	for round := 1; round <= o.maxToolRounds; round++ {
		completion, err := o.callModel(ctx, prompt, messages, tools)
		if err != nil {
			outcome = "model_error"
			r.logger.Error().Err(err).Int("round", round).Msg("Model call failed")
			return nil, err
		}

		if len(completion.ToolCalls) == 0 {
			if strings.TrimSpace(completion.Content) == "" {
				outcome = "model_error"
				return nil, &ModelError{Provider: o.provider.Provider(), Err: ErrEmptyCompletion}
			}

			final, err := o.finishConversation(ctx, r.entry, activities, pending, true)
			if err != nil {
				return nil, err
			}
			outcome = string(final.Status)
			r.logger.Info().
				Int("rounds", round).
				Int("tools", len(activities)).
				Int("pending", len(pending)).
				Dur("duration", time.Since(start)).
				Msg("Tool loop finished")
			return &RunResponse{
				Response: strings.TrimSpace(completion.Content),
				Tools:    nonNil(activities),
				Records:  o.records(final),
			}, nil
		}

		messages = append(messages, AgentMessage{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			activity, withheld, content := o.handleToolCall(toolCtx, call)
			activities = append(activities, activity)
			if withheld != nil {
				pending = append(pending, *withheld)
			}
			messages = append(messages, AgentMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	outcome = "limit_reached"
	r.logger.Warn().Int("rounds", o.maxToolRounds).Msg("Tool loop reached its round limit")

	// Withheld actions and written records from the rounds that did run are
	// kept so they can still be approved.
	entry, err := o.finishConversation(ctx, r.entry, activities, pending, false)
	if err != nil {
		return nil, err
	}
	return &RunResponse{
		Response: LimitReachedMessage,
		Tools:    nonNil(activities),
		Records:  o.records(entry),
	}, nil
}

// handleToolCall runs one native tool call and returns the text fed back to
// the model.
func (o *Orchestrator) handleToolCall(ctx context.Context, call ToolCall) (ToolActivity, *ledger.PendingAction, string) {
	if o.gated(call.Name, false) {
		activity, withheld := o.withhold(ctx, call.Name, call.Parameters)
		content, _ := json.Marshal(map[string]interface{}{
			"success": true,
			"status":  "awaiting_approval",
			"message": activity.Summary,
		})
		return activity, withheld, string(content)
	}

	result := o.executor.Execute(ctx, call.Name, call.Parameters)
	content, err := json.Marshal(result)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
	}
	return activityFromResult(call.Name, result), nil, string(content)
}

// finishConversation applies the terminal update of a tool loop. A loop
// that hit its round limit only moves to drafted when it withheld actions.
func (o *Orchestrator) finishConversation(ctx context.Context, entry ledger.Entry, activities []ToolActivity, pending []ledger.PendingAction, converged bool) (ledger.Entry, error) {
	var patch ledger.Patch
	if converged || len(pending) > 0 {
		status := ledger.StatusDrafted
		patch.Status = &status
	}
	if id, url := linkedOutput(nil, activities); url != "" {
		patch.LinkedOutputID = &id
		patch.LinkedOutputURL = &url
	}
	if len(pending) > 0 {
		patch.Pending = &pending
	}

	if patch.IsZero() {
		return entry, nil
	}

	finalizeCtx, cancel := finalizeContext(ctx)
	defer cancel()
	final, err := o.ledger.Update(finalizeCtx, entry.ID, patch)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to finalize ledger entry %s: %w", entry.ID, err)
	}
	return final, nil
}
