// Package agent implements the reasoning loop that turns a user message into
// tool calls and a final answer. The model is prompted with a Thought,
// Action, Observation protocol; each turn either requests a tool or produces
// the answer, and every turn is recorded in an append-only trace.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/internal/tools"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ═══════════════════════════════════════════════════════════════════════════════

// DefaultMaxTurns bounds one reasoning loop. Five turns covers every
// multi-tool flow the assistant's tools can express.
const DefaultMaxTurns = 5

// Config configures the orchestrator.
type Config struct {
	// MaxTurns caps reasoning turns per request. Zero means DefaultMaxTurns.
	MaxTurns int

	// Permissions granted to the reasoning loop's tool calls.
	Permissions tools.PermissionSet

	// Generation overrides passed to the provider on every turn.
	Generation *llm.GenerationOptions
}

// Orchestrator runs the reasoning loop against one provider and a tool
// registry. It is stateless across requests; all per-request state lives in
// the trace.
type Orchestrator struct {
	registry *tools.Registry
	maxTurns int
	perms    tools.PermissionSet
	genOpts  *llm.GenerationOptions
	log      *logging.Logger
}

// New creates an orchestrator over the given registry.
func New(registry *tools.Registry, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = &Config{}
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	perms := cfg.Permissions
	if perms == nil {
		perms = tools.FullAccess()
	}
	return &Orchestrator{
		registry: registry,
		maxTurns: maxTurns,
		perms:    perms,
		genOpts:  cfg.Generation,
		log:      logging.WithComponent("agent"),
	}
}

// Run executes the reasoning loop for one request on the given provider.
// Tool failures are folded into the trace as observations; the error return
// is reserved for provider failures and context cancellation, so callers can
// fail over to another provider.
func (o *Orchestrator) Run(ctx context.Context, provider llm.Provider, req types.Request) (*types.Trace, error) {
	trace := types.NewTrace(req)
	tctx := o.toolContext(req)

	prompt := buildInitialPrompt(req.Message, o.registry.AvailableTools(o.perms), time.Now())
	o.log.Debug("Starting reasoning loop for session %s (max %d turns)", req.SessionID, o.maxTurns)

	var lastThought string
	for turn := 1; turn <= o.maxTurns; turn++ {
		select {
		case <-ctx.Done():
			trace.Iterations = turn - 1
			return trace, ctx.Err()
		default:
		}

		reply, err := provider.Generate(ctx, prompt, o.genOpts)
		if err != nil {
			trace.Append(types.Step{
				Kind:    types.StepError,
				Content: err.Error(),
			})
			trace.Iterations = turn
			return trace, types.NewLLMError("generation failed", err)
		}

		parsed := parseReply(reply)
		trace.Iterations = turn

		if parsed.Thought != "" {
			lastThought = parsed.Thought
			trace.Append(types.Step{
				Kind:    types.StepThought,
				Content: parsed.Thought,
			})
		}

		// Every completion becomes an Action step; a parsed tool call rides
		// on it so the following observation can be matched back.
		var invocation *types.ToolInvocation
		if parsed.Action != nil {
			invocation = &types.ToolInvocation{
				Tool:      parsed.Action.Tool,
				Arguments: parsed.Action.Arguments,
				CallID:    uuid.NewString(),
			}
		}
		trace.Append(types.Step{
			Kind:       types.StepAction,
			Content:    reply,
			Invocation: invocation,
		})

		if parsed.IsFinal {
			o.finish(trace, parsed.Answer)
			return trace, nil
		}

		if parsed.Action == nil {
			// Early turns without an action usually mean the model is still
			// orienting itself; later turns mean it has nothing left to do.
			if turn > 2 && parsed.Thought != "" {
				o.finish(trace, parsed.Thought)
				return trace, nil
			}
			prompt += "\n\n" + reply + "\n\nContinue. Use an Action to gather what you need, or give your final Answer."
			continue
		}

		observation, outcome := o.dispatch(ctx, trace, parsed.Action, invocation, tctx)
		if outcome.Success && parsed.Action.Tool == "get_tasks" && wantsListing(req.Message) {
			prompt += fmt.Sprintf("\n\n%s\n\nObservation:\n%s\n\nThat is the task data you asked for. Respond with your Answer: now.", reply, observation)
		} else {
			prompt += fmt.Sprintf("\n\n%s\n\nObservation: %s\n\nNow provide your Answer:", reply, observation)
		}
	}

	// Turn budget exhausted. Recover a useful answer from what the loop
	// already produced rather than returning nothing.
	o.log.Warn("Reasoning loop hit the turn limit (%d)", o.maxTurns)
	o.finish(trace, o.recoverFinal(trace, lastThought))
	return trace, nil
}

// recoverFinal synthesizes a final response after forced termination: the
// most recent successful tool observation, then the model's last reasoning,
// then a canned apology.
func (o *Orchestrator) recoverFinal(trace *types.Trace, lastThought string) string {
	observations := trace.StepsOfKind(types.StepObservation)
	for i := len(observations) - 1; i >= 0; i-- {
		if observations[i].Outcome != nil && observations[i].Outcome.Success {
			return observations[i].Content
		}
	}
	if lastThought != "" {
		return lastThought
	}
	return "I couldn't complete this request within the reasoning limit. Please try a more specific question."
}

// dispatch runs one requested tool and records the observation against the
// invocation carried by the turn's Action step. Every failure mode becomes an
// observation; the loop never aborts on tools.
func (o *Orchestrator) dispatch(ctx context.Context, trace *types.Trace, action *actionRequest, invocation *types.ToolInvocation, tctx *tools.ToolContext) (string, *types.ToolOutcome) {
	start := time.Now()
	outcome, err := o.registry.ExecuteDirect(ctx, action.Tool, action.Arguments, tctx, o.perms)
	if err != nil {
		outcome = &types.ToolOutcome{
			Success:    false,
			Message:    "tool dispatch failed",
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	observation := formatObservation(action.Tool, outcome)
	trace.Append(types.Step{
		Kind:       types.StepObservation,
		Content:    observation,
		Invocation: invocation,
		Outcome:    outcome,
		DurationMs: outcome.DurationMs,
	})

	o.log.Debug("Turn observation for %s: %s", action.Tool, firstLine(observation))
	return observation, outcome
}

// finish appends the final answer step and completes the trace.
func (o *Orchestrator) finish(trace *types.Trace, answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "Done."
	}
	trace.Append(types.Step{
		Kind:    types.StepFinalAnswer,
		Content: answer,
	})
	trace.Complete(answer)
}

// toolContext builds the inference context tools see during this request.
func (o *Orchestrator) toolContext(req types.Request) *tools.ToolContext {
	tctx := &tools.ToolContext{
		UserMessage: req.Message,
		CurrentTime: time.Now().UTC(),
		Metadata:    map[string]any{"session_id": req.SessionID},
	}
	if req.Context != nil {
		if id, ok := req.Context["active_task_id"].(string); ok {
			tctx.ActiveTaskID = id
		}
		if recent, ok := req.Context["recent_task_ids"].([]string); ok {
			tctx.RecentTaskIDs = recent
		}
	}
	return tctx
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
