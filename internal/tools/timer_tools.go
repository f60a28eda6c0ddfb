package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// START TIMER
// ═══════════════════════════════════════════════════════════════════════════════

// StartTimerTool begins a focus-timer session, optionally bound to a task.
type StartTimerTool struct {
	repo storage.TimeTrackingRepository
}

// NewStartTimerTool creates the start_timer tool.
func NewStartTimerTool(repo storage.TimeTrackingRepository) *StartTimerTool {
	return &StartTimerTool{repo: repo}
}

func (t *StartTimerTool) Name() string { return "start_timer" }

func (t *StartTimerTool) Description() string {
	return "Start a focus timer, optionally bound to a task"
}

func (t *StartTimerTool) Capability() ToolCapability {
	return ToolCapability{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    "time_tracking",
		Parameters: []ParameterDefinition{
			{
				Name: "task_id", Type: "string",
				Description: "Task to track time against",
			},
			{
				Name: "note", Type: "string",
				Description: "Free-form note for the session",
				Validation:  &ParameterValidation{MaxLength: 500},
			},
			{
				Name: "duration_minutes", Type: "number",
				Description: "Planned session length in minutes",
				Validation:  &ParameterValidation{MinValue: f64(1), MaxValue: f64(480)},
			},
		},
		RequiredPermissions: []PermissionLevel{PermTimerControl},
		Examples:            []string{"start a 25 minute timer", "start tracking time on the report"},
	}
}

func (t *StartTimerTool) InferParameters(tctx *ToolContext) *InferredParameters {
	msg := tctx.UserMessage
	args := make(map[string]any)
	var notes []string
	confidence := 0.6

	if d, ok := extractDuration(msg); ok {
		args["duration_minutes"] = d.Minutes()
		confidence = 0.85
		notes = append(notes, fmt.Sprintf("duration %v from message", d))
	}
	if tctx.ActiveTaskID != "" {
		args["task_id"] = tctx.ActiveTaskID
		notes = append(notes, "bound to active task")
	}
	if note, ok := extractQuotedText(msg); ok {
		args["note"] = note
		notes = append(notes, "note from quoted text")
	}

	return &InferredParameters{
		Arguments:   args,
		Confidence:  confidence,
		Explanation: strings.Join(notes, "; "),
	}
}

func (t *StartTimerTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *StartTimerTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *StartTimerTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	active, err := t.repo.ActiveSession(ctx)
	if err != nil {
		return repositoryFailure("check active session", err), nil
	}
	if active != nil {
		return failureOutcome("a timer is already running (started %s)",
			active.StartedAt.Format(time.Kitchen)), nil
	}

	sess := &storage.TimerSession{
		ID:        uuid.NewString(),
		StartedAt: tctx.Now(),
	}
	if id, ok := args["task_id"].(string); ok {
		sess.TaskID = id
	}
	if note, ok := args["note"].(string); ok {
		sess.Note = note
	}

	if err := t.repo.StartSession(ctx, sess); err != nil {
		return repositoryFailure("start session", err), nil
	}

	if mins, ok := toFloat(args["duration_minutes"]); ok {
		return successOutcome(sess, "Timer started for %d minutes", int(mins)), nil
	}
	return successOutcome(sess, "Timer started"), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STOP TIMER
// ═══════════════════════════════════════════════════════════════════════════════

// StopTimerTool ends the running focus-timer session.
type StopTimerTool struct {
	repo storage.TimeTrackingRepository
}

// NewStopTimerTool creates the stop_timer tool.
func NewStopTimerTool(repo storage.TimeTrackingRepository) *StopTimerTool {
	return &StopTimerTool{repo: repo}
}

func (t *StopTimerTool) Name() string { return "stop_timer" }

func (t *StopTimerTool) Description() string {
	return "Stop the running focus timer"
}

func (t *StopTimerTool) Capability() ToolCapability {
	return ToolCapability{
		Name:                t.Name(),
		Description:         t.Description(),
		Category:            "time_tracking",
		Parameters:          nil,
		RequiredPermissions: []PermissionLevel{PermTimerControl},
		Examples:            []string{"stop the timer", "I'm done focusing"},
	}
}

func (t *StopTimerTool) InferParameters(tctx *ToolContext) *InferredParameters {
	return &InferredParameters{
		Arguments:  map[string]any{},
		Confidence: 0.9,
	}
}

func (t *StopTimerTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *StopTimerTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *StopTimerTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	active, err := t.repo.ActiveSession(ctx)
	if err != nil {
		return repositoryFailure("check active session", err), nil
	}
	if active == nil {
		return failureOutcome("no active timer session"), nil
	}

	stopped, err := t.repo.StopSession(ctx, active.ID, tctx.Now())
	if err != nil {
		return repositoryFailure("stop session", err), nil
	}

	return successOutcome(stopped, "Timer stopped after %s", formatSeconds(stopped.DurationSec)), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIMER STATUS
// ═══════════════════════════════════════════════════════════════════════════════

// TimerStatusTool reports whether a timer is running and for how long.
type TimerStatusTool struct {
	repo storage.TimeTrackingRepository
}

// NewTimerStatusTool creates the timer_status tool.
func NewTimerStatusTool(repo storage.TimeTrackingRepository) *TimerStatusTool {
	return &TimerStatusTool{repo: repo}
}

func (t *TimerStatusTool) Name() string { return "timer_status" }

func (t *TimerStatusTool) Description() string {
	return "Report whether a focus timer is running and its elapsed time"
}

func (t *TimerStatusTool) Capability() ToolCapability {
	return ToolCapability{
		Name:                t.Name(),
		Description:         t.Description(),
		Category:            "time_tracking",
		Parameters:          nil,
		RequiredPermissions: []PermissionLevel{PermReadOnly},
		Examples:            []string{"is a timer running?", "how long have I been focusing?"},
	}
}

func (t *TimerStatusTool) InferParameters(tctx *ToolContext) *InferredParameters {
	return &InferredParameters{
		Arguments:  map[string]any{},
		Confidence: 0.9,
	}
}

func (t *TimerStatusTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *TimerStatusTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *TimerStatusTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	active, err := t.repo.ActiveSession(ctx)
	if err != nil {
		return repositoryFailure("check active session", err), nil
	}
	if active == nil {
		return successOutcome(nil, "No timer is running"), nil
	}

	elapsed := int64(tctx.Now().Sub(active.StartedAt).Seconds())
	return successOutcome(active, "Timer running for %s", formatSeconds(elapsed)), nil
}

// formatSeconds renders a duration like "1h 05m" or "12m 30s".
func formatSeconds(sec int64) string {
	d := time.Duration(sec) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
