package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRODUCTIVITY ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════

// ProductivitySummary is the payload returned by analyze_productivity.
type ProductivitySummary struct {
	Period         string   `json:"period"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	FocusSeconds   int64    `json:"focus_seconds"`
	SessionCount   int      `json:"session_count"`
	TasksCompleted int      `json:"tasks_completed"`
	AvgSessionMin  float64  `json:"avg_session_min"`
	TopTaskBySecs  string   `json:"top_task,omitempty"`
	Observations   []string `json:"observations,omitempty"`
}

// AnalyzeProductivityTool summarizes focus time and task throughput over a
// day, week or month window.
type AnalyzeProductivityTool struct {
	timers storage.TimeTrackingRepository
	tasks  storage.TaskRepository
}

// NewAnalyzeProductivityTool creates the analyze_productivity tool.
func NewAnalyzeProductivityTool(timers storage.TimeTrackingRepository, tasks storage.TaskRepository) *AnalyzeProductivityTool {
	return &AnalyzeProductivityTool{timers: timers, tasks: tasks}
}

func (t *AnalyzeProductivityTool) Name() string { return "analyze_productivity" }

func (t *AnalyzeProductivityTool) Description() string {
	return "Summarize focus time and completed tasks over a day, week or month"
}

func (t *AnalyzeProductivityTool) Capability() ToolCapability {
	return ToolCapability{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    "analytics",
		Parameters: []ParameterDefinition{
			{
				Name: "period", Type: "string",
				Description: "Analysis window",
				Default:     "day",
				Validation:  &ParameterValidation{AllowedValues: []string{"day", "week", "month"}},
			},
		},
		RequiredPermissions: []PermissionLevel{PermReadOnly},
		Examples:            []string{"how productive was I this week?", "summarize my focus time today"},
	}
}

func (t *AnalyzeProductivityTool) InferParameters(tctx *ToolContext) *InferredParameters {
	msg := tctx.UserMessage
	period := "day"
	confidence := 0.6
	switch {
	case containsAny(msg, "this month", "past month", "monthly", "last 30"):
		period = "month"
		confidence = 0.85
	case containsAny(msg, "this week", "past week", "weekly", "last 7"):
		period = "week"
		confidence = 0.85
	case containsAny(msg, "today", "this day", "daily"):
		period = "day"
		confidence = 0.85
	}
	return &InferredParameters{
		Arguments:   map[string]any{"period": period},
		Confidence:  confidence,
		Explanation: fmt.Sprintf("period %q from message phrasing", period),
	}
}

func (t *AnalyzeProductivityTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *AnalyzeProductivityTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *AnalyzeProductivityTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	period := "day"
	if p, ok := args["period"].(string); ok && p != "" {
		period = p
	}

	now := tctx.Now()
	from := windowStart(period, now)

	stats, err := t.timers.GetStats(ctx, from, now)
	if err != nil {
		return repositoryFailure("load time stats", err), nil
	}

	completed, err := t.tasks.ListTasks(ctx, storage.TaskFilter{Status: storage.TaskCompleted})
	if err != nil {
		return repositoryFailure("list completed tasks", err), nil
	}
	done := 0
	for _, task := range completed {
		if task.CompletedAt != nil && !task.CompletedAt.Before(from) {
			done++
		}
	}

	summary := &ProductivitySummary{
		Period:         period,
		From:           from.Format(time.RFC3339),
		To:             now.Format(time.RFC3339),
		FocusSeconds:   stats.TotalSeconds,
		SessionCount:   stats.SessionCount,
		TasksCompleted: done,
	}
	if stats.SessionCount > 0 {
		summary.AvgSessionMin = float64(stats.TotalSeconds) / float64(stats.SessionCount) / 60
	}
	summary.TopTaskBySecs = topTask(stats.ByTask)
	summary.Observations = observations(summary)

	return successOutcome(summary, "Analyzed the last %s: %s of focus across %d sessions, %d tasks completed",
		period, formatSeconds(stats.TotalSeconds), stats.SessionCount, done), nil
}

// windowStart returns the beginning of the analysis window.
func windowStart(period string, now time.Time) time.Time {
	switch period {
	case "month":
		return now.AddDate(0, -1, 0)
	case "week":
		return now.AddDate(0, 0, -7)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// topTask returns the task id with the most tracked seconds.
func topTask(byTask map[string]int64) string {
	var best string
	var bestSecs int64 = -1
	for id, secs := range byTask {
		if secs > bestSecs || (secs == bestSecs && id < best) {
			best, bestSecs = id, secs
		}
	}
	return best
}

// observations derives short human-readable notes from the summary.
func observations(s *ProductivitySummary) []string {
	var out []string
	if s.SessionCount == 0 {
		out = append(out, "No focus sessions recorded in this window.")
		return out
	}
	if s.AvgSessionMin >= 45 {
		out = append(out, "Long average sessions; deep-focus blocks are working.")
	} else if s.AvgSessionMin < 15 {
		out = append(out, "Short average sessions; consider longer focus blocks.")
	}
	if s.TasksCompleted == 0 {
		out = append(out, "Time was tracked but no tasks were completed.")
	}
	return out
}
