// Package execlog records every tool execution in detail: performance
// classification, failure categorization, recovery suggestions, running
// session statistics, and periodic usage analytics derived from the
// persisted log.
package execlog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/internal/tools"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PERFORMANCE / CATEGORY CLASSIFICATION
// ═══════════════════════════════════════════════════════════════════════════════

const (
	PerfFast     = "fast"      // <= 100ms
	PerfNormal   = "normal"    // <= 1s
	PerfSlow     = "slow"      // <= 5s
	PerfVerySlow = "very_slow" // above
)

// classifyPerformance buckets a duration.
func classifyPerformance(ms int64) string {
	switch {
	case ms <= 100:
		return PerfFast
	case ms <= 1000:
		return PerfNormal
	case ms <= 5000:
		return PerfSlow
	default:
		return PerfVerySlow
	}
}

// categorize maps a tool name onto its functional category.
func categorize(tool string) string {
	lower := strings.ToLower(tool)
	switch {
	case strings.Contains(lower, "task"):
		return "task_management"
	case strings.Contains(lower, "timer"):
		return "time_tracking"
	case strings.Contains(lower, "analy"), strings.Contains(lower, "productiv"), strings.Contains(lower, "stats"):
		return "analytics"
	case strings.Contains(lower, "get"), strings.Contains(lower, "list"):
		return "data_retrieval"
	case strings.Contains(lower, "create"), strings.Contains(lower, "update"), strings.Contains(lower, "delete"):
		return "data_modification"
	default:
		return "general"
	}
}

// suggestRecovery maps common failure text to a user-actionable suggestion.
func suggestRecovery(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "not found"):
		return "Check the identifier; list the items first to find the right one."
	case strings.Contains(lower, "already running"):
		return "Stop the current timer before starting a new one."
	case strings.Contains(lower, "no active timer"):
		return "Start a timer before trying to stop or inspect it."
	case strings.Contains(lower, "missing required parameter"):
		return "Provide the missing parameter or phrase the request more specifically."
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return "The operation timed out; try again."
	case strings.Contains(lower, "permission"):
		return "This operation needs a higher permission level."
	case lower == "":
		return ""
	default:
		return "Retry the operation; rephrase the request if it fails again."
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LOG
// ═══════════════════════════════════════════════════════════════════════════════

// persistTimeout bounds a detached log write.
const persistTimeout = 5 * time.Second

// Config configures the execution log.
type Config struct {
	// AnalyticsEvery triggers an analytics report each N persisted
	// executions. Zero means DefaultAnalyticsEvery.
	AnalyticsEvery int

	// AnalyticsWindow is how far back a report looks. Zero means 24h.
	AnalyticsWindow time.Duration
}

// DefaultAnalyticsEvery is the report cadence in executions.
const DefaultAnalyticsEvery = 100

// Log is the detailed execution logger. It implements tools.ExecutionRecorder
// so the registry can feed it every execution.
type Log struct {
	repo    storage.LogRepository
	tracker *PerformanceTracker
	cfg     Config
	log     *logging.Logger
}

// New creates an execution log over the given repository.
func New(repo storage.LogRepository, cfg Config) *Log {
	if cfg.AnalyticsEvery <= 0 {
		cfg.AnalyticsEvery = DefaultAnalyticsEvery
	}
	if cfg.AnalyticsWindow <= 0 {
		cfg.AnalyticsWindow = 24 * time.Hour
	}
	return &Log{
		repo:    repo,
		tracker: NewPerformanceTracker(),
		cfg:     cfg,
		log:     logging.WithComponent("execlog"),
	}
}

// Tracker exposes the in-memory session statistics.
func (l *Log) Tracker() *PerformanceTracker { return l.tracker }

// RecordExecution classifies and persists one tool execution. Persistence
// runs on a detached context so a cancelled request still gets its record;
// persistence failures are logged and swallowed, never surfaced to the tool
// path.
func (l *Log) RecordExecution(ctx context.Context, ev tools.ExecutionEvent) {
	if ev.Outcome == nil {
		return
	}

	rec := &storage.ExecutionRecord{
		ID:                  uuid.NewString(),
		SessionID:           ev.SessionID,
		Tool:                ev.Tool,
		Arguments:           ev.Arguments,
		Success:             ev.Outcome.Success,
		DurationMs:          ev.Outcome.DurationMs,
		PerformanceClass:    classifyPerformance(ev.Outcome.DurationMs),
		Category:            categorize(ev.Tool),
		ParametersInferred:  ev.ParametersInferred,
		InferenceConfidence: ev.InferenceConfidence,
		Timestamp:           time.Now().UTC(),
	}
	if !ev.Outcome.Success {
		rec.ErrorMessage = ev.Outcome.Error
		rec.RecoverySuggestion = suggestRecovery(ev.Outcome.Error)
	}

	l.tracker.Record(rec)

	detached, cancel := logging.DetachContextWithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := l.repo.SaveExecution(detached, rec); err != nil {
		l.log.Warn("Failed to persist execution record for %s: %v", ev.Tool, err)
		return
	}

	l.maybeGenerateAnalytics(detached)
}

// maybeGenerateAnalytics produces a usage report at the configured cadence.
func (l *Log) maybeGenerateAnalytics(ctx context.Context) {
	count, err := l.repo.CountExecutions(ctx)
	if err != nil {
		l.log.Warn("Failed to count executions: %v", err)
		return
	}
	if count == 0 || count%l.cfg.AnalyticsEvery != 0 {
		return
	}

	report, err := BuildAnalytics(ctx, l.repo, l.cfg.AnalyticsWindow)
	if err != nil {
		l.log.Warn("Failed to build analytics report: %v", err)
		return
	}
	if err := l.repo.SaveAnalytics(ctx, report); err != nil {
		l.log.Warn("Failed to persist analytics report: %v", err)
		return
	}
	l.log.Info("Generated usage analytics report %s (%d executions in window)",
		report.ID, report.TotalExecutions)
}
