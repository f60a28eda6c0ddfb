// Package storage provides the persistence layer for the FocusDeck assistant:
// tasks, timer sessions, execution logs and usage analytics. The SQLite store
// uses modernc.org/sqlite for pure-Go, CGO-free database access; an in-memory
// store backs tests and the demo mode.
package storage

import (
	"context"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ═══════════════════════════════════════════════════════════════════════════════

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is a tracked to-do item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	// Priority: 0 low, 1 medium, 2 high, 3 urgent
	Priority    int        `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Status   TaskStatus
	Tag      string
	DueAfter *time.Time
	DueBy    *time.Time
	Limit    int
}

// TimerSession is one focus-timer run, optionally bound to a task.
type TimerSession struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id,omitempty"`
	Note        string     `json:"note,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationSec int64      `json:"duration_sec"`
}

// Active reports whether the session is still running.
func (s *TimerSession) Active() bool { return s.EndedAt == nil }

// TimeStats aggregates tracked time over a window.
type TimeStats struct {
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	TotalSeconds int64            `json:"total_seconds"`
	SessionCount int              `json:"session_count"`
	ByTask       map[string]int64 `json:"by_task,omitempty"`
}

// ExecutionRecord is one persisted tool execution.
type ExecutionRecord struct {
	ID                  string         `json:"id"`
	SessionID           string         `json:"session_id,omitempty"`
	Tool                string         `json:"tool"`
	Arguments           map[string]any `json:"arguments,omitempty"`
	Success             bool           `json:"success"`
	DurationMs          int64          `json:"duration_ms"`
	PerformanceClass    string         `json:"performance_class"`
	Category            string         `json:"category"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	RecoverySuggestion  string         `json:"recovery_suggestion,omitempty"`
	ParametersInferred  bool           `json:"parameters_inferred"`
	InferenceConfidence float64        `json:"inference_confidence,omitempty"`
	Timestamp           time.Time      `json:"timestamp"`
}

// LogFilter narrows ListExecutions results. Zero values match everything.
type LogFilter struct {
	SessionID    string
	Tool         string
	Since        time.Time
	Until        time.Time
	OnlyFailures bool
	Limit        int
}

// AnalyticsReport is a periodic usage summary generated from execution logs.
type AnalyticsReport struct {
	ID               string    `json:"id"`
	GeneratedAt      time.Time `json:"generated_at"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	TotalExecutions  int       `json:"total_executions"`
	SuccessRate      float64   `json:"success_rate"`
	MostUsedTool     string    `json:"most_used_tool,omitempty"`
	MostReliableTool string    `json:"most_reliable_tool,omitempty"`
	MinDurationMs    int64     `json:"min_duration_ms"`
	AvgDurationMs    int64     `json:"avg_duration_ms"`
	MaxDurationMs    int64     `json:"max_duration_ms"`
	P95DurationMs    int64     `json:"p95_duration_ms"`
	PeakHour         int       `json:"peak_hour"`
	ErrorPatterns    []string  `json:"error_patterns,omitempty"`
	CommonSequences  []string  `json:"common_sequences,omitempty"`
	Recommendations  []string  `json:"recommendations,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ═══════════════════════════════════════════════════════════════════════════════

// TaskRepository manages tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	SearchTasks(ctx context.Context, query string) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
}

// TimeTrackingRepository manages timer sessions.
type TimeTrackingRepository interface {
	StartSession(ctx context.Context, s *TimerSession) error
	StopSession(ctx context.Context, id string, endedAt time.Time) (*TimerSession, error)
	ActiveSession(ctx context.Context) (*TimerSession, error)
	ListSessions(ctx context.Context, from, to time.Time) ([]*TimerSession, error)
	GetStats(ctx context.Context, from, to time.Time) (*TimeStats, error)
}

// SessionToolStats aggregates one tool's executions within a session.
type SessionToolStats struct {
	Tool          string  `json:"tool"`
	Executions    int     `json:"executions"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
}

// LogRepository persists execution logs and analytics reports.
type LogRepository interface {
	SaveExecution(ctx context.Context, rec *ExecutionRecord) error
	ListExecutions(ctx context.Context, filter LogFilter) ([]*ExecutionRecord, error)
	CountExecutions(ctx context.Context) (int, error)
	GetSessionToolStats(ctx context.Context, sessionID string) ([]SessionToolStats, error)
	SaveAnalytics(ctx context.Context, report *AnalyticsReport) error
	LatestAnalytics(ctx context.Context) (*AnalyticsReport, error)
}

// NotFoundError is returned by Get/Update/Stop operations for missing records.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.ID
}
