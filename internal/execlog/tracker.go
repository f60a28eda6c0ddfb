package execlog

import (
	"sync"
	"time"

	"github.com/focusdeck/focusdeck/internal/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION PERFORMANCE TRACKING
// ═══════════════════════════════════════════════════════════════════════════════

// ToolSnapshot is the running view of one tool inside the current process.
type ToolSnapshot struct {
	Tool          string    `json:"tool"`
	Executions    int       `json:"executions"`
	Failures      int       `json:"failures"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	MinDurationMs int64     `json:"min_duration_ms"`
	MaxDurationMs int64     `json:"max_duration_ms"`
	LastUsed      time.Time `json:"last_used"`
}

// Snapshot is the process-lifetime execution summary.
type Snapshot struct {
	TotalExecutions int                     `json:"total_executions"`
	TotalFailures   int                     `json:"total_failures"`
	ByTool          map[string]ToolSnapshot `json:"by_tool"`
	ByClass         map[string]int          `json:"by_class"`
	ErrorPatterns   map[string]int          `json:"error_patterns,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
}

// PerformanceTracker accumulates execution statistics in memory. Every update
// is constant time regardless of how many executions have been recorded.
type PerformanceTracker struct {
	mu        sync.RWMutex
	byTool    map[string]*ToolSnapshot
	byClass   map[string]int
	errors    map[string]int
	total     int
	failures  int
	startedAt time.Time
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		byTool:    make(map[string]*ToolSnapshot),
		byClass:   make(map[string]int),
		errors:    make(map[string]int),
		startedAt: time.Now().UTC(),
	}
}

// Record folds one execution into the running statistics.
func (t *PerformanceTracker) Record(rec *storage.ExecutionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	if !rec.Success {
		t.failures++
		if rec.ErrorMessage != "" {
			t.errors[rec.Tool+": "+rec.ErrorMessage]++
		}
	}
	t.byClass[rec.PerformanceClass]++

	s := t.byTool[rec.Tool]
	if s == nil {
		s = &ToolSnapshot{Tool: rec.Tool, MinDurationMs: rec.DurationMs}
		t.byTool[rec.Tool] = s
	}
	s.Executions++
	if !rec.Success {
		s.Failures++
	}
	s.AvgDurationMs = s.AvgDurationMs + (rec.DurationMs-s.AvgDurationMs)/int64(s.Executions)
	if rec.DurationMs < s.MinDurationMs {
		s.MinDurationMs = rec.DurationMs
	}
	if rec.DurationMs > s.MaxDurationMs {
		s.MaxDurationMs = rec.DurationMs
	}
	s.LastUsed = rec.Timestamp
}

// Snapshot returns a copy of the current statistics.
func (t *PerformanceTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Snapshot{
		TotalExecutions: t.total,
		TotalFailures:   t.failures,
		ByTool:          make(map[string]ToolSnapshot, len(t.byTool)),
		ByClass:         make(map[string]int, len(t.byClass)),
		StartedAt:       t.startedAt,
	}
	for name, s := range t.byTool {
		out.ByTool[name] = *s
	}
	for class, n := range t.byClass {
		out.ByClass[class] = n
	}
	if len(t.errors) > 0 {
		out.ErrorPatterns = make(map[string]int, len(t.errors))
		for pattern, n := range t.errors {
			out.ErrorPatterns[pattern] = n
		}
	}
	return out
}

// SuccessRate returns the process-lifetime success fraction.
func (t *PerformanceTracker) SuccessRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.total == 0 {
		return 1.0
	}
	return float64(t.total-t.failures) / float64(t.total)
}
