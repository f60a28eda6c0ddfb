package execlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/internal/tools"
	"github.com/focusdeck/focusdeck/pkg/types"
)

func TestClassifyPerformance(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, PerfFast},
		{100, PerfFast},
		{101, PerfNormal},
		{1000, PerfNormal},
		{1001, PerfSlow},
		{5000, PerfSlow},
		{5001, PerfVerySlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyPerformance(tt.ms), "ms=%d", tt.ms)
	}
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, "task_management", categorize("get_tasks"))
	assert.Equal(t, "task_management", categorize("create_task"))
	assert.Equal(t, "time_tracking", categorize("start_timer"))
	assert.Equal(t, "analytics", categorize("analyze_productivity"))
	assert.Equal(t, "data_retrieval", categorize("list_notes"))
	assert.Equal(t, "data_modification", categorize("delete_note"))
	assert.Equal(t, "general", categorize("something_else"))
}

func TestSuggestRecovery(t *testing.T) {
	assert.Contains(t, suggestRecovery("task not found: t1"), "identifier")
	assert.Contains(t, suggestRecovery("a timer is already running"), "Stop the current timer")
	assert.Contains(t, suggestRecovery("no active timer session"), "Start a timer")
	assert.Contains(t, suggestRecovery("create_task: missing required parameter \"title\""), "missing parameter")
	assert.Contains(t, suggestRecovery("context deadline exceeded"), "timed out")
	assert.Equal(t, "", suggestRecovery(""))
	assert.NotEmpty(t, suggestRecovery("something odd"))
}

func TestRecordExecutionPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	log := New(store, Config{})
	ctx := context.Background()

	log.RecordExecution(ctx, tools.ExecutionEvent{
		SessionID: "sess-1",
		Tool:      "get_tasks",
		Arguments: map[string]any{"status": "pending"},
		Outcome: &types.ToolOutcome{
			Success:    true,
			DurationMs: 42,
		},
		ParametersInferred:  true,
		InferenceConfidence: 0.8,
	})

	records, err := store.ListExecutions(ctx, storage.LogFilter{})
	assert.NoError(t, err)
	assert.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "get_tasks", rec.Tool)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.True(t, rec.Success)
	assert.Equal(t, PerfFast, rec.PerformanceClass)
	assert.Equal(t, "task_management", rec.Category)
	assert.True(t, rec.ParametersInferred)
	assert.Equal(t, 0.8, rec.InferenceConfidence)
	assert.Empty(t, rec.RecoverySuggestion)
}

func TestRecordExecutionFailureGetsSuggestion(t *testing.T) {
	store := storage.NewMemoryStore()
	log := New(store, Config{})
	ctx := context.Background()

	log.RecordExecution(ctx, tools.ExecutionEvent{
		Tool: "update_task",
		Outcome: &types.ToolOutcome{
			Success:    false,
			Error:      "task not found: ghost",
			DurationMs: 3,
		},
	})

	records, err := store.ListExecutions(ctx, storage.LogFilter{OnlyFailures: true})
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "task not found: ghost", records[0].ErrorMessage)
	assert.NotEmpty(t, records[0].RecoverySuggestion)
}

func TestRecordExecutionSurvivesCancelledContext(t *testing.T) {
	store := storage.NewMemoryStore()
	log := New(store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log.RecordExecution(ctx, tools.ExecutionEvent{
		Tool:    "get_tasks",
		Outcome: &types.ToolOutcome{Success: true, DurationMs: 1},
	})

	records, err := store.ListExecutions(context.Background(), storage.LogFilter{})
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAnalyticsCadence(t *testing.T) {
	store := storage.NewMemoryStore()
	log := New(store, Config{AnalyticsEvery: 5})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		log.RecordExecution(ctx, tools.ExecutionEvent{
			Tool:    "get_tasks",
			Outcome: &types.ToolOutcome{Success: true, DurationMs: 10},
		})
	}
	report, err := store.LatestAnalytics(ctx)
	assert.NoError(t, err)
	assert.Nil(t, report)

	// The fifth execution crosses the cadence threshold.
	log.RecordExecution(ctx, tools.ExecutionEvent{
		Tool:    "start_timer",
		Outcome: &types.ToolOutcome{Success: false, Error: "a timer is already running", DurationMs: 5},
	})

	report, err = store.LatestAnalytics(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, 5, report.TotalExecutions)
	assert.InDelta(t, 0.8, report.SuccessRate, 0.001)
	assert.Equal(t, "get_tasks", report.MostUsedTool)
}

func TestPerformanceTracker(t *testing.T) {
	tracker := NewPerformanceTracker()
	now := time.Now().UTC()

	for i, ms := range []int64{10, 20, 30} {
		tracker.Record(&storage.ExecutionRecord{
			Tool:             "get_tasks",
			Success:          i != 2,
			DurationMs:       ms,
			PerformanceClass: classifyPerformance(ms),
			Timestamp:        now,
		})
	}
	tracker.Record(&storage.ExecutionRecord{
		Tool:             "start_timer",
		Success:          true,
		DurationMs:       200,
		PerformanceClass: classifyPerformance(200),
		Timestamp:        now,
	})

	snap := tracker.Snapshot()
	assert.Equal(t, 4, snap.TotalExecutions)
	assert.Equal(t, 1, snap.TotalFailures)
	assert.Equal(t, 3, snap.ByClass[PerfFast])
	assert.Equal(t, 1, snap.ByClass[PerfNormal])

	tasks := snap.ByTool["get_tasks"]
	assert.Equal(t, 3, tasks.Executions)
	assert.Equal(t, 1, tasks.Failures)
	assert.Equal(t, int64(10), tasks.MinDurationMs)
	assert.Equal(t, int64(30), tasks.MaxDurationMs)

	assert.InDelta(t, 0.75, tracker.SuccessRate(), 0.001)
}
