package execlog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/focusdeck/focusdeck/internal/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// USAGE ANALYTICS
// ═══════════════════════════════════════════════════════════════════════════════

// analyticsFetchLimit bounds how many records one report reads.
const analyticsFetchLimit = 10_000

// BuildAnalytics derives a usage report from the executions inside the
// window ending now.
func BuildAnalytics(ctx context.Context, repo storage.LogRepository, window time.Duration) (*storage.AnalyticsReport, error) {
	now := time.Now().UTC()
	since := now.Add(-window)

	records, err := repo.ListExecutions(ctx, storage.LogFilter{
		Since: since,
		Limit: analyticsFetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	report := &storage.AnalyticsReport{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		WindowStart: since,
		WindowEnd:   now,
	}
	if len(records) == 0 {
		report.SuccessRate = 1.0
		return report, nil
	}

	report.TotalExecutions = len(records)
	report.SuccessRate = successRate(records)
	report.MostUsedTool = mostUsedTool(records)
	report.MostReliableTool = mostReliableTool(records)
	report.MinDurationMs, report.AvgDurationMs, report.MaxDurationMs, report.P95DurationMs = durationSpread(records)
	report.PeakHour = peakHour(records)
	report.ErrorPatterns = errorPatterns(records)
	report.CommonSequences = commonSequences(records)
	report.Recommendations = recommendations(records)

	return report, nil
}

func successRate(records []*storage.ExecutionRecord) float64 {
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

func mostUsedTool(records []*storage.ExecutionRecord) string {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Tool]++
	}
	best, bestCount := "", 0
	for tool, n := range counts {
		if n > bestCount || (n == bestCount && tool < best) {
			best, bestCount = tool, n
		}
	}
	return best
}

// mostReliableTool picks the highest success rate among tools with enough
// volume to judge.
func mostReliableTool(records []*storage.ExecutionRecord) string {
	type tally struct{ total, ok int }
	counts := make(map[string]*tally)
	for _, r := range records {
		t := counts[r.Tool]
		if t == nil {
			t = &tally{}
			counts[r.Tool] = t
		}
		t.total++
		if r.Success {
			t.ok++
		}
	}

	best, bestRate := "", -1.0
	for tool, t := range counts {
		if t.total < 3 {
			continue
		}
		rate := float64(t.ok) / float64(t.total)
		if rate > bestRate || (rate == bestRate && tool < best) {
			best, bestRate = tool, rate
		}
	}
	return best
}

func durationSpread(records []*storage.ExecutionRecord) (min, avg, max, p95 int64) {
	durations := make([]int64, len(records))
	var sum int64
	for i, r := range records {
		durations[i] = r.DurationMs
		sum += r.DurationMs
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	min = durations[0]
	max = durations[len(durations)-1]
	avg = sum / int64(len(durations))

	idx := (len(durations) * 95) / 100
	if idx >= len(durations) {
		idx = len(durations) - 1
	}
	p95 = durations[idx]
	return min, avg, max, p95
}

func peakHour(records []*storage.ExecutionRecord) int {
	var byHour [24]int
	for _, r := range records {
		byHour[r.Timestamp.UTC().Hour()]++
	}
	peak := 0
	for h, n := range byHour {
		if n > byHour[peak] {
			peak = h
		}
	}
	return peak
}

// errorPatterns summarizes recurring failures as "tool: message (xN)".
func errorPatterns(records []*storage.ExecutionRecord) []string {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Success || r.ErrorMessage == "" {
			continue
		}
		counts[r.Tool+": "+r.ErrorMessage]++
	}

	var out []string
	for pattern, n := range counts {
		if n >= 2 {
			out = append(out, fmt.Sprintf("%s (x%d)", pattern, n))
		}
	}
	sort.Strings(out)
	return out
}

// commonSequences finds tool pairs that repeatedly run back to back inside a
// session.
func commonSequences(records []*storage.ExecutionRecord) []string {
	bySession := make(map[string][]*storage.ExecutionRecord)
	for _, r := range records {
		if r.SessionID != "" {
			bySession[r.SessionID] = append(bySession[r.SessionID], r)
		}
	}

	pairs := make(map[string]int)
	for _, recs := range bySession {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
		for i := 1; i < len(recs); i++ {
			if recs[i-1].Tool != recs[i].Tool {
				pairs[recs[i-1].Tool+" -> "+recs[i].Tool]++
			}
		}
	}

	var out []string
	for pair, n := range pairs {
		if n >= 3 {
			out = append(out, fmt.Sprintf("%s (x%d)", pair, n))
		}
	}
	sort.Strings(out)
	return out
}

// recommendations applies simple rules to the window's executions.
func recommendations(records []*storage.ExecutionRecord) []string {
	type tally struct {
		total, ok int
		sumMs     int64
	}
	counts := make(map[string]*tally)
	for _, r := range records {
		t := counts[r.Tool]
		if t == nil {
			t = &tally{}
			counts[r.Tool] = t
		}
		t.total++
		if r.Success {
			t.ok++
		}
		t.sumMs += r.DurationMs
	}

	tools := make([]string, 0, len(counts))
	for tool := range counts {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	var out []string
	for _, tool := range tools {
		t := counts[tool]
		avg := t.sumMs / int64(t.total)
		rate := float64(t.ok) / float64(t.total)

		if t.total > 5 && rate < 0.9 {
			out = append(out, fmt.Sprintf(
				"%s fails often (%.0f%% success over %d runs); review its inputs.",
				tool, rate*100, t.total))
		}
		if avg > 2000 {
			out = append(out, fmt.Sprintf(
				"%s averages %dms per run; consider caching its results.", tool, avg))
		}
		if t.total >= 10 && avg > 1000 {
			out = append(out, fmt.Sprintf(
				"%s is both frequent (%d runs) and slow (%dms avg); it dominates execution time.",
				tool, t.total, avg))
		}
	}
	return out
}
