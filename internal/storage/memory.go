package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the repository interfaces.
// It backs tests and the demo mode where no database file is wanted.
type MemoryStore struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	sessions   map[string]*TimerSession
	executions []*ExecutionRecord
	analytics  []*AnalyticsReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*Task),
		sessions: make(map[string]*TimerSession),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASKS
// ═══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) CreateTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &NotFoundError{Kind: "task", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Task
	for _, t := range m.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !hasTag(t.Tags, filter.Tag) {
			continue
		}
		if filter.DueAfter != nil && (t.DueDate == nil || t.DueDate.Before(*filter.DueAfter)) {
			continue
		}
		if filter.DueBy != nil && (t.DueDate == nil || t.DueDate.After(*filter.DueBy)) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SearchTasks(ctx context.Context, query string) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []*Task
	for _, t := range m.tasks {
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return &NotFoundError{Kind: "task", ID: t.ID}
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return &NotFoundError{Kind: "task", ID: id}
	}
	delete(m.tasks, id)
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIMER SESSIONS
// ═══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) StartSession(ctx context.Context, s *TimerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) StopSession(ctx context.Context, id string, endedAt time.Time) (*TimerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return nil, &NotFoundError{Kind: "timer session", ID: id}
	}
	ended := endedAt
	s.EndedAt = &ended
	s.DurationSec = int64(endedAt.Sub(s.StartedAt).Seconds())
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ActiveSession(ctx context.Context) (*TimerSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *TimerSession
	for _, s := range m.sessions {
		if s.EndedAt != nil {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, from, to time.Time) ([]*TimerSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TimerSession
	for _, s := range m.sessions {
		if s.StartedAt.Before(from) || s.StartedAt.After(to) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) GetStats(ctx context.Context, from, to time.Time) (*TimeStats, error) {
	sessions, err := m.ListSessions(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := &TimeStats{From: from, To: to, ByTask: make(map[string]int64)}
	now := time.Now().UTC()
	for _, s := range sessions {
		dur := s.DurationSec
		if s.Active() {
			dur = int64(now.Sub(s.StartedAt).Seconds())
		}
		stats.TotalSeconds += dur
		stats.SessionCount++
		if s.TaskID != "" {
			stats.ByTask[s.TaskID] += dur
		}
	}
	return stats, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LOGS
// ═══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) SaveExecution(ctx context.Context, rec *ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *MemoryStore) ListExecutions(ctx context.Context, filter LogFilter) ([]*ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ExecutionRecord
	for _, rec := range m.executions {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.Tool != "" && rec.Tool != filter.Tool {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && rec.Timestamp.After(filter.Until) {
			continue
		}
		if filter.OnlyFailures && rec.Success {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountExecutions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.executions), nil
}

func (m *MemoryStore) GetSessionToolStats(ctx context.Context, sessionID string) ([]SessionToolStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTool := make(map[string]*SessionToolStats)
	totals := make(map[string]int64)
	for _, rec := range m.executions {
		if rec.SessionID != sessionID {
			continue
		}
		st, ok := byTool[rec.Tool]
		if !ok {
			st = &SessionToolStats{Tool: rec.Tool}
			byTool[rec.Tool] = st
		}
		st.Executions++
		if rec.Success {
			st.Successes++
		}
		totals[rec.Tool] += rec.DurationMs
	}

	out := make([]SessionToolStats, 0, len(byTool))
	for tool, st := range byTool {
		st.SuccessRate = float64(st.Successes) / float64(st.Executions)
		st.AvgDurationMs = totals[tool] / int64(st.Executions)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Executions != out[j].Executions {
			return out[i].Executions > out[j].Executions
		}
		return out[i].Tool < out[j].Tool
	})
	return out, nil
}

func (m *MemoryStore) SaveAnalytics(ctx context.Context, report *AnalyticsReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *report
	m.analytics = append(m.analytics, &cp)
	return nil
}

func (m *MemoryStore) LatestAnalytics(ctx context.Context) (*AnalyticsReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.analytics) == 0 {
		return nil, nil
	}
	cp := *m.analytics[len(m.analytics)-1]
	return &cp, nil
}
