package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// Store provides SQLite-backed implementations of TaskRepository,
// TimeTrackingRepository and LogRepository.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the assistant database at dbPath and runs
// migrations. The path must be on a local filesystem.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// initPragmas configures SQLite for performance and safety.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA foreign_keys = ON",    // Enforce referential integrity
		"PRAGMA busy_timeout = 5000",  // Wait 5 seconds if locked
		"PRAGMA cache_size = -64000",  // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",  // Keep temp tables in memory
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Migrate runs all embedded schema migrations. Idempotent.
func (s *Store) Migrate() error {
	migrations := []struct {
		name   string
		schema string
	}{
		{"initial_schema", initialSchema},
	}

	for _, m := range migrations {
		if err := s.runMigration(m.name, m.schema); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}

	return nil
}

// runMigration executes a single migration schema inside a transaction.
func (s *Store) runMigration(name, schema string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range splitSQL(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	return nil
}

// splitSQL splits a schema into individual statements.
func splitSQL(schema string) []string {
	return strings.Split(schema, ";")
}

// Health checks if the database connection is alive and responsive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close flushes the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: WAL checkpoint failed: %v\n", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASK OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreateTask inserts a new task.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	query := `
		INSERT INTO tasks (
			id, title, description, status, priority, tags,
			due_date, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Title,
		nullString(t.Description),
		string(t.Status),
		t.Priority,
		nullString(joinTags(t.Tags)),
		nullTime(t.DueDate),
		t.CreatedAt,
		t.UpdatedAt,
		nullTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `
		SELECT id, title, description, status, priority, tags,
		       due_date, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `
		SELECT id, title, description, status, priority, tags,
		       due_date, created_at, updated_at, completed_at
		FROM tasks
	`
	var conds []string
	var args []any

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Tag != "" {
		conds = append(conds, "tags LIKE ?")
		args = append(args, "%"+filter.Tag+"%")
	}
	if filter.DueAfter != nil {
		conds = append(conds, "due_date >= ?")
		args = append(args, *filter.DueAfter)
	}
	if filter.DueBy != nil {
		conds = append(conds, "due_date <= ?")
		args = append(args, *filter.DueBy)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SearchTasks returns tasks whose title or description contains the query
// text, case-insensitively, newest first.
func (s *Store) SearchTasks(ctx context.Context, query string) ([]*Task, error) {
	stmt := `
		SELECT id, title, description, status, priority, tags,
		       due_date, created_at, updated_at, completed_at
		FROM tasks
		WHERE title LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE
		ORDER BY created_at DESC
	`
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, stmt, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask rewrites a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	query := `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?,
			tags = ?, due_date = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		t.Title,
		nullString(t.Description),
		string(t.Status),
		t.Priority,
		nullString(joinTags(t.Tags)),
		nullTime(t.DueDate),
		t.UpdatedAt,
		nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "task", ID: t.ID}
	}
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIMER OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// StartSession inserts a running timer session.
func (s *Store) StartSession(ctx context.Context, sess *TimerSession) error {
	query := `
		INSERT INTO timer_sessions (id, task_id, note, started_at, ended_at, duration_sec)
		VALUES (?, ?, ?, ?, NULL, 0)
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		nullString(sess.TaskID),
		nullString(sess.Note),
		sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert timer session: %w", err)
	}
	return nil
}

// StopSession ends a running session and returns the updated record.
func (s *Store) StopSession(ctx context.Context, id string, endedAt time.Time) (*TimerSession, error) {
	query := `
		UPDATE timer_sessions
		SET ended_at = ?, duration_sec = CAST((julianday(?) - julianday(started_at)) * 86400 AS INTEGER)
		WHERE id = ? AND ended_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, endedAt, endedAt, id)
	if err != nil {
		return nil, fmt.Errorf("stop timer session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Kind: "timer session", ID: id}
	}
	return s.getSession(ctx, id)
}

func (s *Store) getSession(ctx context.Context, id string) (*TimerSession, error) {
	query := `
		SELECT id, task_id, note, started_at, ended_at, duration_sec
		FROM timer_sessions WHERE id = ?
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "timer session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get timer session: %w", err)
	}
	return sess, nil
}

// ActiveSession returns the running session, or nil when none is active.
func (s *Store) ActiveSession(ctx context.Context) (*TimerSession, error) {
	query := `
		SELECT id, task_id, note, started_at, ended_at, duration_sec
		FROM timer_sessions WHERE ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions that started inside [from, to], newest first.
func (s *Store) ListSessions(ctx context.Context, from, to time.Time) ([]*TimerSession, error) {
	query := `
		SELECT id, task_id, note, started_at, ended_at, duration_sec
		FROM timer_sessions
		WHERE started_at >= ? AND started_at <= ?
		ORDER BY started_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*TimerSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetStats aggregates tracked time over [from, to]. Running sessions count
// their elapsed time so far.
func (s *Store) GetStats(ctx context.Context, from, to time.Time) (*TimeStats, error) {
	sessions, err := s.ListSessions(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := &TimeStats{From: from, To: to, ByTask: make(map[string]int64)}
	now := time.Now().UTC()
	for _, sess := range sessions {
		dur := sess.DurationSec
		if sess.Active() {
			dur = int64(now.Sub(sess.StartedAt).Seconds())
		}
		stats.TotalSeconds += dur
		stats.SessionCount++
		if sess.TaskID != "" {
			stats.ByTask[sess.TaskID] += dur
		}
	}
	return stats, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LOG OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// SaveExecution inserts an execution record.
func (s *Store) SaveExecution(ctx context.Context, rec *ExecutionRecord) error {
	args := ""
	if len(rec.Arguments) > 0 {
		data, err := json.Marshal(rec.Arguments)
		if err != nil {
			return fmt.Errorf("marshal arguments: %w", err)
		}
		args = string(data)
	}

	query := `
		INSERT INTO execution_logs (
			id, session_id, tool, arguments, success, duration_ms,
			performance_class, category, error_message, recovery_suggestion,
			parameters_inferred, inference_confidence, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.SessionID),
		rec.Tool,
		nullString(args),
		boolToInt(rec.Success),
		rec.DurationMs,
		rec.PerformanceClass,
		rec.Category,
		nullString(rec.ErrorMessage),
		nullString(rec.RecoverySuggestion),
		boolToInt(rec.ParametersInferred),
		rec.InferenceConfidence,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// ListExecutions returns execution records matching the filter, newest first.
func (s *Store) ListExecutions(ctx context.Context, filter LogFilter) ([]*ExecutionRecord, error) {
	query := `
		SELECT id, session_id, tool, arguments, success, duration_ms,
		       performance_class, category, error_message, recovery_suggestion,
		       parameters_inferred, inference_confidence, timestamp
		FROM execution_logs
	`
	var conds []string
	var args []any

	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, filter.Tool)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.Until)
	}
	if filter.OnlyFailures {
		conds = append(conds, "success = 0")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountExecutions returns the total number of persisted executions.
func (s *Store) CountExecutions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_logs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count execution logs: %w", err)
	}
	return count, nil
}

// GetSessionToolStats aggregates per-tool counts, success rate and average
// duration for one session, most-executed tool first.
func (s *Store) GetSessionToolStats(ctx context.Context, sessionID string) ([]SessionToolStats, error) {
	query := `
		SELECT tool,
		       COUNT(*),
		       SUM(success),
		       CAST(AVG(duration_ms) AS INTEGER)
		FROM execution_logs
		WHERE session_id = ?
		GROUP BY tool
		ORDER BY COUNT(*) DESC, tool
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session tool stats: %w", err)
	}
	defer rows.Close()

	var stats []SessionToolStats
	for rows.Next() {
		var st SessionToolStats
		if err := rows.Scan(&st.Tool, &st.Executions, &st.Successes, &st.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("scan session tool stats: %w", err)
		}
		if st.Executions > 0 {
			st.SuccessRate = float64(st.Successes) / float64(st.Executions)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// SaveAnalytics persists an analytics report as JSON.
func (s *Store) SaveAnalytics(ctx context.Context, report *AnalyticsReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal analytics report: %w", err)
	}

	query := `
		INSERT INTO usage_analytics (id, generated_at, window_start, window_end, report)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		report.ID, report.GeneratedAt, report.WindowStart, report.WindowEnd, string(data))
	if err != nil {
		return fmt.Errorf("insert analytics report: %w", err)
	}
	return nil
}

// LatestAnalytics returns the most recent analytics report, or nil.
func (s *Store) LatestAnalytics(ctx context.Context) (*AnalyticsReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM usage_analytics ORDER BY generated_at DESC LIMIT 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analytics: %w", err)
	}

	var report AnalyticsReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("unmarshal analytics report: %w", err)
	}
	return &report, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCAN HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var description, tags sql.NullString
	var status string
	var dueDate, completedAt sql.NullTime

	err := row.Scan(&t.ID, &t.Title, &description, &status, &t.Priority, &tags,
		&dueDate, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Status = TaskStatus(status)
	t.Tags = splitTags(tags.String)
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanSession(row rowScanner) (*TimerSession, error) {
	var sess TimerSession
	var taskID, note sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(&sess.ID, &taskID, &note, &sess.StartedAt, &endedAt, &sess.DurationSec)
	if err != nil {
		return nil, err
	}

	sess.TaskID = taskID.String
	sess.Note = note.String
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}

func scanExecution(row rowScanner) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	var sessionID, args, errMsg, recovery sql.NullString
	var success, inferred int
	var confidence sql.NullFloat64

	err := row.Scan(&rec.ID, &sessionID, &rec.Tool, &args, &success, &rec.DurationMs,
		&rec.PerformanceClass, &rec.Category, &errMsg, &recovery,
		&inferred, &confidence, &rec.Timestamp)
	if err != nil {
		return nil, err
	}

	rec.SessionID = sessionID.String
	rec.Success = success != 0
	rec.ErrorMessage = errMsg.String
	rec.RecoverySuggestion = recovery.String
	rec.ParametersInferred = inferred != 0
	rec.InferenceConfidence = confidence.Float64
	if args.Valid && args.String != "" {
		if err := json.Unmarshal([]byte(args.String), &rec.Arguments); err != nil {
			return nil, fmt.Errorf("unmarshal arguments: %w", err)
		}
	}
	return &rec, nil
}

// nullString converts an empty string to NULL for SQLite.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime converts a nil time pointer to NULL for SQLite.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
