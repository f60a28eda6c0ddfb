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
// GET TASKS
// ═══════════════════════════════════════════════════════════════════════════════

// GetTasksTool lists tasks, optionally filtered by status or tag.
type GetTasksTool struct {
	repo storage.TaskRepository
}

// NewGetTasksTool creates the get_tasks tool.
func NewGetTasksTool(repo storage.TaskRepository) *GetTasksTool {
	return &GetTasksTool{repo: repo}
}

func (t *GetTasksTool) Name() string { return "get_tasks" }

func (t *GetTasksTool) Description() string {
	return "List the user's tasks, optionally filtered by status, tag, due window or search text"
}

func (t *GetTasksTool) Capability() ToolCapability {
	return ToolCapability{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    "task_management",
		Parameters: []ParameterDefinition{
			{
				Name: "status", Type: "string",
				Description: "Filter by lifecycle state",
				Validation:  &ParameterValidation{AllowedValues: []string{"pending", "in_progress", "completed"}},
			},
			{
				Name: "filter", Type: "string",
				Description: "Due-date window to restrict results to",
				Validation:  &ParameterValidation{AllowedValues: []string{"today", "tomorrow", "week", "all"}},
			},
			{
				Name: "tag", Type: "string",
				Description: "Filter by tag",
			},
			{
				Name: "search", Type: "string",
				Description: "Match tasks whose title or description contains this text",
			},
			{
				Name: "limit", Type: "number",
				Description: "Maximum number of tasks to return",
				Validation:  &ParameterValidation{MinValue: f64(1), MaxValue: f64(100)},
			},
		},
		RequiredPermissions: []PermissionLevel{PermReadOnly},
		Examples:            []string{"show my tasks for today", "what's still pending?", "list completed tasks"},
	}
}

func (t *GetTasksTool) InferParameters(tctx *ToolContext) *InferredParameters {
	msg := tctx.UserMessage
	args := make(map[string]any)
	confidence := 0.6
	var notes []string

	switch {
	case containsAny(msg, "completed", "done", "finished"):
		args["status"] = "completed"
		confidence = 0.8
		notes = append(notes, "status from completion words")
	case containsAny(msg, "in progress", "working on", "started"):
		args["status"] = "in_progress"
		confidence = 0.8
		notes = append(notes, "status from progress words")
	case containsAny(msg, "pending", "todo", "to do", "open", "outstanding"):
		args["status"] = "pending"
		confidence = 0.8
		notes = append(notes, "status from pending words")
	}

	switch {
	case containsAny(msg, "today"):
		args["filter"] = "today"
		notes = append(notes, "window from \"today\"")
	case containsAny(msg, "tomorrow"):
		args["filter"] = "tomorrow"
		notes = append(notes, "window from \"tomorrow\"")
	case containsAny(msg, "this week", "week"):
		args["filter"] = "week"
		notes = append(notes, "window from week mention")
	}

	if tags := extractHashtags(msg); len(tags) > 0 {
		args["tag"] = tags[0]
		notes = append(notes, fmt.Sprintf("tag #%s from message", tags[0]))
	}

	return &InferredParameters{
		Arguments:   args,
		Confidence:  confidence,
		Explanation: strings.Join(notes, "; "),
	}
}

func (t *GetTasksTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *GetTasksTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *GetTasksTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	if q, ok := args["search"].(string); ok && strings.TrimSpace(q) != "" {
		tasks, err := t.repo.SearchTasks(ctx, q)
		if err != nil {
			return repositoryFailure("search tasks", err), nil
		}
		if len(tasks) == 0 {
			return successOutcome(tasks, "No tasks match %q", q), nil
		}
		return successOutcome(tasks, "Found %d tasks matching %q", len(tasks), q), nil
	}

	filter := storage.TaskFilter{}
	if s, ok := args["status"].(string); ok {
		filter.Status = storage.TaskStatus(s)
	}
	if tag, ok := args["tag"].(string); ok {
		filter.Tag = tag
	}
	if n, ok := toFloat(args["limit"]); ok {
		filter.Limit = int(n)
	}
	if window, ok := args["filter"].(string); ok {
		applyDueWindow(&filter, window, tctx.Now())
	}

	tasks, err := t.repo.ListTasks(ctx, filter)
	if err != nil {
		return repositoryFailure("list tasks", err), nil
	}

	if len(tasks) == 0 {
		return successOutcome(tasks, "No tasks found"), nil
	}
	return successOutcome(tasks, "Found %d tasks", len(tasks)), nil
}

// applyDueWindow translates a named window into due-date bounds. "all" and
// unrecognised values leave the filter open.
func applyDueWindow(filter *storage.TaskFilter, window string, now time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var from, until time.Time
	switch window {
	case "today":
		from, until = start, start.AddDate(0, 0, 1)
	case "tomorrow":
		from, until = start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)
	case "week":
		from, until = start, start.AddDate(0, 0, 7)
	default:
		return
	}
	until = until.Add(-time.Nanosecond)
	filter.DueAfter = &from
	filter.DueBy = &until
}

// ═══════════════════════════════════════════════════════════════════════════════
// CREATE TASK
// ═══════════════════════════════════════════════════════════════════════════════

// CreateTaskTool creates a new task from a title plus optional details.
type CreateTaskTool struct {
	repo storage.TaskRepository
}

// NewCreateTaskTool creates the create_task tool.
func NewCreateTaskTool(repo storage.TaskRepository) *CreateTaskTool {
	return &CreateTaskTool{repo: repo}
}

func (t *CreateTaskTool) Name() string { return "create_task" }

func (t *CreateTaskTool) Description() string {
	return "Create a new task with a title and optional priority, due date and tags"
}

func (t *CreateTaskTool) Capability() ToolCapability {
	return ToolCapability{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    "task_management",
		Parameters: []ParameterDefinition{
			{
				Name: "title", Type: "string", Required: true,
				Description: "Short task title",
				Validation:  &ParameterValidation{MinLength: 1, MaxLength: 500},
			},
			{
				Name: "description", Type: "string",
				Description: "Longer task description",
				Validation:  &ParameterValidation{MaxLength: 5000},
			},
			{
				Name: "priority", Type: "number",
				Description: "0 low, 1 medium, 2 high, 3 urgent",
				Validation:  &ParameterValidation{MinValue: f64(0), MaxValue: f64(3)},
			},
			{
				Name: "due_date", Type: "string",
				Description: "Due date in YYYY-MM-DD form",
				Validation:  &ParameterValidation{Pattern: `^\d{4}-\d{2}-\d{2}$`},
			},
			{
				Name: "scheduled_date", Type: "string",
				Description: `Day the task is for: "today", "tomorrow", or YYYY-MM-DD`,
			},
			{
				Name: "tags", Type: "array",
				Description: "Tags to attach",
			},
		},
		RequiredPermissions: []PermissionLevel{PermModifyTasks},
		Examples:            []string{`create a task "write report"`, "add an urgent task to call the dentist tomorrow"},
	}
}

func (t *CreateTaskTool) InferParameters(tctx *ToolContext) *InferredParameters {
	msg := tctx.UserMessage
	args := make(map[string]any)
	var notes []string
	var needsConfirm []string
	var alternatives []map[string]any
	confidence := 0.3

	if title, ok := extractQuotedText(msg); ok {
		args["title"] = title
		confidence = 0.85
		notes = append(notes, "title from quoted text")
	} else if title := titleFromVerbPhrase(msg); title != "" {
		args["title"] = title
		confidence = 0.5
		needsConfirm = append(needsConfirm, "title")
		alternatives = append(alternatives, map[string]any{"title": strings.TrimSpace(msg)})
		notes = append(notes, "title guessed from phrasing")
	}

	if p, ok := extractPriority(msg); ok {
		args["priority"] = float64(p)
		notes = append(notes, fmt.Sprintf("priority %d from urgency words", p))
	}
	if due, ok := extractDate(msg, tctx.Now()); ok {
		args["due_date"] = due.Format("2006-01-02")
		notes = append(notes, "due date from date mention")
	}
	if tags := extractHashtags(msg); len(tags) > 0 {
		args["tags"] = tags
		notes = append(notes, "tags from hashtags")
	}

	return &InferredParameters{
		Arguments:         args,
		Confidence:        confidence,
		NeedsConfirmation: needsConfirm,
		Alternatives:      alternatives,
		Explanation:       strings.Join(notes, "; "),
	}
}

// titleFromVerbPhrase strips creation phrasing to recover a title, e.g.
// "add a task to water the plants" yields "water the plants".
func titleFromVerbPhrase(msg string) string {
	lower := strings.ToLower(msg)
	prefixes := []string{
		"create a task to ", "create task to ", "create a task ", "create task ",
		"add a task to ", "add task to ", "add a task ", "add task ",
		"remind me to ", "i need to ",
	}
	for _, p := range prefixes {
		if idx := strings.Index(lower, p); idx >= 0 {
			rest := strings.TrimSpace(msg[idx+len(p):])
			rest = strings.TrimRight(rest, ".!?")
			if rest != "" {
				return rest
			}
		}
	}
	return ""
}

func (t *CreateTaskTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *CreateTaskTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *CreateTaskTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	title, _ := args["title"].(string)
	now := tctx.Now()

	task := &storage.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    storage.TaskPending,
		Priority:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if desc, ok := args["description"].(string); ok {
		task.Description = desc
	}
	if p, ok := toFloat(args["priority"]); ok {
		task.Priority = int(p)
	}
	if due, ok := args["due_date"].(string); ok {
		if parsed, err := time.ParseInLocation("2006-01-02", due, now.Location()); err == nil {
			task.DueDate = &parsed
		}
	}
	if sched, ok := args["scheduled_date"].(string); ok && task.DueDate == nil {
		if resolved, ok := resolveScheduledDate(sched, now); ok {
			task.DueDate = &resolved
		}
	}
	task.Tags = toStringSlice(args["tags"])

	if err := t.repo.CreateTask(ctx, task); err != nil {
		return repositoryFailure("create task", err), nil
	}

	return successOutcome(task, "Created task %q", task.Title), nil
}

// resolveScheduledDate turns "today"/"tomorrow" or a YYYY-MM-DD string into a
// concrete day.
func resolveScheduledDate(value string, now time.Time) (time.Time, bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "today":
		return day, true
	case "tomorrow":
		return day.AddDate(0, 0, 1), true
	}
	if parsed, err := time.ParseInLocation("2006-01-02", value, now.Location()); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// ═══════════════════════════════════════════════════════════════════════════════
// UPDATE TASK
// ═══════════════════════════════════════════════════════════════════════════════

// UpdateTaskTool changes an existing task's status, priority, title or due date.
type UpdateTaskTool struct {
	repo storage.TaskRepository
}

// NewUpdateTaskTool creates the update_task tool.
func NewUpdateTaskTool(repo storage.TaskRepository) *UpdateTaskTool {
	return &UpdateTaskTool{repo: repo}
}

func (t *UpdateTaskTool) Name() string { return "update_task" }

func (t *UpdateTaskTool) Description() string {
	return "Update an existing task's status, priority, title or due date"
}

func (t *UpdateTaskTool) Capability() ToolCapability {
	return ToolCapability{
		Name:                 t.Name(),
		Description:          t.Description(),
		Category:             "task_management",
		RequiresConfirmation: true,
		Parameters:           []ParameterDefinition{
			{
				Name: "task_id", Type: "string", Required: true,
				Description: "Identifier of the task to update",
				Validation:  &ParameterValidation{MinLength: 1},
			},
			{
				Name: "status", Type: "string",
				Description: "New lifecycle state",
				Validation:  &ParameterValidation{AllowedValues: []string{"pending", "in_progress", "completed"}},
			},
			{
				Name: "priority", Type: "number",
				Description: "0 low, 1 medium, 2 high, 3 urgent",
				Validation:  &ParameterValidation{MinValue: f64(0), MaxValue: f64(3)},
			},
			{
				Name: "title", Type: "string",
				Description: "New title",
				Validation:  &ParameterValidation{MinLength: 1, MaxLength: 500},
			},
			{
				Name: "due_date", Type: "string",
				Description: "New due date in YYYY-MM-DD form",
				Validation:  &ParameterValidation{Pattern: `^\d{4}-\d{2}-\d{2}$`},
			},
		},
		RequiredPermissions: []PermissionLevel{PermModifyTasks},
		Examples:            []string{"mark that task as done", "bump the report task to high priority"},
	}
}

func (t *UpdateTaskTool) InferParameters(tctx *ToolContext) *InferredParameters {
	msg := tctx.UserMessage
	args := make(map[string]any)
	var notes []string
	var needsConfirm []string
	var alternatives []map[string]any
	confidence := 0.3

	if tctx.ActiveTaskID != "" {
		args["task_id"] = tctx.ActiveTaskID
		confidence = 0.7
		notes = append(notes, "task from active context")
	} else if len(tctx.RecentTaskIDs) > 0 {
		args["task_id"] = tctx.RecentTaskIDs[0]
		confidence = 0.5
		needsConfirm = append(needsConfirm, "task_id")
		for _, id := range tctx.RecentTaskIDs[1:] {
			alternatives = append(alternatives, map[string]any{"task_id": id})
		}
		notes = append(notes, "task guessed from recent history")
	}

	switch {
	case containsAny(msg, "done", "complete", "finished"):
		args["status"] = "completed"
		notes = append(notes, "status from completion words")
	case containsAny(msg, "start", "working on", "in progress"):
		args["status"] = "in_progress"
		notes = append(notes, "status from progress words")
	case containsAny(msg, "reopen", "not done"):
		args["status"] = "pending"
		notes = append(notes, "status from reopen words")
	}

	if p, ok := extractPriority(msg); ok {
		args["priority"] = float64(p)
		notes = append(notes, fmt.Sprintf("priority %d from urgency words", p))
	}
	if due, ok := extractDate(msg, tctx.Now()); ok {
		args["due_date"] = due.Format("2006-01-02")
		notes = append(notes, "due date from date mention")
	}

	return &InferredParameters{
		Arguments:         args,
		Confidence:        confidence,
		NeedsConfirmation: needsConfirm,
		Alternatives:      alternatives,
		Explanation:       strings.Join(notes, "; "),
	}
}

func (t *UpdateTaskTool) ValidateParameters(args map[string]any) error {
	return validateAgainst(t.Capability(), args)
}

func (t *UpdateTaskTool) CheckPermissions(perms PermissionSet) bool {
	return perms.Covers(t.Capability().RequiredPermissions)
}

func (t *UpdateTaskTool) Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error) {
	id, _ := args["task_id"].(string)

	task, err := t.repo.GetTask(ctx, id)
	if err != nil {
		if _, ok := err.(*storage.NotFoundError); ok {
			return failureOutcome("task not found: %s", id), nil
		}
		return repositoryFailure("get task", err), nil
	}

	now := tctx.Now()
	if s, ok := args["status"].(string); ok {
		task.Status = storage.TaskStatus(s)
		if task.Status == storage.TaskCompleted {
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}
	}
	if p, ok := toFloat(args["priority"]); ok {
		task.Priority = int(p)
	}
	if title, ok := args["title"].(string); ok {
		task.Title = title
	}
	if due, ok := args["due_date"].(string); ok {
		if parsed, err := time.ParseInLocation("2006-01-02", due, now.Location()); err == nil {
			task.DueDate = &parsed
		}
	}
	task.UpdatedAt = now

	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return repositoryFailure("update task", err), nil
	}

	return successOutcome(task, "Updated task %q", task.Title), nil
}

// f64 returns a pointer for validation bounds.
func f64(v float64) *float64 { return &v }

// toStringSlice converts the array shapes JSON decoding produces.
func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
