package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION RECORDING
// ═══════════════════════════════════════════════════════════════════════════════

// ExecutionEvent describes one completed tool execution for the detailed log.
type ExecutionEvent struct {
	SessionID           string
	Tool                string
	Arguments           map[string]any
	Outcome             *types.ToolOutcome
	ParametersInferred  bool
	InferenceConfidence float64
}

// ExecutionRecorder receives execution events. Implementations must not block
// the caller on persistence.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, ev ExecutionEvent)
}

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════

// Registry holds the available tools, ranks them for a user message, and runs
// them with permission gating, parameter inference and validation.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string // registration order, for deterministic iteration
	stats    map[string]*UsageStats
	recorder ExecutionRecorder
	log      *logging.Logger
}

// RegistryOption customizes the registry.
type RegistryOption func(*Registry)

// WithRecorder attaches an execution recorder.
func WithRecorder(rec ExecutionRecorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		stats: make(map[string]*UsageStats),
		log:   logging.WithComponent("tools"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Registering the same name twice replaces the earlier
// tool but keeps its position and stats.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
		r.stats[name] = &UsageStats{Tool: name, ParameterCounts: make(map[string]int)}
	}
	r.tools[name] = t
	r.log.Debug("Registered tool: %s", name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AvailableTools returns the capabilities of every tool the given permissions
// allow, in registration order.
func (r *Registry) AvailableTools(perms PermissionSet) []ToolCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolCapability
	for _, name := range r.order {
		t := r.tools[name]
		if t.CheckPermissions(perms) {
			out = append(out, t.Capability())
		}
	}
	return out
}

// Stats returns a copy of the usage stats for a tool.
func (r *Registry) Stats(name string) (UsageStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stats[name]
	if !ok {
		return UsageStats{}, false
	}
	out := *s
	out.ParameterCounts = make(map[string]int, len(s.ParameterCounts))
	for k, v := range s.ParameterCounts {
		out.ParameterCounts[k] = v
	}
	return out, true
}

// ═══════════════════════════════════════════════════════════════════════════════
// RELEVANCE RANKING
// ═══════════════════════════════════════════════════════════════════════════════

// intentKeywords maps tool names to verbs and phrases that signal intent.
var intentKeywords = map[string][]string{
	"get_tasks":            {"list", "show", "what", "which", "see", "view", "pending", "my tasks", "to do", "todo"},
	"create_task":          {"create", "add", "new task", "remind me", "need to", "make a"},
	"update_task":          {"update", "complete", "finish", "done", "mark", "change", "edit", "reschedule"},
	"start_timer":          {"start", "begin", "focus", "pomodoro", "track time", "work on"},
	"stop_timer":           {"stop", "end", "pause", "finished", "break"},
	"timer_status":         {"timer", "how long", "running", "elapsed", "status"},
	"analyze_productivity": {"productive", "productivity", "summary", "analyze", "how much", "stats", "report"},
}

// SuggestTools ranks permitted tools by relevance to the user message.
// Relevance adds 0.8 for a direct name mention, 0.2 per intent keyword hit,
// and clamps at 1.0. Confidence is relevance scaled by how confidently the
// tool can infer its own parameters. Results are sorted by relevance, ties
// broken by name; tools with zero relevance are omitted.
func (r *Registry) SuggestTools(tctx *ToolContext, perms PermissionSet) []Suggestion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg := strings.ToLower(tctx.UserMessage)
	var out []Suggestion
	for _, name := range r.order {
		t := r.tools[name]
		if !t.CheckPermissions(perms) {
			continue
		}
		rel := relevance(name, msg)
		if rel <= 0 {
			continue
		}
		inferred := t.InferParameters(tctx)
		out = append(out, Suggestion{
			Tool:       name,
			Relevance:  rel,
			Confidence: rel * inferred.Confidence,
			Inferred:   inferred,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// relevance scores how well a message matches a tool.
func relevance(name, msg string) float64 {
	score := 0.0
	spoken := strings.ReplaceAll(name, "_", " ")
	if strings.Contains(msg, name) || strings.Contains(msg, spoken) {
		score += 0.8
	}
	for _, kw := range intentKeywords[name] {
		if strings.Contains(msg, kw) {
			score += 0.2
		}
	}
	return clamp(score, 0, 1.0)
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ═══════════════════════════════════════════════════════════════════════════════

// ExecuteSmart runs a tool with parameter inference: inferred arguments are
// merged under the caller's explicit arguments, validated, and executed. The
// outcome carries the measured duration.
func (r *Registry) ExecuteSmart(ctx context.Context, name string, userArgs map[string]any, tctx *ToolContext, perms PermissionSet) (*types.ToolOutcome, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, types.NewToolNotFound(name)
	}
	if !t.CheckPermissions(perms) {
		return nil, types.NewPermissionDenied(name)
	}

	inferred := t.InferParameters(tctx)
	args := mergeArguments(inferred.Arguments, userArgs)
	usedInference := len(userArgs) == 0 && len(inferred.Arguments) > 0

	if err := t.ValidateParameters(args); err != nil {
		return nil, err
	}

	return r.run(ctx, t, args, tctx, usedInference, inferred.Confidence)
}

// ExecuteDirect runs a tool with exactly the given arguments, no inference.
func (r *Registry) ExecuteDirect(ctx context.Context, name string, args map[string]any, tctx *ToolContext, perms PermissionSet) (*types.ToolOutcome, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, types.NewToolNotFound(name)
	}
	if !t.CheckPermissions(perms) {
		return nil, types.NewPermissionDenied(name)
	}
	if err := t.ValidateParameters(args); err != nil {
		return nil, err
	}
	return r.run(ctx, t, args, tctx, false, 0)
}

func (r *Registry) run(ctx context.Context, t Tool, args map[string]any, tctx *ToolContext, inferred bool, confidence float64) (*types.ToolOutcome, error) {
	name := t.Name()
	start := time.Now()
	outcome, err := t.Execute(ctx, args, tctx)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		outcome = failureOutcome("tool %s returned no outcome", name)
	}
	outcome.DurationMs = elapsed.Milliseconds()

	r.recordStats(name, args, outcome)

	if outcome.Success {
		r.log.Debug("Tool %s succeeded in %dms", name, outcome.DurationMs)
	} else {
		r.log.Warn("Tool %s failed in %dms: %s", name, outcome.DurationMs, outcome.Error)
	}

	if r.recorder != nil {
		sessionID := ""
		if tctx != nil {
			if id, ok := tctx.Metadata["session_id"].(string); ok {
				sessionID = id
			}
		}
		r.recorder.RecordExecution(ctx, ExecutionEvent{
			SessionID:           sessionID,
			Tool:                name,
			Arguments:           args,
			Outcome:             outcome,
			ParametersInferred:  inferred,
			InferenceConfidence: confidence,
		})
	}
	return outcome, nil
}

func (r *Registry) recordStats(name string, args map[string]any, outcome *types.ToolOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats[name]
	if s == nil {
		s = &UsageStats{Tool: name, ParameterCounts: make(map[string]int)}
		r.stats[name] = s
	}
	s.TotalExecutions++
	if outcome.Success {
		s.SuccessCount++
	}
	// Running average keeps the window O(1).
	s.AvgDurationMs = s.AvgDurationMs + (outcome.DurationMs-s.AvgDurationMs)/int64(s.TotalExecutions)
	s.LastUsed = time.Now().UTC()
	for k := range args {
		s.ParameterCounts[k]++
	}
}

// mergeArguments layers explicit arguments over inferred ones. Explicit wins.
func mergeArguments(inferred, explicit map[string]any) map[string]any {
	out := make(map[string]any, len(inferred)+len(explicit))
	for k, v := range inferred {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}
