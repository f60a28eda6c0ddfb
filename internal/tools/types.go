// Package tools provides the tool layer for the FocusDeck assistant: typed
// tool definitions for task, timer and analytics operations, parameter
// inference from conversational context, permission gating, and a registry
// that ranks and executes tools on the model's behalf.
package tools

import (
	"context"
	"time"

	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PERMISSIONS
// ═══════════════════════════════════════════════════════════════════════════════

// PermissionLevel gates what a tool may touch.
type PermissionLevel string

const (
	PermReadOnly     PermissionLevel = "read_only"
	PermModifyTasks  PermissionLevel = "modify_tasks"
	PermTimerControl PermissionLevel = "timer_control"
	PermFullAccess   PermissionLevel = "full_access"
)

// PermissionSet is the caller's granted permissions.
type PermissionSet map[PermissionLevel]bool

// NewPermissionSet builds a set from the given levels.
func NewPermissionSet(levels ...PermissionLevel) PermissionSet {
	set := make(PermissionSet, len(levels))
	for _, l := range levels {
		set[l] = true
	}
	return set
}

// FullAccess grants everything.
func FullAccess() PermissionSet {
	return NewPermissionSet(PermFullAccess)
}

// Covers reports whether the set satisfies every required level. Full access
// satisfies any requirement.
func (p PermissionSet) Covers(required []PermissionLevel) bool {
	if p[PermFullAccess] {
		return true
	}
	for _, r := range required {
		if !p[r] {
			return false
		}
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════════
// TOOL DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════

// ParameterValidation constrains a parameter's value.
type ParameterValidation struct {
	MinValue      *float64 `json:"min_value,omitempty"`
	MaxValue      *float64 `json:"max_value,omitempty"`
	MinLength     int      `json:"min_length,omitempty"`
	MaxLength     int      `json:"max_length,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// ParameterDefinition describes one tool parameter.
type ParameterDefinition struct {
	Name        string               `json:"name"`
	Type        string               `json:"type"` // "string", "number", "boolean", "array"
	Description string               `json:"description"`
	Required    bool                 `json:"required"`
	Default     any                  `json:"default,omitempty"`
	Validation  *ParameterValidation `json:"validation,omitempty"`
}

// ToolCapability is a tool's self-description: what it does, what it takes,
// and what it needs permission for.
type ToolCapability struct {
	Name                 string                `json:"name"`
	Description          string                `json:"description"`
	Category             string                `json:"category"`
	Parameters           []ParameterDefinition `json:"parameters"`
	RequiredPermissions  []PermissionLevel     `json:"required_permissions"`
	RequiresConfirmation bool                  `json:"requires_confirmation"`
	Examples             []string              `json:"examples,omitempty"`
}

// ToolContext carries the conversational state tools infer parameters from.
type ToolContext struct {
	UserMessage          string
	ConversationHistory  []string
	ActiveTaskID         string
	ActiveTimerSessionID string
	RecentTaskIDs        []string
	CurrentTime          time.Time
	UserPreferences      map[string]string
	Metadata             map[string]any
}

// Now returns the context's clock, defaulting to wall time.
func (c *ToolContext) Now() time.Time {
	if c != nil && !c.CurrentTime.IsZero() {
		return c.CurrentTime
	}
	return time.Now().UTC()
}

// InferredParameters is a tool's guess at its own arguments, derived from the
// conversational context. NeedsConfirmation lists the parameter names that
// were guessed rather than stated; Alternatives are other argument maps the
// tool considered plausible.
type InferredParameters struct {
	Arguments         map[string]any   `json:"arguments"`
	Confidence        float64          `json:"confidence"` // 0.0 - 1.0
	NeedsConfirmation []string         `json:"needs_confirmation,omitempty"`
	Alternatives      []map[string]any `json:"alternatives,omitempty"`
	Explanation       string           `json:"explanation,omitempty"`
}

// Tool is one executable assistant capability. Implementations must be safe
// for concurrent use.
type Tool interface {
	// Name returns the tool identifier.
	Name() string

	// Description returns the one-line summary used in prompts and ranking.
	Description() string

	// Capability returns the full self-description.
	Capability() ToolCapability

	// InferParameters guesses arguments from the conversational context.
	InferParameters(tctx *ToolContext) *InferredParameters

	// ValidateParameters checks arguments before execution.
	ValidateParameters(args map[string]any) error

	// Execute runs the tool. Domain failures are reported inside the outcome,
	// not as errors; the error return is for context cancellation only.
	Execute(ctx context.Context, args map[string]any, tctx *ToolContext) (*types.ToolOutcome, error)

	// CheckPermissions reports whether the caller may run this tool.
	CheckPermissions(perms PermissionSet) bool
}

// Suggestion is one ranked tool recommendation.
type Suggestion struct {
	Tool       string              `json:"tool"`
	Relevance  float64             `json:"relevance"`
	Confidence float64             `json:"confidence"`
	Inferred   *InferredParameters `json:"inferred,omitempty"`
}

// UsageStats tracks per-tool execution history inside the registry.
type UsageStats struct {
	Tool            string         `json:"tool"`
	TotalExecutions int            `json:"total_executions"`
	SuccessCount    int            `json:"success_count"`
	AvgDurationMs   int64          `json:"avg_duration_ms"`
	LastUsed        time.Time      `json:"last_used,omitempty"`
	ParameterCounts map[string]int `json:"parameter_counts,omitempty"`
}

// SuccessRate returns the fraction of successful executions.
func (s *UsageStats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalExecutions)
}
