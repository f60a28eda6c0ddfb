// Package types defines shared types used across all FocusDeck assistant modules.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE
// ═══════════════════════════════════════════════════════════════════════════════

// MaxMessageLength bounds a single user message. Requests above it are rejected
// before any provider work happens.
const MaxMessageLength = 100_000

// MaxSessionIDLength bounds the caller-supplied session identifier.
const MaxSessionIDLength = 255

// Request is a single user message entering the assistant runtime.
type Request struct {
	Message         string         `json:"message"`
	SessionID       string         `json:"session_id,omitempty"`
	ModelPreference string         `json:"model_preference,omitempty"` // "", "gemini", "local"
	Context         map[string]any `json:"context,omitempty"`
}

// Validate checks the request against the runtime's input bounds.
func (r *Request) Validate() error {
	if r.Message == "" {
		return NewInvalidRequest("message must not be empty")
	}
	if len(r.Message) > MaxMessageLength {
		return NewInvalidRequest(fmt.Sprintf("message exceeds %d characters", MaxMessageLength))
	}
	if len(r.SessionID) > MaxSessionIDLength {
		return NewInvalidRequest(fmt.Sprintf("session_id exceeds %d characters", MaxSessionIDLength))
	}
	switch r.ModelPreference {
	case "", "gemini", "local":
	default:
		return NewInvalidRequest(fmt.Sprintf("unknown model_preference %q", r.ModelPreference))
	}
	return nil
}

// ModelInfo describes the model that produced a response.
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Version  string `json:"version,omitempty"`
}

// Response is the assistant's answer to a Request. Metadata always includes
// "provider", "timestamp" (RFC 3339), "total_time_ms" and "llm_time_ms".
type Response struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Model     ModelInfo      `json:"model"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// REASONING TRACE
// ═══════════════════════════════════════════════════════════════════════════════

// StepKind classifies a single entry in a reasoning trace.
type StepKind string

const (
	StepThought     StepKind = "thought"
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
	StepFinalAnswer StepKind = "final_answer"
	StepError       StepKind = "error"
)

// ToolInvocation records a tool dispatch requested by the model.
type ToolInvocation struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CallID    string         `json:"call_id"`
}

// ToolOutcome is the uniform result of a tool execution. Failed executions
// set Success false and Error; they never surface as Go errors to the loop.
type ToolOutcome struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Step is one append-only entry in a Trace.
type Step struct {
	ID         string          `json:"id"`
	Kind       StepKind        `json:"kind"`
	Content    string          `json:"content,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	Outcome    *ToolOutcome    `json:"outcome,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// Trace is the full record of one orchestrated request. Steps are append-only;
// Completed implies FinalResponse is set and CompletedAt is non-zero.
type Trace struct {
	ID              string         `json:"id"`
	Request         Request        `json:"request"`
	Steps           []Step         `json:"steps"`
	FinalResponse   string         `json:"final_response,omitempty"`
	Completed       bool           `json:"completed"`
	Iterations      int            `json:"iterations"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at,omitempty"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewTrace starts an empty trace for a request.
func NewTrace(req Request) *Trace {
	return &Trace{
		ID:        uuid.NewString(),
		Request:   req,
		Steps:     make([]Step, 0, 8),
		StartedAt: time.Now().UTC(),
	}
}

// Append adds a step, stamping ID and timestamp if the caller left them empty.
func (t *Trace) Append(s Step) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	t.Steps = append(t.Steps, s)
}

// Complete marks the trace finished with the given final response.
func (t *Trace) Complete(final string) {
	t.FinalResponse = final
	t.Completed = true
	t.CompletedAt = time.Now().UTC()
	t.TotalDurationMs = t.CompletedAt.Sub(t.StartedAt).Milliseconds()
}

// StepsOfKind returns the steps matching kind, in trace order.
func (t *Trace) StepsOfKind(kind StepKind) []Step {
	var out []Step
	for _, s := range t.Steps {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ToolsUsed returns the distinct tool names invoked, in first-use order.
func (t *Trace) ToolsUsed() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range t.Steps {
		if s.Invocation == nil {
			continue
		}
		if !seen[s.Invocation.Tool] {
			seen[s.Invocation.Tool] = true
			out = append(out, s.Invocation.Tool)
		}
	}
	return out
}
