// Package judge implements second-pass evaluation: a judge model scores a
// completed reasoning trace along weighted aspects and the package reduces
// the reply to a single bounded score with per-aspect feedback.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CRITERIA / EVALUATION
// ═══════════════════════════════════════════════════════════════════════════════

// Aspect names, in rubric order.
const (
	AspectReasoning    = "reasoning_quality"
	AspectToolUsage    = "tool_usage"
	AspectRelevance    = "relevance"
	AspectCompleteness = "completeness"
	AspectEfficiency   = "efficiency"
)

// aspectOrder fixes prompt and report ordering.
var aspectOrder = []string{
	AspectReasoning, AspectToolUsage, AspectRelevance, AspectCompleteness, AspectEfficiency,
}

// Criteria weights one evaluation. Weights must sum to 1.
type Criteria struct {
	Reasoning    float64 `yaml:"reasoning" json:"reasoning"`
	ToolUsage    float64 `yaml:"tool_usage" json:"tool_usage"`
	Relevance    float64 `yaml:"relevance" json:"relevance"`
	Completeness float64 `yaml:"completeness" json:"completeness"`
	Efficiency   float64 `yaml:"efficiency" json:"efficiency"`
}

// DefaultCriteria returns the standard rubric weights.
func DefaultCriteria() Criteria {
	return Criteria{
		Reasoning:    0.25,
		ToolUsage:    0.20,
		Relevance:    0.25,
		Completeness: 0.20,
		Efficiency:   0.10,
	}
}

func (c Criteria) weight(aspect string) float64 {
	switch aspect {
	case AspectReasoning:
		return c.Reasoning
	case AspectToolUsage:
		return c.ToolUsage
	case AspectRelevance:
		return c.Relevance
	case AspectCompleteness:
		return c.Completeness
	case AspectEfficiency:
		return c.Efficiency
	}
	return 0
}

// AspectScore is one scored rubric dimension.
type AspectScore struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
	Feedback    string  `json:"feedback,omitempty"`
}

// Evaluation is the judge's verdict on one trace.
type Evaluation struct {
	ID              string                 `json:"id"`
	TraceID         string                 `json:"trace_id"`
	Overall         float64                `json:"overall"`
	Aspects         map[string]AspectScore `json:"aspects"`
	GeneralFeedback string                 `json:"general_feedback,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	JudgeModel      string                 `json:"judge_model"`
	EvaluatedAt     time.Time              `json:"evaluated_at"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// JUDGE
// ═══════════════════════════════════════════════════════════════════════════════

// Generation settings for judging. Low temperature keeps scores stable
// between runs of the same trace.
const (
	judgeTemperature = 0.3
	judgeTopP        = 0.9
	judgeMaxTokens   = 2048
)

// Judge evaluates completed traces with a provider.
type Judge struct {
	criteria Criteria
	log      *logging.Logger
}

// New creates a judge with the given criteria. Zero criteria fall back to
// the default rubric.
func New(criteria Criteria) *Judge {
	if criteria == (Criteria{}) {
		criteria = DefaultCriteria()
	}
	return &Judge{
		criteria: criteria,
		log:      logging.WithComponent("judge"),
	}
}

// Evaluate scores a completed trace using the given judge provider.
func (j *Judge) Evaluate(ctx context.Context, provider llm.Provider, trace *types.Trace) (*Evaluation, error) {
	if trace == nil || !trace.Completed {
		return nil, types.NewInvalidRequest("can only evaluate a completed trace")
	}

	prompt := j.buildPrompt(trace)
	reply, err := provider.Generate(ctx, prompt, &llm.GenerationOptions{
		Temperature: judgeTemperature,
		TopP:        judgeTopP,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		return nil, types.NewLLMError("judge generation failed", err)
	}

	verdict, err := parseVerdict(reply)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		ID:              uuid.NewString(),
		TraceID:         trace.ID,
		Aspects:         make(map[string]AspectScore, len(aspectOrder)),
		GeneralFeedback: verdict.GeneralFeedback,
		Recommendations: verdict.Recommendations,
		JudgeModel:      provider.ModelInfo().Name,
		EvaluatedAt:     time.Now().UTC(),
	}

	overall := 0.0
	for _, aspect := range aspectOrder {
		raw, ok := verdict.aspect(aspect)
		if !ok {
			return nil, types.NewValidationError(
				fmt.Sprintf("judge reply is missing aspect %q", aspect), nil)
		}
		raw.Score = clampScore(raw.Score)
		eval.Aspects[aspect] = raw
		overall += j.criteria.weight(aspect) * raw.Score
	}
	eval.Overall = clampScore(overall)

	j.log.Info("Evaluated trace %s: overall %.2f", trace.ID, eval.Overall)
	return eval, nil
}

// clampScore bounds a score to [0, 10].
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROMPT
// ═══════════════════════════════════════════════════════════════════════════════

// buildPrompt assembles the evaluation prompt: rubric with percentage
// weights, the original request, the summarized reasoning chain, the final
// response, and the strict reply schema.
func (j *Judge) buildPrompt(trace *types.Trace) string {
	var b strings.Builder

	b.WriteString("You are an impartial evaluator of an AI assistant's work. ")
	b.WriteString("Score the following execution on each criterion from 0 to 10.\n\n")

	b.WriteString("Criteria:\n")
	for _, aspect := range aspectOrder {
		fmt.Fprintf(&b, "- %s (%.0f%% of the overall score)\n", aspect, j.criteria.weight(aspect)*100)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "User request:\n%s\n\n", trace.Request.Message)
	fmt.Fprintf(&b, "Execution chain:\n%s\n", SummarizeTrace(trace))
	fmt.Fprintf(&b, "Final response:\n%s\n\n", trace.FinalResponse)

	b.WriteString("Reply with ONLY a fenced JSON block in exactly this shape:\n")
	b.WriteString("```json\n{\n")
	for _, aspect := range aspectOrder {
		fmt.Fprintf(&b, "  %q: {\"score\": 0, \"explanation\": \"...\", \"feedback\": \"...\"},\n", aspect)
	}
	b.WriteString("  \"general_feedback\": \"...\",\n")
	b.WriteString("  \"recommendations\": [\"...\"]\n")
	b.WriteString("}\n```")

	return b.String()
}

// SummarizeTrace renders a trace as a deterministic numbered chain for the
// judge prompt.
func SummarizeTrace(trace *types.Trace) string {
	var b strings.Builder
	for i, step := range trace.Steps {
		fmt.Fprintf(&b, "%d. [%s]", i+1, step.Kind)
		if step.Invocation != nil {
			fmt.Fprintf(&b, " tool=%s", step.Invocation.Tool)
		}
		if step.Outcome != nil {
			fmt.Fprintf(&b, " success=%t result=%q", step.Outcome.Success, step.Outcome.Message)
		}
		if step.Content != "" && step.Kind != types.StepObservation {
			fmt.Fprintf(&b, " %s", firstLine(step.Content))
		}
		if step.DurationMs > 0 {
			fmt.Fprintf(&b, " (%dms)", step.DurationMs)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total: %d steps over %d iterations in %dms\n",
		len(trace.Steps), trace.Iterations, trace.TotalDurationMs)
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPLY PARSING
// ═══════════════════════════════════════════════════════════════════════════════

// verdict mirrors the judge's JSON reply.
type verdict struct {
	ReasoningQuality *AspectScore `json:"reasoning_quality"`
	ToolUsage        *AspectScore `json:"tool_usage"`
	Relevance        *AspectScore `json:"relevance"`
	Completeness     *AspectScore `json:"completeness"`
	Efficiency       *AspectScore `json:"efficiency"`
	GeneralFeedback  string       `json:"general_feedback"`
	Recommendations  []string     `json:"recommendations"`
}

func (v *verdict) aspect(name string) (AspectScore, bool) {
	var p *AspectScore
	switch name {
	case AspectReasoning:
		p = v.ReasoningQuality
	case AspectToolUsage:
		p = v.ToolUsage
	case AspectRelevance:
		p = v.Relevance
	case AspectCompleteness:
		p = v.Completeness
	case AspectEfficiency:
		p = v.Efficiency
	}
	if p == nil {
		return AspectScore{}, false
	}
	return *p, true
}

// parseVerdict extracts the JSON verdict from a judge reply: fenced block
// first, then the outermost brace span.
func parseVerdict(reply string) (*verdict, error) {
	payload := extractJSON(reply)
	if payload == "" {
		return nil, types.NewValidationError("judge reply contains no JSON", nil)
	}
	var v verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, types.NewValidationError("judge reply is not valid JSON", err)
	}
	return &v, nil
}

func extractJSON(reply string) string {
	if idx := strings.Index(reply, "```json"); idx >= 0 {
		rest := reply[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return ""
}
