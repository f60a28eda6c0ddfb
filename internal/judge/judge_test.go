package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// cannedProvider returns a fixed reply and records generation options.
type cannedProvider struct {
	reply string
	err   error
	opts  *llm.GenerationOptions
}

func (p *cannedProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerationOptions) (string, error) {
	p.opts = opts
	return p.reply, p.err
}

func (p *cannedProvider) IsReady() bool { return true }
func (p *cannedProvider) Status() llm.ProviderStatus {
	return llm.ProviderStatus{State: llm.StateReady}
}
func (p *cannedProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: "judge-model", Provider: "test"}
}
func (p *cannedProvider) Initialize(ctx context.Context) error { return nil }
func (p *cannedProvider) Cleanup(ctx context.Context) error    { return nil }

func completedTrace() *types.Trace {
	trace := types.NewTrace(types.Request{Message: "show my tasks"})
	trace.Append(types.Step{Kind: types.StepThought, Content: "List the tasks."})
	trace.Append(types.Step{
		Kind: types.StepAction,
		Invocation: &types.ToolInvocation{
			Tool: "get_tasks", CallID: "c1",
		},
	})
	trace.Append(types.Step{
		Kind:    types.StepObservation,
		Content: "Found 2 tasks",
		Outcome: &types.ToolOutcome{Success: true, Message: "Found 2 tasks", DurationMs: 12},
	})
	trace.Iterations = 2
	trace.Complete("You have 2 tasks.")
	return trace
}

const fencedVerdict = "Here is my evaluation:\n```json\n" + `{
  "reasoning_quality": {"score": 8, "explanation": "clear"},
  "tool_usage": {"score": 7, "explanation": "fine"},
  "relevance": {"score": 9, "explanation": "on point"},
  "completeness": {"score": 6, "explanation": "partial"},
  "efficiency": {"score": 8, "explanation": "quick"},
  "general_feedback": "solid run",
  "recommendations": ["batch the lookups"]
}` + "\n```\n"

func TestEvaluateWeightedOverall(t *testing.T) {
	j := New(Criteria{})
	provider := &cannedProvider{reply: fencedVerdict}

	eval, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.NoError(t, err)

	// 8*0.25 + 7*0.20 + 9*0.25 + 6*0.20 + 8*0.10
	assert.InDelta(t, 7.65, eval.Overall, 0.01)
	assert.Equal(t, "judge-model", eval.JudgeModel)
	assert.Equal(t, "solid run", eval.GeneralFeedback)
	assert.Equal(t, []string{"batch the lookups"}, eval.Recommendations)
	assert.Len(t, eval.Aspects, 5)

	// Judging uses low-temperature generation.
	assert.InDelta(t, judgeTemperature, provider.opts.Temperature, 0.001)
	assert.InDelta(t, judgeTopP, provider.opts.TopP, 0.001)
}

func TestEvaluateBraceFallback(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{reply: `My verdict follows. {
  "reasoning_quality": {"score": 5, "explanation": "ok"},
  "tool_usage": {"score": 5, "explanation": "ok"},
  "relevance": {"score": 5, "explanation": "ok"},
  "completeness": {"score": 5, "explanation": "ok"},
  "efficiency": {"score": 5, "explanation": "ok"},
  "general_feedback": "average"
} That's all.`}

	eval, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, eval.Overall, 0.001)
}

func TestEvaluateClampsScores(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{reply: "```json\n" + `{
  "reasoning_quality": {"score": 14, "explanation": "overshoot"},
  "tool_usage": {"score": -3, "explanation": "undershoot"},
  "relevance": {"score": 10, "explanation": "ok"},
  "completeness": {"score": 10, "explanation": "ok"},
  "efficiency": {"score": 10, "explanation": "ok"}
}` + "\n```"}

	eval, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.NoError(t, err)
	assert.Equal(t, 10.0, eval.Aspects[AspectReasoning].Score)
	assert.Equal(t, 0.0, eval.Aspects[AspectToolUsage].Score)
	// 10*0.25 + 0*0.20 + 10*0.25 + 10*0.20 + 10*0.10
	assert.InDelta(t, 8.0, eval.Overall, 0.001)
}

func TestEvaluateMissingAspect(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{reply: "```json\n" + `{
  "reasoning_quality": {"score": 8, "explanation": "clear"}
}` + "\n```"}

	_, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.True(t, types.IsKind(err, types.KindValidationError))
}

func TestEvaluateNoJSON(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{reply: "I refuse to answer in JSON."}

	_, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.True(t, types.IsKind(err, types.KindValidationError))
}

func TestEvaluateRequiresCompletedTrace(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{reply: fencedVerdict}

	trace := types.NewTrace(types.Request{Message: "hi"})
	_, err := j.Evaluate(context.Background(), provider, trace)
	assert.True(t, types.IsKind(err, types.KindInvalidRequest))
}

func TestEvaluateProviderError(t *testing.T) {
	j := New(DefaultCriteria())
	provider := &cannedProvider{err: assert.AnError}

	_, err := j.Evaluate(context.Background(), provider, completedTrace())
	assert.True(t, types.IsKind(err, types.KindLLMError))
}

func TestPromptContents(t *testing.T) {
	j := New(DefaultCriteria())
	prompt := j.buildPrompt(completedTrace())

	assert.Contains(t, prompt, "reasoning_quality (25% of the overall score)")
	assert.Contains(t, prompt, "efficiency (10% of the overall score)")
	assert.Contains(t, prompt, "show my tasks")
	assert.Contains(t, prompt, "You have 2 tasks.")
	assert.Contains(t, prompt, "tool=get_tasks")
	assert.Contains(t, prompt, "```json")
}

func TestSummarizeTraceDeterministic(t *testing.T) {
	trace := completedTrace()
	assert.Equal(t, SummarizeTrace(trace), SummarizeTrace(trace))
	summary := SummarizeTrace(trace)
	assert.Contains(t, summary, "1. [thought]")
	assert.Contains(t, summary, "success=true")
	assert.Contains(t, summary, "Total: 3 steps over 2 iterations")
}

func TestCompareReport(t *testing.T) {
	a := &Evaluation{TraceID: "t-a", Overall: 8.2, Aspects: map[string]AspectScore{
		AspectReasoning: {Score: 8, Explanation: "clear"},
	}}
	b := &Evaluation{TraceID: "t-b", Overall: 5.1, GeneralFeedback: "rushed"}

	report := CompareReport([]*Evaluation{a, b})
	assert.Contains(t, report, "Average overall: 6.65")
	assert.Contains(t, report, "Best:  8.20 (trace t-a)")
	assert.Contains(t, report, "Worst: 5.10 (trace t-b)")
	assert.Contains(t, report, "rushed")

	assert.Equal(t, "No evaluations to compare.", CompareReport(nil))
}
