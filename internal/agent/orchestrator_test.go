package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/internal/tools"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// scriptedProvider replays a fixed sequence of replies.
type scriptedProvider struct {
	replies []string
	calls   int
	prompts []string
	err     error
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts *llm.GenerationOptions) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if p.calls >= len(p.replies) {
		return "Answer: Done.", nil
	}
	reply := p.replies[p.calls]
	p.calls++
	return reply, nil
}

func (p *scriptedProvider) IsReady() bool { return true }
func (p *scriptedProvider) Status() llm.ProviderStatus {
	return llm.ProviderStatus{State: llm.StateReady}
}
func (p *scriptedProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: "scripted", Provider: "test"}
}
func (p *scriptedProvider) Initialize(ctx context.Context) error { return nil }
func (p *scriptedProvider) Cleanup(ctx context.Context) error    { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	registry := tools.NewRegistry()
	registry.Register(tools.NewGetTasksTool(store))
	registry.Register(tools.NewCreateTaskTool(store))
	registry.Register(tools.NewUpdateTaskTool(store))
	registry.Register(tools.NewStartTimerTool(store))
	registry.Register(tools.NewStopTimerTool(store))
	return New(registry, nil), store
}

func TestRunDirectAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{
		"Thought: No tools needed.\nAnswer: Hello! How can I help?",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "hi"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)
	assert.Equal(t, "Hello! How can I help?", trace.FinalResponse)
	assert.Equal(t, 1, trace.Iterations)
	assert.Len(t, trace.StepsOfKind(types.StepFinalAnswer), 1)
}

func TestRunToolThenAnswer(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()
	now := time.Now().UTC()
	assert.NoError(t, store.CreateTask(ctx, &storage.Task{
		ID: "t1", Title: "one", Status: storage.TaskPending, CreatedAt: now, UpdatedAt: now,
	}))

	provider := &scriptedProvider{replies: []string{
		"Thought: List pending tasks first.\nAction: get_tasks: {\"status\": \"pending\"}",
		"Answer: You have 1 pending task: one.",
	}}

	trace, err := o.Run(ctx, provider, types.Request{Message: "show my tasks"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)
	assert.Equal(t, 2, trace.Iterations)
	assert.Equal(t, []string{"get_tasks"}, trace.ToolsUsed())

	observations := trace.StepsOfKind(types.StepObservation)
	assert.Len(t, observations, 1)
	assert.True(t, observations[0].Outcome.Success)
	assert.Contains(t, observations[0].Content, "one")

	// The second prompt must carry the observation back to the model.
	assert.Contains(t, provider.prompts[1], "Observation:")
}

func TestRunRecordsActionStepPerCompletion(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{
		"Thought: I need today's tasks.\nAction: get_tasks: {\"filter\": \"today\"}",
		"Answer: You don't have any tasks scheduled for today. Your schedule is clear!",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "List tasks for today"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)

	// Both completions land in the trace as Action steps, not just the one
	// carrying a tool call.
	actions := trace.StepsOfKind(types.StepAction)
	assert.Len(t, actions, 2)
	assert.Contains(t, actions[0].Content, "get_tasks")
	if assert.NotNil(t, actions[0].Invocation) {
		assert.Equal(t, "get_tasks", actions[0].Invocation.Tool)
		assert.Equal(t, "today", actions[0].Invocation.Arguments["filter"])
	}
	assert.Nil(t, actions[1].Invocation)

	observations := trace.StepsOfKind(types.StepObservation)
	assert.Len(t, observations, 1)
	assert.True(t, observations[0].Outcome.Success)
	assert.Contains(t, trace.FinalResponse, "any tasks")
	assert.Contains(t, trace.FinalResponse, "today")
}

func TestRunObservationFollowsItsAction(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{
		"Action: get_tasks: {}",
		"Answer: Nothing to do.",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "anything pending?"})
	assert.NoError(t, err)

	for i, step := range trace.Steps {
		if step.Kind != types.StepObservation {
			continue
		}
		if assert.Greater(t, i, 0) {
			prev := trace.Steps[i-1]
			assert.Equal(t, types.StepAction, prev.Kind)
			if assert.NotNil(t, prev.Invocation) {
				assert.Equal(t, step.Invocation.CallID, prev.Invocation.CallID)
			}
		}
	}
}

func TestRunRePromptAsksForAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{
		"Action: create_task: {\"title\": \"Hello World\", \"scheduled_date\": \"today\"}",
		"Answer: Created the Hello World task for today.",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "Create a task called Hello World for today"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)

	observations := trace.StepsOfKind(types.StepObservation)
	assert.Len(t, observations, 1)
	assert.True(t, observations[0].Outcome.Success)

	assert.Len(t, provider.prompts, 2)
	assert.Contains(t, provider.prompts[1], "Now provide your Answer:")
}

func TestRunListingRePromptCarriesData(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()
	now := time.Now().UTC()
	assert.NoError(t, store.CreateTask(ctx, &storage.Task{
		ID: "t1", Title: "one", Status: storage.TaskPending, CreatedAt: now, UpdatedAt: now,
	}))

	provider := &scriptedProvider{replies: []string{
		"Action: get_tasks: {}",
		"Answer: You have one task: one.",
	}}

	_, err := o.Run(ctx, provider, types.Request{Message: "show my tasks"})
	assert.NoError(t, err)

	// A listing request gets the formatted data plus an explicit request
	// for the answer instead of the generic continuation.
	assert.Len(t, provider.prompts, 2)
	assert.Contains(t, provider.prompts[1], "one")
	assert.Contains(t, provider.prompts[1], "Answer:")
	assert.NotContains(t, provider.prompts[1], "Now provide your Answer:")
}

func TestRunToolFailureBecomesObservation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	provider := &scriptedProvider{replies: []string{
		"Action: update_task: {\"task_id\": \"ghost\"}",
		"Answer: That task doesn't exist.",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "finish the ghost task"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)

	observations := trace.StepsOfKind(types.StepObservation)
	assert.Len(t, observations, 1)
	assert.False(t, observations[0].Outcome.Success)
	assert.Contains(t, observations[0].Content, "failed")
}

func TestRunUnknownToolBecomesObservation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	provider := &scriptedProvider{replies: []string{
		"Action: send_email: {\"to\": \"someone\"}",
		"Answer: I can't send email.",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "email this"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)

	observations := trace.StepsOfKind(types.StepObservation)
	assert.Len(t, observations, 1)
	assert.False(t, observations[0].Outcome.Success)
}

func TestRunProviderErrorReturns(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{err: assert.AnError}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "hi"})
	assert.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindLLMError))
	assert.False(t, trace.Completed)
	assert.Len(t, trace.StepsOfKind(types.StepError), 1)
}

func TestRunLateThoughtBecomesAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{
		"Thought: Let me check the tasks.\nAction: get_tasks: {}",
		"Thought: The list is empty, nothing more to check.\nAction: get_tasks: {}",
		"The user has no tasks, so there is nothing to report.",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "anything to do?"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)
	// A toolless reply after the opening turns is treated as the answer.
	assert.Equal(t, "The user has no tasks, so there is nothing to report.", trace.FinalResponse)
}

func TestRunTurnLimitRecovery(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	// The model never answers; it keeps calling tools until the limit.
	replies := make([]string, DefaultMaxTurns)
	for i := range replies {
		replies[i] = "Thought: Still gathering context.\nAction: get_tasks: {}"
	}
	provider := &scriptedProvider{replies: replies}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "loop forever"})
	assert.NoError(t, err)
	assert.True(t, trace.Completed)
	assert.Equal(t, DefaultMaxTurns, trace.Iterations)
	// Recovery promotes the last successful observation instead of
	// returning nothing.
	assert.Equal(t, "No tasks found.", trace.FinalResponse)
}

func TestRunContextCancellation(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{"Answer: unreachable"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trace, err := o.Run(ctx, provider, types.Request{Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, trace.Completed)
	assert.Equal(t, 0, trace.Iterations)
}

func TestRunConfiguredTurnLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	registry := tools.NewRegistry()
	registry.Register(tools.NewGetTasksTool(store))
	o := New(registry, &Config{MaxTurns: 2})

	provider := &scriptedProvider{replies: []string{
		"Action: get_tasks: {}",
		"Action: get_tasks: {}",
		"Answer: never reached",
	}}

	trace, err := o.Run(context.Background(), provider, types.Request{Message: "list"})
	assert.NoError(t, err)
	assert.Equal(t, 2, trace.Iterations)
	assert.True(t, trace.Completed)
}

func TestPromptMentionsToolsAndProtocol(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	provider := &scriptedProvider{replies: []string{"Answer: ok"}}

	_, err := o.Run(context.Background(), provider, types.Request{Message: "show me everything"})
	assert.NoError(t, err)

	prompt := provider.prompts[0]
	assert.Contains(t, prompt, "get_tasks")
	assert.Contains(t, prompt, "create_task")
	assert.Contains(t, prompt, "Action: <tool_name>: <json arguments>")
	assert.Contains(t, prompt, "Current date:")
	// Listing intent adds presentation guidance.
	assert.Contains(t, prompt, "asking for a listing")
}
