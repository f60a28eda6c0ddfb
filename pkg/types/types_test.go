package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid minimal", Request{Message: "hello"}, false},
		{"empty message", Request{Message: ""}, true},
		{"message at limit", Request{Message: strings.Repeat("a", MaxMessageLength)}, false},
		{"message over limit", Request{Message: strings.Repeat("a", MaxMessageLength+1)}, true},
		{"session at limit", Request{Message: "hi", SessionID: strings.Repeat("s", MaxSessionIDLength)}, false},
		{"session over limit", Request{Message: "hi", SessionID: strings.Repeat("s", MaxSessionIDLength+1)}, true},
		{"gemini preference", Request{Message: "hi", ModelPreference: "gemini"}, false},
		{"local preference", Request{Message: "hi", ModelPreference: "local"}, false},
		{"unknown preference", Request{Message: "hi", ModelPreference: "gpt4"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsKind(err, KindInvalidRequest) {
				t.Errorf("expected invalid_request kind, got %v", KindOf(err))
			}
		})
	}
}

func TestTraceAppendAndComplete(t *testing.T) {
	tr := NewTrace(Request{Message: "list my tasks"})
	if tr.ID == "" {
		t.Fatal("trace should get an id")
	}

	tr.Append(Step{Kind: StepThought, Content: "need the task list"})
	tr.Append(Step{
		Kind: StepAction,
		Invocation: &ToolInvocation{
			Tool:   "get_tasks",
			CallID: "c1",
		},
	})
	tr.Append(Step{
		Kind:    StepObservation,
		Outcome: &ToolOutcome{Success: true, Message: "2 tasks"},
	})

	if len(tr.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(tr.Steps))
	}
	for i, s := range tr.Steps {
		if s.ID == "" {
			t.Errorf("step %d missing id", i)
		}
		if s.Timestamp.IsZero() {
			t.Errorf("step %d missing timestamp", i)
		}
	}

	tr.Complete("You have 2 tasks.")
	if !tr.Completed {
		t.Error("trace should be completed")
	}
	if tr.FinalResponse == "" {
		t.Error("completed trace must have a final response")
	}
	if tr.CompletedAt.IsZero() {
		t.Error("completed trace must have a completion time")
	}
}

func TestTraceToolsUsed(t *testing.T) {
	tr := NewTrace(Request{Message: "x"})
	tr.Append(Step{Kind: StepAction, Invocation: &ToolInvocation{Tool: "get_tasks", CallID: "a"}})
	tr.Append(Step{Kind: StepAction, Invocation: &ToolInvocation{Tool: "start_timer", CallID: "b"}})
	tr.Append(Step{Kind: StepAction, Invocation: &ToolInvocation{Tool: "get_tasks", CallID: "c"}})

	got := tr.ToolsUsed()
	want := []string{"get_tasks", "start_timer"}
	if len(got) != len(want) {
		t.Fatalf("ToolsUsed() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToolsUsed()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTraceJSONRoundTrip(t *testing.T) {
	tr := NewTrace(Request{Message: "create a task", SessionID: "s-1"})
	tr.Append(Step{
		Kind: StepAction,
		Invocation: &ToolInvocation{
			Tool:      "create_task",
			Arguments: map[string]any{"title": "write report"},
			CallID:    "c1",
		},
	})
	tr.Complete("Done.")

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Trace
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != tr.ID || back.FinalResponse != tr.FinalResponse || !back.Completed {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if len(back.Steps) != 1 || back.Steps[0].Invocation.Tool != "create_task" {
		t.Errorf("round trip lost steps: %+v", back.Steps)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewLLMError("generation failed", cause)

	if !IsKind(err, KindLLMError) {
		t.Error("expected llm_error kind")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should survive errors.Is")
	}
	if err.UserMessage() != "generation failed" {
		t.Errorf("UserMessage() = %q", err.UserMessage())
	}

	if KindOf(errors.New("plain")) != KindInternalError {
		t.Error("untyped errors classify as internal")
	}
	if !IsKind(NewToolNotFound("nope"), KindToolNotFound) {
		t.Error("tool not found kind")
	}
	if !IsKind(NewPermissionDenied("no"), KindPermissionDenied) {
		t.Error("permission denied kind")
	}
}
