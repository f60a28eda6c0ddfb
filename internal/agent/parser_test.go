package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReplyAction(t *testing.T) {
	reply := `Thought: I should look at the pending tasks first.
Action: get_tasks: {"status": "pending"}`

	parsed := parseReply(reply)
	assert.False(t, parsed.IsFinal)
	assert.Equal(t, "I should look at the pending tasks first.", parsed.Thought)
	assert.NotNil(t, parsed.Action)
	assert.Equal(t, "get_tasks", parsed.Action.Tool)
	assert.Equal(t, "pending", parsed.Action.Arguments["status"])
}

func TestParseReplyActionWithArgsVariant(t *testing.T) {
	parsed := parseReply(`Action: create_task with args: {"title": "write report"}`)
	assert.NotNil(t, parsed.Action)
	assert.Equal(t, "create_task", parsed.Action.Tool)
	assert.Equal(t, "write report", parsed.Action.Arguments["title"])
}

func TestParseReplyMultilineJSON(t *testing.T) {
	reply := `Action: create_task: {
  "title": "plan sprint",
  "priority": 2
}`
	parsed := parseReply(reply)
	assert.NotNil(t, parsed.Action)
	assert.Equal(t, "plan sprint", parsed.Action.Arguments["title"])
	assert.Equal(t, float64(2), parsed.Action.Arguments["priority"])
}

func TestParseReplyBrokenJSON(t *testing.T) {
	parsed := parseReply(`Action: get_tasks: status is pending`)
	assert.NotNil(t, parsed.Action)
	// Undecodable arguments are preserved as a single input value.
	assert.Equal(t, "status is pending", parsed.Action.Arguments["input"])
	assert.Equal(t, "status is pending", parsed.Action.RawArgs)
}

func TestParseReplyAnswer(t *testing.T) {
	reply := `Thought: I have everything I need.
Answer: You have 3 pending tasks.`

	parsed := parseReply(reply)
	assert.True(t, parsed.IsFinal)
	assert.Equal(t, "You have 3 pending tasks.", parsed.Answer)
	assert.Equal(t, "I have everything I need.", parsed.Thought)
	assert.Nil(t, parsed.Action)
}

func TestParseReplyAnswerBeatsAction(t *testing.T) {
	reply := `Answer: All done.
Action: get_tasks: {}`

	parsed := parseReply(reply)
	assert.True(t, parsed.IsFinal)
	assert.Nil(t, parsed.Action)
}

func TestParseReplyPauseIgnored(t *testing.T) {
	reply := `Thought: checking tasks.
Action: get_tasks: {}
PAUSE`

	parsed := parseReply(reply)
	assert.NotNil(t, parsed.Action)
	assert.Equal(t, "get_tasks", parsed.Action.Tool)
}

func TestParseReplyBareThought(t *testing.T) {
	parsed := parseReply("I think the user wants a summary of their week.")
	assert.False(t, parsed.IsFinal)
	assert.Nil(t, parsed.Action)
	assert.Equal(t, "I think the user wants a summary of their week.", parsed.Thought)
}

func TestParseReplyEmptyArgs(t *testing.T) {
	parsed := parseReply("Action: timer_status:")
	assert.NotNil(t, parsed.Action)
	assert.Equal(t, "timer_status", parsed.Action.Tool)
	assert.Empty(t, parsed.Action.Arguments)
}
