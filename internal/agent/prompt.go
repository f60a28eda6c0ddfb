package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/internal/tools"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROMPT CONSTRUCTION
// ═══════════════════════════════════════════════════════════════════════════════

// buildInitialPrompt assembles the reasoning prompt: identity, current time,
// available tools with their grammar, the response protocol, and the user
// message.
func buildInitialPrompt(message string, caps []tools.ToolCapability, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are FocusDeck's productivity assistant. You help the user manage tasks, ")
	b.WriteString("track focus time and understand their work habits.\n\n")

	now = now.UTC()
	fmt.Fprintf(&b, "Current date: %s (%s)\nCurrent time: %s UTC\n\n",
		now.Format("2006-01-02"), now.Weekday(), now.Format("15:04"))

	b.WriteString("You run in a loop of Thought, Action, Observation.\n")
	b.WriteString("Use Thought to reason about the request. Use Action to run one of your tools, then stop and wait for the Observation. ")
	b.WriteString("When you have enough information, reply with your final answer on a line starting with \"Answer:\".\n\n")

	b.WriteString("Your available tools:\n\n")
	for _, cap := range caps {
		fmt.Fprintf(&b, "%s: %s\n", cap.Name, cap.Description)
		for _, p := range cap.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "  - %s (%s)%s: %s\n", p.Name, p.Type, req, p.Description)
		}
		if len(cap.Examples) > 0 {
			fmt.Fprintf(&b, "  e.g. %s\n", cap.Examples[0])
		}
		b.WriteString("\n")
	}

	b.WriteString("To call a tool, write exactly one line:\n")
	b.WriteString("Action: <tool_name>: <json arguments>\n\n")
	b.WriteString("Example session:\n\n")
	b.WriteString("Thought: The user wants to see open work. I should list pending tasks.\n")
	b.WriteString("Action: get_tasks: {\"status\": \"pending\"}\n\n")
	b.WriteString("You will be called again with:\n\n")
	b.WriteString("Observation: Found 3 tasks ...\n\n")
	b.WriteString("Then you reply:\n\n")
	b.WriteString("Answer: You have 3 pending tasks: ...\n\n")

	if wantsListing(message) {
		b.WriteString("The user is asking for a listing. Fetch the data with a tool first, ")
		b.WriteString("then present every returned item in your answer.\n\n")
	}

	fmt.Fprintf(&b, "User request: %s", message)
	return b.String()
}

// wantsListing detects requests whose answer should enumerate items rather
// than summarize them.
func wantsListing(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range []string{"list", "show", "what are", "which", "all my", "everything"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// OBSERVATION FORMATTING
// ═══════════════════════════════════════════════════════════════════════════════

// maxListedTasks caps how many tasks an observation renders; beyond it the
// model only needs the count.
const maxListedTasks = 20

// formatObservation renders a tool outcome as the Observation text fed back
// to the model. Known payload shapes get readable renderings; everything else
// falls back to JSON.
func formatObservation(tool string, outcome *types.ToolOutcome) string {
	if !outcome.Success {
		return fmt.Sprintf("Tool %s failed: %s", tool, outcome.Error)
	}

	switch data := outcome.Data.(type) {
	case []*storage.Task:
		return formatTaskList(data)
	case *storage.Task:
		return fmt.Sprintf("%s: %s", outcome.Message, formatTaskLine(data))
	case *storage.TimerSession:
		return formatTimerSession(outcome.Message, data)
	}

	if outcome.Data == nil {
		return outcome.Message
	}
	payload, err := json.Marshal(outcome.Data)
	if err != nil {
		return outcome.Message
	}
	return fmt.Sprintf("Tool executed successfully: %s", payload)
}

func formatTaskList(tasks []*storage.Task) string {
	if len(tasks) == 0 {
		return "No tasks found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n", len(tasks))
	shown := tasks
	if len(shown) > maxListedTasks {
		shown = shown[:maxListedTasks]
	}
	for _, task := range shown {
		fmt.Fprintf(&b, "- %s\n", formatTaskLine(task))
	}
	if len(tasks) > maxListedTasks {
		fmt.Fprintf(&b, "... and %d more\n", len(tasks)-maxListedTasks)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTaskLine(task *storage.Task) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", task.Status, task.Title))
	if task.Priority >= 2 {
		parts = append(parts, priorityLabel(task.Priority))
	}
	if task.DueDate != nil {
		parts = append(parts, "due "+task.DueDate.Format("2006-01-02"))
	}
	if len(task.Tags) > 0 {
		parts = append(parts, "#"+strings.Join(task.Tags, " #"))
	}
	return strings.Join(parts, " ")
}

func priorityLabel(p int) string {
	switch p {
	case 3:
		return "(urgent)"
	case 2:
		return "(high)"
	case 1:
		return "(medium)"
	default:
		return "(low)"
	}
}

func formatTimerSession(message string, sess *storage.TimerSession) string {
	if sess.Active() {
		return fmt.Sprintf("%s. Session %s started at %s.",
			message, sess.ID, sess.StartedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s. Session %s ran %ds.", message, sess.ID, sess.DurationSec)
}
