package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RESPONSE PARSING
// ═══════════════════════════════════════════════════════════════════════════════

// parsedReply is one model reply split into its protocol parts.
type parsedReply struct {
	Thought string
	Action  *actionRequest
	Answer  string
	IsFinal bool
}

// actionRequest is a tool call the model asked for.
type actionRequest struct {
	Tool      string
	Arguments map[string]any
	// RawArgs keeps the original argument text when JSON decoding failed.
	RawArgs string
}

var (
	// "Action: get_tasks: {...}" and "Action: get_tasks with args: {...}".
	// Small local models drift between the two forms.
	actionRe = regexp.MustCompile(`(?mi)^\s*Action:\s*([a-z0-9_]+)\s*(?:with args)?\s*:\s*(.*)$`)

	answerRe  = regexp.MustCompile(`(?mi)^\s*Answer:\s*`)
	thoughtRe = regexp.MustCompile(`(?mi)^\s*Thought:\s*`)
)

// parseReply splits a raw model reply into thought, action and answer parts.
// An Answer line terminates the exchange even when an Action follows it; a
// bare PAUSE token is protocol noise and is dropped.
func parseReply(raw string) parsedReply {
	text := strings.TrimSpace(raw)
	text = stripPause(text)

	var out parsedReply

	if loc := answerRe.FindStringIndex(text); loc != nil {
		out.IsFinal = true
		out.Answer = strings.TrimSpace(text[loc[1]:])
		out.Thought = extractThought(text[:loc[0]])
		return out
	}

	if m := actionRe.FindStringSubmatchIndex(text); m != nil {
		tool := text[m[2]:m[3]]
		argText := strings.TrimSpace(actionArgText(text[m[4]:]))
		out.Action = parseAction(tool, argText)
		out.Thought = extractThought(text[:m[0]])
		return out
	}

	out.Thought = extractThought(text)
	return out
}

// actionArgText collects the argument text for an action line. Arguments can
// span lines when the model pretty-prints JSON, so read until the object
// closes or the text ends.
func actionArgText(rest string) string {
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "{") {
		// Single-line non-JSON arguments stop at end of line.
		if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
			return rest[:idx]
		}
		return rest
	}

	depth := 0
	inString := false
	escaped := false
	for i, r := range rest {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == '{':
			depth++
		case !inString && r == '}':
			depth--
			if depth == 0 {
				return rest[:i+1]
			}
		}
	}
	return rest
}

// parseAction decodes the argument text. Broken JSON becomes a single "input"
// argument so the tool still gets a chance to run.
func parseAction(tool, argText string) *actionRequest {
	act := &actionRequest{Tool: tool}
	if argText == "" {
		act.Arguments = map[string]any{}
		return act
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argText), &args); err != nil {
		act.Arguments = map[string]any{"input": argText}
		act.RawArgs = argText
		return act
	}
	act.Arguments = args
	return act
}

// extractThought returns the reasoning portion of the text, with any
// "Thought:" label removed.
func extractThought(text string) string {
	text = strings.TrimSpace(text)
	if loc := thoughtRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	return strings.TrimSpace(text)
}

// stripPause removes standalone PAUSE tokens the protocol examples teach.
func stripPause(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "PAUSE" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
