package chat

import (
	"encoding/json"
	"strings"
)

// ToolCall is a structured tool request extracted from a model reply.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ParseToolCall attempts to read a model reply as a tool call of the form
// {"tool": "<name>", "arguments": {...}}, optionally wrapped in a markdown
// code fence. Anything else, including malformed JSON or JSON missing the
// required keys, is plain conversational text: the second return is false
// and the reply should be surfaced unchanged.
func ParseToolCall(reply string) (*ToolCall, bool) {
	text := stripCodeFence(strings.TrimSpace(reply))
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	nameRaw, ok := raw["tool"]
	if !ok {
		return nil, false
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
		return nil, false
	}

	args := map[string]any{}
	if argsRaw, ok := raw["arguments"]; ok {
		if err := json.Unmarshal(argsRaw, &args); err != nil {
			return nil, false
		}
	}

	return &ToolCall{Name: name, Arguments: args}, true
}

// stripCodeFence unwraps a single ```-fenced block, tolerating a language
// tag on the opening fence.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		// Discard the rest of the opening fence line ("json", etc.).
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
