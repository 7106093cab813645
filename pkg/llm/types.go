// Package llm wraps model-completion backends behind a single text-in,
// text-out contract. The reply may or may not parse as a structured tool
// invocation; that interpretation belongs to the session orchestrator, not
// to the clients here.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles, in conversational order semantics.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Client is the interface for model-completion backends.
type Client interface {
	// Complete sends the conversation and the active tool catalog and
	// returns the model's raw text reply.
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string
}

// renderToolInstructions folds the tool catalog into prompt text. The
// completion contract is plain text, so tool availability and the expected
// invocation shape travel in the system prompt rather than a native
// tool-call parameter.
func renderToolInstructions(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You can invoke the following diagnostic tools. ")
	sb.WriteString("To invoke one, reply with only a JSON object of the form ")
	sb.WriteString(`{"tool": "<name>", "arguments": {...}} and nothing else. `)
	sb.WriteString("If no tool is needed, answer in plain language.\n\nAvailable tools:\n")
	for _, tool := range tools {
		schema, err := json.Marshal(tool.Parameters)
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&sb, "- %s: %s (parameters: %s)\n", tool.Name, tool.Description, schema)
	}
	return sb.String()
}

// splitSystem partitions history into the effective system prompt and the
// remaining turns, appending tool instructions to the system text.
func splitSystem(messages []Message, tools []ToolDefinition) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if instructions := renderToolInstructions(tools); instructions != "" {
		system = append(system, instructions)
	}
	return strings.Join(system, "\n\n"), rest
}
