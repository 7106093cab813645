// Package chat implements the session orchestration core: conversation
// state across tool providers, tool-call parsing from model output, command
// routing, and the approval-execution-result loop.
package chat

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/probemesh/probemesh/pkg/llm"
	"github.com/probemesh/probemesh/pkg/provider"
)

// Session holds one conversation: the ordered message history and the set
// of active tool provider handles. History is insertion-ordered and never
// reordered. The tool catalog is derived from the handles on demand, never
// cached, so a provider reconnect cannot leave a stale view.
type Session struct {
	messages []llm.Message
	handles  []*provider.Handle
	logger   logr.Logger
}

// NewSession creates a session over the given provider handles. systemPrompt
// seeds the history when non-empty.
func NewSession(systemPrompt string, handles []*provider.Handle, logger logr.Logger) *Session {
	s := &Session{handles: handles, logger: logger}
	if systemPrompt != "" {
		s.Append(llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return s
}

// Append adds a message to the end of the history.
func (s *Session) Append(message llm.Message) {
	s.messages = append(s.messages, message)
}

// History returns a copy of the conversation so far, in order.
func (s *Session) History() []llm.Message {
	return append([]llm.Message(nil), s.messages...)
}

// Handles returns the active provider handles.
func (s *Session) Handles() []*provider.Handle {
	return s.handles
}

// Catalog flattens the live tool catalogs of all connected providers,
// deduplicated by tool name with the first provider winning. Providers
// whose catalog query fails are skipped, not fatal.
func (s *Session) Catalog(ctx context.Context) []provider.ToolDescriptor {
	seen := make(map[string]bool)
	var catalog []provider.ToolDescriptor
	for _, handle := range s.handles {
		if handle.State() != provider.StateConnected {
			continue
		}
		tools, err := handle.ListTools(ctx)
		if err != nil {
			s.logger.Error(err, "skipping provider catalog", "provider", handle.ID())
			continue
		}
		for _, tool := range tools {
			if seen[tool.Name] {
				continue
			}
			seen[tool.Name] = true
			catalog = append(catalog, tool)
		}
	}
	return catalog
}

// FindProvider returns the first connected provider whose live catalog
// contains the tool name.
func (s *Session) FindProvider(ctx context.Context, toolName string) (*provider.Handle, bool) {
	for _, handle := range s.handles {
		if handle.State() != provider.StateConnected {
			continue
		}
		tools, err := handle.ListTools(ctx)
		if err != nil {
			s.logger.Error(err, "skipping provider during lookup", "provider", handle.ID())
			continue
		}
		for _, tool := range tools {
			if tool.Name == toolName {
				return handle, true
			}
		}
	}
	return nil, false
}

// Close releases every handle. Cleanup is idempotent and swallows its own
// transport errors, so teardown always reaches every sibling.
func (s *Session) Close() {
	for _, handle := range s.handles {
		handle.Cleanup()
	}
}
