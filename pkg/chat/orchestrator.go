package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/llm"
	"github.com/probemesh/probemesh/pkg/provider"
	"github.com/probemesh/probemesh/pkg/stream"
)

const (
	// DefaultMaxIterations bounds the tool-call loop within a single turn so
	// a model that keeps requesting tools cannot spin forever.
	DefaultMaxIterations = 10

	// streamDrainGrace is how long to wait after a tool returns for its
	// terminal stream event to arrive before force-closing the subscription.
	streamDrainGrace = 2 * time.Second
)

// EventRenderer displays stream events and orchestrator notices to the
// human. Implementations must not block on user input.
type EventRenderer interface {
	RenderEvent(kind string, payload map[string]any)
}

// Orchestrator drives the conversation loop: it routes user input, asks the
// model for completions over the live tool catalog, dispatches recognized
// tool calls to the owning provider, and feeds results back into history.
type Orchestrator struct {
	session       *Session
	model         llm.Client
	broker        *stream.Broker
	renderer      EventRenderer
	streaming     map[string]bool
	maxIterations int
	logger        logr.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations overrides the per-turn tool-call loop bound.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithStreamingTools replaces the set of tool names that get a correlation
// id injected and a progress stream attached before dispatch.
func WithStreamingTools(names ...string) Option {
	return func(o *Orchestrator) {
		o.streaming = make(map[string]bool, len(names))
		for _, name := range names {
			o.streaming[name] = true
		}
	}
}

// NewOrchestrator wires the conversation loop over a session, a completion
// client, and the stream broker. renderer may be nil in headless use.
func NewOrchestrator(session *Session, model llm.Client, broker *stream.Broker, renderer EventRenderer, logger logr.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:  session,
		model:    model,
		broker:   broker,
		renderer: renderer,
		streaming: map[string]bool{
			"network-ping":       true,
			"network-traceroute": true,
			"dns-lookup":         true,
		},
		maxIterations: DefaultMaxIterations,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartProviders initializes every provider handle. Partial startup is not
// allowed: if any provider fails, the ones already connected are torn down
// and the aggregate error is returned.
func (o *Orchestrator) StartProviders(ctx context.Context) error {
	var errs *multierror.Error
	for _, handle := range o.session.Handles() {
		if err := handle.Initialize(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		o.session.Close()
		return apperrors.New(apperrors.ErrCodeProviderInit, "starting tool providers", err)
	}
	return nil
}

// Shutdown tears down providers and open stream subscriptions.
func (o *Orchestrator) Shutdown() {
	o.broker.CloseAll()
	o.session.Close()
}

// ProcessInput handles one line of user input. A leading "/" invokes a
// provider workflow, a leading "@" pulls a provider resource into the
// conversation, anything else is a chat turn. The returned string is the
// text to show the user; errors are per-turn and leave the session usable.
func (o *Orchestrator) ProcessInput(ctx context.Context, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return "", nil
	case strings.HasPrefix(trimmed, "/"):
		return o.runWorkflow(ctx, trimmed)
	case strings.HasPrefix(trimmed, "@"):
		return o.fetchResource(ctx, trimmed)
	default:
		o.session.Append(llm.Message{Role: llm.RoleUser, Content: trimmed})
		return o.completeLoop(ctx)
	}
}

// completeLoop alternates completions and tool dispatches until the model
// answers with plain text or the iteration bound is hit.
func (o *Orchestrator) completeLoop(ctx context.Context) (string, error) {
	for i := 0; i < o.maxIterations; i++ {
		catalog := o.session.Catalog(ctx)

		reply, err := o.model.Complete(ctx, o.session.History(), toolDefinitions(catalog))
		if err != nil {
			return "", err
		}

		call, ok := ParseToolCall(reply)
		if !ok {
			o.session.Append(llm.Message{Role: llm.RoleAssistant, Content: reply})
			return reply, nil
		}

		o.session.Append(llm.Message{Role: llm.RoleAssistant, Content: reply})
		o.dispatch(ctx, call)
	}

	notice := fmt.Sprintf("Stopped after %d consecutive tool calls without a final answer.", o.maxIterations)
	o.logger.Info("tool-call loop bound reached", "iterations", o.maxIterations)
	o.session.Append(llm.Message{Role: llm.RoleSystem, Content: notice})
	return notice, nil
}

// dispatch routes one parsed tool call to the first provider advertising the
// tool and integrates the outcome into history. Every failure mode becomes a
// history entry rather than an error: the loop must survive bad tool names,
// denied approvals and flaky providers alike.
func (o *Orchestrator) dispatch(ctx context.Context, call *ToolCall) {
	handle, found := o.session.FindProvider(ctx, call.Name)
	if !found {
		notice := fmt.Sprintf("No server found with tool: %s", call.Name)
		o.notice(notice)
		o.session.Append(llm.Message{Role: llm.RoleSystem, Content: notice})
		return
	}

	var correlationID string
	var streamDone <-chan struct{}
	if o.streaming[call.Name] {
		correlationID = stream.NewCorrelationID()
		call.Arguments["correlationId"] = correlationID
		events := o.broker.Subscribe(correlationID)
		streamDone = o.forwardEvents(events)
		o.broker.OpenStream(ctx, correlationID)
	}

	result, err := handle.ExecuteTool(ctx, call.Name, call.Arguments)
	if err != nil {
		if correlationID != "" {
			o.broker.Unsubscribe(correlationID)
		}
		notice := fmt.Sprintf("Tool %s failed: %v", call.Name, err)
		o.notice(notice)
		o.session.Append(llm.Message{Role: llm.RoleSystem, Content: notice})
		return
	}

	if correlationID != "" {
		o.drainStream(correlationID, streamDone)
	}

	content := result.Content
	if result.IsError {
		content = fmt.Sprintf("Tool reported an error:\n%s", content)
	}
	o.session.Append(llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Tool %s returned:\n%s", call.Name, content),
	})
}

// forwardEvents relays stream events to the renderer until the broker
// closes the subscription channel.
func (o *Orchestrator) forwardEvents(events <-chan stream.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			if o.renderer == nil {
				continue
			}
			o.renderer.RenderEvent(event.Type, map[string]any{
				"correlationId": event.CorrelationID,
				"command":       event.Command,
				"output":        event.Output,
				"error":         event.Error,
			})
		}
	}()
	return done
}

// drainStream waits briefly for the terminal event to close the forwarder,
// then force-closes the subscription if it never arrived.
func (o *Orchestrator) drainStream(correlationID string, done <-chan struct{}) {
	// A subscription still pending saw no events at all (denied approval,
	// provider without progress support); don't wait out the grace period.
	if state, _, ok := o.broker.SessionState(correlationID); ok && state == stream.StatePending {
		o.broker.Unsubscribe(correlationID)
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(streamDrainGrace):
		o.logger.V(1).Info("no terminal event before grace period, closing subscription",
			"correlationId", correlationID)
		o.broker.Unsubscribe(correlationID)
		<-done
	}
}

// runWorkflow resolves "/name key=value ..." against the cached prompt
// catalogs, seeds the history with the workflow's messages, and runs the
// completion loop over them.
func (o *Orchestrator) runWorkflow(ctx context.Context, input string) (string, error) {
	name, args := parseCommand(input[1:])
	if name == "" {
		notice := "Usage: /<workflow> [key=value ...]"
		o.notice(notice)
		return notice, nil
	}

	handle, found := o.findWorkflow(name)
	if !found {
		notice := fmt.Sprintf("Workflow not found: %s", name)
		o.notice(notice)
		return notice, nil
	}

	messages, err := handle.GetPrompt(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("loading workflow %s: %w", name, err)
	}
	for _, m := range messages {
		role := llm.RoleUser
		if m.Role == "assistant" {
			role = llm.RoleAssistant
		}
		o.session.Append(llm.Message{Role: role, Content: m.Content})
	}

	return o.completeLoop(ctx)
}

// fetchResource resolves "@name-or-uri" against the cached resource
// catalogs and splices the resource text into the conversation.
func (o *Orchestrator) fetchResource(ctx context.Context, input string) (string, error) {
	target := strings.TrimSpace(input[1:])
	if target == "" {
		notice := "Usage: @<resource-name-or-uri>"
		o.notice(notice)
		return notice, nil
	}

	handle, uri, found := o.findResource(target)
	if !found {
		notice := fmt.Sprintf("Resource not found: %s", target)
		o.notice(notice)
		return notice, nil
	}

	contents, err := handle.ReadResource(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("reading resource %s: %w", uri, err)
	}

	o.session.Append(llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Resource %s:\n%s", uri, contents),
	})
	notice := fmt.Sprintf("Loaded resource %s into the conversation.", uri)
	o.notice(notice)
	return notice, nil
}

func (o *Orchestrator) findWorkflow(name string) (*provider.Handle, bool) {
	for _, handle := range o.session.Handles() {
		for _, prompt := range handle.CachedPrompts() {
			if prompt.Name == name {
				return handle, true
			}
		}
	}
	return nil, false
}

func (o *Orchestrator) findResource(target string) (h *provider.Handle, uri string, found bool) {
	for _, handle := range o.session.Handles() {
		for _, res := range handle.CachedResources() {
			if res.Name == target || res.URI == target {
				return handle, res.URI, true
			}
		}
	}
	return nil, "", false
}

func (o *Orchestrator) notice(text string) {
	if o.renderer != nil {
		o.renderer.RenderEvent("notice", map[string]any{"text": text})
	}
}

// parseCommand splits "name key=value key2=value2" into the command name
// and its argument map. Tokens without "=" are ignored.
func parseCommand(input string) (string, map[string]string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil
	}
	args := make(map[string]string)
	for _, field := range fields[1:] {
		if key, value, ok := strings.Cut(field, "="); ok && key != "" {
			args[key] = value
		}
	}
	return fields[0], args
}

func toolDefinitions(catalog []provider.ToolDescriptor) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(catalog))
	for _, tool := range catalog {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.ParameterSchema,
		})
	}
	return defs
}
