// Package provider owns connections to external diagnostic tool providers.
// Each Handle wraps exactly one MCP connection: it discovers capabilities,
// lists tools, prompts and resources, and invokes tools with retry, gating
// every invocation behind the injected approval capability.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/approval"
)

const (
	clientName    = "probemesh"
	clientVersion = "0.3.0"

	// DefaultMaxRetries bounds tool invocation attempts. Retries resubmit
	// the same arguments, which is acceptable for read-only diagnostics but
	// not idempotent-safe in general.
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Handle owns one connection to one external tool provider.
type Handle struct {
	mu    sync.Mutex
	id    string
	rpc   RPCClient
	state ConnectionState
	caps  map[Capability]bool

	cachedPrompts   []PromptDescriptor
	cachedResources []ResourceDescriptor

	gate       *approval.Gate
	maxRetries int
	retryDelay time.Duration
	logger     logr.Logger
}

// Option configures a Handle.
type Option func(*Handle)

// WithMaxRetries sets the total number of tool invocation attempts.
func WithMaxRetries(n int) Option {
	return func(h *Handle) { h.maxRetries = n }
}

// WithRetryDelay sets the fixed delay between invocation attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(h *Handle) { h.retryDelay = d }
}

// NewHandle creates a Handle for a provider launched per spec. The approval
// gate is a required collaborator: every tool invocation passes through it.
func NewHandle(spec LaunchSpec, gate *approval.Gate, logger logr.Logger, opts ...Option) *Handle {
	stdio := transport.NewStdio(spec.Command, spec.Env, spec.Args...)
	return NewHandleWithClient(spec.ID, client.NewClient(stdio), gate, logger, opts...)
}

// NewHandleWithClient creates a Handle over an already-constructed RPC
// client. Useful for in-process providers and tests.
func NewHandleWithClient(id string, rpc RPCClient, gate *approval.Gate, logger logr.Logger, opts ...Option) *Handle {
	h := &Handle{
		id:         id,
		rpc:        rpc,
		state:      StateUninitialized,
		caps:       make(map[Capability]bool),
		gate:       gate,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     logger.WithValues("provider", id),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the provider identifier.
func (h *Handle) ID() string { return h.id }

// State returns the current connection state.
func (h *Handle) State() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// HasCapability reports whether the provider declared the capability.
func (h *Handle) HasCapability(cap Capability) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caps[cap]
}

// CachedPrompts returns the prompt catalog snapshot taken at initialization.
func (h *Handle) CachedPrompts() []PromptDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PromptDescriptor(nil), h.cachedPrompts...)
}

// CachedResources returns the resource catalog snapshot taken at initialization.
func (h *Handle) CachedResources() []ResourceDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ResourceDescriptor(nil), h.cachedResources...)
}

// Initialize establishes the transport connection and negotiates
// capabilities. Prompt and resource catalogs are cached best-effort: a
// failure to fetch either is logged and leaves the cache empty, while a
// transport failure fails initialization outright.
func (h *Handle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateUninitialized {
		state := h.state
		h.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeProviderInit,
			fmt.Sprintf("provider %s already %s", h.id, state), nil)
	}
	h.mu.Unlock()

	if err := h.rpc.Start(ctx); err != nil {
		return apperrors.New(apperrors.ErrCodeProviderInit,
			fmt.Sprintf("starting transport for provider %s", h.id), err)
	}

	initResult, err := h.rpc.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeProviderInit,
			fmt.Sprintf("initializing provider %s", h.id), err)
	}

	caps := make(map[Capability]bool)
	if initResult.Capabilities.Tools != nil {
		caps[CapTools] = true
	}
	if initResult.Capabilities.Prompts != nil {
		caps[CapPrompts] = true
	}
	if initResult.Capabilities.Resources != nil {
		caps[CapResources] = true
	}
	if _, ok := initResult.Capabilities.Experimental["progressEvents"]; ok {
		caps[CapProgress] = true
	}

	h.mu.Lock()
	h.state = StateConnected
	h.caps = caps
	h.mu.Unlock()

	h.cachePrompts(ctx)
	h.cacheResources(ctx)

	h.logger.Info("provider initialized",
		"server", initResult.ServerInfo.Name,
		"prompts", len(h.CachedPrompts()),
		"resources", len(h.CachedResources()))
	return nil
}

func (h *Handle) cachePrompts(ctx context.Context) {
	if !h.HasCapability(CapPrompts) {
		return
	}
	result, err := h.rpc.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		h.logger.Error(err, "prompt catalog unavailable, continuing without workflows")
		return
	}
	prompts := make([]PromptDescriptor, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		prompts = append(prompts, PromptDescriptor{Name: p.Name, Description: p.Description})
	}
	h.mu.Lock()
	h.cachedPrompts = prompts
	h.mu.Unlock()
}

func (h *Handle) cacheResources(ctx context.Context) {
	if !h.HasCapability(CapResources) {
		return
	}
	result, err := h.rpc.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		h.logger.Error(err, "resource catalog unavailable, continuing without resources")
		return
	}
	resources := make([]ResourceDescriptor, 0, len(result.Resources))
	for _, r := range result.Resources {
		resources = append(resources, ResourceDescriptor{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
		})
	}
	h.mu.Lock()
	h.cachedResources = resources
	h.mu.Unlock()
}

// ListTools re-queries the live tool catalog. Tools may change between
// calls, so the result is never cached.
func (h *Handle) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if err := h.requireConnected("listing tools"); err != nil {
		return nil, err
	}

	result, err := h.rpc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools on provider %s: %w", h.id, err)
	}

	supportsProgress := h.HasCapability(CapProgress)
	descriptors := make([]ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			Name:             tool.Name,
			Description:      tool.Description,
			ParameterSchema:  schemaToMap(tool.InputSchema),
			ProviderID:       h.id,
			SupportsProgress: supportsProgress,
		})
	}
	return descriptors, nil
}

// ExecuteTool gates the invocation behind approval, then invokes the named
// tool with up to maxRetries attempts separated by a fixed delay. The last
// attempt's error is surfaced if all attempts fail. A declined or cancelled
// approval short-circuits with a denial result and no invocation attempted;
// an approval transport failure is treated the same way (fail closed).
func (h *Handle) ExecuteTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if err := h.requireConnected("executing tool"); err != nil {
		return nil, err
	}

	decision, err := h.gate.RequestApproval(ctx, approvalPrompt(name, args), approvalSchema(), correlationID(args))
	if err != nil {
		h.logger.Error(err, "approval transport failed, treating as declined", "tool", name)
		return &ToolResult{Content: fmt.Sprintf("Tool execution declined: approval unavailable for %s", name)}, nil
	}
	if !decision.Approved() {
		h.logger.Info("tool execution not approved", "tool", name, "outcome", decision.Outcome)
		return &ToolResult{Content: fmt.Sprintf("Tool execution declined by user: %s", name)}, nil
	}

	operation := func() (*mcp.CallToolResult, error) {
		result, err := h.rpc.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      name,
				Arguments: args,
			},
		})
		if err != nil {
			h.logger.V(1).Info("tool invocation attempt failed", "tool", name, "error", err.Error())
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(h.retryDelay)),
		backoff.WithMaxTries(uint(h.maxRetries)))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeExecution,
			fmt.Sprintf("tool %s failed after %d attempts", name, h.maxRetries), err)
	}

	return normalizeResult(result), nil
}

// GetPrompt fetches a workflow prompt's seed messages from the provider.
func (h *Handle) GetPrompt(ctx context.Context, name string, args map[string]string) ([]PromptMessage, error) {
	if err := h.requireConnected("getting prompt"); err != nil {
		return nil, err
	}

	result, err := h.rpc.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting prompt %s from provider %s: %w", name, h.id, err)
	}

	messages := make([]PromptMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		if text, ok := mcp.AsTextContent(m.Content); ok {
			messages = append(messages, PromptMessage{Role: string(m.Role), Content: text.Text})
		}
	}
	return messages, nil
}

// ReadResource fetches the text contents of a provider resource.
func (h *Handle) ReadResource(ctx context.Context, uri string) (string, error) {
	if err := h.requireConnected("reading resource"); err != nil {
		return "", err
	}

	result, err := h.rpc.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return "", fmt.Errorf("reading resource %s from provider %s: %w", uri, h.id, err)
	}

	var sb strings.Builder
	for _, contents := range result.Contents {
		if text, ok := mcp.AsTextResourceContents(contents); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// Cleanup closes the transport. Idempotent: the first call transitions the
// handle to Closed, later calls are no-ops. Close errors are logged and
// swallowed so one handle's failure cannot block sibling cleanup.
func (h *Handle) Cleanup() {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	h.state = StateClosed
	h.mu.Unlock()

	if err := h.rpc.Close(); err != nil {
		h.logger.Error(err, "error closing provider connection")
	}
}

func (h *Handle) requireConnected(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateConnected {
		return apperrors.New(apperrors.ErrCodeNotInitialized,
			fmt.Sprintf("%s on provider %s while %s", op, h.id, h.state), nil)
	}
	return nil
}

func normalizeResult(result *mcp.CallToolResult) *ToolResult {
	// Providers occasionally answer without structured content; that is an
	// empty result, not a fault.
	if result == nil {
		return &ToolResult{}
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			sb.WriteString(text.Text)
		}
	}
	return &ToolResult{Content: sb.String(), IsError: result.IsError}
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func approvalPrompt(name string, args map[string]any) string {
	rendered, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		rendered = []byte("{}")
	}
	return fmt.Sprintf("Execute %s with arguments:\n%s", name, rendered)
}

func approvalSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"approved": map[string]any{
				"type":        "boolean",
				"description": "Whether to run the command",
			},
		},
		"required": []string{"approved"},
	}
}

func correlationID(args map[string]any) string {
	if id, ok := args["correlationId"].(string); ok {
		return id
	}
	return ""
}
