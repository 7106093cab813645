package provider

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ConnectionState tracks the handle lifecycle. Transitions are one-way:
// Uninitialized -> Connected -> Closed, and Closed is terminal.
type ConnectionState int

const (
	StateUninitialized ConnectionState = iota
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capability flags negotiated with the provider during initialization.
type Capability string

const (
	CapTools     Capability = "tools"
	CapPrompts   Capability = "prompts"
	CapResources Capability = "resources"
	// CapProgress marks providers that emit lifecycle/progress events for
	// long-running tools, declared through the experimental capability set.
	CapProgress Capability = "progress"
)

// ToolDescriptor describes one invocable tool as reported by its provider.
// Immutable once discovered; owned by the reporting handle.
type ToolDescriptor struct {
	Name             string
	Description      string
	ParameterSchema  map[string]any
	ProviderID       string
	SupportsProgress bool
}

// ToolResult is the outcome of one tool invocation. IsError marks a failure
// reported by the provider; a declined approval is not an error.
type ToolResult struct {
	Content string
	IsError bool
}

// PromptDescriptor describes a provider-supplied workflow prompt.
type PromptDescriptor struct {
	Name        string
	Description string
}

// ResourceDescriptor describes a provider-supplied, URI-addressed document.
type ResourceDescriptor struct {
	URI         string
	Name        string
	Description string
}

// PromptMessage is one seed message of a workflow prompt.
type PromptMessage struct {
	Role    string
	Content string
}

// LaunchSpec configures how a provider subprocess is started.
type LaunchSpec struct {
	ID      string   `mapstructure:"id"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"`
}

// RPCClient is the slice of the MCP client surface the handle depends on.
// *client.Client satisfies it; tests and in-process providers substitute
// their own implementations.
type RPCClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	Close() error
}
