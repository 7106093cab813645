package diag

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const latencyRunbookURI = "doc://probemesh/runbooks/latency"

const latencyRunbook = `# Latency triage runbook

1. Establish a baseline: ping the target and a known-good host (8.8.8.8).
2. Compare medians, not minimums. A single fast packet proves nothing.
3. If the baseline differs, traceroute both targets and diff the paths.
4. High latency at the first hop is local; mid-path jumps are the carrier.
5. Before blaming the network, resolve the name. Stale DNS answers route
   traffic to the wrong region more often than links fail.
`

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.Prompt{
		Name:        "latency-triage",
		Description: "Guided investigation of high latency to a host",
		Arguments: []mcp.PromptArgument{
			{Name: "host", Description: "Host under investigation", Required: true},
		},
	}, s.handleLatencyTriage)

	s.mcp.AddPrompt(mcp.Prompt{
		Name:        "reachability-check",
		Description: "Quick reachability sweep of a host",
		Arguments: []mcp.PromptArgument{
			{Name: "host", Description: "Host to check", Required: true},
		},
	}, s.handleReachabilityCheck)
}

func (s *Server) handleLatencyTriage(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	host := request.Params.Arguments["host"]
	if host == "" {
		return nil, fmt.Errorf("latency-triage requires a host argument")
	}
	return &mcp.GetPromptResult{
		Description: "Latency triage for " + host,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Investigate latency to %s. Start with a baseline ping, then trace the "+
						"path if the numbers look off, and confirm the name resolves where "+
						"you expect. Summarize what you find and where the delay lives.", host)),
			},
		},
	}, nil
}

func (s *Server) handleReachabilityCheck(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	host := request.Params.Arguments["host"]
	if host == "" {
		return nil, fmt.Errorf("reachability-check requires a host argument")
	}
	return &mcp.GetPromptResult{
		Description: "Reachability check for " + host,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Check whether %s is reachable: resolve the name, then ping it. "+
						"Report packet loss and round-trip times.", host)),
			},
		},
	}, nil
}

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.Resource{
		URI:         latencyRunbookURI,
		Name:        "latency-runbook",
		Description: "House rules for chasing latency problems",
		MIMEType:    "text/markdown",
	}, s.handleLatencyRunbook)
}

func (s *Server) handleLatencyRunbook(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      latencyRunbookURI,
			MIMEType: "text/markdown",
			Text:     latencyRunbook,
		},
	}, nil
}
