// Package diag is the bundled diagnostics tool provider. It speaks MCP over
// stdio and emits per-invocation lifecycle events, keyed by the caller's
// correlation id, through a stream publisher (normally the SSE hub).
package diag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/probemesh/probemesh/pkg/stream"
)

const (
	serverName    = "probemesh-diag"
	serverVersion = "0.3.0"

	defaultPingCount = 3
	maxPingCount     = 10
	tracerouteHops   = "15"
)

// Publisher receives the lifecycle events produced by tool runs. The SSE
// hub satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(event stream.Event)
}

// Server bundles the network diagnostic tools behind an MCP stdio server.
type Server struct {
	mcp    *server.MCPServer
	events Publisher
	runner Runner
	logger logr.Logger
}

// NewServer builds the diagnostics provider. events may be nil when no
// stream hub is running; tools then execute without progress events.
func NewServer(events Publisher, runner Runner, logger logr.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithPromptCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		events: events,
		runner: runner,
		logger: logger,
	}
	s.registerTools()
	s.registerPrompts()
	s.registerResources()
	return s
}

// ServeStdio blocks serving MCP requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("network-ping",
		mcp.WithDescription("Probe ICMP reachability and latency of a host"),
		mcp.WithString("host", mcp.Required(), mcp.Description("Hostname or IP address to ping")),
		mcp.WithNumber("count", mcp.Description("Number of echo requests, 1 to 10"), mcp.DefaultNumber(defaultPingCount)),
		mcp.WithString("correlationId", mcp.Description("Stream correlation id for progress events")),
	), s.handlePing)

	s.mcp.AddTool(mcp.NewTool("network-traceroute",
		mcp.WithDescription("Trace the network path to a host"),
		mcp.WithString("host", mcp.Required(), mcp.Description("Hostname or IP address to trace")),
		mcp.WithString("correlationId", mcp.Description("Stream correlation id for progress events")),
	), s.handleTraceroute)

	s.mcp.AddTool(mcp.NewTool("dns-lookup",
		mcp.WithDescription("Resolve DNS records for a hostname"),
		mcp.WithString("hostname", mcp.Required(), mcp.Description("Name to resolve")),
		mcp.WithString("recordType", mcp.Description("Record type such as A, AAAA, MX, TXT"), mcp.DefaultString("A")),
		mcp.WithString("correlationId", mcp.Description("Stream correlation id for progress events")),
	), s.handleDNSLookup)
}

func (s *Server) handlePing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := request.RequireString("host")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateTarget(host); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	count := request.GetInt("count", defaultPingCount)
	if count < 1 || count > maxPingCount {
		count = defaultPingCount
	}

	return s.runTool(ctx, request, "ping", "ping", []string{"-c", strconv.Itoa(count), host})
}

func (s *Server) handleTraceroute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := request.RequireString("host")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateTarget(host); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return s.runTool(ctx, request, "traceroute", "traceroute", []string{"-m", tracerouteHops, host})
}

func (s *Server) handleDNSLookup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hostname, err := request.RequireString("hostname")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateTarget(hostname); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	recordType := strings.ToUpper(request.GetString("recordType", "A"))
	if err := validateTarget(recordType); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return s.runTool(ctx, request, "dns", "dig", []string{"+short", hostname, recordType})
}

// runTool executes one command, bracketing it with start and terminal
// events and forwarding each output line as it appears. The terminal event
// kind depends on how the run ended; exactly one is published.
func (s *Server) runTool(ctx context.Context, request mcp.CallToolRequest, prefix, name string, args []string) (*mcp.CallToolResult, error) {
	correlationID := request.GetString("correlationId", "")
	command := name + " " + strings.Join(args, " ")

	s.logger.Info("running diagnostic", "command", command, "correlationId", correlationID)
	s.publish(correlationID, prefix+"_start", command, "", "")

	output, err := s.runner.Run(ctx, name, args, func(line string) {
		s.publish(correlationID, prefix+"_output", "", line, "")
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.publish(correlationID, prefix+"_cancelled", "", "", "")
			return mcp.NewToolResultError(fmt.Sprintf("%s cancelled", name)), nil
		}
		s.publish(correlationID, prefix+"_error", "", "", err.Error())
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.publish(correlationID, prefix+"_complete", "", "", "")
	return mcp.NewToolResultText(output), nil
}

func (s *Server) publish(correlationID, kind, command, output, errText string) {
	if s.events == nil || correlationID == "" {
		return
	}
	s.events.Publish(stream.Event{
		Type:          kind,
		CorrelationID: correlationID,
		Command:       command,
		Output:        output,
		Error:         errText,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// validateTarget rejects arguments that could be misread as command flags
// or that contain shell metacharacters. Commands run without a shell, so
// this is about flag injection, not quoting.
func validateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("target must not be empty")
	}
	if strings.HasPrefix(target, "-") {
		return fmt.Errorf("target %q must not start with a dash", target)
	}
	if strings.ContainsAny(target, " \t\n;|&$<>`") {
		return fmt.Errorf("target %q contains invalid characters", target)
	}
	return nil
}
