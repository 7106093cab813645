package diag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemesh/probemesh/pkg/stream"
)

// fakeRunner scripts command output without touching the system.
type fakeRunner struct {
	lines []string
	err   error

	gotName string
	gotArgs []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (string, error) {
	f.gotName = name
	f.gotArgs = args
	var out string
	for _, line := range f.lines {
		out += line + "\n"
		if onLine != nil {
			onLine(line)
		}
	}
	return out, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *recorder) Publish(event stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Type)
	}
	return kinds
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestHandlePing_StreamsLifecycle(t *testing.T) {
	runner := &fakeRunner{lines: []string{
		"64 bytes from 8.8.8.8: icmp_seq=1 time=12.1 ms",
		"64 bytes from 8.8.8.8: icmp_seq=2 time=11.8 ms",
	}}
	events := &recorder{}
	s := NewServer(events, runner, logr.Discard())

	result, err := s.handlePing(t.Context(), callRequest("network-ping", map[string]any{
		"host":          "8.8.8.8",
		"count":         float64(2),
		"correlationId": "diag-1-abcd1234",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "ping", runner.gotName)
	assert.Equal(t, []string{"-c", "2", "8.8.8.8"}, runner.gotArgs)
	assert.Equal(t, []string{"ping_start", "ping_output", "ping_output", "ping_complete"}, events.kinds())

	for _, e := range events.events {
		assert.Equal(t, "diag-1-abcd1234", e.CorrelationID)
	}
	assert.Equal(t, "ping -c 2 8.8.8.8", events.events[0].Command)
	assert.Equal(t, "64 bytes from 8.8.8.8: icmp_seq=1 time=12.1 ms", events.events[1].Output)
}

func TestHandlePing_OutOfRangeCountFallsBackToDefault(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer(nil, runner, logr.Discard())

	for _, count := range []float64{500, 0, -4} {
		_, err := s.handlePing(t.Context(), callRequest("network-ping", map[string]any{
			"host":  "8.8.8.8",
			"count": count,
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"-c", "3", "8.8.8.8"}, runner.gotArgs)
	}
}

func TestHandlePing_FailureEmitsErrorEvent(t *testing.T) {
	runner := &fakeRunner{err: errors.New("ping: unknown host")}
	events := &recorder{}
	s := NewServer(events, runner, logr.Discard())

	result, err := s.handlePing(t.Context(), callRequest("network-ping", map[string]any{
		"host":          "nope.invalid",
		"correlationId": "diag-2-ffff0000",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, []string{"ping_start", "ping_error"}, events.kinds())
	assert.Equal(t, "ping: unknown host", events.events[1].Error)
}

func TestHandlePing_NoCorrelationIDSkipsEvents(t *testing.T) {
	events := &recorder{}
	s := NewServer(events, &fakeRunner{lines: []string{"pong"}}, logr.Discard())

	result, err := s.handlePing(t.Context(), callRequest("network-ping", map[string]any{
		"host": "8.8.8.8",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Empty(t, events.kinds())
}

func TestHandlePing_MissingHost(t *testing.T) {
	s := NewServer(nil, &fakeRunner{}, logr.Discard())

	result, err := s.handlePing(t.Context(), callRequest("network-ping", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleTraceroute(t *testing.T) {
	runner := &fakeRunner{lines: []string{"1  gateway (192.168.1.1)  0.5 ms"}}
	events := &recorder{}
	s := NewServer(events, runner, logr.Discard())

	result, err := s.handleTraceroute(t.Context(), callRequest("network-traceroute", map[string]any{
		"host":          "example.com",
		"correlationId": "diag-3-00001111",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "traceroute", runner.gotName)
	assert.Equal(t, []string{"-m", "15", "example.com"}, runner.gotArgs)
	assert.Equal(t, []string{"traceroute_start", "traceroute_output", "traceroute_complete"}, events.kinds())
}

func TestHandleDNSLookup(t *testing.T) {
	runner := &fakeRunner{lines: []string{"93.184.215.14"}}
	s := NewServer(nil, runner, logr.Discard())

	result, err := s.handleDNSLookup(t.Context(), callRequest("dns-lookup", map[string]any{
		"hostname":   "example.com",
		"recordType": "a",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "dig", runner.gotName)
	assert.Equal(t, []string{"+short", "example.com", "A"}, runner.gotArgs)
}

func TestValidateTarget(t *testing.T) {
	assert.NoError(t, validateTarget("example.com"))
	assert.NoError(t, validateTarget("192.168.1.1"))
	assert.Error(t, validateTarget(""))
	assert.Error(t, validateTarget("-c"))
	assert.Error(t, validateTarget("host; rm -rf /"))
	assert.Error(t, validateTarget("a b"))
	assert.Error(t, validateTarget("$(whoami)"))
}

func TestCancelledRunEmitsCancelledEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	runner := &fakeRunner{err: errors.New("signal: killed")}
	events := &recorder{}
	s := NewServer(events, runner, logr.Discard())

	result, err := s.handlePing(ctx, callRequest("network-ping", map[string]any{
		"host":          "8.8.8.8",
		"correlationId": "diag-4-deadbeef",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, []string{"ping_start", "ping_cancelled"}, events.kinds())
}
