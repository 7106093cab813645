package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemesh/probemesh/pkg/approval"
)

func TestElicit_Accept(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(strings.NewReader("y\n"), &out)

	decision, err := console.Elicit(t.Context(), approval.Request{PromptText: "Execute network-ping"})
	require.NoError(t, err)
	assert.True(t, decision.Approved())
	assert.Equal(t, map[string]any{"approved": true}, decision.Data)
	assert.Contains(t, out.String(), "Execute network-ping")
}

func TestElicit_Decline(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(strings.NewReader("no\n"), &out)

	decision, err := console.Elicit(t.Context(), approval.Request{PromptText: "Execute network-ping"})
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeDeclined, decision.Outcome)
}

func TestElicit_DefaultsToDecline(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(strings.NewReader("\n"), &out)

	decision, err := console.Elicit(t.Context(), approval.Request{PromptText: "Execute network-ping"})
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeDeclined, decision.Outcome)
}

func TestElicit_RepromptsOnGarbage(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(strings.NewReader("maybe\nyes\n"), &out)

	decision, err := console.Elicit(t.Context(), approval.Request{PromptText: "Execute network-ping"})
	require.NoError(t, err)
	assert.True(t, decision.Approved())
	assert.Contains(t, out.String(), "Please answer y or n.")
}

func TestElicit_EOFCancels(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(strings.NewReader(""), &out)

	decision, err := console.Elicit(t.Context(), approval.Request{PromptText: "Execute network-ping"})
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeCancelled, decision.Outcome)
	assert.False(t, decision.Approved())
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		kind    string
		payload map[string]any
		want    string
	}{
		{"notice", map[string]any{"text": "No server found with tool: disk-usage"}, "No server found"},
		{"connected", nil, "stream connected"},
		{"ping_start", map[string]any{"command": "ping -c 3 8.8.8.8"}, "$ ping -c 3 8.8.8.8"},
		{"ping_output", map[string]any{"output": "64 bytes from 8.8.8.8"}, "64 bytes from 8.8.8.8"},
		{"ping_complete", nil, "done"},
		{"traceroute_error", map[string]any{"error": "host unreachable"}, "failed: host unreachable"},
		{"dns_cancelled", nil, "cancelled"},
		{"mystery_event", nil, "[mystery_event]"},
	}

	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			var out bytes.Buffer
			console := NewConsole(strings.NewReader(""), &out)
			console.RenderEvent(tc.kind, tc.payload)
			assert.Contains(t, out.String(), tc.want)
		})
	}
}
