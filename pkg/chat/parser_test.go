package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantCall bool
		wantName string
		wantArgs map[string]any
	}{
		{
			name:     "plain json",
			reply:    `{"tool": "network-ping", "arguments": {"host": "8.8.8.8", "count": 3}}`,
			wantCall: true,
			wantName: "network-ping",
			wantArgs: map[string]any{"host": "8.8.8.8", "count": float64(3)},
		},
		{
			name:     "fenced with language tag",
			reply:    "```json\n{\"tool\": \"dns-lookup\", \"arguments\": {\"hostname\": \"example.com\"}}\n```",
			wantCall: true,
			wantName: "dns-lookup",
			wantArgs: map[string]any{"hostname": "example.com"},
		},
		{
			name:     "fenced without language tag",
			reply:    "```\n{\"tool\": \"network-traceroute\", \"arguments\": {}}\n```",
			wantCall: true,
			wantName: "network-traceroute",
			wantArgs: map[string]any{},
		},
		{
			name:     "surrounding whitespace",
			reply:    "\n\n  {\"tool\": \"network-ping\", \"arguments\": {\"host\": \"1.1.1.1\"}}  \n",
			wantCall: true,
			wantName: "network-ping",
			wantArgs: map[string]any{"host": "1.1.1.1"},
		},
		{
			name:     "arguments key omitted",
			reply:    `{"tool": "network-ping"}`,
			wantCall: true,
			wantName: "network-ping",
			wantArgs: map[string]any{},
		},
		{
			name:  "conversational text",
			reply: "The host appears reachable with a median latency of 12ms.",
		},
		{
			name:  "text mentioning a tool",
			reply: `I would use the "tool" called network-ping here.`,
		},
		{
			name:  "malformed json",
			reply: `{"tool": "network-ping", "arguments": {`,
		},
		{
			name:  "json without tool key",
			reply: `{"arguments": {"host": "8.8.8.8"}}`,
		},
		{
			name:  "empty tool name",
			reply: `{"tool": "", "arguments": {}}`,
		},
		{
			name:  "tool name not a string",
			reply: `{"tool": 42, "arguments": {}}`,
		},
		{
			name:  "arguments not an object",
			reply: `{"tool": "network-ping", "arguments": "8.8.8.8"}`,
		},
		{
			name:  "empty reply",
			reply: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			call, ok := ParseToolCall(tc.reply)
			if !tc.wantCall {
				assert.False(t, ok)
				assert.Nil(t, call)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.wantName, call.Name)
			assert.Equal(t, tc.wantArgs, call.Arguments)
		})
	}
}

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("latency-triage host=example.com count=5")
	assert.Equal(t, "latency-triage", name)
	assert.Equal(t, map[string]string{"host": "example.com", "count": "5"}, args)

	name, args = parseCommand("triage")
	assert.Equal(t, "triage", name)
	assert.Empty(t, args)

	name, _ = parseCommand("   ")
	assert.Empty(t, name)
}
