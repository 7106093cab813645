package llm

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/creds"
)

func TestNewClientFromConfig_Anthropic(t *testing.T) {
	rotator := creds.NewRotator(map[string][]string{"anthropic": {"k"}})

	client, err := NewClientFromConfig(Config{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}, rotator, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", client.ModelName())
}

func TestNewClientFromConfig_OpenAI(t *testing.T) {
	rotator := creds.NewRotator(map[string][]string{"openai": {"k"}})

	client, err := NewClientFromConfig(Config{Provider: "OpenAI", Model: "gpt-4o"}, rotator, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.ModelName())
}

func TestNewClientFromConfig_UnsupportedProvider(t *testing.T) {
	rotator := creds.NewRotator(nil)

	_, err := NewClientFromConfig(Config{Provider: "cohere", Model: "m"}, rotator, logr.Discard())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))
}

func TestNewClientFromConfig_MissingModel(t *testing.T) {
	rotator := creds.NewRotator(nil)

	_, err := NewClientFromConfig(Config{Provider: "anthropic"}, rotator, logr.Discard())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))
}

func TestRenderToolInstructions_Empty(t *testing.T) {
	assert.Empty(t, renderToolInstructions(nil))
}

func TestRenderToolInstructions_ListsTools(t *testing.T) {
	instructions := renderToolInstructions([]ToolDefinition{
		{Name: "network-ping", Description: "ICMP probe", Parameters: map[string]any{"type": "object"}},
		{Name: "dns-lookup", Description: "resolve a name"},
	})

	assert.Contains(t, instructions, "network-ping")
	assert.Contains(t, instructions, "dns-lookup")
	assert.Contains(t, instructions, `{"tool": "<name>", "arguments": {...}}`)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "You are a network diagnostics assistant."},
		{Role: RoleUser, Content: "ping 8.8.8.8"},
		{Role: RoleAssistant, Content: "ok"},
	}, []ToolDefinition{{Name: "network-ping"}})

	assert.Contains(t, system, "network diagnostics assistant")
	assert.Contains(t, system, "network-ping")
	require.Len(t, rest, 2)
	assert.Equal(t, RoleUser, rest[0].Role)
	assert.Equal(t, RoleAssistant, rest[1].Role)
}

func TestCompletion_NoCredentials(t *testing.T) {
	rotator := creds.NewRotator(nil)
	client := NewAnthropicClient(rotator, "claude-sonnet-4-20250514", 1024, logr.Discard())

	_, err := client.Complete(t.Context(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoCredentials))
}
