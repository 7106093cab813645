package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-logr/logr"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/creds"
)

const anthropicPool = "anthropic"

type anthropicClient struct {
	rotator   *creds.Rotator
	model     string
	maxTokens int64
	reqOpts   []option.RequestOption
	logger    logr.Logger
}

// NewAnthropicClient creates a completion client backed by the Anthropic
// API. Credentials come from the rotator's "anthropic" pool; each Complete
// call fails over across the pool at most one full pass. Extra request
// options are applied to every underlying client (base URL, retry policy).
func NewAnthropicClient(rotator *creds.Rotator, model string, maxTokens int64, logger logr.Logger, reqOpts ...option.RequestOption) Client {
	return &anthropicClient{
		rotator:   rotator,
		model:     model,
		maxTokens: maxTokens,
		reqOpts:   reqOpts,
		logger:    logger,
	}
}

func (c *anthropicClient) ModelName() string { return c.model }

func (c *anthropicClient) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (string, error) {
	system, rest := splitSystem(messages, tools)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  convertAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	attempts := c.rotator.PoolSize(anthropicPool)
	if attempts == 0 {
		attempts = 1 // let Next surface NO_CREDENTIALS_CONFIGURED
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		key, err := c.rotator.Next(anthropicPool)
		if err != nil {
			return "", err
		}

		client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, c.reqOpts...)...)
		message, err := client.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			c.logger.V(1).Info("anthropic completion attempt failed, rotating credential",
				"attempt", i+1, "error", err.Error())
			continue
		}

		var sb strings.Builder
		for _, block := range message.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				sb.WriteString(text.Text)
			}
		}
		return sb.String(), nil
	}

	return "", apperrors.New(apperrors.ErrCodeCompletion,
		fmt.Sprintf("anthropic completion failed after %d credential(s)", attempts), lastErr)
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return converted
}
