package llm

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/creds"
)

const openaiPool = "openai"

type openaiClient struct {
	rotator *creds.Rotator
	model   string
	reqOpts []option.RequestOption
	logger  logr.Logger
}

// NewOpenAIClient creates a completion client backed by the OpenAI chat
// completions API, with credential failover across the rotator's "openai"
// pool. Extra request options are applied to every underlying client.
func NewOpenAIClient(rotator *creds.Rotator, model string, logger logr.Logger, reqOpts ...option.RequestOption) Client {
	return &openaiClient{
		rotator: rotator,
		model:   model,
		reqOpts: reqOpts,
		logger:  logger,
	}
}

func (c *openaiClient) ModelName() string { return c.model }

func (c *openaiClient) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (string, error) {
	system, rest := splitSystem(messages, tools)

	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(rest)+1)
	if system != "" {
		converted = append(converted, openai.SystemMessage(system))
	}
	for _, m := range rest {
		switch m.Role {
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: converted,
	}

	attempts := c.rotator.PoolSize(openaiPool)
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		key, err := c.rotator.Next(openaiPool)
		if err != nil {
			return "", err
		}

		client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, c.reqOpts...)...)
		completion, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			c.logger.V(1).Info("openai completion attempt failed, rotating credential",
				"attempt", i+1, "error", err.Error())
			continue
		}
		if len(completion.Choices) == 0 {
			lastErr = fmt.Errorf("completion returned no choices")
			continue
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", apperrors.New(apperrors.ErrCodeCompletion,
		fmt.Sprintf("openai completion failed after %d credential(s)", attempts), lastErr)
}
