package llm

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/creds"
)

// Config selects and parameterizes a completion backend.
type Config struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

const defaultMaxTokens = 4096

// NewClientFromConfig creates a completion client for the configured
// backend. Credentials are pulled through the rotator at call time, so a
// client can outlive any individual key.
func NewClientFromConfig(cfg Config, rotator *creds.Rotator, logger logr.Logger) (Client, error) {
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "model name is required", nil)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return NewAnthropicClient(rotator, cfg.Model, maxTokens, logger), nil
	case "openai":
		return NewOpenAIClient(rotator, cfg.Model, logger), nil
	default:
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported completion provider: %s", cfg.Provider), nil)
	}
}
