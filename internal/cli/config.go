package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/probemesh/probemesh/pkg/apperrors"
	"github.com/probemesh/probemesh/pkg/llm"
	"github.com/probemesh/probemesh/pkg/provider"
)

// Config is the full application configuration, loaded from probemesh.yaml
// with PROBEMESH_* environment overrides.
type Config struct {
	LLM          llm.Config            `mapstructure:"llm"`
	Credentials  map[string][]string   `mapstructure:"credentials"`
	Providers    []provider.LaunchSpec `mapstructure:"providers"`
	Events       EventsConfig          `mapstructure:"events"`
	SystemPrompt string                `mapstructure:"system_prompt"`
}

// EventsConfig locates the progress event stream.
type EventsConfig struct {
	// Listen is the address the bundled diagnostics provider serves SSE on.
	Listen string `mapstructure:"listen"`
	// BaseURL is where the chat session connects for events.
	BaseURL string `mapstructure:"base_url"`
}

const defaultSystemPrompt = `You are a network diagnostics assistant. You can ping hosts,
trace network paths and resolve DNS records through the tools listed in each
conversation. Prefer running a tool over guessing about network state.`

// LoadConfig reads configuration from the given file, or from probemesh.yaml
// in the working directory and $HOME/.probemesh when no path is given.
// Environment variables prefixed PROBEMESH_ override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("events.listen", "127.0.0.1:8321")
	v.SetDefault("system_prompt", defaultSystemPrompt)

	v.SetEnvPrefix("PROBEMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("probemesh")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.probemesh")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config is fine; an explicit path must exist.
		if path != "" || !errors.As(err, &notFound) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidConfig,
				fmt.Sprintf("reading config: %v", err), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "parsing config", err)
	}

	applyCredentialEnvFallback(&cfg)

	if cfg.Events.BaseURL == "" {
		cfg.Events.BaseURL = "http://" + cfg.Events.Listen
	}
	return &cfg, nil
}

// applyCredentialEnvFallback seeds empty credential pools from the
// conventional API key environment variables.
func applyCredentialEnvFallback(cfg *Config) {
	if cfg.Credentials == nil {
		cfg.Credentials = make(map[string][]string)
	}
	fallbacks := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}
	for pool, envVar := range fallbacks {
		if len(cfg.Credentials[pool]) == 0 {
			if key := os.Getenv(envVar); key != "" {
				cfg.Credentials[pool] = []string{key}
			}
		}
	}
}
