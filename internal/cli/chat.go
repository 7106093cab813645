package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/probemesh/probemesh/internal/render"
	"github.com/probemesh/probemesh/pkg/approval"
	"github.com/probemesh/probemesh/pkg/chat"
	"github.com/probemesh/probemesh/pkg/creds"
	"github.com/probemesh/probemesh/pkg/llm"
	"github.com/probemesh/probemesh/pkg/provider"
	"github.com/probemesh/probemesh/pkg/stream"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive diagnostics session",
		Long: `Start an interactive session. Plain input is sent to the model, which may
invoke diagnostic tools (each run needs your approval). Two shortcuts skip
the model:

  /<workflow> [key=value ...]   run a provider workflow prompt
  @<resource>                   pull a provider resource into the conversation

Type "exit" or press Ctrl-D to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	logger := newLogger(opts.verbose)

	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	rotator := creds.NewRotator(cfg.Credentials)
	model, err := llm.NewClientFromConfig(cfg.LLM, rotator, logger)
	if err != nil {
		return err
	}

	console := render.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
	gate := approval.NewGate(console, logger)

	specs := cfg.Providers
	if len(specs) == 0 {
		spec, err := bundledProviderSpec()
		if err != nil {
			return err
		}
		specs = []provider.LaunchSpec{spec}
	}

	handles := make([]*provider.Handle, 0, len(specs))
	for _, spec := range specs {
		handles = append(handles, provider.NewHandle(spec, gate, logger))
	}

	transport := stream.NewSSETransport(cfg.Events.BaseURL, logger)
	broker := stream.NewBroker(transport, logger)

	session := chat.NewSession(cfg.SystemPrompt, handles, logger)
	orch := chat.NewOrchestrator(session, model, broker, console, logger)

	if err := orch.StartProviders(ctx); err != nil {
		return err
	}
	defer orch.Shutdown()

	fmt.Fprintf(cmd.OutOrStdout(), "probemesh %s, model %s. Type your question, or exit to quit.\n",
		Version, model.ModelName())

	for {
		line, err := console.ReadLine("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return err
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		reply, err := orch.ProcessInput(ctx, line)
		if err != nil {
			// Per-turn failure: show it and keep the session alive.
			console.RenderEvent("notice", map[string]any{"text": fmt.Sprintf("error: %v", err)})
			continue
		}
		if reply != "" {
			fmt.Fprintln(cmd.OutOrStdout(), reply)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// bundledProviderSpec launches this same binary as the diagnostics provider
// when no providers are configured.
func bundledProviderSpec() (provider.LaunchSpec, error) {
	self, err := os.Executable()
	if err != nil {
		return provider.LaunchSpec{}, fmt.Errorf("locating bundled provider binary: %w", err)
	}
	return provider.LaunchSpec{
		ID:      "diag",
		Command: self,
		Args:    []string{"serve"},
	}, nil
}
