// Package cli wires the probemesh commands: the interactive chat session
// and the bundled diagnostics provider it launches.
package cli

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is stamped at build time.
var Version = "0.3.0"

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates the probemesh root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "probemesh",
		Short: "Conversational network diagnostics",
		Long: `Probemesh is a conversational assistant for network diagnostics.

It connects to one or more tool providers (a ping/traceroute/DNS provider is
bundled), lets a language model drive them, asks you before anything runs,
and streams command output live into the conversation.

Examples:
  probemesh chat
  probemesh chat --config /etc/probemesh/probemesh.yaml
  probemesh serve`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: ./probemesh.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the probemesh version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// newLogger builds the process logger. Logs go to stderr so they never
// interleave with conversation output or the stdio protocol.
func newLogger(verbose bool) logr.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zapr.NewLogger(zap.New(core))
}
