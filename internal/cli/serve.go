package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/probemesh/probemesh/internal/diag"
	"github.com/probemesh/probemesh/pkg/stream"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bundled diagnostics provider",
		Long: `Run the bundled ping/traceroute/DNS provider. It speaks MCP on
stdin/stdout and serves live progress events over SSE on the configured
events address. Normally launched by "probemesh chat" rather than by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	logger := newLogger(opts.verbose)

	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	hub := stream.NewHub(logger)
	httpServer := &http.Server{
		Addr:              cfg.Events.Listen,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("event stream listening", "addr", cfg.Events.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "event stream server failed, tools continue without progress")
		}
	}()

	server := diag.NewServer(hub, diag.NewExecRunner(), logger)

	// ServeStdio returns when the launching process closes our stdin.
	serveErr := server.ServeStdio()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "event stream shutdown")
	}
	return serveErr
}
