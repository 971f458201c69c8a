package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
)

// ServeOptions holds the serve command flags
type ServeOptions struct {
	*RootOptions
	Port int
}

// NewServeCommand runs the HTTP API and background workers until interrupted
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, retry scheduler and webhook consumer",
		Long: `Serve starts the HTTP API together with the retry scheduler and, when
Kafka is enabled, the webhook consumer. Ctrl-C or SIGTERM triggers a graceful
shutdown that flushes state before exiting.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := *opts.Config
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}

	opts.Logger.WithFields(map[string]any{
		"port":    cfg.Port,
		"version": server.Version,
	}).Info("Starting fern")

	return server.Serve(ctx, &cfg, opts.Logger)
}
