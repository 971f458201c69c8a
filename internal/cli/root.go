package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/server"
	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// ValidFormats lists the accepted --format values
var ValidFormats = []string{"text", "json"}

// CLIActor is recorded as the actor of every audit event raised from the command line
const CLIActor = "cli"

// RootOptions holds the global flags plus the config and logger shared by every command
type RootOptions struct {
	Verbose   bool
	Format    string
	Workspace string

	Config *config.Config
	Logger ectologger.Logger
}

// NewRootCommand creates the fern command tree. The logger is built from cfg
// once flags are parsed.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	return newRootCommand(&RootOptions{Config: cfg})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fern",
		Short: "Inventory sync hub for POS and accounting providers",
		Long: `fern keeps a local inventory catalog in step with connected providers
(Shopify, Square, QuickBooks). It stores encrypted credentials, runs syncs,
ingests webhooks, retries failed jobs and exports the inventory ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Workspace == "" {
				return fmt.Errorf("workspace cannot be empty")
			}
			if opts.Logger != nil {
				return nil
			}
			level := opts.Config.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			logger, err := server.NewLogger(level, opts.Config.PrettyLogs)
			if err != nil {
				return err
			}
			opts.Logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVarP(&opts.Workspace, "workspace", "w", appctx.DefaultWorkspace, "workspace key")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewConnectCommand(opts),
		NewDisconnectCommand(opts),
		NewRefreshCommand(opts),
		NewSyncCommand(opts),
		NewIngestCommand(opts),
		NewRetriesCommand(opts),
		NewLedgerCommand(opts),
		NewConflictsCommand(opts),
	)

	return cmd
}

// withApp starts every dependency, runs fn and flushes pending state before
// releasing them. The returned error is fn's unless flushing fails.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *server.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = appctx.SetActor(ctx, CLIActor)

	app, err := server.NewApp(ctx, opts.Config, opts.Logger)
	if err != nil {
		return err
	}

	runErr := fn(ctx, app)

	if err := app.Flush(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to save state: %w", err)
	}
	if err := app.Close(ctx); err != nil {
		opts.Logger.WithContext(ctx).WithError(err).Warn("failed to close dependencies")
	}
	return runErr
}
