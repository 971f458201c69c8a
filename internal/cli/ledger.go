package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/ledger"
)

// LedgerSyncOptions holds the ledger sync flags
type LedgerSyncOptions struct {
	*RootOptions
	Max int
}

// LedgerExportOptions holds the ledger export flags
type LedgerExportOptions struct {
	*RootOptions
	Output string
}

// NewLedgerCommand groups the inventory ledger subcommands
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Sync and export the inventory ledger",
	}
	cmd.AddCommand(newLedgerSyncCommand(rootOpts), newLedgerExportCommand(rootOpts))
	return cmd
}

func newLedgerSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerSyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending ledger events to the first connected provider",
		Long: `Sync sends up to --max pending or failed ledger events, oldest first, to
the first connected provider. Without a usable connection the pass is blocked
and nothing changes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, app *server.App) error {
				result := app.Engine.SyncLedger(ctx, opts.Workspace, opts.Max)
				return newFormatter(cmd, opts.RootOptions).Print(result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s (attempted=%d synced=%d failed=%d)\n",
						result.Message, result.Attempted, result.Synced, result.Failed)
					return err
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Max, "max", engine.DefaultLedgerBatch, "maximum events to sync")

	return cmd
}

func newLedgerExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the workspace ledger as CSV",
		Long: `Export writes the workspace's ledger events as CSV, newest first, to
stdout or to --output. --format is ignored; the output is always CSV.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts.RootOptions, func(_ context.Context, app *server.App) error {
				events := app.Engine.LedgerEvents(opts.Workspace)
				if opts.Output == "" {
					return ledger.WriteCSV(cmd.OutOrStdout(), events)
				}

				file, err := os.Create(opts.Output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", opts.Output, err)
				}
				if err := ledger.WriteCSV(file, events); err != nil {
					_ = file.Close()
					return err
				}
				return file.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (defaults to stdout)")

	return cmd
}
