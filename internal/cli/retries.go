package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/engine"
)

// RetriesProcessOptions holds the retries process flags
type RetriesProcessOptions struct {
	*RootOptions
	Max           int
	AllWorkspaces bool
}

// NewRetriesCommand groups the retry queue subcommands
func NewRetriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retries",
		Short: "Inspect and run queued sync retries",
	}
	cmd.AddCommand(newRetriesListCommand(rootOpts), newRetriesProcessCommand(rootOpts))
	return cmd
}

func newRetriesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List retry jobs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(_ context.Context, app *server.App) error {
				jobs := app.Engine.RetryJobs(rootOpts.Workspace)
				f := newFormatter(cmd, rootOpts)
				return f.Print(jobs, func(io.Writer) error {
					rows := make([][]string, 0, len(jobs))
					for _, job := range jobs {
						rows = append(rows, []string{
							job.ID.String(),
							string(job.Provider),
							string(job.Status),
							fmt.Sprintf("%d/%d", job.AttemptCount, job.MaxAttempts),
							formatTime(&job.NextAttemptAt),
							job.LastError,
						})
					}
					return f.Table([]string{"ID", "PROVIDER", "STATUS", "ATTEMPTS", "NEXT ATTEMPT", "LAST ERROR"}, rows)
				})
			})
		},
	}
}

func newRetriesProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetriesProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run due retries now",
		Long: `Process runs the queued retries whose next attempt is due, soonest first.
With --all-workspaces the --max budget is shared across every workspace.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, app *server.App) error {
				var result engine.RetryRunResult
				if opts.AllWorkspaces {
					result = app.Engine.ProcessAllDueRetries(ctx, opts.Max)
				} else {
					result = app.Engine.ProcessDueRetries(ctx, opts.Workspace, opts.Max)
				}
				return newFormatter(cmd, opts.RootOptions).Print(result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Attempted %d: resolved=%d requeued=%d abandoned=%d\n",
						result.Attempted, result.Resolved, result.Requeued, result.Abandoned)
					return err
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Max, "max", engine.DefaultRetryBatch, "maximum retries to run")
	cmd.Flags().BoolVar(&opts.AllWorkspaces, "all-workspaces", false, "process due retries in every workspace")

	return cmd
}
