package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ConflictsListOptions holds the conflicts list flags
type ConflictsListOptions struct {
	*RootOptions
	Status string
}

// NewConflictsCommand groups the conflict subcommands
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and resolve sync conflicts",
	}
	cmd.AddCommand(newConflictsListCommand(rootOpts), newConflictsResolveCommand(rootOpts))
	return cmd
}

func newConflictsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List conflicts, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.ConflictStatus(opts.Status)
			switch status {
			case "", models.ConflictUnresolved, models.ConflictKeepLocal, models.ConflictAcceptRemote:
			default:
				return fmt.Errorf("invalid status %q: must be unresolved, keep_local or accept_remote", opts.Status)
			}
			return withApp(cmd, opts.RootOptions, func(_ context.Context, app *server.App) error {
				conflicts := app.Engine.Conflicts(opts.Workspace, status)
				f := newFormatter(cmd, opts.RootOptions)
				return f.Print(conflicts, func(io.Writer) error {
					rows := make([][]string, 0, len(conflicts))
					for _, c := range conflicts {
						rows = append(rows, []string{
							c.ID.String(),
							string(c.Provider),
							string(c.Type),
							c.ItemID,
							strconv.Itoa(c.LocalUnits),
							strconv.Itoa(c.RemoteUnits),
							string(c.Status),
						})
					}
					return f.Table([]string{"ID", "PROVIDER", "TYPE", "ITEM", "LOCAL", "REMOTE", "STATUS"}, rows)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (unresolved|keep_local|accept_remote)")

	return cmd
}

func newConflictsResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <keep_local|accept_remote>",
		Short: "Resolve an unresolved conflict",
		Long: `Resolve applies keep_local or accept_remote to an unresolved conflict.
accept_remote backs up the workspace catalog before overwriting local units.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid conflict id %q: %w", args[0], err)
			}
			resolution := models.ConflictStatus(args[1])
			return withApp(cmd, rootOpts, func(ctx context.Context, app *server.App) error {
				conflict, err := app.Engine.ResolveConflict(ctx, id, resolution)
				if err != nil {
					return err
				}
				return newFormatter(cmd, rootOpts).Print(conflict, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Conflict %s resolved as %s\n", conflict.ID, conflict.Status)
					return err
				})
			})
		},
	}
}
