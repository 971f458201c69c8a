package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

// NewSyncCommand runs one sync pass for a provider over the workspace catalog
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <provider>",
		Short: "Run a sync pass against the workspace catalog",
		Long: `Sync pulls and pushes the workspace's catalog items through a provider.
A blocked pass (missing or expired credentials) is recorded as a failed job
and queued for retry; the command still succeeds and prints the job.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, app *server.App) error {
				job, err := app.Engine.SyncWorkspace(ctx, provider, rootOpts.Workspace)
				if err != nil {
					return err
				}
				return newFormatter(cmd, rootOpts).Print(job, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s sync %s: pulled=%d pushed=%d conflicts=%d webhook_events=%d\n%s\n",
						provider.DisplayName(), job.Status, job.Pulled, job.Pushed, job.Conflicts, job.WebhookEvents, job.Message)
					return err
				})
			})
		},
	}
}

// IngestOptions holds the ingest command flags
type IngestOptions struct {
	*RootOptions
	File string
}

// NewIngestCommand records webhook lines (or a JSON payload) read from a file or stdin
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <provider>",
		Short: "Ingest a webhook payload from a file or stdin",
		Long: `Ingest records one pending webhook event per line of the payload and
extracts conflicts against the workspace catalog. JSON payloads are normalized
with the provider's field paths first. No signature check is made.

Example:
  fern ingest shopify --workspace shop --file payload.json
  printf 'barcode=SKU1 qty=3\n' | fern ingest square`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}
			body, err := readPayload(cmd, opts.File)
			if err != nil {
				return err
			}
			raw := string(body)
			if webhook.IsJSON(body) {
				raw, err = webhook.NewNormalizer(nil).Normalize(provider, body)
				if err != nil {
					return err
				}
			}
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, app *server.App) error {
				received, err := app.Engine.Ingest(ctx, raw, provider, opts.Workspace)
				if err != nil {
					return err
				}
				result := map[string]int{"received": received}
				return newFormatter(cmd, opts.RootOptions).Print(result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Received %d webhook event(s)\n", received)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "payload file (defaults to stdin)")

	return cmd
}

func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return body, nil
}
