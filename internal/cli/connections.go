package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ConnectOptions holds the connect command flags
type ConnectOptions struct {
	*RootOptions
	Label         string
	AccessToken   string
	RefreshToken  string
	WebhookSecret string
}

// NewConnectCommand stores credentials for a provider in the selected workspace
func NewConnectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConnectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Save provider credentials and mark the connection connected",
		Long: `Connect encrypts and stores the given tokens for a provider. An access
token is required unless one is already stored; tokens left empty keep their
stored value.

Example:
  fern connect shopify --label "Main store" --access-token tok --workspace shop`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, app *server.App) error {
				conn, err := app.Engine.SaveCredentials(ctx, engine.SaveCredentialsInput{
					Provider:      provider,
					Workspace:     opts.Workspace,
					AccountLabel:  opts.Label,
					AccessToken:   opts.AccessToken,
					RefreshToken:  opts.RefreshToken,
					WebhookSecret: opts.WebhookSecret,
				})
				if err != nil {
					return err
				}
				return printConnections(newFormatter(cmd, opts.RootOptions), conn, []models.Connection{conn})
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Label, "label", "l", "", "account label (required)")
	cmd.Flags().StringVar(&opts.AccessToken, "access-token", "", "access token")
	cmd.Flags().StringVar(&opts.RefreshToken, "refresh-token", "", "refresh token")
	cmd.Flags().StringVar(&opts.WebhookSecret, "webhook-secret", "", "webhook signing secret")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

// NewDisconnectCommand removes a provider's credentials and connection
func NewDisconnectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "disconnect <provider>",
		Short:         "Delete stored credentials and the connection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, app *server.App) error {
				removed, err := app.Engine.Disconnect(ctx, provider, rootOpts.Workspace)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not connected in workspace %s", provider, rootOpts.Workspace)
				}
				result := map[string]any{"provider": provider, "workspace": rootOpts.Workspace, "disconnected": true}
				return newFormatter(cmd, rootOpts).Print(result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Disconnected %s from workspace %s\n", provider.DisplayName(), rootOpts.Workspace)
					return err
				})
			})
		},
	}
}

// NewRefreshCommand mints a new access token from the stored refresh token
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh <provider>",
		Short:         "Refresh the provider access token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := models.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, app *server.App) error {
				_, refreshErr := app.Engine.Refresh(ctx, provider, rootOpts.Workspace)
				if refreshErr != nil && !errors.Is(refreshErr, engine.ErrCredentialExpired) {
					return refreshErr
				}
				conn, ok := app.Engine.Connection(provider, rootOpts.Workspace)
				if !ok {
					return engine.ErrCredentialMissing
				}
				if err := printConnections(newFormatter(cmd, rootOpts), conn, []models.Connection{conn}); err != nil {
					return err
				}
				// the connection is saved as token_expired before the error surfaces
				return refreshErr
			})
		},
	}
}

func printConnections(f *OutputFormatter, data any, conns []models.Connection) error {
	return f.Print(data, func(io.Writer) error {
		rows := make([][]string, 0, len(conns))
		for _, conn := range conns {
			rows = append(rows, []string{
				string(conn.Provider),
				conn.Workspace,
				conn.AccountLabel,
				string(conn.Status),
				formatTime(conn.TokenExpiresAt),
				formatTime(conn.LastSyncAt),
			})
		}
		return f.Table([]string{"PROVIDER", "WORKSPACE", "ACCOUNT", "STATUS", "TOKEN EXPIRES", "LAST SYNC"}, rows)
	})
}
