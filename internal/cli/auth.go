package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pkai/internal/assistant"
	"pkai/internal/mcp"
	"pkai/internal/workspace"
)

// dialWorkspace overrides the configured workspace transport in tests.
var dialWorkspace mcp.Dialer

func newAuthCmd(flags *GlobalFlags) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorize external services",
	}
	auth.AddCommand(&cobra.Command{
		Use:   "workspace",
		Short: "Run the one-time Google sign-in for workspace-mcp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			lg, err := newLogger(cfg, false)
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			defer lg.Close()

			client := assistant.NewWorkspaceClient(cfg.Workspace, dialWorkspace, lg.Logger)
			defer client.Close()

			var prompter workspace.Prompter = workspace.LinePrompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
			if !flags.NonInteractive && IsTTY() {
				prompter = workspace.FormPrompter{}
			}
			out := cmd.OutOrStdout()
			s := newStyles(out, false)
			fmt.Fprintln(out, s.sectionHeader("Workspace authorization"))
			fmt.Fprintln(out, s.kv("Transport", client.TransportName()))
			fmt.Fprintln(out, s.kv("Server", client.Endpoint()))
			if cfg.Workspace.UserEmail != "" {
				fmt.Fprintln(out, s.kv("Account", cfg.Workspace.UserEmail))
			}

			boot := workspace.NewBootstrap(workspace.BootstrapOptions{
				Client:    client,
				UserEmail: cfg.Workspace.UserEmail,
				Prompter:  prompter,
				OnTransition: func(from, to workspace.AuthState) {
					fmt.Fprintln(cmd.ErrOrStderr(), s.dim(from.String()+" -> "+to.String()))
				},
				Logger: lg.Logger,
			})
			res, err := boot.Run(cmd.Context())
			if err != nil {
				if errors.Is(err, workspace.ErrSignInCancelled) {
					return errors.New("sign-in cancelled")
				}
				if res.Message != "" {
					return fmt.Errorf("%s", res.Message)
				}
				return err
			}
			if res.State != workspace.StateAuthorized {
				return fmt.Errorf("workspace authorization failed: %s", res.Message)
			}
			fmt.Fprintln(out, s.success(res.Message))
			return nil
		},
	})
	return auth
}
