package cli

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"pkai/internal/config"
)

var envNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func newConfigCmd(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and manage stored secrets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print effective config as TOML (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			data, err := config.Snapshot(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	var deleteSecret bool
	setSecret := &cobra.Command{
		Use:   "set-secret <ENV_NAME>",
		Short: "Store a secret such as OPENAI_API_KEY in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !envNamePattern.MatchString(name) {
				return fmt.Errorf("%s secret name %q must look like an environment variable, e.g. OPENAI_API_KEY", configInvalidPrefix, name)
			}
			if deleteSecret {
				if err := config.DeleteSecret(name); err != nil {
					return fmt.Errorf("keyring: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Removed", name, "from the keyring.")
				return nil
			}
			in := cmd.InOrStdin()
			if flags.NonInteractive && in == os.Stdin && IsTTY() {
				return fmt.Errorf("set-secret reads the value from stdin; pipe it in with --non-interactive")
			}
			value, err := ReadSecret(in, name+": ")
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			if value == "" {
				return fmt.Errorf("%s no value entered for %s", configInvalidPrefix, name)
			}
			if err := config.SaveSecret(name, value); err != nil {
				return fmt.Errorf("keyring: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored", name, "in the keyring (service "+config.KeyringService+").")
			return nil
		},
	}
	setSecret.Flags().BoolVar(&deleteSecret, "delete", false, "remove the secret instead of storing it")
	cmd.AddCommand(setSecret)
	return cmd
}
