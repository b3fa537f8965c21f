package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"IssueSync/internal/config"
	"IssueSync/internal/console"
	"IssueSync/internal/infrastructure/secrets"
)

func newVaultCommand(global *globalOptions) *cobra.Command {
	vault := &cobra.Command{
		Use:   "vault",
		Short: "Manage keyring passwords of the configured targets",
	}

	vault.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured keyring targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := console.NewWithWriter(cmd.ErrOrStderr(), false, false)
			application, closeLog, err := loadApplication(global, config.Options{}, out)
			if err != nil {
				return err
			}
			defer closeLog()

			targets := application.KeyringTargets()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d %s passwords in config\n", len(targets), secrets.UseKeyring)
			for _, target := range targets {
				fmt.Fprintln(w, "-", target)
			}
			return nil
		},
	})

	vault.AddCommand(&cobra.Command{
		Use:   "set <target> <username>",
		Short: "Set a password in the keyring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := console.NewWithWriter(cmd.ErrOrStderr(), false, false)
			application, closeLog, err := loadApplication(global, config.Options{}, out)
			if err != nil {
				return err
			}
			defer closeLog()

			password, err := secrets.Prompt("Password: ")
			if err != nil {
				return err
			}
			if err := application.VaultSet(args[0], args[1], password); err != nil {
				out.Warn("You must configure the password to '" + secrets.UseKeyring + "' prior to setting the value.")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password set for %s, %s\n", args[0], args[1])
			return nil
		},
	})

	vault.AddCommand(&cobra.Command{
		Use:   "clear <target> <username>",
		Short: "Clear a password from the keyring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := console.NewWithWriter(cmd.ErrOrStderr(), false, false)
			application, closeLog, err := loadApplication(global, config.Options{}, out)
			if err != nil {
				return err
			}
			defer closeLog()

			cleared, err := application.VaultClear(args[0], args[1])
			if err != nil {
				return err
			}
			if cleared {
				fmt.Fprintf(cmd.OutOrStdout(), "Password cleared for %s, %s\n", args[0], args[1])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No password found for %s, %s\n", args[0], args[1])
			}
			return nil
		},
	})
	return vault
}
