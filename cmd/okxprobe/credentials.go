package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"okxrest/internal/secrets"
	"okxrest/pkg/core"
)

func newCredentialsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage credentials stored in the system keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Copy credentials from the environment or config file into the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := core.LoadConfig(core.LoadOptions{File: opts.configFile})
			if err != nil {
				return err
			}

			store := secrets.NewStore(opts.service)
			if err := store.Save(cfg.Credentials); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to keyring service %q\n", cfg.Credentials, store.Service())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove credentials from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := secrets.NewStore(opts.service)
			if err := store.Delete(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed credentials from keyring service %q\n", store.Service())
			return nil
		},
	})

	return cmd
}
