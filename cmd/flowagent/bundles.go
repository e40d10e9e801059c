package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallBundlesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install-bundles",
		Short: "Install pending content bundles from the inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			svc := buildServices(opts.cfg, store)
			n, err := svc.installer.InstallAll(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d bundles\n", n)
			return err
		},
	}
}
