package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [group-id]",
		Short: "Pull remote records once, for one group or all groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			svc := buildServices(opts.cfg, store)
			if len(args) == 1 {
				res, err := svc.puller.Sync(cmd.Context(), args[0])
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "group %s: %d records in %d pages, watermark %d\n",
						res.GroupID, res.Records, res.Pages, res.Watermark)
				}
				return err
			}

			results, err := svc.puller.SyncAll(cmd.Context())
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "group %s: %d records in %d pages, watermark %d\n",
					res.GroupID, res.Records, res.Pages, res.Watermark)
			}
			return err
		},
	}
}
