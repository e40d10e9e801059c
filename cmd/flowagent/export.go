package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var uploadAfter bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submitted submissions to signed archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			svc := buildServices(opts.cfg, store)
			results, err := svc.exporter.ExportAll()
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "submission %d: %s (%d records, checksum %08x)\n",
					res.SubmissionID, res.ArchivePath, res.RecordCount, res.Checksum)
			}
			if err != nil {
				return err
			}
			if !uploadAfter {
				return nil
			}
			n, err := svc.transport.ProcessQueue(cmd.Context(), opts.cfg.StaleThreshold())
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d transmissions\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&uploadAfter, "upload", false, "upload queued transmissions after exporting")
	return cmd
}
