package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report submission, transmission and watermark state",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			counts, err := store.CountSubmissionsByStatus()
			if err != nil {
				return err
			}
			pending, err := store.ListUnsyncedTransmissions(opts.cfg.StaleThreshold())
			if err != nil {
				return err
			}
			dead, err := store.ListDeadTransmissions()
			if err != nil {
				return err
			}
			watermarks, err := store.ListWatermarks()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "submissions:")
			for _, st := range []models.SubmissionStatus{
				models.StatusSaved, models.StatusSubmitted, models.StatusExported,
				models.StatusSynced, models.StatusDownloaded,
			} {
				fmt.Fprintf(w, "\t%s\t%d\n", st, counts[st])
			}

			fmt.Fprintf(w, "transmissions:\n\tpending\t%d\n\tdead\t%d\n", len(pending), len(dead))
			for _, t := range dead {
				fmt.Fprintf(w, "\t!\t%s (submission %d, %d attempts)\n",
					filepath.Base(t.Filename), t.SubmissionID, t.RetryCount)
			}

			groups := make([]string, 0, len(watermarks))
			for g := range watermarks {
				groups = append(groups, g)
			}
			sort.Strings(groups)
			fmt.Fprintln(w, "watermarks:")
			for _, g := range groups {
				fmt.Fprintf(w, "\t%s\t%d\n", g, watermarks[g])
			}
			return w.Flush()
		},
	}
}
