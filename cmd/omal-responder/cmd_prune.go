package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/lifecycle"
	"github.com/omalmisr/omal-responder/internal/turnlog"
)

func pruneCmd() *cobra.Command {
	var (
		dryRun bool
		days   int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete persisted turns older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := turnlog.OpenSQLite(ctx, cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("prune: opening turn log: %w", err)
			}
			defer func() { _ = st.Close() }()

			if days <= 0 {
				days = cfg.Storage.RetentionDays
			}
			report, err := lifecycle.NewManager(st, days, logger).Prune(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}

			out := cmd.OutOrStdout()
			if report.Cutoff.IsZero() {
				fmt.Fprintln(out, "Retention is disabled; nothing pruned")
				return nil
			}
			fmt.Fprintf(out, "Prune report:\n")
			fmt.Fprintf(out, "  Cutoff:  %s\n", report.Cutoff.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Pruned:  %d\n", report.Pruned)
			if dryRun {
				fmt.Fprintln(out, "  (dry run, no changes applied)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count turns without deleting them")
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default: storage.retention_days)")
	return cmd
}
