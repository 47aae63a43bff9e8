package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/turnlog"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show turn-log statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			st, err := turnlog.OpenSQLite(ctx, cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("stats: opening turn log: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Fprintf(out, "Total turns: %d\n", stats.TotalTurns)
			fmt.Fprintf(out, "Senders:     %d\n", stats.Senders)
			if stats.Oldest != nil && stats.Newest != nil {
				fmt.Fprintf(out, "Range:       %s .. %s\n", stats.Oldest.Format("2006-01-02 15:04"), stats.Newest.Format("2006-01-02 15:04"))
			}
			printCounts(out, "By channel", stats.ByChannel)
			printCounts(out, "By source", stats.BySource)
			printCounts(out, "By category", stats.ByCategory)
			return nil
		},
	}
}

func printCounts(out io.Writer, title string, m map[string]int64) {
	fmt.Fprintf(out, "\n%s:\n", title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-16s %d\n", k, m[k])
	}
}
