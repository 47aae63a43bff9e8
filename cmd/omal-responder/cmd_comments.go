package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/models"
)

func commentsCmd() *cobra.Command {
	var (
		send        bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "comments [file.json]",
		Short: "Process a batch of public comments from a JSON file (or stdin)",
		Long: `Reads a JSON array of comments, each {"id": "...", "message": "..."},
runs them through the admission filter and the responder, and prints one
line per comment. Replies are only posted to the Graph API with --send.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("comments: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			var comments []models.Comment
			if err := json.NewDecoder(r).Decode(&comments); err != nil {
				return fmt.Errorf("comments: decoding input: %w", err)
			}

			opts := appOptions{}
			if !send {
				opts.comments = delivery.Nop{}
				opts.messages = delivery.Nop{}
			}
			a, err := newApp(ctx, logger, opts)
			if err != nil {
				return fmt.Errorf("comments: %w", err)
			}
			defer a.Close()

			if concurrency <= 0 {
				concurrency = cfg.Comments.Concurrency
			}
			outcomes, batchErr := a.responder.ProcessComments(ctx, comments, concurrency)

			responded := 0
			for i, o := range outcomes {
				switch {
				case o == nil:
					fmt.Fprintf(out, "[%d] %s: failed\n", i, comments[i].ID)
				case o.Skipped:
					fmt.Fprintf(out, "[%d] %s: skipped (%s)\n", i, comments[i].ID, o.SkipReason)
				default:
					responded++
					fmt.Fprintf(out, "[%d] %s: %s\n", i, comments[i].ID, truncate(o.Reply, 80))
				}
			}
			fmt.Fprintf(out, "\nResponded to %d of %d comments\n", responded, len(comments))
			if batchErr != nil {
				return fmt.Errorf("comments: %w", batchErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "post replies through the Graph API")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel comment turns (default: comments.concurrency)")
	return cmd
}
