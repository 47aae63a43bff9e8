package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/completion"
	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/responder"
)

func askCmd() *cobra.Command {
	var (
		check    bool
		public   bool
		asJSON   bool
		senderID string
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer a single message and print the reply",
		Args: func(cmd *cobra.Command, args []string) error {
			if check {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := newApp(ctx, logger, appOptions{
				messages:    delivery.Nop{},
				comments:    delivery.Nop{},
				memoryTurns: true,
				oneShot:     true,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			if check {
				pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				if err := completion.Ping(pingCtx, a.completer); err != nil {
					fmt.Fprintf(out, "Completion (%s): FAIL (%v)\n", cfg.Completion.Provider, err)
					return fmt.Errorf("completion service check failed")
				}
				fmt.Fprintf(out, "Completion (%s): OK\n", cfg.Completion.Provider)
				if len(args) == 0 {
					return nil
				}
			}

			message := strings.Join(args, " ")
			var outcome *responder.TurnOutcome
			if public {
				outcome, err = a.responder.HandleComment(ctx, senderID, message)
			} else {
				outcome, err = a.responder.HandleMessage(ctx, senderID, message)
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				b, _ := json.MarshalIndent(outcome, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}
			if outcome.Skipped {
				fmt.Fprintf(out, "(no reply: %s)\n", outcome.SkipReason)
				return nil
			}
			fmt.Fprintln(out, outcome.Reply)
			logger.Debug("ask: answered", "source", outcome.Source, "category", outcome.Category, "message", truncate(message, 60))
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "verify the completion service answers before asking")
	cmd.Flags().BoolVar(&public, "public", false, "treat the message as a public comment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full turn outcome as JSON")
	cmd.Flags().StringVar(&senderID, "sender", "cli-user", "sender or comment id")
	return cmd
}
