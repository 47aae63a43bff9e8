package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/delivery"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/responder"
)

func chatCmd() *cobra.Command {
	var (
		sender  string
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the responder interactively as a private-message sender",
		Long: `Reads one message per line from stdin and prints each reply.

Commands:
  /reset   forget the conversation and start over
  /state   print the dialogue state as JSON
  /quit    exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := newApp(ctx, logger, appOptions{
				messages:    delivery.NewWriterDeliverer(out),
				comments:    delivery.NewWriterDeliverer(out),
				memoryTurns: !persist,
			})
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer a.Close()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
				case "/quit", "/exit":
					return nil
				case "/reset":
					if err := a.responder.ClearSession(sender, models.ChannelPrivate); err != nil && !responder.IsSessionNotFound(err) {
						return fmt.Errorf("chat: reset: %w", err)
					}
					fmt.Fprintln(out, "(session cleared)")
				case "/state":
					st, err := a.responder.Session(sender, models.ChannelPrivate)
					if err != nil {
						fmt.Fprintln(out, "(no session yet)")
						break
					}
					b, _ := json.MarshalIndent(st, "", "  ")
					fmt.Fprintln(out, string(b))
				default:
					if _, err := a.responder.HandleMessage(ctx, sender, line); err != nil {
						logger.Error("chat: turn failed", "error", err)
					}
				}
				fmt.Fprint(out, "> ")
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("chat: reading input: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "cli-user", "sender id for the session")
	cmd.Flags().BoolVar(&persist, "persist", false, "record turns in the SQLite turn log")
	return cmd
}
