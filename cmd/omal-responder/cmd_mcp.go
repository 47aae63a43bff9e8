package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/omalmisr/omal-responder/internal/delivery"
	respondermcp "github.com/omalmisr/omal-responder/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  reply             run a full turn and return the reply
  search_knowledge  rank knowledge entries for a query
  detect_service    find the service link a message asks about
  classify          categorize a message
  should_respond    run the public-comment admission filter
  clear_session     forget a sender's dialogue state

Replies are never posted to the Graph API from this server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			a, err := newApp(cmd.Context(), logger, appOptions{
				messages: delivery.Nop{},
				comments: delivery.Nop{},
			})
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer a.Close()

			srv := respondermcp.NewServer(respondermcp.Deps{
				Responder:  a.responder,
				Matcher:    a.matcher,
				Detector:   a.detector,
				Classifier: a.classifier,
				Filter:     a.filter,
				Logger:     logger,
			}, version)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: omal-responder MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
