package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/services"
)

func menuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu [payload]",
		Short: "Render a service-menu page (default: MENU_MAIN)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return fmt.Errorf("menu: %w", err)
			}
			payload := services.PayloadMain
			if len(args) == 1 {
				payload = args[0]
			}
			page, ok := services.NewMenu(cat).Lookup(payload)
			if !ok {
				return fmt.Errorf("menu: unknown payload %q", payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, page.Text)
			if len(page.Options) > 0 {
				fmt.Fprintln(out)
				for _, opt := range page.Options {
					fmt.Fprintf(out, "  %-40s %s\n", opt.Payload, opt.Title)
				}
			}
			return nil
		},
	}
}
