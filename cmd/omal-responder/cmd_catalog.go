package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omalmisr/omal-responder/internal/catalog"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate the organization catalog",
	}
	cmd.AddCommand(catalogValidateCmd(), catalogShowCmd())
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file against the schema (default: configured catalog)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Catalog
				err error
			)
			if len(args) == 1 {
				cat, err = catalog.Load(args[0])
			} else {
				cat, err = loadCatalog()
			}
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog OK: %d knowledge entries, %d services, %d templates\n",
				len(cat.Knowledge), len(cat.Services), len(cat.Templates))
			return nil
		},
	}
}

func catalogShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configured catalog's knowledge base and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				b, err := json.MarshalIndent(cat, "", "  ")
				if err != nil {
					return fmt.Errorf("catalog: encoding: %w", err)
				}
				fmt.Fprintln(out, string(b))
				return nil
			}

			fmt.Fprintf(out, "%s\n", cat.Organization)
			fmt.Fprintf(out, "  phone: %s  email: %s  website: %s\n\n", cat.Contact.Phone, cat.Contact.Email, cat.Contact.Website)
			fmt.Fprintln(out, "Knowledge:")
			for _, item := range cat.Knowledge {
				fmt.Fprintf(out, "  %-14s %s\n", item.ID, item.Question)
			}
			fmt.Fprintln(out, "\nServices:")
			for _, svc := range cat.Services {
				fmt.Fprintf(out, "  %-20s %s %s\n", svc.ID, svc.Title, svc.URL)
				for _, sub := range svc.Submenu {
					fmt.Fprintf(out, "    %-18s %s %s\n", sub.ID, sub.Title, sub.URL)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the whole catalog as JSON")
	return cmd
}
