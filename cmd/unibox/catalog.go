package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/theme"
)

var (
	entrySKU         string
	entryDescription string
	entryCategory    string
	entryPrice       float64
	entryUnavailable bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the products and services replies can mention",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		entries, err := application.Inbox.ListCatalog(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, entries)
		}

		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(w, theme.MutedStyle.Render("Catalog is empty."))
			return nil
		}
		for _, e := range entries {
			stock := theme.SuccessStyle.Render("in stock")
			if !e.Available {
				stock = theme.ErrorStyle.Render("out of stock")
			}
			price := ""
			if e.Price != nil {
				price = fmt.Sprintf("$%.2f", *e.Price)
			}
			fmt.Fprintf(w, "%-24s %-10s %s  %s\n", e.Name, price, stock, theme.MutedStyle.Render(e.Description))
		}
		return nil
	},
}

var catalogAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add one catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		entry := model.CatalogEntry{
			Name:        args[0],
			SKU:         entrySKU,
			Description: entryDescription,
			Category:    entryCategory,
			Available:   !entryUnavailable,
		}
		if cmd.Flags().Changed("price") {
			entry.Price = &entryPrice
		}

		created, err := application.Inbox.AddCatalogEntry(cmd.Context(), userID, entry)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s added %s\n", theme.SuccessStyle.Render("✓"), created.Name)
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the whole catalog with a JSON array of entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var entries []model.CatalogEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		if err := application.Inbox.ReplaceCatalog(cmd.Context(), userID, entries); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d entries\n", theme.SuccessStyle.Render("✓"), len(entries))
		return nil
	},
}

func init() {
	f := catalogAddCmd.Flags()
	f.StringVar(&entrySKU, "sku", "", "Stock keeping unit")
	f.StringVar(&entryDescription, "description", "", "Short description")
	f.StringVar(&entryCategory, "category", "", "Category")
	f.Float64Var(&entryPrice, "price", 0, "Unit price")
	f.BoolVar(&entryUnavailable, "unavailable", false, "Mark the entry out of stock")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogAddCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
