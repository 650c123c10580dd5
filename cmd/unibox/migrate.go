package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/theme"
)

// Opening the store applies pending migrations, so by the time RunE runs
// the schema is current.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s database is up to date\n",
			theme.SuccessStyle.Render("✓"), cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
