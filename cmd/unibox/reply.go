package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/theme"
)

var replyCmd = &cobra.Command{
	Use:   "reply MESSAGE_ID",
	Short: "Draft an AI reply to a message, grounded in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}

		draft, err := application.Replies.Generate(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, draft)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s\n", theme.HeaderStyle.Render("Draft "+draft.ID), theme.ReplyStatusStyle(draft.Status).Render(string(draft.Status)))
		fmt.Fprintln(w, theme.PanelStyle.Render(draft.Text))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replyCmd)
}
