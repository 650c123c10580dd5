package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/theme"
)

type syncOutput struct {
	AccountID string          `json:"account_id"`
	Email     string          `json:"email"`
	Fetched   int             `json:"fetched"`
	Skipped   int             `json:"skipped"`
	Dropped   int             `json:"dropped"`
	Messages  []model.Message `json:"messages"`
	Error     string          `json:"error,omitempty"`
}

var syncCmd = &cobra.Command{
	Use:   "sync [ACCOUNT_ID]",
	Short: "Run one sync cycle for an account, or for all of the user's active accounts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		ctx := cmd.Context()

		var targets []model.Account
		if len(args) == 1 {
			targets = []model.Account{{ID: args[0]}}
		} else {
			accounts, err := application.Inbox.ListAccounts(ctx, userID)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				if a.Active && !a.ReauthRequired {
					targets = append(targets, a)
				}
			}
		}

		var outputs []syncOutput
		var failed int
		for _, acct := range targets {
			res, err := application.Orchestrator.SyncAccount(ctx, userID, acct.ID)
			out := syncOutput{AccountID: acct.ID, Email: acct.Email}
			if res != nil {
				out.Fetched, out.Skipped, out.Dropped = res.Fetched, res.Skipped, res.Dropped
				out.Messages = res.Persisted
			}
			if err != nil {
				failed++
				out.Error = err.Error()
			}
			outputs = append(outputs, out)
		}

		if jsonOutput {
			if err := printJSON(cmd, outputs); err != nil {
				return err
			}
		} else {
			printSyncOutputs(cmd, outputs)
		}

		if len(args) == 1 && failed > 0 {
			return fmt.Errorf("sync failed: %s", outputs[0].Error)
		}
		return nil
	},
}

func printSyncOutputs(cmd *cobra.Command, outputs []syncOutput) {
	w := cmd.OutOrStdout()
	if len(outputs) == 0 {
		fmt.Fprintln(w, theme.MutedStyle.Render("No active accounts to sync."))
		return
	}
	for _, o := range outputs {
		label := o.Email
		if label == "" {
			label = o.AccountID
		}
		if o.Error != "" {
			fmt.Fprintf(w, "%s %s\n", theme.ErrorStyle.Render("✗"), label)
			fmt.Fprintf(w, "  %s\n", theme.MutedStyle.Render(o.Error))
			continue
		}
		fmt.Fprintf(w, "%s %s  %d new, %d already stored, %d dropped\n",
			theme.SuccessStyle.Render("✓"), label, len(o.Messages), o.Skipped, o.Dropped)
		for _, m := range o.Messages {
			fmt.Fprintf(w, "  %s %s\n", theme.PriorityLabel(m.Priority), m.Subject)
		}
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
