package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/inbox"
	"github.com/nhle/unibox/internal/theme"
)

var (
	imapHost string
	imapPort int
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage linked mailboxes",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		accounts, err := application.Inbox.ListAccounts(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, accounts)
		}

		w := cmd.OutOrStdout()
		if len(accounts) == 0 {
			fmt.Fprintln(w, theme.MutedStyle.Render("No accounts. Link one with 'unibox auth url' or 'unibox accounts add-imap'."))
			return nil
		}
		for _, a := range accounts {
			fmt.Fprintf(w, "%s  %-8s %-32s %s\n",
				theme.MutedStyle.Render(a.ID),
				theme.ProviderStyle(a.Provider).Render(string(a.Provider)),
				a.Email,
				theme.AccountState(a))
		}
		return nil
	},
}

var accountsAddIMAPCmd = &cobra.Command{
	Use:   "add-imap EMAIL",
	Short: "Add a password-authenticated IMAP mailbox",
	Long:  "Add an IMAP mailbox. The password is read from stdin so it stays out of shell history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}

		password, err := readSecret(cmd, "IMAP password: ")
		if err != nil {
			return err
		}

		acct, err := application.Inbox.AddIMAPAccount(cmd.Context(), userID, inbox.IMAPAccount{
			Email:    args[0],
			Host:     imapHost,
			Port:     imapPort,
			Password: password,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, acct)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s added %s (%s)\n", theme.SuccessStyle.Render("✓"), acct.Email, acct.ID)
		return nil
	},
}

var accountsDeleteCmd = &cobra.Command{
	Use:   "delete ACCOUNT_ID",
	Short: "Remove an account with its messages and drafts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		if err := application.Inbox.DeleteAccount(cmd.Context(), userID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", theme.SuccessStyle.Render("✓"), args[0])
		return nil
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ACCOUNT_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			if err := application.Inbox.SetAccountActive(cmd.Context(), userID, args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %sd %s\n", theme.SuccessStyle.Render("✓"), use, args[0])
			return nil
		},
	}
}

// readSecret reads one line from stdin, prompting when stdin is a terminal.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	accountsAddIMAPCmd.Flags().StringVar(&imapHost, "host", "", "IMAP server host")
	accountsAddIMAPCmd.Flags().IntVar(&imapPort, "port", 0, "IMAP TLS port (default 993)")
	_ = accountsAddIMAPCmd.MarkFlagRequired("host")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddIMAPCmd)
	accountsCmd.AddCommand(accountsDeleteCmd)
	accountsCmd.AddCommand(setActiveCmd("pause", "Stop syncing an account", false))
	accountsCmd.AddCommand(setActiveCmd("resume", "Resume syncing an account", true))
	rootCmd.AddCommand(accountsCmd)
}
