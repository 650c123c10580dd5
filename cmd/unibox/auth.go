package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/theme"
)

var (
	authCode  string
	authState string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Link Gmail and Outlook mailboxes over OAuth",
}

var authURLCmd = &cobra.Command{
	Use:   "url PROVIDER",
	Short: "Print the consent URL for gmail or outlook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		provider, err := model.ParseProvider(args[0])
		if err != nil {
			return err
		}
		url, err := application.Tokens.AuthorizationURL(provider, userID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, map[string]string{"provider": string(provider), "url": url})
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

var authCallbackCmd = &cobra.Command{
	Use:   "callback PROVIDER",
	Short: "Complete a link with the code and state from the redirect",
	Long:  "Complete an OAuth link by hand when 'unibox serve' is not receiving the redirect.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := model.ParseProvider(args[0])
		if err != nil {
			return err
		}
		acct, err := application.Linker.Link(cmd.Context(), provider, authCode, authState)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, acct)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s linked %s %s (%s)\n",
			theme.SuccessStyle.Render("✓"),
			theme.ProviderStyle(acct.Provider).Render(string(acct.Provider)),
			acct.Email, acct.ID)
		return nil
	},
}

func init() {
	authCallbackCmd.Flags().StringVar(&authCode, "code", "", "Authorization code")
	authCallbackCmd.Flags().StringVar(&authState, "state", "", "State parameter")
	_ = authCallbackCmd.MarkFlagRequired("code")
	_ = authCallbackCmd.MarkFlagRequired("state")

	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authCallbackCmd)
	rootCmd.AddCommand(authCmd)
}
