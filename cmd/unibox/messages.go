package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/inbox"
	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/theme"
)

var listQuery inbox.Query

var messagesCmd = &cobra.Command{
	Use:     "messages",
	Aliases: []string{"msg"},
	Short:   "Browse synced mail",
}

type listOutput struct {
	Total    int             `json:"total"`
	Messages []model.Message `json:"messages"`
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		page, err := application.Inbox.ListMessages(cmd.Context(), userID, listQuery)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, listOutput{Total: page.Total, Messages: page.Messages})
		}

		w := cmd.OutOrStdout()
		if len(page.Messages) == 0 {
			fmt.Fprintln(w, theme.MutedStyle.Render("No messages."))
			return nil
		}
		for _, m := range page.Messages {
			marker := " "
			if !m.IsRead {
				marker = "•"
			}
			fmt.Fprintf(w, "%s %s %s  %-28s %s\n",
				marker,
				theme.PriorityLabel(m.Priority),
				theme.MutedStyle.Render(m.ReceivedAt.Local().Format("Jan 02 15:04")),
				truncate(m.From, 28),
				m.Subject)
			fmt.Fprintf(w, "  %s\n", theme.MutedStyle.Render(m.ID))
		}
		fmt.Fprintln(w, theme.MutedStyle.Render(fmt.Sprintf("%d of %d", len(page.Messages), page.Total)))
		return nil
	},
}

var messagesShowCmd = &cobra.Command{
	Use:   "show MESSAGE_ID",
	Short: "Show a message with its annotation and drafts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		detail, err := application.Inbox.GetMessage(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, detail)
		}

		w := cmd.OutOrStdout()
		m := detail.Message
		fmt.Fprintln(w, theme.HeaderStyle.Render(m.Subject))
		fmt.Fprintf(w, "From: %s\nTo:   %s\nDate: %s\n", m.From, m.To, m.ReceivedAt.Local().Format("Mon Jan 02 2006 15:04"))
		if a, ok := m.Annotation(); ok {
			fmt.Fprintf(w, "%s %s / %s  %s\n",
				theme.PriorityLabel(m.Priority), a.Intent, a.Sentiment, theme.MutedStyle.Render(a.Summary))
		}
		fmt.Fprintln(w, theme.PanelStyle.Render(m.Body))

		for _, d := range detail.Drafts {
			fmt.Fprintf(w, "%s %s\n", theme.ReplyStatusStyle(d.Status).Render(string(d.Status)),
				theme.MutedStyle.Render(d.CreatedAt.Local().Format("Jan 02 15:04")))
			fmt.Fprintln(w, theme.PanelStyle.Render(d.Text))
		}
		return nil
	},
}

var messagesReadCmd = &cobra.Command{
	Use:   "read MESSAGE_ID",
	Short: "Mark a message as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		if err := application.Inbox.MarkRead(cmd.Context(), userID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s marked %s read\n", theme.SuccessStyle.Render("✓"), args[0])
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	f := messagesListCmd.Flags()
	f.StringVar(&listQuery.AccountID, "account", "", "Only messages from this account")
	f.StringVar(&listQuery.Priority, "priority", "", "Filter by priority (low, medium, high, urgent)")
	f.StringVar(&listQuery.Sentiment, "sentiment", "", "Filter by sentiment")
	f.BoolVar(&listQuery.UnreadOnly, "unread", false, "Only unread messages")
	f.IntVar(&listQuery.Limit, "limit", 50, "Page size")
	f.IntVar(&listQuery.Offset, "offset", 0, "Page offset")

	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesShowCmd)
	messagesCmd.AddCommand(messagesReadCmd)
	rootCmd.AddCommand(messagesCmd)
}
