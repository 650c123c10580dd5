// Package theme holds the lipgloss styles used by the unibox CLI.
package theme

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/unibox/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for command output titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle wraps a message body or draft.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// MutedStyle is used for ids, timestamps, and hints.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// ErrorStyle highlights failures.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// SuccessStyle confirms completed actions.
var SuccessStyle = lipgloss.NewStyle().
	Foreground(ColorGreen)

// PriorityStyle returns a color-coded style for an AI priority.
func PriorityStyle(p model.Priority) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch p {
	case model.PriorityUrgent:
		return base.Foreground(ColorRed)
	case model.PriorityHigh:
		return base.Foreground(ColorOrange)
	case model.PriorityMedium:
		return base.Foreground(ColorYellow)
	case model.PriorityLow:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}

// PriorityLabel renders a fixed-width priority tag. Unannotated messages
// show a dash.
func PriorityLabel(p *model.Priority) string {
	if p == nil {
		return MutedStyle.Render(fmt.Sprintf("%-6s", "-"))
	}
	return PriorityStyle(*p).Render(fmt.Sprintf("%-6s", strings.ToUpper(string(*p))))
}

// ProviderStyle returns a color-coded style for a provider tag.
func ProviderStyle(p model.Provider) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch p {
	case model.ProviderGmail:
		return base.Foreground(ColorRed)
	case model.ProviderOutlook:
		return base.Foreground(ColorBlue)
	case model.ProviderIMAP:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// ReplyStatusStyle colors a draft's review status.
func ReplyStatusStyle(s model.ReplyStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)

	switch s {
	case model.ReplyPending:
		return base.Foreground(ColorYellow)
	case model.ReplyApproved:
		return base.Foreground(ColorGreen)
	case model.ReplyRejected:
		return base.Foreground(ColorRed)
	case model.ReplySent:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// AccountState summarizes whether an account will be synced.
func AccountState(acct model.Account) string {
	switch {
	case acct.ReauthRequired:
		return ErrorStyle.Render("re-auth required")
	case !acct.Active:
		return MutedStyle.Render("paused")
	default:
		return SuccessStyle.Render("active")
	}
}
