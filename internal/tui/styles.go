package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/runoshun/research-crew/internal/domain"
)

// Colors defines the color palette for the TUI.
var Colors = struct {
	// Base colors
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Error      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Background lipgloss.Color

	// Title/text colors
	TitleNormal   lipgloss.Color
	TitleSelected lipgloss.Color

	// Status colors
	Pending     lipgloss.Color
	InProgress  lipgloss.Color
	WaitingUser lipgloss.Color
	Failed      lipgloss.Color
	Completed   lipgloss.Color
	Cancelled   lipgloss.Color
	Stale       lipgloss.Color

	// Group header
	GroupLine lipgloss.Color
}{
	Primary:    lipgloss.Color("#6C5CE7"), // Purple
	Secondary:  lipgloss.Color("#A29BFE"), // Lavender
	Muted:      lipgloss.Color("#636E72"), // Gray
	Error:      lipgloss.Color("#D63031"), // Red
	Success:    lipgloss.Color("#00B894"), // Green
	Warning:    lipgloss.Color("#FDCB6E"), // Yellow
	Background: lipgloss.Color("#2D3436"), // Dark gray

	TitleNormal:   lipgloss.Color("#DFE6E9"), // Light gray
	TitleSelected: lipgloss.Color("#FFEAA7"), // Yellow (selected)

	Pending:     lipgloss.Color("#74B9FF"), // Light blue
	InProgress:  lipgloss.Color("#FDCB6E"), // Yellow
	WaitingUser: lipgloss.Color("#A29BFE"), // Lavender
	Failed:      lipgloss.Color("#D63031"), // Red
	Completed:   lipgloss.Color("#00B894"), // Green
	Cancelled:   lipgloss.Color("#636E72"), // Gray
	Stale:       lipgloss.Color("#E17055"), // Orange

	GroupLine: lipgloss.Color("#636E72"),
}

// Styles contains all the lipgloss styles for the TUI.
type Styles struct {
	// App
	App lipgloss.Style

	// Header
	Header     lipgloss.Style
	HeaderText lipgloss.Style
	HeaderMeta lipgloss.Style

	// Progress
	ProgressFill  lipgloss.Style
	ProgressEmpty lipgloss.Style

	// Task list
	TaskID            lipgloss.Style
	TaskIDSelected    lipgloss.Style
	TaskTitle         lipgloss.Style
	TaskTitleSelected lipgloss.Style
	TaskStep          lipgloss.Style
	CursorSelected    lipgloss.Style

	// Group header
	GroupHeaderLine  lipgloss.Style
	GroupHeaderLabel lipgloss.Style

	// Status badges
	StatusPending     lipgloss.Style
	StatusInProgress  lipgloss.Style
	StatusWaitingUser lipgloss.Style
	StatusFailed      lipgloss.Style
	StatusCompleted   lipgloss.Style
	StatusCancelled   lipgloss.Style
	StatusStale       lipgloss.Style

	// Help
	Help lipgloss.Style

	// Footer
	Footer    lipgloss.Style
	Notice    lipgloss.Style
	StaleItem lipgloss.Style

	// Dialog
	Dialog      lipgloss.Style
	DialogTitle lipgloss.Style

	// Error
	ErrorMsg lipgloss.Style

	// Detail
	DetailTitle lipgloss.Style
	DetailLabel lipgloss.Style
	DetailValue lipgloss.Style
	DetailDesc  lipgloss.Style
}

// DefaultStyles returns the default styles for the TUI.
func DefaultStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(Colors.Primary).
			MarginBottom(1),

		HeaderText: lipgloss.NewStyle().
			Bold(true),

		HeaderMeta: lipgloss.NewStyle().
			Foreground(Colors.Muted),

		ProgressFill: lipgloss.NewStyle().
			Foreground(Colors.Success),

		ProgressEmpty: lipgloss.NewStyle().
			Foreground(Colors.Muted),

		TaskID: lipgloss.NewStyle().
			Foreground(Colors.Muted).
			Width(10),

		TaskIDSelected: lipgloss.NewStyle().
			Foreground(Colors.TitleSelected).
			Bold(true).
			Width(10),

		TaskTitle: lipgloss.NewStyle().
			Foreground(Colors.TitleNormal),

		TaskTitleSelected: lipgloss.NewStyle().
			Foreground(Colors.TitleSelected).
			Bold(true),

		TaskStep: lipgloss.NewStyle().
			Foreground(Colors.Muted).
			Italic(true),

		CursorSelected: lipgloss.NewStyle().
			Foreground(Colors.TitleSelected).
			Bold(true),

		GroupHeaderLine: lipgloss.NewStyle().
			Foreground(Colors.GroupLine),

		GroupHeaderLabel: lipgloss.NewStyle().
			Foreground(Colors.Muted),

		StatusPending: lipgloss.NewStyle().
			Foreground(Colors.Pending),

		StatusInProgress: lipgloss.NewStyle().
			Foreground(Colors.InProgress),

		StatusWaitingUser: lipgloss.NewStyle().
			Foreground(Colors.WaitingUser),

		StatusFailed: lipgloss.NewStyle().
			Foreground(Colors.Failed),

		StatusCompleted: lipgloss.NewStyle().
			Foreground(Colors.Completed),

		StatusCancelled: lipgloss.NewStyle().
			Foreground(Colors.Cancelled),

		StatusStale: lipgloss.NewStyle().
			Foreground(Colors.Stale),

		Help: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Colors.Muted),

		Footer: lipgloss.NewStyle().
			Foreground(Colors.Muted),

		Notice: lipgloss.NewStyle().
			Foreground(Colors.Success),

		StaleItem: lipgloss.NewStyle().
			Foreground(Colors.Warning),

		Dialog: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Colors.Primary),

		DialogTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(Colors.Primary),

		ErrorMsg: lipgloss.NewStyle().
			Foreground(Colors.Error).
			Bold(true),

		DetailTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(Colors.Primary).
			MarginBottom(1),

		DetailLabel: lipgloss.NewStyle().
			Foreground(Colors.Muted).
			Width(12),

		DetailValue: lipgloss.NewStyle(),

		DetailDesc: lipgloss.NewStyle().
			Foreground(Colors.Muted).
			MarginTop(1),
	}
}

// StatusStyle returns the style for a given status.
func (s Styles) StatusStyle(status domain.Status) lipgloss.Style {
	switch status {
	case domain.StatusPending:
		return s.StatusPending
	case domain.StatusInProgress:
		return s.StatusInProgress
	case domain.StatusWaitingUser:
		return s.StatusWaitingUser
	case domain.StatusFailed:
		return s.StatusFailed
	case domain.StatusCompleted:
		return s.StatusCompleted
	case domain.StatusCancelled:
		return s.StatusCancelled
	case domain.StatusStale:
		return s.StatusStale
	default:
		return s.StatusPending
	}
}
