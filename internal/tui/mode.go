// Package tui provides the live session dashboard for rcrew.
package tui

// Mode represents the current UI mode.
type Mode int

const (
	ModeNormal  Mode = iota // Task list navigation
	ModeConfirm             // Confirmation dialog mode
	ModeHelp                // Help overlay mode
	ModeDetail              // Task detail view mode
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeConfirm:
		return "confirm"
	case ModeHelp:
		return "help"
	case ModeDetail:
		return "detail"
	default:
		return "unknown"
	}
}

// ConfirmAction is the action waiting for confirmation.
type ConfirmAction int

const (
	ConfirmNone ConfirmAction = iota
	ConfirmCancel
	ConfirmRetry
)
