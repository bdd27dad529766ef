package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on both black and dark surfaces.
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	BorderColor  = lipgloss.Color("#6B7280")

	StatusPending  = lipgloss.Color("#9CA3AF") // Gray
	StatusRunning  = lipgloss.Color("#10B981") // Green
	StatusComplete = lipgloss.Color("#A78BFA") // Purple
	StatusUpgrade  = lipgloss.Color("#F59E0B") // Amber
	StatusError    = lipgloss.Color("#F87171") // Red

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Muted = lipgloss.NewStyle().Foreground(MutedColor)
	Error = lipgloss.NewStyle().Foreground(StatusError)

	BarFilled = lipgloss.NewStyle().Foreground(StatusComplete)
	BarActive = lipgloss.NewStyle().Foreground(StatusRunning)
	BarEmpty  = lipgloss.NewStyle().Foreground(BorderColor)

	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 2)
)

// stateStyle returns the count style for a state label.
func stateStyle(label string) lipgloss.Style {
	switch label {
	case "done":
		return lipgloss.NewStyle().Foreground(StatusComplete).Bold(true)
	case "running":
		return lipgloss.NewStyle().Foreground(StatusRunning).Bold(true)
	case "untracked":
		return lipgloss.NewStyle().Foreground(StatusUpgrade)
	default:
		return lipgloss.NewStyle().Foreground(StatusPending)
	}
}
