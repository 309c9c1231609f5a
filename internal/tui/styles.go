// Package tui renders a terminal dashboard for a running fuzzing loop.
//
// Grounded on internal/ui/{styles,dashboard}.go from the teacher repo:
// same bubbletea/lipgloss model shape and color vocabulary, re-themed
// around executions/crashes/coverage instead of HTTP requests/anomalies.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorRed     = lipgloss.Color("#FF0055")

	ColorHeaderBg = lipgloss.Color("#16213E")
	ColorDimText  = lipgloss.Color("#666666")
	ColorBright   = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMagenta).
			Background(ColorHeaderBg).
			Padding(0, 2)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan).
			Background(ColorHeaderBg).
			Padding(0, 1).
			MarginBottom(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorCyan).
			Padding(1, 2)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorDimText).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorBright).
			Bold(true)

	RunningStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	StoppedStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	CrashStyle   = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorYellow)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorDimText).
			MarginTop(1)

	KeyStyle = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
)

// RenderLabelValue renders a label-value pair with the dashboard's styling.
func RenderLabelValue(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}

// RenderHelp renders a single footer key-hint pair.
func RenderHelp(key, description string) string {
	return KeyStyle.Render("["+key+"]") + " " + FooterStyle.Render(description)
}
