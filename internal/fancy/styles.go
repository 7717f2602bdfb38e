package fancy

import (
	"github.com/charmbracelet/lipgloss"
)

// Common styles that can be used across the application
var (
	RootStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	BranchStyle = lipgloss.NewStyle().
			Foreground(ColorDarkGray)

	ComponentStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	NodeStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	ModuleStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	RuntimeStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	PrimaryStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)

// NodeText styles a display node id
func NodeText(text string) string {
	return NodeStyle.Render(text)
}

// ModuleText styles a module name
func ModuleText(text string) string {
	return ModuleStyle.Render(text)
}

// RuntimeText styles a runtime name
func RuntimeText(text string) string {
	return RuntimeStyle.Render(text)
}

// PrimaryText marks the primary node
func PrimaryText(text string) string {
	return PrimaryStyle.Render(text)
}

// ValidText styles valid status text (green)
func ValidText(text string) string {
	return ModuleStyle.Render(text)
}

// ErrorText styles error text (red)
func ErrorText(text string) string {
	return ErrorStyle.Render(text)
}

// PathText styles file paths (gray)
func PathText(text string) string {
	return InfoStyle.Render(text)
}

// SummaryText styles summary information (dark gray)
func SummaryText(text string) string {
	return BranchStyle.Render(text)
}

// CountText styles count numbers (cyan)
func CountText(text string) string {
	return ComponentStyle.Render(text)
}
