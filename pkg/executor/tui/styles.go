package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/harvest/pkg/container"
)

// Color Palette
// This is the single source of truth for all TUI colors.
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // Soft pastel salmon pink - primary accent
	coralPink   = lipgloss.Color("#FFCCCB") // Lighter coral accent - secondary
	mintGreen   = lipgloss.Color("#A8E6CF") // Soft mint green - completed states
	skyBlue     = lipgloss.Color("#A0C4FF") // Soft blue - running states
	mutedGray   = lipgloss.Color("#6B7280") // Muted gray - secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // Bright white - primary text
)

// Common Styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	tipsStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	nameStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	selectedStyle = lipgloss.NewStyle().
			Foreground(coralPink).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	eventStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 1)

	treeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)

// lifecycleStyle colors a lifecycle state.
func lifecycleStyle(state container.LifecycleState) lipgloss.Style {
	switch state {
	case container.StateRunning:
		return lipgloss.NewStyle().Foreground(skyBlue)
	case container.StateCompleted:
		return lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	case container.StateFailed:
		return errorStyle.Bold(true)
	default:
		return tipsStyle
	}
}

// lifecycleGlyph is the marker shown before a container name.
func lifecycleGlyph(state container.LifecycleState) string {
	switch state {
	case container.StateRunning:
		return "●"
	case container.StateCompleted:
		return "✓"
	case container.StateFailed:
		return "✗"
	case container.StateDestroyed:
		return "·"
	default:
		return "○"
	}
}
