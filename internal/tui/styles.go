package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	colorUnread  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorError   = lipgloss.AdaptiveColor{Light: "#D0021B", Dark: "#FF5F5F"}

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			PaddingBottom(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			PaddingTop(1)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	rowTitleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	rowSelectedStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true)

	rowDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	actionStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	ringUnreadStyle = lipgloss.NewStyle().Foreground(colorUnread)
	ringReadStyle   = lipgloss.NewStyle().Foreground(colorDim)

	emptyStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(1, 2)

	statusStyle = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)

	spinnerStyle = lipgloss.NewStyle().Foreground(colorAccent)
)
