package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Header        lipgloss.Style
	Pane          lipgloss.Style
	ActiveThread  lipgloss.Style
	Thread        lipgloss.Style
	FocusedInput  lipgloss.Style
	BlurredInput  lipgloss.Style
	Canvas        lipgloss.Style
	FocusedCanvas lipgloss.Style
	Error         lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#FFB6C1",
		Focused:    "#FFFF99",
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#DD7090",
		Focused:    "#DDDD77",
	}

	unselected := lipgloss.AdaptiveColor{Light: lightModeColors.Unselected, Dark: darkModeColors.Unselected}
	selected := lipgloss.AdaptiveColor{Light: lightModeColors.Selected, Dark: darkModeColors.Selected}
	focused := lipgloss.AdaptiveColor{Light: lightModeColors.Focused, Dark: darkModeColors.Focused}

	return &Style{
		Header:        lipgloss.NewStyle().Bold(true),
		Pane:          lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(unselected),
		ActiveThread:  lipgloss.NewStyle().Bold(true).Foreground(selected),
		Thread:        lipgloss.NewStyle(),
		FocusedInput:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(focused),
		BlurredInput:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(unselected),
		Canvas:        lipgloss.NewStyle(),
		FocusedCanvas: lipgloss.NewStyle().Foreground(focused),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
