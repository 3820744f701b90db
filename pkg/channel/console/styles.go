package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// theme groups the styles used to render console activities.
type theme struct {
	header     lipgloss.Style
	divider    lipgloss.Style
	botBox     lipgloss.Style
	botTitle   lipgloss.Style
	errorBox   lipgloss.Style
	errorTitle lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
}

// newTheme builds the retro terminal palette for out.
func newTheme(out io.Writer) theme {
	r := lipgloss.NewRenderer(out)

	return theme{
		header: r.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		divider: r.NewStyle().
			Foreground(lipgloss.Color("130")),
		botBox: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		botTitle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		errorBox: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		errorTitle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		hint: r.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
	}
}
