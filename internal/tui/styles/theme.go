// Package styles holds the Catppuccin Mocha palette and the lipgloss
// styles shared by the terminal UI and the CLI output.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Teal   = lipgloss.Color("#94e2d5")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve).
			Background(Surface0).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Overlay0)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Text)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Surface2).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Green)

	InfoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve)

	OnStyle  = lipgloss.NewStyle().Foreground(Green).Bold(true)
	OffStyle = lipgloss.NewStyle().Foreground(Overlay0)
)

// Level renders a modem signal level.
func Level(on bool) string {
	if on {
		return OnStyle.Render("HIGH")
	}
	return OffStyle.Render("LOW")
}

type StatusType int

const (
	StatusConnected StatusType = iota
	StatusDisconnected
	StatusConnecting
	StatusError
)

func (s StatusType) Color() lipgloss.Color {
	switch s {
	case StatusConnected:
		return Green
	case StatusConnecting:
		return Yellow
	default:
		return Red
	}
}

func (s StatusType) Symbol() string {
	switch s {
	case StatusConnected:
		return "●"
	case StatusError:
		return "✗"
	default:
		return "○"
	}
}
