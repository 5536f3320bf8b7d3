package components

import (
	"fmt"
	"strings"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the bottom line of the terminal UI, laid out like an editor
// mode line: mode, port, connection state, then port details on the right.
type StatusBar struct {
	portPath  string
	status    styles.StatusType
	message   string
	config    *serial.Config
	signals   *serial.ModemSignals
	listening bool
	dropped   uint64
	width     int
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{portPath: portPath, status: styles.StatusConnecting, message: "Connecting..."}
}

func (sb *StatusBar) SetWidth(width int) { sb.width = width }

func (sb *StatusBar) SetConnected(cfg serial.Config) {
	sb.status = styles.StatusConnected
	sb.message = ""
	sb.config = &cfg
}

// SetConfig refreshes the shown configuration after a change.
func (sb *StatusBar) SetConfig(cfg serial.Config) { sb.config = &cfg }

// SetDisconnected records why the port went away; err is nil for a
// requested close.
func (sb *StatusBar) SetDisconnected(err error) {
	sb.listening = false
	if err != nil {
		sb.status = styles.StatusError
		sb.message = err.Error()
		return
	}
	sb.status = styles.StatusDisconnected
	sb.message = "Disconnected"
}

func (sb *StatusBar) SetSignals(s serial.ModemSignals) { sb.signals = &s }

func (sb *StatusBar) SetListening(on bool) { sb.listening = on }

func (sb *StatusBar) SetDropped(n uint64) { sb.dropped = n }

func (sb *StatusBar) Status() styles.StatusType { return sb.status }

func (sb *StatusBar) Message() string { return sb.message }

func signalSummary(s serial.ModemSignals) string {
	var parts []string
	for _, sig := range []struct {
		name string
		on   bool
	}{{"CTS", s.CTS}, {"DSR", s.DSR}, {"DCD", s.DCD}, {"RI", s.RI}, {"RTS", s.RTS}, {"DTR", s.DTR}} {
		mark := "✗"
		if sig.on {
			mark = "✓"
		}
		parts = append(parts, sig.name+":"+mark)
	}
	return strings.Join(parts, " ")
}

// View renders the bar. mode is NORMAL, INSERT or VISUAL; sending is shown
// in insert mode only.
func (sb *StatusBar) View(mode, sending, clock string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeColor := styles.Blue
	switch mode {
	case "INSERT":
		modeColor = styles.Green
	case "VISUAL":
		modeColor = styles.Peach
	}
	left := []string{
		lipgloss.NewStyle().Foreground(styles.Base).Background(modeColor).Bold(true).Padding(0, 1).Render(mode),
		lipgloss.NewStyle().Foreground(styles.Mauve).Bold(true).Padding(0, 1).Render(sb.portPath),
		lipgloss.NewStyle().Foreground(sb.status.Color()).Render(sb.status.Symbol()),
	}
	if sb.listening {
		left = append(left, lipgloss.NewStyle().Foreground(styles.Teal).Padding(0, 1).Render("LISTEN"))
	}
	if mode == "INSERT" {
		left = append(left, lipgloss.NewStyle().Foreground(styles.Peach).Bold(true).Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sending)))
	}
	if sb.message != "" {
		left = append(left, lipgloss.NewStyle().Foreground(sb.status.Color()).Padding(0, 1).Render(sb.message))
	}

	divider := lipgloss.NewStyle().Foreground(styles.Surface2).Padding(0, 1).Render("│")
	detail := "⚡ serial"
	if sb.config != nil {
		detail = "⚡ " + sb.config.String()
	}
	if sb.signals != nil {
		detail += "  " + signalSummary(*sb.signals)
	}
	if sb.dropped > 0 {
		detail += fmt.Sprintf("  dropped:%d", sb.dropped)
	}
	right := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Foreground(styles.Subtext0).Padding(0, 1).Render(detail),
		divider,
		lipgloss.NewStyle().Foreground(styles.Subtext1).Padding(0, 1).Render(clock),
	)

	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, append(left, divider)...)
	spacer := lipgloss.NewStyle().Width(max(width-lipgloss.Width(leftSide)-lipgloss.Width(right), 1)).Render("")

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, right))
}
