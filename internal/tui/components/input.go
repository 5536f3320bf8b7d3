package components

import (
	"strings"

	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "ASCII"
}

const maxHistory = 100

var placeholders = map[SendingMode]string{
	SendingModeASCII: "Type message and press Enter to send...",
	SendingModeHex:   "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)...",
}

// Input is the send line with an ASCII/hex mode and command history.
type Input struct {
	textInput    textinput.Model
	sendingMode  SendingMode
	lineEnding   string
	history      []string
	historyIndex int
	draft        string
	width        int
}

// NewInput starts in ASCII mode. lineEnding is appended to ASCII sends.
func NewInput(lineEnding string) *Input {
	ti := textinput.New()
	ti.Placeholder = placeholders[SendingModeASCII]
	ti.CharLimit = 1024
	ti.Prompt = ""
	return &Input{
		textInput:    ti,
		lineEnding:   lineEnding,
		historyIndex: -1,
	}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	// border, padding, prompt and a space
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus()            { i.textInput.Focus() }
func (i *Input) Blur()             { i.textInput.Blur() }
func (i *Input) Value() string     { return i.textInput.Value() }
func (i *Input) SetValue(v string) { i.textInput.SetValue(v) }
func (i *Input) Mode() SendingMode { return i.sendingMode }

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeASCII {
		i.sendingMode = SendingModeHex
	} else {
		i.sendingMode = SendingModeASCII
	}
	i.textInput.Placeholder = placeholders[i.sendingMode]
}

// Payload converts the current value to the bytes to write.
func (i *Input) Payload() ([]byte, error) {
	if i.sendingMode == SendingModeHex {
		return ParseHex(i.Value())
	}
	return []byte(i.Value() + i.lineEnding), nil
}

func (i *Input) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return cmd
}

func (i *Input) View(insert bool) string {
	symbol, color := ">", styles.Green
	if i.sendingMode == SendingModeHex {
		symbol, color = "#", styles.Yellow
	}
	prompt := lipgloss.NewStyle().Foreground(color).Bold(true).Render(symbol)

	var body string
	if insert {
		body = i.textInput.View()
	} else {
		body = styles.MutedStyle.Render("Press 'i' to enter insert mode")
	}

	style := styles.InputStyle.
		Width(max(i.width-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if insert {
		style = style.BorderForeground(styles.Green)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", body))
}

// AddToHistory records command unless it is blank or repeats the last one.
func (i *Input) AddToHistory(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	if n := len(i.history); n == 0 || i.history[n-1] != command {
		i.history = append(i.history, command)
		if len(i.history) > maxHistory {
			i.history = i.history[1:]
		}
	}
	i.historyIndex = -1
	i.draft = ""
}

func (i *Input) HistoryUp() {
	if len(i.history) == 0 {
		return
	}
	switch {
	case i.historyIndex == -1:
		i.draft = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	case i.historyIndex > 0:
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *Input) HistoryDown() {
	if i.historyIndex == -1 {
		return
	}
	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.draft)
	i.draft = ""
}
