package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// MaxEntries bounds the scrollback kept by a Terminal.
const MaxEntries = 5000

// Terminal is a scrolling view of traffic entries. It follows the newest
// entry unless the user has scrolled away from the bottom.
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	entries   []Entry
	lines     []string
}

func NewTerminal(width, height int, mode DisplayMode) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(mode),
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) Width() int { return t.viewport.Width }

func (t *Terminal) Entries() []Entry { return t.entries }

func (t *Terminal) Add(e Entry) {
	follow := t.viewport.AtBottom()
	t.entries = append(t.entries, e)
	t.lines = append(t.lines, t.formatter.Format(e))
	if len(t.entries) > MaxEntries {
		drop := len(t.entries) - MaxEntries
		t.entries = t.entries[drop:]
		t.lines = t.lines[drop:]
	}
	t.viewport.SetContent(strings.Join(t.lines, "\n"))
	if follow {
		t.viewport.GotoBottom()
	}
}

// Settle sets the status of the pending write numbered seq.
func (t *Terminal) Settle(seq int, status TXStatus) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := &t.entries[i]
		if e.Dir == TX && e.Seq == seq {
			e.Status = status
			t.lines[i] = t.formatter.Format(*e)
			t.viewport.SetContent(strings.Join(t.lines, "\n"))
			return
		}
	}
}

func (t *Terminal) refresh() {
	t.lines = t.lines[:0]
	for _, e := range t.entries {
		t.lines = append(t.lines, t.formatter.Format(e))
	}
	t.viewport.SetContent(strings.Join(t.lines, "\n"))
	t.viewport.GotoBottom()
}

func (t *Terminal) Clear() {
	t.entries = nil
	t.lines = nil
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleHex()        { t.formatter.ToggleHex(); t.refresh() }
func (t *Terminal) ToggleASCII()      { t.formatter.ToggleASCII(); t.refresh() }
func (t *Terminal) ToggleTimestamps() { t.formatter.ToggleTimestamps(); t.refresh() }

func (t *Terminal) Mode() DisplayMode { return t.formatter.Mode() }

func (t *Terminal) GotoTop()    { t.viewport.GotoTop() }
func (t *Terminal) GotoBottom() { t.viewport.GotoBottom() }
func (t *Terminal) LineUp()     { t.viewport.LineUp(1) }
func (t *Terminal) LineDown()   { t.viewport.LineDown(1) }

// Update only forwards resizes and mouse wheel events, so key bindings stay
// with the owning model.
func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
