package components

import (
	"strconv"

	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TrafficTable shows the same entries as Terminal, one row each, with a
// cursor for inspecting individual chunks.
type TrafficTable struct {
	table table.Model
	mode  DisplayMode
	rows  int
}

func NewTrafficTable(width, height int) *TrafficTable {
	t := table.New(
		table.WithFocused(true),
		table.WithHeight(max(height, 5)),
		table.WithWidth(width),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Text)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(styles.Surface1).
		Bold(false)
	t.SetStyles(s)
	return &TrafficTable{table: t}
}

func (tt *TrafficTable) SetSize(width, height int) {
	tt.table.SetWidth(width)
	tt.table.SetHeight(max(height, 5))
}

func (tt *TrafficTable) columns() []table.Column {
	const timeW, dirW, bytesW = 14, 3, 6
	rest := max(tt.table.Width()-timeW-dirW-bytesW-10, 20)

	cols := []table.Column{{Title: "Time", Width: timeW}, {Title: "↕", Width: dirW}}
	switch {
	case tt.mode.ShowHex && tt.mode.ShowASCII:
		cols = append(cols,
			table.Column{Title: "Hex", Width: max(rest*7/10, 20)},
			table.Column{Title: "ASCII", Width: max(rest*3/10, 10)})
	case tt.mode.ShowHex:
		cols = append(cols, table.Column{Title: "Hex", Width: rest})
	case tt.mode.ShowASCII:
		cols = append(cols, table.Column{Title: "ASCII", Width: rest})
	default:
		cols = append(cols, table.Column{Title: "Data", Width: rest})
	}
	return append(cols, table.Column{Title: "Bytes", Width: bytesW})
}

func (tt *TrafficTable) row(e Entry) table.Row {
	dir := "↙"
	switch e.Dir {
	case TX:
		dir = "↗"
	case Note:
		dir = "•"
	}
	r := table.Row{e.Time.Format("15:04:05.000"), dir}
	if e.Dir == Note {
		r = append(r, e.Text)
		if tt.mode.ShowHex && tt.mode.ShowASCII {
			r = append(r, "")
		}
		return append(r, "")
	}
	switch {
	case tt.mode.ShowHex && tt.mode.ShowASCII:
		r = append(r, HexString(e.Data), Printable(e.Data))
	case tt.mode.ShowHex:
		r = append(r, HexString(e.Data))
	case tt.mode.ShowASCII:
		r = append(r, Printable(e.Data))
	default:
		r = append(r, strconv.Itoa(len(e.Data))+" bytes")
	}
	return append(r, strconv.Itoa(len(e.Data)))
}

// Load replaces the rows with entries rendered in mode and moves the cursor
// to the newest row.
func (tt *TrafficTable) Load(entries []Entry, mode DisplayMode) {
	tt.mode = mode
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = tt.row(e)
	}
	// Columns first, so no row is ever wider than the column set.
	tt.table.SetRows(nil)
	tt.table.SetColumns(tt.columns())
	tt.table.SetRows(rows)
	tt.rows = len(rows)
	tt.table.GotoBottom()
}

func (tt *TrafficTable) Rows() int { return tt.rows }

func (tt *TrafficTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	tt.table, cmd = tt.table.Update(msg)
	return cmd
}

func (tt *TrafficTable) View() string {
	return tt.table.View()
}
