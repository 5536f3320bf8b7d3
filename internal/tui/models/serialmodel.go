package models

import (
	"context"
	"fmt"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/components"
	"github.com/allbin/go-serialmanager/internal/tui/keys"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputMode is the vim-like mode of the session.
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
	InputModeVisual
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	case InputModeVisual:
		return "VISUAL"
	default:
		return "NORMAL"
	}
}

// OpenedMsg reports the outcome of opening the port.
type OpenedMsg struct {
	Config serial.Config
	Err    error
}

// EventMsg carries one hub event for the session's port.
type EventMsg struct {
	Event serial.Event
}

type subscriptionClosedMsg struct{}

// SignalsMsg is one poll of the modem lines.
type SignalsMsg struct {
	Signals serial.ModemSignals
	Err     error
}

// WrittenMsg settles the write with sequence number Seq.
type WrittenMsg struct {
	Seq int
	Err error
}

type breakDoneMsg struct{}

type Options struct {
	Path   string
	Config serial.Config
	Listen serial.ListenOptions
	// Interactive enables the send line and line control keys.
	Interactive bool
	LineEnding  string
	// SignalPoll is the modem line polling interval; zero disables polling.
	SignalPoll time.Duration
	Display    components.DisplayMode
}

const breakDuration = 250 * time.Millisecond

// Session is the bubbletea model behind listen and connect. It owns one
// path in a Registry and a Hub subscription for that path.
type Session struct {
	reg  *serial.Registry
	sub  *serial.Subscription
	opts Options

	terminal  *components.Terminal
	table     *components.TrafficTable
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys

	mode      InputMode
	ready     bool
	connected bool
	paused    bool
	signals   *serial.ModemSignals
	rts, dtr  bool
	seq       int
}

// NewSession subscribes to opts.Path on hub. The registry must publish
// to hub.
func NewSession(reg *serial.Registry, hub *serial.Hub, opts Options) *Session {
	s := &Session{
		reg:       reg,
		sub:       hub.Subscribe(opts.Path),
		opts:      opts,
		terminal:  components.NewTerminal(0, 0, opts.Display),
		table:     components.NewTrafficTable(80, 10),
		statusBar: components.NewStatusBar(opts.Path),
		input:     components.NewInput(opts.LineEnding),
		help:      help.New(),
		keys:      keys.NewConnectKeys(),
	}
	return s
}

func (s *Session) Init() tea.Cmd {
	return tea.Batch(s.open, s.waitEvent)
}

// Close releases the subscription and the port.
func (s *Session) Close() error {
	s.sub.Unsubscribe()
	return s.reg.Close(s.opts.Path)
}

func (s *Session) Connected() bool { return s.connected }

func (s *Session) Mode() InputMode { return s.mode }

func (s *Session) Entries() []components.Entry { return s.terminal.Entries() }

func (s *Session) open() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.reg.Open(ctx, s.opts.Path, s.opts.Config); err != nil {
		return OpenedMsg{Err: err}
	}
	if err := s.reg.StartListening(s.opts.Path, s.opts.Listen); err != nil {
		_ = s.reg.Close(s.opts.Path)
		return OpenedMsg{Err: err}
	}
	cfg, err := s.reg.Config(s.opts.Path)
	return OpenedMsg{Config: cfg, Err: err}
}

func (s *Session) waitEvent() tea.Msg {
	ev, ok := <-s.sub.C()
	if !ok {
		return subscriptionClosedMsg{}
	}
	return EventMsg{Event: ev}
}

func (s *Session) pollSignals() tea.Cmd {
	if s.opts.SignalPoll <= 0 {
		return nil
	}
	path := s.opts.Path
	return tea.Tick(s.opts.SignalPoll, func(time.Time) tea.Msg {
		sig, err := s.reg.ModemSignals(path)
		return SignalsMsg{Signals: sig, Err: err}
	})
}

// send writes data in the background. The entry shows as pending until
// the matching WrittenMsg arrives.
func (s *Session) send(data []byte) tea.Cmd {
	s.seq++
	seq := s.seq
	s.terminal.Add(components.Entry{Time: time.Now(), Dir: components.TX, Data: data, Status: components.TXPending, Seq: seq})
	path := s.opts.Path
	return func() tea.Msg {
		_, err := s.reg.Write(path, data)
		return WrittenMsg{Seq: seq, Err: err}
	}
}

func (s *Session) note(format string, args ...any) {
	s.terminal.Add(components.Entry{Time: time.Now(), Dir: components.Note, Text: fmt.Sprintf(format, args...)})
}

func (s *Session) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// input box (3) and status bar (1)
		reserved := 1
		if s.opts.Interactive {
			reserved += 3
		}
		if s.help.ShowAll {
			reserved += lipgloss.Height(s.help.View(s.keys))
		}
		s.terminal.SetSize(msg.Width, max(msg.Height-reserved, 1))
		s.table.SetSize(msg.Width, max(msg.Height-reserved, 1))
		s.input.SetWidth(msg.Width)
		s.statusBar.SetWidth(msg.Width)
		s.help.Width = msg.Width
		s.ready = true

	case OpenedMsg:
		if msg.Err != nil {
			s.statusBar.SetDisconnected(msg.Err)
			s.note("open failed: %v", msg.Err)
			break
		}
		s.connected = true
		s.statusBar.SetConnected(msg.Config)
		s.statusBar.SetListening(true)
		s.note("opened %s (%s)", s.opts.Path, msg.Config)
		if s.opts.Interactive {
			s.mode = InputModeInsert
			s.input.Focus()
		}
		cmds = append(cmds, s.pollSignals())

	case EventMsg:
		ev := msg.Event
		if ev.Disconnected {
			s.connected = false
			s.statusBar.SetDisconnected(ev.Err)
			if ev.Err != nil {
				s.note("disconnected: %v", ev.Err)
			} else {
				s.note("closed")
			}
		} else {
			s.terminal.Add(components.Entry{Time: time.Now(), Dir: components.RX, Data: ev.Data})
			if s.mode == InputModeVisual {
				s.table.Load(s.terminal.Entries(), s.terminal.Mode())
			}
		}
		s.statusBar.SetDropped(s.sub.Dropped())
		cmds = append(cmds, s.waitEvent)

	case subscriptionClosedMsg:
		s.connected = false

	case SignalsMsg:
		if msg.Err != nil {
			if s.connected {
				s.note("modem signals unavailable: %v", msg.Err)
			}
			break
		}
		if s.signals != nil {
			if changed := s.signals.Changed(msg.Signals, serial.AllSignals); changed != 0 {
				s.note("signals changed: %s", changed)
			}
		}
		s.signals = &msg.Signals
		s.statusBar.SetSignals(msg.Signals)
		if s.connected {
			cmds = append(cmds, s.pollSignals())
		}

	case WrittenMsg:
		status := components.TXWritten
		if msg.Err != nil {
			status = components.TXFailed
		}
		s.terminal.Settle(msg.Seq, status)
		s.reloadTable()
		if msg.Err != nil {
			s.note("write failed: %v", msg.Err)
		}

	case breakDoneMsg:
		if err := s.reg.ClearBreak(s.opts.Path); err != nil {
			s.note("clear break: %v", err)
		}

	case tea.KeyMsg:
		if cmd, handled := s.handleKey(msg); handled {
			return s, cmd
		}
	}

	if s.mode == InputModeInsert {
		cmds = append(cmds, s.input.Update(msg))
	}
	if s.mode == InputModeVisual {
		if _, isKey := msg.(tea.KeyMsg); isKey {
			cmds = append(cmds, s.table.Update(msg))
		}
	}
	cmds = append(cmds, s.terminal.Update(msg))
	return s, tea.Batch(cmds...)
}

func (s *Session) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	k := s.keys
	if s.mode == InputModeInsert {
		switch {
		case key.Matches(msg, k.Escape):
			s.mode = InputModeNormal
			s.input.Blur()
		case key.Matches(msg, k.Enter):
			return s.submit(), true
		case key.Matches(msg, k.ToggleSendMode):
			s.input.ToggleSendingMode()
		case msg.Type == tea.KeyUp:
			s.input.HistoryUp()
		case msg.Type == tea.KeyDown:
			s.input.HistoryDown()
		case msg.Type == tea.KeyCtrlC:
			return tea.Quit, true
		default:
			return nil, false
		}
		return nil, true
	}

	switch {
	case key.Matches(msg, k.Quit):
		return tea.Quit, true
	case key.Matches(msg, k.Escape):
		s.mode = InputModeNormal
	case key.Matches(msg, k.Help):
		s.help.ShowAll = !s.help.ShowAll
	case key.Matches(msg, k.Clear):
		s.terminal.Clear()
		s.table.Load(nil, s.terminal.Mode())
	case key.Matches(msg, k.ToggleHex):
		s.terminal.ToggleHex()
		s.reloadTable()
	case key.Matches(msg, k.ToggleASCII):
		s.terminal.ToggleASCII()
		s.reloadTable()
	case key.Matches(msg, k.ToggleTimestamps):
		s.terminal.ToggleTimestamps()
	case key.Matches(msg, k.VisualMode):
		if s.mode == InputModeVisual {
			s.mode = InputModeNormal
		} else {
			s.mode = InputModeVisual
			s.table.Load(s.terminal.Entries(), s.terminal.Mode())
		}
	case key.Matches(msg, k.Pause):
		s.togglePause()
	case s.mode == InputModeVisual:
		return nil, false
	case key.Matches(msg, k.GotoTop):
		s.terminal.GotoTop()
	case key.Matches(msg, k.GotoBottom):
		s.terminal.GotoBottom()
	case key.Matches(msg, k.Up):
		s.terminal.LineUp()
	case key.Matches(msg, k.Down):
		s.terminal.LineDown()
	case !s.opts.Interactive:
		return nil, false
	case key.Matches(msg, k.InsertMode):
		s.mode = InputModeInsert
		s.input.Focus()
	case key.Matches(msg, k.ToggleSendMode):
		s.input.ToggleSendingMode()
	case key.Matches(msg, k.ToggleRTS):
		s.setLine("RTS", &s.rts, s.reg.WriteRTS)
	case key.Matches(msg, k.ToggleDTR):
		s.setLine("DTR", &s.dtr, s.reg.WriteDTR)
	case key.Matches(msg, k.Break):
		if err := s.reg.SetBreak(s.opts.Path); err != nil {
			s.note("break: %v", err)
			return nil, true
		}
		s.note("break")
		return tea.Tick(breakDuration, func(time.Time) tea.Msg { return breakDoneMsg{} }), true
	default:
		return nil, false
	}
	return nil, true
}

func (s *Session) reloadTable() {
	if s.mode == InputModeVisual {
		s.table.Load(s.terminal.Entries(), s.terminal.Mode())
	}
}

func (s *Session) setLine(name string, level *bool, write func(string, bool) error) {
	if err := write(s.opts.Path, !*level); err != nil {
		s.note("%s: %v", name, err)
		return
	}
	*level = !*level
	s.note("%s %s", name, onOff(*level))
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (s *Session) togglePause() {
	if !s.connected {
		return
	}
	if s.paused {
		if err := s.reg.StartListening(s.opts.Path, s.opts.Listen); err != nil {
			s.note("resume: %v", err)
			return
		}
		s.paused = false
		s.statusBar.SetListening(true)
		s.note("listening resumed")
		return
	}
	if err := s.reg.StopListening(s.opts.Path); err != nil {
		s.note("pause: %v", err)
		return
	}
	s.paused = true
	s.statusBar.SetListening(false)
	s.note("listening paused")
}

func (s *Session) submit() tea.Cmd {
	value := s.input.Value()
	if value == "" || !s.connected {
		return nil
	}
	data, err := s.input.Payload()
	if err != nil {
		s.note("invalid input: %v", err)
		return nil
	}
	s.input.AddToHistory(value)
	s.input.SetValue("")
	return s.send(data)
}

func (s *Session) View() string {
	content := "Initializing..."
	if s.ready {
		if s.mode == InputModeVisual {
			content = s.table.View()
		} else {
			content = s.terminal.View()
		}
	}

	parts := []string{styles.ContentBorderStyle.Render(content)}
	if s.opts.Interactive {
		parts = append(parts, s.input.View(s.mode == InputModeInsert))
	}
	if s.help.ShowAll {
		if s.opts.Interactive {
			parts = append(parts, s.help.View(s.keys))
		} else {
			parts = append(parts, s.help.View(s.keys.TerminalKeys))
		}
	}
	parts = append(parts, s.statusBar.View(s.mode.String(), s.input.Mode().String(), time.Now().Format("15:04:05")))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
