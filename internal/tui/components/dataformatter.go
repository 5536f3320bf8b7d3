package components

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// Direction says where an Entry came from.
type Direction int

const (
	RX Direction = iota
	TX
	Note
)

// TXStatus tracks a write from submission to completion.
type TXStatus int

const (
	TXPending TXStatus = iota
	TXWritten
	TXFailed
)

// Entry is one line of traffic or a note about the connection.
type Entry struct {
	Time   time.Time
	Dir    Direction
	Data   []byte
	Status TXStatus
	// Seq numbers writes so their status can be settled later.
	Seq int
	// Text is shown instead of Data for notes.
	Text string
}

type DisplayMode struct {
	ShowHex        bool
	ShowASCII      bool
	ShowTimestamps bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(mode DisplayMode) *DataFormatter {
	return &DataFormatter{mode: mode}
}

func (df *DataFormatter) Mode() DisplayMode { return df.mode }

func (df *DataFormatter) ToggleHex()        { df.mode.ShowHex = !df.mode.ShowHex }
func (df *DataFormatter) ToggleASCII()      { df.mode.ShowASCII = !df.mode.ShowASCII }
func (df *DataFormatter) ToggleTimestamps() { df.mode.ShowTimestamps = !df.mode.ShowTimestamps }

func indicator(e Entry) string {
	style := lipgloss.NewStyle().Bold(true)
	switch e.Dir {
	case TX:
		switch e.Status {
		case TXPending:
			return style.Foreground(styles.Yellow).Render("↗ TX ○")
		case TXFailed:
			return style.Foreground(styles.Red).Render("↗ TX ✗")
		default:
			return style.Foreground(styles.Green).Render("↗ TX ✓")
		}
	case Note:
		return style.Foreground(styles.Mauve).Render("• --")
	default:
		return style.Foreground(styles.Sky).Render("↙ RX")
	}
}

// Format renders e as a single line.
func (df *DataFormatter) Format(e Entry) string {
	var b strings.Builder
	if df.mode.ShowTimestamps {
		b.WriteString(styles.MutedStyle.Render("[" + e.Time.Format("15:04:05.000") + "]"))
		b.WriteByte(' ')
	}
	b.WriteString(indicator(e))
	b.WriteString(": ")

	if e.Dir == Note {
		b.WriteString(e.Text)
		return b.String()
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, "HEX: "+HexString(e.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(e.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(e.Data)))
	}
	b.WriteString(strings.Join(parts, "  "))
	return b.String()
}

// HexString renders data as space-separated upper-case hex pairs.
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// Printable replaces every byte outside printable ASCII with a dot, so
// received data can never inject terminal control sequences.
func Printable(data []byte) string {
	out := make([]byte, len(data))
	for i, c := range data {
		if c >= 32 && c <= 126 {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// ParseHex converts "48656C6C6F", "48 65 6C 6C 6F" or "0x48,0x65" to bytes.
func ParseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ",", "", ":", "", "0x", "", "0X", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("empty input")
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex string must have an even number of digits (got %d)", len(clean))
	}
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
