package serial

import (
	"strings"
	"time"
)

// Device is an open OS serial handle. Read and Write are bounded by the
// timeout they are given; Interrupt wakes a Read blocked in another
// goroutine. Implementations need not be safe for concurrent
// reconfiguration; Conn provides that.
type Device interface {
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(data []byte, timeout time.Duration) (int, error)
	Configure(cfg Config) error

	SetRTS(level bool) error
	SetDTR(level bool) error
	ModemStatus() (ModemSignals, error)

	BytesToRead() (int, error)
	BytesToWrite() (int, error)
	Clear(which ClearBuffer) error
	SetBreak() error
	ClearBreak() error

	Interrupt() error
	Close() error
}

// Opener opens the device at path and applies cfg to it.
type Opener func(path string, cfg Config) (Device, error)

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// SignalMask identifies a set of modem signals
type SignalMask int

const (
	SignalCTS SignalMask = 1 << iota
	SignalDSR
	SignalRI
	SignalDCD
	SignalRTS
	SignalDTR
)

// AllSignals covers the input lines a modem reports.
const AllSignals = SignalCTS | SignalDSR | SignalRI | SignalDCD

func (m SignalMask) String() string {
	if m == 0 {
		return "none"
	}
	names := []struct {
		bit  SignalMask
		name string
	}{
		{SignalCTS, "CTS"}, {SignalDSR, "DSR"}, {SignalRI, "RI"},
		{SignalDCD, "DCD"}, {SignalRTS, "RTS"}, {SignalDTR, "DTR"},
	}
	var parts []string
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Changed returns the signals in mask whose level differs between s and next.
func (s ModemSignals) Changed(next ModemSignals, mask SignalMask) SignalMask {
	var changed SignalMask
	if s.CTS != next.CTS {
		changed |= SignalCTS
	}
	if s.DSR != next.DSR {
		changed |= SignalDSR
	}
	if s.RI != next.RI {
		changed |= SignalRI
	}
	if s.DCD != next.DCD {
		changed |= SignalDCD
	}
	if s.RTS != next.RTS {
		changed |= SignalRTS
	}
	if s.DTR != next.DTR {
		changed |= SignalDTR
	}
	return changed & mask
}
