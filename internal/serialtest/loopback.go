// Package serialtest provides in-memory serial devices for tests of code
// built on serial.Registry.
package serialtest

import (
	"errors"
	"sync"
	"time"

	serial "github.com/allbin/go-serialmanager"
)

// Loopback is a serial.Device that echoes every write back to its reader,
// like a port with TX wired to RX. CTS follows RTS and DSR follows DTR.
type Loopback struct {
	data chan []byte
	wake chan struct{}

	mu      sync.Mutex
	pending []byte
	cfg     serial.Config
	signals serial.ModemSignals
	closed  bool
}

var _ serial.Device = (*Loopback)(nil)

func NewLoopback(cfg serial.Config) *Loopback {
	return &Loopback{data: make(chan []byte, 64), wake: make(chan struct{}, 1), cfg: cfg}
}

func (l *Loopback) Read(buf []byte, timeout time.Duration) (int, error) {
	l.mu.Lock()
	if len(l.pending) > 0 {
		n := copy(buf, l.pending)
		l.pending = l.pending[n:]
		l.mu.Unlock()
		return n, nil
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-l.data:
		n := copy(buf, b)
		l.mu.Lock()
		l.pending = append(l.pending, b[n:]...)
		l.mu.Unlock()
		return n, nil
	case <-l.wake:
		return 0, serial.ErrTimeout
	case <-timer.C:
		return 0, serial.ErrTimeout
	}
}

func (l *Loopback) Write(data []byte, timeout time.Duration) (int, error) {
	select {
	case l.data <- append([]byte(nil), data...):
		return len(data), nil
	case <-time.After(timeout):
		return 0, serial.ErrTimeout
	}
}

func (l *Loopback) Configure(cfg serial.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	return nil
}

// Config returns the configuration last applied to the device.
func (l *Loopback) Config() serial.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *Loopback) SetRTS(level bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals.RTS, l.signals.CTS = level, level
	return nil
}

func (l *Loopback) SetDTR(level bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals.DTR, l.signals.DSR = level, level
	return nil
}

// SetCarrier drives the DCD and RI inputs.
func (l *Loopback) SetCarrier(dcd, ri bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals.DCD, l.signals.RI = dcd, ri
}

func (l *Loopback) ModemStatus() (serial.ModemSignals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signals, nil
}

func (l *Loopback) BytesToRead() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending), nil
}

func (l *Loopback) BytesToWrite() (int, error) { return 0, nil }

func (l *Loopback) Clear(which serial.ClearBuffer) error {
	if which == serial.ClearOutput {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
	for {
		select {
		case <-l.data:
		default:
			return nil
		}
	}
}

func (l *Loopback) SetBreak() error   { return nil }
func (l *Loopback) ClearBreak() error { return nil }

func (l *Loopback) Interrupt() error {
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Loopback) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Bank opens Loopbacks by path and remembers them. Paths listed in Missing
// fail with serial.ErrDeviceNotFound.
type Bank struct {
	Missing []string

	mu      sync.Mutex
	devices map[string]*Loopback
}

// Open is a serial.Opener.
func (b *Bank) Open(path string, cfg serial.Config) (serial.Device, error) {
	for _, m := range b.Missing {
		if m == path {
			return nil, &serial.PortError{Op: "open", Path: path, Kind: serial.ErrDeviceNotFound, Err: errors.New("no such file or directory")}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.devices == nil {
		b.devices = make(map[string]*Loopback)
	}
	dev := NewLoopback(cfg)
	b.devices[path] = dev
	return dev, nil
}

// Device returns the most recent Loopback opened for path, or nil.
func (b *Bank) Device(path string) *Loopback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[path]
}
