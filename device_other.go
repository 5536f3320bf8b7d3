//go:build !linux

package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	bugst "go.bug.st/serial"
)

const (
	// readSlice bounds each blocking read so Interrupt is observed promptly.
	readSlice = 50 * time.Millisecond

	writeChunk = 256
)

type writeResult struct {
	n   int
	err error
}

// portDevice adapts a go.bug.st/serial port. The library has no byte
// counters, sustained break or flow control settings; those report
// ErrUnsupported.
type portDevice struct {
	path string
	port bugst.Port

	mu          sync.Mutex
	rts, dtr    bool
	interrupted atomic.Bool

	writeMu sync.Mutex
	// inflight holds the result of a write that outlived its caller.
	inflight chan writeResult
}

var _ Device = (*portDevice)(nil)

var errReadCanceled = fmt.Errorf("%w: read canceled", ErrTimeout)

// OpenDevice opens path through go.bug.st/serial and applies cfg.
func OpenDevice(path string, cfg Config) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrapErr("open", path, err)
	}
	if cfg.FlowControl != FlowControlNone {
		return nil, &PortError{Op: "open", Path: path, Kind: ErrUnsupported, Err: fmt.Errorf("flow control %s", cfg.FlowControl)}
	}
	p, err := bugst.Open(path, modeFor(cfg))
	if err != nil {
		return nil, portErr("open", path, err)
	}
	if err := p.SetReadTimeout(readSlice); err != nil {
		p.Close()
		return nil, portErr("open", path, err)
	}
	return &portDevice{path: path, port: p, rts: true, dtr: true}, nil
}

func modeFor(cfg Config) *bugst.Mode {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	switch cfg.Parity {
	case ParityOdd:
		mode.Parity = bugst.OddParity
	case ParityEven:
		mode.Parity = bugst.EvenParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	return mode
}

func (d *portDevice) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return wrapErr("configure", d.path, err)
	}
	if cfg.FlowControl != FlowControlNone {
		return &PortError{Op: "configure", Path: d.path, Kind: ErrUnsupported, Err: fmt.Errorf("flow control %s", cfg.FlowControl)}
	}
	if err := d.port.SetMode(modeFor(cfg)); err != nil {
		return portErr("configure", d.path, err)
	}
	return nil
}

func (d *portDevice) Read(buf []byte, timeout time.Duration) (int, error) {
	d.interrupted.Store(false)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.interrupted.Swap(false) {
			return 0, errReadCanceled
		}
		n, err := d.port.Read(buf)
		if err != nil {
			return 0, portErr("read", d.path, err)
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, ErrTimeout
}

// Write sends data in writeChunk pieces, waiting up to timeout overall. The
// library write cannot be abandoned, so a piece still in flight at the
// deadline keeps the port: the next Write waits for it before sending. A
// partial write that runs out of time reports the count confirmed so far.
func (d *portDevice) Write(data []byte, timeout time.Duration) (int, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if d.inflight != nil {
		select {
		case <-d.inflight:
			d.inflight = nil
		case <-timer.C:
			return 0, ErrTimeout
		}
	}

	written := 0
	for written < len(data) {
		chunk := data[written:min(written+writeChunk, len(data))]
		resultCh := make(chan writeResult, 1)
		go func() {
			n, err := d.port.Write(chunk)
			resultCh <- writeResult{n: n, err: err}
		}()

		select {
		case result := <-resultCh:
			written += result.n
			if result.err != nil {
				return written, portErr("write", d.path, result.err)
			}
		case <-timer.C:
			d.inflight = resultCh
			if written == 0 {
				return 0, ErrTimeout
			}
			return written, nil
		}
	}
	return written, nil
}

func (d *portDevice) SetRTS(level bool) error {
	if err := d.port.SetRTS(level); err != nil {
		return portErr("set rts", d.path, err)
	}
	d.mu.Lock()
	d.rts = level
	d.mu.Unlock()
	return nil
}

func (d *portDevice) SetDTR(level bool) error {
	if err := d.port.SetDTR(level); err != nil {
		return portErr("set dtr", d.path, err)
	}
	d.mu.Lock()
	d.dtr = level
	d.mu.Unlock()
	return nil
}

func (d *portDevice) ModemStatus() (ModemSignals, error) {
	bits, err := d.port.GetModemStatusBits()
	if err != nil {
		return ModemSignals{}, portErr("modem status", d.path, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return ModemSignals{
		CTS: bits.CTS,
		DSR: bits.DSR,
		RI:  bits.RI,
		DCD: bits.DCD,
		RTS: d.rts,
		DTR: d.dtr,
	}, nil
}

func (d *portDevice) BytesToRead() (int, error) {
	return 0, &PortError{Op: "bytes to read", Path: d.path, Kind: ErrUnsupported}
}

func (d *portDevice) BytesToWrite() (int, error) {
	return 0, &PortError{Op: "bytes to write", Path: d.path, Kind: ErrUnsupported}
}

func (d *portDevice) Clear(which ClearBuffer) error {
	if which == ClearInput || which == ClearAll {
		if err := d.port.ResetInputBuffer(); err != nil {
			return portErr("clear buffer", d.path, err)
		}
	}
	if which == ClearOutput || which == ClearAll {
		if err := d.port.ResetOutputBuffer(); err != nil {
			return portErr("clear buffer", d.path, err)
		}
	}
	return nil
}

func (d *portDevice) SetBreak() error {
	return &PortError{Op: "set break", Path: d.path, Kind: ErrUnsupported}
}

func (d *portDevice) ClearBreak() error {
	return &PortError{Op: "clear break", Path: d.path, Kind: ErrUnsupported}
}

func (d *portDevice) Interrupt() error {
	d.interrupted.Store(true)
	return nil
}

func (d *portDevice) Close() error {
	if err := d.port.Close(); err != nil {
		var pe bugst.PortError
		if errors.As(err, &pe) && pe.Code() == bugst.PortClosed {
			return nil
		}
		return portErr("close", d.path, err)
	}
	return nil
}

// portErr maps go.bug.st/serial error codes onto error kinds.
func portErr(op, path string, err error) error {
	kind := ErrIO
	var pe bugst.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case bugst.PortNotFound, bugst.InvalidSerialPort:
			kind = ErrDeviceNotFound
		case bugst.PermissionDenied:
			kind = ErrPermissionDenied
		case bugst.InvalidSpeed, bugst.InvalidDataBits, bugst.InvalidParity,
			bugst.InvalidStopBits, bugst.InvalidTimeoutValue:
			kind = ErrInvalidConfig
		case bugst.FunctionNotImplemented:
			kind = ErrUnsupported
		}
	}
	return &PortError{Op: op, Path: path, Kind: kind, Err: err}
}
