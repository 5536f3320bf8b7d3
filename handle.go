package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is one open serial device and its current configuration.
//
// Reads and writes hold the shared side of mu, so a reader and a writer may
// run at the same time while reconfiguration and Close wait for both to
// finish. Once Close has been called every method returns ErrNotOpen and
// the device is not touched again.
type Conn struct {
	path string
	dev  Device

	mu      sync.RWMutex
	readMu  sync.Mutex
	writeMu sync.Mutex
	config  Config
	closed  bool

	closing atomic.Bool
}

func newConn(path string, dev Device, cfg Config) *Conn {
	return &Conn{path: path, dev: dev, config: cfg}
}

// Path returns the device path the connection was opened with.
func (c *Conn) Path() string { return c.path }

// Config returns the current configuration snapshot.
func (c *Conn) Config() (Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return Config{}, c.notOpen("config")
	}
	return c.config, nil
}

func (c *Conn) notOpen(op string) error {
	return &PortError{Op: op, Path: c.path, Kind: ErrNotOpen}
}

// shared runs fn with the device while holding the shared lock.
func (c *Conn) shared(op string, fn func(Device) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return c.notOpen(op)
	}
	return wrapErr(op, c.path, fn(c.dev))
}

// Read waits up to timeout (floor-clamped to MinReadTimeout) for at least
// one byte and returns at most maxSize bytes. Zero arguments fall back to
// the configured read timeout and DefaultReadSize. No data in the window
// is ErrTimeout.
func (c *Conn) Read(timeout time.Duration, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultReadSize
	}
	var out []byte
	err := c.shared("read", func(dev Device) error {
		c.readMu.Lock()
		defer c.readMu.Unlock()
		if timeout <= 0 {
			timeout = c.config.ReadTimeout
		}
		buf := make([]byte, maxSize)
		n, err := dev.Read(buf, clampTimeout(timeout))
		if err != nil {
			return err
		}
		out = buf[:n]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFully keeps reading until target bytes have arrived or timeout has
// elapsed. Whatever arrived is returned; nothing at all is ErrTimeout.
func (c *Conn) ReadFully(timeout time.Duration, target int) ([]byte, error) {
	if target <= 0 {
		target = DefaultReadSize
	}
	var out []byte
	err := c.shared("read", func(dev Device) error {
		c.readMu.Lock()
		defer c.readMu.Unlock()
		if timeout <= 0 {
			timeout = c.config.ReadTimeout
		}
		deadline := time.Now().Add(clampTimeout(timeout))
		buf := make([]byte, target)
		for len(out) < target {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			n, err := dev.Read(buf[:target-len(out)], clampTimeout(remaining))
			if n > 0 {
				out = append(out, buf[:n]...)
			}
			if err != nil {
				if KindOf(err) != ErrTimeout {
					return err
				}
				if errors.Is(err, errReadCanceled) && len(out) == 0 {
					return err
				}
				break
			}
		}
		if len(out) == 0 {
			return ErrTimeout
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Write sends data, waiting at most the configured write timeout. The count
// of bytes accepted by the driver is returned even when it is short.
func (c *Conn) Write(data []byte) (int, error) {
	var n int
	err := c.shared("write", func(dev Device) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		timeout := c.config.WriteTimeout
		if timeout <= 0 {
			timeout = DefaultWriteTimeout
		}
		var err error
		n, err = dev.Write(data, timeout)
		return err
	})
	return n, err
}

// Interrupt wakes a read that is waiting for data. The read returns ErrTimeout.
func (c *Conn) Interrupt() error {
	return c.shared("cancel read", func(dev Device) error {
		return dev.Interrupt()
	})
}

func (c *Conn) WriteRTS(level bool) error {
	return c.shared("write rts", func(dev Device) error { return dev.SetRTS(level) })
}

func (c *Conn) WriteDTR(level bool) error {
	return c.shared("write dtr", func(dev Device) error { return dev.SetDTR(level) })
}

// ModemSignals reads every modem line in one request.
func (c *Conn) ModemSignals() (ModemSignals, error) {
	var s ModemSignals
	err := c.shared("modem status", func(dev Device) error {
		var err error
		s, err = dev.ModemStatus()
		return err
	})
	return s, err
}

func (c *Conn) readSignal(op string, pick func(ModemSignals) bool) (bool, error) {
	var level bool
	err := c.shared(op, func(dev Device) error {
		s, err := dev.ModemStatus()
		if err != nil {
			return err
		}
		level = pick(s)
		return nil
	})
	return level, err
}

func (c *Conn) ReadCTS() (bool, error) {
	return c.readSignal("read cts", func(s ModemSignals) bool { return s.CTS })
}

func (c *Conn) ReadDSR() (bool, error) {
	return c.readSignal("read dsr", func(s ModemSignals) bool { return s.DSR })
}

func (c *Conn) ReadRI() (bool, error) {
	return c.readSignal("read ri", func(s ModemSignals) bool { return s.RI })
}

func (c *Conn) ReadCD() (bool, error) {
	return c.readSignal("read cd", func(s ModemSignals) bool { return s.DCD })
}

func (c *Conn) BytesToRead() (int, error) {
	var n int
	err := c.shared("bytes to read", func(dev Device) error {
		var err error
		n, err = dev.BytesToRead()
		return err
	})
	return n, err
}

func (c *Conn) BytesToWrite() (int, error) {
	var n int
	err := c.shared("bytes to write", func(dev Device) error {
		var err error
		n, err = dev.BytesToWrite()
		return err
	})
	return n, err
}

func (c *Conn) ClearBuffer(which ClearBuffer) error {
	return c.shared("clear buffer", func(dev Device) error { return dev.Clear(which) })
}

func (c *Conn) SetBreak() error {
	return c.shared("set break", func(dev Device) error { return dev.SetBreak() })
}

func (c *Conn) ClearBreak() error {
	return c.shared("clear break", func(dev Device) error { return dev.ClearBreak() })
}

// reconfigure builds the next snapshot, applies it to the device and only
// then makes it current. A rejected change leaves the old snapshot in place.
func (c *Conn) reconfigure(op string, opt Option, apply bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.notOpen(op)
	}
	next := c.config
	if err := opt(&next); err != nil {
		return wrapErr(op, c.path, err)
	}
	if err := next.Validate(); err != nil {
		return wrapErr(op, c.path, err)
	}
	if apply {
		if err := c.dev.Configure(next); err != nil {
			return wrapErr(op, c.path, err)
		}
	}
	c.config = next
	return nil
}

func (c *Conn) SetBaudRate(rate int) error {
	return c.reconfigure("set baud rate", WithBaudRate(rate), true)
}

func (c *Conn) SetDataBits(bits int) error {
	return c.reconfigure("set data bits", WithDataBits(bits), true)
}

func (c *Conn) SetParity(p Parity) error {
	return c.reconfigure("set parity", WithParity(p), true)
}

func (c *Conn) SetStopBits(bits int) error {
	return c.reconfigure("set stop bits", WithStopBits(bits), true)
}

func (c *Conn) SetFlowControl(fc FlowControl) error {
	return c.reconfigure("set flow control", WithFlowControl(fc), true)
}

// SetTimeout changes the default read window. The device is not touched.
func (c *Conn) SetTimeout(timeout time.Duration) error {
	return c.reconfigure("set timeout", WithReadTimeout(timeout), false)
}

// Close releases the device. A pending read is woken first so Close does
// not wait out its timeout. Further calls return ErrNotOpen.
func (c *Conn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return c.notOpen("close")
	}
	_ = c.dev.Interrupt()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return wrapErr("close", c.path, c.dev.Close())
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closing.Load()
}
