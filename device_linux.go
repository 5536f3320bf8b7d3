//go:build linux

package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ttyDevice is a termios serial device driven through poll(2). A self-pipe
// lets Interrupt wake a Read that is waiting for data.
type ttyDevice struct {
	path  string
	fd    int
	pipeR int
	pipeW int

	closeOnce sync.Once
	closeErr  error
}

var _ Device = (*ttyDevice)(nil)

var errReadCanceled = fmt.Errorf("%w: read canceled", ErrTimeout)

// OpenDevice opens path as a raw serial device and applies cfg.
func OpenDevice(path string, cfg Config) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrapErr("open", path, err)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errnoErr("open", path, err, false)
	}

	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.ENOTTY) {
			return nil, &PortError{Op: "open", Path: path, Kind: ErrDeviceNotFound, Err: fmt.Errorf("not a serial device")}
		}
		return nil, errnoErr("open", path, err, false)
	}

	// Exclusive mode keeps other non-root openers off the line.
	_ = unix.IoctlSetInt(fd, unix.TIOCEXCL, 0)

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, errnoErr("open", path, err, false)
	}

	d := &ttyDevice{path: path, fd: fd, pipeR: p[0], pipeW: p[1]}
	if err := d.Configure(cfg); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, fmt.Errorf("%w: %d has no termios speed", ErrInvalidBaudRate, rate)
	}
}

// applyTermios rewrites t for raw mode with the line settings of cfg.
// VMIN and VTIME are zero; read timing is handled by poll.
func applyTermios(t *unix.Termios, cfg Config) error {
	speed, err := getBaudRate(cfg.BaudRate)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CREAD | unix.CLOCAL | speed

	switch cfg.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}

	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	switch cfg.Parity {
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		t.Cflag |= unix.PARENB
	}

	switch cfg.FlowControl {
	case FlowControlHardware:
		t.Cflag |= unix.CRTSCTS
	case FlowControlSoftware:
		t.Iflag |= unix.IXON | unix.IXOFF
	}

	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return nil
}

// Configure applies the full parameter set in a single TCSETS.
func (d *ttyDevice) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return wrapErr("configure", d.path, err)
	}
	t, err := unix.IoctlGetTermios(d.fd, unix.TCGETS)
	if err != nil {
		return errnoErr("configure", d.path, err, true)
	}
	if err := applyTermios(t, cfg); err != nil {
		return wrapErr("configure", d.path, err)
	}
	if err := unix.IoctlSetTermios(d.fd, unix.TCSETS, t); err != nil {
		return errnoErr("configure", d.path, err, true)
	}
	return nil
}

// Read waits up to timeout for input and returns what is available, at
// most len(buf) bytes.
func (d *ttyDevice) Read(buf []byte, timeout time.Duration) (int, error) {
	d.drainWakeups()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		fds := []unix.PollFd{
			{Fd: int32(d.fd), Events: unix.POLLIN},
			{Fd: int32(d.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, pollMillis(remaining))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, errnoErr("read", d.path, err, false)
		}
		if n == 0 {
			return 0, ErrTimeout
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			d.drainWakeups()
			return 0, errReadCanceled
		}
		rev := fds[0].Revents
		if rev&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return 0, &PortError{Op: "read", Path: d.path, Kind: ErrIO, Err: fmt.Errorf("poll revents %#x", rev)}
		}
		if rev&(unix.POLLIN|unix.POLLHUP) == 0 {
			continue
		}

		n, err = unix.Read(d.fd, buf)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return 0, errnoErr("read", d.path, err, false)
		case n == 0:
			return 0, &PortError{Op: "read", Path: d.path, Kind: ErrIO, Err: fmt.Errorf("device hung up")}
		}
		return n, nil
	}
}

// Write hands data to the driver, waiting up to timeout for room. A partial
// write that runs out of time reports the count written.
func (d *ttyDevice) Write(data []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(data) {
		n, err := unix.Write(d.fd, data[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil, errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return written, errnoErr("write", d.path, err, false)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLOUT}}
		ready, err := unix.Poll(fds, pollMillis(remaining))
		if err != nil && !errors.Is(err, unix.EINTR) {
			return written, errnoErr("write", d.path, err, false)
		}
		if ready > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return written, &PortError{Op: "write", Path: d.path, Kind: ErrIO, Err: fmt.Errorf("device hung up")}
		}
		if ready == 0 && time.Until(deadline) <= 0 {
			break
		}
	}
	if written == 0 && len(data) > 0 {
		return 0, ErrTimeout
	}
	return written, nil
}

func (d *ttyDevice) SetRTS(level bool) error {
	return d.setModemBit(unix.TIOCM_RTS, level)
}

func (d *ttyDevice) SetDTR(level bool) error {
	return d.setModemBit(unix.TIOCM_DTR, level)
}

func (d *ttyDevice) setModemBit(bit int, level bool) error {
	req := uint(unix.TIOCMBIC)
	if level {
		req = unix.TIOCMBIS
	}
	if err := unix.IoctlSetPointerInt(d.fd, req, bit); err != nil {
		return errnoErr("set modem line", d.path, err, true)
	}
	return nil
}

// ModemStatus returns current state of all modem control signals
func (d *ttyDevice) ModemStatus() (ModemSignals, error) {
	status, err := unix.IoctlGetInt(d.fd, unix.TIOCMGET)
	if err != nil {
		return ModemSignals{}, errnoErr("modem status", d.path, err, true)
	}
	return signalsFromStatus(status), nil
}

func signalsFromStatus(status int) ModemSignals {
	return ModemSignals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}
}

func (d *ttyDevice) BytesToRead() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, unix.TIOCINQ)
	if err != nil {
		return 0, errnoErr("bytes to read", d.path, err, true)
	}
	return n, nil
}

func (d *ttyDevice) BytesToWrite() (int, error) {
	n, err := unix.IoctlGetInt(d.fd, unix.TIOCOUTQ)
	if err != nil {
		return 0, errnoErr("bytes to write", d.path, err, true)
	}
	return n, nil
}

// Clear discards unread input, unwritten output, or both.
func (d *ttyDevice) Clear(which ClearBuffer) error {
	queue := unix.TCIOFLUSH
	switch which {
	case ClearInput:
		queue = unix.TCIFLUSH
	case ClearOutput:
		queue = unix.TCOFLUSH
	}
	if err := unix.IoctlSetInt(d.fd, unix.TCFLSH, queue); err != nil {
		return errnoErr("clear buffer", d.path, err, true)
	}
	return nil
}

func (d *ttyDevice) SetBreak() error {
	if err := unix.IoctlSetInt(d.fd, unix.TIOCSBRK, 0); err != nil {
		return errnoErr("set break", d.path, err, true)
	}
	return nil
}

func (d *ttyDevice) ClearBreak() error {
	if err := unix.IoctlSetInt(d.fd, unix.TIOCCBRK, 0); err != nil {
		return errnoErr("clear break", d.path, err, true)
	}
	return nil
}

// Interrupt wakes a pending Read, which returns a timeout error.
func (d *ttyDevice) Interrupt() error {
	_, err := unix.Write(d.pipeW, []byte{1})
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return errnoErr("interrupt", d.path, err, false)
	}
	return nil
}

func (d *ttyDevice) drainWakeups() {
	var b [16]byte
	for {
		n, err := unix.Read(d.pipeR, b[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close releases the device and the wakeup pipe. Safe to call more than once.
func (d *ttyDevice) Close() error {
	d.closeOnce.Do(func() {
		if err := unix.Close(d.fd); err != nil {
			d.closeErr = errnoErr("close", d.path, err, false)
		}
		unix.Close(d.pipeR)
		unix.Close(d.pipeW)
	})
	return d.closeErr
}

func pollMillis(d time.Duration) int {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		return 1
	}
	return int(ms)
}

// errnoErr classifies a syscall failure. Control requests the driver does not
// implement report ErrUnsupported.
func errnoErr(op, path string, err error, control bool) error {
	kind := ErrIO
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ENOENT, unix.ENODEV, unix.ENXIO:
			kind = ErrDeviceNotFound
		case unix.EACCES, unix.EPERM:
			kind = ErrPermissionDenied
		case unix.ENOTTY, unix.EINVAL, unix.EOPNOTSUPP:
			if control {
				kind = ErrUnsupported
			}
		}
	}
	return &PortError{Op: op, Path: path, Kind: kind, Err: err}
}
