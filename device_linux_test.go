//go:build linux

package serial

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// openPTY returns the master side of a pseudo-terminal and a Device opened
// on its slave.
func openPTY(t *testing.T, cfg Config) (*os.File, Device) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	dev, err := OpenDevice(slave.Name(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return master, dev
}

func TestGetBaudRate(t *testing.T) {
	tests := []struct {
		rate    int
		want    uint32
		wantErr bool
	}{
		{9600, unix.B9600, false},
		{115200, unix.B115200, false},
		{4000000, unix.B4000000, false},
		{12345, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		got, err := getBaudRate(tt.rate)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("getBaudRate(%d) error = %v, want ErrInvalidConfig", tt.rate, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("getBaudRate(%d) = %v, %v; want %v", tt.rate, got, err, tt.want)
		}
	}
}

func TestApplyTermios(t *testing.T) {
	t.Run("8N1 no flow control", func(t *testing.T) {
		tio := &unix.Termios{Iflag: unix.ICRNL | unix.IXON, Lflag: unix.ICANON | unix.ECHO, Cflag: unix.PARENB | unix.CRTSCTS}
		require.NoError(t, applyTermios(tio, DefaultConfig()))

		require.Equal(t, uint32(unix.CS8), tio.Cflag&unix.CSIZE)
		require.Zero(t, tio.Cflag&unix.PARENB)
		require.Zero(t, tio.Cflag&unix.CSTOPB)
		require.Zero(t, tio.Cflag&unix.CRTSCTS)
		require.Zero(t, tio.Iflag&(unix.IXON|unix.ICRNL))
		require.Zero(t, tio.Lflag&(unix.ICANON|unix.ECHO))
		require.Equal(t, uint32(unix.B115200), tio.Cflag&unix.CBAUD)
		require.Equal(t, uint32(unix.B115200), tio.Ispeed)
		require.Zero(t, tio.Cc[unix.VMIN])
		require.Zero(t, tio.Cc[unix.VTIME])
	})

	t.Run("7O2 hardware flow", func(t *testing.T) {
		cfg, err := NewConfig(WithBaudRate(9600), WithDataBits(7), WithParity(ParityOdd),
			WithStopBits(2), WithFlowControl(FlowControlHardware))
		require.NoError(t, err)

		tio := &unix.Termios{}
		require.NoError(t, applyTermios(tio, cfg))
		require.Equal(t, uint32(unix.CS7), tio.Cflag&unix.CSIZE)
		require.NotZero(t, tio.Cflag&unix.PARENB)
		require.NotZero(t, tio.Cflag&unix.PARODD)
		require.NotZero(t, tio.Cflag&unix.CSTOPB)
		require.NotZero(t, tio.Cflag&unix.CRTSCTS)
		require.Equal(t, uint32(unix.B9600), tio.Cflag&unix.CBAUD)
	})

	t.Run("5E1 software flow", func(t *testing.T) {
		cfg, err := NewConfig(WithDataBits(5), WithParity(ParityEven), WithFlowControl(FlowControlSoftware))
		require.NoError(t, err)

		tio := &unix.Termios{}
		require.NoError(t, applyTermios(tio, cfg))
		require.Equal(t, uint32(unix.CS5), tio.Cflag&unix.CSIZE)
		require.NotZero(t, tio.Cflag&unix.PARENB)
		require.Zero(t, tio.Cflag&unix.PARODD)
		require.Equal(t, uint32(unix.IXON|unix.IXOFF), tio.Iflag&(unix.IXON|unix.IXOFF))
		require.Zero(t, tio.Cflag&unix.CRTSCTS)
	})

	t.Run("unsupported speed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaudRate = 12345
		require.ErrorIs(t, applyTermios(&unix.Termios{}, cfg), ErrInvalidConfig)
	})
}

func TestSignalsFromStatus(t *testing.T) {
	s := signalsFromStatus(unix.TIOCM_CTS | unix.TIOCM_CAR | unix.TIOCM_DTR)
	require.Equal(t, ModemSignals{CTS: true, DCD: true, DTR: true}, s)

	s = signalsFromStatus(unix.TIOCM_DSR | unix.TIOCM_RI | unix.TIOCM_RTS)
	require.Equal(t, ModemSignals{DSR: true, RI: true, RTS: true}, s)
}

func TestErrnoClassification(t *testing.T) {
	tests := []struct {
		errno   unix.Errno
		control bool
		want    error
	}{
		{unix.ENOENT, false, ErrDeviceNotFound},
		{unix.ENODEV, false, ErrDeviceNotFound},
		{unix.ENXIO, false, ErrDeviceNotFound},
		{unix.EACCES, false, ErrPermissionDenied},
		{unix.EPERM, false, ErrPermissionDenied},
		{unix.ENOTTY, true, ErrUnsupported},
		{unix.EINVAL, true, ErrUnsupported},
		{unix.ENOTTY, false, ErrIO},
		{unix.EIO, false, ErrIO},
	}
	for _, tt := range tests {
		err := errnoErr("op", "/dev/x", tt.errno, tt.control)
		require.ErrorIs(t, err, tt.want, "errno %v control=%v", tt.errno, tt.control)
		require.ErrorIs(t, err, tt.errno)
	}
}

func TestOpenDeviceErrors(t *testing.T) {
	_, err := OpenDevice("/dev/does-not-exist-serial", DefaultConfig())
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = OpenDevice("/dev/null", DefaultConfig())
	require.ErrorIs(t, err, ErrDeviceNotFound, "a non-tty is not a serial device")

	cfg := DefaultConfig()
	cfg.DataBits = 9
	_, err = OpenDevice("/dev/null", cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTTYDeviceReadWrite(t *testing.T) {
	master, dev := openPTY(t, DefaultConfig())

	_, err := master.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := dev.Read(buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	n, err = dev.Write([]byte("pong"), time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	got := make([]byte, 64)
	n, err = master.Read(got)
	require.NoError(t, err)
	require.Equal(t, "pong", string(got[:n]))
}

func TestTTYDeviceReadTimeout(t *testing.T) {
	_, dev := openPTY(t, DefaultConfig())

	start := time.Now()
	_, err := dev.Read(make([]byte, 16), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestTTYDeviceInterrupt(t *testing.T) {
	_, dev := openPTY(t, DefaultConfig())

	errCh := make(chan error, 1)
	go func() {
		_, err := dev.Read(make([]byte, 16), 10*time.Second)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, dev.Interrupt())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("read was not interrupted")
	}
}

func TestTTYDeviceHangup(t *testing.T) {
	master, dev := openPTY(t, DefaultConfig())
	require.NoError(t, master.Close())

	_, err := dev.Read(make([]byte, 16), time.Second)
	require.Error(t, err)
	require.Equal(t, ErrIO, KindOf(err))
}

func TestTTYDeviceBuffers(t *testing.T) {
	master, dev := openPTY(t, DefaultConfig())

	_, err := master.Write([]byte("abc"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := dev.BytesToRead()
		return err == nil && n == 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, dev.Clear(ClearInput))
	require.Eventually(t, func() bool {
		n, err := dev.BytesToRead()
		return err == nil && n == 0
	}, time.Second, 10*time.Millisecond)

	_, err = dev.BytesToWrite()
	require.NoError(t, err)
	require.NoError(t, dev.Clear(ClearAll))
}

func TestTTYDeviceReconfigure(t *testing.T) {
	_, dev := openPTY(t, DefaultConfig())

	cfg, err := NewConfig(WithBaudRate(9600), WithParity(ParityEven))
	require.NoError(t, err)
	require.NoError(t, dev.Configure(cfg))

	cfg.BaudRate = 12345
	require.ErrorIs(t, dev.Configure(cfg), ErrInvalidConfig)
}

func TestTTYDeviceModemLinesUnsupportedOnPTY(t *testing.T) {
	_, dev := openPTY(t, DefaultConfig())

	_, err := dev.ModemStatus()
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, dev.SetRTS(true), ErrUnsupported)
}

func TestTTYDeviceCloseTwice(t *testing.T) {
	_, dev := openPTY(t, DefaultConfig())
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
}
