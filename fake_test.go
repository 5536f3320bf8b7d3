package serial

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice is an in-memory Device. Bytes pushed with feed come back from
// Read in order; fail makes the next Read return an error.
type fakeDevice struct {
	path string
	in   chan []byte
	errs chan error
	wake chan struct{}

	mu           sync.Mutex
	pending      []byte
	written      bytes.Buffer
	cfg          Config
	configures   int
	signals      ModemSignals
	modemErr     error
	configureErr error
	closeErr     error
	breakOn      bool
	cleared      []ClearBuffer

	closed atomic.Int32
}

func newFakeDevice(path string, cfg Config) *fakeDevice {
	return &fakeDevice{
		path: path,
		in:   make(chan []byte, 64),
		errs: make(chan error, 1),
		wake: make(chan struct{}, 1),
		cfg:  cfg,
	}
}

func (d *fakeDevice) feed(b []byte) { d.in <- append([]byte(nil), b...) }

func (d *fakeDevice) fail(err error) { d.errs <- err }

func (d *fakeDevice) Read(buf []byte, timeout time.Duration) (int, error) {
	select {
	case <-d.wake:
	default:
	}

	d.mu.Lock()
	if len(d.pending) > 0 {
		n := copy(buf, d.pending)
		d.pending = d.pending[n:]
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-d.in:
		n := copy(buf, b)
		if n < len(b) {
			d.mu.Lock()
			d.pending = append(d.pending, b[n:]...)
			d.mu.Unlock()
		}
		return n, nil
	case err := <-d.errs:
		return 0, err
	case <-d.wake:
		return 0, errReadCanceled
	case <-timer.C:
		return 0, ErrTimeout
	}
}

func (d *fakeDevice) Write(data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.Write(data)
}

func (d *fakeDevice) writtenString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.String()
}

func (d *fakeDevice) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configureErr != nil {
		return d.configureErr
	}
	d.cfg = cfg
	d.configures++
	return nil
}

func (d *fakeDevice) appliedConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *fakeDevice) SetRTS(level bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.modemErr != nil {
		return d.modemErr
	}
	d.signals.RTS = level
	return nil
}

func (d *fakeDevice) SetDTR(level bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.modemErr != nil {
		return d.modemErr
	}
	d.signals.DTR = level
	return nil
}

func (d *fakeDevice) ModemStatus() (ModemSignals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signals, d.modemErr
}

func (d *fakeDevice) BytesToRead() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending), nil
}

func (d *fakeDevice) BytesToWrite() (int, error) { return 0, nil }

func (d *fakeDevice) Clear(which ClearBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, which)
	if which != ClearOutput {
		d.pending = nil
	}
	return nil
}

func (d *fakeDevice) SetBreak() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakOn = true
	return nil
}

func (d *fakeDevice) ClearBreak() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakOn = false
	return nil
}

func (d *fakeDevice) Interrupt() error {
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed.Add(1)
	return d.closeErr
}

// fakeOpener hands out fakeDevices and counts device-level opens.
type fakeOpener struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	errs    map[string]error
	gate    chan struct{} // when set, open blocks until it is closed
	opens   atomic.Int32

	closeErr map[string]error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		devices:  make(map[string]*fakeDevice),
		errs:     make(map[string]error),
		closeErr: make(map[string]error),
	}
}

func (o *fakeOpener) open(path string, cfg Config) (Device, error) {
	o.opens.Add(1)
	o.mu.Lock()
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.errs[path]; err != nil {
		return nil, err
	}
	d := newFakeDevice(path, cfg)
	d.closeErr = o.closeErr[path]
	o.devices[path] = d
	return d, nil
}

func (o *fakeOpener) device(t *testing.T, path string) *fakeDevice {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.devices[path]
	if !ok {
		t.Fatalf("no device opened for %s", path)
	}
	return d
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu          sync.Mutex
	data        []DataEvent
	disconnects []DisconnectEvent
	disconnCh   chan DisconnectEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{disconnCh: make(chan DisconnectEvent, 64)}
}

func (s *recordingSink) Data(ev DataEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, ev)
}

func (s *recordingSink) Disconnected(ev DisconnectEvent) {
	s.mu.Lock()
	s.disconnects = append(s.disconnects, ev)
	s.mu.Unlock()
	s.disconnCh <- ev
}

func (s *recordingSink) bytesFor(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, ev := range s.data {
		if ev.Path == path {
			out = append(out, ev.Data...)
		}
	}
	return out
}

func (s *recordingSink) disconnectCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.disconnects {
		if ev.Path == path {
			n++
		}
	}
	return n
}
