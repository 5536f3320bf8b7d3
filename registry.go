package serial

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout is how long stopping a listener waits beyond its read
// timeout before giving up.
const DefaultStopTimeout = 2 * time.Second

// entry is one path in the registry. conn is nil while the device is still
// being opened.
type entry struct {
	gen  uint64
	conn *Conn

	// listenMu serializes starting and stopping listeners on this entry.
	listenMu sync.Mutex
	worker   atomic.Pointer[listener]

	closing  atomic.Bool
	teardown sync.Once
	err      error
}

// Registry owns every open connection, keyed by device path. At most one
// connection exists per path. All access to a Conn goes through the
// registry, which looks it up under lock and then releases the lock before
// doing any I/O.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64

	opener      Opener
	sink        EventSink
	auth        Authorizer
	authTimeout time.Duration
	stopTimeout time.Duration
	log         zerolog.Logger

	watcher atomic.Pointer[removalWatcher]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOpener replaces the device opener. Tests use it to inject fakes.
func WithOpener(o Opener) RegistryOption {
	return func(r *Registry) { r.opener = o }
}

// WithSink sets where listener data and disconnect events go.
func WithSink(s EventSink) RegistryOption {
	return func(r *Registry) { r.sink = s }
}

// WithAuthorizer requires every Open to be authorized first.
func WithAuthorizer(a Authorizer) RegistryOption {
	return func(r *Registry) { r.auth = a }
}

func WithAuthorizeTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.authTimeout = d }
}

func WithStopTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.stopTimeout = d }
}

func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry),
		opener:      OpenDevice,
		sink:        nopSink{},
		authTimeout: DefaultAuthorizeTimeout,
		stopTimeout: DefaultStopTimeout,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = nopSink{}
	}
	return r
}

// Open opens path with cfg and registers it. Opening a path that is already
// registered, or is being opened, fails with ErrAlreadyOpen without touching
// the device. On any failure the registry is unchanged.
func (r *Registry) Open(ctx context.Context, path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return wrapErr("open", path, err)
	}
	if err := authorize(ctx, r.auth, path, r.authTimeout); err != nil {
		r.log.Warn().Str("path", path).Err(err).Msg("open not authorized")
		return err
	}

	r.mu.Lock()
	if _, ok := r.entries[path]; ok {
		r.mu.Unlock()
		return &PortError{Op: "open", Path: path, Kind: ErrAlreadyOpen}
	}
	r.gen++
	e := &entry{gen: r.gen}
	r.entries[path] = e
	r.mu.Unlock()

	dev, err := r.opener(path, cfg)
	if err != nil {
		r.mu.Lock()
		if r.entries[path] == e {
			delete(r.entries, path)
		}
		r.mu.Unlock()
		r.log.Debug().Str("path", path).Err(err).Msg("open failed")
		return wrapErr("open", path, err)
	}

	r.mu.Lock()
	if r.entries[path] != e {
		// Force-closed while the device was opening.
		r.mu.Unlock()
		dev.Close()
		return &PortError{Op: "open", Path: path, Kind: ErrNotOpen, Err: fmt.Errorf("closed while opening")}
	}
	e.conn = newConn(path, dev, cfg)
	r.mu.Unlock()

	if w := r.watcher.Load(); w != nil {
		w.add(path)
	}
	r.log.Info().Str("path", path).Stringer("config", cfg).Uint64("gen", e.gen).Msg("port opened")
	return nil
}

// lookup returns the ready entry for path.
func (r *Registry) lookup(op, path string) (*entry, *Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok || e.conn == nil {
		return nil, nil, &PortError{Op: op, Path: path, Kind: ErrNotOpen}
	}
	return e, e.conn, nil
}

// withConn is the single path from a registry operation to a connection.
func withConn[T any](r *Registry, op, path string, fn func(*Conn) (T, error)) (T, error) {
	_, conn, err := r.lookup(op, path)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(conn)
}

func withConnErr(r *Registry, op, path string, fn func(*Conn) error) error {
	_, err := withConn(r, op, path, func(c *Conn) (struct{}, error) {
		return struct{}{}, fn(c)
	})
	return err
}

// Close stops any listener, closes the device and removes path. Closing a
// path that is not registered, or is still being opened, succeeds.
func (r *Registry) Close(path string) error {
	r.mu.Lock()
	e, ok := r.entries[path]
	ready := ok && e.conn != nil
	r.mu.Unlock()
	if !ready {
		return nil
	}
	return r.teardown(path, e, nil)
}

// ForceClose is Close without conditions: it also abandons an open that is
// still in progress, whose device is then closed as soon as it appears.
func (r *Registry) ForceClose(path string) error {
	r.mu.Lock()
	e, ok := r.entries[path]
	if ok && e.conn == nil {
		delete(r.entries, path)
		r.mu.Unlock()
		r.log.Debug().Str("path", path).Msg("abandoned pending open")
		return nil
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.teardown(path, e, nil)
}

// CloseAll closes every registered path. Every path is attempted; the
// failures are joined. The registry is empty afterwards.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	type target struct {
		path string
		e    *entry
	}
	targets := make([]target, 0, len(r.entries))
	for p, e := range r.entries {
		if e.conn != nil {
			targets = append(targets, target{p, e})
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, t := range targets {
		if err := r.teardown(t.path, t.e, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// teardown removes e, stops its listener, closes its connection and emits
// one disconnect event. Only the first call per entry does any work; later
// calls wait for it and return its result. cause is nil for a requested
// close.
func (r *Registry) teardown(path string, e *entry, cause error) error {
	e.teardown.Do(func() {
		e.closing.Store(true)

		r.mu.Lock()
		if cur, ok := r.entries[path]; ok && cur.gen == e.gen {
			delete(r.entries, path)
		}
		conn := e.conn
		r.mu.Unlock()

		var errs []error
		if w := e.worker.Swap(nil); w != nil {
			if w.State() == ListenerFailed {
				// The worker is the caller, or is about to return.
				w.signal()
			} else if err := w.stop(r.stopWait(w)); err != nil {
				errs = append(errs, err)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if w := r.watcher.Load(); w != nil {
			w.remove(path)
		}

		e.err = errors.Join(errs...)
		var ev *zerolog.Event
		if cause != nil {
			ev = r.log.Warn().AnErr("cause", cause)
		} else {
			ev = r.log.Info()
		}
		ev.Str("path", path).Uint64("gen", e.gen).Err(e.err).Msg("port closed")

		r.sink.Disconnected(DisconnectEvent{Path: path, Err: cause})
	})
	return e.err
}

func (r *Registry) stopWait(l *listener) time.Duration {
	return l.timeout + r.stopTimeout
}

// ManagedPorts yields the registered paths as of the moment iteration
// starts. Each range over the result takes a fresh snapshot.
func (r *Registry) ManagedPorts() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range r.ManagedPortList() {
			if !yield(p) {
				return
			}
		}
	}
}

// ManagedPortList returns the registered paths, sorted.
func (r *Registry) ManagedPortList() []string {
	r.mu.Lock()
	paths := make([]string, 0, len(r.entries))
	for p, e := range r.entries {
		if e.conn != nil {
			paths = append(paths, p)
		}
	}
	r.mu.Unlock()
	slices.Sort(paths)
	return paths
}

// IsOpen reports whether path is registered and ready.
func (r *Registry) IsOpen(path string) bool {
	_, _, err := r.lookup("", path)
	return err == nil
}

// Config returns the configuration snapshot of path.
func (r *Registry) Config(path string) (Config, error) {
	return withConn(r, "config", path, (*Conn).Config)
}

// StartListening starts a background reader on path that forwards data to
// the sink. A listener already running on path is stopped first.
func (r *Registry) StartListening(path string, opts ListenOptions) error {
	e, conn, err := r.lookup("start listening", path)
	if err != nil {
		return err
	}

	e.listenMu.Lock()
	defer e.listenMu.Unlock()

	if old := e.worker.Swap(nil); old != nil {
		if err := old.stop(r.stopWait(old)); err != nil {
			return err
		}
	}

	if opts.Timeout <= 0 {
		cfg, err := conn.Config()
		if err != nil {
			return wrapErr("start listening", path, err)
		}
		opts.Timeout = cfg.ReadTimeout
	}
	l := newListener(conn, r.sink, opts, r.log.With().Str("path", path).Logger(), r.onListenerFailure(path, e))
	e.worker.Store(l)
	// A close that swapped l out before it started leaves it stopped.
	if e.closing.Load() || !l.start() {
		e.worker.CompareAndSwap(l, nil)
		return &PortError{Op: "start listening", Path: path, Kind: ErrNotOpen}
	}
	return nil
}

// onListenerFailure tears the entry down after a fatal read error, unless a
// close is already doing so.
func (r *Registry) onListenerFailure(path string, e *entry) func(*listener, error) {
	return func(l *listener, err error) {
		if e.closing.Load() {
			return
		}
		e.worker.CompareAndSwap(l, nil)
		_ = r.teardown(path, e, err)
	}
}

// StopListening stops the listener on path, if any, and waits for it.
func (r *Registry) StopListening(path string) error {
	e, _, err := r.lookup("stop listening", path)
	if err != nil {
		return err
	}
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	if w := e.worker.Swap(nil); w != nil {
		return w.stop(r.stopWait(w))
	}
	return nil
}

// CancelRead stops the listener on path and wakes any read in progress.
func (r *Registry) CancelRead(path string) error {
	if err := r.StopListening(path); err != nil {
		return err
	}
	return withConnErr(r, "cancel read", path, (*Conn).Interrupt)
}

// ListenerState reports the state of the listener on path.
func (r *Registry) ListenerState(path string) (ListenerState, error) {
	e, _, err := r.lookup("listener state", path)
	if err != nil {
		return ListenerStopped, err
	}
	if w := e.worker.Load(); w != nil {
		return w.State(), nil
	}
	return ListenerStopped, nil
}

func (r *Registry) Read(path string, timeout time.Duration, size int) ([]byte, error) {
	return withConn(r, "read", path, func(c *Conn) ([]byte, error) {
		return c.Read(timeout, size)
	})
}

func (r *Registry) ReadFully(path string, timeout time.Duration, size int) ([]byte, error) {
	return withConn(r, "read", path, func(c *Conn) ([]byte, error) {
		return c.ReadFully(timeout, size)
	})
}

func (r *Registry) Write(path string, data []byte) (int, error) {
	return withConn(r, "write", path, func(c *Conn) (int, error) {
		return c.Write(data)
	})
}

func (r *Registry) SetBaudRate(path string, rate int) error {
	return withConnErr(r, "set baud rate", path, func(c *Conn) error { return c.SetBaudRate(rate) })
}

func (r *Registry) SetDataBits(path string, bits int) error {
	return withConnErr(r, "set data bits", path, func(c *Conn) error { return c.SetDataBits(bits) })
}

func (r *Registry) SetParity(path string, p Parity) error {
	return withConnErr(r, "set parity", path, func(c *Conn) error { return c.SetParity(p) })
}

func (r *Registry) SetStopBits(path string, bits int) error {
	return withConnErr(r, "set stop bits", path, func(c *Conn) error { return c.SetStopBits(bits) })
}

func (r *Registry) SetFlowControl(path string, fc FlowControl) error {
	return withConnErr(r, "set flow control", path, func(c *Conn) error { return c.SetFlowControl(fc) })
}

func (r *Registry) SetTimeout(path string, timeout time.Duration) error {
	return withConnErr(r, "set timeout", path, func(c *Conn) error { return c.SetTimeout(timeout) })
}

func (r *Registry) WriteRTS(path string, level bool) error {
	return withConnErr(r, "write rts", path, func(c *Conn) error { return c.WriteRTS(level) })
}

func (r *Registry) WriteDTR(path string, level bool) error {
	return withConnErr(r, "write dtr", path, func(c *Conn) error { return c.WriteDTR(level) })
}

func (r *Registry) ReadCTS(path string) (bool, error) {
	return withConn(r, "read cts", path, (*Conn).ReadCTS)
}

func (r *Registry) ReadDSR(path string) (bool, error) {
	return withConn(r, "read dsr", path, (*Conn).ReadDSR)
}

func (r *Registry) ReadRI(path string) (bool, error) {
	return withConn(r, "read ri", path, (*Conn).ReadRI)
}

func (r *Registry) ReadCD(path string) (bool, error) {
	return withConn(r, "read cd", path, (*Conn).ReadCD)
}

func (r *Registry) ModemSignals(path string) (ModemSignals, error) {
	return withConn(r, "modem status", path, (*Conn).ModemSignals)
}

func (r *Registry) BytesToRead(path string) (int, error) {
	return withConn(r, "bytes to read", path, (*Conn).BytesToRead)
}

func (r *Registry) BytesToWrite(path string) (int, error) {
	return withConn(r, "bytes to write", path, (*Conn).BytesToWrite)
}

func (r *Registry) ClearBuffer(path string, which ClearBuffer) error {
	return withConnErr(r, "clear buffer", path, func(c *Conn) error { return c.ClearBuffer(which) })
}

func (r *Registry) SetBreak(path string) error {
	return withConnErr(r, "set break", path, (*Conn).SetBreak)
}

func (r *Registry) ClearBreak(path string) error {
	return withConnErr(r, "clear break", path, (*Conn).ClearBreak)
}

// Shutdown stops removal watching and closes every port.
func (r *Registry) Shutdown() error {
	var errs []error
	if w := r.watcher.Swap(nil); w != nil {
		if err := w.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
