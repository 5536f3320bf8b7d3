package serial

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ListenerState is the lifecycle position of a listener.
type ListenerState int32

const (
	ListenerStopped ListenerState = iota
	ListenerRunning
	ListenerFailed
)

func (s ListenerState) String() string {
	switch s {
	case ListenerStopped:
		return "stopped"
	case ListenerRunning:
		return "running"
	case ListenerFailed:
		return "failed"
	default:
		return fmt.Sprintf("ListenerState(%d)", int32(s))
	}
}

// ListenOptions tune a listener. Zero values take the connection's read
// timeout and DefaultReadSize.
type ListenOptions struct {
	Size    int
	Timeout time.Duration
}

// listener is the background read loop of one connection.
type listener struct {
	path    string
	conn    *Conn
	sink    EventSink
	size    int
	timeout time.Duration
	log     zerolog.Logger

	// onFatal tears the connection down after a non-timeout read error.
	onFatal func(*listener, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	done  chan struct{}
	state atomic.Int32
}

func newListener(conn *Conn, sink EventSink, opts ListenOptions, log zerolog.Logger, onFatal func(*listener, error)) *listener {
	size := opts.Size
	if size <= 0 {
		size = DefaultReadSize
	}
	return &listener{
		path:    conn.Path(),
		conn:    conn,
		sink:    sink,
		size:    size,
		timeout: clampTimeout(opts.Timeout),
		log:     log,
		onFatal: onFatal,
		done:    make(chan struct{}),
	}
}

func (l *listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// start launches the read loop. It reports false if the listener was
// stopped before it ever ran.
func (l *listener) start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state.Store(int32(ListenerRunning))
	go l.run(ctx)
	return true
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	l.log.Debug().Dur("timeout", l.timeout).Int("size", l.size).Msg("listener started")

	for {
		select {
		case <-ctx.Done():
			l.state.CompareAndSwap(int32(ListenerRunning), int32(ListenerStopped))
			l.log.Debug().Msg("listener stopped")
			return
		default:
		}

		data, err := l.conn.Read(l.timeout, l.size)
		if err != nil {
			if KindOf(err) == ErrTimeout {
				continue
			}
			if ctx.Err() != nil {
				// Closed underneath us while stopping.
				l.state.CompareAndSwap(int32(ListenerRunning), int32(ListenerStopped))
				return
			}
			l.state.Store(int32(ListenerFailed))
			l.log.Warn().Err(err).Msg("listener read failed")
			if l.onFatal != nil {
				l.onFatal(l, err)
			}
			return
		}
		if len(data) > 0 {
			l.sink.Data(DataEvent{Path: l.path, Data: data})
		}
	}
}

// stop cancels the loop and waits up to wait for it to exit. Stopping a
// stopped or never started listener is a no-op.
func (l *listener) stop(wait time.Duration) error {
	if !l.signal() {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return &PortError{Op: "stop listening", Path: l.path, Kind: ErrTimeout,
			Err: fmt.Errorf("listener did not exit within %s", wait)}
	}
}

// signal cancels the loop without waiting and keeps it from starting
// later. It is what a listener uses on itself, since it cannot join its own
// goroutine. It reports whether the loop was ever started.
func (l *listener) signal() bool {
	l.mu.Lock()
	l.stopped = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	_ = l.conn.Interrupt()
	return true
}
