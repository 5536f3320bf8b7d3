package serial

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DataEvent carries bytes read by a listener, in device order.
type DataEvent struct {
	Path string
	Data []byte
}

// DisconnectEvent reports that a path is no longer connected. Err is nil
// for a requested close and holds the failure for a lost device.
type DisconnectEvent struct {
	Path string
	Err  error
}

// EventSink receives listener output. Implementations must not block for
// long: Data is called from the listener goroutine.
type EventSink interface {
	Data(DataEvent)
	Disconnected(DisconnectEvent)
}

type nopSink struct{}

func (nopSink) Data(DataEvent)               {}
func (nopSink) Disconnected(DisconnectEvent) {}

// ReadEventName is the per-path name of data events.
func ReadEventName(path string) string {
	return "serial-read-" + eventSuffix(path)
}

// DisconnectEventName is the per-path name of disconnect events.
func DisconnectEventName(path string) string {
	return "serial-disconnected-" + eventSuffix(path)
}

var suffixReplacer = strings.NewReplacer("/", "-", ".", "-")

func eventSuffix(path string) string {
	return suffixReplacer.Replace(path)
}

// Event is what a Subscription delivers.
type Event struct {
	Name         string
	Path         string
	Data         []byte
	Disconnected bool
	Err          error
}

const (
	defaultSubscriptionBuffer = 64
	disconnectSendTimeout     = time.Second
)

// Hub fans events out to subscribers. A subscriber that falls behind loses
// data events; disconnect events wait briefly for room.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

var _ EventSink = (*Hub)(nil)

// Subscription receives events for one path, or every path when created
// with an empty path.
type Subscription struct {
	hub     *Hub
	path    string
	send    chan Event
	dropped atomic.Uint64
	done    bool
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers interest in path. An empty path matches all paths.
func (h *Hub) Subscribe(path string) *Subscription {
	sub := &Subscription{hub: h, path: path, send: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.done = true
		close(sub.send)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) Data(ev DataEvent) {
	out := Event{Name: ReadEventName(ev.Path), Path: ev.Path, Data: ev.Data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.matches(ev.Path) {
			continue
		}
		select {
		case sub.send <- out:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (h *Hub) Disconnected(ev DisconnectEvent) {
	out := Event{Name: DisconnectEventName(ev.Path), Path: ev.Path, Disconnected: true, Err: ev.Err}
	h.mu.RLock()
	defer h.mu.RUnlock()
	// One shared deadline bounds the whole fan-out.
	var timer *time.Timer
	expired := false
	for sub := range h.subs {
		if !sub.matches(ev.Path) {
			continue
		}
		select {
		case sub.send <- out:
			continue
		default:
		}
		if expired {
			sub.dropped.Add(1)
			continue
		}
		if timer == nil {
			timer = time.NewTimer(disconnectSendTimeout)
			defer timer.Stop()
		}
		select {
		case sub.send <- out:
		case <-timer.C:
			expired = true
			sub.dropped.Add(1)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.done = true
		close(sub.send)
	}
	clear(h.subs)
}

func (s *Subscription) matches(path string) bool {
	return s.path == "" || s.path == path
}

// C returns the channel for receiving events. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan Event {
	return s.send
}

// Dropped counts events that could not be delivered.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe removes this subscription
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(s.hub.subs, s)
	close(s.send)
}
