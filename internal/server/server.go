// Package server exposes a serial.Registry over WebSocket. Each text frame
// from a client is a dispatch.Request and is answered with a
// dispatch.Response; read and disconnect events for every managed port
// are pushed to every client as they happen.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/dispatch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	writeWait       = 10 * time.Second
	maxMessageSize  = 1 << 20
	sendBuffer      = 64
	shutdownTimeout = 5 * time.Second
)

// EventFrame is pushed to clients for every hub event. Data is base64 in
// JSON; Reason and Code are set on disconnects caused by an error.
type EventFrame struct {
	Event  string `json:"event"`
	Path   string `json:"path"`
	Data   []byte `json:"data,omitempty"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
}

func frameOf(ev serial.Event) EventFrame {
	f := EventFrame{Event: ev.Name, Path: ev.Path, Data: ev.Data}
	if ev.Disconnected {
		f.Reason = "closed"
		if ev.Err != nil {
			f.Reason = ev.Err.Error()
			f.Code = serial.Code(ev.Err)
		}
	}
	return f
}

type Server struct {
	reg  *serial.Registry
	hub  *serial.Hub
	disp *dispatch.Dispatcher
	log  zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func New(reg *serial.Registry, hub *serial.Hub, disp *dispatch.Dispatcher, log zerolog.Logger) *Server {
	return &Server{
		reg:  reg,
		hub:  hub,
		disp: disp,
		log:  log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler serves /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", s.serveHealth)
	return mux
}

// Run serves on addr until ctx is done, then disconnects every client and
// closes every port.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.disconnectAll()
		if cerr := s.reg.CloseAll(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("closing ports")
		}
		s.log.Info().Msg("stopped")
		return err
	})
	return g.Wait()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) disconnectAll() {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		c.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

type health struct {
	Status  string `json:"status"`
	Ports   int    `json:"ports"`
	Clients int    `json:"clients"`
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:  "ok",
		Ports:   len(s.reg.ManagedPortList()),
		Clients: s.Clients(),
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		srv:    s,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		sub:    s.hub.Subscribe(""),
		cancel: cancel,
		log:    s.log.With().Str("remote", r.RemoteAddr).Logger(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		c.sub.Unsubscribe()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	c.log.Debug().Msg("client connected")

	go func() {
		defer s.wg.Done()
		c.run(ctx)
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.log.Debug().Uint64("dropped", c.sub.Dropped()).Msg("client disconnected")
	}()
}
