package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/dispatch"
	"github.com/allbin/go-serialmanager/internal/serialtest"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testPath = "/dev/ttyLOOP0"

// frame is either a dispatch.Response or an EventFrame.
type frame struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *dispatch.Error `json:"error"`

	Event  string `json:"event"`
	Path   string `json:"path"`
	Data   []byte `json:"data"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func newTestServer(t *testing.T) (*Server, *serial.Registry) {
	t.Helper()
	bank := &serialtest.Bank{}
	hub := serial.NewHub(16)
	reg := serial.NewRegistry(serial.WithOpener(bank.Open), serial.WithSink(hub))
	srv := New(reg, hub, dispatch.New(reg), zerolog.Nop())
	t.Cleanup(func() {
		srv.disconnectAll()
		_ = reg.Shutdown()
		hub.Close()
	})
	return srv, reg
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, command string, args any) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(dispatch.Request{ID: id, Command: command, Args: raw}))
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func response(id string) func(frame) bool {
	return func(f frame) bool { return f.Event == "" && f.ID == id }
}

func TestHealthz(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := serial.DefaultConfig()
	require.NoError(t, reg.Open(context.Background(), testPath, cfg))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	require.Equal(t, "ok", h.Status)
	require.Equal(t, 1, h.Ports)
}

func TestCommandsAndEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	send(t, conn, "1", "open", map[string]any{"path": testPath, "baudRate": 115200})
	f := readUntil(t, conn, response("1"))
	require.True(t, f.OK, "%+v", f.Error)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 10*time.Millisecond)

	send(t, conn, "2", "start_listening", map[string]any{"path": testPath})
	require.True(t, readUntil(t, conn, response("2")).OK)

	send(t, conn, "3", "write", map[string]any{"path": testPath, "value": "ping"})
	f = readUntil(t, conn, response("3"))
	require.True(t, f.OK)
	require.JSONEq(t, "4", string(f.Result))

	f = readUntil(t, conn, func(f frame) bool { return f.Event != "" })
	require.Equal(t, "serial-read--dev-ttyLOOP0", f.Event)
	require.Equal(t, testPath, f.Path)
	require.Equal(t, []byte("ping"), f.Data)

	send(t, conn, "4", "close", map[string]any{"path": testPath})
	f = readUntil(t, conn, func(f frame) bool { return f.Event == serial.DisconnectEventName(testPath) })
	require.Equal(t, "closed", f.Reason)
	require.Empty(t, f.Code)
}

func TestErrorResponses(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dial(t, ts.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readUntil(t, conn, func(frame) bool { return true })
	require.False(t, f.OK)
	require.Equal(t, dispatch.CodeInvalidArgs, f.Error.Code)

	send(t, conn, "7", "write", map[string]any{"path": testPath, "value": "x"})
	f = readUntil(t, conn, response("7"))
	require.False(t, f.OK)
	require.Equal(t, "not_open", f.Error.Code)

	send(t, conn, "8", "reboot", map[string]any{})
	f = readUntil(t, conn, response("8"))
	require.Equal(t, dispatch.CodeUnknownCommand, f.Error.Code)
}

func TestServeShutdown(t *testing.T) {
	srv, reg := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn := dial(t, "http://"+ln.Addr().String())
	send(t, conn, "1", "open", map[string]any{"path": testPath, "baudRate": 9600})
	require.True(t, readUntil(t, conn, response("1")).OK)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	require.Empty(t, reg.ManagedPortList())
	require.Zero(t, srv.Clients())

	// Clients are sent a going-away close frame.
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
			break
		}
	}
}
