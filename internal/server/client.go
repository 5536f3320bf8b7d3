package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/dispatch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// client is one WebSocket connection. Only writePump writes to conn.
type client struct {
	srv    *Server
	conn   *websocket.Conn
	send   chan []byte
	sub    *serial.Subscription
	cancel context.CancelFunc
	log    zerolog.Logger
}

// run drives the pumps until any of them stops, then releases the
// connection and the subscription.
func (c *client) run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(ctx) })
	g.Go(func() error { return c.eventPump(ctx) })
	g.Go(func() error { return c.writePump(ctx) })
	if err := g.Wait(); err != nil && !isClose(err) {
		c.log.Debug().Err(err).Msg("client ended")
	}
	c.cancel()
	c.sub.Unsubscribe()
}

func isClose(err error) bool {
	return errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (c *client) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return err
		}

		var req dispatch.Request
		var resp dispatch.Response
		if err := json.Unmarshal(msg, &req); err != nil {
			resp = dispatch.Response{Error: &dispatch.Error{Code: dispatch.CodeInvalidArgs, Message: "malformed request: " + err.Error()}}
		} else {
			resp = c.srv.disp.Dispatch(ctx, req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		// Responses are never dropped.
		select {
		case c.send <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// eventPump forwards hub events. A client that cannot keep up loses data
// events, the same way a slow hub subscriber does.
func (c *client) eventPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.sub.C():
			if !ok {
				return nil
			}
			out, err := json.Marshal(frameOf(ev))
			if err != nil {
				return err
			}
			if ev.Disconnected {
				select {
				case c.send <- out:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			select {
			case c.send <- out:
			default:
				c.log.Debug().Str("path", ev.Path).Msg("event dropped")
			}
		}
	}
}

func (c *client) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return ctx.Err()
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
