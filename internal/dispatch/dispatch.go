// Package dispatch maps named commands with JSON arguments onto a
// serial.Registry. It is the transport-independent half of the server.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/logging"
	"github.com/rs/zerolog"
)

// Error codes beyond the serial error kinds.
const (
	CodeUnknownCommand = "unknown_command"
	CodeInvalidArgs    = "invalid_config"
)

// Request is one command invocation. Args is a JSON object whose fields
// depend on the command.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Dispatcher runs commands against a registry.
type Dispatcher struct {
	reg      *serial.Registry
	level    *logging.Level
	log      zerolog.Logger
	defaults serial.Config
	ports    func() ([]serial.PortInfo, error)
	paths    func() ([]string, error)

	handlers map[string]handler
}

type Option func(*Dispatcher)

// WithLevel lets set_log_level change lv.
func WithLevel(lv *logging.Level) Option {
	return func(d *Dispatcher) { d.level = lv }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithDefaults sets the configuration open starts from.
func WithDefaults(cfg serial.Config) Option {
	return func(d *Dispatcher) { d.defaults = cfg }
}

// WithPortLister replaces serial.AvailablePorts for available_ports.
func WithPortLister(fn func() ([]serial.PortInfo, error)) Option {
	return func(d *Dispatcher) { d.ports = fn }
}

// WithPathLister replaces serial.ListPorts for available_ports_direct.
func WithPathLister(fn func() ([]string, error)) Option {
	return func(d *Dispatcher) { d.paths = fn }
}

func New(reg *serial.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		log:      zerolog.Nop(),
		defaults: serial.DefaultConfig(),
		ports:    serial.AvailablePorts,
		paths:    serial.ListPorts,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = d.routes()
	return d
}

// Commands lists the command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs req and never fails: errors are carried in the Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	h, ok := d.handlers[req.Command]
	if !ok {
		return Response{ID: req.ID, Error: &Error{Code: CodeUnknownCommand, Message: fmt.Sprintf("unknown command %q", req.Command)}}
	}

	start := time.Now()
	result, err := h(ctx, req.Args)
	ev := d.log.Debug()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("command", req.Command).Dur("took", time.Since(start)).Msg("command handled")

	if err != nil {
		return Response{ID: req.ID, Error: toError(err)}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

var errArgs = errors.New("bad arguments")

func toError(err error) *Error {
	if errors.Is(err, errArgs) {
		return &Error{Code: CodeInvalidArgs, Message: err.Error()}
	}
	return &Error{Code: serial.Code(err), Message: err.Error()}
}

// decode parses raw into a T. Unknown fields are rejected.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", errArgs, err)
	}
	return v, nil
}

// pathed is implemented by argument structs that carry a path.
type pathed interface{ target() string }

// command adapts a typed handler, checking the path when the arguments
// carry one.
func command[T any](fn func(context.Context, T) (any, error)) handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		if p, ok := any(args).(pathed); ok && strings.TrimSpace(p.target()) == "" {
			return nil, fmt.Errorf("%w: path is required", errArgs)
		}
		return fn(ctx, args)
	}
}

func millis(ms *int64) (time.Duration, error) {
	if ms == nil {
		return 0, nil
	}
	if *ms < 0 {
		return 0, fmt.Errorf("%w: timeout must not be negative", errArgs)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}
