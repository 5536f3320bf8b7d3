// Package logging builds the zerolog loggers used by the CLI and server.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Levels accepted by ParseLevel, most to least quiet.
var Levels = []string{"none", "error", "warn", "info", "debug"}

// ParseLevel maps a level name to a zerolog level. "none" disables logging.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "disabled":
		return zerolog.Disabled, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q (valid: %s)", s, strings.Join(Levels, ", "))
	}
}

// Level is a minimum log level that can be changed while loggers built
// from it are in use.
type Level struct {
	v atomic.Int32
}

func NewLevel(l zerolog.Level) *Level {
	lv := &Level{}
	lv.Set(l)
	return lv
}

func (lv *Level) Set(l zerolog.Level) { lv.v.Store(int32(l)) }

func (lv *Level) Get() zerolog.Level { return zerolog.Level(lv.v.Load()) }

// Run discards events below the current level.
func (lv *Level) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	floor := lv.Get()
	if floor == zerolog.Disabled || level < floor {
		e.Discard()
	}
}

// New returns a logger writing to stderr whose level follows lv. pretty
// selects the human console format instead of JSON lines.
func New(lv *Level, pretty bool) zerolog.Logger {
	return NewWriter(os.Stderr, lv, pretty)
}

func NewWriter(w io.Writer, lv *Level, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Hook(lv).With().Timestamp().Logger()
}
