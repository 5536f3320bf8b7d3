package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/logging"
)

type pathArgs struct {
	Path string `json:"path"`
}

func (a pathArgs) target() string { return a.Path }

type openArgs struct {
	pathArgs
	BaudRate    int     `json:"baudRate"`
	DataBits    *bits   `json:"dataBits,omitempty"`
	FlowControl *string `json:"flowControl,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	StopBits    *bits   `json:"stopBits,omitempty"`
	Timeout     *int64  `json:"timeout,omitempty"`
}

type readArgs struct {
	pathArgs
	Timeout *int64 `json:"timeout,omitempty"`
	Size    *int   `json:"size,omitempty"`
}

type writeArgs struct {
	pathArgs
	Value string `json:"value"`
}

type writeBinaryArgs struct {
	pathArgs
	Value []byte `json:"value"`
}

type baudArgs struct {
	pathArgs
	BaudRate int `json:"baudRate"`
}

type dataBitsArgs struct {
	pathArgs
	DataBits bits `json:"dataBits"`
}

type stopBitsArgs struct {
	pathArgs
	StopBits bits `json:"stopBits"`
}

type flowArgs struct {
	pathArgs
	FlowControl string `json:"flowControl"`
}

type parityArgs struct {
	pathArgs
	Parity string `json:"parity"`
}

type timeoutArgs struct {
	pathArgs
	Timeout int64 `json:"timeout"`
}

type levelArgs struct {
	pathArgs
	Level bool `json:"level"`
}

type clearArgs struct {
	pathArgs
	BufferType string `json:"bufferType"`
}

type logLevelArgs struct {
	Level string `json:"level"`
}

// bits accepts a number or a spelled-out count ("Eight", "Two").
type bits int

var bitWords = map[string]bits{"one": 1, "two": 2, "five": 5, "six": 6, "seven": 7, "eight": 8}

func (b *bits) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*b = bits(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or name, got %s", data)
	}
	v, ok := bitWords[strings.ToLower(s)]
	if !ok {
		return fmt.Errorf("unknown bit count %q", s)
	}
	*b = v
	return nil
}

// PortSummary is one managed port as reported by managed_ports.
type PortSummary struct {
	Path      string `json:"path"`
	Config    string `json:"config"`
	Listening string `json:"listening"`
}

func (d *Dispatcher) routes() map[string]handler {
	reg := d.reg
	return map[string]handler{
		"open": command(d.open),
		"close": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.Close(a.Path)
		}),
		"force_close": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.ForceClose(a.Path)
		}),
		"close_all": func(context.Context, json.RawMessage) (any, error) {
			return nil, reg.CloseAll()
		},
		"managed_ports": func(context.Context, json.RawMessage) (any, error) {
			return reg.ManagedPortList(), nil
		},
		"managed_ports_detail": func(context.Context, json.RawMessage) (any, error) {
			return d.summaries(), nil
		},
		"available_ports": func(context.Context, json.RawMessage) (any, error) {
			return d.ports()
		},
		// The /dev scan alone, without sysfs metadata.
		"available_ports_direct": func(context.Context, json.RawMessage) (any, error) {
			paths, err := d.paths()
			if err != nil {
				return nil, err
			}
			if paths == nil {
				paths = []string{}
			}
			return paths, nil
		},

		"read": command(func(_ context.Context, a readArgs) (any, error) {
			data, err := d.read(a)
			if err != nil {
				return nil, err
			}
			return strings.ToValidUTF8(string(data), "�"), nil
		}),
		"read_binary": command(func(_ context.Context, a readArgs) (any, error) {
			data, err := d.read(a)
			if err != nil {
				return nil, err
			}
			return data, nil
		}),
		"write": command(func(_ context.Context, a writeArgs) (any, error) {
			return reg.Write(a.Path, []byte(a.Value))
		}),
		"write_binary": command(func(_ context.Context, a writeBinaryArgs) (any, error) {
			return reg.Write(a.Path, a.Value)
		}),

		"start_listening": command(func(_ context.Context, a readArgs) (any, error) {
			opts := serial.ListenOptions{}
			timeout, err := millis(a.Timeout)
			if err != nil {
				return nil, err
			}
			opts.Timeout = timeout
			if a.Size != nil {
				if *a.Size <= 0 {
					return nil, fmt.Errorf("%w: size must be positive", errArgs)
				}
				opts.Size = *a.Size
			}
			return nil, reg.StartListening(a.Path, opts)
		}),
		"stop_listening": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.StopListening(a.Path)
		}),
		"cancel_read": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.CancelRead(a.Path)
		}),

		"set_baud_rate": command(func(_ context.Context, a baudArgs) (any, error) {
			return nil, reg.SetBaudRate(a.Path, a.BaudRate)
		}),
		"set_data_bits": command(func(_ context.Context, a dataBitsArgs) (any, error) {
			return nil, reg.SetDataBits(a.Path, int(a.DataBits))
		}),
		"set_stop_bits": command(func(_ context.Context, a stopBitsArgs) (any, error) {
			return nil, reg.SetStopBits(a.Path, int(a.StopBits))
		}),
		"set_flow_control": command(func(_ context.Context, a flowArgs) (any, error) {
			fc, err := serial.ParseFlowControl(a.FlowControl)
			if err != nil {
				return nil, err
			}
			return nil, reg.SetFlowControl(a.Path, fc)
		}),
		"set_parity": command(func(_ context.Context, a parityArgs) (any, error) {
			p, err := serial.ParseParity(a.Parity)
			if err != nil {
				return nil, err
			}
			return nil, reg.SetParity(a.Path, p)
		}),
		"set_timeout": command(func(_ context.Context, a timeoutArgs) (any, error) {
			timeout, err := millis(&a.Timeout)
			if err != nil {
				return nil, err
			}
			return nil, reg.SetTimeout(a.Path, timeout)
		}),

		"write_request_to_send": command(func(_ context.Context, a levelArgs) (any, error) {
			return nil, reg.WriteRTS(a.Path, a.Level)
		}),
		"write_data_terminal_ready": command(func(_ context.Context, a levelArgs) (any, error) {
			return nil, reg.WriteDTR(a.Path, a.Level)
		}),
		"read_clear_to_send": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.ReadCTS(a.Path)
		}),
		"read_data_set_ready": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.ReadDSR(a.Path)
		}),
		"read_ring_indicator": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.ReadRI(a.Path)
		}),
		"read_carrier_detect": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.ReadCD(a.Path)
		}),

		"bytes_to_read": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.BytesToRead(a.Path)
		}),
		"bytes_to_write": command(func(_ context.Context, a pathArgs) (any, error) {
			return reg.BytesToWrite(a.Path)
		}),
		"clear_buffer": command(func(_ context.Context, a clearArgs) (any, error) {
			which, err := serial.ParseClearBuffer(a.BufferType)
			if err != nil {
				return nil, err
			}
			return nil, reg.ClearBuffer(a.Path, which)
		}),
		"set_break": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.SetBreak(a.Path)
		}),
		"clear_break": command(func(_ context.Context, a pathArgs) (any, error) {
			return nil, reg.ClearBreak(a.Path)
		}),

		"set_log_level": command(d.setLogLevel),
	}
}

func (d *Dispatcher) open(ctx context.Context, a openArgs) (any, error) {
	opts := []serial.Option{serial.WithBaudRate(a.BaudRate)}
	if a.DataBits != nil {
		opts = append(opts, serial.WithDataBits(int(*a.DataBits)))
	}
	if a.StopBits != nil {
		opts = append(opts, serial.WithStopBits(int(*a.StopBits)))
	}
	if a.Parity != nil {
		p, err := serial.ParseParity(*a.Parity)
		if err != nil {
			return nil, err
		}
		opts = append(opts, serial.WithParity(p))
	}
	if a.FlowControl != nil {
		fc, err := serial.ParseFlowControl(*a.FlowControl)
		if err != nil {
			return nil, err
		}
		opts = append(opts, serial.WithFlowControl(fc))
	}
	if a.Timeout != nil {
		timeout, err := millis(a.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, serial.WithReadTimeout(timeout))
	}

	cfg := d.defaults
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return nil, d.reg.Open(ctx, a.Path, cfg)
}

func (d *Dispatcher) read(a readArgs) ([]byte, error) {
	timeout, err := millis(a.Timeout)
	if err != nil {
		return nil, err
	}
	size := 0
	if a.Size != nil {
		if *a.Size <= 0 {
			return nil, fmt.Errorf("%w: size must be positive", errArgs)
		}
		size = *a.Size
	}
	return d.reg.Read(a.Path, timeout, size)
}

func (d *Dispatcher) summaries() []PortSummary {
	var out []PortSummary
	for _, path := range d.reg.ManagedPortList() {
		cfg, err := d.reg.Config(path)
		if err != nil {
			continue
		}
		state, err := d.reg.ListenerState(path)
		if err != nil {
			continue
		}
		out = append(out, PortSummary{Path: path, Config: cfg.String(), Listening: state.String()})
	}
	return out
}

func (d *Dispatcher) setLogLevel(_ context.Context, a logLevelArgs) (any, error) {
	if d.level == nil {
		return nil, fmt.Errorf("%w: log level is fixed", serial.ErrUnsupported)
	}
	lv, err := logging.ParseLevel(a.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errArgs, err)
	}
	d.level.Set(lv)
	d.log.Info().Str("level", strings.ToLower(a.Level)).Msg("log level changed")
	return nil, nil
}
