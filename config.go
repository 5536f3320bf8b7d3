package serial

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinReadTimeout is the floor applied to every read window.
	MinReadTimeout = 200 * time.Millisecond

	DefaultReadTimeout  = 200 * time.Millisecond
	DefaultWriteTimeout = time.Second

	// DefaultReadSize is used when a read does not specify a size.
	DefaultReadSize = 1024
)

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlSoftware
	FlowControlHardware
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlSoftware:
		return "software"
	case FlowControlHardware:
		return "hardware"
	default:
		return fmt.Sprintf("FlowControl(%d)", int(f))
	}
}

// ParseFlowControl accepts none, software (xonxoff) or hardware (rtscts).
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FlowControlNone, nil
	case "software", "xonxoff", "xon/xoff":
		return FlowControlSoftware, nil
	case "hardware", "rtscts", "rts/cts":
		return FlowControlHardware, nil
	}
	return FlowControlNone, fmt.Errorf("%w: unknown flow control %q", ErrInvalidConfig, s)
}

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// ParseParity accepts none, odd or even (or their first letter).
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	}
	return ParityNone, fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, s)
}

// ClearBuffer selects which buffers ClearBuffer discards.
type ClearBuffer int

const (
	ClearInput ClearBuffer = iota
	ClearOutput
	ClearAll
)

func (c ClearBuffer) String() string {
	switch c {
	case ClearInput:
		return "input"
	case ClearOutput:
		return "output"
	case ClearAll:
		return "all"
	default:
		return fmt.Sprintf("ClearBuffer(%d)", int(c))
	}
}

// ParseClearBuffer accepts input, output or all.
func ParseClearBuffer(s string) (ClearBuffer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in":
		return ClearInput, nil
	case "output", "out":
		return ClearOutput, nil
	case "", "all", "both":
		return ClearAll, nil
	}
	return ClearAll, fmt.Errorf("%w: unknown buffer %q", ErrInvalidConfig, s)
}

// Config holds the configuration for a serial port. It is a value: a Conn
// replaces its snapshot wholesale and never mutates one in place.
type Config struct {
	BaudRate     int
	DataBits     int
	StopBits     int
	Parity       Parity
	FlowControl  FlowControl
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:     115200,
		DataBits:     8,
		StopBits:     1,
		Parity:       ParityNone,
		FlowControl:  FlowControlNone,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Validate reports whether every field is in range.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}
	if c.Parity < ParityNone || c.Parity > ParityEven {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if c.FlowControl < FlowControlNone || c.FlowControl > FlowControlHardware {
		return fmt.Errorf("%w: flow control %d", ErrInvalidConfig, c.FlowControl)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%d %d%s%d flow=%s", c.BaudRate, c.DataBits,
		strings.ToUpper(c.Parity.String()[:1]), c.StopBits, c.FlowControl)
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParityEven {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *Config) error {
		if fc < FlowControlNone || fc > FlowControlHardware {
			return ErrInvalidConfig
		}
		c.FlowControl = fc
		return nil
	}
}

// WithReadTimeout sets the default read window. Values below
// MinReadTimeout are accepted and clamped when a read runs.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithWriteTimeout bounds how long a write may wait for the device.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.WriteTimeout = timeout
		return nil
	}
}

// clampTimeout applies the MinReadTimeout floor.
func clampTimeout(d time.Duration) time.Duration {
	if d < MinReadTimeout {
		return MinReadTimeout
	}
	return d
}
