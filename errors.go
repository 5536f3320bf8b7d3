package serial

import (
	"errors"
	"fmt"
)

// Predefined error kinds. Every error returned by a Conn or the Registry
// matches exactly one of the first eight with errors.Is.
var (
	ErrAlreadyOpen      = errors.New("serial port already open")
	ErrNotOpen          = errors.New("serial port not open")
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrTimeout          = errors.New("serial operation timed out")
	ErrIO               = errors.New("serial I/O error")
	ErrUnsupported      = errors.New("operation not supported by serial device")
	ErrInvalidConfig    = errors.New("invalid serial configuration")

	ErrInvalidBaudRate = fmt.Errorf("%w: invalid baud rate", ErrInvalidConfig)

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrAlreadyOpen, "already_open"},
	{ErrNotOpen, "not_open"},
	{ErrDeviceNotFound, "device_not_found"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrTimeout, "timeout"},
	{ErrUnsupported, "unsupported"},
	{ErrInvalidConfig, "invalid_config"},
	{ErrIO, "io_error"},
}

// PortError records the operation and path of a failed call.
type PortError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *PortError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil && e.Err != e.Kind {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Kind.Error()
}

func (e *PortError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind err belongs to. Errors that match no kind
// are reported as ErrIO.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return ErrIO
}

// Code returns a stable, wire-friendly identifier for the kind of err.
func Code(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	for _, k := range kinds {
		if k.err == kind {
			return k.code
		}
	}
	return "io_error"
}

func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PortError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}
	return &PortError{Op: op, Path: path, Kind: KindOf(err), Err: err}
}
