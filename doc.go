// Package serial manages a set of open serial ports on behalf of many
// concurrent callers.
//
// A Registry owns every connection, keyed by device path. Callers never hold
// a connection themselves; each operation names the path and the registry
// looks the connection up, so a port that is closed or lost mid-flight
// simply starts answering ErrNotOpen.
//
// # Basic Usage
//
//	reg := serial.NewRegistry(serial.WithLogger(log))
//	defer reg.Shutdown()
//
//	cfg, err := serial.NewConfig(serial.WithBaudRate(9600))
//	if err != nil {
//	    return err
//	}
//	if err := reg.Open(ctx, "/dev/ttyUSB0", cfg); err != nil {
//	    return err
//	}
//
//	n, err := reg.Write("/dev/ttyUSB0", []byte("AT\r\n"))
//	reply, err := reg.Read("/dev/ttyUSB0", 500*time.Millisecond, 0)
//
// # Listening
//
// StartListening runs a background reader that forwards every chunk of
// data, in device order, to the registry's EventSink. A Hub is the usual
// sink; it fans events out to per-path or wildcard subscriptions:
//
//	hub := serial.NewHub(0)
//	reg := serial.NewRegistry(serial.WithSink(hub))
//	sub := hub.Subscribe("/dev/ttyUSB0")
//	defer sub.Unsubscribe()
//
//	reg.StartListening("/dev/ttyUSB0", serial.ListenOptions{})
//	for ev := range sub.C() {
//	    if ev.Disconnected {
//	        break
//	    }
//	    handle(ev.Data)
//	}
//
// A listener that hits anything other than a timeout tears the connection
// down. Every connection that leaves the registry, for whatever reason,
// produces exactly one disconnect event; its Err is nil for a requested
// close.
//
// # Error Handling
//
// Errors are *PortError values that match one of the sentinel kinds with
// errors.Is:
//
//	if errors.Is(err, serial.ErrAlreadyOpen) {
//	    // someone else owns the port
//	}
//
// Code returns a stable string for the kind, for use on the wire.
//
// # Port Discovery
//
// ListPorts scans /dev; AvailablePorts adds USB metadata from sysfs and the
// platform enumerator. ResetUSBDevice and Registry.Reset recover hung USB
// adapters with the usbreset utility (Linux, root).
//
// # Platform Support
//
// On Linux the device layer talks termios directly. Other platforms go
// through go.bug.st/serial, where byte counts and sustained breaks report
// ErrUnsupported.
package serial
