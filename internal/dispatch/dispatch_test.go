package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/logging"
	"github.com/allbin/go-serialmanager/internal/serialtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *serialtest.Bank) {
	t.Helper()
	bank := &serialtest.Bank{Missing: []string{"/dev/missing"}}
	reg := serial.NewRegistry(serial.WithOpener(bank.Open))
	t.Cleanup(func() { _ = reg.Shutdown() })
	return New(reg, opts...), bank
}

func call(t *testing.T, d *Dispatcher, command string, args any) Response {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		require.NoError(t, err)
		raw = b
	}
	return d.Dispatch(context.Background(), Request{ID: "1", Command: command, Args: raw})
}

func mustOK(t *testing.T, resp Response) any {
	t.Helper()
	require.Nil(t, resp.Error)
	require.True(t, resp.OK)
	return resp.Result
}

func requireCode(t *testing.T, resp Response, code string) {
	t.Helper()
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code, resp.Error.Message)
}

type M = map[string]any

func TestOpenWriteRead(t *testing.T) {
	d, bank := newTestDispatcher(t)
	const path = "/dev/ttyLOOP0"

	resp := call(t, d, "open", M{"path": path, "baudRate": 115200, "dataBits": "Eight", "parity": "None", "stopBits": 1, "timeout": 300})
	mustOK(t, resp)
	require.Equal(t, "1", resp.ID)
	require.Equal(t, 115200, bank.Device(path).Config().BaudRate)
	require.Equal(t, 300*time.Millisecond, bank.Device(path).Config().ReadTimeout)

	require.Equal(t, []string{path}, mustOK(t, call(t, d, "managed_ports", nil)))

	require.Equal(t, 5, mustOK(t, call(t, d, "write", M{"path": path, "value": "hello"})))
	require.Equal(t, "hello", mustOK(t, call(t, d, "read", M{"path": path, "timeout": 500})))

	mustOK(t, call(t, d, "write_binary", M{"path": path, "value": []byte{0x00, 0xff, 0x10}}))
	require.Equal(t, []byte{0x00, 0xff}, mustOK(t, call(t, d, "read_binary", M{"path": path, "size": 2})))
	require.Equal(t, 1, mustOK(t, call(t, d, "bytes_to_read", M{"path": path})))
	require.Equal(t, []byte{0x10}, mustOK(t, call(t, d, "read_binary", M{"path": path})))

	mustOK(t, call(t, d, "close", M{"path": path}))
	require.Empty(t, mustOK(t, call(t, d, "managed_ports", nil)))
	require.True(t, bank.Device(path).Closed())
}

func TestReadReplacesInvalidUTF8(t *testing.T) {
	d, _ := newTestDispatcher(t)
	const path = "/dev/ttyLOOP0"
	mustOK(t, call(t, d, "open", M{"path": path, "baudRate": 9600}))
	mustOK(t, call(t, d, "write_binary", M{"path": path, "value": []byte{'o', 'k', 0xff}}))
	require.Equal(t, "ok�", mustOK(t, call(t, d, "read", M{"path": path})))
}

func TestErrorCodes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mustOK(t, call(t, d, "open", M{"path": "/dev/ttyLOOP0", "baudRate": 9600}))

	tests := []struct {
		name    string
		command string
		args    any
		code    string
	}{
		{"unknown command", "format_disk", nil, CodeUnknownCommand},
		{"missing path", "close", M{}, "invalid_config"},
		{"unknown field", "close", M{"path": "/dev/ttyLOOP0", "force": true}, "invalid_config"},
		{"not json object", "close", []int{1}, "invalid_config"},
		{"not open", "write", M{"path": "/dev/ttyLOOP9", "value": "x"}, "not_open"},
		{"already open", "open", M{"path": "/dev/ttyLOOP0", "baudRate": 9600}, "already_open"},
		{"device missing", "open", M{"path": "/dev/missing", "baudRate": 9600}, "device_not_found"},
		{"zero baud", "open", M{"path": "/dev/ttyLOOP1"}, "invalid_config"},
		{"bad data bits", "set_data_bits", M{"path": "/dev/ttyLOOP0", "dataBits": 9}, "invalid_config"},
		{"bad data bits name", "set_data_bits", M{"path": "/dev/ttyLOOP0", "dataBits": "Nine"}, "invalid_config"},
		{"bad parity", "set_parity", M{"path": "/dev/ttyLOOP0", "parity": "mark"}, "invalid_config"},
		{"bad buffer", "clear_buffer", M{"path": "/dev/ttyLOOP0", "bufferType": "middle"}, "invalid_config"},
		{"negative timeout", "read", M{"path": "/dev/ttyLOOP0", "timeout": -1}, "invalid_config"},
		{"zero size", "start_listening", M{"path": "/dev/ttyLOOP0", "size": 0}, "invalid_config"},
		{"nothing to read", "read", M{"path": "/dev/ttyLOOP0", "timeout": 1}, "timeout"},
		{"fixed log level", "set_log_level", M{"level": "debug"}, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, call(t, d, tt.command, tt.args), tt.code)
		})
	}
}

func TestSettersAndSignals(t *testing.T) {
	d, bank := newTestDispatcher(t)
	const path = "/dev/ttyLOOP0"
	mustOK(t, call(t, d, "open", M{"path": path, "baudRate": 9600}))

	mustOK(t, call(t, d, "set_baud_rate", M{"path": path, "baudRate": 57600}))
	mustOK(t, call(t, d, "set_data_bits", M{"path": path, "dataBits": "Seven"}))
	mustOK(t, call(t, d, "set_parity", M{"path": path, "parity": "Even"}))
	mustOK(t, call(t, d, "set_stop_bits", M{"path": path, "stopBits": "Two"}))
	mustOK(t, call(t, d, "set_flow_control", M{"path": path, "flowControl": "Hardware"}))
	mustOK(t, call(t, d, "set_timeout", M{"path": path, "timeout": 1000}))

	cfg := bank.Device(path).Config()
	require.Equal(t, 57600, cfg.BaudRate)
	require.Equal(t, 7, cfg.DataBits)
	require.Equal(t, serial.ParityEven, cfg.Parity)
	require.Equal(t, 2, cfg.StopBits)
	require.Equal(t, serial.FlowControlHardware, cfg.FlowControl)

	detail := mustOK(t, call(t, d, "managed_ports_detail", nil)).([]PortSummary)
	require.Len(t, detail, 1)
	require.Equal(t, "57600 7E2 flow=hardware", detail[0].Config)

	require.Equal(t, false, mustOK(t, call(t, d, "read_clear_to_send", M{"path": path})))
	mustOK(t, call(t, d, "write_request_to_send", M{"path": path, "level": true}))
	require.Equal(t, true, mustOK(t, call(t, d, "read_clear_to_send", M{"path": path})))
	mustOK(t, call(t, d, "write_data_terminal_ready", M{"path": path, "level": true}))
	require.Equal(t, true, mustOK(t, call(t, d, "read_data_set_ready", M{"path": path})))
	require.Equal(t, false, mustOK(t, call(t, d, "read_ring_indicator", M{"path": path})))
	bank.Device(path).SetCarrier(true, false)
	require.Equal(t, true, mustOK(t, call(t, d, "read_carrier_detect", M{"path": path})))

	require.Equal(t, 0, mustOK(t, call(t, d, "bytes_to_write", M{"path": path})))
	mustOK(t, call(t, d, "clear_buffer", M{"path": path, "bufferType": "All"}))
	mustOK(t, call(t, d, "set_break", M{"path": path}))
	mustOK(t, call(t, d, "clear_break", M{"path": path}))
}

func TestListeningCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)
	const path = "/dev/ttyLOOP0"
	mustOK(t, call(t, d, "open", M{"path": path, "baudRate": 9600}))

	mustOK(t, call(t, d, "start_listening", M{"path": path, "timeout": 200, "size": 64}))
	detail := mustOK(t, call(t, d, "managed_ports_detail", nil)).([]PortSummary)
	require.Equal(t, "running", detail[0].Listening)

	mustOK(t, call(t, d, "cancel_read", M{"path": path}))
	mustOK(t, call(t, d, "stop_listening", M{"path": path}))
	mustOK(t, call(t, d, "stop_listening", M{"path": path}))
	mustOK(t, call(t, d, "force_close", M{"path": path}))
	mustOK(t, call(t, d, "force_close", M{"path": path}))
}

func TestCloseAll(t *testing.T) {
	d, bank := newTestDispatcher(t)
	for _, p := range []string{"/dev/ttyLOOP0", "/dev/ttyLOOP1"} {
		mustOK(t, call(t, d, "open", M{"path": p, "baudRate": 9600}))
	}
	mustOK(t, call(t, d, "close_all", nil))
	require.Empty(t, mustOK(t, call(t, d, "managed_ports", nil)))
	require.True(t, bank.Device("/dev/ttyLOOP0").Closed())
	require.True(t, bank.Device("/dev/ttyLOOP1").Closed())
}

func TestAvailablePorts(t *testing.T) {
	ports := []serial.PortInfo{{Name: "ttyUSB0", Path: "/dev/ttyUSB0", Type: serial.PortTypeUSB}}
	d, _ := newTestDispatcher(t, WithPortLister(func() ([]serial.PortInfo, error) { return ports, nil }))
	require.Equal(t, ports, mustOK(t, call(t, d, "available_ports", nil)))

	d, _ = newTestDispatcher(t, WithPortLister(func() ([]serial.PortInfo, error) {
		return nil, &serial.PortError{Op: "list", Kind: serial.ErrPermissionDenied, Err: errors.New("denied")}
	}))
	requireCode(t, call(t, d, "available_ports", nil), "permission_denied")
}

func TestAvailablePortsDirect(t *testing.T) {
	d, _ := newTestDispatcher(t, WithPathLister(func() ([]string, error) {
		return []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil
	}))
	require.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, mustOK(t, call(t, d, "available_ports_direct", nil)))

	d, _ = newTestDispatcher(t, WithPathLister(func() ([]string, error) { return nil, nil }))
	require.Equal(t, []string{}, mustOK(t, call(t, d, "available_ports_direct", nil)))
	require.Contains(t, d.Commands(), "available_ports_direct")
}

func TestSetLogLevel(t *testing.T) {
	lv := logging.NewLevel(zerolog.InfoLevel)
	d, _ := newTestDispatcher(t, WithLevel(lv))

	mustOK(t, call(t, d, "set_log_level", M{"level": "Debug"}))
	require.Equal(t, zerolog.DebugLevel, lv.Get())
	mustOK(t, call(t, d, "set_log_level", M{"level": "None"}))
	require.Equal(t, zerolog.Disabled, lv.Get())

	requireCode(t, call(t, d, "set_log_level", M{"level": "chatty"}), "invalid_config")
	require.Equal(t, zerolog.Disabled, lv.Get())
}

func TestCommandsSorted(t *testing.T) {
	d, _ := newTestDispatcher(t)
	names := d.Commands()
	require.Contains(t, names, "open")
	require.Contains(t, names, "set_log_level")
	require.IsNonDecreasing(t, names)
}
