/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const openTimeout = 10 * time.Second

// addPortFlags registers the line settings shared by every command that
// opens a port.
func addPortFlags(fs *pflag.FlagSet) {
	fs.IntP("baud", "b", 115200, "Baud rate")
	fs.Int("data-bits", 8, "Data bits: 5, 6, 7 or 8")
	fs.String("parity", "none", "Parity: none, odd, even")
	fs.Int("stop-bits", 1, "Stop bits: 1 or 2")
	fs.StringP("flow-control", "f", "none", "Flow control: none, software, hardware")
	fs.Duration("read-timeout", 0, "Read timeout (0 = serial.read_timeout setting)")
}

// configFromFlags builds the port configuration from the configured
// defaults and the port flags.
func configFromFlags(cmd *cobra.Command) (serial.Config, error) {
	fs := cmd.Flags()
	baud, _ := fs.GetInt("baud")
	dataBits, _ := fs.GetInt("data-bits")
	stopBits, _ := fs.GetInt("stop-bits")
	readTimeout, _ := fs.GetDuration("read-timeout")
	parityName, _ := fs.GetString("parity")
	flowName, _ := fs.GetString("flow-control")

	parity, err := serial.ParseParity(parityName)
	if err != nil {
		return serial.Config{}, err
	}
	flow, err := serial.ParseFlowControl(flowName)
	if err != nil {
		return serial.Config{}, err
	}

	cfg := appConfig.PortConfig()
	opts := []serial.Option{
		serial.WithBaudRate(baud),
		serial.WithDataBits(dataBits),
		serial.WithStopBits(stopBits),
		serial.WithParity(parity),
		serial.WithFlowControl(flow),
	}
	if readTimeout > 0 {
		opts = append(opts, serial.WithReadTimeout(readTimeout))
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return serial.Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// newRegistry builds a registry from the loaded settings. Extra options are
// applied last.
func newRegistry(extra ...serial.RegistryOption) (*serial.Registry, error) {
	opts, err := appConfig.RegistryOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, serial.WithLogger(logger))
	return serial.NewRegistry(append(opts, extra...)...), nil
}

// openPort opens path in a fresh registry for a one-shot command. The
// caller closes the returned registry with Shutdown.
func openPort(path string, cfg serial.Config, extra ...serial.RegistryOption) (*serial.Registry, error) {
	reg, err := newRegistry(extra...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := reg.Open(ctx, path, cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}
