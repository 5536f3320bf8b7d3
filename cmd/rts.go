/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/spf13/cobra"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal can be used for software flow control or custom signaling.

Examples:
  serialmgr rts /dev/ttyUSB0 high
  serialmgr rts /dev/ttyUSB0 low
  serialmgr rts /dev/ttyUSB0 on
  serialmgr rts /dev/ttyUSB0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setLine(cmd, args, "RTS", (*serial.Registry).WriteRTS, func(s serial.ModemSignals) bool { return s.RTS })
	},
}

// setLine drives one output line and reads it back.
func setLine(cmd *cobra.Command, args []string, name string,
	write func(*serial.Registry, string, bool) error, level func(serial.ModemSignals) bool) {
	portPath := args[0]

	state, err := parseSignalState(args[1])
	if err != nil {
		exitf("Error: %v", err)
	}
	cfg, err := configFromFlags(cmd)
	if err != nil {
		exitf("Error: %v", err)
	}

	reg, err := openPort(portPath, cfg)
	if err != nil {
		exitf("Error opening port: %v", err)
	}
	defer reg.Shutdown()

	if err := write(reg, portPath, state); err != nil {
		exitf("Error setting %s: %v", name, err)
	}

	// Verify the state was set
	current := state
	if signals, err := reg.ModemSignals(portPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not verify %s state: %v\n", name, err)
	} else {
		current = level(signals)
	}

	fmt.Printf("%s set to %s on %s\n", name, styles.Level(current), portPath)
}

func init() {
	rootCmd.AddCommand(rtsCmd)
	addPortFlags(rtsCmd.Flags())
}
