/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/spf13/cobra"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of all modem control signals.

Shows the state of CTS, DSR, RI, DCD, RTS, and DTR signals for the specified port.

Examples:
  serialmgr signals /dev/ttyUSB0
  serialmgr signals /dev/ttyACM0 --baud 9600

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		cfg, err := configFromFlags(cmd)
		if err != nil {
			exitf("Error: %v", err)
		}
		reg, err := openPort(portPath, cfg)
		if err != nil {
			exitf("Error opening port: %v", err)
		}
		defer reg.Shutdown()

		signals, err := reg.ModemSignals(portPath)
		if err != nil {
			exitf("Error reading modem signals: %v", err)
		}

		fmt.Printf("Modem Signals for %s:\n\n", portPath)
		for _, s := range []struct {
			label string
			on    bool
		}{
			{"CTS (Clear To Send):      ", signals.CTS},
			{"DSR (Data Set Ready):     ", signals.DSR},
			{"RI  (Ring Indicator):     ", signals.RI},
			{"DCD (Data Carrier Detect):", signals.DCD},
			{"RTS (Request To Send):    ", signals.RTS},
			{"DTR (Data Terminal Ready):", signals.DTR},
		} {
			fmt.Printf("  %s %s\n", s.label, styles.Level(s.on))
		}
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	addPortFlags(signalsCmd.Flags())
}
