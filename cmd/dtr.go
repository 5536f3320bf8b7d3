/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	serial "github.com/allbin/go-serialmanager"
	"github.com/spf13/cobra"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

The DTR signal indicates that the terminal is ready for communication.
Many microcontroller boards reset when DTR is toggled.

Examples:
  serialmgr dtr /dev/ttyUSB0 high
  serialmgr dtr /dev/ttyUSB0 low

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setLine(cmd, args, "DTR", (*serial.Registry).WriteDTR, func(s serial.ModemSignals) bool { return s.DTR })
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
	addPortFlags(dtrCmd.Flags())
}
