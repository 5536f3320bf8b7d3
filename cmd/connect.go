/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port>",
	Short: "Connect to a serial port with bidirectional communication",
	Long: `Connect to a serial port with a bidirectional terminal interface.

Everything listen does, plus an input line for sending data. Features include:
- ASCII or hex input (Tab toggles), with command history (Up/Down)
- Per-write status: pending, written or failed
- RTS (r) and DTR (d) toggles and a break signal (b)
- Configurable line ending appended to ASCII input

Example usage:
  serialmgr connect /dev/ttyUSB0
  serialmgr connect /dev/ttyUSB0 --baud 9600 --line-ending crlf
  serialmgr connect /dev/ttyUSB0 --flow-control hardware`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := sessionOptions(cmd, args[0])
		if err != nil {
			exitf("Error: %v", err)
		}
		ending, _ := cmd.Flags().GetString("line-ending")
		if opts.LineEnding, err = parseLineEnding(ending); err != nil {
			exitf("Error: %v", err)
		}
		opts.Interactive = true

		if err := runSession(cmd, opts); err != nil {
			exitf("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	addPortFlags(connectCmd.Flags())
	addSessionFlags(connectCmd.Flags())

	connectCmd.Flags().String("line-ending", "lf", "Appended to ASCII input: none, lf, cr, crlf")
}

func parseLineEnding(s string) (string, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return "", nil
	case "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "crlf":
		return "\r\n", nil
	default:
		return "", fmt.Errorf("invalid line ending %q (valid: none, lf, cr, crlf)", s)
	}
}
