/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/components"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port with configurable options.

This command sends data to the specified serial port. Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialmgr send /dev/ttyUSB0
- Interactive mode: serialmgr send /dev/ttyUSB0 (prompts for input)

With --response the command waits for a reply and prints what arrives
before the timeout.

Example usage:
  serialmgr send "Hello World" /dev/ttyUSB0
  serialmgr send "AT+GMR" /dev/ttyUSB0 --newline --response 2s
  serialmgr send --hex "de ad be ef" /dev/ttyUSB0
  echo "test" | serialmgr send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		var data, portPath string
		if len(args) == 1 {
			portPath = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					exitf("Error reading from stdin: %v", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data, portPath = args[0], args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		response, _ := cmd.Flags().GetDuration("response")

		payload := []byte(data)
		if hexMode {
			var err error
			if payload, err = components.ParseHex(data); err != nil {
				exitf("Invalid hex data: %v", err)
			}
		} else if addNewline {
			payload = append(payload, '\n')
		}

		cfg, err := configFromFlags(cmd)
		if err != nil {
			exitf("Error: %v", err)
		}
		if err := serial.WithWriteTimeout(timeout)(&cfg); err != nil {
			exitf("Error: %v", err)
		}

		if err := sendData(portPath, cfg, payload, response); err != nil {
			exitf("%s %v", styles.ErrorStyle.Render("✗"), err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addPortFlags(sendCmd.Flags())

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for sending data")
	sendCmd.Flags().Duration("response", 0, "Wait this long for a reply and print it (0 = don't wait)")
}

func promptForData() string {
	fmt.Print(styles.InfoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(portPath string, cfg serial.Config, data []byte, response time.Duration) error {
	fmt.Printf("%s Opening %s...\n", styles.InfoStyle.Render("⚡"), portPath)

	reg, err := openPort(portPath, cfg)
	if err != nil {
		return err
	}
	defer reg.Shutdown()

	fmt.Printf("%s Connected successfully (%s)\n", styles.SuccessStyle.Render("✓"), cfg)
	fmt.Printf("%s Sending %d bytes...\n", styles.InfoStyle.Render("📤"), len(data))

	n, err := reg.Write(portPath, data)
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	fmt.Printf("%s Successfully sent %d bytes\n", styles.SuccessStyle.Render("✓"), n)
	fmt.Printf("%s Data: %s\n", styles.InfoStyle.Render("📋"), preview(data))

	if response <= 0 {
		return nil
	}
	reply, err := reg.ReadFully(portPath, response, serial.DefaultReadSize)
	if err != nil && serial.KindOf(err) != serial.ErrTimeout {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(reply) == 0 {
		fmt.Printf("%s No response within %s\n", styles.MutedStyle.Render("…"), response)
		return nil
	}
	fmt.Printf("%s Response (%d bytes): %s\n", styles.InfoStyle.Render("📥"), len(reply), preview(reply))
	fmt.Printf("   HEX: %s\n", components.HexString(reply))
	return nil
}

// preview shows at most 50 bytes with control bytes masked.
func preview(data []byte) string {
	if len(data) > 50 {
		return components.Printable(data[:50]) + "..."
	}
	return components.Printable(data)
}
