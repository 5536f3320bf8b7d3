/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Starts a background listener on the port and appends every received chunk
to the output file. Runs until interrupted (Ctrl+C) or until the port goes
away.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serialmgr capture /dev/ttyUSB0 data.log
  serialmgr capture /dev/ttyUSB0 output.txt --baud 9600
  serialmgr capture /dev/ttyUSB0 capture.log --console`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		bufferSize, _ := cmd.Flags().GetInt("buffer")
		showConsole, _ := cmd.Flags().GetBool("console")

		cfg, err := configFromFlags(cmd)
		if err != nil {
			exitf("Error: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var console io.Writer
		if showConsole {
			console = os.Stdout
		}
		if err := runCapture(ctx, args[0], args[1], cfg, bufferSize, console); err != nil {
			exitf("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	addPortFlags(captureCmd.Flags())

	captureCmd.Flags().Int("buffer", 4096, "Read buffer size")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
}

// runCapture appends data events for portPath to outputPath, echoing them
// to console when it is not nil.
func runCapture(ctx context.Context, portPath, outputPath string, cfg serial.Config, bufferSize int, console io.Writer) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	hub := serial.NewHub(256)
	defer hub.Close()
	sub := hub.Subscribe(portPath)
	defer sub.Unsubscribe()

	reg, err := openPort(portPath, cfg, serial.WithSink(hub))
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer reg.Shutdown()
	if appConfig.Serial.WatchRemovals {
		if err := reg.WatchRemovals(); err != nil {
			logger.Warn().Err(err).Msg("removal watch unavailable")
		}
	}
	if err := reg.StartListening(portPath, serial.ListenOptions{Size: bufferSize}); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", portPath, outputPath)
	if console != nil {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	var bytesWritten int64
	startTime := time.Now()
	defer func() {
		fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v (%d chunks dropped)\n",
			bytesWritten, time.Since(startTime).Round(time.Millisecond), sub.Dropped())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if ev.Disconnected {
				if ev.Err != nil {
					return fmt.Errorf("port disconnected: %w", ev.Err)
				}
				return nil
			}
			n, err := file.Write(ev.Data)
			bytesWritten += int64(n)
			if err != nil {
				return fmt.Errorf("write error: %w", err)
			}
			if console != nil {
				_, _ = console.Write(ev.Data)
			}
		}
	}
}
