/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/tui/styles"
	"github.com/spf13/cobra"
)

var (
	monitorSignals  []string
	monitorTimeout  time.Duration
	monitorInterval time.Duration
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Monitor modem signal changes",
	Long: `Monitor modem control signal changes in real-time.

Polls the specified signals and reports when they change state. Press Ctrl+C
to stop. The monitor also stops when the port is removed or closed.

Examples:
  serialmgr monitor /dev/ttyUSB0
  serialmgr monitor /dev/ttyUSB0 --signals cts,dsr
  serialmgr monitor /dev/ttyUSB0 --signals dcd --timeout 30s

Available signals: cts, dsr, ri, dcd`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		if monitorInterval <= 0 {
			exitf("Error: --interval must be positive")
		}
		mask, err := parseSignalMask(monitorSignals)
		if err != nil {
			exitf("Error parsing signals: %v", err)
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
		if appConfig.Serial.WatchRemovals {
			if err := reg.WatchRemovals(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: removal watch unavailable: %v\n", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Monitoring signals on %s (signals: %s)\n", portPath, mask)
		fmt.Println("Press Ctrl+C to stop")

		initial, err := reg.ModemSignals(portPath)
		if err != nil {
			exitf("Error reading initial signals: %v", err)
		}
		printSignals("Initial state", initial, mask)

		if err := watchSignals(ctx, reg, portPath, initial, mask); err != nil {
			exitf("Error: %v", err)
		}
		fmt.Println("\nStopping monitor...")
	},
}

// watchSignals polls until ctx ends, printing every change in mask. A quiet
// period longer than monitorTimeout is reported and the wait starts over.
func watchSignals(ctx context.Context, reg *serial.Registry, path string, last serial.ModemSignals, mask serial.SignalMask) error {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	lastChange := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		signals, err := reg.ModemSignals(path)
		if err != nil {
			if serial.KindOf(err) == serial.ErrNotOpen {
				fmt.Printf("[%s] Port %s is no longer open\n", time.Now().Format("15:04:05"), path)
				return nil
			}
			return fmt.Errorf("reading signals: %w", err)
		}

		if changed := last.Changed(signals, mask); changed != 0 {
			printSignals("Signal change detected", signals, changed)
			last = signals
			lastChange = time.Now()
			continue
		}
		if monitorTimeout > 0 && time.Since(lastChange) >= monitorTimeout {
			fmt.Printf("[%s] Timeout - no signal changes\n", time.Now().Format("15:04:05"))
			lastChange = time.Now()
		}
	}
}

func parseSignalMask(signalNames []string) (serial.SignalMask, error) {
	if len(signalNames) == 0 {
		return serial.AllSignals, nil
	}

	var mask serial.SignalMask
	for _, name := range signalNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cts":
			mask |= serial.SignalCTS
		case "dsr":
			mask |= serial.SignalDSR
		case "ri":
			mask |= serial.SignalRI
		case "dcd":
			mask |= serial.SignalDCD
		default:
			return 0, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
	}
	return mask, nil
}

func printSignals(title string, signals serial.ModemSignals, mask serial.SignalMask) {
	fmt.Printf("[%s] %s:\n", time.Now().Format("15:04:05"), title)
	for _, s := range []struct {
		bit  serial.SignalMask
		name string
		on   bool
	}{
		{serial.SignalCTS, "CTS:", signals.CTS},
		{serial.SignalDSR, "DSR:", signals.DSR},
		{serial.SignalRI, "RI: ", signals.RI},
		{serial.SignalDCD, "DCD:", signals.DCD},
	} {
		if mask&s.bit != 0 {
			fmt.Printf("  %s %s\n", s.name, styles.Level(s.on))
		}
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addPortFlags(monitorCmd.Flags())

	monitorCmd.Flags().StringSliceVarP(&monitorSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to monitor (comma-separated: cts,dsr,ri,dcd)")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0,
		"Report a timeout after this long without changes (0 = never)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 50*time.Millisecond,
		"Signal polling interval")
}
