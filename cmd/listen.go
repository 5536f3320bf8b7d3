/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/logging"
	"github.com/allbin/go-serialmanager/internal/tui/components"
	"github.com/allbin/go-serialmanager/internal/tui/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Listen for data on a serial port with real-time display",
	Long: `Listen for incoming data on a serial port with a real-time TUI display.

This command opens the specified serial port, starts a background listener
and displays incoming data as it arrives. Features include:
- Real-time data streaming with timestamps
- ASCII and hex display modes, and a table view (v)
- Pausing and resuming the listener (p)
- Modem signal monitoring
- Connection status indicators

Example usage:
  serialmgr listen /dev/ttyUSB0
  serialmgr listen /dev/ttyUSB0 --baud 9600
  serialmgr listen /dev/ttyUSB0 --hex --no-timestamps`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := sessionOptions(cmd, args[0])
		if err != nil {
			exitf("Error: %v", err)
		}
		if err := runSession(cmd, opts); err != nil {
			exitf("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	addPortFlags(listenCmd.Flags())
	addSessionFlags(listenCmd.Flags())
}

// addSessionFlags registers the display and listener flags shared by
// listen and connect.
func addSessionFlags(fs *pflag.FlagSet) {
	fs.Bool("no-timestamps", false, "Hide timestamps from output")
	fs.Bool("hex", false, "Show received data as hex")
	fs.Bool("no-ascii", false, "Hide the ASCII rendering of received data")
	fs.Int("chunk", serial.DefaultReadSize, "Maximum bytes per received chunk")
	fs.Duration("signal-poll", 250*time.Millisecond, "Modem signal polling interval (0 = off)")
	fs.String("log-file", "", "Write logs to this file while the UI is running")
}

func sessionOptions(cmd *cobra.Command, path string) (models.Options, error) {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return models.Options{}, err
	}
	fs := cmd.Flags()
	noTimestamps, _ := fs.GetBool("no-timestamps")
	hexMode, _ := fs.GetBool("hex")
	noASCII, _ := fs.GetBool("no-ascii")
	chunk, _ := fs.GetInt("chunk")
	signalPoll, _ := fs.GetDuration("signal-poll")

	return models.Options{
		Path:       path,
		Config:     cfg,
		Listen:     serial.ListenOptions{Size: chunk},
		SignalPoll: signalPoll,
		Display: components.DisplayMode{
			ShowHex:        hexMode,
			ShowASCII:      !noASCII,
			ShowTimestamps: !noTimestamps,
		},
	}, nil
}

// runSession runs the terminal UI for one port until the user quits.
func runSession(cmd *cobra.Command, opts models.Options) error {
	// The UI owns the terminal, so logs go to a file or nowhere.
	sessionLog := zerolog.Nop()
	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		sessionLog = logging.NewWriter(f, logLevel, false)
	}

	hub := serial.NewHub(256)
	defer hub.Close()

	reg, err := newRegistry(serial.WithSink(hub), serial.WithLogger(sessionLog))
	if err != nil {
		return err
	}
	defer reg.Shutdown()
	if appConfig.Serial.WatchRemovals {
		if err := reg.WatchRemovals(); err != nil {
			sessionLog.Warn().Err(err).Msg("removal watch unavailable")
		}
	}

	session := models.NewSession(reg, hub, opts)
	defer session.Close()

	p := tea.NewProgram(session, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}
