/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/dispatch"
	"github.com/allbin/go-serialmanager/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the port registry over WebSocket",
	Long: `Run the connection manager as a service.

Clients connect to ws://<addr>/ws and send JSON requests of the form
{"id": 1, "command": "open", "args": {"path": "/dev/ttyUSB0", "baudRate": 9600}}.
Each request is answered with {"id": 1, "ok": true, "result": ...} or an
error object with a code. Every client also receives
serial-read-<path> and serial-disconnected-<path> events for all
managed ports. GET /healthz reports the number of open ports.

On SIGINT or SIGTERM clients are disconnected and every port is closed.

Example usage:
  serialmgr serve
  serialmgr serve --addr 0.0.0.0:7878 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.With().Str("component", "serve").Logger()

		hub := serial.NewHub(256)
		defer hub.Close()

		reg, err := newRegistry(serial.WithSink(hub))
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		if appConfig.Serial.WatchRemovals {
			if err := reg.WatchRemovals(); err != nil {
				log.Warn().Err(err).Msg("removal watch unavailable")
			}
		}

		disp := dispatch.New(reg,
			dispatch.WithLevel(logLevel),
			dispatch.WithLogger(logger),
			dispatch.WithDefaults(appConfig.PortConfig()),
		)
		srv := server.New(reg, hub, disp, logger)

		log.Info().
			Str("addr", appConfig.Server.Addr).
			Strs("allow", appConfig.Serial.Allow).
			Int("commands", len(disp.Commands())).
			Msg("starting")
		if err := srv.Run(ctx, appConfig.Server.Addr); err != nil {
			log.Error().Err(err).Msg("server failed")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:7878", "Listen address for the WebSocket server")
}
