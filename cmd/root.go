/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/allbin/go-serialmanager/internal/config"
	"github.com/allbin/go-serialmanager/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig config.Config
	logLevel  = logging.NewLevel(zerolog.InfoLevel)
	logger    = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialmgr",
	Short: "Manage serial port connections",
	Long: `serialmgr keeps a registry of open serial ports and exposes it on the
command line and over a WebSocket command interface.

Settings are read from serialmgr.yaml (working directory or
$HOME/.config/serialmgr), SERIALMGR_* environment variables and flags.

Examples:
  serialmgr list --table
  serialmgr listen /dev/ttyUSB0 --baud 9600
  serialmgr serve --addr 127.0.0.1:7878`,
	SilenceUsage: true,
}

// persistentPreRun loads configuration and sets up logging before every command.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if err := v.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyLogPretty, rootCmd.PersistentFlags().Lookup("log-pretty")); err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("addr"); f != nil {
		if err := v.BindPFlag(config.KeyServerAddr, f); err != nil {
			return err
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	lv, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logLevel.Set(lv)
	logger = logging.New(logLevel, cfg.Log.Pretty)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRun
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./serialmgr.yaml or $HOME/.config/serialmgr/serialmgr.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: none, error, warn, info, debug")
	rootCmd.PersistentFlags().Bool("log-pretty", true, "Human readable log output instead of JSON lines")
}

// exitf reports a fatal command error the way every subcommand does.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
