// Package config loads the serialmgr application settings from a YAML file,
// SERIALMGR_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/allbin/go-serialmanager/internal/logging"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SERIALMGR"
	FileName  = "serialmgr"
)

// Keys, also used as flag bindings.
const (
	KeyServerAddr       = "server.addr"
	KeyLogLevel         = "log.level"
	KeyLogPretty        = "log.pretty"
	KeyReadTimeout      = "serial.read_timeout"
	KeyStopTimeout      = "serial.stop_timeout"
	KeyAuthorizeTimeout = "serial.authorize_timeout"
	KeyAllow            = "serial.allow"
	KeyWatchRemovals    = "serial.watch_removals"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Serial SerialConfig `mapstructure:"serial"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type SerialConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	AuthorizeTimeout time.Duration `mapstructure:"authorize_timeout"`
	// Allow holds shell globs of device paths that may be opened. Empty
	// allows every path.
	Allow         []string `mapstructure:"allow"`
	WatchRemovals bool     `mapstructure:"watch_removals"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerAddr, "127.0.0.1:7878")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, true)
	v.SetDefault(KeyReadTimeout, serial.DefaultReadTimeout)
	v.SetDefault(KeyStopTimeout, serial.DefaultStopTimeout)
	v.SetDefault(KeyAuthorizeTimeout, serial.DefaultAuthorizeTimeout)
	v.SetDefault(KeyAllow, []string{})
	v.SetDefault(KeyWatchRemovals, true)
}

// Load reads settings into v and decodes them. An explicit file must exist;
// otherwise serialmgr.yaml is looked up in the working directory and in
// $HOME/.config/serialmgr, and its absence is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	for key, d := range map[string]time.Duration{
		KeyReadTimeout:      c.Serial.ReadTimeout,
		KeyStopTimeout:      c.Serial.StopTimeout,
		KeyAuthorizeTimeout: c.Serial.AuthorizeTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s: must not be negative, got %s", key, d)
		}
	}
	if _, err := serial.AllowPatterns(c.Serial.Allow...); err != nil {
		return fmt.Errorf("%s: %w", KeyAllow, err)
	}
	return nil
}

// RegistryOptions turns the serial settings into registry options.
func (c Config) RegistryOptions() ([]serial.RegistryOption, error) {
	opts := []serial.RegistryOption{}
	if c.Serial.StopTimeout > 0 {
		opts = append(opts, serial.WithStopTimeout(c.Serial.StopTimeout))
	}
	if c.Serial.AuthorizeTimeout > 0 {
		opts = append(opts, serial.WithAuthorizeTimeout(c.Serial.AuthorizeTimeout))
	}
	if len(c.Serial.Allow) > 0 {
		auth, err := serial.AllowPatterns(c.Serial.Allow...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, serial.WithAuthorizer(auth))
	}
	return opts, nil
}

// PortConfig is the default port configuration with the configured read
// timeout applied.
func (c Config) PortConfig() serial.Config {
	cfg := serial.DefaultConfig()
	if c.Serial.ReadTimeout > 0 {
		cfg.ReadTimeout = c.Serial.ReadTimeout
	}
	return cfg
}
