package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	serial "github.com/allbin/go-serialmanager"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serialmgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7878", cfg.Server.Addr)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, serial.DefaultReadTimeout, cfg.Serial.ReadTimeout)
	require.Equal(t, serial.DefaultStopTimeout, cfg.Serial.StopTimeout)
	require.Equal(t, serial.DefaultAuthorizeTimeout, cfg.Serial.AuthorizeTimeout)
	require.Empty(t, cfg.Serial.Allow)
	require.True(t, cfg.Serial.WatchRemovals)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
log:
  level: debug
  pretty: false
serial:
  read_timeout: 750ms
  stop_timeout: 3s
  allow:
    - /dev/ttyUSB*
    - /dev/ttyACM*
  watch_removals: false
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "debug", cfg.Log.Level)
	require.False(t, cfg.Log.Pretty)
	require.Equal(t, 750*time.Millisecond, cfg.Serial.ReadTimeout)
	require.Equal(t, 3*time.Second, cfg.Serial.StopTimeout)
	require.Equal(t, []string{"/dev/ttyUSB*", "/dev/ttyACM*"}, cfg.Serial.Allow)
	require.False(t, cfg.Serial.WatchRemovals)

	require.Equal(t, 750*time.Millisecond, cfg.PortConfig().ReadTimeout)
	opts, err := cfg.RegistryOptions()
	require.NoError(t, err)
	require.Len(t, opts, 3)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "log:\n  level: warn\n")
	t.Setenv("SERIALMGR_LOG_LEVEL", "error")
	t.Setenv("SERIALMGR_SERVER_ADDR", "0.0.0.0:1")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "error", cfg.Log.Level)
	require.Equal(t, "0.0.0.0:1", cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "log:\n  level: chatty\n"},
		{"negative timeout", "serial:\n  stop_timeout: -1s\n"},
		{"bad pattern", "serial:\n  allow: ['/dev/tty[']\n"},
		{"not yaml", "log: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeFile(t, tt.body))
			require.Error(t, err)
		})
	}

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
