package sqstash

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liliang-cn/sqstash/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqstash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		path := writeConfig(t, `
path: /var/lib/app/stash.db
mode: read-only
strict_types: true
busy_timeout: 2s
log:
  level: debug
  format: json
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/app/stash.db", cfg.Path)
		assert.Equal(t, "read-only", cfg.Mode)
		assert.True(t, cfg.StrictTypes)
		assert.Equal(t, 2*time.Second, cfg.BusyTimeout)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "stderr", cfg.Log.Output, "unset keys keep their defaults")
		assert.Equal(t, core.DefaultConfig().MaxOpenConns, cfg.MaxOpenConns)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := writeConfig(t, "busy_timeout: [1, 2]\n")
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})
}

func TestCoreConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cc, err := DefaultConfig("stash.db").CoreConfig(taskType())
		require.NoError(t, err)
		assert.Equal(t, core.ModeReadWrite, cc.Mode)
		assert.Equal(t, "stash.db", cc.Path)
		assert.Len(t, cc.Types, 1)
		assert.Equal(t, 5*time.Second, cc.BusyTimeout)
		assert.Equal(t, core.NopLogger(), cc.Logger)
	})

	t.Run("Memory", func(t *testing.T) {
		cfg := DefaultConfig("")
		cfg.Mode = "memory"
		cfg.BusyTimeout = time.Second
		cfg.MaxOpenConns = 3
		cc, err := cfg.CoreConfig()
		require.NoError(t, err)
		assert.Equal(t, core.ModeMemory, cc.Mode)
		assert.Equal(t, time.Second, cc.BusyTimeout)
		assert.Equal(t, 3, cc.MaxOpenConns)
	})

	t.Run("Logger", func(t *testing.T) {
		cfg := DefaultConfig("")
		cfg.Log = LogConfig{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "sqstash.log")}
		cc, err := cfg.CoreConfig()
		require.NoError(t, err)
		assert.NotEqual(t, core.NopLogger(), cc.Logger)
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := DefaultConfig("")
		cfg.Log.Level = "chatty"
		_, err := cfg.CoreConfig()
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}
