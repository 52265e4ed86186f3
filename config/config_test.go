package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := LoadConfig()

	assert.Equal(t, "redis", cfg.StoreDriver)
	assert.Equal(t, 20, cfg.AverageWindowSize)
	assert.Equal(t, 90*24*time.Hour, cfg.AverageResetAfter)
	assert.Equal(t, "0 3 * * *", cfg.ResetCronSpec)
	assert.Equal(t, 60*time.Minute, cfg.JoinTokenExpiry)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AVERAGE_WINDOW_SIZE", "5")
	t.Setenv("AVERAGE_RESET_AFTER", "720h")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.AverageWindowSize)
	assert.Equal(t, 30*24*time.Hour, cfg.AverageResetAfter)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AVERAGE_WINDOW_SIZE", "many")
	t.Setenv("PERSIST_TIMEOUT", "soon")
	t.Setenv("ENABLE_METRICS", "perhaps")

	cfg := LoadConfig()

	assert.Equal(t, 20, cfg.AverageWindowSize)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadConfig_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JOIN_BASE_URL=https://queue.example.com/join\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("JOIN_BASE_URL") })

	cfg := LoadConfig()

	assert.Equal(t, "https://queue.example.com/join", cfg.JoinBaseURL)
}
