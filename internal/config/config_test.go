package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "hscompass.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Invoker.TimeoutSecs)
	assert.Equal(t, 3, cfg.Invoker.MaxAttempts)
	assert.InDelta(t, 1.0, cfg.Invoker.InitialBackoffSecs, 0.001)
	assert.InDelta(t, 2.0, cfg.Invoker.BackoffMultiplier, 0.001)
	assert.Equal(t, 5, cfg.Invoker.BreakerThreshold)
	assert.Equal(t, 30, cfg.Invoker.BreakerResetSecs)
	assert.Equal(t, 3, cfg.Classify.TopK)
	assert.Equal(t, 5, cfg.Resolve.MaxAgencies)
	assert.Equal(t, 5, cfg.Resolve.Fanout)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/hscompass
log:
  level: debug
  format: console
server:
  port: 9090
invoker:
  max_attempts: 5
classify:
  top_k: 10
keys:
  usda: test-key
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/hscompass", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Invoker.MaxAttempts)
	assert.Equal(t, 10, cfg.Classify.TopK)
	assert.Equal(t, "test-key", cfg.Keys.USDA)

	// defaults still apply for unset keys
	assert.Equal(t, 5, cfg.Resolve.MaxAgencies)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HSCOMPASS_LOG_LEVEL", "warn")
	t.Setenv("HSCOMPASS_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}
