package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "visibility.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Learning.MinCitations)
	assert.InDelta(t, 5.0, cfg.Learning.ImprovementThreshold, 0.001)
	assert.Equal(t, 10, cfg.Learning.MaxAutoApply)
	assert.Equal(t, 256, cfg.Sync.QueueSize)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 1000, cfg.Sync.RetryBackoffMs)
	assert.Equal(t, []string{"chatgpt", "claude", "perplexity", "gemini", "copilot"}, cfg.Platforms.Names)
	assert.InDelta(t, 0.05, cfg.Platforms.FailureRate, 0.001)
	assert.Equal(t, 1000, cfg.Scheduler.TickMs)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 100, cfg.Monitoring.BacklogThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/visibility
log:
  level: debug
  format: console
server:
  port: 9090
sync:
  queue_size: 16
  max_attempts: 5
platforms:
  names: [chatgpt, claude]
scheduler:
  disabled: [prediction-accuracy]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/visibility", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Sync.QueueSize)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, []string{"chatgpt", "claude"}, cfg.Platforms.Names)
	assert.Equal(t, []string{"prediction-accuracy"}, cfg.Scheduler.Disabled)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
