package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "http://localhost:3000", cfg.Remote.BaseURL)
	assert.Empty(t, cfg.Remote.HealthURL)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 10*time.Second, cfg.Sync.DispatchTimeout)
	assert.Equal(t, 15*time.Second, cfg.Sync.ProbeInterval)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 30*24*time.Hour, cfg.Sync.Retention)
	assert.Equal(t, "127.0.0.1:8090", cfg.Agent.Listen)
	assert.Equal(t, ":3000", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.OTel.Enabled())
}

func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	writeFile(t, path, `
data_dir: /var/lib/namazpro
remote:
  base_url: https://api.example.org
  health_url: https://api.example.org/api/health
sync:
  interval: 45s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/namazpro", cfg.DataDir)
	assert.Equal(t, "https://api.example.org", cfg.Remote.BaseURL)
	assert.Equal(t, "https://api.example.org/api/health", cfg.Remote.HealthURL)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Sync.DispatchTimeout)
}

func TestLoad_searchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "namazpro.yaml"), "data_dir: ./found\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./found", cfg.DataDir)
}

func TestLoad_envOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NAMAZPRO_SYNC_INTERVAL", "1m")
	t.Setenv("NAMAZPRO_REMOTE_BASE_URL", "http://remote:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "http://remote:9000", cfg.Remote.BaseURL)
}

func TestLoad_dotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ".env"), "NAMAZPRO_DATA_DIR=/from/dotenv\n")
	t.Cleanup(func() { os.Unsetenv("NAMAZPRO_DATA_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.DataDir)
}

func TestLoad_missingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}

func TestLoad_invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "sync:\n  interval: 0s\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty remote", func(c *Config) { c.Remote.BaseURL = "" }},
		{"zero dispatch timeout", func(c *Config) { c.Sync.DispatchTimeout = 0 }},
		{"zero probe interval", func(c *Config) { c.Sync.ProbeInterval = 0 }},
		{"zero probe timeout", func(c *Config) { c.Sync.ProbeTimeout = 0 }},
		{"zero retries", func(c *Config) { c.Sync.MaxRetries = 0 }},
		{"negative retention", func(c *Config) { c.Sync.Retention = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatch_reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	var (
		mu     sync.Mutex
		latest *Config
	)
	cfg, err := Watch(path, func(next *Config, _ fsnotify.Event, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		latest = next
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)

	writeFile(t, path, "log:\n  level: debug\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.Log.Level == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_noFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Watch("", func(*Config, fsnotify.Event, error) {
		t.Error("onChange should not be called without a config file")
	})
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
}
