package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.Server.RateLimit.Window)
	assert.Equal(t, DefaultQueueName, cfg.Queue.Name)
	assert.Equal(t, 24*time.Hour, cfg.TTL.Result)
	assert.Equal(t, 5*time.Minute, cfg.TTL.Marker)
	assert.Equal(t, 10*time.Minute, cfg.TTL.Job)
	assert.False(t, cfg.Cache.LegacyScan)
	assert.Equal(t, 700*time.Millisecond, cfg.Upstream.RequestInterval)
	require.Len(t, cfg.Workers, 1)
	assert.Equal(t, 5*time.Second, cfg.Workers[0].Subscriber.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	content := `
app:
  name: hize-worker
  log_level: debug
queue:
  driver: lmstfy
lmstfy:
  host: 127.0.0.1
  token: secret
ttl:
  marker: 2m
workers:
  - name: fast
    subscriber:
      threads: 4
    processor:
      threads: 2
      timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hize-worker", cfg.App.Name)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverLmstfy, cfg.Queue.Driver)
	assert.Equal(t, 2*time.Minute, cfg.TTL.Marker)
	require.Len(t, cfg.Workers, 1)
	assert.Equal(t, 4, cfg.Workers[0].Subscriber.Threads)
	assert.Equal(t, 10*time.Second, cfg.Workers[0].Processor.Timeout)
	assert.Equal(t, 16, cfg.Workers[0].Processor.BufferSize)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "etcd" }},
		{name: "unknown queue", mutate: func(c *Config) { c.Queue.Driver = "kafka" }},
		{name: "lmstfy without token", mutate: func(c *Config) { c.Queue.Driver = DriverLmstfy; c.Lmstfy.Host = "h" }},
		{name: "marker outlives job", mutate: func(c *Config) { c.TTL.Marker = time.Hour }},
		{name: "archive without dsn", mutate: func(c *Config) { c.Archive.Enabled = true }},
		{name: "missing redis", mutate: func(c *Config) { c.Redis.URL = ""; c.Redis.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
