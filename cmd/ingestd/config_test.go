package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "kapua.telemetry.>", cfg.Ingest.Subject)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
nats:
  url: nats://prod:4222
ingest:
  workers: 16
  store_timeout: 30s
buckets:
  messages: custom-messages
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://prod:4222", cfg.NATS.URL)
	assert.Equal(t, 16, cfg.Ingest.Workers)
	assert.Equal(t, 30*time.Second, cfg.Ingest.StoreTimeout.Std())
	assert.Equal(t, "custom-messages", cfg.Buckets.Messages)
	// Untouched sections keep their defaults.
	assert.Equal(t, "kapua-schema", cfg.Buckets.Schema)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.NATS.URL = "" }},
		{"empty subject", func(c *Config) { c.Ingest.Subject = "" }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"negative queue", func(c *Config) { c.Ingest.QueueSize = -1 }},
		{"empty bucket", func(c *Config) { c.Buckets.Schema = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
