package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML durations written as "5s" or "2m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the ingestd daemon configuration, loaded from a YAML file
// with environment-friendly defaults for local development.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Buckets BucketConfig  `yaml:"buckets"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL           string   `yaml:"url"`
	Name          string   `yaml:"name"`
	Timeout       Duration `yaml:"timeout"`
	MaxReconnects int      `yaml:"max_reconnects"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
}

// BucketConfig names the KV buckets backing each document kind.
type BucketConfig struct {
	Messages string `yaml:"messages"`
	Clients  string `yaml:"clients"`
	Channels string `yaml:"channels"`
	Metrics  string `yaml:"metrics"`
	Schema   string `yaml:"schema"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Subject is the NATS subject carrying inbound telemetry.
	Subject string `yaml:"subject"`
	// Workers is the number of concurrent ingestion workers.
	Workers int `yaml:"workers"`
	// QueueSize bounds the in-flight message queue; submissions beyond it
	// are dropped and counted rather than blocking the subscription.
	QueueSize int `yaml:"queue_size"`
	// StoreTimeout bounds each message's end-to-end ingestion.
	StoreTimeout Duration `yaml:"store_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "kapua-ingestd",
			Timeout:       Duration(5 * time.Second),
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Buckets: BucketConfig{
			Messages: "kapua-messages",
			Clients:  "kapua-client-info",
			Channels: "kapua-channel-info",
			Metrics:  "kapua-metric-info",
			Schema:   "kapua-schema",
		},
		Ingest: IngestConfig{
			Subject:      "kapua.telemetry.>",
			Workers:      4,
			QueueSize:    1024,
			StoreTimeout: Duration(10 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the daemon cannot run with
func (c Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Ingest.Subject == "" {
		return fmt.Errorf("ingest.subject is required")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	}
	for name, bucket := range map[string]string{
		"buckets.messages": c.Buckets.Messages,
		"buckets.clients":  c.Buckets.Clients,
		"buckets.channels": c.Buckets.Channels,
		"buckets.metrics":  c.Buckets.Metrics,
		"buckets.schema":   c.Buckets.Schema,
	} {
		if bucket == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}
