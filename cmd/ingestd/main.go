// ingestd consumes telemetry messages from NATS and feeds them through
// the datastore mediator, maintaining the message store and its derived
// metadata registries over JetStream KV buckets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/datastore/registry"
	"github.com/TristanCP/kapua/datastore/schema"
	"github.com/TristanCP/kapua/datastore/store"
	"github.com/TristanCP/kapua/health"
	"github.com/TristanCP/kapua/metric"
	"github.com/TristanCP/kapua/natsclient"
	"github.com/TristanCP/kapua/pkg/retry"
	"github.com/TristanCP/kapua/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("ingestd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithLogger(logger),
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
	)
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("nats close failed", "error", err)
		}
	}()

	metricsRegistry := metric.NewMetricsRegistry()

	mediator, err := buildMediator(ctx, client, cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}

	pool := worker.NewPool(cfg.Ingest.Workers, cfg.Ingest.QueueSize,
		func(ctx context.Context, msg *datastore.Message) error {
			storeCtx, cancel := context.WithTimeout(ctx, cfg.Ingest.StoreTimeout.Std())
			defer cancel()

			result, err := mediator.StoreMessage(storeCtx, msg)
			if err != nil {
				logger.Error("message ingestion failed",
					"scope", msg.ScopeID, "client_id", msg.ClientID,
					"channel", msg.Channel, "state", result.State.String(), "error", err)
				return err
			}
			if len(result.Skipped) > 0 {
				logger.Warn("message ingested with skipped properties",
					"message_id", result.MessageID, "skipped", len(result.Skipped))
			}
			return nil
		},
		worker.WithMetrics[*datastore.Message](metricsRegistry, "ingest"),
	)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer func() {
		if err := pool.Stop(30 * time.Second); err != nil {
			logger.Warn("worker pool drain incomplete", "error", err)
		}
	}()

	sub, err := client.Subscribe(ctx, cfg.Ingest.Subject, func(ctx context.Context, data []byte) {
		var msg datastore.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("dropping undecodable telemetry message", "error", err)
			return
		}
		if err := pool.Submit(&msg); err != nil {
			logger.Warn("dropping telemetry message, queue full",
				"scope", msg.ScopeID, "client_id", msg.ClientID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", cfg.Ingest.Subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("unsubscribe failed", "error", err)
		}
	}()

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("nats", "connected to "+cfg.NATS.URL)
	monitor.UpdateHealthy("ingest", "worker pool running")

	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry,
			metric.WithHealthHandler(monitor.Handler("ingestd")))
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	go watchHealth(ctx, client, pool, monitor)

	logger.Info("ingestd started",
		"subject", cfg.Ingest.Subject, "workers", cfg.Ingest.Workers,
		"nats_url", cfg.NATS.URL)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")
	return nil
}

// watchHealth keeps the monitor current with the connection state and the
// ingestion queue's pressure.
func watchHealth(ctx context.Context, client *natsclient.Client, pool *worker.Pool[*datastore.Message], monitor *health.Monitor) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client.IsHealthy() {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateUnhealthy("nats", "connection down")
			}

			stats := pool.Stats()
			switch {
			case stats.QueueDepth >= stats.QueueSize:
				monitor.UpdateUnhealthy("ingest", "queue saturated, dropping messages")
			case stats.QueueDepth > stats.QueueSize/2:
				monitor.UpdateDegraded("ingest", "queue pressure above half capacity")
			default:
				monitor.UpdateHealthy("ingest", "worker pool running")
			}
		}
	}
}

// buildMediator provisions the KV buckets and wires the full facade stack.
func buildMediator(ctx context.Context, client *natsclient.Client, cfg Config, logger *slog.Logger, metricsRegistry *metric.MetricsRegistry) (*datastore.Mediator, error) {
	backend := func(bucket string) (store.Backend, error) {
		// JetStream may not be ready the moment the connection lands, so
		// probe bucket creation with quick retries.
		kv, err := retry.DoWithResult(ctx, retry.Quick(), func() (jetstream.KeyValue, error) {
			return client.CreateKeyValue(ctx, jetstream.KeyValueConfig{
				Bucket:      bucket,
				Description: "kapua datastore bucket",
			})
		})
		if err != nil {
			return nil, fmt.Errorf("provision bucket %s: %w", bucket, err)
		}
		return store.NewKVBackend(client.NewKVStore(kv)), nil
	}

	messagesBackend, err := backend(cfg.Buckets.Messages)
	if err != nil {
		return nil, err
	}
	clientsBackend, err := backend(cfg.Buckets.Clients)
	if err != nil {
		return nil, err
	}
	channelsBackend, err := backend(cfg.Buckets.Channels)
	if err != nil {
		return nil, err
	}
	metricsBackend, err := backend(cfg.Buckets.Metrics)
	if err != nil {
		return nil, err
	}
	schemaBackend, err := backend(cfg.Buckets.Schema)
	if err != nil {
		return nil, err
	}

	facadeMetrics, err := registry.NewMetrics(metricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("register facade metrics: %w", err)
	}
	facadeOpts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithMetrics(facadeMetrics),
	}

	synchronizer, err := schema.NewSynchronizer(schemaBackend,
		schema.WithLogger(logger),
		schema.WithMetrics(metricsRegistry),
	)
	if err != nil {
		return nil, fmt.Errorf("create schema synchronizer: %w", err)
	}

	mediatorMetrics, err := datastore.NewMediatorMetrics(metricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("register mediator metrics: %w", err)
	}

	return datastore.NewMediator(datastore.Dependencies{
		Messages: registry.NewMessageStore(messagesBackend, facadeOpts...),
		Clients:  registry.NewClientInfoRegistry(clientsBackend, facadeOpts...),
		Channels: registry.NewChannelInfoRegistry(channelsBackend, facadeOpts...),
		Metrics:  registry.NewMetricInfoRegistry(metricsBackend, facadeOpts...),
		Schema:   synchronizer,
		Logger:   logger,
	}, datastore.WithMediatorMetrics(mediatorMetrics))
}
