package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/audit"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/bridge"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/dish"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/starlink-mqtt-bridge/migrations"
)

// runBridge wires the dish, broker and optional sinks together and runs the
// bridge until ctx is cancelled or a single-shot poll completes.
//
// Startup failures are returned. Once running, dish and broker failures are
// retried with backoff and never end the process.
func runBridge(ctx context.Context, args []string) error {
	flags := newOverrides("run", true)
	if err := flags.parse(args); err != nil {
		return err
	}

	cfg, path, err := flags.load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting dish bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	if path != "" {
		log.Info("configuration loaded", "path", path)
	}

	dishClient, err := dish.Dial(ctx, dish.Options{
		Address:    cfg.Dish.Address,
		SchemaFile: cfg.Dish.SchemaFile,
	})
	if err != nil {
		return fmt.Errorf("connecting to dish: %w", err)
	}
	defer func() {
		if closeErr := dishClient.Close(); closeErr != nil {
			log.Error("error closing dish connection", "error", closeErr)
		}
	}()
	log.Info("dish schema loaded", "address", cfg.Dish.Address)

	schema := dishClient.Schema()
	applier, err := field.NewApplier(field.ApplierOptions{
		Schema:    schema.Index(),
		Root:      schema.PartialUpdate(),
		RootAlias: cfg.Dish.RootAlias,
		Submitter: dishClient,
	})
	if err != nil {
		return fmt.Errorf("creating command applier: %w", err)
	}

	topics := bridge.NewTopics(cfg.TopicPrefix())
	transport, err := mqtt.New(cfg.MQTT, topics.Status(), log)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}

	opts := bridge.Options{
		Transport:      transport,
		Device:         dishClient,
		Commands:       applier,
		Schema:         schema.Index(),
		Prefix:         cfg.TopicPrefix(),
		Filter:         field.NewFilter(cfg.Poll.Fields...),
		QoS:            byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		Retain:         cfg.MQTT.Retain,
		PollInterval:   cfg.Poll.Interval,
		Once:           cfg.Poll.Once,
		PublishJSON:    cfg.Poll.PublishJSON,
		PublishMissing: cfg.Poll.PublishMissing,
		FlushTimeout:   cfg.Poll.FlushTimeout,
		BackoffMin:     cfg.Backoff.Min,
		BackoffMax:     cfg.Backoff.Max,
		Logger:         log,
	}

	var checks []metrics.HealthCheck

	if cfg.Audit.Enabled {
		db, err := openAudit(ctx, cfg.Audit)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing audit database", "error", closeErr)
			}
		}()
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("audit database: %w", err)
		}
		opts.Recorder = audit.NewSQLiteRepository(db.DB)
		checks = append(checks, metrics.HealthCheck{Name: "audit", Check: db.HealthCheck})
		log.Info("command audit enabled", "path", cfg.Audit.Path)
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		if err := influxClient.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB not healthy at startup", "error", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		opts.Sink = influxClient
		checks = append(checks, metrics.HealthCheck{Name: "influxdb", Check: influxClient.HealthCheck})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = metrics.NewCollector(reg)

		metricsServer, err = metrics.NewServer(cfg.Metrics.Listen, reg, log, checks...)
		if err != nil {
			return err
		}
		log.Info("metrics endpoint listening", "addr", metricsServer.Addr())
	}

	b, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	log.Info("bridge running",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", topics.Prefix(),
		"once", cfg.Poll.Once,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.Run(gctx)
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("dish bridge stopped")
	return nil
}

// openDatabase opens the audit database without touching its schema.
func openDatabase(cfg config.AuditConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	return db, nil
}

// openAudit opens and migrates the audit database.
func openAudit(ctx context.Context, cfg config.AuditConfig) (*database.DB, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
