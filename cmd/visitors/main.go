// Command visitors starts the visitor aggregation service.
//
// The service accepts visitor records via POST /api/log, keeps them in memory
// for the life of the process, and serves browser share plus resolution,
// language and timezone breakdowns at GET /api/log. A text report is printed
// after every write and read. Records can also arrive from a Kafka topic, and
// accepted records are optionally forwarded to Kafka, Redis pub/sub and a
// PostgreSQL archive.
//
// Usage:
//
//	go run ./cmd/visitors [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors/archive"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors/live"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors/stream"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// main loads configuration, connects the enabled sinks, wires the aggregator
// into the HTTP API and the Kafka ingress, and runs until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting visitor service", "port", cfg.Server.Port)

	if err := run(cfg); err != nil {
		slog.Error("visitor service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("visitor service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	checker.Register("aggregator", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "in-memory store"}
	})

	// The forwarder and sinks run on their own context and are stopped only
	// after the HTTP server and Kafka ingress have returned.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	var sinks []visitors.Sink
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	var batch *stream.BatchPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.VisitorEvents, "visitors")
		cleanups = append(cleanups, func() {
			if err := producer.Close(); err != nil {
				slog.Error("closing kafka producer", "error", err)
			}
		})
		batch = stream.NewBatchPublisher(producer, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		batch.Start(sinkCtx)
		sinks = append(sinks, batch)
		slog.Info("kafka sink enabled", "topic", cfg.Kafka.Topics.VisitorEvents)
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		cleanups = append(cleanups, func() { rdb.Close() })
		checker.Register("redis", health.Ping(rdb.Ping, true))
		sinks = append(sinks, live.NewPublisher(rdb, cfg.Redis.Channel))
		slog.Info("redis sink enabled", "channel", cfg.Redis.Channel)
	}

	var store *archive.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		cleanups = append(cleanups, func() { db.Close() })
		store = archive.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		checker.Register("postgres", health.Ping(db.Ping, true))
		sinks = append(sinks, store)
		slog.Info("postgres archive enabled")
	}

	breaker := resilience.BreakerConfig{
		FailureThreshold: cfg.Forwarder.BreakerThreshold,
		ResetTimeout:     cfg.Forwarder.BreakerReset,
	}
	for i, sink := range sinks {
		sinks[i] = visitors.Guard(sink, breaker)
	}
	forwarder := visitors.NewForwarder(cfg.Forwarder.BufferSize, m, sinks...)

	opts := []visitors.Option{visitors.WithMetrics(m)}
	if cfg.Report.Enabled {
		opts = append(opts, visitors.WithReporter(visitors.NewReporter(os.Stdout)))
	}
	if len(sinks) > 0 {
		opts = append(opts, visitors.WithTracker(forwarder))
	}
	aggregator := visitors.NewAggregator(opts...)
	h := visitors.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/log", h.Log)
	mux.HandleFunc("GET /api/log", h.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(sinks) > 0 {
		forwarder.Start(sinkCtx)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.VisitorIngest, visitors.HandleMessage(aggregator))
		checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
		})
		g.Go(func() error {
			slog.Info("kafka ingress started", "topic", consumer.Topic())
			return consumer.Start(gctx)
		})
	}

	if store != nil {
		g.Go(func() error {
			return store.RunPeriodicSave(gctx, aggregator, cfg.Postgres.SnapshotInterval)
		})
	}

	g.Go(func() error {
		slog.Info("visitor service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	// Writes have stopped: drain the forwarder, then let the sinks flush.
	forwarder.Close()
	stopSinks()
	if batch != nil {
		batch.Close()
	}
	return err
}
