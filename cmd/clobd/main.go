package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Aidin1998/pincex_clob/api"
	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/messaging"
	"github.com/Aidin1998/pincex_clob/internal/persistence"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/ws"
	"github.com/Aidin1998/pincex_clob/pkg/logger"
	"github.com/Aidin1998/pincex_clob/pkg/telemetry"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	hubShards     = 16
	hubReplaySize = 1024
)

func main() {
	configPaths := flag.String("config", "./configs/config.yaml", "comma separated config files, later files override earlier ones")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	bootLogger, err := logger.NewLogger("info")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	manager := config.NewManager(bootLogger)
	if err := manager.Load(true, strings.Split(*configPaths, ",")...); err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	defer manager.Close()
	cfg := manager.Config()

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		bootLogger.Fatal("Failed to create logger", zap.Error(err))
	}
	defer zapLogger.Sync()

	if err := run(manager, cfg, zapLogger); err != nil {
		zapLogger.Fatal("Service failed", zap.Error(err))
	}
}

func run(manager *config.Manager, cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		Tracing:        cfg.Tracing.Enabled,
		Metrics:        cfg.Tracing.Metrics,
		MetricInterval: cfg.Tracing.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			zapLogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	exchange, err := market.NewExchange(cfg.Engine.Exchange(), cfg.Incentives, zapLogger)
	if err != nil {
		return fmt.Errorf("create exchange: %w", err)
	}

	snapshots, err := persistence.OpenSnapshotStore(cfg.Storage.SnapshotDir, cfg.Storage.SnapshotsKept, zapLogger)
	if err != nil {
		return err
	}
	defer snapshots.Close()
	if err := restoreOrSeed(ctx, exchange, snapshots, cfg.Engine.SeedFile, zapLogger); err != nil {
		return err
	}

	// Incentive parameters follow the config file.
	manager.OnReload(func(_, newConfig *config.Config) error {
		if err := exchange.SetIncentiveParams(newConfig.Incentives); err != nil {
			return fmt.Errorf("apply incentive parameters: %w", err)
		}
		zapLogger.Info("Incentive parameters reloaded",
			zap.Uint64("taker_fee_divisor", newConfig.Incentives.TakerFeeDivisor))
		return nil
	})

	var repo model.EventRepository
	if cfg.Storage.EventStoreDriver != "none" {
		events, err := persistence.OpenEventStore(cfg.Storage.EventStoreDriver, cfg.Storage.EventStoreDSN, zapLogger)
		if err != nil {
			return err
		}
		defer events.Close()
		repo = events
		exchange.SetRepository(events)
		if last, err := events.LastSequence(ctx); err != nil {
			zapLogger.Warn("Could not read event store position", zap.Error(err))
		} else if last > exchange.Sequence() {
			zapLogger.Warn("Event store is ahead of the restored snapshot; events after the snapshot will be re-sequenced",
				zap.Uint64("store_sequence", last),
				zap.Uint64("snapshot_sequence", exchange.Sequence()))
		}
	}

	hub := ws.NewHub(hubShards, hubReplaySize, zapLogger)
	bus := messaging.NewMessageBus(zapLogger)
	bus.Register("ws", hub)
	if cfg.Messaging.Kafka.Enabled {
		p, err := messaging.NewKafkaPublisher(cfg.Messaging.Kafka, cfg.Tracing.ServiceName, zapLogger)
		if err != nil {
			return err
		}
		bus.Register("kafka", p)
	}
	if cfg.Messaging.Redis.Enabled {
		p, err := messaging.NewRedisPublisher(cfg.Messaging.Redis, cfg.Tracing.ServiceName, zapLogger)
		if err != nil {
			return err
		}
		bus.Register("redis", p)
	}
	exchange.AddPublisher(bus)
	defer bus.Close()

	if err := registerInstruments(exchange); err != nil {
		zapLogger.Warn("OpenTelemetry instruments unavailable", zap.Error(err))
	}

	takeSnapshot := func(ctx context.Context) (uint64, error) {
		info, err := snapshots.Save(ctx, exchange.Snapshot())
		if err != nil {
			return 0, err
		}
		return info.Sequence, nil
	}

	// The engine and the hub outlive the HTTP server so that requests in
	// flight during shutdown still publish their events.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := exchange.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("Event dispatcher stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		hub.Run(engineCtx)
	}()
	go func() {
		defer wg.Done()
		snapshotLoop(engineCtx, cfg.Engine.SnapshotInterval, exchange, takeSnapshot, zapLogger)
	}()

	server, err := api.NewServer(zapLogger, api.Options{
		Exchange:       exchange,
		Events:         repo,
		Hub:            hub,
		Snapshot:       takeSnapshot,
		Auth:           cfg.Auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.Tracing.ServiceName,
	})
	if err != nil {
		stopEngine()
		return err
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down")
	case err = <-serveErr:
		zapLogger.Error("API server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("API server forced to shutdown", zap.Error(err))
	}

	if seq, err := takeSnapshot(shutdownCtx); err != nil {
		zapLogger.Error("Final snapshot failed", zap.Error(err))
	} else {
		zapLogger.Info("Final snapshot written", zap.Uint64("sequence", seq))
	}

	stopEngine()
	wg.Wait()
	zapLogger.Info("Service stopped")
	return err
}

// restoreOrSeed loads the newest snapshot, or seeds an empty exchange when
// the store has none.
func restoreOrSeed(ctx context.Context, exchange *market.Exchange, store *persistence.SnapshotStore, seedFile string, logger *zap.Logger) error {
	state, info, err := store.Latest(ctx)
	switch {
	case err == nil:
		if err := exchange.Restore(state); err != nil {
			return fmt.Errorf("restore snapshot %s: %w", info.Key, err)
		}
		logger.Info("Exchange restored",
			zap.String("snapshot", info.Key),
			zap.Uint64("sequence", info.Sequence),
			zap.Int("markets", len(exchange.Markets())))
		return nil
	case !errors.Is(err, persistence.ErrNoSnapshot):
		return err
	}

	if seedFile == "" {
		logger.Info("No snapshot and no seed file; starting empty")
		return nil
	}
	seeds, err := config.LoadSeeds(seedFile)
	if err != nil {
		return err
	}
	return seedExchange(exchange, seeds, logger)
}

func snapshotLoop(ctx context.Context, interval time.Duration, exchange *market.Exchange, take api.Snapshotter, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if exchange.Sequence() == last {
				continue
			}
			seq, err := take(ctx)
			if err != nil {
				logger.Error("Periodic snapshot failed", zap.Error(err))
				continue
			}
			last = seq
			logger.Debug("Periodic snapshot written", zap.Uint64("sequence", seq))
		}
	}
}

// registerInstruments exposes engine state through the global meter, which
// is a no-op unless telemetry metrics are enabled.
func registerInstruments(exchange *market.Exchange) error {
	meter := otel.Meter("github.com/Aidin1998/pincex_clob/cmd/clobd")
	sequence, err := meter.Int64ObservableGauge("clob.events.sequence",
		otelmetric.WithDescription("Sequence number of the last committed event"))
	if err != nil {
		return err
	}
	marketCount, err := meter.Int64ObservableGauge("clob.markets",
		otelmetric.WithDescription("Registered markets"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		o.ObserveInt64(sequence, int64(exchange.Sequence()))
		o.ObserveInt64(marketCount, int64(len(exchange.Markets())))
		return nil
	}, sequence, marketCount)
	return err
}
