package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alem-hub/tutoring-hub/config"
	"github.com/alem-hub/tutoring-hub/internal/application/analytics"
	"github.com/alem-hub/tutoring-hub/internal/application/command"
	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/application/query"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/credential"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/source"
	"github.com/alem-hub/tutoring-hub/pkg/circuitbreaker"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
	"github.com/alem-hub/tutoring-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app собирает все зависимости одного запуска CLI.
type app struct {
	cfg *config.Config
	log *logger.Logger

	store    store.Store
	conn     *postgres.Connection // nil, если драйвер не postgres
	cache    *redis.Cache         // nil без Redis
	bus      shared.EventBus
	recorder *metrics.Recorder

	ingest    *ingest.Service
	analytics *analytics.Service
	bootstrap *command.BootstrapAdminHandler
	createID  *command.CreateIdentityHandler
	deleteID  *command.DeleteIdentityHandler
	status    *query.GetStatusHandler
	s3        *source.S3 // nil без бакета

	closers []func() error
}

// newLogger пишет JSON в stderr, чтобы stdout оставался для результатов.
func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// openApp подключает хранилище и Redis и собирает сервисы.
func openApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, recorder: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально: кеш, блокировка, ретрансляция событий)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Enabled() {
		if err := a.openRedis(ctx); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if a.cache != nil && cfg.Features.EventRelay {
		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client: a.cache.Client(),
			Logger: log,
		})
		if err != nil {
			return nil, fmt.Errorf("start event relay: %w", err)
		}
		a.bus = bus
		a.closers = append(a.closers, bus.Close)
	} else {
		bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: log})
		a.bus = bus
		a.closers = append(a.closers, bus.Close)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. СЕРВИСЫ
	// ─────────────────────────────────────────────────────────────────────────
	a.wireServices()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИСТОЧНИКИ S3
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.S3Enabled() {
		s3src, err := source.NewS3(ctx, source.S3Config{
			Bucket:          cfg.Sources.S3Bucket,
			Prefix:          cfg.Sources.S3Prefix,
			Region:          cfg.Sources.S3Region,
			Endpoint:        cfg.Sources.S3Endpoint,
			AccessKeyID:     cfg.Sources.S3AccessKey,
			SecretAccessKey: cfg.Sources.S3SecretKey,
			PathStyle:       cfg.Sources.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		a.s3 = s3src
	}

	return a, nil
}

// newMemoryApp собирает приложение поверх готового хранилища без внешних
// подключений.
func newMemoryApp(cfg *config.Config, log *logger.Logger, st store.Store) *app {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: log})
	a := &app{cfg: cfg, log: log, store: st, bus: bus, recorder: metrics.New()}
	a.closers = append(a.closers, bus.Close)
	a.wireServices()
	return a
}

func (a *app) wireServices() {
	cfg := a.cfg
	hasher := credential.NewHasher(cfg.Ingest.BcryptCost)

	analyticsOpts := []analytics.Option{
		analytics.WithLogger(a.log),
		analytics.WithQueryRecorder(a.recorder),
	}
	if a.cache != nil && cfg.Features.AnalyticsCache {
		breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			a.log.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
		cache := redis.NewAnalyticsCache(a.cache, cfg.Analytics.CacheTTL).WithBreaker(breaker)
		analyticsOpts = append(analyticsOpts, analytics.WithCache(cache))
	}
	a.analytics = analytics.NewService(a.store, analytics.Config{
		TrendWindowDays: cfg.Analytics.TrendWindowDays,
		ChartWindowDays: cfg.Analytics.ChartWindowDays,
	}, analyticsOpts...)
	_ = a.bus.SubscribeAll(a.analytics.HandleEvent)

	ingestOpts := []ingest.Option{
		ingest.WithLogger(a.log),
		ingest.WithEventPublisher(a.bus),
		ingest.WithRecorder(a.recorder),
	}
	if a.cache != nil && cfg.Features.IngestLock {
		ingestOpts = append(ingestOpts, ingest.WithLocker(redis.NewIngestLock(a.cache, cfg.Ingest.LockTTL, cfg.Ingest.LockWait)))
	}
	a.ingest = ingest.NewService(a.store, hasher, ingest.Config{
		DefaultCredential: cfg.Ingest.DefaultCredential,
		EmailDomain:       cfg.Ingest.EmailDomain,
		DefaultCohort:     cfg.Ingest.DefaultCohort,
	}, ingestOpts...)

	a.bootstrap = command.NewBootstrapAdminHandler(a.store, a.ingest, hasher, a.bus, a.log)
	a.createID = command.NewCreateIdentityHandler(a.store, a.ingest, hasher, a.bus, a.log)
	a.deleteID = command.NewDeleteIdentityHandler(a.store, a.ingest, a.bus, a.log)
	a.status = query.NewGetStatusHandler(a.store)
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg.Store
	log := a.log.With(logger.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverMemory:
		a.store = memory.New()

	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.URL)
		pgCfg.MaxConns = int32(cfg.MaxConns)
		pgCfg.MinConns = int32(cfg.MinConns)
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

		conn, err := retry.Value(ctx, retry.Connect(cfg.ConnectAttempts, logRetry(log)), func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.conn = conn
		a.closers = append(a.closers, func() error { conn.Close(); return nil })

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return err
		}
		if applied > 0 {
			log.Info("migrations applied", logger.Int("count", applied))
		}
		a.store = postgres.NewStore(conn)

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	log.Debug("store opened")
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	rc := a.cfg.Redis
	rcfg := redis.DefaultConfig()
	rcfg.Addr = rc.Addr
	rcfg.Password = rc.Password
	rcfg.DB = rc.DB
	rcfg.PoolSize = rc.PoolSize
	rcfg.DialTimeout = rc.DialTimeout
	rcfg.ReadTimeout = rc.ReadTimeout
	rcfg.WriteTimeout = rc.WriteTimeout

	log := a.log.With(logger.Component("redis"))
	cache, err := retry.Value(ctx, retry.Connect(a.cfg.Store.ConnectAttempts, logRetry(log)), func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rcfg)
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.cache = cache
	a.closers = append(a.closers, cache.Close)
	return nil
}

// logRetry логирует каждую неудачную попытку подключения.
func logRetry(log *logger.Logger) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed",
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.log.Sync()
	return errors.Join(errs...)
}
