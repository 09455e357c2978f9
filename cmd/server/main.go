// Package main is the entry point for the milkwms API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milkwms/internal/app"
	corelock "milkwms/internal/core/lock"
	"milkwms/internal/core/numerator"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/auth"
	"milkwms/internal/infrastructure/config"
	v1 "milkwms/internal/infrastructure/http/v1"
	"milkwms/internal/infrastructure/http/v1/handlers"
	"milkwms/internal/infrastructure/lock"
	"milkwms/internal/infrastructure/metrics"
	"milkwms/internal/infrastructure/migration"
	infranumerator "milkwms/internal/infrastructure/numerator"
	"milkwms/internal/infrastructure/storage/memory"
	"milkwms/internal/infrastructure/storage/postgres"
	"milkwms/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting milkwms server", "env", cfg.App.Env, "storage", cfg.Storage.Driver)

	m := metrics.New(metrics.DefaultConfig())

	policy, err := security.NewDefaultPolicy(cfg.Policy)
	if err != nil {
		log.Fatalw("invalid approval policy", "error", err)
	}

	// --- Storage ---
	var (
		repos     app.Repositories
		numbers   numerator.Generator
		db        handlers.Pinger
		poolStats func() postgres.PoolStats
	)
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store := memory.New()
		repos = app.MemoryRepositories(store)
		numbers = memory.NewNumerator()
		if err := app.SeedMasterData(ctx, store.Seeder(), app.DemoMasterData()); err != nil {
			log.Fatalw("failed to seed in-memory master data", "error", err)
		}
		log.Warn("using in-memory storage; data is lost on restart")

	default:
		if cfg.Database.AutoMigrate {
			if err := migrateUp(cfg.Database.DSN, log); err != nil {
				log.Fatalw("failed to apply migrations", "error", err)
			}
		}

		poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Database.MaxConns
		}
		if cfg.Database.MinConns > 0 {
			poolCfg.MinConns = cfg.Database.MinConns
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		}
		if cfg.Database.ConnMaxIdleTime > 0 {
			poolCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		}
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		pool.LogStats(ctx)

		txOpts := postgres.DefaultTxOptions()
		txOpts.Retries = cfg.Database.MaxRetries
		if cfg.Database.StatementTimeout > 0 {
			txOpts.StatementTimeout = cfg.Database.StatementTimeout
		}
		txm := postgres.NewTxManager(pool, txOpts)

		repos, err = app.PostgresRepositories(txm, cfg.Audit.CompressThreshold)
		if err != nil {
			log.Fatalw("failed to build repositories", "error", err)
		}
		numbers = infranumerator.New(pool)
		db = pool
		poolStats = pool.Stats
		m.RegisterPool(pool.Stats)
	}

	// --- Cross-process locks ---
	var locker corelock.Locker = corelock.Noop{}
	if cfg.Redis.Enabled {
		rdb, err := lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb, lock.WithRetry(100*time.Millisecond, cfg.Redis.LockWait))
		log.Infow("redis locker enabled", "addr", cfg.Redis.Addr)
	}

	services := app.NewServices(repos, app.Options{
		Numerator:                   numbers,
		Authorizer:                  policy,
		Locker:                      locker,
		HoursBeforeStartToAllowEdit: cfg.Stocktaking.HoursBeforeStartToAllowEdit,
	})

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtConfig.Issuer = cfg.JWT.Issuer
	}
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Services:     services,
		AuditReader:  repos.AuditReader,
		Logger:       log,
		JWTValidator: jwtService,
		Metrics:      m,
		DB:           db,
		PoolStats:    poolStats,
		Debug:        cfg.App.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func migrateUp(dsn string, log *logger.Logger) error {
	m, err := migration.New(dsn, log.Desugar())
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
