// Package main provides a CLI tool for seeding the database with demo master data.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"milkwms/internal/app"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/auth"
	"milkwms/internal/infrastructure/config"
	"milkwms/internal/infrastructure/storage/postgres"
	"milkwms/internal/infrastructure/storage/postgres/catalog_repo"
	"milkwms/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalw("seeding needs the postgres driver", "driver", cfg.Storage.Driver)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txm := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	data := app.DemoMasterData()
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return app.SeedMasterData(ctx, catalog_repo.NewSeeder(txm), data)
	})
	if err != nil {
		log.Fatalw("failed to seed master data", "error", err)
	}
	log.Infow("master data seeded",
		"goods", len(data.Goods),
		"suppliers", len(data.Suppliers),
		"retailers", len(data.Retailers),
		"locations", len(data.Locations),
	)

	// A development token lets the API be exercised without the identity service.
	if os.Getenv("SEED_PRINT_TOKEN") == "true" {
		token, err := devToken(cfg)
		if err != nil {
			log.Fatalw("failed to sign development token", "error", err)
		}
		fmt.Println(token)
	}

	log.Info("seeding completed successfully")
}

func devToken(cfg *config.Config) (string, error) {
	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtCfg.Issuer = cfg.JWT.Issuer
	}
	now := time.Now()
	return auth.NewJWTService(jwtCfg).Sign(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "seed-admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		Roles: []string{
			security.RoleAdmin,
			security.RoleSaleManager,
			security.RoleWarehouseManager,
			security.RoleWarehouseStaff,
		},
		IsAdmin: true,
	})
}
