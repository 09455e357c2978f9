// Package main provides CLI for schema migrations.
// Usage: migrate up
//        migrate down
//        migrate steps <n>
//        migrate version
//        migrate force <version>
package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"milkwms/internal/infrastructure/config"
	"milkwms/internal/infrastructure/migration"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	m, err := migration.New(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("failed to open migrator", zap.Error(err))
	}
	defer func() { _ = m.Close() }()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = withInt(func(n int) error { return m.Steps(n) })
	case "force":
		err = withInt(func(n int) error { return m.Force(n) })
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d dirty=%t\n", version, dirty)
		}
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("migration failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func withInt(fn func(n int) error) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("%s needs a number", os.Args[1])
	}
	n, err := strconv.Atoi(os.Args[2])
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", os.Args[2], err)
	}
	return fn(n)
}

func printUsage() {
	fmt.Println(`Usage: migrate <command>

Commands:
  up             apply all pending migrations
  down           roll back every migration
  steps <n>      apply n migrations, or roll back when n is negative
  version        print the current version
  force <v>      set the version without running migrations`)
}
