// Package main applies or rolls back the embedded schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stockwise/internal/infrastructure/config"
	"stockwise/internal/infrastructure/storage/migrations"
	"stockwise/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	m, err := migrations.New(cfg.Database.URL, log)
	if err != nil {
		log.Fatalw("failed to open migrations", "error", err)
	}
	defer func() { _ = m.Close() }()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		if cfg.IsProduction() && !hasFlag("--yes") {
			log.Errorw("refusing to roll back a production schema without --yes")
			os.Exit(1)
		}
		err = m.Down()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Errorw("migration command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: migrate <up|down|version> [--yes]`)
}

func hasFlag(name string) bool {
	for _, a := range os.Args[2:] {
		if a == name {
			return true
		}
	}
	return false
}
