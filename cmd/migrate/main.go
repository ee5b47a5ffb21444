package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/soyHouston256/stream-sales-sub004/internal/config"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 || !slices.Contains(repository.MigrationCommands, args[0]) {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run ./cmd/migrate [command] [args]")
		fmt.Println("Commands:", strings.Join(repository.MigrationCommands, ", "))
		os.Exit(1)
	}
	if cfg.StoreProvider != "postgres" {
		slog.Error("migrations need STREAMSALES_STORE_PROVIDER=postgres", "store", cfg.StoreProvider)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := repository.RunMigrations(ctx, cfg.DSN(), args[0], args[1:]...); err != nil {
		slog.Error("migration failed", "command", args[0], "error", err)
		os.Exit(1)
	}

	fmt.Println("Migration finished successfully")
}
