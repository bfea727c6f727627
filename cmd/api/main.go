package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/api"
	"github.com/kurihiro0119/parity-metrics/internal/config"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
	"github.com/kurihiro0119/parity-metrics/internal/storage/postgres"
	"github.com/kurihiro0119/parity-metrics/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to initialize PostgreSQL storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to initialize SQLite storage", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	// Snapshots come from SNAPSHOT_PATH, SNAPSHOT_DIR or SNAPSHOT_URLS when set, else the archive
	sel := snapshot.Selection{Dir: cfg.SnapshotDir, URLs: cfg.SnapshotURLs}
	if cfg.SnapshotPath != "" {
		sel.Files = []string{cfg.SnapshotPath}
	}
	source, err := snapshot.NewSource(sel, store)
	if err != nil {
		logger.Error("failed to select snapshot source", "error", err)
		os.Exit(1)
	}

	// Initialize aggregator
	agg := aggregator.NewAggregator(cfg.Languages, cfg.Targets)

	// Initialize handler
	handler := api.NewHandler(source, store, agg, logger)

	// Setup routes
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server",
		"addr", addr,
		"storage", cfg.StorageType,
		"languages", strings.Join(cfg.Languages, ","))

	if err := router.Run(addr); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
