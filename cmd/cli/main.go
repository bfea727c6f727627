package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/config"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
	"github.com/kurihiro0119/parity-metrics/internal/storage/postgres"
	"github.com/kurihiro0119/parity-metrics/internal/storage/sqlite"
	"github.com/kurihiro0119/parity-metrics/pkg/client"
)

var (
	cfgFile    string
	outputJSON bool
	useAPI     bool
	verbose    bool
	scope      string
	weeks      int
	files      []string
	dir        string
	urls       []string
)

var rootCmd = &cobra.Command{
	Use:   "parity-metrics",
	Short: "Parity pipeline metrics tool",
	Long: `A CLI tool for collecting and reporting the metrics of the SDK parity pipeline.

Snapshots are read from JSON files, a directory of weekly snapshots, static URLs,
or the local archive, aggregated over the requested weeks and scoped to one
language or to all of them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&useAPI, "api", false, "query the API server at API_ENDPOINT instead of local data")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().StringVarP(&scope, "scope", "s", domain.ScopeAll, "language scope (all, python, nodejs, dotnet, ...)")
	rootCmd.PersistentFlags().IntVarP(&weeks, "weeks", "w", 1, "number of newest weekly snapshots to aggregate")
	rootCmd.PersistentFlags().StringSliceVarP(&files, "file", "f", nil, "snapshot JSON file (repeatable)")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "", "directory of weekly snapshot JSON files")
	rootCmd.PersistentFlags().StringSliceVar(&urls, "url", nil, "snapshot JSON URL (repeatable)")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(criteriaCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func newAggregator(cfg *config.Config) aggregator.Aggregator {
	return aggregator.NewAggregator(cfg.Languages, cfg.Targets)
}

func newClient(cfg *config.Config) *client.Client {
	return client.NewClient(cfg.APIEndpoint)
}

// selection merges the source flags with the configured defaults
func selection(cfg *config.Config) snapshot.Selection {
	sel := snapshot.Selection{Files: files, Dir: dir, URLs: urls}
	if sel.UsesStore() {
		if cfg.SnapshotPath != "" {
			sel.Files = []string{cfg.SnapshotPath}
		} else if cfg.SnapshotDir != "" {
			sel.Dir = cfg.SnapshotDir
		} else {
			sel.URLs = cfg.SnapshotURLs
		}
	}
	return sel
}

// loadSnapshots reads up to limit snapshots, newest first, from the selected source
func loadSnapshots(ctx context.Context, cfg *config.Config, limit int) ([]*domain.Snapshot, error) {
	sel := selection(cfg)

	var store storage.Storage
	if sel.UsesStore() {
		var err error
		store, err = getStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()
	}

	source, err := snapshot.NewSource(sel, store)
	if err != nil {
		return nil, err
	}

	snapshots, err := source.Load(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return snapshots, nil
}
