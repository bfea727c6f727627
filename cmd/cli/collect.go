package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/parity-metrics/internal/collector"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
)

var (
	sinceDays  int
	outputPath string
	noStore    bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect a snapshot from GitHub",
	Long: `Collect fix and analysis pull requests, issues and workflow runs from the
repository named by GITHUB_REPO, build a weekly snapshot and archive it.`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().IntVar(&sinceDays, "since-days", 30, "collect items created in the last N days")
	collectCmd.Flags().StringVarP(&outputPath, "output", "o", "", "also write the snapshot JSON to this file")
	collectCmd.Flags().BoolVar(&noStore, "no-store", false, "do not save the snapshot to the archive")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCollector(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if sinceDays <= 0 {
		return fmt.Errorf("--since-days must be positive")
	}

	owner, repo, err := cfg.Repository()
	if err != nil {
		return err
	}

	until := time.Now().UTC()
	since := until.AddDate(0, 0, -sinceDays)

	opts := collector.Options{
		Languages:          cfg.Languages,
		FixLabel:           cfg.FixLabel,
		AnalysisLabel:      cfg.AnalysisLabel,
		AgentLogin:         cfg.AgentLogin,
		StaleDays:          cfg.StaleDays,
		WorkflowWindowDays: cfg.WorkflowWindowDays,
		Workflows:          cfg.Workflows,
	}
	coll := collector.WithProgress(
		collector.NewGitHubCollector(cfg.GitHubToken, opts, newLogger()),
		func(step string, progress float64) {
			fmt.Printf("\rProgress: %.1f%% (%s)", progress*100, step)
		},
	)

	fmt.Printf("Collecting parity metrics for %s/%s\n", owner, repo)
	fmt.Printf("Time range: %s to %s\n", since.Format("2006-01-02"), until.Format("2006-01-02"))

	snap, err := coll.Collect(cmd.Context(), owner, repo, since, until)
	if err != nil {
		return fmt.Errorf("failed to collect data: %w", err)
	}
	fmt.Printf("\nBuilt snapshot for week of %s\n", snap.WeekOf)

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := snapshot.Encode(f, snap); err != nil {
			f.Close()
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", outputPath)
	}

	if noStore {
		return nil
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	saved, err := store.SaveSnapshot(cmd.Context(), snap)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	fmt.Printf("Saved snapshot %s\n", saved.ID)
	return nil
}
