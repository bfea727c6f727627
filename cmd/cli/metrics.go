package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/parity-metrics/internal/config"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	"github.com/kurihiro0119/parity-metrics/internal/report"
)

const defaultTrendWeeks = 12

var strict bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show scoped metrics",
	Long:  `Display the fix PR, fix issue, analysis and workflow metrics of the newest weeks, scoped to one language or all.`,
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show headline rates",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Check the production criteria",
	Long:  `Evaluate the pipeline rates and the manual evaluation results against their targets. Manual metrics without a recorded value are reported as pending.`,
	Args:  cobra.NoArgs,
	RunE:  runCriteria,
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show the weekly trend",
	Long:  `Display one row per week, oldest first. Defaults to the newest 12 weeks.`,
	Args:  cobra.NoArgs,
	RunE:  runTrend,
}

func init() {
	criteriaCmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when a criterion is missed")
}

// periodMetrics loads, aggregates and scopes the selected weeks
func periodMetrics(cmd *cobra.Command, cfg *config.Config) (*domain.Snapshot, *domain.PeriodMetrics, error) {
	ctx := cmd.Context()

	if useAPI {
		metrics, err := newClient(cfg).GetMetrics(ctx, scope, weeks)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get metrics: %w", err)
		}
		snap := &domain.Snapshot{
			GeneratedAt: metrics.GeneratedAt,
			Period:      metrics.Period,
			Analysis:    metrics.Analysis,
			Workflows:   metrics.Workflows,
			Manual:      metrics.Manual,
		}
		return snap, metrics, nil
	}

	snapshots, err := loadSnapshots(ctx, cfg, weeks)
	if err != nil {
		return nil, nil, err
	}

	agg := newAggregator(cfg)
	snap, err := agg.AggregatePeriods(snapshots)
	if err != nil {
		return nil, nil, err
	}

	return snap, &domain.PeriodMetrics{
		Period:      snap.Label(),
		GeneratedAt: snap.GeneratedAt,
		Weeks:       len(snapshots),
		Languages:   agg.Languages(snap),
		Scope:       agg.ScopeToLanguage(snap, scope),
		Analysis:    snap.Analysis,
		Workflows:   snap.Workflows,
		Manual:      snap.Manual,
	}, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	snap, metrics, err := periodMetrics(cmd, cfg)
	if err != nil {
		return err
	}

	if outputJSON {
		return report.JSON(os.Stdout, metrics)
	}

	report.View(os.Stdout, snap, metrics.Scope)
	return nil
}

func summarize(cmd *cobra.Command, cfg *config.Config) (domain.Summary, error) {
	if useAPI {
		summary, err := newClient(cfg).GetSummary(cmd.Context(), scope, weeks)
		if err != nil {
			return domain.Summary{}, fmt.Errorf("failed to get summary: %w", err)
		}
		return *summary, nil
	}

	snapshots, err := loadSnapshots(cmd.Context(), cfg, weeks)
	if err != nil {
		return domain.Summary{}, err
	}

	agg := newAggregator(cfg)
	snap, err := agg.AggregatePeriods(snapshots)
	if err != nil {
		return domain.Summary{}, err
	}
	return agg.Summarize(snap, scope), nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	summary, err := summarize(cmd, cfg)
	if err != nil {
		return err
	}

	if outputJSON {
		return report.JSON(os.Stdout, summary)
	}

	report.Summary(os.Stdout, summary)
	return nil
}

func runCriteria(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var result domain.CriteriaReport
	if useAPI {
		remote, err := newClient(cfg).GetCriteria(cmd.Context(), scope, weeks)
		if err != nil {
			return fmt.Errorf("failed to get criteria: %w", err)
		}
		result = *remote
	} else {
		summary, err := summarize(cmd, cfg)
		if err != nil {
			return err
		}
		result = domain.NewCriteriaReport(summary, newAggregator(cfg).EvaluateCriteria(summary))
	}

	if outputJSON {
		if err := report.JSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		fmt.Printf("\nProduction Criteria: %s\n", result.Summary.Scope)
		fmt.Printf("Period: %s\n\n", result.Summary.Period)
		report.Criteria(os.Stdout, result.Criteria)
		if result.Pending > 0 {
			fmt.Printf("%d criteria pending manual evaluation\n", result.Pending)
		}
	}

	if strict && !result.AllMet {
		return fmt.Errorf("production criteria not met")
	}
	return nil
}

func runTrend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	n := weeks
	if !cmd.Flags().Changed("weeks") {
		n = defaultTrendWeeks
	}

	var points []domain.TrendPoint
	if useAPI {
		points, err = newClient(cfg).GetTrend(cmd.Context(), scope, n)
		if err != nil {
			return fmt.Errorf("failed to get trend: %w", err)
		}
	} else {
		snapshots, err := loadSnapshots(cmd.Context(), cfg, n)
		if err != nil {
			return err
		}
		points = newAggregator(cfg).Trend(snapshots, scope)
	}

	if outputJSON {
		return report.JSON(os.Stdout, points)
	}

	fmt.Printf("\nWeekly Trend: %s\n\n", scope)
	report.Trend(os.Stdout, points)
	return nil
}
