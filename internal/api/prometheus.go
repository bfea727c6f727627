package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
)

const (
	namespace     = "parity"
	scrapeTimeout = 10 * time.Second
)

var (
	snapshotAvailableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "snapshot_available"),
		"Whether a metrics snapshot could be loaded.", nil, nil)
	snapshotTimestampDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "snapshot_generated_timestamp_seconds"),
		"Generation time of the newest snapshot.", nil, nil)

	fixPrsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fix", "prs"),
		"Fix pull requests by state.", []string{"scope", "state"}, nil)
	fixPrMergeRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fix", "pr_merge_rate_percent"),
		"Share of fix pull requests merged.", []string{"scope"}, nil)
	fixPrDaysToMergeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fix", "pr_days_to_merge_avg"),
		"Average days from opening to merge of fix pull requests.", []string{"scope"}, nil)
	fixIssuesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fix", "issues"),
		"Fix issues by state.", []string{"scope", "state"}, nil)

	analysisPrsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "analysis", "prs"),
		"Analysis pull requests by state.", []string{"state"}, nil)

	agentSuccessRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "agent", "success_rate_percent"),
		"Issues assigned to the agent that produced a pull request.", []string{"scope"}, nil)

	workflowRunsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "workflow", "runs"),
		"Workflow runs over the trailing window by conclusion.", []string{"workflow", "conclusion"}, nil)
	workflowSuccessRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "workflow", "success_rate_percent"),
		"Share of successful workflow runs.", []string{"workflow"}, nil)

	manualMetricDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "manual", "metric"),
		"Human evaluation results; unevaluated metrics are not exported.", []string{"metric"}, nil)
)

// SnapshotCollector exports the newest snapshot as gauges on every scrape
type SnapshotCollector struct {
	source     snapshot.Source
	aggregator aggregator.Aggregator
	logger     *slog.Logger
}

// NewSnapshotCollector creates a collector over source
func NewSnapshotCollector(source snapshot.Source, agg aggregator.Aggregator, logger *slog.Logger) *SnapshotCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCollector{source: source, aggregator: agg, logger: logger}
}

// Describe implements prometheus.Collector
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{
		snapshotAvailableDesc, snapshotTimestampDesc,
		fixPrsDesc, fixPrMergeRateDesc, fixPrDaysToMergeDesc, fixIssuesDesc,
		analysisPrsDesc, agentSuccessRateDesc,
		workflowRunsDesc, workflowSuccessRateDesc, manualMetricDesc,
	} {
		ch <- desc
	}
}

// Collect implements prometheus.Collector
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	snapshots, err := c.source.Load(ctx, 1)
	if err != nil || len(snapshots) == 0 {
		if err != nil {
			c.logger.Warn("metrics scrape could not load snapshot", "error", err)
		}
		ch <- gauge(snapshotAvailableDesc, 0)
		return
	}

	snap := snapshots[0]
	ch <- gauge(snapshotAvailableDesc, 1)
	ch <- gauge(snapshotTimestampDesc, float64(snap.GeneratedAt.Unix()))

	scopes := append([]string{domain.ScopeAll}, c.aggregator.Languages(snap)...)
	for _, scope := range scopes {
		view := c.aggregator.ScopeToLanguage(snap, scope)
		if !view.Available {
			continue
		}
		prs, issues := view.FixPrs, view.FixIssues

		ch <- gauge(fixPrsDesc, float64(prs.Open), scope, "open")
		ch <- gauge(fixPrsDesc, float64(prs.Merged), scope, "merged")
		ch <- gauge(fixPrsDesc, float64(prs.ClosedNotMerged), scope, "closed")
		ch <- gauge(fixPrMergeRateDesc, prs.MergeRate, scope)
		ch <- gauge(fixPrDaysToMergeDesc, prs.AvgDaysToMerge, scope)
		ch <- gauge(fixIssuesDesc, float64(issues.Open), scope, "open")
		ch <- gauge(fixIssuesDesc, float64(issues.Closed), scope, "closed")
		ch <- gauge(fixIssuesDesc, float64(issues.StaleCount), scope, "stale")

		summary := c.aggregator.Summarize(snap, scope)
		ch <- gauge(agentSuccessRateDesc, summary.AgentSuccessRate, scope)
	}

	ch <- gauge(analysisPrsDesc, float64(snap.Analysis.OpenPrs), "open")
	ch <- gauge(analysisPrsDesc, float64(snap.Analysis.MergedPrs), "merged")
	ch <- gauge(analysisPrsDesc, float64(snap.Analysis.ClosedPrs), "closed")

	for name, wf := range snap.Workflows {
		ch <- gauge(workflowRunsDesc, float64(wf.Success), name, "success")
		ch <- gauge(workflowRunsDesc, float64(wf.Failure), name, "failure")
		ch <- gauge(workflowRunsDesc, float64(wf.Cancelled), name, "cancelled")
		ch <- gauge(workflowRunsDesc, float64(wf.Skipped), name, "skipped")
		ch <- gauge(workflowSuccessRateDesc, wf.SuccessRate, name)
	}

	if m := snap.Manual; m != nil {
		for name, value := range map[string]*float64{
			"detection_accuracy":     m.DetectionAccuracy,
			"quality_score":          m.QualityScore(),
			"developer_satisfaction": m.DeveloperSatisfaction,
			"context_utilization":    m.ContextUtilization,
			"false_positive_rate":    m.FalsePositiveRate,
		} {
			if value != nil {
				ch <- gauge(manualMetricDesc, *value, name)
			}
		}
	}
}

func gauge(desc *prometheus.Desc, value float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
}
