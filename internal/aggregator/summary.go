package aggregator

import (
	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// Summarize computes the headline rates shown on the dashboard cards.
// Workflow and analysis figures are pipeline-wide and ignore the scope.
func (a *aggregator) Summarize(snapshot *domain.Snapshot, scope string) domain.Summary {
	view := a.ScopeToLanguage(snapshot, scope)
	summary := domain.Summary{
		Scope:            view.Scope,
		FixPrTotal:       view.FixPrs.Total,
		FixPrMerged:      view.FixPrs.Merged,
		FixPrMergeRate:   ComputeRate(view.FixPrs.Merged, view.FixPrs.Total),
		AgentSuccessRate: ComputeRate(view.FixPrs.CreatedByAgent, view.FixIssues.AssignedToAgent),
	}
	if snapshot == nil {
		return summary
	}

	summary.Period = snapshot.Label()
	summary.GeneratedAt = snapshot.GeneratedAt
	summary.AnalysisPrTotal = snapshot.Analysis.TotalPrs()
	summary.AnalysisPrMerged = snapshot.Analysis.MergedPrs
	summary.AnalysisMergeRate = ComputeRate(snapshot.Analysis.MergedPrs, snapshot.Analysis.TotalPrs())

	for _, wf := range snapshot.Workflows {
		summary.WorkflowRuns += wf.TotalRuns
		summary.WorkflowFailures += wf.Failure
	}
	summary.WorkflowFailureRate = ComputeRate(summary.WorkflowFailures, summary.WorkflowRuns)
	summary.Manual = snapshot.Manual

	return summary
}

// EvaluateCriteria checks a summary against the production targets. Manual
// criteria without a recorded value are reported as pending.
func (a *aggregator) EvaluateCriteria(summary domain.Summary) []domain.Criterion {
	t := a.targets
	m := summary.Manual
	if m == nil {
		m = &domain.ManualMetrics{}
	}

	return []domain.Criterion{
		atLeast("Agent PR success rate", summary.AgentSuccessRate, t.AgentSuccessRate),
		lessThan("Workflow failure rate", &summary.WorkflowFailureRate, t.MaxWorkflowFailureRate),
		atLeast("Fix PR merge rate", summary.FixPrMergeRate, t.FixPrMergeRate),
		atLeast("Analysis PR merge rate", summary.AnalysisMergeRate, t.AnalysisPrMergeRate),
		greaterThan("Detection accuracy", m.DetectionAccuracy, t.DetectionAccuracy, domain.UnitPercent),
		greaterThan("Quality score", m.QualityScore(), t.QualityScore, domain.UnitScore),
		greaterThan("Developer satisfaction", m.DeveloperSatisfaction, t.DeveloperSatisfaction, domain.UnitScore),
		greaterThan("Context utilization", m.ContextUtilization, t.ContextUtilization, domain.UnitPercent),
		lessThan("False positive rate", m.FalsePositiveRate, t.MaxFalsePositiveRate),
	}
}

// Trend returns one point per snapshot in chronological order
func (a *aggregator) Trend(snapshots []*domain.Snapshot, scope string) []domain.TrendPoint {
	ordered := make([]*domain.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	domain.SortNewestFirst(ordered)

	points := make([]domain.TrendPoint, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		s := ordered[i]
		view := a.ScopeToLanguage(s, scope)
		points = append(points, domain.TrendPoint{
			Label:          s.Label(),
			GeneratedAt:    s.GeneratedAt,
			FixPrTotal:     view.FixPrs.Total,
			FixPrMerged:    view.FixPrs.Merged,
			FixPrMergeRate: ComputeRate(view.FixPrs.Merged, view.FixPrs.Total),
			AvgDaysToMerge: view.FixPrs.AvgDaysToMerge,
			FixIssueTotal:  view.FixIssues.Total,
			FixIssueOpen:   view.FixIssues.Open,
		})
	}
	return points
}

func atLeast(name string, value, target float64) domain.Criterion {
	return domain.Criterion{
		Name:       name,
		Value:      value,
		Target:     target,
		Comparison: domain.AtLeast,
		Unit:       domain.UnitPercent,
		Met:        value >= target,
	}
}

func greaterThan(name string, value *float64, target float64, unit domain.Unit) domain.Criterion {
	c := domain.Criterion{
		Name:       name,
		Target:     target,
		Comparison: domain.GreaterThan,
		Unit:       unit,
	}
	if value == nil {
		c.Pending = true
		return c
	}
	c.Value = *value
	c.Met = *value > target
	return c
}

// lessThan checks percent values; a nil value is pending
func lessThan(name string, value *float64, target float64) domain.Criterion {
	c := domain.Criterion{
		Name:       name,
		Target:     target,
		Comparison: domain.LessThan,
		Unit:       domain.UnitPercent,
	}
	if value == nil {
		c.Pending = true
		return c
	}
	c.Value = *value
	c.Met = *value < target
	return c
}
