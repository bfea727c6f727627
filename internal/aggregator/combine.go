package aggregator

import "github.com/kurihiro0119/parity-metrics/internal/domain"

// weightedMean combines per-group averages by weighting each with its
// group's denominator count.
type weightedMean struct {
	sum    float64
	weight float64
}

func (w *weightedMean) add(avg float64, weight int64) {
	if weight <= 0 {
		return
	}
	w.sum += avg * float64(weight)
	w.weight += float64(weight)
}

func (w weightedMean) value() float64 {
	if w.weight == 0 {
		return 0
	}
	return w.sum / w.weight
}

// CombinePRs sums PR counters and recombines the averages. Point-in-time
// fields are left zero for the caller to resolve.
func CombinePRs(records []domain.PRMetrics) domain.PRMetrics {
	var out domain.PRMetrics
	var daysToMerge, comments, commits, openAge weightedMean

	for _, r := range records {
		out.Total += r.Total
		out.Open += r.Open
		out.Merged += r.Merged
		out.ClosedNotMerged += r.ClosedNotMerged
		out.CreatedByAgent += r.CreatedByAgent
		out.ReviewRounds += r.ReviewRounds

		daysToMerge.add(r.AvgDaysToMerge, r.Merged)
		comments.add(r.AvgCommentsPerPr, r.Merged)
		commits.add(r.AvgCommitsPerPr, r.Merged)
		openAge.add(r.AvgOpenPrAgeDays, r.Open)
	}

	out.AvgDaysToMerge = daysToMerge.value()
	out.AvgCommentsPerPr = comments.value()
	out.AvgCommitsPerPr = commits.value()
	out.AvgOpenPrAgeDays = openAge.value()
	out.MergeRate = ComputeRate(out.Merged, out.Total)
	return out
}

// CombineIssues sums issue counters and recombines the averages
func CombineIssues(records []domain.IssueMetrics) domain.IssueMetrics {
	var out domain.IssueMetrics
	var openAge, daysToClose weightedMean

	for _, r := range records {
		out.Total += r.Total
		out.Open += r.Open
		out.Closed += r.Closed
		out.ClosedCompleted += r.ClosedCompleted
		out.ClosedNotPlanned += r.ClosedNotPlanned
		out.AssignedToAgent += r.AssignedToAgent
		out.StaleCount += r.StaleCount

		openAge.add(r.AvgOpenIssueAgeDays, r.Open)
		daysToClose.add(r.AvgDaysToClose, r.Closed)
	}

	out.AvgOpenIssueAgeDays = openAge.value()
	out.AvgDaysToClose = daysToClose.value()
	out.CloseRate = ComputeRate(out.Closed, out.Total)
	return out
}

// CombineAnalysis sums analysis counters and recomputes percentages from
// the summed totals. Time-since fields are left zero.
func CombineAnalysis(records []domain.AnalysisMetrics) domain.AnalysisMetrics {
	var out domain.AnalysisMetrics
	var daysToMerge, daysToClose weightedMean

	for _, r := range records {
		out.OpenPrs += r.OpenPrs
		out.MergedPrs += r.MergedPrs
		out.ClosedPrs += r.ClosedPrs
		out.OpenIssues += r.OpenIssues
		out.ClosedIssues += r.ClosedIssues

		daysToMerge.add(r.AvgPrDaysToMerge, r.MergedPrs)
		daysToClose.add(r.AvgIssueDaysOpenToClose, r.ClosedIssues)
	}

	out.MergedPrPercent = ComputeRate(out.MergedPrs, out.TotalPrs())
	out.ClosedPrPercent = ComputeRate(out.ClosedPrs, out.TotalPrs())
	out.AvgPrDaysToMerge = daysToMerge.value()
	out.AvgIssueDaysOpenToClose = daysToClose.value()
	return out
}
