// Package report renders parity metrics for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

var (
	pass = color.New(color.FgGreen, color.Bold).SprintFunc()
	fail = color.New(color.FgRed, color.Bold).SprintFunc()
	warn = color.New(color.FgYellow, color.Bold).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

// JSON writes v as indented JSON
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func score(v float64) string {
	return fmt.Sprintf("%.1f/5", v)
}

// optional renders a manual metric that may not be evaluated yet
func optional(v *float64, format func(float64) string) string {
	if v == nil {
		return dim("n/a")
	}
	return format(*v)
}

func unitValue(u domain.Unit, v float64) string {
	if u == domain.UnitScore {
		return score(v)
	}
	return percent(v)
}

func count(n int64) string {
	return humanize.Comma(n)
}

func daysValue(d float64) string {
	return fmt.Sprintf("%.2f days", d)
}

// sinceValue renders a time-since field; zero means nothing happened yet
func sinceValue(d float64, happened bool) string {
	if !happened {
		return dim("never")
	}
	return fmt.Sprintf("%.1f days ago", d)
}

// View prints the scoped view of a snapshot
func View(w io.Writer, snap *domain.Snapshot, view domain.ScopedView) {
	fmt.Fprintf(w, "\nParity Metrics: %s\n", view.Scope)
	fmt.Fprintf(w, "Period: %s (generated %s)\n\n", snap.Label(), snap.GeneratedAt.UTC().Format(time.RFC3339))

	if !view.Available {
		fmt.Fprintf(w, "No data for scope %q\n", view.Scope)
		return
	}

	prs := view.FixPrs
	fmt.Fprintln(w, "Fix Pull Requests")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total", count(prs.Total)})
	table.Append([]string{"Open", count(prs.Open)})
	table.Append([]string{"Merged", count(prs.Merged)})
	table.Append([]string{"Closed Without Merge", count(prs.ClosedNotMerged)})
	table.Append([]string{"Created By Agent", count(prs.CreatedByAgent)})
	table.Append([]string{"Merge Rate", percent(prs.MergeRate)})
	table.Append([]string{"Avg Time To Merge", daysValue(prs.AvgDaysToMerge)})
	table.Append([]string{"Avg Comments Per PR", fmt.Sprintf("%.1f", prs.AvgCommentsPerPr)})
	table.Append([]string{"Avg Commits Per PR", fmt.Sprintf("%.1f", prs.AvgCommitsPerPr)})
	table.Append([]string{"Avg Open PR Age", daysValue(prs.AvgOpenPrAgeDays)})
	table.Append([]string{"Last Merge", sinceValue(prs.TimeSinceLastMergeDays, prs.Merged > 0)})
	table.Render()

	issues := view.FixIssues
	fmt.Fprintln(w, "\nFix Issues")
	table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total", count(issues.Total)})
	table.Append([]string{"Open", count(issues.Open)})
	table.Append([]string{"Closed", count(issues.Closed)})
	table.Append([]string{"Closed Completed", count(issues.ClosedCompleted)})
	table.Append([]string{"Closed Not Planned", count(issues.ClosedNotPlanned)})
	table.Append([]string{"Assigned To Agent", count(issues.AssignedToAgent)})
	table.Append([]string{"Stale", count(issues.StaleCount)})
	table.Append([]string{"Close Rate", percent(issues.CloseRate)})
	table.Append([]string{"Avg Time To Close", daysValue(issues.AvgDaysToClose)})
	table.Append([]string{"Avg Open Issue Age", daysValue(issues.AvgOpenIssueAgeDays)})
	table.Render()

	Analysis(w, snap.Analysis)
	Workflows(w, snap.Workflows)
	if snap.Manual != nil {
		Manual(w, snap.Manual)
	}
}

// Manual prints the human evaluation results
func Manual(w io.Writer, m *domain.ManualMetrics) {
	fmt.Fprintln(w, "\nManual Evaluation")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Detection Accuracy", optional(m.DetectionAccuracy, percent)})
	table.Append([]string{"Quality Score", optional(m.QualityScore(), score)})
	grades := m.QualityDistribution
	table.Append([]string{"Quality Grades (5 to 1)", fmt.Sprintf("%d/%d/%d/%d/%d", grades[0], grades[1], grades[2], grades[3], grades[4])})
	table.Append([]string{"Developer Satisfaction", optional(m.DeveloperSatisfaction, score)})
	table.Append([]string{"Context Utilization", optional(m.ContextUtilization, percent)})
	table.Append([]string{"False Positive Rate", optional(m.FalsePositiveRate, percent)})
	table.Render()
}

// Analysis prints the pipeline-wide analysis activity
func Analysis(w io.Writer, a domain.AnalysisMetrics) {
	fmt.Fprintln(w, "\nAnalysis")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Open PRs", count(a.OpenPrs)})
	table.Append([]string{"Merged PRs", count(a.MergedPrs)})
	table.Append([]string{"Closed PRs", count(a.ClosedPrs)})
	table.Append([]string{"Merged %", percent(a.MergedPrPercent)})
	table.Append([]string{"Closed %", percent(a.ClosedPrPercent)})
	table.Append([]string{"Avg PR Time To Merge", daysValue(a.AvgPrDaysToMerge)})
	table.Append([]string{"Open Issues", count(a.OpenIssues)})
	table.Append([]string{"Closed Issues", count(a.ClosedIssues)})
	table.Append([]string{"Avg Issue Time To Close", daysValue(a.AvgIssueDaysOpenToClose)})
	table.Append([]string{"Last Analysis PR", sinceValue(a.TimeSinceLastAnalysisPrDays, a.TotalPrs() > 0)})
	table.Append([]string{"Last Analysis Issue", sinceValue(a.TimeSinceLastAnalysisIssueDays, a.TotalIssues() > 0)})
	table.Render()
}

// Workflows prints one row per workflow, sorted by name
func Workflows(w io.Writer, workflows map[string]domain.WorkflowMetrics) {
	if len(workflows) == 0 {
		return
	}

	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nWorkflows")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Workflow", "Runs", "Success", "Failure", "Cancelled", "Skipped", "Success Rate", "Avg Duration"})
	for _, name := range names {
		wf := workflows[name]
		table.Append([]string{
			name,
			count(wf.TotalRuns),
			count(wf.Success),
			count(wf.Failure),
			count(wf.Cancelled),
			count(wf.Skipped),
			percent(wf.SuccessRate),
			(time.Duration(wf.AvgDurationSeconds * float64(time.Second))).Round(time.Second).String(),
		})
	}
	table.Render()
}

// Summary prints the headline rates
func Summary(w io.Writer, s domain.Summary) {
	fmt.Fprintf(w, "\nSummary: %s\n", s.Scope)
	fmt.Fprintf(w, "Period: %s\n\n", s.Period)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Fix PRs", fmt.Sprintf("%s merged of %s", count(s.FixPrMerged), count(s.FixPrTotal))})
	table.Append([]string{"Fix PR Merge Rate", percent(s.FixPrMergeRate)})
	table.Append([]string{"Analysis PRs", fmt.Sprintf("%s merged of %s", count(s.AnalysisPrMerged), count(s.AnalysisPrTotal))})
	table.Append([]string{"Analysis PR Merge Rate", percent(s.AnalysisMergeRate)})
	table.Append([]string{"Agent PR Success Rate", percent(s.AgentSuccessRate)})
	table.Append([]string{"Workflow Runs", count(s.WorkflowRuns)})
	table.Append([]string{"Workflow Failure Rate", percent(s.WorkflowFailureRate)})
	table.Render()

	if s.Manual != nil {
		Manual(w, s.Manual)
	}
}

// Criteria prints each production criterion with its status. It returns
// the number of criteria missed; pending ones are not counted.
func Criteria(w io.Writer, criteria []domain.Criterion) int {
	failed := 0

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Criterion", "Value", "Target", "Status"})
	for _, c := range criteria {
		var target string
		switch c.Comparison {
		case domain.LessThan:
			target = "< " + unitValue(c.Unit, c.Target)
		case domain.GreaterThan:
			target = "> " + unitValue(c.Unit, c.Target)
		default:
			target = ">= " + unitValue(c.Unit, c.Target)
		}

		value := unitValue(c.Unit, c.Value)
		status := pass("MET")
		switch {
		case c.Pending:
			value = dim("n/a")
			status = warn("PENDING")
		case !c.Met:
			failed++
			gap := fmt.Sprintf("%.1f%%", c.Gap())
			if c.Unit == domain.UnitScore {
				gap = fmt.Sprintf("%.1f", c.Gap())
			}
			status = fail(fmt.Sprintf("MISSED (%s gap)", gap))
		}
		table.Append([]string{c.Name, value, target, status})
	}
	table.Render()

	return failed
}

// Trend prints one row per period, oldest first
func Trend(w io.Writer, points []domain.TrendPoint) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Period", "Fix PRs", "Merged", "Merge Rate", "Avg Time To Merge", "Fix Issues", "Open Issues"})
	for _, p := range points {
		table.Append([]string{
			p.Label,
			count(p.FixPrTotal),
			count(p.FixPrMerged),
			percent(p.FixPrMergeRate),
			daysValue(p.AvgDaysToMerge),
			count(p.FixIssueTotal),
			count(p.FixIssueOpen),
		})
	}
	table.Render()
}

// Snapshots prints archived snapshot records
func Snapshots(w io.Writer, summaries []*domain.SnapshotSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Generated", "Week Of", "Imported"})
	for _, s := range summaries {
		table.Append([]string{
			s.ID,
			s.GeneratedAt.UTC().Format(time.RFC3339),
			s.WeekOf,
			humanize.Time(s.CreatedAt),
		})
	}
	table.Render()
}

// Validation prints the schema check of one snapshot file
func Validation(w io.Writer, name string, valid bool, problems []string) {
	if valid {
		fmt.Fprintf(w, "%s %s\n", pass("OK"), name)
		return
	}
	fmt.Fprintf(w, "%s %s\n", fail("INVALID"), name)
	for _, p := range problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}
