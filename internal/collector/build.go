package collector

import (
	"sort"
	"strings"
	"time"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// Options controls how raw GitHub records are turned into a snapshot
type Options struct {
	Languages     []string
	FixLabel      string
	AnalysisLabel string
	AgentLogin    string
	StaleDays     int

	// WorkflowWindowDays is the trailing window workflow runs are counted over
	WorkflowWindowDays int

	// Workflows maps workflow names to files; every name gets a record
	Workflows map[string]string

	Now    time.Time
	WeekOf string
	Period string
}

const day = 24 * time.Hour

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

// BuildSnapshot computes every counter and average of a snapshot from raw
// records. It does no I/O.
func BuildSnapshot(data *domain.CollectedData, opts Options) *domain.Snapshot {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	snap := &domain.Snapshot{
		GeneratedAt: now,
		WeekOf:      opts.WeekOf,
		Period:      opts.Period,
	}
	if data == nil {
		data = &domain.CollectedData{}
	}

	var fixPRs, analysisPRs []*domain.PullRequestRecord
	for _, pr := range data.PullRequests {
		switch {
		case opts.FixLabel != "" && pr.HasLabel(opts.FixLabel):
			fixPRs = append(fixPRs, pr)
		case opts.AnalysisLabel != "" && pr.HasLabel(opts.AnalysisLabel):
			analysisPRs = append(analysisPRs, pr)
		}
	}

	var fixIssues, analysisIssues []*domain.IssueRecord
	for _, issue := range data.Issues {
		switch {
		case opts.FixLabel != "" && issue.HasLabel(opts.FixLabel):
			fixIssues = append(fixIssues, issue)
		case opts.AnalysisLabel != "" && issue.HasLabel(opts.AnalysisLabel):
			analysisIssues = append(analysisIssues, issue)
		}
	}

	snap.FixPrs = buildPRs(fixPRs, opts.AgentLogin, now)
	snap.FixIssues = buildIssues(fixIssues, opts, now)
	snap.Analysis = buildAnalysis(analysisPRs, analysisIssues, now)
	snap.Workflows = buildWorkflows(data.WorkflowRuns, opts.Workflows)

	for _, lang := range opts.Languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		prs := buildPRs(filterPRs(fixPRs, lang), opts.AgentLogin, now)
		issues := buildIssues(filterIssues(fixIssues, lang), opts, now)
		if snap.ByLanguage == nil {
			snap.ByLanguage = make(map[string]domain.LanguageMetrics)
		}
		snap.ByLanguage[lang] = domain.LanguageMetrics{FixPrs: &prs, FixIssues: &issues}
	}

	return snap
}

func buildPRs(prs []*domain.PullRequestRecord, agent string, now time.Time) domain.PRMetrics {
	var m domain.PRMetrics
	var mergeDays, comments, commits, openAge float64
	var timedMerges int64
	var lastMerge time.Time

	for _, pr := range prs {
		m.Total++
		m.ReviewRounds += int64(pr.ReviewRounds)
		if agent != "" && isAgent(pr.Author, agent) {
			m.CreatedByAgent++
		}

		switch pr.State {
		case domain.PullRequestMerged:
			m.Merged++
			if pr.MergedAt != nil {
				timedMerges++
				mergeDays += days(pr.MergedAt.Sub(pr.CreatedAt))
				if pr.MergedAt.After(lastMerge) {
					lastMerge = *pr.MergedAt
				}
			}
			comments += float64(pr.Comments)
			commits += float64(pr.Commits)
		case domain.PullRequestOpen:
			m.Open++
			openAge += days(now.Sub(pr.CreatedAt))
		default:
			m.ClosedNotMerged++
		}
	}

	if timedMerges > 0 {
		m.AvgDaysToMerge = mergeDays / float64(timedMerges)
	}
	if m.Merged > 0 {
		m.AvgCommentsPerPr = comments / float64(m.Merged)
		m.AvgCommitsPerPr = commits / float64(m.Merged)
	}
	if m.Open > 0 {
		m.AvgOpenPrAgeDays = openAge / float64(m.Open)
	}
	if !lastMerge.IsZero() {
		m.TimeSinceLastMergeDays = days(now.Sub(lastMerge))
	}
	m.MergeRate = aggregator.ComputeRate(m.Merged, m.Total)
	return m
}

func buildIssues(issues []*domain.IssueRecord, opts Options, now time.Time) domain.IssueMetrics {
	var m domain.IssueMetrics
	var openAge, closeDays float64
	var timedCloses int64
	staleAfter := time.Duration(opts.StaleDays) * day

	for _, issue := range issues {
		m.Total++
		if opts.AgentLogin != "" && assignedToAgent(issue, opts.AgentLogin) {
			m.AssignedToAgent++
		}

		if issue.State == "closed" {
			m.Closed++
			switch issue.StateReason {
			case "completed":
				m.ClosedCompleted++
			case "not_planned":
				m.ClosedNotPlanned++
			}
			if issue.ClosedAt != nil {
				timedCloses++
				closeDays += days(issue.ClosedAt.Sub(issue.CreatedAt))
			}
			continue
		}

		m.Open++
		openAge += days(now.Sub(issue.CreatedAt))
		if opts.StaleDays > 0 && now.Sub(issue.UpdatedAt) >= staleAfter {
			m.StaleCount++
		}
	}

	if m.Open > 0 {
		m.AvgOpenIssueAgeDays = openAge / float64(m.Open)
	}
	if timedCloses > 0 {
		m.AvgDaysToClose = closeDays / float64(timedCloses)
	}
	m.CloseRate = aggregator.ComputeRate(m.Closed, m.Total)
	return m
}

func buildAnalysis(prs []*domain.PullRequestRecord, issues []*domain.IssueRecord, now time.Time) domain.AnalysisMetrics {
	var m domain.AnalysisMetrics
	var mergeDays, closeDays float64
	var timedMerges, timedCloses int64
	var lastPR, lastIssue time.Time

	for _, pr := range prs {
		if pr.CreatedAt.After(lastPR) {
			lastPR = pr.CreatedAt
		}
		switch pr.State {
		case domain.PullRequestMerged:
			m.MergedPrs++
			if pr.MergedAt != nil {
				timedMerges++
				mergeDays += days(pr.MergedAt.Sub(pr.CreatedAt))
			}
		case domain.PullRequestOpen:
			m.OpenPrs++
		default:
			m.ClosedPrs++
		}
	}

	for _, issue := range issues {
		if issue.CreatedAt.After(lastIssue) {
			lastIssue = issue.CreatedAt
		}
		if issue.State != "closed" {
			m.OpenIssues++
			continue
		}
		m.ClosedIssues++
		if issue.ClosedAt != nil {
			timedCloses++
			closeDays += days(issue.ClosedAt.Sub(issue.CreatedAt))
		}
	}

	if timedMerges > 0 {
		m.AvgPrDaysToMerge = mergeDays / float64(timedMerges)
	}
	if timedCloses > 0 {
		m.AvgIssueDaysOpenToClose = closeDays / float64(timedCloses)
	}
	if !lastPR.IsZero() {
		m.TimeSinceLastAnalysisPrDays = days(now.Sub(lastPR))
	}
	if !lastIssue.IsZero() {
		m.TimeSinceLastAnalysisIssueDays = days(now.Sub(lastIssue))
	}
	m.MergedPrPercent = aggregator.ComputeRate(m.MergedPrs, m.TotalPrs())
	m.ClosedPrPercent = aggregator.ComputeRate(m.ClosedPrs, m.TotalPrs())
	return m
}

func buildWorkflows(runs []*domain.WorkflowRunRecord, configured map[string]string) map[string]domain.WorkflowMetrics {
	out := make(map[string]domain.WorkflowMetrics, len(configured))
	for name := range configured {
		out[name] = domain.WorkflowMetrics{}
	}

	durations := make(map[string]time.Duration)
	completed := make(map[string]int64)
	for _, run := range runs {
		wf := out[run.Workflow]
		wf.TotalRuns++
		switch run.Conclusion {
		case "success":
			wf.Success++
		case "failure", "timed_out", "startup_failure":
			wf.Failure++
		case "cancelled":
			wf.Cancelled++
		case "skipped":
			wf.Skipped++
		}
		if run.Conclusion != "" {
			durations[run.Workflow] += run.Duration
			completed[run.Workflow]++
		}
		out[run.Workflow] = wf
	}

	for name, wf := range out {
		if n := completed[name]; n > 0 {
			wf.AvgDurationSeconds = durations[name].Seconds() / float64(n)
		}
		wf.SuccessRate = aggregator.ComputeRate(wf.Success, wf.TotalRuns)
		out[name] = wf
	}
	return out
}

func filterPRs(prs []*domain.PullRequestRecord, lang string) []*domain.PullRequestRecord {
	var out []*domain.PullRequestRecord
	for _, pr := range prs {
		if hasLanguage(pr.Labels, lang) {
			out = append(out, pr)
		}
	}
	return out
}

func filterIssues(issues []*domain.IssueRecord, lang string) []*domain.IssueRecord {
	var out []*domain.IssueRecord
	for _, issue := range issues {
		if hasLanguage(issue.Labels, lang) {
			out = append(out, issue)
		}
	}
	return out
}

func hasLanguage(labels []string, lang string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// isAgent matches the agent login, with or without the "[bot]" suffix
func isAgent(login, agent string) bool {
	login = strings.TrimSuffix(strings.ToLower(login), "[bot]")
	agent = strings.TrimSuffix(strings.ToLower(agent), "[bot]")
	return login == agent
}

func assignedToAgent(issue *domain.IssueRecord, agent string) bool {
	for _, a := range issue.Assignees {
		if isAgent(a, agent) {
			return true
		}
	}
	return false
}

// WeekStart returns the Monday of t's ISO week, formatted as a date label
func WeekStart(t time.Time) string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(domain.LabelDateLayout)
}

// sortedNames returns the keys of a workflow map in order
func sortedNames(workflows map[string]string) []string {
	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
