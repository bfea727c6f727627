package domain

import "time"

// ScopeAll selects the cross-language aggregate
const ScopeAll = "all"

// DefaultLanguages are the languages tracked by the parity pipeline
var DefaultLanguages = []string{"python", "nodejs", "dotnet"}

// PRMetrics represents pull request activity for one category
type PRMetrics struct {
	Total           int64 `json:"total"`
	Open            int64 `json:"open"`
	Merged          int64 `json:"merged"`
	ClosedNotMerged int64 `json:"closedNotMerged"`
	CreatedByAgent  int64 `json:"createdByAgent"`
	ReviewRounds    int64 `json:"reviewRounds"`

	// Averages over merged PRs
	AvgDaysToMerge   float64 `json:"avgDaysToMerge"`
	AvgCommentsPerPr float64 `json:"avgCommentsPerPr"`
	AvgCommitsPerPr  float64 `json:"avgCommitsPerPr"`

	// Average over open PRs
	AvgOpenPrAgeDays float64 `json:"avgOpenPrAgeDays"`

	MergeRate              float64 `json:"mergeRate"`
	TimeSinceLastMergeDays float64 `json:"timeSinceLastMergeDays"`
}

// IsZero reports whether the record carries no activity
func (p PRMetrics) IsZero() bool {
	return p == PRMetrics{}
}

// IssueMetrics represents issue activity for one category
type IssueMetrics struct {
	Total            int64 `json:"total"`
	Open             int64 `json:"open"`
	Closed           int64 `json:"closed"`
	ClosedCompleted  int64 `json:"closedCompleted"`
	ClosedNotPlanned int64 `json:"closedNotPlanned"`
	AssignedToAgent  int64 `json:"assignedToAgent"`
	StaleCount       int64 `json:"staleCount"`

	AvgOpenIssueAgeDays float64 `json:"avgOpenIssueAgeDays"`
	AvgDaysToClose      float64 `json:"avgDaysToClose"`
	CloseRate           float64 `json:"closeRate"`
}

// IsZero reports whether the record carries no activity
func (i IssueMetrics) IsZero() bool {
	return i == IssueMetrics{}
}

// AnalysisMetrics represents activity produced by the parity scanning workflow
type AnalysisMetrics struct {
	OpenPrs      int64 `json:"openPrs"`
	MergedPrs    int64 `json:"mergedPrs"`
	ClosedPrs    int64 `json:"closedPrs"`
	OpenIssues   int64 `json:"openIssues"`
	ClosedIssues int64 `json:"closedIssues"`

	MergedPrPercent         float64 `json:"mergedPrPercent"`
	ClosedPrPercent         float64 `json:"closedPrPercent"`
	AvgPrDaysToMerge        float64 `json:"avgPrDaysToMerge"`
	AvgIssueDaysOpenToClose float64 `json:"avgIssueDaysOpenToClose"`

	TimeSinceLastAnalysisPrDays    float64 `json:"timeSinceLastAnalysisPrDays"`
	TimeSinceLastAnalysisIssueDays float64 `json:"timeSinceLastAnalysisIssueDays"`
}

// TotalPrs returns the number of analysis PRs in any state
func (a AnalysisMetrics) TotalPrs() int64 {
	return a.OpenPrs + a.MergedPrs + a.ClosedPrs
}

// TotalIssues returns the number of analysis issues in any state
func (a AnalysisMetrics) TotalIssues() int64 {
	return a.OpenIssues + a.ClosedIssues
}

// WorkflowMetrics represents run outcomes of one CI workflow over a trailing window
type WorkflowMetrics struct {
	Success            int64   `json:"success"`
	Failure            int64   `json:"failure"`
	Cancelled          int64   `json:"cancelled"`
	Skipped            int64   `json:"skipped"`
	TotalRuns          int64   `json:"totalRuns"`
	SuccessRate        float64 `json:"successRate"`
	AvgDurationSeconds float64 `json:"avgDurationSeconds"`
}

// QualityGrades is the number of reviewed items per grade, from
// excellent (5) down to poor (1)
type QualityGrades [5]int64

// Total returns the number of graded items
func (q QualityGrades) Total() int64 {
	var n int64
	for _, c := range q {
		n += c
	}
	return n
}

// ManualMetrics holds results of human evaluation of the pipeline. A nil
// field has not been evaluated yet.
type ManualMetrics struct {
	DetectionAccuracy     *float64      `json:"detectionAccuracy"`     // percent
	AvgQualityScore       *float64      `json:"avgQualityScore"`       // 1-5
	QualityDistribution   QualityGrades `json:"qualityDistribution"`   // [5, 4, 3, 2, 1]
	DeveloperSatisfaction *float64      `json:"developerSatisfaction"` // 1-5
	ContextUtilization    *float64      `json:"contextUtilization"`    // percent
	FalsePositiveRate     *float64      `json:"falsePositiveRate"`     // percent
}

// QualityScore returns the average quality score, derived from the grade
// distribution when no average was recorded
func (m *ManualMetrics) QualityScore() *float64 {
	if m == nil {
		return nil
	}
	if m.AvgQualityScore != nil {
		return m.AvgQualityScore
	}
	total := m.QualityDistribution.Total()
	if total == 0 {
		return nil
	}
	var points int64
	for i, c := range m.QualityDistribution {
		points += int64(5-i) * c
	}
	score := float64(points) / float64(total)
	return &score
}

// LanguageMetrics represents the fix PR/issue records scoped to one language
type LanguageMetrics struct {
	FixPrs    *PRMetrics    `json:"fixPrs,omitempty"`
	FixIssues *IssueMetrics `json:"fixIssues,omitempty"`
}

// ScopedView is a language-scoped or cross-language view of one snapshot
type ScopedView struct {
	Scope     string       `json:"scope"`
	Available bool         `json:"available"`
	FixPrs    PRMetrics    `json:"fixPrs"`
	FixIssues IssueMetrics `json:"fixIssues"`
}

// Summary holds the headline rates of a scoped view
type Summary struct {
	Scope               string    `json:"scope"`
	Period              string    `json:"period"`
	GeneratedAt         time.Time `json:"generatedAt"`
	FixPrTotal          int64     `json:"fixPrTotal"`
	FixPrMerged         int64     `json:"fixPrMerged"`
	FixPrMergeRate      float64   `json:"fixPrMergeRate"`
	AnalysisPrTotal     int64     `json:"analysisPrTotal"`
	AnalysisPrMerged    int64     `json:"analysisPrMerged"`
	AnalysisMergeRate   float64   `json:"analysisMergeRate"`
	AgentSuccessRate    float64   `json:"agentSuccessRate"`
	WorkflowRuns        int64     `json:"workflowRuns"`
	WorkflowFailures    int64     `json:"workflowFailures"`
	WorkflowFailureRate float64   `json:"workflowFailureRate"`

	Manual *ManualMetrics `json:"manual,omitempty"`
}

// TrendPoint is one period of a scoped time series
type TrendPoint struct {
	Label          string    `json:"label"`
	GeneratedAt    time.Time `json:"generatedAt"`
	FixPrTotal     int64     `json:"fixPrTotal"`
	FixPrMerged    int64     `json:"fixPrMerged"`
	FixPrMergeRate float64   `json:"fixPrMergeRate"`
	AvgDaysToMerge float64   `json:"avgDaysToMerge"`
	FixIssueTotal  int64     `json:"fixIssueTotal"`
	FixIssueOpen   int64     `json:"fixIssueOpen"`
}

// PeriodMetrics is the aggregated, scoped view of one or more periods
type PeriodMetrics struct {
	Period      string                     `json:"period"`
	GeneratedAt time.Time                  `json:"generatedAt"`
	Weeks       int                        `json:"weeks"`
	Languages   []string                   `json:"languages"`
	Scope       ScopedView                 `json:"scope"`
	Analysis    AnalysisMetrics            `json:"analysis"`
	Workflows   map[string]WorkflowMetrics `json:"workflows"`
	Manual      *ManualMetrics             `json:"manual,omitempty"`
}
