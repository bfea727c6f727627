package aggregator

import (
	"math"
	"sort"
	"strings"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
)

// Aggregator derives scoped and multi-period views from snapshots. Every
// method is a pure function of its arguments.
type Aggregator interface {
	// ScopeToLanguage returns one language's records, or the cross-language
	// aggregate for domain.ScopeAll
	ScopeToLanguage(snapshot *domain.Snapshot, scope string) domain.ScopedView

	// AggregatePeriods combines several period snapshots into one
	AggregatePeriods(snapshots []*domain.Snapshot) (*domain.Snapshot, error)

	// Summarize computes the headline rates of a scoped snapshot
	Summarize(snapshot *domain.Snapshot, scope string) domain.Summary

	// EvaluateCriteria checks a summary against the production targets
	EvaluateCriteria(summary domain.Summary) []domain.Criterion

	// Trend returns one point per snapshot, oldest first
	Trend(snapshots []*domain.Snapshot, scope string) []domain.TrendPoint

	// Languages returns the tracked languages for a snapshot
	Languages(snapshot *domain.Snapshot) []string
}

// aggregator implements the Aggregator interface
type aggregator struct {
	languages []string
	targets   domain.Targets
}

// NewAggregator creates a new aggregator. With no languages configured, the
// languages present in each snapshot are tracked.
func NewAggregator(languages []string, targets domain.Targets) Aggregator {
	tracked := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, dup := seen[lang]; dup {
			continue
		}
		seen[lang] = struct{}{}
		tracked = append(tracked, lang)
	}
	return &aggregator{
		languages: tracked,
		targets:   targets,
	}
}

// Languages returns the tracked languages for a snapshot
func (a *aggregator) Languages(snapshot *domain.Snapshot) []string {
	if len(a.languages) > 0 {
		return a.languages
	}
	if snapshot == nil {
		return nil
	}
	return snapshot.Languages()
}

// ScopeToLanguage never fails: an unknown language or a nil snapshot yields
// a zeroed view with Available unset.
func (a *aggregator) ScopeToLanguage(snapshot *domain.Snapshot, scope string) domain.ScopedView {
	scope = normalizeScope(scope)
	view := domain.ScopedView{Scope: scope}
	if snapshot == nil {
		return view
	}

	if scope != domain.ScopeAll {
		lm, ok := snapshot.Language(scope)
		if !ok {
			return view
		}
		view.Available = true
		if lm.FixPrs != nil {
			view.FixPrs = *lm.FixPrs
		}
		if lm.FixIssues != nil {
			view.FixIssues = *lm.FixIssues
		}
		return view
	}

	view.Available = true

	// Multi-period aggregates carry their own cross-language records
	if cross := snapshot.CrossLanguage; cross != nil {
		if cross.FixPrs != nil {
			view.FixPrs = *cross.FixPrs
		}
		if cross.FixIssues != nil {
			view.FixIssues = *cross.FixIssues
		}
		return view
	}

	var prs []domain.PRMetrics
	var issues []domain.IssueMetrics
	for _, lang := range a.Languages(snapshot) {
		lm, ok := snapshot.Language(lang)
		if !ok {
			continue
		}
		if lm.FixPrs != nil {
			prs = append(prs, *lm.FixPrs)
		}
		if lm.FixIssues != nil {
			issues = append(issues, *lm.FixIssues)
		}
	}

	// Single-language snapshots only carry the top-level records
	if len(prs) == 0 && len(issues) == 0 {
		view.FixPrs = snapshot.FixPrs
		view.FixIssues = snapshot.FixIssues
		return view
	}

	view.FixPrs = CombinePRs(prs)
	view.FixPrs.TimeSinceLastMergeDays = mostRecentMerge(prs)
	view.FixIssues = CombineIssues(issues)
	return view
}

// AggregatePeriods sums counters across periods and recombines averages
// weighted by each period's denominator count. Workflows and time-since
// fields come from the newest period. A single snapshot is returned as is.
func (a *aggregator) AggregatePeriods(snapshots []*domain.Snapshot) (*domain.Snapshot, error) {
	ordered := make([]*domain.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s != nil {
			ordered = append(ordered, s)
		}
	}

	switch len(ordered) {
	case 0:
		return nil, apperrors.NewNoDataError("no metrics snapshots available")
	case 1:
		return ordered[0], nil
	}

	domain.SortNewestFirst(ordered)
	newest := ordered[0]
	oldest := ordered[len(ordered)-1]

	out := &domain.Snapshot{
		GeneratedAt: newest.GeneratedAt,
		Period:      oldest.Label() + " to " + newest.Label(),
		Workflows:   copyWorkflows(newest.Workflows),
	}

	prs := make([]domain.PRMetrics, 0, len(ordered))
	issues := make([]domain.IssueMetrics, 0, len(ordered))
	analysis := make([]domain.AnalysisMetrics, 0, len(ordered))
	for _, s := range ordered {
		prs = append(prs, s.FixPrs)
		issues = append(issues, s.FixIssues)
		analysis = append(analysis, s.Analysis)
	}

	out.FixPrs = CombinePRs(prs)
	out.FixPrs.TimeSinceLastMergeDays = newest.FixPrs.TimeSinceLastMergeDays
	out.FixIssues = CombineIssues(issues)
	out.Analysis = CombineAnalysis(analysis)
	out.Analysis.TimeSinceLastAnalysisPrDays = newest.Analysis.TimeSinceLastAnalysisPrDays
	out.Analysis.TimeSinceLastAnalysisIssueDays = newest.Analysis.TimeSinceLastAnalysisIssueDays

	for _, lang := range periodLanguages(ordered) {
		lm, ok := combineLanguage(ordered, lang)
		if !ok {
			continue
		}
		if out.ByLanguage == nil {
			out.ByLanguage = make(map[string]domain.LanguageMetrics)
		}
		out.ByLanguage[lang] = lm
	}

	out.CrossLanguage = a.combineCrossLanguage(ordered)
	out.Manual = combineManual(ordered)

	return out, nil
}

// combineCrossLanguage folds each period's own "all" view, so periods that
// only carry top-level records still count toward the aggregate
func (a *aggregator) combineCrossLanguage(ordered []*domain.Snapshot) *domain.LanguageMetrics {
	prs := make([]domain.PRMetrics, 0, len(ordered))
	issues := make([]domain.IssueMetrics, 0, len(ordered))
	for _, s := range ordered {
		view := a.ScopeToLanguage(s, domain.ScopeAll)
		prs = append(prs, view.FixPrs)
		issues = append(issues, view.FixIssues)
	}

	combinedPRs := CombinePRs(prs)
	combinedPRs.TimeSinceLastMergeDays = prs[0].TimeSinceLastMergeDays
	combinedIssues := CombineIssues(issues)
	return &domain.LanguageMetrics{FixPrs: &combinedPRs, FixIssues: &combinedIssues}
}

// combineManual takes each scalar from the newest period that reports it and
// sums the quality distributions
func combineManual(ordered []*domain.Snapshot) *domain.ManualMetrics {
	var out *domain.ManualMetrics
	for _, s := range ordered {
		m := s.Manual
		if m == nil {
			continue
		}
		if out == nil {
			out = &domain.ManualMetrics{}
		}
		out.DetectionAccuracy = firstSet(out.DetectionAccuracy, m.DetectionAccuracy)
		out.AvgQualityScore = firstSet(out.AvgQualityScore, m.AvgQualityScore)
		out.DeveloperSatisfaction = firstSet(out.DeveloperSatisfaction, m.DeveloperSatisfaction)
		out.ContextUtilization = firstSet(out.ContextUtilization, m.ContextUtilization)
		out.FalsePositiveRate = firstSet(out.FalsePositiveRate, m.FalsePositiveRate)
		for i, n := range m.QualityDistribution {
			out.QualityDistribution[i] += n
		}
	}
	return out
}

func firstSet(current, candidate *float64) *float64 {
	if current != nil || candidate == nil {
		return current
	}
	v := *candidate
	return &v
}

// combineLanguage folds one language's records across newest-first periods
func combineLanguage(ordered []*domain.Snapshot, lang string) (domain.LanguageMetrics, bool) {
	var prs []domain.PRMetrics
	var issues []domain.IssueMetrics
	var latestPR *domain.PRMetrics

	for _, s := range ordered {
		lm, ok := s.Language(lang)
		if !ok {
			continue
		}
		if lm.FixPrs != nil {
			prs = append(prs, *lm.FixPrs)
			if latestPR == nil {
				latestPR = lm.FixPrs
			}
		}
		if lm.FixIssues != nil {
			issues = append(issues, *lm.FixIssues)
		}
	}

	var out domain.LanguageMetrics
	if len(prs) > 0 {
		combined := CombinePRs(prs)
		combined.TimeSinceLastMergeDays = latestPR.TimeSinceLastMergeDays
		out.FixPrs = &combined
	}
	if len(issues) > 0 {
		combined := CombineIssues(issues)
		out.FixIssues = &combined
	}
	return out, out.FixPrs != nil || out.FixIssues != nil
}

// periodLanguages returns the union of languages across snapshots, sorted
func periodLanguages(snapshots []*domain.Snapshot) []string {
	seen := make(map[string]struct{})
	for _, s := range snapshots {
		for _, lang := range s.Languages() {
			seen[lang] = struct{}{}
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// mostRecentMerge returns the smallest time-since-merge among records that
// have merged PRs
func mostRecentMerge(records []domain.PRMetrics) float64 {
	best := math.Inf(1)
	for _, r := range records {
		if r.Merged > 0 && r.TimeSinceLastMergeDays < best {
			best = r.TimeSinceLastMergeDays
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

func copyWorkflows(in map[string]domain.WorkflowMetrics) map[string]domain.WorkflowMetrics {
	if in == nil {
		return nil
	}
	out := make(map[string]domain.WorkflowMetrics, len(in))
	for name, wf := range in {
		out[name] = wf
	}
	return out
}

func normalizeScope(scope string) string {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return domain.ScopeAll
	}
	return scope
}
