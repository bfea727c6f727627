package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

func TestNormalizeRecomputesFromCounts(t *testing.T) {
	s := &domain.Snapshot{
		FixPrs:    domain.PRMetrics{Total: 4, Merged: 1, MergeRate: 99},
		FixIssues: domain.IssueMetrics{Total: 0, CloseRate: 12.5},
		Analysis:  domain.AnalysisMetrics{OpenPrs: 1, MergedPrs: 1, MergedPrPercent: 10},
		Workflows: map[string]domain.WorkflowMetrics{
			"aiParityScan": {Success: 3, TotalRuns: 4, SuccessRate: 1},
			"idle":         {SuccessRate: 42},
		},
		ByLanguage: map[string]domain.LanguageMetrics{
			"python": {FixPrs: prs(domain.PRMetrics{Total: 2, Merged: 2})},
		},
	}

	Normalize(s)

	assert.InDelta(t, 25.0, s.FixPrs.MergeRate, 1e-9)
	assert.InDelta(t, 12.5, s.FixIssues.CloseRate, 1e-9, "kept when nothing to derive from")
	assert.InDelta(t, 50.0, s.Analysis.MergedPrPercent, 1e-9)
	assert.InDelta(t, 75.0, s.Workflows["aiParityScan"].SuccessRate, 1e-9)
	assert.InDelta(t, 42.0, s.Workflows["idle"].SuccessRate, 1e-9)
	assert.InDelta(t, 100.0, s.ByLanguage["python"].FixPrs.MergeRate, 1e-9)

	Normalize(nil)
}

func TestCombineEmpty(t *testing.T) {
	assert.True(t, CombinePRs(nil).IsZero())
	assert.True(t, CombineIssues(nil).IsZero())
	assert.Equal(t, domain.AnalysisMetrics{}, CombineAnalysis(nil))
}
