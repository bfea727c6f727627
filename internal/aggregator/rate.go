package aggregator

import "github.com/kurihiro0119/parity-metrics/internal/domain"

// ComputeRate returns numerator as a percentage of denominator, or 0 when
// the denominator is not positive.
func ComputeRate(numerator, denominator int64) float64 {
	if denominator <= 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// Normalize recomputes every rate field of s from its counters. Counts are
// authoritative; a pre-computed rate survives only when its denominator is
// zero. It mutates s and must run before the snapshot is shared.
func Normalize(s *domain.Snapshot) {
	if s == nil {
		return
	}

	normalizePRs(&s.FixPrs)
	normalizeIssues(&s.FixIssues)

	for lang, lm := range s.ByLanguage {
		if lm.FixPrs != nil {
			normalizePRs(lm.FixPrs)
		}
		if lm.FixIssues != nil {
			normalizeIssues(lm.FixIssues)
		}
		s.ByLanguage[lang] = lm
	}

	if total := s.Analysis.TotalPrs(); total > 0 {
		s.Analysis.MergedPrPercent = ComputeRate(s.Analysis.MergedPrs, total)
		s.Analysis.ClosedPrPercent = ComputeRate(s.Analysis.ClosedPrs, total)
	}

	for name, wf := range s.Workflows {
		if wf.TotalRuns > 0 {
			wf.SuccessRate = ComputeRate(wf.Success, wf.TotalRuns)
			s.Workflows[name] = wf
		}
	}
}

func normalizePRs(p *domain.PRMetrics) {
	if p.Total > 0 {
		p.MergeRate = ComputeRate(p.Merged, p.Total)
	}
}

func normalizeIssues(i *domain.IssueMetrics) {
	if i.Total > 0 {
		i.CloseRate = ComputeRate(i.Closed, i.Total)
	}
}
