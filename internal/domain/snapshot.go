package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

const (
	fixPrsSuffix    = "FixPrs"
	fixIssuesSuffix = "FixIssues"

	// LabelDateLayout formats period labels derived from generatedAt
	LabelDateLayout = "2006-01-02"
)

// Snapshot represents the metrics of one reporting period (RawPeriodMetrics)
type Snapshot struct {
	GeneratedAt time.Time                  `json:"generatedAt"`
	WeekOf      string                     `json:"weekOf,omitempty"`
	Period      string                     `json:"period,omitempty"` // set on multi-period aggregates
	FixPrs      PRMetrics                  `json:"fixPrs"`
	FixIssues   IssueMetrics               `json:"fixIssues"`
	Analysis    AnalysisMetrics            `json:"analysis"`
	Workflows   map[string]WorkflowMetrics `json:"workflows"`
	ByLanguage  map[string]LanguageMetrics `json:"byLanguage,omitempty"`
	Manual      *ManualMetrics             `json:"manual,omitempty"`

	// CrossLanguage holds the "all" records of a multi-period aggregate,
	// folded from each period's own cross-language view
	CrossLanguage *LanguageMetrics `json:"crossLanguage,omitempty"`
}

// snapshotJSON breaks the UnmarshalJSON recursion
type snapshotJSON Snapshot

// UnmarshalJSON accepts both the nested byLanguage shape and the older
// sibling-key shape ({lang}FixPrs / {lang}FixIssues). Nested records win
// when a language is present in both.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var decoded snapshotJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	decoded.ByLanguage = foldLanguageKeys(decoded.ByLanguage)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, msg := range raw {
		if lang, ok := languageKey(key, fixPrsSuffix); ok {
			var pr PRMetrics
			if err := json.Unmarshal(msg, &pr); err != nil {
				return err
			}
			lm := decoded.language(lang)
			if lm.FixPrs == nil {
				lm.FixPrs = &pr
			}
			decoded.ByLanguage[lang] = lm
			continue
		}
		if lang, ok := languageKey(key, fixIssuesSuffix); ok {
			var issues IssueMetrics
			if err := json.Unmarshal(msg, &issues); err != nil {
				return err
			}
			lm := decoded.language(lang)
			if lm.FixIssues == nil {
				lm.FixIssues = &issues
			}
			decoded.ByLanguage[lang] = lm
		}
	}

	*s = Snapshot(decoded)
	return nil
}

// foldLanguageKeys lowercases language keys. On a collision the record
// under the already-lowercase key wins, field by field.
func foldLanguageKeys(in map[string]LanguageMetrics) map[string]LanguageMetrics {
	if in == nil {
		return nil
	}

	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := keys[i] == strings.ToLower(keys[i]), keys[j] == strings.ToLower(keys[j])
		if li != lj {
			return li
		}
		return keys[i] < keys[j]
	})

	out := make(map[string]LanguageMetrics, len(in))
	for _, key := range keys {
		lang := strings.ToLower(key)
		lm, rec := out[lang], in[key]
		if lm.FixPrs == nil {
			lm.FixPrs = rec.FixPrs
		}
		if lm.FixIssues == nil {
			lm.FixIssues = rec.FixIssues
		}
		out[lang] = lm
	}
	return out
}

func (s *snapshotJSON) language(lang string) LanguageMetrics {
	if s.ByLanguage == nil {
		s.ByLanguage = make(map[string]LanguageMetrics)
	}
	return s.ByLanguage[lang]
}

// languageKey extracts "python" from "pythonFixPrs"
func languageKey(key, suffix string) (string, bool) {
	if len(key) <= len(suffix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	return strings.ToLower(strings.TrimSuffix(key, suffix)), true
}

// Language returns the per-language record for lang
func (s *Snapshot) Language(lang string) (LanguageMetrics, bool) {
	lm, ok := s.ByLanguage[strings.ToLower(lang)]
	if !ok || (lm.FixPrs == nil && lm.FixIssues == nil) {
		return LanguageMetrics{}, false
	}
	return lm, true
}

// Languages returns the languages present in the snapshot, sorted
func (s *Snapshot) Languages() []string {
	langs := make([]string, 0, len(s.ByLanguage))
	for lang := range s.ByLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Label identifies the reporting period of the snapshot
func (s *Snapshot) Label() string {
	switch {
	case s.Period != "":
		return s.Period
	case s.WeekOf != "":
		return s.WeekOf
	case s.GeneratedAt.IsZero():
		return ""
	default:
		return s.GeneratedAt.UTC().Format(LabelDateLayout)
	}
}

// SortNewestFirst orders snapshots by generatedAt, newest first, in place
func SortNewestFirst(snapshots []*Snapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].GeneratedAt.After(snapshots[j].GeneratedAt)
	})
}

// SnapshotSummary represents an archived snapshot without its payload
type SnapshotSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generatedAt"`
	WeekOf      string    `json:"weekOf,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StoredSnapshot represents an archived snapshot
type StoredSnapshot struct {
	SnapshotSummary
	Snapshot *Snapshot `json:"snapshot"`
}
