package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
)

const weeklySnapshot = `{
  "generatedAt": "2025-01-13T09:00:00Z",
  "weekOf": "2025-01-13",
  "fixPrs": {"total": 10, "open": 2, "merged": 6, "closedNotMerged": 2, "mergeRate": 12.5, "avgDaysToMerge": 1.5},
  "fixIssues": {"total": 8, "open": 3, "closed": 5},
  "analysis": {"openPrs": 1, "mergedPrs": 3, "closedPrs": 0},
  "workflows": {"aiParityScan": {"success": 9, "failure": 1, "totalRuns": 10}},
  "pythonFixPrs": {"total": 4, "merged": 2},
  "nodejsFixIssues": {"total": 2, "open": 1, "closed": 1}
}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		valid  bool
		fields []string
	}{
		{name: "weekly snapshot", input: weeklySnapshot, valid: true},
		{name: "missing generatedAt", input: `{"fixPrs": {"total": 1}}`, fields: []string{"(root)"}},
		{name: "negative count", input: `{"generatedAt": "2025-01-13T09:00:00Z", "fixPrs": {"total": -1}}`, fields: []string{"fixPrs.total"}},
		{name: "percent out of range", input: `{"generatedAt": "2025-01-13T09:00:00Z", "fixIssues": {"closeRate": 140}}`, fields: []string{"fixIssues.closeRate"}},
		{name: "bad timestamp", input: `{"generatedAt": "last monday"}`, fields: []string{"generatedAt"}},
		{name: "manual pending", input: `{"generatedAt": "2025-01-13T09:00:00Z", "manual": {"detectionAccuracy": 91, "avgQualityScore": null, "qualityDistribution": [3, 1, 0, 0, 0]}}`, valid: true},
		{name: "score out of range", input: `{"generatedAt": "2025-01-13T09:00:00Z", "manual": {"developerSatisfaction": 6}}`, fields: []string{"manual.developerSatisfaction"}},
		{name: "too many grades", input: `{"generatedAt": "2025-01-13T09:00:00Z", "manual": {"qualityDistribution": [1, 1, 1, 1, 1, 1]}}`, fields: []string{"manual.qualityDistribution"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Validate([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)

			var fields []string
			for _, fe := range result.Errors {
				fields = append(fields, fe.Field)
			}
			for _, want := range tt.fields {
				assert.Contains(t, fields, want)
			}
		})
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	_, err := Validate([]byte(`{"generatedAt":`))
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestParseNormalizesRates(t *testing.T) {
	s, err := Parse([]byte(weeklySnapshot))
	require.NoError(t, err)

	assert.InDelta(t, 60.0, s.FixPrs.MergeRate, 1e-9)
	assert.Equal(t, 62.5, s.FixIssues.CloseRate)
	assert.Equal(t, 75.0, s.Analysis.MergedPrPercent)
	assert.InDelta(t, 90.0, s.Workflows["aiParityScan"].SuccessRate, 1e-9)
	assert.Equal(t, "2025-01-13", s.Label())

	py, ok := s.Language("python")
	require.True(t, ok)
	assert.Equal(t, 50.0, py.FixPrs.MergeRate)

	node, ok := s.Language("nodejs")
	require.True(t, ok)
	assert.Nil(t, node.FixPrs)
	assert.Equal(t, 50.0, node.FixIssues.CloseRate)
}

func TestParseRejectsSchemaViolation(t *testing.T) {
	_, err := Parse([]byte(`{"generatedAt": "2025-01-13T09:00:00Z", "fixPrs": {"merged": -3}}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
	assert.Contains(t, err.Error(), "fixPrs.merged")
}

func TestEncodeWritesCanonicalForm(t *testing.T) {
	s, err := Decode(strings.NewReader(weeklySnapshot))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))

	out := buf.String()
	assert.Contains(t, out, `"byLanguage"`)
	assert.NotContains(t, out, `"pythonFixPrs"`)

	again, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.FixPrs, again.FixPrs)
	assert.Equal(t, s.ByLanguage, again.ByLanguage)
}
