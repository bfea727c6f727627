package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
	"github.com/kurihiro0119/parity-metrics/internal/storage/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticSource serves fixed snapshots
type staticSource []*domain.Snapshot

func (s staticSource) Load(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	out := append([]*domain.Snapshot(nil), s...)
	domain.SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func weekSnapshot(day int, total, merged int64, avgDays float64) *domain.Snapshot {
	prs := domain.PRMetrics{Total: total, Merged: merged, CreatedByAgent: merged, AvgDaysToMerge: avgDays}
	s := &domain.Snapshot{
		GeneratedAt: time.Date(2025, 1, day, 9, 0, 0, 0, time.UTC),
		WeekOf:      time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		FixPrs:      prs,
		FixIssues:   domain.IssueMetrics{Total: total, AssignedToAgent: total},
		Analysis:    domain.AnalysisMetrics{MergedPrs: 3, OpenPrs: 1},
		Workflows: map[string]domain.WorkflowMetrics{
			"aiParityScan": {TotalRuns: 50, Success: 49, Failure: 1, SuccessRate: 98},
		},
		ByLanguage: map[string]domain.LanguageMetrics{
			"python": {FixPrs: &prs},
		},
	}
	aggregator.Normalize(s)
	return s
}

func newTestRouter(t *testing.T, source snapshot.Source, store storage.Storage) *gin.Engine {
	t.Helper()
	agg := aggregator.NewAggregator([]string{"python"}, domain.DefaultTargets())
	return SetupRoutes(NewHandler(source, store, agg, nil))
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, staticSource{}, nil)

	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetMetrics(t *testing.T) {
	source := staticSource{
		weekSnapshot(6, 10, 5, 4.0),
		weekSnapshot(13, 10, 5, 6.0),
	}
	router := newTestRouter(t, source, nil)

	t.Run("newest week by default", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/metrics?scope=python", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp domain.PeriodMetrics
		decodeData(t, w, &resp)
		assert.Equal(t, "2025-01-13", resp.Period)
		assert.Equal(t, 1, resp.Weeks)
		assert.Equal(t, "python", resp.Scope.Scope)
		assert.True(t, resp.Scope.Available)
		assert.Equal(t, 6.0, resp.Scope.FixPrs.AvgDaysToMerge)
	})

	t.Run("aggregates weeks", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/metrics?weeks=2", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp domain.PeriodMetrics
		decodeData(t, w, &resp)
		assert.Equal(t, "2025-01-06 to 2025-01-13", resp.Period)
		assert.Equal(t, "all", resp.Scope.Scope)
		assert.Equal(t, int64(20), resp.Scope.FixPrs.Total)
		assert.InDelta(t, 5.0, resp.Scope.FixPrs.AvgDaysToMerge, 1e-9)
		assert.Equal(t, []string{"python"}, resp.Languages)
	})

	t.Run("unknown language", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/metrics?scope=rust", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp domain.PeriodMetrics
		decodeData(t, w, &resp)
		assert.False(t, resp.Scope.Available)
		assert.Zero(t, resp.Scope.FixPrs.Total)
	})

	t.Run("bad weeks", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/metrics?weeks=zero", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "BAD_REQUEST", errorCode(t, w))
	})
}

func TestGetMetricsNoData(t *testing.T) {
	router := newTestRouter(t, staticSource{}, nil)

	w := do(t, router, http.MethodGet, "/api/v1/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_DATA", errorCode(t, w))
}

func TestGetSummaryAndCriteria(t *testing.T) {
	router := newTestRouter(t, staticSource{weekSnapshot(13, 10, 8, 2.0)}, nil)

	w := do(t, router, http.MethodGet, "/api/v1/metrics/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary domain.Summary
	decodeData(t, w, &summary)
	assert.InDelta(t, 80.0, summary.FixPrMergeRate, 1e-9)
	assert.InDelta(t, 75.0, summary.AnalysisMergeRate, 1e-9)
	assert.InDelta(t, 2.0, summary.WorkflowFailureRate, 1e-9)

	w = do(t, router, http.MethodGet, "/api/v1/metrics/criteria", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp domain.CriteriaReport
	decodeData(t, w, &resp)
	require.Len(t, resp.Criteria, 9)
	assert.False(t, resp.AllMet)
	assert.Equal(t, 5, resp.Pending)
}

func TestGetMetricsManual(t *testing.T) {
	s := weekSnapshot(13, 10, 8, 2.0)
	accuracy := 94.0
	s.Manual = &domain.ManualMetrics{DetectionAccuracy: &accuracy}
	router := newTestRouter(t, staticSource{s}, nil)

	w := do(t, router, http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp domain.PeriodMetrics
	decodeData(t, w, &resp)
	require.NotNil(t, resp.Manual)
	require.NotNil(t, resp.Manual.DetectionAccuracy)
	assert.Equal(t, 94.0, *resp.Manual.DetectionAccuracy)

	w = do(t, router, http.MethodGet, "/api/v1/metrics/criteria", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.CriteriaReport
	decodeData(t, w, &report)
	assert.Equal(t, 4, report.Pending)
	for _, c := range report.Criteria {
		if c.Name == "Detection accuracy" {
			assert.True(t, c.Met)
			assert.False(t, c.Pending)
		}
	}
}

func TestCreateSnapshotTooLarge(t *testing.T) {
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "upload.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	router := newTestRouter(t, snapshot.NewStoreSource(store), store)

	// valid JSON prefix, so a silently truncated read would fail to parse
	// rather than report the limit
	body := `{"generatedAt": "2025-01-13T09:00:00Z", "weekOf": "` + strings.Repeat("x", maxUploadBytes) + `"}`

	w := do(t, router, http.MethodPost, "/api/v1/snapshots", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "4 MiB upload limit")

	list, err := store.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetTrend(t *testing.T) {
	source := staticSource{
		weekSnapshot(20, 10, 9, 1.0),
		weekSnapshot(6, 10, 5, 4.0),
		weekSnapshot(13, 10, 7, 2.0),
	}
	router := newTestRouter(t, source, nil)

	w := do(t, router, http.MethodGet, "/api/v1/metrics/trend?weeks=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var points []domain.TrendPoint
	decodeData(t, w, &points)
	require.Len(t, points, 2)
	assert.Equal(t, "2025-01-13", points[0].Label)
	assert.Equal(t, "2025-01-20", points[1].Label)
}

func TestSnapshotArchive(t *testing.T) {
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	router := newTestRouter(t, snapshot.NewStoreSource(store), store)

	body := `{"generatedAt": "2025-01-13T09:00:00Z", "weekOf": "2025-01-13",
		"fixPrs": {"total": 4, "merged": 3}, "pythonFixPrs": {"total": 2, "merged": 2}}`

	w := do(t, router, http.MethodPost, "/api/v1/snapshots", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.SnapshotSummary
	decodeData(t, w, &created)
	require.NotEmpty(t, created.ID)

	w = do(t, router, http.MethodGet, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.SnapshotSummary
	decodeData(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	w = do(t, router, http.MethodGet, "/api/v1/snapshots/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/metrics?scope=python", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp domain.PeriodMetrics
	decodeData(t, w, &resp)
	assert.InDelta(t, 100.0, resp.Scope.FixPrs.MergeRate, 1e-9)

	w = do(t, router, http.MethodPost, "/api/v1/snapshots", `{"fixPrs": {"total": 1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/v1/snapshots/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/snapshots/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestSnapshotArchiveNotConfigured(t *testing.T) {
	router := newTestRouter(t, staticSource{}, nil)

	w := do(t, router, http.MethodGet, "/api/v1/snapshots", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrometheusMetrics(t *testing.T) {
	router := newTestRouter(t, staticSource{weekSnapshot(13, 10, 8, 2.0)}, nil)

	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.String()
	assert.Contains(t, out, "parity_snapshot_available 1")
	assert.Contains(t, out, `parity_fix_pr_merge_rate_percent{scope="all"} 80`)
	assert.Contains(t, out, `parity_fix_pr_merge_rate_percent{scope="python"} 80`)
	assert.Contains(t, out, `parity_workflow_runs{conclusion="failure",workflow="aiParityScan"} 1`)
	assert.NotContains(t, out, "parity_manual_metric")
}

func TestPrometheusManualMetrics(t *testing.T) {
	s := weekSnapshot(13, 10, 8, 2.0)
	satisfaction := 4.5
	s.Manual = &domain.ManualMetrics{
		DeveloperSatisfaction: &satisfaction,
		QualityDistribution:   domain.QualityGrades{1, 1, 0, 0, 0},
	}
	router := newTestRouter(t, staticSource{s}, nil)

	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.String()
	assert.Contains(t, out, `parity_manual_metric{metric="developer_satisfaction"} 4.5`)
	assert.Contains(t, out, `parity_manual_metric{metric="quality_score"} 4.5`)
	assert.NotContains(t, out, `metric="detection_accuracy"`)
}

func TestPrometheusMetricsWithoutSnapshot(t *testing.T) {
	router := newTestRouter(t, staticSource{}, nil)

	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parity_snapshot_available 0")
}
