package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestGetMetrics(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/metrics", r.URL.Path)
		assert.Equal(t, "python", r.URL.Query().Get("scope"))
		assert.Equal(t, "4", r.URL.Query().Get("weeks"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data": {"period": "2025-01-06 to 2025-01-27", "weeks": 4,
			"scope": {"scope": "python", "available": true, "fixPrs": {"total": 12, "merged": 9, "mergeRate": 75}}}}`)
	})

	metrics, err := c.GetMetrics(context.Background(), "python", 4)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06 to 2025-01-27", metrics.Period)
	assert.Equal(t, 4, metrics.Weeks)
	assert.True(t, metrics.Scope.Available)
	assert.Equal(t, 75.0, metrics.Scope.FixPrs.MergeRate)
}

func TestGetCriteria(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/metrics/criteria", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"data": {"allMet": false, "criteria": [
			{"name": "Fix PR merge rate", "value": 60, "target": 70, "comparison": "at_least", "met": false}]}}`)
	})

	report, err := c.GetCriteria(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, report.Criteria, 1)
	assert.False(t, report.AllMet)
	assert.Equal(t, 10.0, report.Criteria[0].Gap())
}

func TestCreateAndDeleteSnapshot(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"generatedAt": "2025-01-13T09:00:00Z"}`, string(body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"data": {"id": "abc", "weekOf": "2025-01-13"}}`)
		case http.MethodDelete:
			assert.Equal(t, "/api/v1/snapshots/abc", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	summary, err := c.CreateSnapshot(context.Background(), []byte(`{"generatedAt": "2025-01-13T09:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", summary.ID)

	assert.NoError(t, c.DeleteSnapshot(context.Background(), "abc"))
}

func TestAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": {"code": "NO_DATA", "message": "no metrics snapshots available"}}`)
	})

	_, err := c.GetSummary(context.Background(), "all", 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "NO_DATA", apiErr.Code)
	assert.Contains(t, err.Error(), "no metrics snapshots available")
}

func TestHealthCheck(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ok"}`)
	})
	assert.NoError(t, c.HealthCheck(context.Background()))
}
