package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
)

func newTestCollector(t *testing.T, mux *http.ServeMux) *githubCollector {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	opts := testOptions()
	opts.Workflows = map[string]string{"aiParityScan": "ai-parity-scan.yml"}
	return newGitHubCollector(client, newRateLimiter(0, nil), opts, nil)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestCollect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/sdk/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"number": 3, "state": "open", "created_at": "2025-01-14T12:00:00Z",
			 "user": {"login": "Copilot"}, "labels": [{"name": "parity-fix"}, {"name": "python"}]},
			{"number": 2, "state": "closed", "created_at": "2025-01-10T12:00:00Z",
			 "merged_at": "2025-01-12T12:00:00Z", "closed_at": "2025-01-12T12:00:00Z",
			 "user": {"login": "Copilot"}, "labels": [{"name": "parity-fix"}, {"name": "python"}]},
			{"number": 1, "state": "closed", "created_at": "2025-01-09T12:00:00Z",
			 "user": {"login": "octocat"}, "labels": [{"name": "docs"}]},
			{"number": 0, "state": "closed", "created_at": "2024-12-01T12:00:00Z",
			 "user": {"login": "octocat"}, "labels": [{"name": "parity-fix"}]}
		]`)
	})
	for _, n := range []int{2, 3} {
		n := n
		mux.HandleFunc(fmt.Sprintf("/repos/acme/sdk/pulls/%d", n), func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, fmt.Sprintf(`{"number": %d, "comments": 2, "review_comments": 1, "commits": 4}`, n))
		})
		mux.HandleFunc(fmt.Sprintf("/repos/acme/sdk/pulls/%d/reviews", n), func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `[{"state": "CHANGES_REQUESTED"}, {"state": "APPROVED"}, {"state": "PENDING"}]`)
		})
	}
	mux.HandleFunc("/repos/acme/sdk/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("labels") != "parity-fix" {
			writeJSON(w, `[]`)
			return
		}
		writeJSON(w, `[
			{"number": 20, "state": "open", "created_at": "2025-01-11T12:00:00Z", "updated_at": "2025-01-11T12:00:00Z",
			 "labels": [{"name": "parity-fix"}, {"name": "nodejs"}], "assignees": [{"login": "Copilot"}]},
			{"number": 3, "state": "open", "created_at": "2025-01-14T12:00:00Z",
			 "labels": [{"name": "parity-fix"}], "pull_request": {"url": "https://example.test/pulls/3"}}
		]`)
	})
	mux.HandleFunc("/repos/acme/sdk/actions/workflows/ai-parity-scan.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("created"), "..")
		writeJSON(w, `{"total_count": 2, "workflow_runs": [
			{"conclusion": "success", "created_at": "2025-01-14T00:00:00Z",
			 "run_started_at": "2025-01-14T00:00:00Z", "updated_at": "2025-01-14T00:02:00Z"},
			{"conclusion": "failure", "created_at": "2025-01-13T00:00:00Z",
			 "run_started_at": "2025-01-13T00:00:00Z", "updated_at": "2025-01-13T00:01:00Z"}
		]}`)
	})

	c := newTestCollector(t, mux)
	since := now.Add(-30 * day)
	snap, err := c.Collect(context.Background(), "acme", "sdk", since, now)
	require.NoError(t, err)

	assert.Equal(t, int64(2), snap.FixPrs.Total)
	assert.Equal(t, int64(1), snap.FixPrs.Merged)
	assert.Equal(t, int64(2), snap.FixPrs.CreatedByAgent)
	assert.Equal(t, int64(4), snap.FixPrs.ReviewRounds)
	assert.InDelta(t, 3.0, snap.FixPrs.AvgCommentsPerPr, 1e-9)
	assert.InDelta(t, 4.0, snap.FixPrs.AvgCommitsPerPr, 1e-9)
	assert.InDelta(t, 2.0, snap.FixPrs.AvgDaysToMerge, 1e-9)

	assert.Equal(t, int64(1), snap.FixIssues.Total)
	assert.Equal(t, int64(1), snap.FixIssues.AssignedToAgent)

	node, ok := snap.Language("nodejs")
	require.True(t, ok)
	assert.Equal(t, int64(1), node.FixIssues.Total)

	scan := snap.Workflows["aiParityScan"]
	assert.Equal(t, int64(2), scan.TotalRuns)
	assert.InDelta(t, 50.0, scan.SuccessRate, 1e-9)
	assert.InDelta(t, 90.0, scan.AvgDurationSeconds, 1e-9)

	assert.Equal(t, "2025-01-13", snap.WeekOf)
}

func TestCollectUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/sdk/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})

	c := newTestCollector(t, mux)
	_, err := c.Collect(context.Background(), "acme", "sdk", now.Add(-day), now)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestCollectRateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/sdk/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Hour).Unix()))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	})

	c := newTestCollector(t, mux)
	_, err := c.Collect(context.Background(), "acme", "sdk", now.Add(-day), now)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestGetWorkflowRunsMissingWorkflow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/sdk/actions/workflows/missing.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	c := newTestCollector(t, mux)
	runs, err := c.GetWorkflowRuns(context.Background(), "acme", "sdk", "missing", "missing.yml", now.Add(-day), now)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
