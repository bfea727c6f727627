package collector

import (
	"context"
	"time"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// Collector defines the interface for collecting parity pipeline data from GitHub
type Collector interface {
	// GetPullRequests retrieves fix and analysis pull requests created in [since, until]
	GetPullRequests(ctx context.Context, owner, repo string, since, until time.Time) ([]*domain.PullRequestRecord, error)

	// GetIssues retrieves fix and analysis issues created in [since, until]
	GetIssues(ctx context.Context, owner, repo string, since, until time.Time) ([]*domain.IssueRecord, error)

	// GetWorkflowRuns retrieves the runs of one workflow file created in [since, until]
	GetWorkflowRuns(ctx context.Context, owner, repo, workflow, file string, since, until time.Time) ([]*domain.WorkflowRunRecord, error)

	// Collect gathers everything a snapshot is built from and builds it
	Collect(ctx context.Context, owner, repo string, since, until time.Time) (*domain.Snapshot, error)
}

// ProgressCallback is a callback function for reporting progress
type ProgressCallback func(step string, progress float64)
