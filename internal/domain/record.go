package domain

import "time"

// PullRequestState represents the state of a pull request
type PullRequestState string

const (
	PullRequestOpen   PullRequestState = "open"
	PullRequestMerged PullRequestState = "merged"
	PullRequestClosed PullRequestState = "closed" // closed without merge
)

// PullRequestRecord represents a pull request collected from GitHub
type PullRequestRecord struct {
	Number       int
	Title        string
	Author       string
	Labels       []string
	State        PullRequestState
	CreatedAt    time.Time
	MergedAt     *time.Time
	ClosedAt     *time.Time
	Comments     int
	Commits      int
	ReviewRounds int
}

// HasLabel reports whether the pull request carries label
func (p *PullRequestRecord) HasLabel(label string) bool {
	return hasLabel(p.Labels, label)
}

// IssueRecord represents an issue collected from GitHub
type IssueRecord struct {
	Number      int
	Title       string
	Labels      []string
	Assignees   []string
	State       string // open, closed
	StateReason string // completed, not_planned
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// HasLabel reports whether the issue carries label
func (i *IssueRecord) HasLabel(label string) bool {
	return hasLabel(i.Labels, label)
}

// WorkflowRunRecord represents one completed or in-flight workflow run
type WorkflowRunRecord struct {
	Workflow   string
	Conclusion string // success, failure, cancelled, skipped, or empty while running
	CreatedAt  time.Time
	Duration   time.Duration
}

// CollectedData is the raw input a snapshot is built from
type CollectedData struct {
	PullRequests []*PullRequestRecord
	Issues       []*IssueRecord
	WorkflowRuns []*WorkflowRunRecord
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
