package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
)

// githubCollector implements Collector using GitHub API
type githubCollector struct {
	client      *github.Client
	rateLimiter RateLimiter
	opts        Options
	logger      *slog.Logger
	onProgress  ProgressCallback
}

// NewGitHubCollector creates a new GitHub collector
func NewGitHubCollector(token string, opts Options, logger *slog.Logger) Collector {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return newGitHubCollector(github.NewClient(tc), NewRateLimiter(logger), opts, logger)
}

func newGitHubCollector(client *github.Client, limiter RateLimiter, opts Options, logger *slog.Logger) *githubCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &githubCollector{
		client:      client,
		rateLimiter: limiter,
		opts:        opts,
		logger:      logger,
	}
}

// WithProgress sets a callback invoked after each collection step
func WithProgress(c Collector, fn ProgressCallback) Collector {
	if gc, ok := c.(*githubCollector); ok {
		gc.onProgress = fn
	}
	return c
}

// GetPullRequests retrieves fix and analysis pull requests for a repository
func (c *githubCollector) GetPullRequests(ctx context.Context, owner, repo string, since, until time.Time) ([]*domain.PullRequestRecord, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var records []*domain.PullRequestRecord
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		prs, resp, err := c.client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, mapGitHubError(fmt.Sprintf("failed to list pull requests for %s/%s", owner, repo), err)
		}

		c.updateRateLimitFromResponse(resp)

		for _, pr := range prs {
			createdAt := pr.GetCreatedAt().Time
			if createdAt.Before(since) {
				// PRs are sorted by created date desc, so we can stop here
				return c.enrichPullRequests(ctx, owner, repo, records)
			}
			if createdAt.After(until) {
				continue
			}

			record := toPullRequestRecord(pr)
			if !c.tracked(record.Labels) {
				continue
			}
			records = append(records, record)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return c.enrichPullRequests(ctx, owner, repo, records)
}

// enrichPullRequests fills comments, commits and review rounds, which the
// list endpoint does not return
func (c *githubCollector) enrichPullRequests(ctx context.Context, owner, repo string, records []*domain.PullRequestRecord) ([]*domain.PullRequestRecord, error) {
	var wg sync.WaitGroup
	errCh := make(chan error, len(records))

	// Limit concurrent goroutines
	semaphore := make(chan struct{}, 5)

	for _, record := range records {
		wg.Add(1)
		go func(r *domain.PullRequestRecord) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := c.enrichPullRequest(ctx, owner, repo, r); err != nil {
				errCh <- err
			}
		}(record)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	return records, nil
}

func (c *githubCollector) enrichPullRequest(ctx context.Context, owner, repo string, r *domain.PullRequestRecord) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	detail, resp, err := c.client.PullRequests.Get(ctx, owner, repo, r.Number)
	if err != nil {
		return mapGitHubError(fmt.Sprintf("failed to get pull request #%d", r.Number), err)
	}
	c.updateRateLimitFromResponse(resp)

	r.Comments = detail.GetComments() + detail.GetReviewComments()
	r.Commits = detail.GetCommits()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	reviews, resp, err := c.client.PullRequests.ListReviews(ctx, owner, repo, r.Number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return mapGitHubError(fmt.Sprintf("failed to list reviews for #%d", r.Number), err)
	}
	c.updateRateLimitFromResponse(resp)

	for _, review := range reviews {
		if review.GetState() != "PENDING" {
			r.ReviewRounds++
		}
	}
	return nil
}

// GetIssues retrieves fix and analysis issues for a repository
func (c *githubCollector) GetIssues(ctx context.Context, owner, repo string, since, until time.Time) ([]*domain.IssueRecord, error) {
	var records []*domain.IssueRecord
	seen := make(map[int]struct{})

	for _, label := range []string{c.opts.FixLabel, c.opts.AnalysisLabel} {
		if label == "" {
			continue
		}

		issues, err := c.listIssues(ctx, owner, repo, label, since, until)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			if _, dup := seen[issue.Number]; dup {
				continue
			}
			seen[issue.Number] = struct{}{}
			records = append(records, issue)
		}
	}

	return records, nil
}

func (c *githubCollector) listIssues(ctx context.Context, owner, repo, label string, since, until time.Time) ([]*domain.IssueRecord, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var records []*domain.IssueRecord
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Labels:      []string{label},
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, mapGitHubError(fmt.Sprintf("failed to list issues for %s/%s", owner, repo), err)
		}

		c.updateRateLimitFromResponse(resp)

		for _, issue := range issues {
			// The issues endpoint also returns pull requests
			if issue.IsPullRequest() {
				continue
			}
			createdAt := issue.GetCreatedAt().Time
			if createdAt.Before(since) || createdAt.After(until) {
				continue
			}
			records = append(records, toIssueRecord(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// GetWorkflowRuns retrieves the runs of one workflow file
func (c *githubCollector) GetWorkflowRuns(ctx context.Context, owner, repo, workflow, file string, since, until time.Time) ([]*domain.WorkflowRunRecord, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var records []*domain.WorkflowRunRecord
	opts := &github.ListWorkflowRunsOptions{
		Created:     since.UTC().Format("2006-01-02T15:04:05Z") + ".." + until.UTC().Format("2006-01-02T15:04:05Z"),
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		runs, resp, err := c.client.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, file, opts)
		if err != nil {
			// Workflow file not present in this repository
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				c.logger.Warn("workflow not found", "workflow", workflow, "file", file)
				return records, nil
			}
			return nil, mapGitHubError(fmt.Sprintf("failed to list runs of %s", file), err)
		}

		c.updateRateLimitFromResponse(resp)

		for _, run := range runs.WorkflowRuns {
			records = append(records, toWorkflowRunRecord(workflow, run))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// Collect gathers pull requests and issues created in [since, until], plus
// workflow runs over the trailing window ending at until, and builds a snapshot
func (c *githubCollector) Collect(ctx context.Context, owner, repo string, since, until time.Time) (*domain.Snapshot, error) {
	data := &domain.CollectedData{}
	var err error

	c.logger.Info("collecting pull requests", "repo", owner+"/"+repo)
	if data.PullRequests, err = c.GetPullRequests(ctx, owner, repo, since, until); err != nil {
		return nil, err
	}
	c.progress("pull requests", 1.0/3)

	c.logger.Info("collecting issues", "repo", owner+"/"+repo)
	if data.Issues, err = c.GetIssues(ctx, owner, repo, since, until); err != nil {
		return nil, err
	}
	c.progress("issues", 2.0/3)

	windowStart := until.Add(-c.workflowWindow())
	for _, name := range sortedNames(c.opts.Workflows) {
		runs, err := c.GetWorkflowRuns(ctx, owner, repo, name, c.opts.Workflows[name], windowStart, until)
		if err != nil {
			return nil, err
		}
		data.WorkflowRuns = append(data.WorkflowRuns, runs...)
	}
	c.progress("workflows", 1)

	opts := c.opts
	if opts.Now.IsZero() {
		opts.Now = until
	}
	if opts.WeekOf == "" {
		opts.WeekOf = WeekStart(until)
	}

	snap := BuildSnapshot(data, opts)
	c.logger.Info("snapshot built",
		"pull_requests", len(data.PullRequests),
		"issues", len(data.Issues),
		"workflow_runs", len(data.WorkflowRuns))
	return snap, nil
}

func (c *githubCollector) workflowWindow() time.Duration {
	if c.opts.WorkflowWindowDays > 0 {
		return time.Duration(c.opts.WorkflowWindowDays) * day
	}
	return 7 * day
}

func (c *githubCollector) progress(step string, fraction float64) {
	if c.onProgress != nil {
		c.onProgress(step, fraction)
	}
}

// tracked reports whether labels mark a fix or analysis item
func (c *githubCollector) tracked(labels []string) bool {
	for _, l := range labels {
		if (c.opts.FixLabel != "" && l == c.opts.FixLabel) || (c.opts.AnalysisLabel != "" && l == c.opts.AnalysisLabel) {
			return true
		}
	}
	return false
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining >= 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

func toPullRequestRecord(pr *github.PullRequest) *domain.PullRequestRecord {
	record := &domain.PullRequestRecord{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Author:    pr.GetUser().GetLogin(),
		Labels:    labelNames(pr.Labels),
		State:     domain.PullRequestOpen,
		CreatedAt: pr.GetCreatedAt().Time,
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		record.MergedAt = &t
		record.State = domain.PullRequestMerged
	} else if pr.GetState() == "closed" {
		record.State = domain.PullRequestClosed
	}
	if pr.ClosedAt != nil {
		t := pr.ClosedAt.Time
		record.ClosedAt = &t
	}
	return record
}

func toIssueRecord(issue *github.Issue) *domain.IssueRecord {
	record := &domain.IssueRecord{
		Number:      issue.GetNumber(),
		Title:       issue.GetTitle(),
		Labels:      labelNames(issue.Labels),
		State:       issue.GetState(),
		StateReason: issue.GetStateReason(),
		CreatedAt:   issue.GetCreatedAt().Time,
		UpdatedAt:   issue.GetUpdatedAt().Time,
	}
	for _, a := range issue.Assignees {
		record.Assignees = append(record.Assignees, a.GetLogin())
	}
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.Time
		record.ClosedAt = &t
	}
	return record
}

func toWorkflowRunRecord(workflow string, run *github.WorkflowRun) *domain.WorkflowRunRecord {
	record := &domain.WorkflowRunRecord{
		Workflow:   workflow,
		Conclusion: run.GetConclusion(),
		CreatedAt:  run.GetCreatedAt().Time,
	}
	started := run.GetRunStartedAt().Time
	if started.IsZero() {
		started = record.CreatedAt
	}
	if record.Conclusion != "" {
		if updated := run.GetUpdatedAt().Time; updated.After(started) {
			record.Duration = updated.Sub(started)
		}
	}
	return record
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

// mapGitHubError maps authentication and rate limit failures to AppErrors
func mapGitHubError(message string, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return apperrors.NewRateLimitedError(message, err)
	case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusUnauthorized:
		return apperrors.NewUnauthorizedError("GitHub rejected the token", err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
