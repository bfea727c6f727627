package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// Client is the API client for parity-metrics
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
}

// GetMetrics retrieves the scoped metrics aggregated over the newest weeks
func (c *Client) GetMetrics(ctx context.Context, scope string, weeks int) (*domain.PeriodMetrics, error) {
	var response struct {
		Data *domain.PeriodMetrics `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/metrics", metricParams(scope, weeks), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSummary retrieves the headline rates
func (c *Client) GetSummary(ctx context.Context, scope string, weeks int) (*domain.Summary, error) {
	var response struct {
		Data *domain.Summary `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/metrics/summary", metricParams(scope, weeks), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetCriteria evaluates the production criteria
func (c *Client) GetCriteria(ctx context.Context, scope string, weeks int) (*domain.CriteriaReport, error) {
	var response struct {
		Data *domain.CriteriaReport `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/metrics/criteria", metricParams(scope, weeks), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTrend retrieves one point per week, oldest first
func (c *Client) GetTrend(ctx context.Context, scope string, weeks int) ([]domain.TrendPoint, error) {
	var response struct {
		Data []domain.TrendPoint `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/metrics/trend", metricParams(scope, weeks), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListSnapshots lists archived snapshots, newest first
func (c *Client) ListSnapshots(ctx context.Context, limit int) ([]*domain.SnapshotSummary, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.SnapshotSummary `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/snapshots", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSnapshot retrieves one archived snapshot
func (c *Client) GetSnapshot(ctx context.Context, id string) (*domain.StoredSnapshot, error) {
	var response struct {
		Data *domain.StoredSnapshot `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/snapshots/"+url.PathEscape(id), nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CreateSnapshot uploads raw snapshot JSON to the archive
func (c *Client) CreateSnapshot(ctx context.Context, data []byte) (*domain.SnapshotSummary, error) {
	var response struct {
		Data *domain.SnapshotSummary `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/snapshots", nil, data, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteSnapshot removes one archived snapshot
func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/snapshots/"+url.PathEscape(id), nil, nil, nil)
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func metricParams(scope string, weeks int) url.Values {
	params := url.Values{}
	if scope != "" {
		params.Set("scope", scope)
	}
	if weeks > 0 {
		params.Set("weeks", strconv.Itoa(weeks))
	}
	return params
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
	}
}
