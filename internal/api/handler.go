package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
	"github.com/kurihiro0119/parity-metrics/internal/storage"
)

const (
	defaultWeeks      = 1
	defaultTrendWeeks = 12
	maxWeeks          = 104
	maxUploadBytes    = 4 << 20
)

// Handler handles API requests
type Handler struct {
	source     snapshot.Source
	store      storage.Storage
	aggregator aggregator.Aggregator
	logger     *slog.Logger
}

// NewHandler creates a new API handler. store may be nil when snapshots
// come from files or URLs; the archive endpoints then answer 404.
func NewHandler(source snapshot.Source, store storage.Storage, agg aggregator.Aggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		source:     source,
		store:      store,
		aggregator: agg,
		logger:     logger,
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GetMetrics returns the aggregated snapshot re-scoped to one language
// GET /api/v1/metrics?scope=&weeks=
func (h *Handler) GetMetrics(c *gin.Context) {
	snap, weeks, ok := h.aggregated(c)
	if !ok {
		return
	}

	view := h.aggregator.ScopeToLanguage(snap, c.Query("scope"))
	c.JSON(http.StatusOK, gin.H{
		"data": domain.PeriodMetrics{
			Period:      snap.Label(),
			GeneratedAt: snap.GeneratedAt,
			Weeks:       weeks,
			Languages:   h.aggregator.Languages(snap),
			Scope:       view,
			Analysis:    snap.Analysis,
			Workflows:   snap.Workflows,
			Manual:      snap.Manual,
		},
	})
}

// GetSummary returns the headline rates
// GET /api/v1/metrics/summary?scope=&weeks=
func (h *Handler) GetSummary(c *gin.Context) {
	snap, _, ok := h.aggregated(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": h.aggregator.Summarize(snap, c.Query("scope")),
	})
}

// GetCriteria evaluates the production criteria
// GET /api/v1/metrics/criteria?scope=&weeks=
func (h *Handler) GetCriteria(c *gin.Context) {
	snap, _, ok := h.aggregated(c)
	if !ok {
		return
	}

	summary := h.aggregator.Summarize(snap, c.Query("scope"))
	c.JSON(http.StatusOK, gin.H{
		"data": domain.NewCriteriaReport(summary, h.aggregator.EvaluateCriteria(summary)),
	})
}

// GetTrend returns one point per period, oldest first
// GET /api/v1/metrics/trend?scope=&weeks=
func (h *Handler) GetTrend(c *gin.Context) {
	weeks, err := parseWeeks(c, defaultTrendWeeks)
	if err != nil {
		respondError(c, err)
		return
	}

	snapshots, err := h.source.Load(c.Request.Context(), weeks)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(snapshots) == 0 {
		respondError(c, apperrors.NewNoDataError("no metrics snapshots available"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": h.aggregator.Trend(snapshots, c.Query("scope")),
	})
}

// ListSnapshots lists archived snapshots, newest first
// GET /api/v1/snapshots?limit=
func (h *Handler) ListSnapshots(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	summaries, err := h.store.ListSnapshots(c.Request.Context(), parseIntQuery(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []*domain.SnapshotSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summaries,
	})
}

// GetSnapshot returns one archived snapshot
// GET /api/v1/snapshots/:id
func (h *Handler) GetSnapshot(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	stored, err := h.store.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stored,
	})
}

// CreateSnapshot validates and archives a snapshot
// POST /api/v1/snapshots
func (h *Handler) CreateSnapshot(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperrors.NewBadRequestError("snapshot exceeds the 4 MiB upload limit", err))
			return
		}
		respondError(c, apperrors.NewBadRequestError("failed to read request body", err))
		return
	}

	snap, err := snapshot.Parse(body)
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.store.SaveSnapshot(c.Request.Context(), snap)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("snapshot archived", "id", summary.ID, "generated_at", summary.GeneratedAt)
	c.JSON(http.StatusCreated, gin.H{
		"data": summary,
	})
}

// DeleteSnapshot removes one archived snapshot
// DELETE /api/v1/snapshots/:id
func (h *Handler) DeleteSnapshot(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	if err := h.store.DeleteSnapshot(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// aggregated loads the requested weeks and folds them into one snapshot
func (h *Handler) aggregated(c *gin.Context) (*domain.Snapshot, int, bool) {
	weeks, err := parseWeeks(c, defaultWeeks)
	if err != nil {
		respondError(c, err)
		return nil, 0, false
	}

	snapshots, err := h.source.Load(c.Request.Context(), weeks)
	if err != nil {
		respondError(c, err)
		return nil, 0, false
	}

	snap, err := h.aggregator.AggregatePeriods(snapshots)
	if err != nil {
		respondError(c, err)
		return nil, 0, false
	}
	return snap, len(snapshots), true
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		respondError(c, apperrors.NewNotFoundError("snapshot archive"))
		return false
	}
	return true
}

// parseWeeks reads the weeks query parameter
func parseWeeks(c *gin.Context, defaultValue int) (int, error) {
	str := c.Query("weeks")
	if str == "" {
		return defaultValue, nil
	}
	weeks, err := strconv.Atoi(str)
	if err != nil || weeks <= 0 || weeks > maxWeeks {
		return 0, apperrors.NewBadRequestError("weeks must be an integer between 1 and "+strconv.Itoa(maxWeeks), err)
	}
	return weeks, nil
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	str := c.Query(key)
	if str == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(str)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound, apperrors.ErrCodeNoData:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
