package api

import (
	"sort"

	"github.com/labstack/echo/v4"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/evaluation"
	"ForecastPull/internal/service/cache"
	xhttp "ForecastPull/pkg/http"
	xlogger "ForecastPull/pkg/logger"
)

// MetricsHandler serves the aggregated and windowed metric tiers.
type MetricsHandler struct {
	logger    *xlogger.Logger
	store     domrepo.MetricsStore
	summaries *cache.TTLCache
}

// NewMetricsHandler builds the handler. summaries may be nil to disable summary caching.
func NewMetricsHandler(logger *xlogger.Logger, store domrepo.MetricsStore, summaries *cache.TTLCache) *MetricsHandler {
	return &MetricsHandler{logger: logger, store: store, summaries: summaries}
}

func (h *MetricsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/metrics")
	g.GET("/aggregated", h.Aggregated)
	g.GET("/summary", h.Summary)
	g.GET("/windowed", h.Windowed)
}

// Aggregated lists per-batch Tier 2 rows.
func (h *MetricsHandler) Aggregated(c echo.Context) error {
	req := &models.AggregatedRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	rows, err := h.store.Aggregated(c.Request().Context(), req.Asset, req.Variant)
	if err != nil {
		h.logger.Error("aggregated query failed", xlogger.Error(err))
		return xhttp.Internal(c)
	}
	return xhttp.List(c, rows, int64(len(rows)))
}

// Summary reports lifetime metrics of every (asset, variant) over the current pointwise rows.
func (h *MetricsHandler) Summary(c echo.Context) error {
	req := &models.AggregatedRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	cacheKey := "summary:" + req.Asset + "|" + req.Variant
	if h.summaries != nil {
		if v, ok := h.summaries.Get(cacheKey); ok {
			out := v.([]models.MetricsSummary)
			return xhttp.List(c, out, int64(len(out)))
		}
	}

	out, err := h.store.PointwiseTotals(c.Request().Context(), req.Asset, req.Variant)
	if err != nil {
		h.logger.Error("summary query failed", xlogger.Error(err))
		return xhttp.Internal(c)
	}
	for i := range out {
		out[i].AggregatedMetric = evaluation.Finish(out[i].AggregatedMetric)
	}
	if out == nil {
		out = []models.MetricsSummary{}
	}
	if h.summaries != nil {
		h.summaries.Set(cacheKey, out)
	}
	return xhttp.List(c, out, int64(len(out)))
}

// Windowed returns the per-step rows of the most recent runs of an asset.
func (h *MetricsHandler) Windowed(c echo.Context) error {
	req := &models.WindowedRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	ctx := c.Request().Context()

	keys, err := h.store.WindowedRuns(ctx, req.Asset, req.Variant, req.Runs)
	if err != nil {
		h.logger.Error("windowed runs query failed", xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.Internal(c)
	}
	if len(keys) == 0 {
		return xhttp.Fail(c, xhttp.NotFound("no windowed metrics for %s", req.Asset))
	}
	rows, err := h.store.Windowed(ctx, keys)
	if err != nil {
		h.logger.Error("windowed query failed", xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.Internal(c)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.AnchorAt.Equal(b.AnchorAt) {
			return a.AnchorAt.After(b.AnchorAt)
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return a.Step < b.Step
	})
	return xhttp.List(c, rows, int64(len(rows)))
}
