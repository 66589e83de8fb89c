package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	xhttp "ForecastPull/pkg/http"
	xlogger "ForecastPull/pkg/logger"
	"ForecastPull/pkg/util"
)

// ForecastsHandler serves stored forecast runs.
type ForecastsHandler struct {
	logger    *xlogger.Logger
	forecasts domrepo.ForecastStore
}

func NewForecastsHandler(logger *xlogger.Logger, forecasts domrepo.ForecastStore) *ForecastsHandler {
	return &ForecastsHandler{logger: logger, forecasts: forecasts}
}

func (h *ForecastsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/forecasts", h.List)
}

// List returns forecast points of an asset, optionally narrowed to a family, a run anchor or a
// timestamp range.
func (h *ForecastsHandler) List(c echo.Context) error {
	req := &models.ForecastsRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}

	q := domrepo.ForecastQuery{Asset: req.Asset, Family: req.Family, Limit: req.Limit}
	var err error
	if q.AnchorAt, err = optionalTime("anchor", req.Anchor); err != nil {
		return xhttp.Fail(c, err)
	}
	if q.From, err = optionalTime("from", req.From); err != nil {
		return xhttp.Fail(c, err)
	}
	if q.To, err = optionalTime("to", req.To); err != nil {
		return xhttp.Fail(c, err)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return xhttp.Fail(c, xhttp.BadParam("to", "to must not be before from"))
	}

	rows, err := h.forecasts.Forecasts(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("forecasts query failed", xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.Internal(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.List(c, rows, int64(len(rows)))
}

func optionalTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, ok := util.ParseTime(v)
	if !ok {
		return time.Time{}, xhttp.BadParam(field, "%s: cannot parse %q as a time", field, v)
	}
	return t, nil
}
