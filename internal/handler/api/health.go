package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"ForecastPull/internal/domain/models"
	xhttp "ForecastPull/pkg/http"
	xlogger "ForecastPull/pkg/logger"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HaltedTiers reports metric tiers stopped by a watermark regression.
type HaltedTiers interface {
	Halted() map[models.Tier]error
}

type HealthHandler struct {
	logger  *xlogger.Logger
	checks  map[string]HealthCheck
	tiers   HaltedTiers
	timeout time.Duration
}

func NewHealthHandler(logger *xlogger.Logger, checks map[string]HealthCheck, tiers HaltedTiers) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks, tiers: tiers, timeout: 3 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)
}

type healthReport struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
	Halted     []string          `json:"halted_tiers,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rep := healthReport{Healthy: true, Components: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			rep.Healthy = false
			rep.Components[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("component", name), xlogger.Error(err))
			continue
		}
		rep.Components[name] = "ok"
	}
	if h.tiers != nil {
		for tier := range h.tiers.Halted() {
			rep.Healthy = false
			rep.Halted = append(rep.Halted, string(tier))
		}
		sort.Strings(rep.Halted)
	}

	if !rep.Healthy {
		return xhttp.JSON(c, http.StatusServiceUnavailable, rep)
	}
	return xhttp.OK(c, rep)
}
