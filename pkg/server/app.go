package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ForecastPull/internal/service/cache"
	"ForecastPull/internal/usecase"
	"ForecastPull/pkg/config"
	xhttp "ForecastPull/pkg/http"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/scheduler"
	"ForecastPull/pkg/util"
)

// App encapsulates the application lifecycle for every run mode.
type App struct {
	cfg        *config.Config
	l          *logger.Logger
	orch       *usecase.Orchestrator
	pipeline   *usecase.MetricsPipeline
	guard      *usecase.CompletenessGuard
	sched      *scheduler.Scheduler
	httpServer *xhttp.Server
	summaries  *cache.TTLCache
	now        func() time.Time
}

// Deps groups what New needs besides the config and logger.
type Deps struct {
	Orchestrator *usecase.Orchestrator
	Pipeline     *usecase.MetricsPipeline
	Guard        *usecase.CompletenessGuard
	Scheduler    *scheduler.Scheduler
	HTTPServer   *xhttp.Server
	SummaryCache *cache.TTLCache
}

func New(cfg *config.Config, l *logger.Logger, d Deps) *App {
	return &App{
		cfg:        cfg,
		l:          l.Component("app"),
		orch:       d.Orchestrator,
		pipeline:   d.Pipeline,
		guard:      d.Guard,
		sched:      d.Scheduler,
		httpServer: d.HTTPServer,
		summaries:  d.SummaryCache,
		now:        time.Now,
	}
}

// Backfill walks every asset from the configured start to the configured end once and then runs
// the metric tiers.
func (a *App) Backfill(ctx context.Context) error {
	return a.FullCycle(ctx)
}

// FullCycle is one forecast walk followed by one pass of the metric tiers. A walk failure does not
// skip the tiers: whatever was written is still evaluated.
func (a *App) FullCycle(ctx context.Context) error {
	_, end, err := a.cfg.RunWindow(a.now())
	if err != nil {
		return err
	}

	began := a.now()
	walkErr := a.orch.RunAll(ctx, a.cfg.Run.Assets, end)
	if walkErr != nil {
		a.l.Error("forecast walk finished with errors", logger.Error(walkErr))
	}
	_, metricsErr := a.Metrics(ctx)
	a.l.Info("full cycle done",
		logger.Time("end", end),
		logger.Duration("took_ms", a.now().Sub(began)),
		logger.Bool("ok", walkErr == nil && metricsErr == nil),
	)
	return errors.Join(walkErr, metricsErr)
}

// Metrics runs the three tiers once.
func (a *App) Metrics(ctx context.Context) ([]usecase.TierResult, error) {
	res, err := a.pipeline.RunAll(ctx)
	written := 0
	for _, r := range res {
		written += r.Written
		a.l.Info("tier done",
			logger.String("tier", string(r.Tier)),
			logger.Int("read", r.Read),
			logger.Int("written", r.Written),
			logger.Time("watermark", r.Watermark),
		)
	}
	if written > 0 && a.summaries != nil {
		a.summaries.Purge()
	}
	if err != nil {
		a.l.Error("metrics cycle finished with errors", logger.Error(err))
	}
	return res, err
}

// Gaps reports the missing hours of every asset over the extended data range. With fill set, the
// completeness guard fetches them first and the report lists what is still missing.
func (a *App) Gaps(ctx context.Context, fill bool) ([]usecase.GapReport, error) {
	start, end, err := a.cfg.RunWindow(a.now())
	if err != nil {
		return nil, err
	}
	from := start.Add(-util.Hours(a.cfg.MaxTrainingWindow()))

	out := make([]usecase.GapReport, 0, len(a.cfg.Run.Assets))
	var errs []error
	for _, asset := range a.cfg.Run.Assets {
		if fill {
			rep, err := a.guard.Ensure(ctx, asset, from, end, start)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", asset, err))
			}
			out = append(out, rep)
			continue
		}
		rep, err := a.guard.Audit(ctx, asset, from, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", asset, err))
			continue
		}
		out = append(out, rep)
	}
	return out, errors.Join(errs...)
}

// Serve registers the recurring jobs, starts the API, runs a catch-up cycle and blocks until ctx
// is cancelled. Nothing is listening yet when a schedule fails to register.
func (a *App) Serve(ctx context.Context) error {
	cycle := scheduler.JobFunc{JobName: "forecast-cycle", Fn: a.FullCycle}
	audit := scheduler.JobFunc{JobName: "gap-audit", Fn: func(ctx context.Context) error {
		reps, err := a.Gaps(ctx, true)
		for _, r := range reps {
			if len(r.Remaining) > 0 {
				a.l.Warn("hours still missing after audit",
					logger.String("asset", r.Asset),
					logger.Int("remaining", len(r.Remaining)),
				)
			}
		}
		return err
	}}
	if err := a.sched.AddJob(a.cfg.Schedule.Forecast, cycle); err != nil {
		return err
	}
	if err := a.sched.AddJob(a.cfg.Schedule.GapAudit, audit); err != nil {
		return err
	}
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	// catch up before the first slot fires
	if err := a.FullCycle(ctx); err != nil {
		a.l.Warn("catch-up cycle incomplete", logger.Error(err))
	}
	a.sched.Start()

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	a.sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", logger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}
