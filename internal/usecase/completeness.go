package usecase

import (
	"context"
	"fmt"
	"time"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/util"
)

// CompletenessGuard repairs holes in the stored hourly record before a walk consumes it.
type CompletenessGuard struct {
	store  domrepo.ObservationStore
	source domrepo.MarketData
	l      *logger.Logger
	now    func() time.Time
}

func NewCompletenessGuard(store domrepo.ObservationStore, source domrepo.MarketData, l *logger.Logger) *CompletenessGuard {
	return &CompletenessGuard{store: store, source: source, l: l.Component("completeness"), now: time.Now}
}

// GapReport is the outcome of one Ensure call.
type GapReport struct {
	Asset     string        `json:"asset"`
	Missing   int           `json:"missing"`
	Fetched   int           `json:"fetched"`
	Written   int           `json:"written"`
	Remaining []time.Time   `json:"remaining,omitempty"`
	// Contiguous is the store's own check that hours from start onward are one hour apart.
	Contiguous bool          `json:"contiguous"`
	Took       time.Duration `json:"-"`
}

// Audit reports the missing hours of [start, end] and the contiguity of the stored record
// without fetching anything.
func (g *CompletenessGuard) Audit(ctx context.Context, asset string, start, end time.Time) (GapReport, error) {
	rep := GapReport{Asset: asset}
	missing, err := g.store.FindMissingHours(ctx, asset, start, end)
	if err != nil {
		return rep, fmt.Errorf("find missing hours %s: %w", asset, err)
	}
	rep.Missing, rep.Remaining = len(missing), missing
	if err := g.contiguity(ctx, &rep, start); err != nil {
		return rep, err
	}
	return rep, nil
}

func (g *CompletenessGuard) contiguity(ctx context.Context, rep *GapReport, start time.Time) error {
	ok, err := g.store.IsContiguous(ctx, rep.Asset, start)
	if err != nil {
		return fmt.Errorf("check contiguity %s: %w", rep.Asset, err)
	}
	rep.Contiguous = ok
	if !ok {
		g.l.Warn("stored hours are not contiguous",
			logger.String("asset", rep.Asset),
			logger.Time("from", start),
			logger.Int("missing", len(rep.Remaining)),
		)
	}
	return nil
}

// Ensure fetches the hours of [start, end] missing for asset and stores them. Hours before runStart
// are labelled training, the rest historical. Hours the source cannot supply stay in Remaining;
// windows over them are reported not ready by the orchestrator.
func (g *CompletenessGuard) Ensure(ctx context.Context, asset string, start, end, runStart time.Time) (GapReport, error) {
	began := g.now()
	rep := GapReport{Asset: asset}

	missing, err := g.store.FindMissingHours(ctx, asset, start, end)
	if err != nil {
		return rep, fmt.Errorf("find missing hours %s: %w", asset, err)
	}
	rep.Missing = len(missing)
	if len(missing) == 0 {
		return rep, g.contiguity(ctx, &rep, start)
	}

	for _, r := range util.GroupRanges(missing) {
		series, err := g.source.Fetch(ctx, asset, r[0], r[1])
		if err != nil {
			return rep, err
		}
		rep.Fetched += len(series)
		if len(series) == 0 {
			continue
		}

		uploaded := g.now().UTC()
		obs := make([]models.Observation, 0, len(series))
		for _, p := range series {
			label := models.ProvenanceHistorical
			if p.Timestamp.Before(runStart) {
				label = models.ProvenanceTraining
			}
			obs = append(obs, models.Observation{
				Asset:      asset,
				Timestamp:  p.Timestamp,
				Value:      p.Value,
				Label:      label,
				UploadedAt: uploaded,
			})
		}
		res, err := g.store.UpsertObservations(ctx, obs)
		if err != nil {
			return rep, fmt.Errorf("store observations %s: %w", asset, err)
		}
		rep.Written += res.Written
	}

	rep.Remaining, err = g.store.FindMissingHours(ctx, asset, start, end)
	if err != nil {
		return rep, fmt.Errorf("recheck missing hours %s: %w", asset, err)
	}
	if err := g.contiguity(ctx, &rep, start); err != nil {
		return rep, err
	}
	rep.Took = g.now().Sub(began)

	fields := []logger.Field{
		logger.String("asset", asset),
		logger.Int("missing", rep.Missing),
		logger.Int("fetched", rep.Fetched),
		logger.Int("written", rep.Written),
		logger.Int("remaining", len(rep.Remaining)),
		logger.Duration("took_ms", rep.Took),
	}
	if len(rep.Remaining) > 0 {
		g.l.Warn("gaps remain after fill", fields...)
	} else {
		g.l.Info("gaps filled", fields...)
	}
	return rep, nil
}
