package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	fitStreak   *prometheus.GaugeVec
	rowsWritten *prometheus.CounterVec
	watermark   *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastpull_ticks_total",
				Help: "Orchestrator decisions per asset, model, action and outcome",
			},
			[]string{"asset", "model", "action", "outcome"},
		),
		fitStreak: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecastpull_fit_failure_streak",
				Help: "Consecutive fit failures per asset and model",
			},
			[]string{"asset", "model"},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastpull_rows_written_total",
				Help: "Rows written per target table",
			},
			[]string{"target"},
		),
		watermark: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecastpull_tier_watermark_seconds",
				Help: "Unix time of the newest row per metric tier",
			},
			[]string{"tier"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecastpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one orchestrator decision, e.g. action=retrain outcome=skipped_not_ready.
func (r *Recorder) RecordTick(asset, model, action, outcome string) {
	r.ticks.WithLabelValues(asset, model, action, outcome).Inc()
}

func (r *Recorder) RecordFitFailureStreak(asset, model string, n int) {
	r.fitStreak.WithLabelValues(asset, model).Set(float64(n))
}

func (r *Recorder) RecordRows(target string, n int) {
	r.rowsWritten.WithLabelValues(target).Add(float64(n))
}

func (r *Recorder) RecordWatermark(tier string, t time.Time) {
	if t.IsZero() {
		return
	}
	r.watermark.WithLabelValues(tier).Set(float64(t.UnixNano()) / 1e9)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTick(string, string, string, string)  {}
func (Nop) RecordFitFailureStreak(string, string, int) {}
func (Nop) RecordRows(string, int)                     {}
func (Nop) RecordWatermark(string, time.Time)          {}
func (Nop) RecordError(string)                         {}
func (Nop) RecordLatency(string, float64)              {}
