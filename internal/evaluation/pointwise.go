// Package evaluation holds the arithmetic of the three metric tiers. It does no I/O.
package evaluation

import (
	"math"
	"time"

	"ForecastPull/internal/domain/models"
)

// DefaultEpsilon stabilises every division and logarithm of the pointwise tier.
const DefaultEpsilon = 1e-9

// Pointwise evaluates one forecast/observation pair. With f the forecast and h the actual:
//
//	abs_error     |f-h|
//	bias          f-h
//	squared_error (f-h)^2
//	ape           |f-h| / (|h|+eps)
//	perc_error    f / (h+eps)
//	log_error     ln(max(f+eps, eps)) - ln(max(h+eps, eps))
//	rel_error     |f-h| / max(|f|, |h|, eps)
//
// A true-zero actual therefore yields ape = |f|/eps and rel_error = 1 (0 when f is also zero).
func Pointwise(p models.EvaluationPair, eps float64, at time.Time) models.PointwiseMetric {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	f, h := p.Forecast, p.Actual
	diff := f - h
	abs := math.Abs(diff)

	percDen := h + eps
	if percDen == 0 {
		percDen = eps
	}

	return models.PointwiseMetric{
		Asset:          p.Asset,
		Variant:        p.Variant,
		Family:         p.Family,
		AnchorAt:       p.AnchorAt,
		Step:           p.Step,
		Timestamp:      p.Timestamp,
		Forecast:       f,
		Actual:         h,
		AbsError:       abs,
		Bias:           diff,
		SquaredError:   diff * diff,
		APE:            abs / (math.Abs(h) + eps),
		PercError:      f / percDen,
		LogError:       math.Log(math.Max(f+eps, eps)) - math.Log(math.Max(h+eps, eps)),
		RelError:       abs / math.Max(math.Max(math.Abs(f), math.Abs(h)), eps),
		Overpredicted:  f > h,
		Underpredicted: f < h,
		ZeroCrossed:    f*h < 0,
		InsertedAt:     at,
	}
}

// PointwiseBatch evaluates pairs in order.
func PointwiseBatch(pairs []models.EvaluationPair, eps float64, at time.Time) []models.PointwiseMetric {
	out := make([]models.PointwiseMetric, len(pairs))
	for i, p := range pairs {
		out[i] = Pointwise(p, eps, at)
	}
	return out
}
