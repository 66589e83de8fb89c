package evaluation

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"ForecastPull/internal/domain/models"
)

// GroupRuns partitions pointwise rows by run. Within a run, a step seen twice keeps the row
// with the newest InsertedAt, then the rows are ordered by step.
func GroupRuns(rows []models.PointwiseMetric) map[models.RunKey][]models.PointwiseMetric {
	byStep := make(map[models.RunKey]map[int]models.PointwiseMetric)
	for _, r := range rows {
		k := r.Key()
		m, ok := byStep[k]
		if !ok {
			m = make(map[int]models.PointwiseMetric)
			byStep[k] = m
		}
		if prev, dup := m[r.Step]; dup && !r.InsertedAt.After(prev.InsertedAt) {
			continue
		}
		m[r.Step] = r
	}

	out := make(map[models.RunKey][]models.PointwiseMetric, len(byStep))
	for k, m := range byStep {
		run := make([]models.PointwiseMetric, 0, len(m))
		for _, r := range m {
			run = append(run, r)
		}
		sort.Slice(run, func(i, j int) bool { return run[i].Step < run[j].Step })
		out[k] = run
	}
	return out
}

// Windowed computes running statistics over one run ordered by step, from the first step up
// to and including the current one. run must be sorted by step (see GroupRuns).
func Windowed(run []models.PointwiseMetric, at time.Time) []models.WindowedMetric {
	n := len(run)
	if n == 0 {
		return nil
	}
	bias := make([]float64, n)
	abs := make([]float64, n)
	sq := make([]float64, n)
	for i, r := range run {
		bias[i], abs[i], sq[i] = r.Bias, r.AbsError, r.SquaredError
	}
	cumAbs := floats.CumSum(make([]float64, n), abs)
	cumSq := floats.CumSum(make([]float64, n), sq)
	cumBias := floats.CumSum(make([]float64, n), bias)
	finalSign := sign(bias[n-1])

	out := make([]models.WindowedMetric, n)
	var mean, m2 float64
	for i, r := range run {
		cnt := float64(i + 1)

		// Welford update for the running population stddev of bias.
		delta := bias[i] - mean
		mean += delta / cnt
		m2 += delta * (bias[i] - mean)

		div := float64(r.Step)
		if div < 1 {
			div = 1
		}
		out[i] = models.WindowedMetric{
			Asset:             r.Asset,
			Variant:           r.Variant,
			AnchorAt:          r.AnchorAt,
			Step:              r.Step,
			Timestamp:         r.Timestamp,
			CumulativeMAE:     cumAbs[i] / cnt,
			CumulativeRMSE:    math.Sqrt(cumSq[i] / cnt),
			MeanBias:          cumBias[i] / cnt,
			ErrorGrowthRate:   r.Bias / div,
			RelativeStepError: r.AbsError / div,
			IsReversal:        sign(bias[i]) != finalSign,
			StepStddev:        math.Sqrt(m2 / cnt),
			StepRank:          i + 1,
			InsertedAt:        at,
		}
	}
	return out
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

const changeTolerance = 1e-12

// Changed returns the rows of fresh that are absent from existing or differ from it in any
// value. Insert times are not compared.
func Changed(fresh, existing []models.WindowedMetric) []models.WindowedMetric {
	type stepKey struct {
		run  models.RunKey
		step int
	}
	old := make(map[stepKey]models.WindowedMetric, len(existing))
	for _, e := range existing {
		k := stepKey{e.Key(), e.Step}
		if prev, ok := old[k]; ok && prev.InsertedAt.After(e.InsertedAt) {
			continue
		}
		old[k] = e
	}

	var out []models.WindowedMetric
	for _, f := range fresh {
		e, ok := old[stepKey{f.Key(), f.Step}]
		if !ok || !sameWindowed(f, e) {
			out = append(out, f)
		}
	}
	return out
}

func sameWindowed(a, b models.WindowedMetric) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.IsReversal == b.IsReversal &&
		a.StepRank == b.StepRank &&
		near(a.CumulativeMAE, b.CumulativeMAE) &&
		near(a.CumulativeRMSE, b.CumulativeRMSE) &&
		near(a.MeanBias, b.MeanBias) &&
		near(a.ErrorGrowthRate, b.ErrorGrowthRate) &&
		near(a.RelativeStepError, b.RelativeStepError) &&
		near(a.StepStddev, b.StepStddev)
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= changeTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
