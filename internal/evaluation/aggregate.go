package evaluation

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ForecastPull/internal/domain/models"
)

type groupKey struct{ asset, variant string }

// Aggregate groups pointwise rows by (asset, variant) and summarises each group.
// Output is ordered by asset then variant.
func Aggregate(rows []models.PointwiseMetric, at time.Time) []models.AggregatedMetric {
	groups := make(map[groupKey][]models.PointwiseMetric)
	for _, r := range rows {
		k := groupKey{r.Asset, r.Variant}
		groups[k] = append(groups[k], r)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].asset != keys[j].asset {
			return keys[i].asset < keys[j].asset
		}
		return keys[i].variant < keys[j].variant
	})

	out := make([]models.AggregatedMetric, 0, len(keys))
	for _, k := range keys {
		out = append(out, summarise(k, groups[k], at))
	}
	return out
}

func summarise(k groupKey, rows []models.PointwiseMetric, at time.Time) models.AggregatedMetric {
	n := len(rows)
	abs := make([]float64, n)
	sq := make([]float64, n)
	ape := make([]float64, n)
	bias := make([]float64, n)
	var over, under int64
	for i, r := range rows {
		abs[i], sq[i], ape[i], bias[i] = r.AbsError, r.SquaredError, r.APE, r.Bias
		if r.Overpredicted {
			over++
		}
		if r.Underpredicted {
			under++
		}
	}

	biasMean, biasStd := stat.PopMeanStdDev(bias, nil)
	mse := stat.Mean(sq, nil)

	return models.AggregatedMetric{
		Asset:       k.asset,
		Variant:     k.variant,
		MAE:         stat.Mean(abs, nil),
		MSE:         mse,
		RMSE:        math.Sqrt(mse),
		MAPE:        stat.Mean(ape, nil),
		BiasMean:    biasMean,
		BiasStddev:  biasStd,
		OverRate:    float64(over) / float64(n),
		UnderRate:   float64(under) / float64(n),
		MaxAbsError: floats.Max(abs),
		MaxAPE:      floats.Max(ape),
		RowCount:    int64(n),
		SumAbs:      floats.Sum(abs),
		SumSq:       floats.Sum(sq),
		SumAPE:      floats.Sum(ape),
		SumBias:     floats.Sum(bias),
		SumBiasSq:   floats.Dot(bias, bias),
		OverCount:   over,
		UnderCount:  under,
		InsertedAt:  at,
	}
}

// Finish derives the means, rates and bias deviation of m from its sufficient statistics.
// A zero RowCount leaves them zero.
func Finish(m models.AggregatedMetric) models.AggregatedMetric {
	if m.RowCount == 0 {
		return m
	}
	n := float64(m.RowCount)
	m.MAE = m.SumAbs / n
	m.MSE = m.SumSq / n
	m.RMSE = math.Sqrt(m.MSE)
	m.MAPE = m.SumAPE / n
	m.BiasMean = m.SumBias / n
	m.BiasStddev = math.Sqrt(math.Max(m.SumBiasSq/n-m.BiasMean*m.BiasMean, 0))
	m.OverRate = float64(m.OverCount) / n
	m.UnderRate = float64(m.UnderCount) / n
	return m
}
