package adapters

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"ForecastPull/internal/domain/models"
)

// Naive repeats the last input value.
type Naive struct{}

func (Naive) Fit(_ context.Context, training models.Series, _ map[string]any) (*models.Artifact, error) {
	v, err := checkSeries(training, 1)
	if err != nil {
		return nil, err
	}
	return newArtifact(training, map[string]float64{"last": v[len(v)-1]}), nil
}

func (Naive) Forecast(ctx context.Context, _ *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := checkSeries(input, 1)
	if err != nil {
		return nil, err
	}
	return flat(v[len(v)-1], horizon), nil
}

// Drift extends the last input value by the average hourly change seen over training.
type Drift struct{}

func (Drift) Fit(_ context.Context, training models.Series, _ map[string]any) (*models.Artifact, error) {
	v, err := checkSeries(training, 2)
	if err != nil {
		return nil, err
	}
	slope := (v[len(v)-1] - v[0]) / float64(len(v)-1)
	return newArtifact(training, map[string]float64{"slope": slope}), nil
}

func (Drift) Forecast(ctx context.Context, a *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := checkSeries(input, 1)
	if err != nil {
		return nil, err
	}
	last, slope := v[len(v)-1], a.Coef("slope")
	out := make([]float64, horizon)
	for k := range out {
		out[k] = last + float64(k+1)*slope
	}
	return out, nil
}

// Theta is the standard theta(2) method: SES on the series plus half the linear trend
// fitted over the training window.
type Theta struct{}

func (Theta) Fit(ctx context.Context, training models.Series, hp map[string]any) (*models.Artifact, error) {
	art, err := SES{}.Fit(ctx, training, hp)
	if err != nil {
		return nil, err
	}
	v := training.Values()
	x := make([]float64, len(v))
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, v, nil, false)
	art.Coefficients["slope"] = slope
	art.Coefficients["theta"] = models.Float(hp, "theta", 2)
	return art, nil
}

func (Theta) Forecast(ctx context.Context, a *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	base, err := SES{}.Forecast(ctx, a, input, horizon)
	if err != nil {
		return nil, err
	}
	alpha := a.Coef("alpha")
	if alpha <= 0 {
		alpha = 1
	}
	theta := a.Coef("theta")
	if theta == 0 {
		theta = 2
	}
	w := (1 - 1/theta) * a.Coef("slope")
	n := float64(len(input))
	for k := range base {
		h := float64(k + 1)
		base[k] += w * ((h - 1) + 1/alpha - math.Pow(1-alpha, n)/alpha)
	}
	return base, nil
}
