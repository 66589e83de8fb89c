package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"ForecastPull/internal/domain/models"
)

var errShortSeries = errors.New("series too short")

func checkSeries(s models.Series, min int) ([]float64, error) {
	if len(s) < min {
		return nil, fmt.Errorf("%w: have %d points, need %d", errShortSeries, len(s), min)
	}
	v := s.Values()
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("non-finite value at %s", s[i].Timestamp)
		}
	}
	return v, nil
}

func newArtifact(training models.Series, coef map[string]float64) *models.Artifact {
	a := &models.Artifact{Points: len(training), Coefficients: coef}
	if len(training) > 0 {
		a.TrainStart = training[0].Timestamp
		a.TrainEnd = training[len(training)-1].Timestamp
	}
	return a
}

// sigmoid maps the optimiser's unbounded space onto (0, 1).
func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

// fitUnit minimises sse over len(init) parameters constrained to (0, 1) using Nelder-Mead.
func fitUnit(ctx context.Context, init []float64, sse func(p []float64) float64) ([]float64, error) {
	x0 := make([]float64, len(init))
	for i, p := range init {
		x0[i] = logit(p)
	}
	params := make([]float64, len(init))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i := range x {
				params[i] = sigmoid(x[i])
			}
			return sse(params)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 2000,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 50},
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil && res == nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	out := make([]float64, len(res.X))
	for i, x := range res.X {
		out[i] = sigmoid(x)
	}
	return out, nil
}

// sesLevel runs simple exponential smoothing over v and returns the final level and the
// one-step-ahead squared error sum.
func sesLevel(v []float64, alpha float64) (level, sse float64) {
	level = v[0]
	for _, y := range v[1:] {
		e := y - level
		sse += e * e
		level += alpha * e
	}
	return level, sse
}

// holtState runs Holt's linear trend method over v.
func holtState(v []float64, alpha, beta float64) (level, trend, sse float64) {
	level = v[0]
	trend = v[1] - v[0]
	for _, y := range v[1:] {
		pred := level + trend
		e := y - pred
		sse += e * e
		prev := level
		level = alpha*y + (1-alpha)*pred
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return level, trend, sse
}

// SES is simple exponential smoothing. alpha is fitted on the training window unless the
// "alpha" hyperparameter fixes it.
type SES struct{}

func (SES) Fit(ctx context.Context, training models.Series, hp map[string]any) (*models.Artifact, error) {
	v, err := checkSeries(training, 2)
	if err != nil {
		return nil, err
	}
	alpha := models.Float(hp, "alpha", -1)
	if alpha <= 0 || alpha > 1 {
		p, err := fitUnit(ctx, []float64{0.3}, func(p []float64) float64 {
			_, sse := sesLevel(v, p[0])
			return sse
		})
		if err != nil {
			return nil, err
		}
		alpha = p[0]
	}
	level, _ := sesLevel(v, alpha)
	return newArtifact(training, map[string]float64{"alpha": alpha, "level": level}), nil
}

func (SES) Forecast(ctx context.Context, a *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := checkSeries(input, 1)
	if err != nil {
		return nil, err
	}
	level, _ := sesLevel(v, a.Coef("alpha"))
	return flat(level, horizon), nil
}

// Holt is double exponential smoothing with an additive trend.
type Holt struct{}

func (Holt) Fit(ctx context.Context, training models.Series, hp map[string]any) (*models.Artifact, error) {
	v, err := checkSeries(training, 3)
	if err != nil {
		return nil, err
	}
	alpha := models.Float(hp, "alpha", -1)
	beta := models.Float(hp, "beta", -1)
	if alpha <= 0 || alpha > 1 || beta <= 0 || beta > 1 {
		p, err := fitUnit(ctx, []float64{0.5, 0.1}, func(p []float64) float64 {
			_, _, sse := holtState(v, p[0], p[1])
			return sse
		})
		if err != nil {
			return nil, err
		}
		alpha, beta = p[0], p[1]
	}
	level, trend, _ := holtState(v, alpha, beta)
	damp := models.Float(hp, "damping", 1)
	return newArtifact(training, map[string]float64{
		"alpha": alpha, "beta": beta, "level": level, "trend": trend, "damping": damp,
	}), nil
}

func (Holt) Forecast(ctx context.Context, a *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := checkSeries(input, 2)
	if err != nil {
		return nil, err
	}
	level, trend, _ := holtState(v, a.Coef("alpha"), a.Coef("beta"))
	phi := a.Coef("damping")
	if phi <= 0 || phi > 1 {
		phi = 1
	}
	out := make([]float64, horizon)
	damped := 0.0
	pow := 1.0
	for k := range out {
		pow *= phi
		damped += pow
		out[k] = level + damped*trend
	}
	return out, nil
}

func flat(level float64, horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = level
	}
	return out
}
