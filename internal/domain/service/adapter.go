package service

import (
	"context"

	"ForecastPull/internal/domain/models"
)

// ModelAdapter fits a model on a training window and forecasts from a fitted artifact.
// Forecast returns exactly horizon values, the first one hour after the last input point.
type ModelAdapter interface {
	Fit(ctx context.Context, training models.Series, hyperparameters map[string]any) (*models.Artifact, error)
	Forecast(ctx context.Context, artifact *models.Artifact, input models.Series, horizon int) ([]float64, error)
}

// AdapterResolver maps a model family tag to its adapter.
type AdapterResolver interface {
	Resolve(family string) (ModelAdapter, error)
}
