package models

import "errors"

var (
	// ErrDataNotReady means a window is shorter than required or has holes. Not logged as an error.
	ErrDataNotReady = errors.New("data not ready")
	// ErrFetchFailure means upstream market data could not be retrieved.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrFitFailure wraps a model adapter fit error.
	ErrFitFailure = errors.New("fit failure")
	// ErrForecastFailure wraps a model adapter forecast error.
	ErrForecastFailure = errors.New("forecast failure")
	// ErrNoArtifact means no usable fitted artifact exists yet.
	ErrNoArtifact = errors.New("no artifact")
	// ErrWatermarkRegression means a tier's high-water mark moved backwards.
	ErrWatermarkRegression = errors.New("watermark regression")
	// ErrTierHalted is returned by a tier stopped after a watermark regression.
	ErrTierHalted = errors.New("tier halted")
	// ErrUnknownFamily means no adapter is registered for a model family tag.
	ErrUnknownFamily = errors.New("unknown model family")
)
