package repository

import (
	"time"

	"gorm.io/datatypes"

	"ForecastPull/internal/domain/models"
)

// observationRow is unique per (ts, asset, label).
type observationRow struct {
	Ts         time.Time `gorm:"column:ts;primaryKey"`
	Asset      string    `gorm:"primaryKey;size:32"`
	Label      string    `gorm:"primaryKey;size:16"`
	Value      float64   `gorm:"not null"`
	UploadedAt time.Time `gorm:"not null;index"`
}

func (observationRow) TableName() string { return "observations" }

// forecastRow is unique per (ts, asset, family, step).
type forecastRow struct {
	Ts              time.Time         `gorm:"column:ts;primaryKey"`
	Asset           string            `gorm:"primaryKey;size:32"`
	Family          string            `gorm:"primaryKey;size:64"`
	Step            int               `gorm:"primaryKey"`
	Variant         string            `gorm:"size:160;not null;index"`
	Value           float64           `gorm:"not null"`
	AnchorAt        time.Time         `gorm:"not null;index"`
	WindowStart     time.Time         `gorm:"not null"`
	WindowEnd       time.Time         `gorm:"not null"`
	RunID           string            `gorm:"size:36"`
	Hyperparameters datatypes.JSONMap `gorm:"type:jsonb"`
	UploadedAt      time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null;index;autoUpdateTime:false"`
}

func (forecastRow) TableName() string { return "forecasts" }

func fromObservation(o models.Observation) observationRow {
	return observationRow{
		Ts:         o.Timestamp.UTC(),
		Asset:      o.Asset,
		Label:      string(o.Label),
		Value:      o.Value,
		UploadedAt: o.UploadedAt.UTC(),
	}
}

func fromForecast(p models.ForecastPoint) forecastRow {
	var hp datatypes.JSONMap
	if len(p.Hyperparameters) > 0 {
		hp = datatypes.JSONMap(p.Hyperparameters)
	}
	return forecastRow{
		Ts:              p.Timestamp.UTC(),
		Asset:           p.Asset,
		Family:          p.Family,
		Step:            p.Step,
		Variant:         p.Variant,
		Value:           p.Value,
		AnchorAt:        p.AnchorAt.UTC(),
		WindowStart:     p.WindowStart.UTC(),
		WindowEnd:       p.WindowEnd.UTC(),
		RunID:           p.RunID,
		Hyperparameters: hp,
		UploadedAt:      p.UploadedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func (r forecastRow) toModel() models.ForecastPoint {
	return models.ForecastPoint{
		Asset:           r.Asset,
		Timestamp:       r.Ts.UTC(),
		Family:          r.Family,
		Variant:         r.Variant,
		Step:            r.Step,
		Value:           r.Value,
		AnchorAt:        r.AnchorAt.UTC(),
		WindowStart:     r.WindowStart.UTC(),
		WindowEnd:       r.WindowEnd.UTC(),
		RunID:           r.RunID,
		UploadedAt:      r.UploadedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		Hyperparameters: map[string]any(r.Hyperparameters),
	}
}
