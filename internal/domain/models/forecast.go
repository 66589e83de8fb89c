package models

import "time"

// ForecastPoint is one step of one forecast run. Step 0 is the anchor (last known value).
type ForecastPoint struct {
	Asset       string    `json:"asset"`
	Timestamp   time.Time `json:"timestamp"`
	Family      string    `json:"family"`
	Variant     string    `json:"variant"`
	Step        int       `json:"step"`
	Value       float64   `json:"value"`
	AnchorAt    time.Time `json:"anchor_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	RunID       string    `json:"run_id"`
	UploadedAt  time.Time `json:"uploaded_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

// EvaluationPair is a forecast point matched to the observation at the same (timestamp, asset).
type EvaluationPair struct {
	Asset       string
	Variant     string
	Family      string
	AnchorAt    time.Time
	Step        int
	Timestamp   time.Time
	Forecast    float64
	Actual      float64
	AvailableAt time.Time // greatest of both sides' update times
}

// WriteResult counts rows written versus rows skipped because the stored value already matched.
type WriteResult struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

func (r *WriteResult) Add(o WriteResult) {
	r.Written += o.Written
	r.Skipped += o.Skipped
}
