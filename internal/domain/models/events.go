package models

import "time"

type ForecastEvent struct {
	RunID    string    `json:"run_id"`
	Asset    string    `json:"asset"`
	Family   string    `json:"family"`
	Variant  string    `json:"variant"`
	AnchorAt time.Time `json:"anchor_at"`
	Steps    int       `json:"steps"`
	Written  int       `json:"written"`
	Skipped  int       `json:"skipped"`
}

type AlertEvent struct {
	Kind     string    `json:"kind"`
	Asset    string    `json:"asset"`
	Family   string    `json:"family"`
	Cursor   time.Time `json:"cursor"`
	Failures int       `json:"failures"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

type TierEvent struct {
	Tier      Tier      `json:"tier"`
	Rows      int       `json:"rows"`
	Watermark time.Time `json:"watermark"`
	Duration  float64   `json:"duration_seconds"`
}
