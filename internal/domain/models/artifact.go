package models

import "time"

// Artifact is the serialized fitted state of a model for one asset.
type Artifact struct {
	Asset        string             `msgpack:"asset"`
	Family       string             `msgpack:"family"`
	TrainedAt    time.Time          `msgpack:"trained_at"` // cursor of the retrain
	TrainStart   time.Time          `msgpack:"train_start"`
	TrainEnd     time.Time          `msgpack:"train_end"`
	Points       int                `msgpack:"points"`
	Coefficients map[string]float64 `msgpack:"coefficients"`
	Payload      []byte             `msgpack:"payload,omitempty"`
}

func (a *Artifact) Coef(name string) float64 {
	if a == nil || a.Coefficients == nil {
		return 0
	}
	return a.Coefficients[name]
}
