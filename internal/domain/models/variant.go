package models

import (
	"fmt"
	"strconv"
	"time"
)

// ModelSpec is the deployment configuration of one model family. Sizes are in hours.
type ModelSpec struct {
	Family          string         `json:"family"`
	TrainingWindow  int            `json:"training_window"`
	RetrainInterval int            `json:"retrain_interval"`
	ForecastWindow  int            `json:"forecast_window"`
	ForecastCadence int            `json:"forecast_cadence"`
	ForecastHorizon int            `json:"forecast_horizon"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

func (m ModelSpec) RetrainEvery() time.Duration  { return time.Duration(m.RetrainInterval) * time.Hour }
func (m ModelSpec) ForecastEvery() time.Duration { return time.Duration(m.ForecastCadence) * time.Hour }

// ModelVariant is the immutable identity of a parameterised model family.
type ModelVariant struct {
	Family         string `json:"family"`
	Name           string `json:"name"`
	ExternalParams string `json:"external_params"`
	InnerParams    string `json:"inner_params"`
}

// Float reads a numeric hyperparameter, falling back to def when absent or not numeric.
func Float(hp map[string]any, key string, def float64) float64 {
	v, ok := hp[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f
		}
	}
	return def
}

// Int reads an integer hyperparameter.
func Int(hp map[string]any, key string, def int) int {
	f := Float(hp, key, float64(def))
	if f != float64(int(f)) {
		return def
	}
	return int(f)
}

// FormatParam renders a hyperparameter value the same way regardless of its decoded Go type.
func FormatParam(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []any:
		s := "("
		for i, e := range x {
			if i > 0 {
				s += ","
			}
			s += FormatParam(e)
		}
		return s + ")"
	default:
		return fmt.Sprintf("%v", x)
	}
}
