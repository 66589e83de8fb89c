package models

import "time"

// Clock is either Never or LastSuccessAt(t).
type Clock struct {
	Valid         bool      `msgpack:"valid" json:"valid"`
	LastSuccessAt time.Time `msgpack:"last_success_at" json:"last_success_at"`
}

func Never() Clock { return Clock{} }

func At(t time.Time) Clock { return Clock{Valid: true, LastSuccessAt: t.UTC()} }

// Due reports whether an action spaced by interval may run at cursor.
func (c Clock) Due(cursor time.Time, interval time.Duration) bool {
	if !c.Valid {
		return true
	}
	return cursor.Sub(c.LastSuccessAt) >= interval
}

// Advance moves the clock to t. A clock never moves backwards.
func (c Clock) Advance(t time.Time) Clock {
	if c.Valid && !t.After(c.LastSuccessAt) {
		return c
	}
	return At(t)
}

func (c Clock) String() string {
	if !c.Valid {
		return "never"
	}
	return c.LastSuccessAt.Format(time.RFC3339)
}

// ClockState is the persisted scheduling state of one (asset, model family).
type ClockState struct {
	Asset            string    `msgpack:"asset" json:"asset"`
	Family           string    `msgpack:"family" json:"family"`
	Retrain          Clock     `msgpack:"retrain" json:"retrain"`
	Forecast         Clock     `msgpack:"forecast" json:"forecast"`
	FitFailures      int       `msgpack:"fit_failures" json:"fit_failures"`
	ForecastFailures int       `msgpack:"forecast_failures" json:"forecast_failures"`
	UpdatedAt        time.Time `msgpack:"updated_at" json:"updated_at"`
}

// UTC returns the state with every time in UTC. Decoders may hand back local times.
func (s ClockState) UTC() ClockState {
	s.Retrain.LastSuccessAt = s.Retrain.LastSuccessAt.UTC()
	s.Forecast.LastSuccessAt = s.Forecast.LastSuccessAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s
}
