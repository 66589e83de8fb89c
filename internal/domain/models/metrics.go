package models

import "time"

// Tier names a stage of the metrics pipeline.
type Tier string

const (
	TierPointwise  Tier = "pointwise"
	TierAggregated Tier = "aggregated"
	TierWindowed   Tier = "windowed"
)

// RunKey identifies one forecast run of one variant.
type RunKey struct {
	Asset    string    `json:"asset"`
	Variant  string    `json:"variant"`
	AnchorAt time.Time `json:"anchor_at"`
}

// PointwiseMetric is one forecast point evaluated against its observation.
type PointwiseMetric struct {
	Asset          string    `json:"asset"`
	Variant        string    `json:"variant"`
	Family         string    `json:"family"`
	AnchorAt       time.Time `json:"anchor_at"`
	Step           int       `json:"step"`
	Timestamp      time.Time `json:"timestamp"`
	Forecast       float64   `json:"forecast"`
	Actual         float64   `json:"actual"`
	AbsError       float64   `json:"abs_error"`
	Bias           float64   `json:"bias"`
	SquaredError   float64   `json:"squared_error"`
	APE            float64   `json:"ape"`
	PercError      float64   `json:"perc_error"`
	LogError       float64   `json:"log_error"`
	RelError       float64   `json:"rel_error"`
	Overpredicted  bool      `json:"overprediction"`
	Underpredicted bool      `json:"underprediction"`
	ZeroCrossed    bool      `json:"zero_crossed"`
	InsertedAt     time.Time `json:"pw_insert_time"`
}

func (p PointwiseMetric) Key() RunKey {
	return RunKey{Asset: p.Asset, Variant: p.Variant, AnchorAt: p.AnchorAt.UTC()}
}

// AggregatedMetric summarises one batch of pointwise rows for an (asset, variant).
// The Sum* fields are sufficient statistics so batches can be rolled up exactly.
type AggregatedMetric struct {
	Asset       string    `json:"asset"`
	Variant     string    `json:"variant"`
	MAE         float64   `json:"mae"`
	MSE         float64   `json:"mse"`
	RMSE        float64   `json:"rmse"`
	MAPE        float64   `json:"mape"`
	BiasMean    float64   `json:"bias_mean"`
	BiasStddev  float64   `json:"bias_stddev"`
	OverRate    float64   `json:"overprediction_rate"`
	UnderRate   float64   `json:"underprediction_rate"`
	MaxAbsError float64   `json:"max_abs_error"`
	MaxAPE      float64   `json:"max_ape"`
	RowCount    int64     `json:"row_count"`
	SumAbs      float64   `json:"-"`
	SumSq       float64   `json:"-"`
	SumAPE      float64   `json:"-"`
	SumBias     float64   `json:"-"`
	SumBiasSq   float64   `json:"-"`
	OverCount   int64     `json:"-"`
	UnderCount  int64     `json:"-"`
	InsertedAt  time.Time `json:"am_insert_time"`
}

// WindowedMetric holds running statistics of one step of one forecast run.
type WindowedMetric struct {
	Asset             string    `json:"asset"`
	Variant           string    `json:"variant"`
	AnchorAt          time.Time `json:"anchor_at"`
	Step              int       `json:"step"`
	Timestamp         time.Time `json:"timestamp"`
	CumulativeMAE     float64   `json:"cumulative_mae"`
	CumulativeRMSE    float64   `json:"cumulative_rmse"`
	MeanBias          float64   `json:"mean_bias"`
	ErrorGrowthRate   float64   `json:"error_growth_rate"`
	RelativeStepError float64   `json:"relative_step_error"`
	IsReversal        bool      `json:"is_reversal"`
	StepStddev        float64   `json:"step_stddev"`
	StepRank          int       `json:"step_rank"`
	InsertedAt        time.Time `json:"fwmv_insert_time"`
}

func (w WindowedMetric) Key() RunKey {
	return RunKey{Asset: w.Asset, Variant: w.Variant, AnchorAt: w.AnchorAt.UTC()}
}
