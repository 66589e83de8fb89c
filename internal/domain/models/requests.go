package models

// Query parameters of the reporting endpoints. Times accept RFC3339, a date or unix seconds.

type ForecastsRequest struct {
	Asset  string `query:"asset" json:"asset" validate:"required"`
	Family string `query:"family" json:"family"`
	Anchor string `query:"anchor" json:"anchor"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=10000"`
}

type AggregatedRequest struct {
	Asset   string `query:"asset" json:"asset"`
	Variant string `query:"variant" json:"variant"`
}

type WindowedRequest struct {
	Asset   string `query:"asset" json:"asset" validate:"required"`
	Variant string `query:"variant" json:"variant"`
	Runs    int    `query:"runs" json:"runs" default:"5" validate:"gte=1,lte=100"`
}

// MetricsSummary summarises the current pointwise rows of one (asset, variant). A revised
// forecast or observation replaces its earlier row, so every point counts once.
type MetricsSummary struct {
	AggregatedMetric
	Runs int64 `json:"runs"`
}
