package repository

// ClickHouseSchema is the DDL of the three metric tiers. Re-inserting a row with the same
// sorting key collapses to the newest insert time on merge and under FINAL.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS pointwise_metrics (
        asset           LowCardinality(String),
        variant         String,
        family          LowCardinality(String),
        anchor_at       DateTime64(3, 'UTC'),
        step            Int32,
        ts              DateTime64(3, 'UTC'),
        forecast        Float64,
        actual          Float64,
        abs_error       Float64,
        bias            Float64,
        squared_error   Float64,
        ape             Float64,
        perc_error      Float64,
        log_error       Float64,
        rel_error       Float64,
        overprediction  Bool,
        underprediction Bool,
        zero_crossed    Bool,
        pw_insert_time  DateTime64(6, 'UTC')
    ) ENGINE = ReplacingMergeTree(pw_insert_time)
    ORDER BY (asset, variant, anchor_at, step, ts)`,

	`CREATE TABLE IF NOT EXISTS aggregated_metrics (
        asset               LowCardinality(String),
        variant             String,
        mae                 Float64,
        mse                 Float64,
        rmse                Float64,
        mape                Float64,
        bias_mean           Float64,
        bias_stddev         Float64,
        overprediction_rate Float64,
        underprediction_rate Float64,
        max_abs_error       Float64,
        max_ape             Float64,
        row_count           Int64,
        sum_abs             Float64,
        sum_sq              Float64,
        sum_ape             Float64,
        sum_bias            Float64,
        sum_bias_sq         Float64,
        over_count          Int64,
        under_count         Int64,
        am_insert_time      DateTime64(6, 'UTC')
    ) ENGINE = ReplacingMergeTree
    ORDER BY (asset, variant, am_insert_time)`,

	`CREATE TABLE IF NOT EXISTS windowed_metrics (
        asset               LowCardinality(String),
        variant             String,
        anchor_at           DateTime64(3, 'UTC'),
        step                Int32,
        ts                  DateTime64(3, 'UTC'),
        cumulative_mae      Float64,
        cumulative_rmse     Float64,
        mean_bias           Float64,
        error_growth_rate   Float64,
        relative_step_error Float64,
        is_reversal         Bool,
        step_stddev         Float64,
        step_rank           Int32,
        fwmv_insert_time    DateTime64(6, 'UTC')
    ) ENGINE = ReplacingMergeTree(fwmv_insert_time)
    ORDER BY (asset, variant, anchor_at, step)`,
}
