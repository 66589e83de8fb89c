//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ForecastPull/pkg/config"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application and its cleanup.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, l *logger.Logger) (*server.App, func(), error) {
	wire.Build(
		// Events first so every component logger shares the collector
		ProvideEventPublisher,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgres,
		ProvideClickHouseClient,
		ProvideBadger,

		// Repositories
		ProvidePostgresStore,
		ProvideMetricsStore,
		ProvideClockStore,
		ProvideArtifactStore,
		ProvideLocker,
		ProvideMarketData,
		ProvideAdapters,

		// Use cases
		ProvideCompletenessGuard,
		ProvideOrchestrator,
		ProvideMetricsPipeline,

		// Delivery
		ProvideSummaryCache,
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideScheduler,

		// Application
		ProvideApp,
	)
	return nil, nil, nil
}
