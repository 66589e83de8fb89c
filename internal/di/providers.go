package di

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ForecastPull/internal/adapters"
	"ForecastPull/internal/artifact"
	"ForecastPull/internal/domain/models"
	"ForecastPull/internal/domain/repository"
	"ForecastPull/internal/domain/service"
	"ForecastPull/internal/handler/api"
	internalrepo "ForecastPull/internal/repository"
	icache "ForecastPull/internal/service/cache"
	"ForecastPull/internal/service/cryptocompare"
	"ForecastPull/internal/usecase"
	pkgbadger "ForecastPull/pkg/badger"
	"ForecastPull/pkg/cache"
	pkgch "ForecastPull/pkg/clickhouse"
	"ForecastPull/pkg/config"
	xhttp "ForecastPull/pkg/http"
	pkgkafka "ForecastPull/pkg/kafka"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/metrics"
	pkgpostgres "ForecastPull/pkg/postgres"
	"ForecastPull/pkg/scheduler"
	"ForecastPull/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
}

// ProvidePostgres opens the observation/forecast database.
func ProvidePostgres(cfg *config.Config, l *logger.Logger) (*gorm.DB, func(), error) {
	db, err := pkgpostgres.Open(pkgpostgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	cleanup := func() {
		if err := pkgpostgres.Close(db); err != nil {
			l.Warn("postgres close error", logger.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvidePostgresStore wraps the database and migrates its schema.
func ProvidePostgresStore(db *gorm.DB, l *logger.Logger) (*internalrepo.PostgresStore, error) {
	store := internalrepo.NewPostgresStore(db, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return store, nil
}

// ProvideClickHouseClient creates the metrics database client.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port, cfg.ClickHouse.UseHTTP),
		pkgch.WithLogin(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithQueryLimit(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideMetricsStore creates the tier tables and returns their store.
func ProvideMetricsStore(ch *pkgch.Client, l *logger.Logger) (*internalrepo.CHMetricsStore, error) {
	store := internalrepo.NewCHMetricsStore(ch, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideBadger opens the scheduler state database.
func ProvideBadger(cfg *config.Config, l *logger.Logger) (*pkgbadger.DB, func(), error) {
	db, err := pkgbadger.Open(pkgbadger.Config{
		Path:           cfg.Badger.Path,
		InMemory:       cfg.Badger.InMemory,
		SyncWrites:     cfg.Badger.SyncWrites,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		Logger:         l.Component("badger"),
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			l.Warn("badger close error", logger.Error(err))
		}
	}
	return db, cleanup, nil
}

func ProvideClockStore(db *pkgbadger.DB) repository.ClockStore {
	return internalrepo.NewBadgerClockStore(db)
}

// ProvideArtifactStore selects the filesystem or GCS artifact backend.
func ProvideArtifactStore(cfg *config.Config, l *logger.Logger) (repository.ArtifactStore, func(), error) {
	if cfg.Artifacts.Backend == "gcs" {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		gcs := cfg.Artifacts.GCS
		store, err := artifact.NewGCSStore(ctx, gcs.Bucket, gcs.Prefix, gcs.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				l.Warn("gcs close error", logger.Error(err))
			}
		}
		return store, cleanup, nil
	}

	store, err := artifact.NewFSStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// ProvideLocker selects the retrain lease backend.
func ProvideLocker(cfg *config.Config, l *logger.Logger) (repository.Locker, func(), error) {
	switch cfg.Lease.Backend {
	case "none":
		return cache.NopLocker{}, func() {}, nil
	case "redis":
		locker, err := cache.NewRedisLocker(context.Background(),
			cache.WithServer(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB),
			cache.WithKeyPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := locker.Close(); err != nil {
				l.Warn("redis close error", logger.Error(err))
			}
		}
		return locker, cleanup, nil
	default:
		return cache.NewMemoryLocker(), func() {}, nil
	}
}

// ProvideEventPublisher publishes pipeline events to Kafka and attaches the error log collector
// to the same producer. Without brokers, events are dropped.
func ProvideEventPublisher(cfg *config.Config, l *logger.Logger) (repository.EventPublisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		l.Info("kafka disabled: no brokers configured")
		return internalrepo.NopPublisher{}, func() {}, nil
	}

	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithSource("forecastd"),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Compression, p.MaxAttempts),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   time.Minute,
		CountThreshold: 100,
		Topic:          cfg.Kafka.Topics.Logs,
		Publisher:      producer,
	})

	pub := internalrepo.NewKafkaPublisher(producer, internalrepo.EventTopics{
		Forecasts: cfg.Kafka.Topics.Forecasts,
		Metrics:   cfg.Kafka.Topics.Metrics,
		Alerts:    cfg.Kafka.Topics.Alerts,
	})
	cleanup := func() {
		// flush collected errors before the producer goes away
		l.RemoveCollector()
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideMarketData(cfg *config.Config, l *logger.Logger) repository.MarketData {
	return cryptocompare.New(cryptocompare.Config{
		BaseURL:           cfg.CryptoCompare.BaseURL,
		APIKey:            cfg.CryptoCompare.APIKey,
		Quote:             cfg.Run.QuoteCurrency,
		Timeout:           cfg.CryptoCompare.Timeout,
		PageLimit:         cfg.CryptoCompare.PageLimit,
		RequestsPerSecond: cfg.CryptoCompare.RequestsPerSecond,
		Retries:           cfg.CryptoCompare.Retries,
	}, l)
}

// ProvideAdapters registers the built-in families, overrides the remote ones and checks that
// every configured family resolves.
func ProvideAdapters(cfg *config.Config) (service.AdapterResolver, error) {
	reg := adapters.NewBuiltinRegistry()
	for _, family := range cfg.Adapters.Remote {
		reg.Register(family, adapters.NewRemote(family, cfg.Adapters.RemoteURL, cfg.Adapters.Timeout, cfg.Adapters.Retries))
	}

	families := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		families = append(families, m.Family)
	}
	if err := reg.Check(families...); err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	return reg, nil
}

// ModelSpecs converts the configured models to domain specs.
func ModelSpecs(cfg *config.Config) []models.ModelSpec {
	out := make([]models.ModelSpec, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		out = append(out, models.ModelSpec{
			Family:          m.Family,
			TrainingWindow:  m.TrainingWindowHours,
			RetrainInterval: m.RetrainIntervalHours,
			ForecastWindow:  m.ForecastWindowHours,
			ForecastCadence: m.ForecastCadenceHours,
			ForecastHorizon: m.ForecastHorizonHours,
			Hyperparameters: m.Hyperparameters,
		})
	}
	return out
}

func ProvideCompletenessGuard(store *internalrepo.PostgresStore, source repository.MarketData, l *logger.Logger) *usecase.CompletenessGuard {
	return usecase.NewCompletenessGuard(store, source, l)
}

// ProvideOrchestrator builds the per-asset walk.
func ProvideOrchestrator(
	cfg *config.Config,
	store *internalrepo.PostgresStore,
	clocks repository.ClockStore,
	artifacts repository.ArtifactStore,
	resolver service.AdapterResolver,
	guard *usecase.CompletenessGuard,
	locker repository.Locker,
	events repository.EventPublisher,
	recorder repository.Metrics,
	l *logger.Logger,
) (*usecase.Orchestrator, error) {
	start, _, err := cfg.RunWindow(time.Now())
	if err != nil {
		return nil, err
	}
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		Start:          start,
		Models:         ModelSpecs(cfg),
		Parallelism:    cfg.Run.Parallelism,
		LeaseTTL:       cfg.Lease.TTL,
		AlertThreshold: cfg.Alerts.FitFailureThreshold,
		Live:           cfg.EndIsNow(),
	}, usecase.OrchestratorDeps{
		Observations: store,
		Forecasts:    store,
		Clocks:       clocks,
		Artifacts:    artifacts,
		Adapters:     resolver,
		Guard:        guard,
		Locker:       locker,
		Events:       events,
		Metrics:      recorder,
	}, l), nil
}

func ProvideMetricsPipeline(
	cfg *config.Config,
	pairs *internalrepo.PostgresStore,
	store *internalrepo.CHMetricsStore,
	events repository.EventPublisher,
	recorder repository.Metrics,
	l *logger.Logger,
) *usecase.MetricsPipeline {
	return usecase.NewMetricsPipeline(usecase.MetricsPipelineConfig{
		Epsilon:   cfg.Evaluation.Epsilon,
		SettleLag: cfg.Evaluation.SettleLag,
	}, pairs, store, events, recorder, l)
}

func ProvideSummaryCache(cfg *config.Config) *icache.TTLCache {
	return icache.NewTTLCache(cfg.Server.SummaryCacheTTL)
}

// ProvideHandlers builds the read-only API.
func ProvideHandlers(
	pg *internalrepo.PostgresStore,
	ch *internalrepo.CHMetricsStore,
	pipeline *usecase.MetricsPipeline,
	summaries *icache.TTLCache,
	l *logger.Logger,
) []xhttp.Handler {
	l = l.Component("api")
	checks := map[string]api.HealthCheck{
		"postgres":   pg.Health,
		"clickhouse": ch.Health,
	}
	return []xhttp.Handler{
		api.NewForecastsHandler(l, pg),
		api.NewMetricsHandler(l, ch, summaries),
		api.NewHealthHandler(l, checks, pipeline),
	}
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	return xhttp.NewServer(l.Component("http"), handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

func ProvideScheduler(l *logger.Logger) *scheduler.Scheduler {
	return scheduler.New(l)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	orch *usecase.Orchestrator,
	pipeline *usecase.MetricsPipeline,
	guard *usecase.CompletenessGuard,
	sched *scheduler.Scheduler,
	srv *xhttp.Server,
	summaries *icache.TTLCache,
) *server.App {
	return server.New(cfg, l, server.Deps{
		Orchestrator: orch,
		Pipeline:     pipeline,
		Guard:        guard,
		Scheduler:    sched,
		HTTPServer:   srv,
		SummaryCache: summaries,
	})
}
