package repository

import (
	"context"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	pkgkafka "ForecastPull/pkg/kafka"
)

// EventTopics names the topic of each event kind.
type EventTopics struct {
	Forecasts string
	Metrics   string
	Alerts    string
}

// KafkaPublisher publishes pipeline events as JSON, keyed by asset where one exists.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topics   EventTopics
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topics EventTopics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topics: topics}
}

func (p *KafkaPublisher) PublishForecast(ctx context.Context, ev models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.topics.Forecasts, []byte(ev.Asset), ev)
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return p.producer.Publish(ctx, p.topics.Alerts, []byte(ev.Asset), ev)
}

func (p *KafkaPublisher) PublishTier(ctx context.Context, ev models.TierEvent) error {
	return p.producer.Publish(ctx, p.topics.Metrics, []byte(ev.Tier), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishForecast(context.Context, models.ForecastEvent) error { return nil }
func (NopPublisher) PublishAlert(context.Context, models.AlertEvent) error       { return nil }
func (NopPublisher) PublishTier(context.Context, models.TierEvent) error         { return nil }
func (NopPublisher) Close() error                                                { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaPublisher)(nil)
	_ domrepo.EventPublisher = NopPublisher{}
)
