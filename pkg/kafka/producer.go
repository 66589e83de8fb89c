package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer writes events to any topic through one shared writer. Messages with the same key land
// on the same partition.
type Producer struct {
	w      *kafka.Writer
	codec  string
	stats  *producerStats
	source string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            parseCompression(cfg.Compression),
			MaxAttempts:            cfg.MaxAttempts,
			WriteTimeout:           cfg.WriteTimeout,
			ReadTimeout:            cfg.ReadTimeout,
			BatchSize:              cfg.BatchSize,
			BatchBytes:             int64(cfg.BatchBytes),
			BatchTimeout:           cfg.BatchTimeout,
			AllowAutoTopicCreation: cfg.AutoCreateTopics,
		},
		codec:  cfg.Compression,
		stats:  stats(),
		source: cfg.Source,
	}, nil
}

// Publish sends one keyed message. value may be []byte, string or anything JSON-encodable.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends an unkeyed message. Log collectors ship through it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload any) error {
	return p.PublishBatch(ctx, topic, []Message{{Value: payload}})
}

func (p *Producer) PublishBatch(ctx context.Context, topic string, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}

	began := time.Now()
	out := make([]kafka.Message, len(batch))
	size := 0
	for i, m := range batch {
		body, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: body, Time: began.UTC()}
		if p.source != "" {
			out[i].Headers = []kafka.Header{{Key: "source", Value: []byte(p.source)}}
		}
		size += len(body)
	}

	err := p.w.WriteMessages(ctx, out...)
	p.stats.observe(topic, p.codec, size, len(out), time.Since(began), err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

type Message struct {
	Key   []byte
	Value any
}

func encodeValue(value any) ([]byte, error) {
	if b, ok := value.([]byte); ok {
		return b, nil
	}
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode kafka value: %w", err)
	}
	return b, nil
}

var compressions = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// parseCompression falls back to gzip for unknown names.
func parseCompression(name string) kafka.Compression {
	if c, ok := compressions[name]; ok {
		return c
	}
	return kafka.Gzip
}

type producerStats struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// collectors register once per process; every Producer shares them.
var stats = sync.OnceValue(func() *producerStats {
	return &producerStats{
		messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forecastpull_kafka_messages_total",
			Help: "Messages written to Kafka by topic and outcome.",
		}, []string{"topic", "result"}),
		bytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "forecastpull_kafka_bytes_total",
			Help: "Uncompressed payload bytes written to Kafka.",
		}, []string{"topic", "compression"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecastpull_kafka_write_seconds",
			Help:    "Duration of one batch write.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
})

func (s *producerStats) observe(topic, codec string, size, n int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.messages.WithLabelValues(topic, result).Add(float64(n))
	s.bytes.WithLabelValues(topic, codec).Add(float64(size))
	s.latency.WithLabelValues(topic).Observe(took.Seconds())
}
