package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"rows": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":3}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestProducerOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"k1:9092"}),
		WithSource("forecastd"),
		WithDelivery(1, "lz4", 5),
	)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "forecastd", p.source)
	assert.Equal(t, "lz4", p.codec)
	assert.Equal(t, 5, p.w.MaxAttempts)
	assert.Equal(t, kafka.RequiredAcks(1), p.w.RequiredAcks)
}
