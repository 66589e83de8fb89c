package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Set("summary:BTC", 42)
	v, ok := c.Get("summary:BTC")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("summary:BTC")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache(0)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(24 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestTTLCachePurge(t *testing.T) {
	c := NewTTLCache(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
