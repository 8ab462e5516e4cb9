package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrendCacheFirstObservationIsFlat(t *testing.T) {
	tc := NewTrendCache(time.Minute)
	assert.Equal(t, "flat", tc.Observe("funding:BTCUSDT", 0.0001))
}

func TestTrendCacheRisingAndFalling(t *testing.T) {
	tc := NewTrendCache(time.Minute)
	tc.Observe("oi:ETHUSDT", 1000)

	assert.Equal(t, "rising", tc.Observe("oi:ETHUSDT", 1100))
	assert.Equal(t, "falling", tc.Observe("oi:ETHUSDT", 900))
	assert.Equal(t, "flat", tc.Observe("oi:ETHUSDT", 900))
}

func TestTrendCacheKeysIndependent(t *testing.T) {
	tc := NewTrendCache(time.Minute)
	tc.Observe("a", 1)
	tc.Observe("b", 100)

	assert.Equal(t, "rising", tc.Observe("a", 2))
	assert.Equal(t, "falling", tc.Observe("b", 50))
}

func TestTrendCacheExpiredEntryIsFlat(t *testing.T) {
	tc := NewTrendCache(time.Nanosecond)
	tc.Observe("funding:SOLUSDT", 0.0001)
	time.Sleep(2 * time.Millisecond)

	// 旧值已过期，不参与比较
	assert.Equal(t, "flat", tc.Observe("funding:SOLUSDT", 0.0005))
}
