package market

import (
	"sync"
	"time"
)

// TrendCache 记录资金费率/持仓量等数值的上一次观测，用于判断趋势方向
// 条目带TTL：过期的旧值不再参与比较（避免跨大间隔的虚假趋势）
type TrendCache struct {
	mu      sync.Mutex
	entries map[string]trendEntry
	ttl     time.Duration
}

type trendEntry struct {
	value     float64
	updatedAt time.Time
}

func NewTrendCache(ttl time.Duration) *TrendCache {
	return &TrendCache{
		entries: make(map[string]trendEntry),
		ttl:     ttl,
	}
}

// Observe 记录新观测值并返回相对上一次的趋势
// 第一次观测（或旧值已过期）返回"flat"
func (tc *TrendCache) Observe(key string, value float64) string {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	prev, ok := tc.entries[key]
	tc.entries[key] = trendEntry{value: value, updatedAt: time.Now()}

	if !ok || time.Since(prev.updatedAt) > tc.ttl {
		return "flat"
	}
	const eps = 1e-9
	switch {
	case value > prev.value+eps:
		return "rising"
	case value < prev.value-eps:
		return "falling"
	default:
		return "flat"
	}
}
