package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorInitialSplit(t *testing.T) {
	a := NewAllocator(testConfig())

	// 1000 USDT × 0.95 / 4 = 237.5
	assert.InDelta(t, 237.5, a.InitialSplit(1000, 4), 1e-9)
	assert.Zero(t, a.InitialSplit(1000, 0))
	assert.Zero(t, a.InitialSplit(0, 4))
}

func TestAllocatorFinalizeResizesOnlyEntries(t *testing.T) {
	a := NewAllocator(testConfig())
	long := entrySignal("AUSDT", KindEnterLong, 0.8, 20)
	hold := &Signal{Symbol: "BUSDT", Kind: KindHold, Confidence: 0.5}
	noPrice := entrySignal("CUSDT", KindEnterShort, 0.8, 20)
	noPrice.Entry = 0

	out := a.Finalize([]*Signal{long, hold, noPrice}, 1000)

	require.Len(t, out, 3)
	// 只有AUSDT参与第二轮均分: 1000×0.95/1=950保证金 ×3杠杆 /100入场价 = 28.5
	assert.InDelta(t, 28.5, out[0].Quantity, 1e-9)
	assert.Zero(t, out[1].Quantity)
	// 无入场价的开仓信号：临时仓位连同风险额/EV一并作废
	assert.Zero(t, out[2].Quantity)
	assert.Zero(t, out[2].RiskUSD)
	assert.Zero(t, out[2].ExpectedValue)
}

func TestAllocatorFinalizeIsPureTransform(t *testing.T) {
	// 第二轮是纯变换：原信号对象不被改动
	a := NewAllocator(testConfig())
	original := entrySignal("AUSDT", KindEnterLong, 0.8, 20)
	originalQty := original.Quantity
	originalEV := original.ExpectedValue

	out := a.Finalize([]*Signal{original}, 1000)

	assert.Equal(t, originalQty, original.Quantity)
	assert.Equal(t, originalEV, original.ExpectedValue)
	assert.NotSame(t, original, out[0])
	assert.NotEqual(t, originalQty, out[0].Quantity)
}

func TestAllocatorFinalizeRecomputesEconomics(t *testing.T) {
	a := NewAllocator(testConfig())
	sig := entrySignal("AUSDT", KindEnterLong, 0.8, 0)

	out := a.Finalize([]*Signal{sig}, 1000)

	qty := out[0].Quantity
	// 风险 = 数量 × |入场-止损|；EV = 0.8×盈利 − 0.2×亏损
	expectedRisk := qty * 3
	expectedReward := qty * 9
	assert.InDelta(t, expectedRisk, out[0].RiskUSD, 1e-9)
	assert.InDelta(t, 0.8*expectedReward-0.2*expectedRisk, out[0].ExpectedValue, 1e-9)
}

func TestAllocatorFinalizeEqualSplitAcrossEntries(t *testing.T) {
	a := NewAllocator(testConfig())
	s1 := entrySignal("AUSDT", KindEnterLong, 0.8, 20)
	s2 := entrySignal("BUSDT", KindEnterShort, 0.8, 20)

	out := a.Finalize([]*Signal{s1, s2}, 1000)

	// 两个都要仓位：各分475保证金
	assert.InDelta(t, out[0].Quantity, out[1].Quantity, 1e-9)
	assert.InDelta(t, 475*3/100.0, out[0].Quantity, 1e-9)
}
