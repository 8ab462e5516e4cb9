package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantgate/decision/scoring"
	"quantgate/mcp"
)

func TestValidatorNoSilentHoldWithoutPosition(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)

	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "hold"}, tally, false, data)

	// 无持仓时绝不输出hold
	assert.NotEqual(t, KindHold, signal.Kind)
	assert.Equal(t, KindEnterLong, signal.Kind)
}

func TestValidatorHoldKeptWithPosition(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)

	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "hold"}, tally, true, data)

	assert.Equal(t, KindHold, signal.Kind)
}

func TestValidatorForcedFlipOnSevereContradiction(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice) // 7:0 偏多

	// 裁判说做空，但票差≥3 → 强制翻到多头
	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "short", Reasoning: "看空"}, tally, false, data)

	assert.Equal(t, KindEnterLong, signal.Kind)
	assert.Contains(t, signal.Rationale, "方向已纠正")
}

func TestValidatorModerateContradictionUnchanged(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Tally{Bullish: 3, Bearish: 2, Majority: scoring.MajorityBuy} // 票差1，温和矛盾

	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "short"}, tally, false, data)

	// 温和矛盾不翻转，留给评分引擎压低趋势/技术分
	assert.Equal(t, KindEnterShort, signal.Kind)
}

func TestValidatorDirectionalConsistencyProperty(t *testing.T) {
	// 性质：票差≥3时，无论原始意见是什么，输出方向都等于多数方向
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Tally{Bullish: 6, Bearish: 2, Majority: scoring.MajorityBuy}

	for _, direction := range []string{"long", "short", "hold"} {
		signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: direction}, tally, false, data)
		assert.Equal(t, KindEnterLong, signal.Kind, "原始意见=%s", direction)
	}
}

func TestValidatorPopulatesEntryPrice(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)

	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "long"}, tally, false, data)

	assert.Equal(t, 100.0, signal.Entry)
	assert.Equal(t, "100.00", signal.EntryString)
}

func TestValidatorAdoptsNearbyProposedEntry(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)

	// 意见入场价偏差0.5%（≤1%）→ 采纳
	signal := v.Validate(&mcp.Proposal{
		Symbol: "BTCUSDT", Direction: "long",
		Entry: 100.5, StopLoss: 97, TakeProfit: 109, Leverage: 5,
	}, tally, false, data)

	assert.Equal(t, 100.5, signal.Entry)
	assert.Equal(t, 97.0, signal.StopLoss)
	assert.Equal(t, 109.0, signal.TakeProfit)
	assert.Equal(t, 5, signal.Leverage)
}

func TestValidatorIgnoresDeviatingProposedEntry(t *testing.T) {
	v := NewValidator()
	data := testUptrendData("BTCUSDT")
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)

	// 偏差5% → 回退到当前市价
	signal := v.Validate(&mcp.Proposal{Symbol: "BTCUSDT", Direction: "long", Entry: 105}, tally, false, data)

	assert.Equal(t, 100.0, signal.Entry)
	assert.Equal(t, "100.00", signal.EntryString)
}

func TestValidatorMixedTallyFallbackChain(t *testing.T) {
	v := NewValidator()
	data := testDowntrendData("ETHUSDT")
	tally := scoring.Tally{Majority: scoring.MajorityMixed}

	// MIXED → EMA空头排列补判 → 做空
	signal := v.Validate(&mcp.Proposal{Symbol: "ETHUSDT", Direction: "hold"}, tally, false, data)
	assert.Equal(t, KindEnterShort, signal.Kind)

	// 没有任何趋势数据 → 默认做多
	bare := testUptrendData("XUSDT")
	bare.Indicators = nil
	signal = v.Validate(&mcp.Proposal{Symbol: "XUSDT", Direction: "hold"}, tally, false, bare)
	assert.Equal(t, KindEnterLong, signal.Kind)
}
