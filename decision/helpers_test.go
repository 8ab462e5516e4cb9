package decision

import (
	"context"
	"fmt"
	"math"

	"quantgate/config"
	"quantgate/market"
	"quantgate/mcp"
)

// testConfig 测试用配置（默认关掉相关性过滤之外的开关）
func testConfig(symbols ...string) *config.TradingConfig {
	cfg := config.Default()
	if len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	return cfg
}

// testUptrendData 多头快照
func testUptrendData(symbol string) *market.Data {
	return &market.Data{
		Symbol:       symbol,
		CurrentPrice: 100,
		PriceString:  "100.00",
		Indicators: &market.IndicatorSet{
			Trend: &market.TrendIndicators{EMA20: 98, EMA50: 95, EMA200: 90, VWAP: 97, SAR: 96},
			Momentum: &market.MomentumIndicators{
				RSI14: 45, MACD: 0.6, MACDSignal: 0.1, MACDHist: 0.5, Momentum10: 1.2,
			},
			Volatility: &market.VolatilityIndicators{BollUpper: 105, BollMiddle: 97, BollLower: 89, ATR14: 1.5},
			Volume: &market.VolumeIndicators{
				OBV: 1000, OBVPrev: 900, Current: 1200, Average: 1000,
				TrendLabel: "increasing", NetDelta: 50, Recommendation: "buy",
			},
		},
		Daily:  &market.TimeframeSet{Interval: "1d", Close: 100, Trend: "up", RSI14: 55, MACDHist: 0.5, ATR14: 1.5},
		H4:     &market.TimeframeSet{Interval: "4h", Close: 100, Trend: "up", RSI14: 55, MACDHist: 0.5, ATR14: 1.5},
		H1:     &market.TimeframeSet{Interval: "1h", Close: 100, Trend: "up", RSI14: 55, MACDHist: 0.5, ATR14: 1.5},
		Closes: risingCloses(60),
	}
}

// testDowntrendData 空头快照
func testDowntrendData(symbol string) *market.Data {
	d := testUptrendData(symbol)
	d.Indicators.Trend = &market.TrendIndicators{EMA20: 102, EMA50: 105, EMA200: 110, VWAP: 103, SAR: 104}
	d.Indicators.Momentum = &market.MomentumIndicators{RSI14: 45, MACDHist: -0.5, Momentum10: -1.2}
	d.Indicators.Volatility.BollMiddle = 103
	d.Indicators.Volume = &market.VolumeIndicators{OBV: 900, OBVPrev: 1000, Recommendation: "sell"}
	d.Daily.Trend, d.H4.Trend, d.H1.Trend = "down", "down", "down"
	d.Closes = fallingCloses(60)
	return d
}

// risingCloses 带波动的上行序列（收益率不能是常数，否则相关系数退化）
func risingCloses(n int) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price *= 1 + 0.005 + 0.004*math.Sin(float64(i))
		out[i] = price
	}
	return out
}

// fallingCloses 收益率与risingCloses逐点取反的下行序列
func fallingCloses(n int) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price *= 1 - (0.005 + 0.004*math.Sin(float64(i)))
		out[i] = price
	}
	return out
}

// fakeEvidence 注入式证据源
type fakeEvidence struct {
	data map[string]*market.Data
	errs map[string]error
}

func (f *fakeEvidence) Fetch(_ context.Context, symbol string) (*market.Data, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if d, ok := f.data[symbol]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("无%s的数据", symbol)
}

// fakeOracle 固定意见的裁判
type fakeOracle struct {
	proposals map[string]*mcp.Proposal
	errs      map[string]error
}

func (f *fakeOracle) Propose(_ context.Context, data *market.Data) (*mcp.Proposal, error) {
	if err, ok := f.errs[data.Symbol]; ok {
		return nil, err
	}
	if p, ok := f.proposals[data.Symbol]; ok {
		return p, nil
	}
	return &mcp.Proposal{Symbol: data.Symbol, Direction: "long", Confidence: 70, Reasoning: "测试意见"}, nil
}
