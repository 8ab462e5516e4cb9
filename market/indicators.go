package market

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// Candle 单根已收盘K线
type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	// 主动买入成交量（taker buy base volume）
	TakerBuyVolume float64
}

// series 把K线切片拆成talib需要的列
func series(candles []Candle) (high, low, close, volume []float64) {
	high = make([]float64, len(candles))
	low = make([]float64, len(candles))
	close = make([]float64, len(candles))
	volume = make([]float64, len(candles))
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		close[i] = c.Close
		volume[i] = c.Volume
	}
	return
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

// ComputeIndicators 基于已收盘K线计算主周期全量指标
// 数据不足以计算某一类别时，该类别为nil（评分阶段按缺失处理）
func ComputeIndicators(candles []Candle) (*IndicatorSet, error) {
	if len(candles) < 35 {
		return nil, fmt.Errorf("K线不足: 需要至少35根, 实际%d根", len(candles))
	}
	high, low, close, volume := series(candles)
	set := &IndicatorSet{}

	// 趋势类：EMA200需要200根，只在数据够用时输出
	if len(close) >= 200 {
		set.Trend = &TrendIndicators{
			EMA20:  last(talib.Ema(close, 20)),
			EMA50:  last(talib.Ema(close, 50)),
			EMA200: last(talib.Ema(close, 200)),
			VWAP:   sessionVWAP(candles),
			SAR:    last(talib.Sar(high, low, 0.02, 0.2)),
		}
	} else if len(close) >= 50 {
		set.Trend = &TrendIndicators{
			EMA20: last(talib.Ema(close, 20)),
			EMA50: last(talib.Ema(close, 50)),
			VWAP:  sessionVWAP(candles),
			SAR:   last(talib.Sar(high, low, 0.02, 0.2)),
		}
	}

	macd, macdSignal, macdHist := talib.Macd(close, 12, 26, 9)
	stochK, stochD := talib.Stoch(high, low, close, 14, 3, talib.SMA, 3, talib.SMA)
	set.Momentum = &MomentumIndicators{
		RSI7:       last(talib.Rsi(close, 7)),
		RSI14:      last(talib.Rsi(close, 14)),
		StochK:     last(stochK),
		StochD:     last(stochD),
		WilliamsR:  last(talib.WillR(high, low, close, 14)),
		MACD:       last(macd),
		MACDSignal: last(macdSignal),
		MACDHist:   last(macdHist),
		Momentum10: last(talib.Mom(close, 10)),
	}

	bollUpper, bollMiddle, bollLower := talib.BBands(close, 20, 2.0, 2.0, talib.SMA)
	set.Volatility = &VolatilityIndicators{
		BollUpper:  last(bollUpper),
		BollMiddle: last(bollMiddle),
		BollLower:  last(bollLower),
		ATR14:      last(talib.Atr(high, low, close, 14)),
	}

	obv := talib.Obv(close, volume)
	obvPrev := 0.0
	if len(obv) >= 2 {
		obvPrev = obv[len(obv)-2]
	}
	avgVol := mean(volume[maxInt(0, len(volume)-20):])
	set.Volume = &VolumeIndicators{
		OBV:            last(obv),
		OBVPrev:        obvPrev,
		Current:        last(volume),
		Average:        avgVol,
		TrendLabel:     volumeTrend(volume),
		NetDelta:       netTakerDelta(candles, 20),
		Recommendation: volumeRecommendation(last(obv), obvPrev, last(volume), avgVol),
	}
	return set, nil
}

// ComputeTimeframe 计算单周期精简指标集
func ComputeTimeframe(interval string, candles []Candle) (*TimeframeSet, error) {
	if len(candles) < 35 {
		return nil, fmt.Errorf("%s K线不足: %d根", interval, len(candles))
	}
	high, low, close, _ := series(candles)
	_, _, macdHist := talib.Macd(close, 12, 26, 9)
	ema20 := last(talib.Ema(close, 20))
	ema50 := 0.0
	if len(close) >= 50 {
		ema50 = last(talib.Ema(close, 50))
	}
	tf := &TimeframeSet{
		Interval: interval,
		Close:    last(close),
		EMA20:    ema20,
		EMA50:    ema50,
		RSI14:    last(talib.Rsi(close, 14)),
		MACDHist: last(macdHist),
		ATR14:    last(talib.Atr(high, low, close, 14)),
	}
	tf.Trend = classifyTrend(tf.Close, tf.EMA20, tf.EMA50)
	return tf, nil
}

// classifyTrend 价格与均线的相对位置决定周期方向
func classifyTrend(close, ema20, ema50 float64) string {
	if ema50 == 0 {
		if close > ema20 {
			return "up"
		}
		if close < ema20 {
			return "down"
		}
		return "side"
	}
	switch {
	case close > ema20 && ema20 > ema50:
		return "up"
	case close < ema20 && ema20 < ema50:
		return "down"
	default:
		return "side"
	}
}

// sessionVWAP 滚动VWAP（取最近一个交易日窗口，典型价加权）
// talib没有VWAP，手算
func sessionVWAP(candles []Candle) float64 {
	start := maxInt(0, len(candles)-24)
	var pv, v float64
	for _, c := range candles[start:] {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		v += c.Volume
	}
	if v == 0 {
		return 0
	}
	return pv / v
}

// PivotLevels 经典枢轴点：基于上一完整周期的高低收
// 返回最近的支撑/阻力（相对当前价）
func PivotLevels(candles []Candle, price float64) (support, resistance float64) {
	if len(candles) == 0 || price <= 0 {
		return 0, 0
	}
	// 用最近24根聚合出"上一日"高低收
	start := maxInt(0, len(candles)-24)
	hi, lo := candles[start].High, candles[start].Low
	for _, c := range candles[start:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	cl := candles[len(candles)-1].Close
	p := (hi + lo + cl) / 3
	levels := []float64{
		2*p - hi,      // S1
		p - (hi - lo), // S2
		2*p - lo,      // R1
		p + (hi - lo), // R2
		p,
	}
	for _, lv := range levels {
		if lv <= 0 {
			continue
		}
		if lv < price && (support == 0 || lv > support) {
			support = lv
		}
		if lv > price && (resistance == 0 || lv < resistance) {
			resistance = lv
		}
	}
	return support, resistance
}

// netTakerDelta 最近n根的主动买卖净差（CVD增量近似）
func netTakerDelta(candles []Candle, n int) float64 {
	start := maxInt(0, len(candles)-n)
	var delta float64
	for _, c := range candles[start:] {
		// taker买入 - taker卖出 = 2*买入 - 总量
		delta += 2*c.TakerBuyVolume - c.Volume
	}
	return delta
}

func volumeTrend(volume []float64) string {
	if len(volume) < 10 {
		return "flat"
	}
	recent := mean(volume[len(volume)-5:])
	prior := mean(volume[len(volume)-10 : len(volume)-5])
	switch {
	case prior > 0 && recent > prior*1.2:
		return "increasing"
	case prior > 0 && recent < prior*0.8:
		return "decreasing"
	default:
		return "flat"
	}
}

func volumeRecommendation(obv, obvPrev, current, average float64) string {
	active := average > 0 && current > average
	switch {
	case obv > obvPrev && active:
		return "buy"
	case obv < obvPrev && active:
		return "sell"
	default:
		return "neutral"
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
