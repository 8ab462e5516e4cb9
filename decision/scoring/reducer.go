// Package scoring 证据归约与多因子信心度评分
// 归约器是方向判断的唯一事实来源：校验器和展示层都复用它，保证口径一致
package scoring

import "quantgate/market"

// 多数方向标签
const (
	MajorityBuy   = "BUY"
	MajoritySell  = "SELL"
	MajorityMixed = "MIXED"
)

// Tally 指标多空计票结果
type Tally struct {
	Bullish  int    `json:"bullish"`
	Bearish  int    `json:"bearish"`
	Majority string `json:"majority"`
}

// Diff 多空票差的绝对值
func (t Tally) Diff() int {
	d := t.Bullish - t.Bearish
	if d < 0 {
		return -d
	}
	return d
}

// Reduce 用固定规则表对指标集计票
// 每个可用指标恰好计一票；缺失的指标直接跳过，不算中性票
func Reduce(indicators *market.IndicatorSet, price float64) Tally {
	var t Tally
	if indicators == nil || price <= 0 {
		t.Majority = MajorityMixed
		return t
	}

	if tr := indicators.Trend; tr != nil {
		// EMA多头/空头排列
		if tr.EMA20 > 0 && tr.EMA50 > 0 {
			switch {
			case price > tr.EMA20 && tr.EMA20 > tr.EMA50:
				t.Bullish++
			case price < tr.EMA20 && tr.EMA20 < tr.EMA50:
				t.Bearish++
			}
		}
		// VWAP上下方
		if tr.VWAP > 0 {
			if price > tr.VWAP {
				t.Bullish++
			} else if price < tr.VWAP {
				t.Bearish++
			}
		}
		// SAR翻转位
		if tr.SAR > 0 {
			if price > tr.SAR {
				t.Bullish++
			} else if price < tr.SAR {
				t.Bearish++
			}
		}
	}

	if v := indicators.Volatility; v != nil && v.BollMiddle > 0 {
		if price > v.BollMiddle {
			t.Bullish++
		} else if price < v.BollMiddle {
			t.Bearish++
		}
	}

	if vol := indicators.Volume; vol != nil {
		if vol.OBV > vol.OBVPrev {
			t.Bullish++
		} else if vol.OBV < vol.OBVPrev {
			t.Bearish++
		}
	}

	if m := indicators.Momentum; m != nil {
		// 随机指标极值：超卖看多、超买看空
		if m.StochK > 0 {
			if m.StochK < 20 {
				t.Bullish++
			} else if m.StochK > 80 {
				t.Bearish++
			}
		}
		// Williams %R极值
		if m.WilliamsR != 0 {
			if m.WilliamsR < -80 {
				t.Bullish++
			} else if m.WilliamsR > -20 {
				t.Bearish++
			}
		}
		// MACD柱方向
		if m.MACDHist > 0 {
			t.Bullish++
		} else if m.MACDHist < 0 {
			t.Bearish++
		}
		// 10期动量
		if m.Momentum10 > 0 {
			t.Bullish++
		} else if m.Momentum10 < 0 {
			t.Bearish++
		}
	}

	switch {
	case t.Bullish > t.Bearish:
		t.Majority = MajorityBuy
	case t.Bearish > t.Bullish:
		t.Majority = MajoritySell
	default:
		t.Majority = MajorityMixed
	}
	return t
}
