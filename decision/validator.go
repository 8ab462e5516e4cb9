package decision

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"

	"quantgate/decision/scoring"
	"quantgate/logger"
	"quantgate/market"
	"quantgate/mcp"
)

// 严重矛盾阈值：计票差达到3票，强制把方向翻转到多数侧
const severeContradictionDiff = 3

// 意见入场价相对市价的最大可接受偏差
const entryDeviationLimit = 0.01

// Validator 意见校验与纠偏
// 裁判只有建议权：无持仓时不允许观望，与证据严重矛盾时方向被强制纠正
type Validator struct {
	log zerolog.Logger
}

func NewValidator() *Validator {
	return &Validator{log: logger.Component("validator")}
}

// Validate 把裁判意见转成初始信号
// 规则:
//  1. hold + 无持仓 → 按计票多数转向；MIXED时用EMA排列和VWAP补判；再不行默认做多
//  2. 方向性意见与计票多数相反且票差≥3 → 强制翻转到多数方向（纠正，不是拒绝）
//  3. 方向性信号缺入场价时用当前市价补齐
func (v *Validator) Validate(proposal *mcp.Proposal, tally scoring.Tally, hasPosition bool, data *market.Data) *Signal {
	signal := &Signal{
		Symbol:    proposal.Symbol,
		Kind:      kindFromDirection(proposal.Direction),
		Rationale: proposal.Reasoning,
	}

	// 无持仓时hold无意义：必须给出方向
	if signal.Kind == KindHold && !hasPosition {
		signal.Kind = v.resolveDirection(tally, data)
		v.log.Info().
			Str("symbol", signal.Symbol).
			Str("majority", tally.Majority).
			Str("resolved", string(signal.Kind)).
			Msg("✅ hold意见已转为方向信号（无持仓）")
	}

	// 与多数方向严重矛盾 → 强制纠正
	if signal.Kind.IsEntry() && tally.Majority != scoring.MajorityMixed {
		majorityKind := KindEnterLong
		if tally.Majority == scoring.MajoritySell {
			majorityKind = KindEnterShort
		}
		if signal.Kind != majorityKind && tally.Diff() >= severeContradictionDiff {
			v.log.Warn().
				Str("symbol", signal.Symbol).
				Str("proposed", string(signal.Kind)).
				Str("corrected", string(majorityKind)).
				Int("diff", tally.Diff()).
				Msg("⚠️ 意见与指标多数严重矛盾，方向已强制纠正")
			signal.Kind = majorityKind
			signal.Rationale = fmt.Sprintf("[方向已纠正: 指标%d:%d偏向%s] %s",
				tally.Bullish, tally.Bearish, tally.Majority, proposal.Reasoning)
		}
	}

	// 方向性信号定入场价：意见给的价只有贴近市价（偏差≤1%）才采纳，否则用当前市价
	if signal.Kind.IsEntry() && data != nil {
		price := data.CurrentPrice
		if proposal.Entry > 0 && price > 0 && math.Abs(proposal.Entry-price)/price <= entryDeviationLimit {
			signal.Entry = proposal.Entry
			signal.EntryString = strconv.FormatFloat(proposal.Entry, 'f', -1, 64)
		} else {
			signal.Entry = price
			signal.EntryString = data.PriceString
		}
		// 止损/止盈/杠杆先原样带上，方向合理性在补齐阶段统一检查
		signal.StopLoss = proposal.StopLoss
		signal.TakeProfit = proposal.TakeProfit
		signal.Leverage = proposal.Leverage
	}
	return signal
}

// resolveDirection MIXED时的补判链: 计票多数 → EMA排列 → VWAP → 默认做多
func (v *Validator) resolveDirection(tally scoring.Tally, data *market.Data) SignalKind {
	switch tally.Majority {
	case scoring.MajorityBuy:
		return KindEnterLong
	case scoring.MajoritySell:
		return KindEnterShort
	}

	if data != nil {
		if tr := data.Indicators.GetTrend(); tr != nil {
			price := data.CurrentPrice
			if tr.EMA20 > 0 && tr.EMA50 > 0 {
				if price > tr.EMA20 && tr.EMA20 > tr.EMA50 {
					return KindEnterLong
				}
				if price < tr.EMA20 && tr.EMA20 < tr.EMA50 {
					return KindEnterShort
				}
			}
			if tr.VWAP > 0 {
				if price > tr.VWAP {
					return KindEnterLong
				}
				if price < tr.VWAP {
					return KindEnterShort
				}
			}
		}
	}
	return KindEnterLong
}

func kindFromDirection(direction string) SignalKind {
	switch direction {
	case "long":
		return KindEnterLong
	case "short":
		return KindEnterShort
	default:
		return KindHold
	}
}
