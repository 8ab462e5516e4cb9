package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quantgate/market"
)

// ErrUnparseable 裁判回复无法解析出结构化意见
// 调用方据此区分"结构性失败"与"正常的hold意见"
var ErrUnparseable = errors.New("裁判回复无法解析")

// Proposal 裁判对单个币种的方向性意见
// 这只是意见：方向会被本地证据校验纠正，价位字段可选且必须通过本地合理性检查才被采纳
type Proposal struct {
	Symbol     string `json:"symbol"`
	Direction  string `json:"direction"`  // "long" / "short" / "hold"
	Confidence int    `json:"confidence"` // 0-100，仅供参考
	Reasoning  string `json:"reasoning"`

	// 可选价位建议（缺省时由本地按ATR计算）
	Entry      float64 `json:"entry,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Leverage   int     `json:"leverage,omitempty"`
}

// Generator 方向意见来源的抽象（测试时用固定意见替换真实裁判）
type Generator interface {
	Propose(ctx context.Context, data *market.Data) (*Proposal, error)
}

// Oracle 基于Client的真实裁判实现
type Oracle struct {
	client *Client
}

func NewOracle(client *Client) *Oracle {
	return &Oracle{client: client}
}

const systemPrompt = `你是加密货币合约市场的方向判断助手。
根据用户提供的单个币种技术指标快照，判断当前方向性倾向。
只输出JSON对象（可以在JSON前写简短分析）：
{"symbol": "...", "direction": "long|short|hold", "confidence": 0-100, "reasoning": "一句话理由"}
可选字段: "entry"、"stop_loss"、"take_profit"、"leverage"。
价位建议仅供参考，不合理的会被系统重算；仓位大小不由你决定。`

// Propose 请求裁判对单个币种给出方向意见
func (o *Oracle) Propose(ctx context.Context, data *market.Data) (*Proposal, error) {
	response, err := o.client.CallWithMessages(ctx, systemPrompt, buildUserPrompt(data))
	if err != nil {
		return nil, err
	}
	proposal, err := ParseProposal(response)
	if err != nil {
		return nil, err
	}
	if proposal.Symbol == "" {
		proposal.Symbol = data.Symbol
	}
	return proposal, nil
}

// buildUserPrompt 组装单币种证据快照文本
func buildUserPrompt(d *market.Data) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n当前价: %s\n\n", d.Symbol, d.PriceString))

	if d.Indicators != nil {
		if t := d.Indicators.Trend; t != nil {
			sb.WriteString(fmt.Sprintf("趋势: EMA20=%.4f EMA50=%.4f EMA200=%.4f VWAP=%.4f SAR=%.4f\n",
				t.EMA20, t.EMA50, t.EMA200, t.VWAP, t.SAR))
		}
		if m := d.Indicators.Momentum; m != nil {
			sb.WriteString(fmt.Sprintf("动量: RSI14=%.1f Stoch=%.1f/%.1f WilliamsR=%.1f MACD柱=%.5f MOM10=%.4f\n",
				m.RSI14, m.StochK, m.StochD, m.WilliamsR, m.MACDHist, m.Momentum10))
		}
		if v := d.Indicators.Volatility; v != nil {
			sb.WriteString(fmt.Sprintf("波动: 布林=%.4f/%.4f/%.4f ATR14=%.4f\n",
				v.BollUpper, v.BollMiddle, v.BollLower, v.ATR14))
		}
		if vol := d.Indicators.Volume; vol != nil {
			sb.WriteString(fmt.Sprintf("量能: OBV方向=%s 量趋势=%s 结论=%s\n",
				obvDirection(vol), vol.TrendLabel, vol.Recommendation))
		}
	}

	for _, tf := range d.TimeframeSets() {
		sb.WriteString(fmt.Sprintf("%s周期: 趋势=%s RSI14=%.1f MACD柱=%.5f\n",
			tf.Interval, tf.Trend, tf.RSI14, tf.MACDHist))
	}

	if e := d.External; e != nil {
		if e.Funding != nil {
			sb.WriteString(fmt.Sprintf("资金费率: %.6f (%s)\n", e.Funding.Rate, e.Funding.Trend))
		}
		if e.OpenInterest != nil {
			sb.WriteString(fmt.Sprintf("持仓量: %.0f (%s)\n", e.OpenInterest.Latest, e.OpenInterest.Trend))
		}
		if e.OrderBook != nil {
			sb.WriteString(fmt.Sprintf("盘口买盘占比: %.2f 支撑=%.4f 阻力=%.4f\n",
				e.OrderBook.ImbalanceRatio, e.OrderBook.NearestSupport, e.OrderBook.NearestResistance))
		}
		if e.CVD != nil {
			sb.WriteString(fmt.Sprintf("CVD: %.0f (%s)\n", e.CVD.Value, e.CVD.Trend))
		}
	}

	sb.WriteString("\n请输出方向判断JSON\n")
	return sb.String()
}

func obvDirection(v *market.VolumeIndicators) string {
	switch {
	case v.OBV > v.OBVPrev:
		return "up"
	case v.OBV < v.OBVPrev:
		return "down"
	default:
		return "flat"
	}
}

// ParseProposal 从裁判回复中提取意见JSON
// 回复可能带思维链前缀、代码块包裹、中文引号等格式问题，逐层修复
func ParseProposal(response string) (*Proposal, error) {
	start := findJSONObjectStart(response)
	if start == -1 {
		return nil, fmt.Errorf("%w: 未找到JSON对象", ErrUnparseable)
	}
	end := findMatchingBrace(response, start)
	if end == -1 {
		return nil, fmt.Errorf("%w: JSON对象不完整", ErrUnparseable)
	}

	jsonContent := fixMissingQuotes(strings.TrimSpace(response[start : end+1]))

	var proposal Proposal
	if err := json.Unmarshal([]byte(jsonContent), &proposal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	proposal.Direction = strings.ToLower(strings.TrimSpace(proposal.Direction))
	switch proposal.Direction {
	case "long", "short", "hold":
	case "buy":
		proposal.Direction = "long"
	case "sell":
		proposal.Direction = "short"
	case "wait", "neutral", "":
		proposal.Direction = "hold"
	default:
		return nil, fmt.Errorf("%w: 未知方向 %q", ErrUnparseable, proposal.Direction)
	}
	if proposal.Confidence < 0 {
		proposal.Confidence = 0
	}
	if proposal.Confidence > 100 {
		proposal.Confidence = 100
	}
	// 负的价位建议没有意义，当作缺省处理
	if proposal.Entry < 0 {
		proposal.Entry = 0
	}
	if proposal.StopLoss < 0 {
		proposal.StopLoss = 0
	}
	if proposal.TakeProfit < 0 {
		proposal.TakeProfit = 0
	}
	if proposal.Leverage < 0 {
		proposal.Leverage = 0
	}
	return &proposal, nil
}
