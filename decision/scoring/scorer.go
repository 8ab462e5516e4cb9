package scoring

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"quantgate/config"
	"quantgate/logger"
	"quantgate/market"
)

// 信号方向
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Input 单次评分的全部输入
// 纯值传入、纯值返回：相同输入必然得到相同结果
type Input struct {
	Symbol     string
	Direction  string // "long" / "short"
	Evidence   *market.Data
	Tally      Tally
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	RiskReward float64

	// 排名提示（0=未参与排名，1起算）
	Rank         int
	QualityScore float64
}

// Result 评分结果，返回后不再修改
type Result struct {
	Confidence   float64  `json:"confidence"`
	RawScore     float64  `json:"raw_score"`
	MaxScore     float64  `json:"max_score"`
	Breakdown    []string `json:"breakdown"`
	AutoRejected bool     `json:"auto_rejected"`
	RejectReason string   `json:"reject_reason,omitempty"`
}

// Scorer 多因子信心度评分引擎
// 永不panic：证据缺失的子项计0分并从满分中扣除，结果落在[0.1, 1.0]
type Scorer struct {
	params config.ScoringParams
	log    zerolog.Logger
}

func NewScorer(params config.ScoringParams) *Scorer {
	return &Scorer{
		params: params,
		log:    logger.Component("scorer"),
	}
}

// Score 综合评分入口
// 加权子项求和 → 除以满分 → 合并惩罚一次性乘算（上限50%）→ 排名乘数 → 夹到边界
func (s *Scorer) Score(in Input) Result {
	r := Result{}
	if in.Evidence == nil || in.Evidence.CurrentPrice <= 0 {
		r.Confidence = config.ConfidenceFloor
		r.Breakdown = append(r.Breakdown, "⚠️ 证据缺失，信心度置底")
		return r
	}

	price := in.Evidence.CurrentPrice

	// ===== 门卫：趋势一致性 =====
	trendScore, trendAvailable, trendVeto := s.trendAlignment(in)
	if trendVeto {
		r.Confidence = config.ConfidenceFloor
		r.AutoRejected = true
		r.RejectReason = fmt.Sprintf("趋势一致性为0: 所有可用周期与%s方向完全相反", directionLabel(in.Direction))
		r.Breakdown = append(r.Breakdown,
			fmt.Sprintf("🚨 门卫否决: 趋势完全背离 (%s)", in.Direction))
		return r
	}
	// 排名趋势加成在门卫判定之后生效（加成不能救回背离的趋势）
	if bonus := s.rankTrendBonus(in.Rank); bonus > 0 && trendAvailable {
		trendScore = math.Min(trendScore+bonus, s.params.TrendMax)
		r.Breakdown = append(r.Breakdown, fmt.Sprintf("排名#%d趋势加成: +%.0f", in.Rank, bonus))
	}

	var raw, max float64
	add := func(name string, score, cap float64, available bool) {
		if !available {
			r.Breakdown = append(r.Breakdown, fmt.Sprintf("%s: 数据缺失，不计入满分", name))
			return
		}
		raw += score
		max += cap
		r.Breakdown = append(r.Breakdown, fmt.Sprintf("%s: %.1f/%.0f", name, score, cap))
	}

	add("趋势一致性", trendScore, s.params.TrendMax, trendAvailable)
	add("盈亏比质量", s.riskRewardScore(in), s.params.RiskRewardMax, true)

	techScore, techAvailable := s.technicalScore(in)
	add("技术面共识", techScore, s.params.TechnicalMax, techAvailable)
	add("市场环境", s.contextScore(in, price), s.params.ContextMax, true)

	extScore, extMax := s.externalScore(in, price)
	raw += extScore
	max += extMax
	r.Breakdown = append(r.Breakdown, fmt.Sprintf("外部确认: %.1f/%.0f", extScore, extMax))

	srScore, srMax, srAvailable := s.srScore(in, price)
	add("支撑阻力位置", srScore, srMax, srAvailable)

	momScore, momAvailable := s.momentumScore(in)
	add("动量与背离", momScore, s.params.MomentumMax, momAvailable)

	r.RawScore = raw
	r.MaxScore = max

	base := 0.0
	if max > 0 {
		base = raw / max
	}

	// ===== 惩罚合并 =====
	penalty, penaltyLines, hardReject := s.penalties(in, price)
	r.Breakdown = append(r.Breakdown, penaltyLines...)

	confidence := base * (1 - penalty)
	if hardReject != "" && confidence < s.params.HardRejectFloor {
		r.Confidence = config.ConfidenceFloor
		r.AutoRejected = true
		r.RejectReason = hardReject
		r.Breakdown = append(r.Breakdown, fmt.Sprintf("🚨 硬拒绝: %s (惩罚后预期%.2f < %.2f)",
			hardReject, confidence, s.params.HardRejectFloor))
		return r
	}

	// ===== 排名乘数 =====
	if boost := s.rankBoost(in.Rank); boost > 1 {
		confidence *= boost
		r.Breakdown = append(r.Breakdown, fmt.Sprintf("排名#%d信心加成: ×%.2f", in.Rank, boost))
	}

	// ===== 质量分乘数 =====
	// 上游筛选给出的质量提示（0-1），按比例折算成小幅加成
	if q := math.Min(in.QualityScore, 1); q > 0 && s.params.QualityBoostMax > 0 {
		boost := 1 + s.params.QualityBoostMax*q
		confidence *= boost
		r.Breakdown = append(r.Breakdown, fmt.Sprintf("质量分%.2f信心加成: ×%.3f", q, boost))
	}

	// 边界：惩罚后重新垫底，永远到不了0（只有门卫能给0.1以下的语义）
	confidence = math.Min(confidence, config.ConfidenceCeil)
	confidence = math.Max(confidence, config.ConfidenceFloor)

	r.Confidence = confidence
	r.Breakdown = append(r.Breakdown,
		fmt.Sprintf("总分%.1f/%.1f 惩罚%.0f%% → 信心度%.3f", raw, max, penalty*100, confidence))
	return r
}

// trendAlignment 多周期趋势与信号方向的一致程度
// 返回(得分, 数据是否可用, 是否门卫否决)
// 否决条件：至少一个周期可用且全部与方向相反；横盘不算相反
func (s *Scorer) trendAlignment(in Input) (score float64, available, veto bool) {
	tfs := in.Evidence.TimeframeSets()
	if len(tfs) == 0 {
		return 0, false, false
	}

	want := "up"
	against := "down"
	if in.Direction == DirectionShort {
		want, against = "down", "up"
	}

	var sum float64
	opposed := 0
	for _, tf := range tfs {
		switch tf.Trend {
		case want:
			sum += 1.0
		case against:
			opposed++
		default: // side
			sum += 0.5
		}
	}
	if opposed == len(tfs) {
		return 0, true, true
	}
	return s.params.TrendMax * sum / float64(len(tfs)), true, false
}

// riskRewardScore 盈亏比质量：≥3.0拿满15，1.0以下线性归0，止损贴近再加成
func (s *Scorer) riskRewardScore(in Input) float64 {
	var score float64
	switch rr := in.RiskReward; {
	case rr >= 3.0:
		score = 15
	case rr > 1.0:
		score = 15 * (rr - 1.0) / 2.0
	}

	// 止损紧凑度：止损距离相对ATR越小越好
	if v := in.Evidence.Indicators.GetVolatility(); v != nil && v.ATR14 > 0 &&
		in.Entry > 0 && in.StopLoss > 0 {
		dist := math.Abs(in.Entry - in.StopLoss)
		switch ratio := dist / v.ATR14; {
		case ratio > 0 && ratio <= 1.5:
			score += 5
		case ratio <= 2.5:
			score += 3
		}
	}
	return math.Min(score, s.params.RiskRewardMax)
}

// technicalScore 技术面共识：计票结果里与方向一致的占比
func (s *Scorer) technicalScore(in Input) (float64, bool) {
	total := in.Tally.Bullish + in.Tally.Bearish
	if total == 0 {
		return 0, false
	}
	aligned := in.Tally.Bullish
	if in.Direction == DirectionShort {
		aligned = in.Tally.Bearish
	}
	return s.params.TechnicalMax * float64(aligned) / float64(total), true
}

// contextScore 市场环境：周期间是否一致（趋势行情）+ ATR占价格比例的甜区
func (s *Scorer) contextScore(in Input, price float64) float64 {
	var score float64

	tfs := in.Evidence.TimeframeSets()
	if len(tfs) > 0 {
		ups, downs := 0, 0
		for _, tf := range tfs {
			switch tf.Trend {
			case "up":
				ups++
			case "down":
				downs++
			}
		}
		switch {
		case ups > 0 && downs > 0:
			// 周期互相打架，震荡市
		case ups == len(tfs) || downs == len(tfs):
			score += 5 // 趋势行情
		default:
			score += 2.5
		}
	}

	if v := in.Evidence.Indicators.GetVolatility(); v != nil && v.ATR14 > 0 && price > 0 {
		switch atrPct := v.ATR14 / price * 100; {
		case atrPct >= 0.5 && atrPct <= 3.0:
			score += 5 // 波动甜区：够动但不失控
		case atrPct > 3.0 && atrPct <= 5.0:
			score += 2.5
		}
	}
	return math.Min(score, s.params.ContextMax)
}

// externalScore 外部确认：资金费率/持仓量/盘口/POC/结构转换/CVD/大户资金流
// 合约综合分额外提供0-50加成。外部数据整体缺失时：
// 普通标的照常占用30分满分（完全放弃该项），排名1-5的标的软化为15分
func (s *Scorer) externalScore(in Input, price float64) (score, maxScore float64) {
	if !in.Evidence.HasExternal() {
		if in.Rank >= 1 && in.Rank <= 5 {
			return 0, s.params.ExternalMaxSoftened
		}
		return 0, s.params.ExternalMax
	}
	e := in.Evidence.External
	long := in.Direction == DirectionLong

	if f := e.Funding; f != nil {
		// 反向资金费率是顺风：做多时费率为负（空头付费给多头）；
		// 趋势缓存给出的费率走向可再佐证——费率正朝有利方向移动
		aligned := (long && f.Rate < 0) || (!long && f.Rate > 0)
		supportive := (long && f.Trend == "falling") || (!long && f.Trend == "rising")
		switch {
		case aligned && supportive:
			score += 5
		case aligned:
			score += 4
		case supportive:
			score += 2
		case math.Abs(f.Rate) < 0.0001:
			score += 2
		}
	}
	if oi := e.OpenInterest; oi != nil {
		switch oi.Trend {
		case "rising":
			score += 4 // 持仓量上升=资金进场，对趋势方向都是确认
		case "flat":
			score += 2
		}
	}
	if ob := e.OrderBook; ob != nil && ob.ImbalanceRatio > 0 {
		switch {
		case long && ob.ImbalanceRatio > 0.55, !long && ob.ImbalanceRatio < 0.45:
			score += 5
		case long && ob.ImbalanceRatio > 0.5, !long && ob.ImbalanceRatio < 0.5:
			score += 2
		}
	}
	if vp := e.VolumeProfile; vp != nil && vp.POC > 0 && price > 0 {
		if math.Abs(price-vp.POC)/price < 0.01 {
			score += 3 // 贴近成交密集区，流动性好
		}
	}
	if coc := e.ChangeOfCharacter; coc != nil && coc.Confirmed {
		if (long && coc.Direction == "bullish") || (!long && coc.Direction == "bearish") {
			score += 5
		}
	}
	if cvd := e.CVD; cvd != nil {
		switch {
		case long && cvd.Trend == "rising", !long && cvd.Trend == "falling":
			score += 4
		case cvd.Trend == "flat":
			score += 1
		}
	}
	if w := e.Whale; w != nil {
		if (long && w.Signal == "accumulating") || (!long && w.Signal == "distributing") {
			score += 3
		}
	}
	score = math.Min(score, s.params.ExternalMax)
	maxScore = s.params.ExternalMax

	// 合约综合分加成（六个0-100分项的均值压缩到0-50）
	if fm := e.Futures; fm != nil {
		avg := (fm.FundingScore + fm.OIScore + fm.LiquidationSafety +
			fm.LongShortExtremity + fm.BTCCorrelation + fm.WhaleFlow) / 6
		score += avg / 100 * s.params.FuturesMax
		maxScore += s.params.FuturesMax
	}
	return score, maxScore
}

// srScore 支撑阻力位置：交易方向上的腾挪空间
// 排名1-5的标的权重翻倍（5→10）
func (s *Scorer) srScore(in Input, price float64) (score, maxScore float64, available bool) {
	maxScore = s.params.SRMax
	if in.Rank >= 1 && in.Rank <= 5 {
		maxScore = s.params.SRMax * 2
	}

	if in.Evidence.External == nil || in.Evidence.External.OrderBook == nil {
		return 0, maxScore, false
	}
	ob := in.Evidence.External.OrderBook

	var roomPct float64
	if in.Direction == DirectionLong {
		if ob.NearestResistance <= 0 {
			return 0, maxScore, false
		}
		roomPct = (ob.NearestResistance - price) / price * 100
	} else {
		if ob.NearestSupport <= 0 {
			return 0, maxScore, false
		}
		roomPct = (price - ob.NearestSupport) / price * 100
	}

	switch {
	case roomPct >= 3.0:
		score = maxScore
	case roomPct >= 1.0:
		score = maxScore / 2
	}
	return score, maxScore, true
}

// momentumScore 动量与背离：MACD柱方向 + RSI所处区间
func (s *Scorer) momentumScore(in Input) (float64, bool) {
	m := in.Evidence.Indicators.GetMomentum()
	if m == nil {
		return 0, false
	}
	long := in.Direction == DirectionLong
	var score float64

	if (long && m.MACDHist > 0) || (!long && m.MACDHist < 0) {
		score += 8
	}

	rsi := m.RSI14
	if long {
		switch {
		case rsi >= 40 && rsi <= 60:
			score += 7 // 健康区间，还有上行空间
		case rsi >= 30 && rsi < 40:
			score += 5 // 回调买点
		case rsi > 60 && rsi <= 70:
			score += 3
		}
	} else {
		switch {
		case rsi >= 40 && rsi <= 60:
			score += 7
		case rsi > 60 && rsi <= 70:
			score += 5
		case rsi >= 30 && rsi < 40:
			score += 3
		}
	}
	return math.Min(score, s.params.MomentumMax), true
}

// penalties 惩罚合并：各来源百分比先求和、再一次性乘算，总和封顶50%
// 返回硬拒绝原因（RSI极值/MACD极值时非空，由调用方结合预期信心度判定）
func (s *Scorer) penalties(in Input, price float64) (total float64, lines []string, hardReject string) {
	long := in.Direction == DirectionLong
	m := in.Evidence.Indicators.GetMomentum()

	// RSI极值惩罚（做多看超买，做空看超卖）
	if m != nil {
		rsi := m.RSI14
		var p float64
		switch {
		case long && rsi > 80, !long && rsi < 20:
			p = s.params.RSIPenaltyExtreme
			hardReject = fmt.Sprintf("RSI极值%.1f与%s方向严重冲突", rsi, directionLabel(in.Direction))
		case long && rsi > 75, !long && rsi < 25:
			p = s.params.RSIPenaltyStrong
		case long && rsi > 70, !long && rsi < 30:
			p = s.params.RSIPenaltyMild
		}
		if p > 0 {
			total += p
			lines = append(lines, fmt.Sprintf("⚠️ RSI惩罚: -%.0f%% (RSI=%.1f)", p*100, rsi))
		}

		// MACD柱与方向相反
		if price > 0 && ((long && m.MACDHist < 0) || (!long && m.MACDHist > 0)) {
			histPct := math.Abs(m.MACDHist) / price * 100
			var p float64
			switch {
			case histPct > 0.5:
				p = s.params.MACDPenaltyStrong
				if histPct > 1.0 && hardReject == "" {
					hardReject = fmt.Sprintf("MACD柱%.4f与%s方向极端背离", m.MACDHist, directionLabel(in.Direction))
				}
			case histPct > 0.2:
				p = s.params.MACDPenaltyMid
			default:
				p = s.params.MACDPenaltyMild
			}
			total += p
			lines = append(lines, fmt.Sprintf("⚠️ MACD惩罚: -%.0f%% (柱=%.5f)", p*100, m.MACDHist))
		}
	}

	// 量能合并惩罚：四个量能信号说的是同一件事，合并计一次、封顶15%
	// 分开计会把同一份证据重复惩罚四遍
	if vp := s.volumePenalty(in, price); vp > 0 {
		total += vp
		lines = append(lines, fmt.Sprintf("⚠️ 量能惩罚: -%.0f%% (合并封顶%.0f%%)",
			vp*100, s.params.VolumePenaltyCap*100))
	}

	if total > s.params.TotalPenaltyCap {
		lines = append(lines, fmt.Sprintf("惩罚总和%.0f%%超限，封顶%.0f%%",
			total*100, s.params.TotalPenaltyCap*100))
		total = s.params.TotalPenaltyCap
	}
	return total, lines, hardReject
}

func (s *Scorer) volumePenalty(in Input, price float64) float64 {
	vol := in.Evidence.Indicators.GetVolume()
	if vol == nil {
		return 0
	}
	long := in.Direction == DirectionLong
	var p float64

	if (long && vol.Recommendation == "sell") || (!long && vol.Recommendation == "buy") {
		p += 0.05
	}
	if e := in.Evidence.External; e != nil && e.OrderBook != nil && price > 0 {
		if long && e.OrderBook.NearestResistance > 0 &&
			(e.OrderBook.NearestResistance-price)/price < 0.01 {
			p += 0.04
		}
		if !long && e.OrderBook.NearestSupport > 0 &&
			(price-e.OrderBook.NearestSupport)/price < 0.01 {
			p += 0.04
		}
	}
	if (long && vol.NetDelta < 0) || (!long && vol.NetDelta > 0) {
		p += 0.03
	}
	if vol.TrendLabel == "decreasing" {
		p += 0.03
	}
	return math.Min(p, s.params.VolumePenaltyCap)
}

func (s *Scorer) rankTrendBonus(rank int) float64 {
	switch {
	case rank == 1:
		return s.params.RankTrendBonus1
	case rank >= 2 && rank <= 3:
		return s.params.RankTrendBonus3
	case rank >= 4 && rank <= 5:
		return s.params.RankTrendBonus5
	}
	return 0
}

func (s *Scorer) rankBoost(rank int) float64 {
	switch {
	case rank == 1:
		return 1 + s.params.RankBoost1
	case rank >= 2 && rank <= 3:
		return 1 + s.params.RankBoost3
	case rank >= 4 && rank <= 5:
		return 1 + s.params.RankBoost5
	case rank >= 6 && rank <= 10:
		return 1 + s.params.RankBoost10
	}
	return 1
}

func directionLabel(direction string) string {
	if direction == DirectionShort {
		return "做空"
	}
	return "做多"
}
