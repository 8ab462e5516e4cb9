package market

// Data 单个币种的证据快照
// 每周期构建一次，构建完成后视为只读（所有评分/过滤阶段共享同一份）
type Data struct {
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"current_price"`
	PriceString  string  `json:"price_string"` // 交易所返回的原始价格字符串（展示保真）

	Indicators *IndicatorSet `json:"indicators"` // 主周期（1h）指标

	// 多周期指标集
	Daily *TimeframeSet `json:"daily"`
	H4    *TimeframeSet `json:"h4"`
	H1    *TimeframeSet `json:"h1"`

	External *ExternalData `json:"external"`

	// 最近已收盘价序列（相关性矩阵用，旧→新）
	Closes []float64 `json:"-"`

	Timestamp int64 `json:"timestamp"` // 最后一根已收盘K线的收盘时间（Unix秒）
}

// IndicatorSet 指标集合，各类别独立可缺失
// 缺失的类别在评分时计0分并体现在满分调整里，不做默认值填充
type IndicatorSet struct {
	Trend      *TrendIndicators      `json:"trend,omitempty"`
	Momentum   *MomentumIndicators   `json:"momentum,omitempty"`
	Volatility *VolatilityIndicators `json:"volatility,omitempty"`
	Volume     *VolumeIndicators     `json:"volume,omitempty"`
}

// TrendIndicators 趋势类指标
type TrendIndicators struct {
	EMA20  float64 `json:"ema20"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
	VWAP   float64 `json:"vwap"`
	SAR    float64 `json:"sar"`
}

// MomentumIndicators 动量类指标
type MomentumIndicators struct {
	RSI7       float64 `json:"rsi7"`
	RSI14      float64 `json:"rsi14"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
	WilliamsR  float64 `json:"williams_r"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	Momentum10 float64 `json:"momentum10"`
}

// VolatilityIndicators 波动类指标
type VolatilityIndicators struct {
	BollUpper  float64 `json:"boll_upper"`
	BollMiddle float64 `json:"boll_middle"`
	BollLower  float64 `json:"boll_lower"`
	ATR14      float64 `json:"atr14"`
}

// VolumeIndicators 量能类指标
type VolumeIndicators struct {
	OBV     float64 `json:"obv"`
	OBVPrev float64 `json:"obv_prev"` // 上一根K线的OBV（判断方向）
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	// "increasing" / "decreasing" / "flat"
	TrendLabel string `json:"trend_label"`
	// 主动买卖净差（CVD近似，基于taker buy volume）
	NetDelta float64 `json:"net_delta"`
	// 量能结论: "buy" / "sell" / "neutral"
	Recommendation string `json:"recommendation"`
}

// TimeframeSet 单一周期的精简指标集
type TimeframeSet struct {
	Interval string  `json:"interval"`
	Close    float64 `json:"close"`
	EMA20    float64 `json:"ema20"`
	EMA50    float64 `json:"ema50"`
	RSI14    float64 `json:"rsi14"`
	MACDHist float64 `json:"macd_hist"`
	ATR14    float64 `json:"atr14"`
	// "up" / "down" / "side"
	Trend string `json:"trend"`
}

// ExternalData 外部确认数据，各字段独立可缺失
type ExternalData struct {
	Funding           *FundingData       `json:"funding,omitempty"`
	OpenInterest      *OIData            `json:"open_interest,omitempty"`
	OrderBook         *OrderBookData     `json:"order_book,omitempty"`
	VolumeProfile     *VolumeProfileData `json:"volume_profile,omitempty"`
	CVD               *CVDData           `json:"cvd,omitempty"`
	ChangeOfCharacter *COCData           `json:"change_of_character,omitempty"`
	Futures           *FuturesMetrics    `json:"futures,omitempty"`
	Whale             *WhaleData         `json:"whale,omitempty"`
}

// FundingData 资金费率及趋势
type FundingData struct {
	Rate  float64 `json:"rate"`
	Trend string  `json:"trend"` // "rising" / "falling" / "flat"
}

// OIData 持仓量及趋势
type OIData struct {
	Latest float64 `json:"latest"`
	Trend  string  `json:"trend"` // "rising" / "falling" / "flat"
}

// OrderBookData 盘口深度摘要
type OrderBookData struct {
	BidDepth float64 `json:"bid_depth"` // 买盘名义深度（USDT）
	AskDepth float64 `json:"ask_depth"`
	// 买盘占比 bid/(bid+ask)，0.5为均衡
	ImbalanceRatio    float64 `json:"imbalance_ratio"`
	NearestSupport    float64 `json:"nearest_support"`
	NearestResistance float64 `json:"nearest_resistance"`
}

// VolumeProfileData 成交量分布摘要
type VolumeProfileData struct {
	POC float64 `json:"poc"` // Point of Control：成交最密集的价位
}

// CVDData 累计成交量差
type CVDData struct {
	Value float64 `json:"value"`
	Trend string  `json:"trend"` // "rising" / "falling" / "flat"
}

// COCData 市场结构转换（Change of Character）
type COCData struct {
	Direction string `json:"direction"` // "bullish" / "bearish"
	Confirmed bool   `json:"confirmed"`
}

// FuturesMetrics 合约综合指标，各分项0-100
// 评分引擎取均值后压缩到0-50作为外部确认加成
type FuturesMetrics struct {
	FundingScore       float64 `json:"funding_score"`
	OIScore            float64 `json:"oi_score"`
	LiquidationSafety  float64 `json:"liquidation_safety"`
	LongShortExtremity float64 `json:"long_short_extremity"`
	BTCCorrelation     float64 `json:"btc_correlation"`
	WhaleFlow          float64 `json:"whale_flow"`
}

// WhaleData 链上/大户资金流启发式
type WhaleData struct {
	NetExchangeFlow float64 `json:"net_exchange_flow"` // 正=流入交易所（抛压）
	Signal          string  `json:"signal"`            // "accumulating" / "distributing" / "neutral"
}

// 以下访问器对nil接收者安全，调用方不必逐层判空

func (s *IndicatorSet) GetTrend() *TrendIndicators {
	if s == nil {
		return nil
	}
	return s.Trend
}

func (s *IndicatorSet) GetMomentum() *MomentumIndicators {
	if s == nil {
		return nil
	}
	return s.Momentum
}

func (s *IndicatorSet) GetVolatility() *VolatilityIndicators {
	if s == nil {
		return nil
	}
	return s.Volatility
}

func (s *IndicatorSet) GetVolume() *VolumeIndicators {
	if s == nil {
		return nil
	}
	return s.Volume
}

// HasExternal 外部数据是否存在任意一项
func (d *Data) HasExternal() bool {
	if d == nil || d.External == nil {
		return false
	}
	e := d.External
	return e.Funding != nil || e.OpenInterest != nil || e.OrderBook != nil ||
		e.VolumeProfile != nil || e.CVD != nil || e.ChangeOfCharacter != nil ||
		e.Futures != nil || e.Whale != nil
}

// TimeframeSets 返回非空的多周期集合（日线优先）
func (d *Data) TimeframeSets() []*TimeframeSet {
	var out []*TimeframeSet
	for _, tf := range []*TimeframeSet{d.Daily, d.H4, d.H1} {
		if tf != nil {
			out = append(out, tf)
		}
	}
	return out
}
