package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"quantgate/logger"
)

// Provider 从币安USDT本位合约拉取并组装证据快照
// 同一周期内多个消费方（评分、相关性矩阵）共享缓存，避免重复请求
type Provider struct {
	client     *futures.Client
	log        zerolog.Logger
	klineLimit int

	cacheMu  sync.RWMutex
	cache    map[string]*cacheEntry
	cacheTTL time.Duration

	rateMu      sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	// 同币种并发请求合并：同一时刻每个币种最多一个在途请求
	// （相关性矩阵协程和扇出协程会同时要同一份快照，重复拉取会把趋势缓存写两次）
	flightMu sync.Mutex
	inFlight map[string]chan struct{}

	trends *TrendCache

	// 实际拉取函数，测试时替换
	fetchFn func(ctx context.Context, symbol string) (*Data, error)
}

type cacheEntry struct {
	data      *Data
	fetchedAt time.Time
}

// NewProvider 创建行情提供者（只读接口，不需要API密钥）
func NewProvider(klineLimit int) *Provider {
	if klineLimit < 250 {
		klineLimit = 250 // EMA200需要足够历史
	}
	p := &Provider{
		client:      futures.NewClient("", ""),
		log:         logger.Component("market"),
		klineLimit:  klineLimit,
		cache:       make(map[string]*cacheEntry),
		cacheTTL:    time.Minute,
		minInterval: 150 * time.Millisecond,
		inFlight:    make(map[string]chan struct{}),
		trends:      NewTrendCache(30 * time.Minute),
	}
	p.fetchFn = p.fetch
	return p
}

func (p *Provider) getCache(symbol string, allowStale bool) *Data {
	p.cacheMu.RLock()
	entry, ok := p.cache[symbol]
	p.cacheMu.RUnlock()
	if !ok {
		return nil
	}
	if allowStale || time.Since(entry.fetchedAt) < p.cacheTTL {
		return entry.data
	}
	return nil
}

func (p *Provider) setCache(symbol string, data *Data) {
	p.cacheMu.Lock()
	p.cache[symbol] = &cacheEntry{data: data, fetchedAt: time.Now()}
	p.cacheMu.Unlock()
}

// throttle 请求间隔限速，避免触发币安权重限制
func (p *Provider) throttle() {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()
	if !p.lastRequest.IsZero() {
		if remaining := p.minInterval - time.Since(p.lastRequest); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	p.lastRequest = time.Now()
}

// Fetch 获取单个币种的完整证据快照
// 同币种并发调用只有先到者真正发请求，后到者等它完成后读缓存；
// 失败时回退到陈旧缓存（有总比没有强），缓存也没有才返回错误
func (p *Provider) Fetch(ctx context.Context, symbol string) (*Data, error) {
	if cached := p.getCache(symbol, false); cached != nil {
		return cached, nil
	}

	p.flightMu.Lock()
	if ch, ok := p.inFlight[symbol]; ok {
		p.flightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// 先到者成功则缓存是新鲜的；失败则顶多还有旧缓存能用
		if cached := p.getCache(symbol, true); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("获取%s行情失败（并发请求的首个调用方未能取到数据）", symbol)
	}
	ch := make(chan struct{})
	p.inFlight[symbol] = ch
	p.flightMu.Unlock()
	defer func() {
		p.flightMu.Lock()
		delete(p.inFlight, symbol)
		p.flightMu.Unlock()
		close(ch)
	}()

	data, err := p.fetchFn(ctx, symbol)
	if err != nil {
		if stale := p.getCache(symbol, true); stale != nil {
			p.log.Warn().Str("symbol", symbol).Err(err).Msg("⚠️ 行情获取失败，使用陈旧缓存")
			return stale, nil
		}
		return nil, err
	}
	p.setCache(symbol, data)
	return data, nil
}

func (p *Provider) fetch(ctx context.Context, symbol string) (*Data, error) {
	h1, err := p.klines(ctx, symbol, "1h", p.klineLimit)
	if err != nil {
		return nil, fmt.Errorf("获取%s 1h K线失败: %w", symbol, err)
	}
	if len(h1) == 0 {
		return nil, fmt.Errorf("%s 无已收盘K线", symbol)
	}

	lastCandle := h1[len(h1)-1]
	data := &Data{
		Symbol:       symbol,
		CurrentPrice: lastCandle.Close,
		PriceString:  strconv.FormatFloat(lastCandle.Close, 'f', -1, 64),
		Timestamp:    lastCandle.CloseTime / 1000,
		Closes:       closeSeries(h1, 100),
	}

	// 展示价优先用ticker原始字符串，失败就用K线收盘价
	if raw, price, err := p.lastPrice(ctx, symbol); err == nil && price > 0 {
		data.CurrentPrice = price
		data.PriceString = raw
	}

	indicators, err := ComputeIndicators(h1)
	if err != nil {
		return nil, fmt.Errorf("计算%s指标失败: %w", symbol, err)
	}
	data.Indicators = indicators

	// 多周期：单个周期失败不影响整体（缺失周期由评分侧调整满分）
	if tf, err := ComputeTimeframe("1h", h1); err == nil {
		data.H1 = tf
	}
	if h4, err := p.klines(ctx, symbol, "4h", 120); err == nil {
		if tf, err := ComputeTimeframe("4h", h4); err == nil {
			data.H4 = tf
		}
	} else {
		p.log.Debug().Str("symbol", symbol).Err(err).Msg("4h K线获取失败")
	}
	if d1, err := p.klines(ctx, symbol, "1d", 120); err == nil {
		if tf, err := ComputeTimeframe("1d", d1); err == nil {
			data.Daily = tf
		}
	} else {
		p.log.Debug().Str("symbol", symbol).Err(err).Msg("1d K线获取失败")
	}

	data.External = p.fetchExternal(ctx, symbol, h1, data.CurrentPrice)
	return data, nil
}

// klines 拉取K线并丢弃未收盘的最后一根
// 币安最后一根K线是实时更新的半成品，用它算指标会抖动
func (p *Provider) klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	p.throttle()
	raw, err := p.client.NewKlinesService().
		Symbol(symbol).Interval(interval).Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if k.CloseTime > now {
			continue // 未收盘
		}
		candles = append(candles, Candle{
			OpenTime:       k.OpenTime,
			CloseTime:      k.CloseTime,
			Open:           parseFloat(k.Open),
			High:           parseFloat(k.High),
			Low:            parseFloat(k.Low),
			Close:          parseFloat(k.Close),
			Volume:         parseFloat(k.Volume),
			TakerBuyVolume: parseFloat(k.TakerBuyBaseAssetVolume),
		})
	}
	return candles, nil
}

func (p *Provider) lastPrice(ctx context.Context, symbol string) (string, float64, error) {
	p.throttle()
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(prices) == 0 {
		return "", 0, fmt.Errorf("%s 无价格数据", symbol)
	}
	return prices[0].Price, parseFloat(prices[0].Price), nil
}

// fetchExternal 外部确认数据，每一项独立容错
// 任何一项失败只留空该项，不影响快照主体
func (p *Provider) fetchExternal(ctx context.Context, symbol string, h1 []Candle, price float64) *ExternalData {
	ext := &ExternalData{}

	if funding, err := p.fetchFunding(ctx, symbol); err == nil {
		ext.Funding = funding
	} else {
		p.log.Debug().Str("symbol", symbol).Err(err).Msg("资金费率获取失败")
	}

	if oi, err := p.fetchOpenInterest(ctx, symbol); err == nil {
		ext.OpenInterest = oi
	} else {
		p.log.Debug().Str("symbol", symbol).Err(err).Msg("持仓量获取失败")
	}

	if ob, err := p.fetchOrderBook(ctx, symbol, h1, price); err == nil {
		ext.OrderBook = ob
	} else {
		p.log.Debug().Str("symbol", symbol).Err(err).Msg("盘口深度获取失败")
	}

	ext.VolumeProfile = &VolumeProfileData{POC: volumePOC(h1)}
	ext.CVD = p.computeCVD(symbol, h1)
	ext.ChangeOfCharacter = detectCOC(h1)
	ext.Whale = whaleHeuristic(h1)
	ext.Futures = p.fetchFuturesMetrics(ctx, symbol, ext)
	return ext
}

func (p *Provider) fetchFunding(ctx context.Context, symbol string) (*FundingData, error) {
	p.throttle()
	idx, err := p.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%s 无资金费率数据", symbol)
	}
	rate := parseFloat(idx[0].LastFundingRate)
	return &FundingData{
		Rate:  rate,
		Trend: p.trends.Observe("funding:"+symbol, rate),
	}, nil
}

func (p *Provider) fetchOpenInterest(ctx context.Context, symbol string) (*OIData, error) {
	p.throttle()
	oi, err := p.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	latest := parseFloat(oi.OpenInterest)
	return &OIData{
		Latest: latest,
		Trend:  p.trends.Observe("oi:"+symbol, latest),
	}, nil
}

func (p *Provider) fetchOrderBook(ctx context.Context, symbol string, h1 []Candle, price float64) (*OrderBookData, error) {
	p.throttle()
	depth, err := p.client.NewDepthService().Symbol(symbol).Limit(100).Do(ctx)
	if err != nil {
		return nil, err
	}
	var bidDepth, askDepth float64
	for _, b := range depth.Bids {
		bidDepth += parseFloat(b.Price) * parseFloat(b.Quantity)
	}
	for _, a := range depth.Asks {
		askDepth += parseFloat(a.Price) * parseFloat(a.Quantity)
	}
	ob := &OrderBookData{BidDepth: bidDepth, AskDepth: askDepth}
	if total := bidDepth + askDepth; total > 0 {
		ob.ImbalanceRatio = bidDepth / total
	}
	ob.NearestSupport, ob.NearestResistance = PivotLevels(h1, price)
	return ob, nil
}

func (p *Provider) computeCVD(symbol string, h1 []Candle) *CVDData {
	value := netTakerDelta(h1, 48)
	return &CVDData{
		Value: value,
		Trend: p.trends.Observe("cvd:"+symbol, value),
	}
}

// fetchFuturesMetrics 合约综合指标（各项0-100，50为中性）
func (p *Provider) fetchFuturesMetrics(ctx context.Context, symbol string, ext *ExternalData) *FuturesMetrics {
	m := &FuturesMetrics{
		FundingScore:      50,
		OIScore:           50,
		LiquidationSafety: 50,
		BTCCorrelation:    50,
		WhaleFlow:         50,
	}
	if ext.Funding != nil {
		// 资金费率越偏离0，拥挤度越高，得分越低
		m.FundingScore = clampScore(100 - math.Abs(ext.Funding.Rate)*100000)
	}
	if ext.OpenInterest != nil {
		switch ext.OpenInterest.Trend {
		case "rising":
			m.OIScore = 70
		case "falling":
			m.OIScore = 35
		}
	}
	if ext.Whale != nil {
		switch ext.Whale.Signal {
		case "accumulating":
			m.WhaleFlow = 70
		case "distributing":
			m.WhaleFlow = 30
		}
	}
	m.LongShortExtremity = p.fetchLongShortExtremity(ctx, symbol)
	return m
}

// fetchLongShortExtremity 多空账户比的极端程度（越接近1:1得分越高）
func (p *Provider) fetchLongShortExtremity(ctx context.Context, symbol string) float64 {
	p.throttle()
	ratios, err := p.client.NewLongShortRatioService().
		Symbol(symbol).Period("1h").Limit(1).
		Do(ctx)
	if err != nil || len(ratios) == 0 {
		return 50
	}
	ratio := parseFloat(ratios[0].LongShortRatio)
	if ratio <= 0 {
		return 50
	}
	// |log(ratio)|越大越极端
	return clampScore(100 - math.Abs(math.Log(ratio))*60)
}

// volumePOC 成交量分布的最大成交价位（20桶直方图）
func volumePOC(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	lo, hi := candles[0].Low, candles[0].High
	for _, c := range candles {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	if hi <= lo {
		return lo
	}
	const buckets = 20
	width := (hi - lo) / buckets
	vols := make([]float64, buckets)
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		idx := int((typical - lo) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		vols[idx] += c.Volume
	}
	best := 0
	for i, v := range vols {
		if v > vols[best] {
			best = i
		}
	}
	return lo + width*(float64(best)+0.5)
}

// detectCOC 市场结构转换：收盘突破最近20根的区间即视为结构转变
func detectCOC(candles []Candle) *COCData {
	const lookback = 20
	if len(candles) < lookback+2 {
		return nil
	}
	window := candles[len(candles)-lookback-1 : len(candles)-1]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	lastClose := candles[len(candles)-1].Close
	switch {
	case lastClose > hi:
		return &COCData{Direction: "bullish", Confirmed: true}
	case lastClose < lo:
		return &COCData{Direction: "bearish", Confirmed: true}
	default:
		return nil
	}
}

// whaleHeuristic 大单资金流启发式：主动买卖净差占总量的比例
func whaleHeuristic(candles []Candle) *WhaleData {
	start := maxInt(0, len(candles)-48)
	var delta, total float64
	for _, c := range candles[start:] {
		delta += 2*c.TakerBuyVolume - c.Volume
		total += c.Volume
	}
	w := &WhaleData{NetExchangeFlow: -delta, Signal: "neutral"}
	if total > 0 {
		switch ratio := delta / total; {
		case ratio > 0.1:
			w.Signal = "accumulating"
		case ratio < -0.1:
			w.Signal = "distributing"
		}
	}
	return w
}

// closeSeries 最近n根已收盘K线的收盘价（旧→新）
func closeSeries(candles []Candle, n int) []float64 {
	start := maxInt(0, len(candles)-n)
	out := make([]float64, 0, len(candles)-start)
	for _, c := range candles[start:] {
		out = append(out, c.Close)
	}
	return out
}

func clampScore(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// SortedSymbols 缓存中已有快照的币种（测试与审计接口用）
func (p *Provider) SortedSymbols() []string {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	out := make([]string, 0, len(p.cache))
	for s := range p.cache {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
