package decision

import (
	"github.com/rs/zerolog"

	"quantgate/config"
	"quantgate/logger"
)

// Allocator 两轮均分式资金分配
// 第一轮在扇出前按全部候选均分（投机性仓位，让每个协程能先算EV）；
// 第二轮在扇入后只对真正需要仓位的信号重新均分，产出新的信号集合而不是原地改
type Allocator struct {
	cfg *config.TradingConfig
	log zerolog.Logger
}

func NewAllocator(cfg *config.TradingConfig) *Allocator {
	return &Allocator{cfg: cfg, log: logger.Component("allocator")}
}

// InitialSplit 第一轮：可用保证金按候选数量均分
func (a *Allocator) InitialSplit(availableMargin float64, assetCount int) float64 {
	if assetCount <= 0 || availableMargin <= 0 {
		return 0
	}
	return availableMargin * a.cfg.Sizing.AllocationRatio / float64(assetCount)
}

// Finalize 第二轮：只在"方向性开仓且入场价有效"的信号之间重新均分
// 纯变换：输入信号不动，返回重新定容后的新集合
// 必须在所有协程汇合之后调用，绝不能与扇出交错
func (a *Allocator) Finalize(signals []*Signal, availableMargin float64) []*Signal {
	needSizing := 0
	for _, sig := range signals {
		if sig.Kind.IsEntry() && sig.Entry > 0 {
			needSizing++
		}
	}

	var perAsset float64
	if needSizing > 0 {
		perAsset = availableMargin * a.cfg.Sizing.AllocationRatio / float64(needSizing)
		a.log.Info().
			Int("need_sizing", needSizing).
			Float64("per_asset_margin", perAsset).
			Msg("第二轮资金分配")
	}

	out := make([]*Signal, 0, len(signals))
	for _, sig := range signals {
		cp := sig.Clone()
		if cp.Kind.IsEntry() {
			if cp.Entry > 0 {
				notional := perAsset * float64(cp.Leverage)
				cp.Quantity = notional / cp.Entry
				recomputeEconomics(cp)
			} else {
				// 没有有效入场价的开仓信号定不了容：
				// 第一轮的临时数量和风险额作废，不能带着陈旧风险数字过风控闸门
				cp.Quantity = 0
				cp.RiskUSD = 0
				cp.ExpectedValue = 0
			}
		}
		out = append(out, cp)
	}
	return out
}
