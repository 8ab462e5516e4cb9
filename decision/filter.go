package decision

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"quantgate/config"
	"quantgate/logger"
)

// 相关性压制阈值与批量下限
const (
	correlationSuppressThreshold = 0.8
	correlationMinBatch          = 3 // 幸存者超过3个才做相关性过滤，小批量不值得
)

// Filter 信号集的质量过滤、相关性压制与风控闸门
type Filter struct {
	cfg *config.TradingConfig
	log zerolog.Logger
}

func NewFilter(cfg *config.TradingConfig) *Filter {
	return &Filter{cfg: cfg, log: logger.Component("filter")}
}

// Apply 对候选信号做三段过滤，返回最终信号集与被拒记录
// 输入顺序即稳定顺序：相关性过滤的平局判定是先见者胜（文档化的确定性规则）
func (f *Filter) Apply(candidates []*Signal, matrix CorrelationMatrix,
	account *Account, assetCount int) ([]*Signal, []RejectedCandidate) {

	var rejected []RejectedCandidate

	// ===== 第一段：质量过滤 =====
	confReject := f.cfg.ActiveConfidenceReject(assetCount)
	evReject := f.cfg.ActiveEVReject(assetCount)

	surviving := make([]*Signal, 0, len(candidates))
	for _, sig := range candidates {
		// 管理类信号不做质量过滤：平仓/持有永远值得展示
		if sig.Kind.IsManagement() {
			surviving = append(surviving, sig)
			continue
		}

		// NaN信心度是内部一致性被破坏的信号，大声报错，绝不静默兜底
		if math.IsNaN(sig.Confidence) {
			f.log.Error().
				Str("symbol", sig.Symbol).
				Msg("🚨 信心度为NaN：评分引擎内部一致性错误，信号已拒绝")
			rejected = append(rejected, RejectedCandidate{
				Symbol: sig.Symbol,
				Reason: "信心度为NaN（内部错误）",
			})
			continue
		}
		if sig.Confidence < confReject {
			rejected = append(rejected, RejectedCandidate{
				Symbol:     sig.Symbol,
				Reason:     fmt.Sprintf("信心度%.3f低于拒绝阈值%.3f", sig.Confidence, confReject),
				Confidence: sig.Confidence,
			})
			continue
		}
		if sig.ExpectedValue < evReject {
			rejected = append(rejected, RejectedCandidate{
				Symbol:     sig.Symbol,
				Reason:     fmt.Sprintf("期望值%.2f USDT低于拒绝阈值%.2f", sig.ExpectedValue, evReject),
				Confidence: sig.Confidence,
			})
			continue
		}
		surviving = append(surviving, sig)
	}

	// ===== 第二段：相关性压制 =====
	if assetCount > 1 && len(surviving) > correlationMinBatch && len(matrix) > 0 {
		surviving, rejected = f.suppressCorrelated(surviving, matrix, rejected)
	}

	// ===== 档位分类 =====
	for _, sig := range surviving {
		f.classify(sig)
	}

	// ===== 第三段：风控闸门（仅自主执行模式）=====
	if f.cfg.Autonomous {
		f.riskGate(surviving, account)
	}

	return surviving, rejected
}

// suppressCorrelated 高相关且方向相反的一对信号里只留先见者
// 相关性>0.8时两个矛盾信号不是独立信息，是噪声
func (f *Filter) suppressCorrelated(signals []*Signal, matrix CorrelationMatrix,
	rejected []RejectedCandidate) ([]*Signal, []RejectedCandidate) {

	dropped := make(map[int]bool)
	for i := 0; i < len(signals); i++ {
		if dropped[i] {
			continue
		}
		di := signals[i].Kind.Direction()
		if di == "" {
			continue
		}
		for j := i + 1; j < len(signals); j++ {
			if dropped[j] {
				continue
			}
			dj := signals[j].Kind.Direction()
			if dj == "" || di == dj {
				continue
			}
			corr := matrix.Get(signals[i].Symbol, signals[j].Symbol)
			if corr > correlationSuppressThreshold {
				// 先见者胜：丢后出现的那个
				dropped[j] = true
				f.log.Info().
					Str("kept", signals[i].Symbol).
					Str("dropped", signals[j].Symbol).
					Float64("correlation", corr).
					Msg("相关性压制：矛盾信号对只保留先见者")
				rejected = append(rejected, RejectedCandidate{
					Symbol:     signals[j].Symbol,
					Reason:     fmt.Sprintf("与%s相关性%.2f且方向相反，已压制", signals[i].Symbol, corr),
					Confidence: signals[j].Confidence,
				})
			}
		}
	}

	kept := make([]*Signal, 0, len(signals))
	for i, sig := range signals {
		if !dropped[i] {
			kept = append(kept, sig)
		}
	}
	return kept, rejected
}

// classify 纯决策表：信心度×期望值 → 执行档位与仓位倍数
func (f *Filter) classify(sig *Signal) {
	if !sig.Kind.IsEntry() {
		sig.Tier = TierReview
		sig.Executable = false
		return
	}

	th := f.cfg.Thresholds
	sz := f.cfg.Sizing
	switch {
	case sig.Confidence >= th.ConfidenceHigh && sig.ExpectedValue >= th.EVHigh:
		sig.Tier = TierAutoFull
		sig.Executable = true
		sig.SizeMultiplier = sz.HighMultiplier
	case sig.Confidence >= th.ConfidenceHigh && sig.ExpectedValue > 0:
		sig.Tier = TierAutoWarn
		sig.Executable = true
		sig.SizeMultiplier = sz.HighMultiplier
	case sig.Confidence >= th.ConfidenceMedium && sig.ExpectedValue > 0:
		sig.Tier = TierReview
		sig.Executable = false
		sig.SizeMultiplier = sz.MediumMultiplier
	case f.cfg.LeverageTolerant && sig.Confidence >= th.ConfidenceLow && sig.ExpectedValue > th.EVRejectTolerant:
		// 杠杆补偿模式：低信心档也自动执行，仓位减半再减半
		sig.Tier = TierAutoWarn
		sig.Executable = true
		sig.SizeMultiplier = sz.LowMultiplier / 2
	default:
		sig.Tier = TierReject
		sig.Executable = false
		sig.RejectReason = fmt.Sprintf("信心度%.3f/期望值%.2f未达任何执行档位（中等档需≥%.2f）",
			sig.Confidence, sig.ExpectedValue, th.ConfidenceMedium)
	}
	applySizeMultiplier(sig)
}

// applySizeMultiplier 档位倍数落到数量上，重算风险与EV
func applySizeMultiplier(sig *Signal) {
	if sig.SizeMultiplier > 0 && sig.SizeMultiplier != 1.0 && sig.Quantity > 0 {
		sig.Quantity *= sig.SizeMultiplier
		recomputeEconomics(sig)
	}
}

// riskGate 账户级风控：超限的信号降级为人工审核，保留在结果集里
// 降级不是删除——运维要能看到被拦下来的是什么
func (f *Filter) riskGate(signals []*Signal, account *Account) {
	openCount := account.OpenPositionCount()
	for _, sig := range signals {
		if !sig.Executable {
			continue
		}
		if sig.Kind.IsManagement() {
			continue // 平仓/持有不占新仓位额度
		}
		if sig.RiskUSD > f.cfg.Safety.MaxRiskPerTrade {
			sig.Executable = false
			sig.Tier = TierReview
			sig.RejectReason = fmt.Sprintf("单笔风险%.2f USDT超过上限%.2f，降级为人工审核",
				sig.RiskUSD, f.cfg.Safety.MaxRiskPerTrade)
			f.log.Warn().Str("symbol", sig.Symbol).Str("reason", sig.RejectReason).Msg("⚠️ 风控降级")
			continue
		}
		if sig.Kind.IsEntry() && openCount >= f.cfg.Safety.MaxOpenPositions {
			sig.Executable = false
			sig.Tier = TierReview
			sig.RejectReason = fmt.Sprintf("已达最大持仓数%d，降级为人工审核", f.cfg.Safety.MaxOpenPositions)
			f.log.Warn().Str("symbol", sig.Symbol).Str("reason", sig.RejectReason).Msg("⚠️ 风控降级")
		}
	}
}
