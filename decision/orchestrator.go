package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"quantgate/config"
	"quantgate/decision/scoring"
	"quantgate/logger"
	"quantgate/market"
	"quantgate/mcp"
)

// 单币种处理的状态机
type orchestratorState string

const (
	stateBuildEvidence     orchestratorState = "BUILD_EVIDENCE"
	stateValidateDirection orchestratorState = "VALIDATE_DIRECTION"
	stateScore             orchestratorState = "SCORE"
	statePostProcess       orchestratorState = "POST_PROCESS"
	stateDone              orchestratorState = "DONE"
	stateFailed            orchestratorState = "FAILED"
)

// EvidenceSource 证据快照来源（生产环境是market.Provider，测试时注入假数据）
type EvidenceSource interface {
	Fetch(ctx context.Context, symbol string) (*market.Data, error)
}

// Orchestrator 单币种流水线: 建证据 → 校验方向 → 评分 → 后处理
// 并发粒度就是它：每个币种独立运行，任何一步失败都止步于自身边界
type Orchestrator struct {
	evidence  EvidenceSource
	oracle    mcp.Generator
	validator *Validator
	scorer    *scoring.Scorer
	cfg       *config.TradingConfig
	log       zerolog.Logger
}

func NewOrchestrator(evidence EvidenceSource, oracle mcp.Generator, cfg *config.TradingConfig) *Orchestrator {
	return &Orchestrator{
		evidence:  evidence,
		oracle:    oracle,
		validator: NewValidator(),
		scorer:    scoring.NewScorer(cfg.Scoring),
		cfg:       cfg,
		log:       logger.Component("orchestrator"),
	}
}

// Process 处理单个币种，产出信号或拒绝记录
// 返回的error只用于周期级结构性失败统计（裁判回复不可解析）；
// 其余失败都转为RejectedCandidate，绝不向上抛
func (o *Orchestrator) Process(ctx context.Context, symbol string, account *Account,
	provisionalMargin float64, rank int, quality float64) (*Signal, *RejectedCandidate, error) {

	state := stateBuildEvidence
	defer func() {
		o.log.Debug().Str("symbol", symbol).Str("state", string(state)).Msg("流水线结束")
	}()

	// ===== BUILD_EVIDENCE =====
	data, err := o.evidence.Fetch(ctx, symbol)
	if err != nil {
		state = stateFailed
		o.log.Warn().Str("symbol", symbol).Err(err).Msg("⚠️ 证据构建失败")
		return nil, &RejectedCandidate{Symbol: symbol, Reason: fmt.Sprintf("证据缺失: %v", err)}, nil
	}
	if data.CurrentPrice <= 0 {
		state = stateFailed
		return nil, &RejectedCandidate{Symbol: symbol, Reason: "当前价格无效"}, nil
	}

	proposal, err := o.oracle.Propose(ctx, data)
	if err != nil {
		state = stateFailed
		o.log.Warn().Str("symbol", symbol).Err(err).Msg("⚠️ 裁判意见获取失败")
		reject := &RejectedCandidate{Symbol: symbol, Reason: fmt.Sprintf("意见获取失败: %v", err)}
		return nil, reject, err
	}

	// ===== VALIDATE_DIRECTION =====
	state = stateValidateDirection
	tally := scoring.Reduce(data.Indicators, data.CurrentPrice)
	hasPosition := account.HasPosition(symbol)
	signal := o.validator.Validate(proposal, tally, hasPosition, data)

	// 持仓管理信号不走评分：交给过滤器原样放行到人工档
	if signal.Kind == KindHold {
		state = stateDone
		signal.Confidence = clamp(float64(proposal.Confidence)/100, config.ConfidenceFloor, config.ConfidenceCeil)
		signal.Tier = TierReview
		return signal, nil, nil
	}

	// ===== SCORE =====
	state = stateScore
	o.attachLevels(signal, data)

	result := o.scorer.Score(scoring.Input{
		Symbol:       symbol,
		Direction:    signal.Kind.Direction(),
		Evidence:     data,
		Tally:        tally,
		Entry:        signal.Entry,
		StopLoss:     signal.StopLoss,
		TakeProfit:   signal.TakeProfit,
		RiskReward:   signal.RiskReward,
		Rank:         rank,
		QualityScore: quality,
	})
	signal.Confidence = result.Confidence
	signal.Breakdown = result.Breakdown

	if result.AutoRejected {
		state = stateFailed
		o.log.Info().Str("symbol", symbol).Str("reason", result.RejectReason).Msg("门卫否决")
		return nil, &RejectedCandidate{
			Symbol:     symbol,
			Reason:     result.RejectReason,
			Confidence: result.Confidence,
		}, nil
	}

	// ===== POST_PROCESS =====
	state = statePostProcess
	o.postProcess(signal, provisionalMargin)

	state = stateDone
	o.log.Info().
		Str("symbol", symbol).
		Str("kind", string(signal.Kind)).
		Float64("confidence", signal.Confidence).
		Float64("ev", signal.ExpectedValue).
		Msg("📊 信号生成")
	return signal, nil, nil
}

// attachLevels 检查意见给的止损/止盈方向合理性，缺失或不合理时按ATR倍数补齐，并计算盈亏比
func (o *Orchestrator) attachLevels(signal *Signal, data *market.Data) {
	atr := 0.0
	if v := data.Indicators.GetVolatility(); v != nil {
		atr = v.ATR14
	}
	if atr <= 0 {
		atr = data.CurrentPrice * 0.01 // 无ATR时按1%波动兜底
	}

	long := signal.Kind.Direction() == "long"
	// 止损在入场价错误一侧（含方向被纠正后的残留价位）一律作废重算
	if signal.StopLoss > 0 && (long == (signal.StopLoss >= signal.Entry)) {
		signal.StopLoss = 0
	}
	if signal.TakeProfit > 0 && (long == (signal.TakeProfit <= signal.Entry)) {
		signal.TakeProfit = 0
	}
	if signal.StopLoss <= 0 {
		if long {
			signal.StopLoss = signal.Entry - 1.5*atr
		} else {
			signal.StopLoss = signal.Entry + 1.5*atr
		}
	}
	if signal.TakeProfit <= 0 {
		if long {
			signal.TakeProfit = signal.Entry + 3*atr
		} else {
			signal.TakeProfit = signal.Entry - 3*atr
		}
	}

	risk := math.Abs(signal.Entry - signal.StopLoss)
	reward := math.Abs(signal.TakeProfit - signal.Entry)
	if risk > 0 {
		signal.RiskReward = reward / risk
	}
}

// postProcess 失效条件、临时仓位（第一轮均分）、EV计算
func (o *Orchestrator) postProcess(signal *Signal, provisionalMargin float64) {
	if signal.Leverage <= 0 {
		signal.Leverage = o.cfg.Safety.DefaultLeverage
	}
	if signal.Leverage > o.cfg.Safety.MaxLeverage {
		signal.Leverage = o.cfg.Safety.MaxLeverage
	}
	signal.SizeMultiplier = 1.0

	// 第一轮投机性均分：真正的仓位由第二轮分配器重算
	if signal.Entry > 0 && provisionalMargin > 0 {
		notional := provisionalMargin * float64(signal.Leverage)
		signal.Quantity = notional / signal.Entry
	}
	recomputeEconomics(signal)

	if signal.Kind.Direction() == "long" {
		signal.Invalidation = fmt.Sprintf("1h收盘价跌破止损位%.6g，或跌破EMA20后连续2根未收复", signal.StopLoss)
	} else {
		signal.Invalidation = fmt.Sprintf("1h收盘价突破止损位%.6g，或站上EMA20后连续2根未跌回", signal.StopLoss)
	}
}

// recomputeEconomics 按当前数量重算风险额与期望值
// EV = 信心度×预期盈利 − (1−信心度)×预期亏损（USDT计）
func recomputeEconomics(signal *Signal) {
	if signal.Quantity <= 0 || signal.Entry <= 0 {
		return
	}
	riskUSD := signal.Quantity * math.Abs(signal.Entry-signal.StopLoss)
	rewardUSD := signal.Quantity * math.Abs(signal.TakeProfit-signal.Entry)
	signal.RiskUSD = riskUSD
	signal.ExpectedValue = signal.Confidence*rewardUSD - (1-signal.Confidence)*riskUSD
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
