// Package decision 信号生成、过滤与风控的核心流水线
package decision

import (
	"time"
)

// SignalKind 信号类型
type SignalKind string

const (
	KindEnterLong  SignalKind = "enter_long"
	KindEnterShort SignalKind = "enter_short"
	KindAdd        SignalKind = "add"
	KindReduce     SignalKind = "reduce"
	KindClose      SignalKind = "close"
	KindCloseAll   SignalKind = "close_all"
	KindHold       SignalKind = "hold"
)

// IsEntry 是否开仓类信号（参与质量过滤和仓位分配）
func (k SignalKind) IsEntry() bool {
	return k == KindEnterLong || k == KindEnterShort
}

// IsManagement 是否持仓管理类信号（减仓/平仓/持有，不受开仓限制约束）
func (k SignalKind) IsManagement() bool {
	switch k {
	case KindReduce, KindClose, KindCloseAll, KindHold:
		return true
	}
	return false
}

// Direction 开仓方向（"long"/"short"），其余信号返回空串
// 加仓信号的方向跟随既有持仓，从信号类型推不出来
func (k SignalKind) Direction() string {
	switch k {
	case KindEnterLong:
		return "long"
	case KindEnterShort:
		return "short"
	}
	return ""
}

// ExecutionTier 执行档位
type ExecutionTier string

const (
	TierAutoFull ExecutionTier = "auto_full" // 高信心+高EV：全仓位自动执行
	TierAutoWarn ExecutionTier = "auto_warn" // 高信心+正EV：自动执行但带警告
	TierReview   ExecutionTier = "review"    // 中等信心：仅展示，建议人工确认
	TierReject   ExecutionTier = "reject"
)

// Signal 单个币种的一条方向/管理决策
// 由校验器创建，评分器写入信心度，分配器写入仓位，过滤器定档
type Signal struct {
	Symbol      string     `json:"symbol"`
	Kind        SignalKind `json:"kind"`
	Entry       float64    `json:"entry"`
	EntryString string     `json:"entry_string"` // 交易所原始价格串，展示用
	Quantity    float64    `json:"quantity"`
	Leverage    int        `json:"leverage"`
	TakeProfit  float64    `json:"take_profit"`
	StopLoss    float64    `json:"stop_loss"`

	// 失效条件（可读的逻辑谓词文本）
	Invalidation string `json:"invalidation"`
	Rationale    string `json:"rationale"`

	Confidence    float64 `json:"confidence"`     // [0.1, 1.0]
	ExpectedValue float64 `json:"expected_value"` // USDT
	RiskUSD       float64 `json:"risk_usd"`
	RiskReward    float64 `json:"risk_reward"`

	Tier           ExecutionTier `json:"tier,omitempty"`
	Executable     bool          `json:"executable"`
	SizeMultiplier float64       `json:"size_multiplier"`
	RejectReason   string        `json:"reject_reason,omitempty"`

	// 评分明细（审计用）
	Breakdown []string `json:"breakdown,omitempty"`
}

// Clone 浅拷贝（Breakdown共享底层数组，周期内只读所以安全）
func (s *Signal) Clone() *Signal {
	cp := *s
	return &cp
}

// Position 持仓快照
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "long" / "short"
	EntryPrice    float64 `json:"entry_price"`
	Quantity      float64 `json:"quantity"`
	Leverage      int     `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Account 账户快照（周期开始时取一次，周期内只读）
type Account struct {
	TotalEquity      float64    `json:"total_equity"`
	AvailableBalance float64    `json:"available_balance"`
	Positions        []Position `json:"positions"`
}

// HasPosition 指定币种是否有持仓
func (a *Account) HasPosition(symbol string) bool {
	if a == nil {
		return false
	}
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// OpenPositionCount 当前持仓数量
func (a *Account) OpenPositionCount() int {
	if a == nil {
		return 0
	}
	return len(a.Positions)
}

// RejectedCandidate 被拒绝的候选（保留原因供运维审计）
type RejectedCandidate struct {
	Symbol     string  `json:"symbol"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CycleResult 一个扫描周期的最终输出
type CycleResult struct {
	Signals   []*Signal           `json:"signals"`
	Rejected  []RejectedCandidate `json:"rejected"`
	Timestamp time.Time           `json:"timestamp"`
}
