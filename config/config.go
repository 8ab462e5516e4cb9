package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TradingConfig 交易配置（每周期开始时加载一次，周期内只读）
type TradingConfig struct {
	// 扫描配置
	Symbols      []string `yaml:"symbols"`       // 交易标的列表
	ScanInterval string   `yaml:"scan_interval"` // 扫描间隔（如 "3m"）
	KlineLimit   int      `yaml:"kline_limit"`   // 每个周期获取的K线数量

	// 模式开关
	Autonomous       bool `yaml:"autonomous"`        // 自主执行模式（启用风控闸门）
	LeverageTolerant bool `yaml:"leverage_tolerant"` // 杠杆补偿模式（放宽EV/信心度下限）
	LimitedPairs     bool `yaml:"limited_pairs"`     // 标的少于3个时放宽阈值

	Thresholds Thresholds    `yaml:"thresholds"`
	Sizing     SizingConfig  `yaml:"sizing"`
	Safety     SafetyLimits  `yaml:"safety"`
	Scoring    ScoringParams `yaml:"scoring"`

	// AI接口配置
	OracleURL   string `yaml:"oracle_url"`
	OracleKey   string `yaml:"oracle_key"`
	OracleModel string `yaml:"oracle_model"`

	// 审计API监听地址
	APIListen string `yaml:"api_listen"`
}

// Thresholds 信心度与期望值分档
type Thresholds struct {
	ConfidenceHigh   float64 `yaml:"confidence_high"`   // 高信心档
	ConfidenceMedium float64 `yaml:"confidence_medium"` // 中等信心档
	ConfidenceLow    float64 `yaml:"confidence_low"`    // 合约模式下限（杠杆补偿模式才放行）
	ConfidenceReject float64 `yaml:"confidence_reject"` // 低于此值直接拒绝

	EVHigh   float64 `yaml:"ev_high"`   // 高期望值档（USDT）
	EVReject float64 `yaml:"ev_reject"` // 低于此值拒绝（USDT）

	// 标的不足3个时的放宽系数（乘到两个拒绝阈值上）
	LimitedPairsRelax float64 `yaml:"limited_pairs_relax"`
	// 杠杆补偿模式下的EV拒绝阈值（更宽松）
	EVRejectTolerant float64 `yaml:"ev_reject_tolerant"`
}

// SizingConfig 各执行档位的仓位倍数
type SizingConfig struct {
	HighMultiplier   float64 `yaml:"high_multiplier"`
	MediumMultiplier float64 `yaml:"medium_multiplier"`
	LowMultiplier    float64 `yaml:"low_multiplier"`
	// 总可用保证金中参与分配的比例
	AllocationRatio float64 `yaml:"allocation_ratio"`
}

// SafetyLimits 账户级安全限制
type SafetyLimits struct {
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"` // 单笔最大风险（USDT）
	MaxOpenPositions int     `yaml:"max_open_positions"` // 最大同时持仓数
	MaxLeverage      int     `yaml:"max_leverage"`       // 杠杆上限（1-10）
	DefaultLeverage  int     `yaml:"default_leverage"`
}

// ScoringParams 评分引擎的经验调优参数
// ⚠️ 这些数值来自实盘调参，没有理论推导；当作可调默认值，不是不变量
type ScoringParams struct {
	// 各子项满分
	TrendMax      float64 `yaml:"trend_max"`
	RiskRewardMax float64 `yaml:"risk_reward_max"`
	TechnicalMax  float64 `yaml:"technical_max"`
	ContextMax    float64 `yaml:"context_max"`
	ExternalMax   float64 `yaml:"external_max"`
	FuturesMax    float64 `yaml:"futures_max"` // 合约综合分的额外加成上限
	SRMax         float64 `yaml:"sr_max"`
	MomentumMax   float64 `yaml:"momentum_max"`

	// 排名加成（rank 1 / 2-3 / 4-5）
	RankTrendBonus1 float64 `yaml:"rank_trend_bonus_1"`
	RankTrendBonus3 float64 `yaml:"rank_trend_bonus_3"`
	RankTrendBonus5 float64 `yaml:"rank_trend_bonus_5"`
	// 排名1-5时外部数据缺失的软化上限（30→15）
	ExternalMaxSoftened float64 `yaml:"external_max_softened"`
	// 最终信心度乘数加成（rank 1 / 2-3 / 4-5 / 6-10）
	RankBoost1  float64 `yaml:"rank_boost_1"`
	RankBoost3  float64 `yaml:"rank_boost_3"`
	RankBoost5  float64 `yaml:"rank_boost_5"`
	RankBoost10 float64 `yaml:"rank_boost_10"`
	// 上游质量分提示（0-1）的最大乘数加成
	QualityBoostMax float64 `yaml:"quality_boost_max"`

	// 惩罚系数（百分比，0.08=8%）
	RSIPenaltyMild    float64 `yaml:"rsi_penalty_mild"`    // RSI 70-75（做多）
	RSIPenaltyStrong  float64 `yaml:"rsi_penalty_strong"`  // RSI 75-80
	RSIPenaltyExtreme float64 `yaml:"rsi_penalty_extreme"` // RSI >80（可能触发硬拒绝）
	MACDPenaltyMild   float64 `yaml:"macd_penalty_mild"`
	MACDPenaltyMid    float64 `yaml:"macd_penalty_mid"`
	MACDPenaltyStrong float64 `yaml:"macd_penalty_strong"`
	VolumePenaltyCap  float64 `yaml:"volume_penalty_cap"` // 量能合并惩罚上限
	TotalPenaltyCap   float64 `yaml:"total_penalty_cap"`  // 惩罚总和上限（50%）

	// RSI>80硬拒绝规则：惩罚后预期信心低于此值则直接拒绝
	HardRejectFloor float64 `yaml:"hard_reject_floor"`
}

// 信心度边界：除门卫否决外，分数永远落在 [0.1, 1.0]
const (
	ConfidenceFloor = 0.1
	ConfidenceCeil  = 1.0
)

// Default 返回带默认值的配置
func Default() *TradingConfig {
	return &TradingConfig{
		Symbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		ScanInterval: "3m",
		KlineLimit:   300,
		Thresholds: Thresholds{
			ConfidenceHigh:    0.75,
			ConfidenceMedium:  0.60,
			ConfidenceLow:     0.50,
			ConfidenceReject:  0.45,
			EVHigh:            10.0,
			EVReject:          1.0,
			LimitedPairsRelax: 0.9,
			EVRejectTolerant:  0.0,
		},
		Sizing: SizingConfig{
			HighMultiplier:   1.0,
			MediumMultiplier: 0.5,
			LowMultiplier:    0.25,
			AllocationRatio:  0.95,
		},
		Safety: SafetyLimits{
			MaxRiskPerTrade:  100.0,
			MaxOpenPositions: 3,
			MaxLeverage:      10,
			DefaultLeverage:  3,
		},
		Scoring:   DefaultScoring(),
		APIListen: ":8880",
	}
}

// DefaultScoring 评分参数默认值
func DefaultScoring() ScoringParams {
	return ScoringParams{
		TrendMax:      25,
		RiskRewardMax: 20,
		TechnicalMax:  30,
		ContextMax:    10,
		ExternalMax:   30,
		FuturesMax:    50,
		SRMax:         5,
		MomentumMax:   15,

		RankTrendBonus1:     10,
		RankTrendBonus3:     7,
		RankTrendBonus5:     5,
		ExternalMaxSoftened: 15,
		RankBoost1:          0.10,
		RankBoost3:          0.07,
		RankBoost5:          0.05,
		RankBoost10:         0.03,
		QualityBoostMax:     0.05,

		RSIPenaltyMild:    0.08,
		RSIPenaltyStrong:  0.12,
		RSIPenaltyExtreme: 0.15,
		MACDPenaltyMild:   0.05,
		MACDPenaltyMid:    0.08,
		MACDPenaltyStrong: 0.12,
		VolumePenaltyCap:  0.15,
		TotalPenaltyCap:   0.50,

		HardRejectFloor: 0.30,
	}
}

// Load 从YAML文件加载配置（文件不存在时使用默认值），再套用环境变量覆盖
func Load(path string) (*TradingConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 两个拒绝阈值支持环境变量覆盖（方便灰度调参，不用改文件）
func applyEnvOverrides(cfg *TradingConfig) {
	if v := os.Getenv("QG_CONFIDENCE_REJECT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.Thresholds.ConfidenceReject = f
		}
	}
	if v := os.Getenv("QG_EV_REJECT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.EVReject = f
		}
	}
	if v := os.Getenv("QG_ORACLE_URL"); v != "" {
		cfg.OracleURL = v
	}
	if v := os.Getenv("QG_ORACLE_KEY"); v != "" {
		cfg.OracleKey = v
	}
	if v := os.Getenv("QG_ORACLE_MODEL"); v != "" {
		cfg.OracleModel = v
	}
}

// Validate 基本合法性检查
func (c *TradingConfig) Validate() error {
	if c.Safety.MaxLeverage < 1 || c.Safety.MaxLeverage > 10 {
		return fmt.Errorf("杠杆上限必须在1-10之间: %d", c.Safety.MaxLeverage)
	}
	if c.Safety.DefaultLeverage < 1 || c.Safety.DefaultLeverage > c.Safety.MaxLeverage {
		return fmt.Errorf("默认杠杆%d超出[1-%d]范围", c.Safety.DefaultLeverage, c.Safety.MaxLeverage)
	}
	if c.Thresholds.ConfidenceReject <= 0 || c.Thresholds.ConfidenceReject >= 1 {
		return fmt.Errorf("信心度拒绝阈值必须在(0,1)之间: %.2f", c.Thresholds.ConfidenceReject)
	}
	if c.Scoring.TotalPenaltyCap <= 0 || c.Scoring.TotalPenaltyCap > 1 {
		return fmt.Errorf("惩罚总上限必须在(0,1]之间: %.2f", c.Scoring.TotalPenaltyCap)
	}
	if c.Safety.MaxOpenPositions <= 0 {
		return fmt.Errorf("最大持仓数必须大于0: %d", c.Safety.MaxOpenPositions)
	}
	return nil
}

// ActiveConfidenceReject 当前生效的信心度拒绝阈值（考虑少标的放宽）
func (c *TradingConfig) ActiveConfidenceReject(assetCount int) float64 {
	th := c.Thresholds.ConfidenceReject
	if c.LimitedPairs && assetCount < 3 {
		th *= c.Thresholds.LimitedPairsRelax
	}
	return th
}

// ActiveEVReject 当前生效的EV拒绝阈值（杠杆补偿模式更宽松）
func (c *TradingConfig) ActiveEVReject(assetCount int) float64 {
	th := c.Thresholds.EVReject
	if c.LeverageTolerant {
		th = c.Thresholds.EVRejectTolerant
	}
	if c.LimitedPairs && assetCount < 3 {
		th *= c.Thresholds.LimitedPairsRelax
	}
	return th
}
