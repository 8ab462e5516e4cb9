package decision

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/market"
	"quantgate/mcp"
)

func TestEngineFullCycle(t *testing.T) {
	cfg := testConfig("AUSDT", "BUSDT")
	evidence := &fakeEvidence{data: map[string]*market.Data{
		"AUSDT": testUptrendData("AUSDT"),
		"BUSDT": testUptrendData("BUSDT"),
	}}
	engine := NewEngine(cfg, evidence, &fakeOracle{})
	account := &Account{TotalEquity: 10000, AvailableBalance: 10000}

	result, err := engine.RunCycle(context.Background(), account, nil, nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Signals, 2)
	for _, sig := range result.Signals {
		assert.Equal(t, KindEnterLong, sig.Kind)
		assert.GreaterOrEqual(t, sig.Confidence, 0.1)
		assert.LessOrEqual(t, sig.Confidence, 1.0)
		assert.Greater(t, sig.Quantity, 0.0)
	}
}

func TestEngineSingleAssetFailureContained(t *testing.T) {
	// 一个币种取证失败，不影响兄弟币种
	cfg := testConfig("AUSDT", "BUSDT")
	evidence := &fakeEvidence{
		data: map[string]*market.Data{"AUSDT": testUptrendData("AUSDT")},
		errs: map[string]error{"BUSDT": fmt.Errorf("行情接口超时")},
	}
	engine := NewEngine(cfg, evidence, &fakeOracle{})

	result, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, "AUSDT", result.Signals[0].Symbol)
	require.NotEmpty(t, result.Rejected)
	assert.Equal(t, "BUSDT", result.Rejected[0].Symbol)
}

func TestEngineAllFailedReturnsEmptyNotError(t *testing.T) {
	// 全军覆没但不是结构性失败：空结果+拒绝记录，不报错
	cfg := testConfig("AUSDT", "BUSDT")
	evidence := &fakeEvidence{errs: map[string]error{
		"AUSDT": fmt.Errorf("行情接口超时"),
		"BUSDT": fmt.Errorf("行情接口超时"),
	}}
	engine := NewEngine(cfg, evidence, &fakeOracle{})

	result, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, result.Signals)
	assert.Len(t, result.Rejected, 2)
}

func TestEngineAllUnparseableIsCycleFailure(t *testing.T) {
	// 所有币种的裁判回复都解析不了 → 周期级结构性失败
	cfg := testConfig("AUSDT", "BUSDT")
	evidence := &fakeEvidence{data: map[string]*market.Data{
		"AUSDT": testUptrendData("AUSDT"),
		"BUSDT": testUptrendData("BUSDT"),
	}}
	oracle := &fakeOracle{errs: map[string]error{
		"AUSDT": fmt.Errorf("%w: 返回了散文", mcp.ErrUnparseable),
		"BUSDT": fmt.Errorf("%w: 返回了散文", mcp.ErrUnparseable),
	}}
	engine := NewEngine(cfg, evidence, oracle)

	_, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "无法解析")
}

func TestEnginePartialUnparseableNotCycleFailure(t *testing.T) {
	cfg := testConfig("AUSDT", "BUSDT")
	evidence := &fakeEvidence{data: map[string]*market.Data{
		"AUSDT": testUptrendData("AUSDT"),
		"BUSDT": testUptrendData("BUSDT"),
	}}
	oracle := &fakeOracle{errs: map[string]error{
		"BUSDT": fmt.Errorf("%w: 返回了散文", mcp.ErrUnparseable),
	}}
	engine := NewEngine(cfg, evidence, oracle)

	result, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.NoError(t, err)
	assert.Len(t, result.Signals, 1)
}

func TestEngineForcedDirectionCorrection(t *testing.T) {
	// 裁判看空但证据7:0偏多 → 方向被纠正为做多
	cfg := testConfig("AUSDT")
	evidence := &fakeEvidence{data: map[string]*market.Data{"AUSDT": testUptrendData("AUSDT")}}
	oracle := &fakeOracle{proposals: map[string]*mcp.Proposal{
		"AUSDT": {Symbol: "AUSDT", Direction: "short", Confidence: 90, Reasoning: "顶部信号"},
	}}
	engine := NewEngine(cfg, evidence, oracle)

	result, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, KindEnterLong, result.Signals[0].Kind)
}

func TestEngineGatekeeperRejectionRecorded(t *testing.T) {
	// 下行趋势里做多被门卫否决，出现在拒绝记录里
	// 计票必须是MIXED：票差≥3会先被校验器翻转方向，根本到不了门卫
	cfg := testConfig("AUSDT")
	data := testDowntrendData("AUSDT")
	data.Indicators = &market.IndicatorSet{
		Momentum:   &market.MomentumIndicators{MACDHist: 0.3, Momentum10: -1},
		Volatility: &market.VolatilityIndicators{ATR14: 1.5},
	}
	evidence := &fakeEvidence{data: map[string]*market.Data{"AUSDT": data}}
	oracle := &fakeOracle{proposals: map[string]*mcp.Proposal{
		"AUSDT": {Symbol: "AUSDT", Direction: "long", Confidence: 90},
	}}
	engine := NewEngine(cfg, evidence, oracle)

	result, err := engine.RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, result.Signals)
	require.NotEmpty(t, result.Rejected)
	assert.Equal(t, 0.1, result.Rejected[0].Confidence)
}

func TestEngineRanksApplied(t *testing.T) {
	cfg := testConfig("AUSDT")
	evidence := &fakeEvidence{data: map[string]*market.Data{"AUSDT": testUptrendData("AUSDT")}}

	base, err := NewEngine(cfg, evidence, &fakeOracle{}).
		RunCycle(context.Background(), &Account{AvailableBalance: 10000}, nil, nil)
	require.NoError(t, err)

	ranked, err := NewEngine(cfg, evidence, &fakeOracle{}).
		RunCycle(context.Background(), &Account{AvailableBalance: 10000}, map[string]int{"AUSDT": 1}, nil)
	require.NoError(t, err)

	require.Len(t, base.Signals, 1)
	require.Len(t, ranked.Signals, 1)
	assert.Greater(t, ranked.Signals[0].Confidence, base.Signals[0].Confidence)
}
