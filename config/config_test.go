package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "不存在.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Thresholds.ConfidenceReject, cfg.Thresholds.ConfidenceReject)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
symbols: ["BTCUSDT"]
scan_interval: "5m"
thresholds:
  confidence_reject: 0.50
safety:
  max_open_positions: 5
  max_leverage: 8
  default_leverage: 2
  max_risk_per_trade: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, 0.50, cfg.Thresholds.ConfidenceReject)
	assert.Equal(t, 5, cfg.Safety.MaxOpenPositions)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QG_CONFIDENCE_REJECT", "0.55")
	t.Setenv("QG_EV_REJECT", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.Thresholds.ConfidenceReject)
	assert.Equal(t, 2.5, cfg.Thresholds.EVReject)
}

func TestEnvOverrideInvalidIgnored(t *testing.T) {
	t.Setenv("QG_CONFIDENCE_REJECT", "1.5") // 超出(0,1)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Thresholds.ConfidenceReject, cfg.Thresholds.ConfidenceReject)
}

func TestValidateRejectsBadLeverage(t *testing.T) {
	cfg := Default()
	cfg.Safety.MaxLeverage = 20
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Safety.DefaultLeverage = 0
	assert.Error(t, cfg.Validate())
}

func TestActiveConfidenceRejectLimitedPairs(t *testing.T) {
	cfg := Default()
	cfg.LimitedPairs = true

	// 少于3个标的时放宽：0.45×0.9
	assert.InDelta(t, 0.45*0.9, cfg.ActiveConfidenceReject(2), 1e-9)
	assert.InDelta(t, 0.45, cfg.ActiveConfidenceReject(3), 1e-9)

	cfg.LimitedPairs = false
	assert.InDelta(t, 0.45, cfg.ActiveConfidenceReject(2), 1e-9)
}

func TestActiveEVRejectLeverageTolerant(t *testing.T) {
	cfg := Default()
	assert.InDelta(t, 1.0, cfg.ActiveEVReject(5), 1e-9)

	cfg.LeverageTolerant = true
	assert.InDelta(t, 0.0, cfg.ActiveEVReject(5), 1e-9)
}
