package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizePositionBaseFormula(t *testing.T) {
	cfg := testConfig(t)

	// equity 100k, 6% dip, neutral volatility:
	// 100000 * 0.025 * (0.06/0.03) * 1.75 / 1.0 = 8750
	opp := Opportunity{Symbol: "VOO", Price: 94, DipPct: -0.06, Threshold: 0.05, VolFactor: 1}
	res := SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.InDelta(t, 8750, res.Notional, 1.0)
	assert.InDelta(t, res.Notional/94, res.Qty, 0.0001)

	// Double the volatility, half the size.
	opp.VolFactor = 2
	res = SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.InDelta(t, 4375, res.Notional, 1.0)

	// An unmeasurable volatility factor is treated as neutral.
	opp.VolFactor = 0
	res = SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.InDelta(t, 8750, res.Notional, 1.0)

	// Volatile symbols in a sharp intraday slide get a bigger bite.
	opp.VolFactor = 1
	opp.IntradayBoost = 1.5
	res = SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.InDelta(t, 13_125, res.Notional, 1.0)
}

func TestSizePositionCap(t *testing.T) {
	cfg := testConfig(t)

	// A 30% dip on minimum volatility wants far more than 15% of equity.
	opp := Opportunity{Symbol: "VOO", Price: 70, DipPct: -0.30, Threshold: 0.05, VolFactor: 0.5}
	res := SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.LessOrEqual(t, res.Notional, 100_000*cfg.MaxPositionPct)

	// An existing holding shrinks the remaining room under the cap.
	opp.PositionValue = 12_000
	res = SizePosition(cfg, 100_000, opp)
	require.True(t, res.OK)
	assert.LessOrEqual(t, res.Notional, 3_000.0)
}

func TestSizePositionMinNotional(t *testing.T) {
	cfg := testConfig(t)

	opp := Opportunity{Symbol: "VOO", Price: 94, DipPct: -0.06, Threshold: 0.05, VolFactor: 1}
	res := SizePosition(cfg, 1_000, opp)
	require.False(t, res.OK)
	assert.Equal(t, ReasonBelowMinNotional, res.Reason)

	// A position already at the cap leaves no room at all.
	opp.PositionValue = 15_000
	res = SizePosition(cfg, 100_000, opp)
	require.False(t, res.OK)
	assert.Equal(t, ReasonBelowMinNotional, res.Reason)
}

func TestSizePositionDegenerate(t *testing.T) {
	cfg := testConfig(t)
	opp := Opportunity{Symbol: "VOO", Price: 0, DipPct: -0.06, Threshold: 0.05, VolFactor: 1}
	assert.False(t, SizePosition(cfg, 100_000, opp).OK)
	opp.Price = 94
	assert.False(t, SizePosition(cfg, 0, opp).OK)
}
