package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
symbols:
  - VOO
  - QQQ
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"VOO", "QQQ"}, cfg.Symbols)
	assert.Equal(t, 20, cfg.LookbackDays)
	assert.Equal(t, 0.05, cfg.MinAbsoluteDip)
	assert.Equal(t, 0.05, cfg.Thresholds.Default)
	assert.Equal(t, 0.025, cfg.BasePositionPct)
	assert.Equal(t, 0.15, cfg.MaxPositionPct)
	assert.Equal(t, 0.15, cfg.SafetyThreshold)
	assert.Equal(t, 0.20, cfg.HardLimit)
	assert.Equal(t, 3*time.Hour, cfg.Cooldown)
	assert.Equal(t, 15*time.Minute, cfg.OrderTimeout)
	assert.Equal(t, 60*time.Second, cfg.ScanInterval)
	assert.True(t, cfg.IsCollateral("SGOV"))
	assert.False(t, cfg.IsCollateral("VOO"))
}

func TestLoadConfigOverridesAndDurations(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(`
symbols: [TQQQ]
thresholds:
  default: 0.06
  by_symbol:
    TQQQ: 0.09
volatile_symbols: [TQQQ]
cooldown: 1h30m
order_timeout: 5m
scan_interval: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, cfg.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.OrderTimeout)
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, 0.09, cfg.EffectiveThreshold("TQQQ"))
	assert.Equal(t, 0.06, cfg.EffectiveThreshold("QQQ"))
	assert.True(t, cfg.IsVolatile("TQQQ"))
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no symbols", `symbols: []`},
		{"unknown field", "symbols: [VOO]\nbogus_knob: 1\n"},
		{"bad duration", "symbols: [VOO]\ncooldown: fortnight\n"},
		{"negative duration", "symbols: [VOO]\nscan_interval: -10s\n"},
		{"threshold out of range", "symbols: [VOO]\nthresholds:\n  default: 1.5\n"},
		{"hard limit under safety", "symbols: [VOO]\nsafety_threshold: 0.3\nhard_limit: 0.2\n"},
		{"base over max", "symbols: [VOO]\nbase_position_pct: 0.5\nmax_position_pct: 0.2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}
