package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values. These mirror the tuning the strategy was
// calibrated with; every one of them can be overridden in yaml.
const (
	DefaultLookbackDays          = 20
	DefaultMinAbsoluteDip        = 0.05
	DefaultThreshold             = 0.05
	DefaultBasePositionPct       = 0.025
	DefaultMaxPositionPct        = 0.15
	DefaultDipMultiplier         = 1.75
	DefaultReferenceDip          = 0.03
	DefaultMinOrderNotional      = 100.0
	DefaultDeepDipThreshold      = 0.07
	DefaultSafetyThreshold       = 0.15
	DefaultHardLimit             = 0.20
	DefaultIntradayDropThreshold = 0.06
	DefaultIntradayMultiplier    = 1.5
	DefaultLimitOffsetPct        = 0.005
	DefaultExtendedOffsetPct     = 0.001
	DefaultScanConcurrency       = 4
	DefaultBrakeRescanEvery      = 10
	DefaultBrakeRescanMax        = 30
	DefaultCooldown              = 3 * time.Hour
	DefaultMinCooldown           = time.Hour
	DefaultOrderTimeout          = 15 * time.Minute
	DefaultScanInterval          = 60 * time.Second
)

// Thresholds maps symbols to their dip thresholds. Symbols without an
// explicit entry fall back to Default.
type Thresholds struct {
	Default  float64            `yaml:"default"`
	BySymbol map[string]float64 `yaml:"by_symbol"`
}

// For returns the configured dip threshold for symbol.
func (t Thresholds) For(symbol string) float64 {
	if v, ok := t.BySymbol[symbol]; ok {
		return v
	}
	return t.Default
}

// FilterConfig toggles the optional risk filters. The mandatory checks
// (absolute floor, threshold, position cap, cooldown) cannot be disabled.
type FilterConfig struct {
	CrashGuard         bool    `yaml:"crash_guard"`
	CrashDipLimit      float64 `yaml:"crash_dip_limit"`
	VolumeConfirm      bool    `yaml:"volume_confirm"`
	VolumeConfirmRatio float64 `yaml:"volume_confirm_ratio"`
	Momentum           bool    `yaml:"momentum"`
	MomentumRSILimit   float64 `yaml:"momentum_rsi_limit"`
	MomentumRSIPeriod  int     `yaml:"momentum_rsi_period"`
}

// Config holds the full strategy configuration.
type Config struct {
	Symbols []string `yaml:"symbols"`

	Thresholds     Thresholds `yaml:"thresholds"`
	LookbackDays   int        `yaml:"lookback_days"`
	MinAbsoluteDip float64    `yaml:"min_absolute_dip"`

	BasePositionPct  float64 `yaml:"base_position_pct"`
	MaxPositionPct   float64 `yaml:"max_position_pct"`
	DipMultiplier    float64 `yaml:"dip_multiplier"`
	ReferenceDip     float64 `yaml:"reference_dip"`
	MinOrderNotional float64 `yaml:"min_order_notional"`
	DeepDipThreshold float64 `yaml:"deep_dip_threshold"`

	SafetyThreshold float64 `yaml:"safety_threshold"`
	HardLimit       float64 `yaml:"hard_limit"`

	CollateralSymbols []string `yaml:"collateral_symbols"`

	VolatileSymbols       []string `yaml:"volatile_symbols"`
	IntradayDropThreshold float64  `yaml:"intraday_drop_threshold"`
	IntradayMultiplier    float64  `yaml:"intraday_multiplier"`

	LimitOffsetPct     float64 `yaml:"limit_offset_pct"`
	ExtendedOffsetPct  float64 `yaml:"extended_offset_pct"`
	TradeExtendedHours bool    `yaml:"trade_extended_hours"`

	ScanConcurrency  int `yaml:"scan_concurrency"`
	BrakeRescanEvery int `yaml:"brake_rescan_every"`
	BrakeRescanMax   int `yaml:"brake_rescan_max"`

	Filters FilterConfig `yaml:"filters"`

	CooldownRaw     string `yaml:"cooldown"`
	OrderTimeoutRaw string `yaml:"order_timeout"`
	ScanIntervalRaw string `yaml:"scan_interval"`

	Cooldown     time.Duration `yaml:"-"`
	OrderTimeout time.Duration `yaml:"-"`
	ScanInterval time.Duration `yaml:"-"`

	collateral map[string]struct{}
	volatile   map[string]struct{}
}

// LoadConfig reads a strategy configuration from a yaml file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine config: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// LoadConfigFromReader decodes, defaults and validates a strategy
// configuration.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode engine config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LookbackDays == 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.MinAbsoluteDip == 0 {
		c.MinAbsoluteDip = DefaultMinAbsoluteDip
	}
	if c.Thresholds.Default == 0 {
		c.Thresholds.Default = DefaultThreshold
	}
	if c.BasePositionPct == 0 {
		c.BasePositionPct = DefaultBasePositionPct
	}
	if c.MaxPositionPct == 0 {
		c.MaxPositionPct = DefaultMaxPositionPct
	}
	if c.DipMultiplier == 0 {
		c.DipMultiplier = DefaultDipMultiplier
	}
	if c.ReferenceDip == 0 {
		c.ReferenceDip = DefaultReferenceDip
	}
	if c.MinOrderNotional == 0 {
		c.MinOrderNotional = DefaultMinOrderNotional
	}
	if c.DeepDipThreshold == 0 {
		c.DeepDipThreshold = DefaultDeepDipThreshold
	}
	if c.SafetyThreshold == 0 {
		c.SafetyThreshold = DefaultSafetyThreshold
	}
	if c.HardLimit == 0 {
		c.HardLimit = DefaultHardLimit
	}
	if c.IntradayDropThreshold == 0 {
		c.IntradayDropThreshold = DefaultIntradayDropThreshold
	}
	if c.IntradayMultiplier == 0 {
		c.IntradayMultiplier = DefaultIntradayMultiplier
	}
	if c.LimitOffsetPct == 0 {
		c.LimitOffsetPct = DefaultLimitOffsetPct
	}
	if c.ExtendedOffsetPct == 0 {
		c.ExtendedOffsetPct = DefaultExtendedOffsetPct
	}
	if c.ScanConcurrency == 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}
	if c.BrakeRescanEvery == 0 {
		c.BrakeRescanEvery = DefaultBrakeRescanEvery
	}
	if c.BrakeRescanMax == 0 {
		c.BrakeRescanMax = DefaultBrakeRescanMax
	}
	if c.CollateralSymbols == nil {
		c.CollateralSymbols = []string{"BLV", "SGOV", "BIL"}
	}
	if c.Filters.CrashDipLimit == 0 {
		c.Filters.CrashDipLimit = 0.15
	}
	if c.Filters.VolumeConfirmRatio == 0 {
		c.Filters.VolumeConfirmRatio = 1.2
	}
	if c.Filters.MomentumRSILimit == 0 {
		c.Filters.MomentumRSILimit = 25
	}
	if c.Filters.MomentumRSIPeriod == 0 {
		c.Filters.MomentumRSIPeriod = 14
	}
	c.collateral = toSet(c.CollateralSymbols)
	c.volatile = toSet(c.VolatileSymbols)
}

func (c *Config) parseDurations() error {
	var err error
	if c.Cooldown, err = parseDuration(c.CooldownRaw, DefaultCooldown); err != nil {
		return fmt.Errorf("cooldown: %w", err)
	}
	if c.OrderTimeout, err = parseDuration(c.OrderTimeoutRaw, DefaultOrderTimeout); err != nil {
		return fmt.Errorf("order_timeout: %w", err)
	}
	if c.ScanInterval, err = parseDuration(c.ScanIntervalRaw, DefaultScanInterval); err != nil {
		return fmt.Errorf("scan_interval: %w", err)
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("engine config: symbols must not be empty")
	}
	if c.LookbackDays < 2 {
		return fmt.Errorf("engine config: lookback_days must be at least 2, got %d", c.LookbackDays)
	}
	if c.MinAbsoluteDip <= 0 || c.MinAbsoluteDip >= 1 {
		return fmt.Errorf("engine config: min_absolute_dip must be in (0, 1), got %v", c.MinAbsoluteDip)
	}
	if c.Thresholds.Default <= 0 || c.Thresholds.Default >= 1 {
		return fmt.Errorf("engine config: thresholds.default must be in (0, 1), got %v", c.Thresholds.Default)
	}
	for sym, v := range c.Thresholds.BySymbol {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("engine config: threshold for %s must be in (0, 1), got %v", sym, v)
		}
	}
	if c.BasePositionPct <= 0 || c.BasePositionPct > c.MaxPositionPct {
		return fmt.Errorf("engine config: base_position_pct must be in (0, max_position_pct], got %v", c.BasePositionPct)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("engine config: max_position_pct must be in (0, 1], got %v", c.MaxPositionPct)
	}
	if c.ReferenceDip <= 0 {
		return fmt.Errorf("engine config: reference_dip must be positive, got %v", c.ReferenceDip)
	}
	if c.SafetyThreshold <= 0 || c.HardLimit <= c.SafetyThreshold {
		return fmt.Errorf("engine config: hard_limit (%v) must exceed safety_threshold (%v), both positive",
			c.HardLimit, c.SafetyThreshold)
	}
	if c.ScanConcurrency < 1 {
		return fmt.Errorf("engine config: scan_concurrency must be at least 1, got %d", c.ScanConcurrency)
	}
	if c.BrakeRescanEvery < 1 || c.BrakeRescanMax < c.BrakeRescanEvery {
		return fmt.Errorf("engine config: brake rescan window invalid (every=%d, max=%d)",
			c.BrakeRescanEvery, c.BrakeRescanMax)
	}
	return nil
}

// EffectiveThreshold returns the dip threshold applied to symbol: never
// less strict than the absolute floor.
func (c *Config) EffectiveThreshold(symbol string) float64 {
	t := c.Thresholds.For(symbol)
	if t < c.MinAbsoluteDip {
		return c.MinAbsoluteDip
	}
	return t
}

// IsCollateral reports whether symbol is held as collateral and never
// bought by the strategy.
func (c *Config) IsCollateral(symbol string) bool {
	_, ok := c.collateral[symbol]
	return ok
}

// IsVolatile reports whether symbol is on the volatile list, making it
// eligible for the intraday-drop score boost.
func (c *Config) IsVolatile(symbol string) bool {
	_, ok := c.volatile[symbol]
	return ok
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}
