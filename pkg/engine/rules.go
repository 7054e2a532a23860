package engine

import (
	"fmt"
	"math"
	"time"

	"bigdipper/pkg/broker"
)

// Reason identifies why a candidate was rejected or an order skipped.
type Reason string

const (
	ReasonBelowAbsoluteFloor Reason = "below_absolute_floor"
	ReasonBelowThreshold     Reason = "below_threshold"
	ReasonPositionCapped     Reason = "position_capped"
	ReasonCooldownActive     Reason = "cooldown_active"
	ReasonCrashGuard         Reason = "crash_guard"
	ReasonVolumeUnconfirmed  Reason = "volume_unconfirmed"
	ReasonWeakMomentum       Reason = "weak_momentum"
	ReasonBelowMinNotional   Reason = "below_min_notional"
	ReasonBrakeActive        Reason = "brake_active"
	ReasonHardLimit          Reason = "hard_limit"
	ReasonInsufficientFunds  Reason = "insufficient_buying_power"
	ReasonWashTradeBlocked   Reason = "wash_trade_blocked"
	ReasonOrderPending       Reason = "order_pending"
	ReasonSubmitFailed       Reason = "submit_failed"
)

// IsCapitalExhaustion reports whether a reason means the account ran out
// of deployable capital rather than the candidate failing on merit.
func IsCapitalExhaustion(r Reason) bool {
	return r == ReasonHardLimit || r == ReasonInsufficientFunds
}

// Verdict is the outcome of the risk filter chain for one candidate.
type Verdict struct {
	OK     bool
	Reason Reason
	Detail string
}

func pass() Verdict { return Verdict{OK: true} }

func reject(reason Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Candidate bundles everything the rules need to judge one symbol.
type Candidate struct {
	Symbol        string
	Price         float64
	DipPct        float64 // negative fraction
	Bars          []broker.Bar
	PositionValue float64   // current market value held in this symbol
	LastBuy       time.Time // zero when the symbol has never been bought
}

// RuleSet runs the ordered risk filter chain. Checks run cheapest first
// and the first failure wins; optional filters run after the mandatory
// ones.
type RuleSet struct {
	cfg *Config
	now func() time.Time
}

func NewRuleSet(cfg *Config) *RuleSet {
	return &RuleSet{cfg: cfg, now: time.Now}
}

// Evaluate applies the full chain to a candidate given current account
// equity.
func (r *RuleSet) Evaluate(c Candidate, equity float64) Verdict {
	depth := -c.DipPct

	if depth < r.cfg.MinAbsoluteDip {
		return reject(ReasonBelowAbsoluteFloor, "dip %.2f%% under absolute floor %.2f%%",
			depth*100, r.cfg.MinAbsoluteDip*100)
	}

	threshold := r.cfg.EffectiveThreshold(c.Symbol)
	if depth < threshold {
		return reject(ReasonBelowThreshold, "dip %.2f%% under threshold %.2f%%",
			depth*100, threshold*100)
	}

	if equity > 0 && c.PositionValue >= equity*r.cfg.MaxPositionPct {
		return reject(ReasonPositionCapped, "position $%.2f at or over %.1f%% of equity",
			c.PositionValue, r.cfg.MaxPositionPct*100)
	}

	if !c.LastBuy.IsZero() {
		cooldown := r.EffectiveCooldown(c.DipPct)
		elapsed := r.now().Sub(c.LastBuy)
		if elapsed < cooldown {
			return reject(ReasonCooldownActive, "bought %s ago, cooldown %s",
				elapsed.Round(time.Second), cooldown)
		}
	}

	if v := r.applyFilters(c, depth); !v.OK {
		return v
	}
	return pass()
}

func (r *RuleSet) applyFilters(c Candidate, depth float64) Verdict {
	f := r.cfg.Filters

	// A fall this steep is more likely a structural break than a dip
	// worth buying.
	if f.CrashGuard && depth > f.CrashDipLimit {
		return reject(ReasonCrashGuard, "dip %.2f%% beyond crash limit %.2f%%",
			depth*100, f.CrashDipLimit*100)
	}

	if f.VolumeConfirm && len(c.Bars) > 1 {
		avg := averageVolume(c.Bars, r.cfg.LookbackDays)
		latest := float64(c.Bars[len(c.Bars)-1].Volume)
		if avg > 0 && latest < avg*f.VolumeConfirmRatio {
			return reject(ReasonVolumeUnconfirmed, "volume %.0f under %.1fx average %.0f",
				latest, f.VolumeConfirmRatio, avg)
		}
	}

	if f.Momentum {
		if rsi, ok := latestRSI(c.Bars, f.MomentumRSIPeriod); ok && rsi < f.MomentumRSILimit {
			return reject(ReasonWeakMomentum, "RSI %.1f under limit %.1f", rsi, f.MomentumRSILimit)
		}
	}

	return pass()
}

// EffectiveCooldown returns the repurchase cooldown for a dip of the
// given depth. Deep dips halve the cooldown, floored at one hour, so the
// strategy can average into a continuing decline.
func (r *RuleSet) EffectiveCooldown(dipPct float64) time.Duration {
	cooldown := r.cfg.Cooldown
	if math.Abs(dipPct) > r.cfg.DeepDipThreshold {
		cooldown /= 2
		if cooldown < DefaultMinCooldown {
			cooldown = DefaultMinCooldown
		}
	}
	return cooldown
}
