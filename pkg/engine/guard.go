package engine

import "math"

// GuardState is the leverage guard's current posture.
type GuardState string

const (
	StateNormal GuardState = "normal"
	StateBrake  GuardState = "brake"
)

// CycleCheck is the result of the per-cycle leverage evaluation.
type CycleCheck struct {
	State       GuardState
	Changed     bool // state flipped this cycle
	Ratio       float64
	MarginDebt  float64
	Reduction   float64 // position value to shed before trading resumes
	BrakeCycles int     // consecutive cycles spent braked, 0 when normal
}

// LeverageGuard is the two-layer account protection: a per-cycle
// emergency brake that halts all new buying while leverage sits above
// the safety threshold, and a per-trade check that rejects any order
// that would push leverage past the hard limit.
type LeverageGuard struct {
	safety      float64
	hard        float64
	rescanEvery int
	rescanMax   int

	state       GuardState
	brakeCycles int
}

func NewLeverageGuard(cfg *Config) *LeverageGuard {
	return &LeverageGuard{
		safety:      cfg.SafetyThreshold,
		hard:        cfg.HardLimit,
		rescanEvery: cfg.BrakeRescanEvery,
		rescanMax:   cfg.BrakeRescanMax,
		state:       StateNormal,
	}
}

// LeverageRatio is total position market value over account equity.
// A ratio above 1.0 means the account holds more than its own equity,
// which is only possible with financed (margin) holdings.
func LeverageRatio(totalPositionValue, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return totalPositionValue / equity
}

// MarginDebt is the financed portion of the holdings: position value not
// covered by free cash. Negative cash does not make it larger than the
// positions themselves.
func MarginDebt(totalPositionValue, cash float64) float64 {
	debt := totalPositionValue - math.Max(0, cash)
	return math.Max(0, debt)
}

// CheckCycle evaluates account leverage at the start of a cycle and
// transitions the brake state.
func (g *LeverageGuard) CheckCycle(totalPositionValue, cash, equity float64) CycleCheck {
	ratio := LeverageRatio(totalPositionValue, equity)
	engaged := ratio > g.safety

	prev := g.state
	if engaged {
		g.state = StateBrake
		g.brakeCycles++
	} else {
		g.state = StateNormal
		g.brakeCycles = 0
	}

	check := CycleCheck{
		State:       g.state,
		Changed:     g.state != prev,
		Ratio:       ratio,
		MarginDebt:  MarginDebt(totalPositionValue, cash),
		BrakeCycles: g.brakeCycles,
	}
	if engaged {
		check.Reduction = math.Max(0, totalPositionValue-equity*g.safety)
	}
	return check
}

// CheckTrade rejects an order that would push post-trade leverage past
// the hard limit. cycleDeployed is notional already committed by earlier
// orders this cycle, which the account snapshot does not yet reflect.
func (g *LeverageGuard) CheckTrade(totalPositionValue, equity, cycleDeployed, orderValue float64) Verdict {
	if g.state == StateBrake {
		return reject(ReasonBrakeActive, "emergency brake engaged for %d cycles", g.brakeCycles)
	}
	projected := LeverageRatio(totalPositionValue+cycleDeployed+orderValue, equity)
	if projected > g.hard {
		return reject(ReasonHardLimit, "projected leverage %.1f%% over hard limit %.1f%%",
			projected*100, g.hard*100)
	}
	return pass()
}

// ShouldRescan reports whether a braked cycle should still scan the
// market to log missed opportunities. Early brake cycles skip the scan,
// then it runs periodically, and after rescanMax cycles it stops for
// good until the brake clears.
func (g *LeverageGuard) ShouldRescan() bool {
	if g.state != StateBrake {
		return false
	}
	n := g.brakeCycles
	if n < g.rescanEvery || n > g.rescanMax {
		return false
	}
	return n%g.rescanEvery == 0
}

func (g *LeverageGuard) State() GuardState { return g.state }

func (g *LeverageGuard) BrakeCycles() int { return g.brakeCycles }
