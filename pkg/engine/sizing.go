package engine

import "math"

// SizeResult is the outcome of position sizing for one opportunity.
type SizeResult struct {
	OK       bool
	Reason   Reason
	Notional float64 // dollars to deploy
	Qty      float64 // fractional shares at the opportunity price
}

// SizePosition converts an opportunity into an order size. The target
// allocation is a fixed fraction of equity, scaled up in proportion to
// dip depth and divided by the volatility factor so jumpy symbols get
// smaller bites. The target is the TOTAL desired position, capped at the
// per-symbol limit; only the difference to the current holding is
// bought. Orders under the minimum notional are dropped as not worth
// their friction.
func SizePosition(cfg *Config, equity float64, opp Opportunity) SizeResult {
	if equity <= 0 || opp.Price <= 0 {
		return SizeResult{Reason: ReasonBelowMinNotional}
	}

	depthScale := math.Abs(opp.DipPct) / cfg.ReferenceDip
	vol := 1.0
	if opp.VolFactor > 0 {
		vol = clamp(opp.VolFactor, 0.5, 2.0)
	}
	boost := opp.IntradayBoost
	if boost <= 0 {
		boost = 1.0
	}
	target := equity * cfg.BasePositionPct * depthScale * cfg.DipMultiplier * boost / vol

	if limit := equity * cfg.MaxPositionPct; target > limit {
		target = limit
	}
	notional := target - opp.PositionValue

	if notional < cfg.MinOrderNotional {
		return SizeResult{Reason: ReasonBelowMinNotional}
	}

	qty := math.Floor(notional/opp.Price*1e4) / 1e4
	if qty <= 0 {
		return SizeResult{Reason: ReasonBelowMinNotional}
	}
	return SizeResult{OK: true, Notional: qty * opp.Price, Qty: qty}
}
