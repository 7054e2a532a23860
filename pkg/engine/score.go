package engine

import (
	"math"
	"sort"
)

// Opportunity is a candidate that cleared the risk filter chain and is
// eligible for execution this cycle.
type Opportunity struct {
	Symbol        string
	Price         float64
	DipPct        float64 // negative fraction
	Threshold     float64 // effective threshold applied
	VolFactor     float64
	IntradayDrop  float64 // negative fraction, 0 when flat or up
	IntradayBoost float64 // 1.0 when no boost applies
	PositionValue float64
}

// Score ranks opportunities by how far past their own threshold they
// have fallen, so a deep dip on a calm symbol can outrank a shallow dip
// on a jumpy one. Volatile symbols in a sharp intraday slide get an
// extra multiplier.
func (o Opportunity) Score() float64 {
	if o.Threshold <= 0 {
		return 0
	}
	score := math.Abs(o.DipPct) / o.Threshold
	if o.IntradayBoost > 0 {
		score *= o.IntradayBoost
	}
	return score
}

// SortOpportunities orders opportunities best first. Ties break on
// symbol so a cycle's execution order is deterministic.
func SortOpportunities(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		si, sj := opps[i].Score(), opps[j].Score()
		if si != sj {
			return si > sj
		}
		return opps[i].Symbol < opps[j].Symbol
	})
}
