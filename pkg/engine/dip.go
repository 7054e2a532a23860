package engine

import "bigdipper/pkg/broker"

// volBaseline is the daily-return standard deviation treated as "normal"
// volatility; VolatilityFactor is expressed relative to it.
const volBaseline = 0.02

// CalculateDip returns the decline of currentPrice from the highest high
// of the lookback window, as a negative fraction. ok is false when there
// is not enough history, the reference high is non-positive, or the price
// is at or above the high (no dip).
func CalculateDip(currentPrice float64, bars []broker.Bar, lookbackDays int) (float64, bool) {
	if currentPrice <= 0 || len(bars) < lookbackDays {
		return 0, false
	}
	window := bars[len(bars)-lookbackDays:]
	high := 0.0
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
	}
	if high <= 0 {
		return 0, false
	}
	dip := (currentPrice - high) / high
	if dip >= 0 {
		return 0, false
	}
	return dip, true
}

// VolatilityFactor estimates how volatile a symbol currently is relative
// to the baseline: the mean daily (high-low)/close range over the window,
// excluding the newest bar so today's capitulation candle does not judge
// itself, divided by volBaseline. Without usable history it returns 1.0.
// Sizing clamps the factor; it is reported raw here.
func VolatilityFactor(bars []broker.Bar) float64 {
	if len(bars) < 2 {
		return 1.0
	}
	history := bars[:len(bars)-1]
	sum, n := 0.0, 0
	for _, b := range history {
		if b.Close <= 0 {
			continue
		}
		sum += (b.High - b.Low) / b.Close
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n) / volBaseline
}

// IntradayDrop returns the decline of currentPrice from the previous
// daily close, as a negative fraction, or 0 when the price is flat or up.
func IntradayDrop(currentPrice float64, bars []broker.Bar) float64 {
	if currentPrice <= 0 || len(bars) == 0 {
		return 0
	}
	ref := bars[len(bars)-1].Close
	if ref <= 0 {
		return 0
	}
	drop := (currentPrice - ref) / ref
	if drop >= 0 {
		return 0
	}
	return drop
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
