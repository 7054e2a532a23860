package engine

import "bigdipper/pkg/broker"

// latestRSI computes the most recent RSI value over the bar closes using
// Wilder smoothing. ok is false with fewer than period+1 bars.
func latestRSI(bars []broker.Bar, period int) (float64, bool) {
	if period < 1 || len(bars) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// averageVolume returns the mean volume of the last n bars, excluding the
// most recent bar itself.
func averageVolume(bars []broker.Bar, n int) float64 {
	if len(bars) < 2 || n < 1 {
		return 0
	}
	history := bars[:len(bars)-1]
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var sum float64
	for _, b := range history {
		sum += float64(b.Volume)
	}
	return sum / float64(len(history))
}
