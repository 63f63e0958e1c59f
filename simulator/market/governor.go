package market

import "math"

// Stability governor tuning.
const (
	// Per-step caps on |delta|/price.
	stepCapNormal  = 0.025
	stepCapHighVol = 0.05
	stepCapShock   = 0.10

	// Trailing average volatility above which the wider step cap applies.
	highVolThreshold = 0.03

	// The price may not drift more than this fraction away from the
	// trailing moving average.
	maDeviationCap    = 0.30
	maDeviationWindow = 50

	// Consolidation forced when a clamp engages.
	clampSettleSteps     = 10
	deviationSettleSteps = 20
)

// governor bounds proposed price changes. It is the engine's correctness
// guarantee: no input sequence can make the price diverge without bound.
type governor struct {
	state *State
}

// clamp bounds delta against the per-step cap and the moving-average
// deviation cap, applying whichever is tighter. shocked widens the step cap
// for the one step a random event fired on. momentum is halved when the
// deviation cap engages.
func (v *governor) clamp(prev, delta float64, shocked bool, momentum *float64) float64 {
	limit := stepCapNormal
	if shocked {
		limit = stepCapShock
	} else if avg, ok := v.state.Volatilities.MeanLast(volatilityHistorySize); ok && avg > highVolThreshold {
		limit = stepCapHighVol
	}

	if maxDelta := prev * limit; math.Abs(delta) > maxDelta {
		delta = math.Copysign(maxDelta, delta)
		if v.state.ConsolidationSteps < clampSettleSteps {
			v.state.ConsolidationSteps = clampSettleSteps
		}
	}

	if ma, ok := v.state.Prices.MeanLast(maDeviationWindow); ok && ma > 0 {
		price := prev + delta
		upper := ma * (1 + maDeviationCap)
		lower := ma * (1 - maDeviationCap)
		if price > upper || price < lower {
			bound := upper
			if price < lower {
				bound = lower
			}
			delta = bound - prev
			*momentum /= 2
			if v.state.ConsolidationSteps < deviationSettleSteps {
				v.state.ConsolidationSteps = deviationSettleSteps
			}
		}
	}

	return delta
}
