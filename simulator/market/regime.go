package market

import (
	"math/rand"

	"github.com/syntick/syntick/shared/models"
)

// Regime state machine tuning.
const (
	// Minimum candles spent in a regime before a transition is considered.
	regimeMinCandles = 30

	// Once eligible, the probability per candle close that a transition
	// actually happens (before trend confirmation).
	regimeTransitionProb = 0.30

	// Closes examined for the trend-confirmation check.
	regimeTrendWindow = 10

	// Relative drift below which the trend counts as flat.
	regimeFlatThreshold = 0.005
)

// RegimeTracker walks the fixed accumulation → markup → distribution →
// markdown cycle. Transitions happen only at candle boundaries.
type RegimeTracker struct {
	current         models.Regime
	candlesInRegime int
	closes          *Ring
}

// NewRegimeTracker starts in accumulation.
func NewRegimeTracker() *RegimeTracker {
	return &RegimeTracker{
		current: models.RegimeAccumulation,
		closes:  NewRing(regimeTrendWindow),
	}
}

// Current returns the regime in force.
func (t *RegimeTracker) Current() models.Regime { return t.current }

// CandlesInRegime returns how many candles have closed in the current regime.
func (t *RegimeTracker) CandlesInRegime() int { return t.candlesInRegime }

// EvaluateOnClose records a candle close and possibly advances the cycle.
// A transition needs: the minimum dwell, a probabilistic gate, and a
// state-specific trend confirmation (with a coin-flip fallback so the cycle
// never stalls forever).
func (t *RegimeTracker) EvaluateOnClose(rng *rand.Rand, close float64) bool {
	t.closes.Push(close)
	t.candlesInRegime++

	if t.candlesInRegime < regimeMinCandles {
		return false
	}
	if rng.Float64() >= regimeTransitionProb {
		return false
	}
	if !t.confirmTrend(rng) {
		return false
	}

	t.current = t.current.Next()
	t.candlesInRegime = 0
	return true
}

// confirmTrend checks that recent closes support moving to the next phase.
func (t *RegimeTracker) confirmTrend(rng *rand.Rand) bool {
	drift, ok := t.recentDrift()
	if !ok {
		return rng.Float64() < 0.5
	}

	switch t.current {
	case models.RegimeAccumulation:
		// Entering markup wants upward drift.
		return drift > 0 || rng.Float64() < 0.5
	case models.RegimeMarkup:
		// Entering distribution wants the rally to flatten.
		return drift < regimeFlatThreshold || rng.Float64() < 0.5
	case models.RegimeDistribution:
		// Entering markdown wants downward drift.
		return drift < 0 || rng.Float64() < 0.5
	case models.RegimeMarkdown:
		// Entering accumulation wants the decline to flatten.
		return drift > -regimeFlatThreshold || rng.Float64() < 0.5
	}
	return false
}

// recentDrift is the relative change across the confirmation window.
func (t *RegimeTracker) recentDrift() (float64, bool) {
	n := t.closes.Len()
	if n < 2 {
		return 0, false
	}
	oldest := t.closes.at(n - 1)
	if oldest == 0 {
		return 0, false
	}
	return (t.closes.Last() - oldest) / oldest, true
}
