package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGovernor() (*governor, *State) {
	state := NewState(testConfig())
	return &governor{state: state}, state
}

// The normal per-step cap clamps oversized deltas, preserving sign, and
// forces a settle period.
func TestClampPerStepCap(t *testing.T) {
	v, state := newTestGovernor()
	momentum := 0.0

	got := v.clamp(100, 50, false, &momentum)
	assert.Equal(t, 100*stepCapNormal, got)
	assert.GreaterOrEqual(t, state.ConsolidationSteps, clampSettleSteps)

	state.ConsolidationSteps = 0
	got = v.clamp(100, -50, false, &momentum)
	assert.Equal(t, -100*stepCapNormal, got)
}

// Deltas inside the cap pass through untouched.
func TestClampPassThrough(t *testing.T) {
	v, state := newTestGovernor()
	momentum := 0.0

	got := v.clamp(100, 1.5, false, &momentum)
	assert.Equal(t, 1.5, got)
	assert.Zero(t, state.ConsolidationSteps)
}

// Elevated trailing volatility widens the cap to 5%.
func TestClampWidensOnHighVolatility(t *testing.T) {
	v, state := newTestGovernor()
	momentum := 0.0

	for i := 0; i < volatilityHistorySize; i++ {
		state.Volatilities.Push(0.04) // above the 3% threshold
	}
	got := v.clamp(100, 50, false, &momentum)
	assert.Equal(t, 100*stepCapHighVol, got)
}

// The step a shock fires on is allowed up to 10%.
func TestClampShockCap(t *testing.T) {
	v, _ := newTestGovernor()
	momentum := 0.0

	got := v.clamp(100, 50, true, &momentum)
	assert.Equal(t, 100*stepCapShock, got)

	// A shock move inside the widened cap passes as-is.
	got = v.clamp(100, -9, true, &momentum)
	assert.Equal(t, -9.0, got)
}

// The moving-average deviation cap recomputes the delta to land exactly on
// the band edge, halves momentum, and forces a strong settle period.
func TestClampDeviationFromMovingAverage(t *testing.T) {
	v, state := newTestGovernor()
	momentum := 0.6

	for i := 0; i < maDeviationWindow; i++ {
		state.Prices.Push(100)
	}

	// 128 + 2.5 would exceed 130 = 100 × 1.3.
	got := v.clamp(128, 2.5, false, &momentum)
	assert.InDelta(t, 2.0, got, 1e-9)
	assert.InDelta(t, 0.3, momentum, 1e-9)
	assert.GreaterOrEqual(t, state.ConsolidationSteps, deviationSettleSteps)

	// Lower band, symmetric.
	momentum = -0.6
	state.ConsolidationSteps = 0
	got = v.clamp(71, -1.5, false, &momentum)
	assert.InDelta(t, -1.0, got, 1e-9)
	assert.InDelta(t, -0.3, momentum, 1e-9)
}

// With too little history, the deviation cap stays out of the way.
func TestClampNoDeviationCapWithoutHistory(t *testing.T) {
	v, _ := newTestGovernor()
	momentum := 0.0

	got := v.clamp(1000, 20, false, &momentum)
	assert.Equal(t, 20.0, got)
}
