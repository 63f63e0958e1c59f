package market

import (
	"math"

	"github.com/syntick/syntick/shared/models"
)

// Volume tuning.
const (
	// Fraction of the per-candle volume base attributed to a single tick.
	tickVolumeFraction = 0.02

	// How strongly relative price movement inflates volume.
	volumeImpact = 40.0

	// Hard floor so volume is never zero.
	minTickVolume = 0.01
)

// volumeFor derives tick volume from the magnitude of the move, scaled by
// the regime's activity level plus bounded randomness. Always positive.
func (g *Generator) volumeFor(prev, delta float64) float64 {
	magnitude := 0.0
	if prev > 0 {
		magnitude = math.Abs(delta) / prev
	}

	v := g.state.VolumeBase * tickVolumeFraction *
		(1 + magnitude*volumeImpact) *
		regimeVolumeMultiplier(g.regime.Current()) *
		(0.5 + g.rng.Float64()) // ±50% jitter

	if v < minTickVolume {
		v = minTickVolume
	}
	return v
}

// regimeVolumeMultiplier: directional phases trade heavier than quiet
// accumulation.
func regimeVolumeMultiplier(r models.Regime) float64 {
	switch r {
	case models.RegimeMarkup:
		return 1.4
	case models.RegimeMarkdown:
		return 1.5
	case models.RegimeDistribution:
		return 1.2
	case models.RegimeAccumulation:
		return 0.8
	}
	return 1.0
}
