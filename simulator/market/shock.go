package market

// Random event system: rare one-off large moves, mutually exclusive with
// ordinary trending/consolidation logic for the step they fire on.
const (
	// Per-step probability of a shock, evaluated only when the cooldown
	// has expired.
	shockProbability = 0.003

	shockCooldownMin = 30
	shockCooldownMax = 60

	settleStepsMin = 3
	settleStepsMax = 8
)

// ShockKind names the flavor of a random market event.
type ShockKind string

// Shock kinds
const (
	ShockPump       ShockKind = "pump"        // +5% .. +10%
	ShockDump       ShockKind = "dump"        // -8% .. -15%
	ShockFlashSpike ShockKind = "flash_spike" // -5% .. -8%
)

// Shock is a one-off discontinuous move injected by the event system.
type Shock struct {
	Kind  ShockKind
	Delta float64
}

// rollShock picks a shock kind and magnitude, and arms the cooldown and
// post-event settle period so the market calms down afterward.
func (g *Generator) rollShock(prev float64) *Shock {
	var (
		kind ShockKind
		pct  float64
	)
	switch roll := g.rng.Float64(); {
	case roll < 0.40:
		kind = ShockPump
		pct = 0.05 + g.rng.Float64()*0.05
	case roll < 0.75:
		kind = ShockDump
		pct = -(0.08 + g.rng.Float64()*0.07)
	default:
		kind = ShockFlashSpike
		pct = -(0.05 + g.rng.Float64()*0.03)
	}

	g.state.EventCooldown = shockCooldownMin +
		g.rng.Intn(shockCooldownMax-shockCooldownMin+1)
	g.state.ConsolidationSteps = settleStepsMin +
		g.rng.Intn(settleStepsMax-settleStepsMin+1)

	return &Shock{Kind: kind, Delta: prev * pct}
}
