package market

import (
	"math"
	"math/rand"
	"time"

	"github.com/syntick/syntick/shared/models"
)

// Price process tuning. The constants are empirical knobs, not derived
// values; they are grouped here so the whole shape of the process is
// adjustable in one place.
const (
	priceHistorySize      = 120
	volatilityHistorySize = 20

	priceFloor = 0.01

	// Probability that an auto-mode step is a consolidation move rather
	// than a trending one. Markets spend most of their time range-bound.
	consolidationProbability = 0.70

	// Consolidation moves stay within ±1% of price, biased toward zero.
	consolidationBound = 0.01

	// Independent noise added on every step, manual or auto.
	noiseBound = 0.001

	// Momentum decays by this factor each trending step.
	momentumDecay = 0.92

	// Weight of the regime drift bias inside a trending move.
	regimeBiasWeight = 0.35

	// Down-moves are scaled up to model crashes being faster than rallies.
	downMoveAsymmetry = 3.0

	// Volatility clustering: when trailing average volatility exceeds
	// volClusterTrigger × baseline, trending moves amplify by volClusterAmp.
	volClusterTrigger = 1.5
	volClusterAmp     = 1.3

	// Mean reversion pull, quadratic in the deviation from base price.
	meanReversionStrength = 0.08
)

// StepResult is the outcome of one generation step.
type StepResult struct {
	Price  float64
	Delta  float64
	Volume float64
	Shock  *Shock // non-nil when the random event system fired
}

// Generator produces the synthetic price series. It owns all process state
// and a private RNG, so a fixed seed yields a reproducible series. It is
// not safe for concurrent use; the engine drives it from a single loop.
type Generator struct {
	rng      *rand.Rand
	state    *State
	regime   *RegimeTracker
	levels   *LevelBook
	governor *governor
	price    float64
}

// NewGenerator creates a generator anchored at cfg.BasePrice. A zero seed
// falls back to the current time.
func NewGenerator(cfg Config, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	state := NewState(cfg)
	return &Generator{
		rng:      rand.New(rand.NewSource(seed)),
		state:    state,
		regime:   NewRegimeTracker(),
		levels:   NewLevelBook(),
		governor: &governor{state: state},
		price:    cfg.BasePrice,
	}
}

// Price returns the current price.
func (g *Generator) Price() float64 { return g.price }

// SetPrice seeds the current price, used to resume from the last persisted
// candle after a restart.
func (g *Generator) SetPrice(p float64) {
	if p < priceFloor {
		p = priceFloor
	}
	g.price = p
}

// Regime returns the current market regime.
func (g *Generator) Regime() models.Regime { return g.regime.Current() }

// Step advances the process by one tick and returns the new price. When a
// manual control with a non-neutral direction is supplied it replaces the
// automatic drift entirely; only the bounded noise term remains random.
func (g *Generator) Step(ctrl *models.ManualControl) StepResult {
	prev := g.price
	if prev < priceFloor {
		prev = priceFloor
	}

	var (
		delta float64
		shock *Shock
	)
	manual := ctrl != nil && ctrl.Direction != models.DirectionNeutral
	if manual {
		delta = prev * ctrl.Direction.Sign() * ctrl.Speed * ctrl.Intensity
	} else {
		delta, shock = g.autoDelta(prev)
	}

	// Small independent noise in both modes, so the series is never
	// perfectly flat.
	delta += (g.rng.Float64()*2 - 1) * noiseBound * prev

	// Level magnetism never overrides an operator's hand; only the noise
	// term and the governor touch a manual move.
	proposed := prev + delta
	if !manual {
		proposed = g.levels.Apply(proposed, prev, g.rng)
	}
	delta = g.governor.clamp(prev, proposed-prev, shock != nil, &g.state.CurrentTrend)

	price := prev + delta
	if price < priceFloor {
		price = priceFloor
	}
	g.price = price

	g.state.Prices.Push(price)
	if prev > 0 {
		g.state.Volatilities.Push(math.Abs(delta) / prev)
	}
	if g.state.ConsolidationSteps > 0 {
		g.state.ConsolidationSteps--
	}
	if g.state.EventCooldown > 0 {
		g.state.EventCooldown--
	}
	g.levels.Update(math.Max(prev, price), math.Min(prev, price), price)

	return StepResult{
		Price:  price,
		Delta:  delta,
		Volume: g.volumeFor(prev, delta),
		Shock:  shock,
	}
}

// CloseCandle records a candle close and gives the regime state machine its
// only chance to transition. It returns the regime in force for the next
// candle and whether it just changed.
func (g *Generator) CloseCandle(close float64) (regime models.Regime, changed bool) {
	changed = g.regime.EvaluateOnClose(g.rng, close)
	if changed {
		// A fresh phase starts without inherited momentum.
		g.state.CurrentTrend = 0
	}
	return g.regime.Current(), changed
}

// autoDelta produces one auto-mode move: a rare large shock, a small
// consolidation oscillation, or a trending move.
func (g *Generator) autoDelta(prev float64) (float64, *Shock) {
	if g.state.EventCooldown == 0 && g.rng.Float64() < shockProbability {
		shock := g.rollShock(prev)
		return shock.Delta, shock
	}
	if g.state.ConsolidationSteps > 0 || g.rng.Float64() < consolidationProbability {
		return g.consolidationMove(prev), nil
	}
	return g.trendingMove(prev), nil
}

// consolidationMove is a bounded oscillation biased toward zero.
func (g *Generator) consolidationMove(prev float64) float64 {
	r := g.rng.Float64()*2 - 1
	// r*|r| keeps the sign but squashes magnitude toward zero.
	return r * math.Abs(r) * consolidationBound * prev
}

// trendingMove combines randomness, regime bias, decaying momentum, crash
// asymmetry, volatility clustering and mean reversion.
func (g *Generator) trendingMove(prev float64) float64 {
	random := g.rng.Float64()*2 - 1
	bias := g.regime.Current().DriftBias() * regimeBiasWeight

	g.state.CurrentTrend = g.state.CurrentTrend*momentumDecay +
		(random*0.6+bias*0.4)*(1-momentumDecay)
	if g.state.CurrentTrend > 1 {
		g.state.CurrentTrend = 1
	} else if g.state.CurrentTrend < -1 {
		g.state.CurrentTrend = -1
	}

	move := (random*0.5 + bias + g.state.CurrentTrend) * g.state.Volatility * prev
	if move < 0 {
		move *= downMoveAsymmetry
	}
	if avg, ok := g.state.Volatilities.MeanLast(volatilityHistorySize); ok &&
		avg > volClusterTrigger*g.state.Volatility {
		move *= volClusterAmp
	}

	// Pull back toward the base price, strengthening quadratically with
	// the deviation.
	dev := (prev - g.state.BasePrice) / g.state.BasePrice
	pull := -dev * math.Abs(dev) * meanReversionStrength * prev

	return move + pull
}
