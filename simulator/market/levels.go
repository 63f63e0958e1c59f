package market

import (
	"math"
	"math/rand"
	"sort"
)

// Support/resistance tuning.
const (
	levelCapacity     = 15
	levelFloor        = 0.15
	extremeWindow     = 20
	extremeStrength   = 0.6
	roundStrength     = 0.8
	roundProximity    = 0.05 // within 5% of a round price
	mergeProximity    = 0.02 // near-duplicates merge instead of stacking
	magnetProximity   = 0.01
	magnetMinStrength = 0.5
	magnetChance      = 0.5 // × strength
	rejectChance      = 0.6 // × strength
	breakoutDecay     = 0.7
	touchGain         = 0.05
	rejectionOffset   = 0.002 // rejected price lands just short of the level
	maxStrength       = 1.0
)

// Level is a sticky price that attracts, rejects, or erodes as the price
// approaches it.
type Level struct {
	Price     float64 `json:"price"`
	Strength  float64 `json:"strength"` // [0, 1]
	Touches   int     `json:"touches"`
	LastTouch int64   `json:"last_touch"` // step counter, not wall time
}

// LevelBook maintains the bounded set of support/resistance levels.
type LevelBook struct {
	levels []*Level
	closes *Ring
	step   int64
}

// NewLevelBook creates an empty book.
func NewLevelBook() *LevelBook {
	return &LevelBook{closes: NewRing(extremeWindow)}
}

// Levels returns a copy of the current level set for status reporting.
func (b *LevelBook) Levels() []Level {
	out := make([]Level, len(b.levels))
	for i, l := range b.levels {
		out[i] = *l
	}
	return out
}

// Apply adjusts a proposed price against the level set: a close approach to
// a strong level may snap to it (magnet), and a crossing may be rejected
// back to the near side; a survived crossing erodes the level instead.
func (b *LevelBook) Apply(proposed, prev float64, rng *rand.Rand) float64 {
	for _, l := range b.levels {
		if l.Price <= 0 {
			continue
		}

		// Magnet: snap onto nearby strong levels.
		if math.Abs(proposed-l.Price)/l.Price <= magnetProximity && l.Strength > magnetMinStrength {
			if rng.Float64() < l.Strength*magnetChance {
				b.touch(l)
				return l.Price
			}
		}

		// Crossing: previous price on one side, proposed on the other.
		if (prev-l.Price)*(proposed-l.Price) < 0 {
			if rng.Float64() < l.Strength*rejectChance {
				b.touch(l)
				if prev > l.Price {
					return l.Price * (1 + rejectionOffset)
				}
				return l.Price * (1 - rejectionOffset)
			}
			// Successful breakout weakens the level.
			l.Strength *= breakoutDecay
		}
	}
	return proposed
}

// Update maintains the level set from the latest finalized price. New
// rolling extremes and round-number proximity register levels; weak or
// stale levels are pruned.
func (b *LevelBook) Update(high, low, close float64) {
	b.step++

	if prevMax, ok := b.closes.MaxLast(extremeWindow); ok && high > prevMax {
		b.register(high, extremeStrength)
	}
	if prevMin, ok := b.closes.MinLast(extremeWindow); ok && low < prevMin {
		b.register(low, extremeStrength)
	}
	b.closes.Push(close)

	if round, ok := roundPriceNear(close); ok {
		b.register(round, roundStrength)
	}

	b.prune()
}

// register adds a level, merging into an existing near-duplicate by
// strengthening it instead of stacking a new one.
func (b *LevelBook) register(price, strength float64) {
	for _, l := range b.levels {
		if math.Abs(l.Price-price)/l.Price <= mergeProximity {
			l.Strength = math.Min(maxStrength, l.Strength+touchGain)
			l.LastTouch = b.step
			return
		}
	}
	b.levels = append(b.levels, &Level{
		Price:     price,
		Strength:  strength,
		LastTouch: b.step,
	})
}

// touch records a hit on a level, strengthening it.
func (b *LevelBook) touch(l *Level) {
	l.Touches++
	l.Strength = math.Min(maxStrength, l.Strength+touchGain)
	l.LastTouch = b.step
}

// prune drops levels below the strength floor and keeps only the most
// recently relevant up to capacity.
func (b *LevelBook) prune() {
	kept := b.levels[:0]
	for _, l := range b.levels {
		if l.Strength >= levelFloor {
			kept = append(kept, l)
		}
	}
	b.levels = kept

	if len(b.levels) > levelCapacity {
		sort.Slice(b.levels, func(i, j int) bool {
			if b.levels[i].LastTouch != b.levels[j].LastTouch {
				return b.levels[i].LastTouch > b.levels[j].LastTouch
			}
			return b.levels[i].Strength > b.levels[j].Strength
		})
		b.levels = b.levels[:levelCapacity]
	}
}

// roundPriceNear finds a psychologically round price within roundProximity
// of p: a half-step multiple of p's order of magnitude (e.g. 10, 15, 20 ...
// around 12.3).
func roundPriceNear(p float64) (float64, bool) {
	if p <= 0 {
		return 0, false
	}
	unit := math.Pow(10, math.Floor(math.Log10(p))) / 2
	round := math.Round(p/unit) * unit
	if round <= 0 {
		return 0, false
	}
	if math.Abs(p-round)/round <= roundProximity {
		return round, true
	}
	return 0, false
}
