package market

// Config holds the tunable anchors of the price process.
type Config struct {
	BasePrice  float64 // mean-reversion anchor
	Volatility float64 // baseline per-step volatility, e.g. 0.02
	VolumeBase float64 // baseline per-candle volume
}

// State is the long-lived mutable state of the price process. It is owned
// by a single Generator and never shared.
type State struct {
	BasePrice  float64
	Volatility float64
	VolumeBase float64

	// CurrentTrend is the exponentially-decaying momentum term in [-1, 1].
	CurrentTrend float64

	// Prices holds recent step prices for the moving-average deviation cap
	// and trend confirmation.
	Prices *Ring

	// Volatilities holds recent per-step relative moves, |delta|/price,
	// for volatility clustering and the widened step cap.
	Volatilities *Ring

	// ConsolidationSteps forces small range-bound moves while positive.
	ConsolidationSteps int

	// EventCooldown blocks the random event system while positive.
	EventCooldown int
}

// NewState initializes process state from config.
func NewState(cfg Config) *State {
	return &State{
		BasePrice:    cfg.BasePrice,
		Volatility:   cfg.Volatility,
		VolumeBase:   cfg.VolumeBase,
		Prices:       NewRing(priceHistorySize),
		Volatilities: NewRing(volatilityHistorySize),
	}
}

// Ring is a fixed-capacity float64 ring buffer. Pushing past capacity
// overwrites the oldest sample.
type Ring struct {
	buf   []float64
	next  int
	count int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (r *Ring) Push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored samples.
func (r *Ring) Len() int { return r.count }

// Last returns the most recent sample, or 0 when empty.
func (r *Ring) Last() float64 {
	if r.count == 0 {
		return 0
	}
	return r.buf[(r.next-1+len(r.buf))%len(r.buf)]
}

// at returns the i-th most recent sample, i=0 being the newest.
func (r *Ring) at(i int) float64 {
	return r.buf[(r.next-1-i+2*len(r.buf))%len(r.buf)]
}

// MeanLast averages the n most recent samples. ok is false when the buffer
// holds fewer than n samples.
func (r *Ring) MeanLast(n int) (mean float64, ok bool) {
	if n <= 0 || r.count < n {
		return 0, false
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += r.at(i)
	}
	return sum / float64(n), true
}

// MaxLast returns the maximum of up to n most recent samples.
func (r *Ring) MaxLast(n int) (max float64, ok bool) {
	if r.count == 0 {
		return 0, false
	}
	if n > r.count {
		n = r.count
	}
	max = r.at(0)
	for i := 1; i < n; i++ {
		if v := r.at(i); v > max {
			max = v
		}
	}
	return max, true
}

// MinLast returns the minimum of up to n most recent samples.
func (r *Ring) MinLast(n int) (min float64, ok bool) {
	if r.count == 0 {
		return 0, false
	}
	if n > r.count {
		n = r.count
	}
	min = r.at(0)
	for i := 1; i < n; i++ {
		if v := r.at(i); v < min {
			min = v
		}
	}
	return min, true
}
