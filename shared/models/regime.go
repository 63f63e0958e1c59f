package models

import (
	"encoding/json"
	"fmt"
)

// Regime is the coarse market phase biasing the price process drift.
// The cycle is fixed: accumulation → markup → distribution → markdown → accumulation.
type Regime int

// Market regimes, in cycle order.
const (
	RegimeAccumulation Regime = iota
	RegimeMarkup
	RegimeDistribution
	RegimeMarkdown
)

// Next returns the only regime reachable from r.
func (r Regime) Next() Regime {
	switch r {
	case RegimeAccumulation:
		return RegimeMarkup
	case RegimeMarkup:
		return RegimeDistribution
	case RegimeDistribution:
		return RegimeMarkdown
	case RegimeMarkdown:
		return RegimeAccumulation
	}
	return RegimeAccumulation
}

// DriftBias returns the directional bias the regime applies to trending
// moves: +1 for markup, -1 for markdown, 0 for the range-bound phases.
func (r Regime) DriftBias() float64 {
	switch r {
	case RegimeMarkup:
		return 1
	case RegimeMarkdown:
		return -1
	}
	return 0
}

func (r Regime) String() string {
	switch r {
	case RegimeAccumulation:
		return "accumulation"
	case RegimeMarkup:
		return "markup"
	case RegimeDistribution:
		return "distribution"
	case RegimeMarkdown:
		return "markdown"
	}
	return fmt.Sprintf("regime(%d)", int(r))
}

// MarshalJSON writes the regime as its lowercase name.
func (r Regime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON reads a regime from its lowercase name.
func (r *Regime) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "accumulation":
		*r = RegimeAccumulation
	case "markup":
		*r = RegimeMarkup
	case "distribution":
		*r = RegimeDistribution
	case "markdown":
		*r = RegimeMarkdown
	default:
		return fmt.Errorf("unknown regime %q", name)
	}
	return nil
}
