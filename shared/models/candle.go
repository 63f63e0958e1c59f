package models

import "time"

// Mode tells whether a candle was produced by the automatic price process
// or under an operator's manual control.
type Mode string

// Generation modes
const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Candle represents one finalized OHLCV bar. Immutable once emitted.
type Candle struct {
	Symbol     string  `json:"symbol" db:"symbol"`
	Timestamp  int64   `json:"timestamp" db:"ts"` // ms epoch, interval-aligned
	Open       float64 `json:"open" db:"open"`
	High       float64 `json:"high" db:"high"`
	Low        float64 `json:"low" db:"low"`
	Close      float64 `json:"close" db:"close"`
	Volume     float64 `json:"volume" db:"volume"`
	Mode       Mode    `json:"mode" db:"mode"`
	Resolution string  `json:"resolution" db:"resolution"`
}

// StartTime returns the candle's interval start as a time.Time.
func (c Candle) StartTime() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// LiveSnapshot is the state of the in-progress candle, published on every
// live tick so subscribers can animate the open bar.
type LiveSnapshot struct {
	Timestamp     int64   `json:"timestamp"` // interval start, ms epoch
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	Resolution    string  `json:"resolution"`
	TimeRemaining float64 `json:"time_remaining_seconds"`
}
