package models

import "time"

// Direction is the operator-requested bias of a manual control.
type Direction string

// Manual control directions
const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Valid reports whether d is one of the allowed directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionNeutral:
		return true
	}
	return false
}

// Sign returns the signed unit bias of the direction.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	}
	return 0
}

// ManualControl is a time-boxed operator override of the automatic price
// process. At most one control is authoritative at any instant: the most
// recently created one whose window contains now.
type ManualControl struct {
	ID              string    `json:"id" db:"id"`
	Direction       Direction `json:"direction" db:"direction"`
	Speed           float64   `json:"speed" db:"speed"`
	Intensity       float64   `json:"intensity" db:"intensity"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
}

// ExpiresAt returns the end of the control's window.
func (m ManualControl) ExpiresAt() time.Time {
	return m.StartTime.Add(time.Duration(m.DurationSeconds) * time.Second)
}

// ActiveAt reports whether the control's [start, start+duration) window
// contains now.
func (m ManualControl) ActiveAt(now time.Time) bool {
	return !now.Before(m.StartTime) && now.Before(m.ExpiresAt())
}
