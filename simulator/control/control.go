// Package control manages operator manual overrides of the price process.
package control

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/syntick/syntick/shared/models"
)

// Input bounds. Requests outside these never reach the engine.
const (
	MaxSpeed           = 0.10
	MaxIntensity       = 5.0
	MaxDurationSeconds = 3600
)

// Registry is the authoritative source of manual controls. Creating a new
// control immediately supersedes any prior active one; expired controls are
// kept in history but never returned as active.
type Registry struct {
	mu       sync.RWMutex
	clock    clock.Clock
	controls []models.ManualControl
}

// NewRegistry creates a registry reading time from clk.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{clock: clk}
}

// Create validates and registers a new control, making it authoritative.
func (r *Registry) Create(direction models.Direction, speed, intensity float64, durationSeconds int) (models.ManualControl, error) {
	if err := Validate(direction, speed, intensity, durationSeconds); err != nil {
		return models.ManualControl{}, err
	}

	ctrl := models.ManualControl{
		ID:              uuid.NewString(),
		Direction:       direction,
		Speed:           speed,
		Intensity:       intensity,
		StartTime:       r.clock.Now(),
		DurationSeconds: durationSeconds,
	}

	r.mu.Lock()
	r.controls = append(r.controls, ctrl)
	r.mu.Unlock()

	return ctrl, nil
}

// Active returns the most recently created control whose window contains
// now, or nil when the simulator is in auto mode.
func (r *Registry) Active() *models.ManualControl {
	now := r.clock.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.controls) - 1; i >= 0; i-- {
		if r.controls[i].ActiveAt(now) {
			ctrl := r.controls[i]
			return &ctrl
		}
	}
	return nil
}

// History returns all controls ever created, oldest first. Retention is a
// collaborator concern; the registry never deletes.
func (r *Registry) History() []models.ManualControl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ManualControl, len(r.controls))
	copy(out, r.controls)
	return out
}

// Validate checks a control request against the allowed bounds.
func Validate(direction models.Direction, speed, intensity float64, durationSeconds int) error {
	if !direction.Valid() {
		return fmt.Errorf("invalid direction %q: must be up, down or neutral", direction)
	}
	if speed <= 0 || speed > MaxSpeed {
		return fmt.Errorf("speed %v out of range (0, %v]", speed, MaxSpeed)
	}
	if intensity <= 0 || intensity > MaxIntensity {
		return fmt.Errorf("intensity %v out of range (0, %v]", intensity, MaxIntensity)
	}
	if durationSeconds <= 0 || durationSeconds > MaxDurationSeconds {
		return fmt.Errorf("duration %d out of range (0, %d]", durationSeconds, MaxDurationSeconds)
	}
	return nil
}
