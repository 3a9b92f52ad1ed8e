// Package stepper generates acceleration-limited step pulses for a
// STEP/DIR/ENABLE driver. Tick emits at most one rising edge per call and
// never blocks, so the supervisor loop stays responsive during motion.
package stepper

import (
	"errors"
	"math"

	"smartfeeder-go/pkg/hal"
)

// Common errors
var (
	ErrInvalidSpeed = errors.New("stepper: max_speed must be positive")
	ErrInvalidAccel = errors.New("stepper: acceleration must be positive")
)

const (
	defaultPulseWidthUS = 2
	defaultDirSetupUS   = 2
)

// Config holds the pins, clock and motion limits for one motor.
type Config struct {
	Step   hal.OutputPin
	Dir    hal.OutputPin
	Enable hal.OutputPin
	Clock  hal.Clock

	MaxSpeed     float64 // steps/s
	Acceleration float64 // steps/s^2

	// PulseWidthUS and DirSetupUS are driver-chip minimums from the
	// datasheet; both default to 2µs.
	PulseWidthUS uint64
	DirSetupUS   uint64
}

// Motor is a single stepper with a trapezoidal velocity profile. The profile
// phase (accelerating, cruising, decelerating) is not stored; it falls out of
// the kinematics at each step.
type Motor struct {
	step   hal.OutputPin
	dir    hal.OutputPin
	enable hal.OutputPin
	clock  hal.Clock

	maxSpeed   float64
	accel      float64
	pulseWidth uint64
	dirSetup   uint64

	position  int64
	target    int64
	velocity  float64 // signed steps/s during motion, 0 at target
	direction int64   // +1 or -1, the level currently latched on DIR
	enabled   bool

	stepHigh   bool
	lastStepUS uint64
	nextStepUS uint64
	dirReadyUS uint64
	rampSteps  int64 // steps taken since the motor was last at rest
	started    bool
}

// New validates the configuration and returns a motor with the driver
// disabled and DIR latched to the positive direction.
func New(cfg Config) (*Motor, error) {
	if cfg.MaxSpeed <= 0 {
		return nil, ErrInvalidSpeed
	}
	if cfg.Acceleration <= 0 {
		return nil, ErrInvalidAccel
	}
	if cfg.PulseWidthUS == 0 {
		cfg.PulseWidthUS = defaultPulseWidthUS
	}
	if cfg.DirSetupUS == 0 {
		cfg.DirSetupUS = defaultDirSetupUS
	}

	m := &Motor{
		step:       cfg.Step,
		dir:        cfg.Dir,
		enable:     cfg.Enable,
		clock:      cfg.Clock,
		maxSpeed:   cfg.MaxSpeed,
		accel:      cfg.Acceleration,
		pulseWidth: cfg.PulseWidthUS,
		dirSetup:   cfg.DirSetupUS,
		direction:  1,
	}
	m.step.Set(false)
	m.dir.Set(false)
	m.enable.Set(true) // active low: high = disabled
	return m, nil
}

// MoveRelative adds delta steps to the target position. It is legal in any
// state and emits no pulses itself. A delta that reverses the sign of the
// remaining distance mid-move latches the new direction immediately and
// restarts the ramp from rest rather than decelerating first; callers that
// need a controlled stop should wait until Moving reports false.
func (m *Motor) MoveRelative(delta int64) {
	m.target += delta
}

// Enable drives the ENABLE line (active low).
func (m *Motor) Enable(on bool) {
	m.enabled = on
	m.enable.Set(!on)
}

// IsEnabled reports whether the driver is currently enabled.
func (m *Motor) IsEnabled() bool {
	return m.enabled
}

// Position returns the current position in steps.
func (m *Motor) Position() int64 {
	return m.position
}

// Target returns the target position in steps.
func (m *Motor) Target() int64 {
	return m.target
}

// Velocity returns the current signed velocity in steps/s.
func (m *Motor) Velocity() float64 {
	return m.velocity
}

// Moving reports whether motion or a pending falling edge is outstanding.
func (m *Motor) Moving() bool {
	return m.position != m.target || m.stepHigh
}

// Tick advances the motion profile. It emits at most one rising edge per
// call; the matching falling edge is emitted on a later call once the pulse
// width has elapsed. Returns true while motion is still in progress.
func (m *Motor) Tick() bool {
	now := m.clock.NowMicros()

	// Finish the pulse raised on a previous tick.
	if m.stepHigh && now-m.lastStepUS >= m.pulseWidth {
		m.step.Set(false)
		m.stepHigh = false
	}

	d := m.target - m.position
	if d == 0 {
		m.velocity = 0
		m.rampSteps = 0
		m.started = false
		return m.stepHigh
	}

	// DIR must be stable for the setup time before the next edge.
	want := int64(1)
	if d < 0 {
		want = -1
	}
	if want != m.direction {
		m.direction = want
		m.dir.Set(want < 0)
		m.dirReadyUS = now + m.dirSetup
		m.velocity = 0
		m.rampSteps = 0
		m.started = false
		return true
	}
	if now < m.dirReadyUS {
		return true
	}

	if !m.started {
		// The first interval covers the first step taken from rest.
		m.started = true
		iv := m.intervalUS(d)
		m.nextStepUS = now + iv
		m.velocity = float64(m.direction) * 1e6 / float64(iv)
		return true
	}

	if now < m.nextStepUS {
		return true
	}

	m.step.Set(true)
	m.stepHigh = true
	m.lastStepUS = now
	m.position += m.direction
	m.rampSteps++

	d = m.target - m.position
	if d == 0 {
		m.velocity = 0
		m.rampSteps = 0
		m.started = false
		return true // one more tick to drop the pulse
	}
	iv := m.intervalUS(d)
	m.nextStepUS = now + iv
	m.velocity = float64(m.direction) * 1e6 / float64(iv)
	return true
}

// intervalUS returns the time budget for the next step: the slowest of the
// cruise period, the acceleration ramp and the deceleration ramp needed to
// stop exactly at the target.
func (m *Motor) intervalUS(remaining int64) uint64 {
	steps := remaining
	if steps < 0 {
		steps = -steps
	}
	t := 1.0 / m.maxSpeed
	if ta := rampInterval(m.accel, m.rampSteps+1); ta > t {
		t = ta
	}
	if td := rampInterval(m.accel, steps); td > t {
		t = td
	}
	us := uint64(math.Ceil(t * 1e6))
	if us < 1 {
		us = 1
	}
	return us
}

// rampInterval is the time to traverse the k-th step of a constant
// acceleration ramp that starts (or, mirrored, ends) at rest:
// sqrt(2/a) * (sqrt(k) - sqrt(k-1)).
func rampInterval(accel float64, k int64) float64 {
	fk := float64(k)
	return math.Sqrt(2/accel) * (math.Sqrt(fk) - math.Sqrt(fk-1))
}
