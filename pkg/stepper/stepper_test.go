package stepper_test

import (
	"testing"

	"smartfeeder-go/pkg/sim"
	"smartfeeder-go/pkg/stepper"
)

type rig struct {
	motor  *stepper.Motor
	clock  *sim.Clock
	step   *sim.Pin
	dir    *sim.Pin
	enable *sim.Pin
}

func newRig(t *testing.T, maxSpeed, accel float64) *rig {
	t.Helper()
	r := &rig{
		clock:  sim.NewClock(),
		step:   sim.NewPin(false),
		dir:    sim.NewPin(false),
		enable: sim.NewPin(false),
	}
	m, err := stepper.New(stepper.Config{
		Step:         r.step,
		Dir:          r.dir,
		Enable:       r.enable,
		Clock:        r.clock,
		MaxSpeed:     maxSpeed,
		Acceleration: accel,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.motor = m
	return r
}

// runToTarget ticks the motor with 5µs time quanta until motion finishes and
// returns the elapsed simulated microseconds. It also checks that no tick
// ever emits more than one rising edge.
func (r *rig) runToTarget(t *testing.T) uint64 {
	t.Helper()
	start := r.clock.NowMicros()
	for i := 0; r.motor.Moving(); i++ {
		if i > 5_000_000 {
			t.Fatal("motor never reached target")
		}
		before := r.step.Rises()
		r.motor.Tick()
		if got := r.step.Rises() - before; got > 1 {
			t.Fatalf("Tick emitted %d rising edges, want at most 1", got)
		}
		r.clock.Advance(5)
	}
	return r.clock.NowMicros() - start
}

func TestNewValidation(t *testing.T) {
	clock := sim.NewClock()
	cfg := stepper.Config{
		Step:   sim.NewPin(false),
		Dir:    sim.NewPin(false),
		Enable: sim.NewPin(false),
		Clock:  clock,
	}

	cfg.MaxSpeed, cfg.Acceleration = 0, 500
	if _, err := stepper.New(cfg); err != stepper.ErrInvalidSpeed {
		t.Errorf("New(speed=0) error = %v, want %v", err, stepper.ErrInvalidSpeed)
	}

	cfg.MaxSpeed, cfg.Acceleration = 1000, -1
	if _, err := stepper.New(cfg); err != stepper.ErrInvalidAccel {
		t.Errorf("New(accel=-1) error = %v, want %v", err, stepper.ErrInvalidAccel)
	}
}

func TestNewLeavesDriverDisabled(t *testing.T) {
	r := newRig(t, 1000, 500)
	if r.motor.IsEnabled() {
		t.Error("IsEnabled() = true after New, want false")
	}
	if !r.enable.Get() {
		t.Error("enable line low after New, want high (disabled)")
	}
	if r.step.Get() {
		t.Error("step line high after New, want low")
	}
}

func TestStepCountAndPulseShape(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(400)
	r.runToTarget(t)

	if got := r.step.Rises(); got != 400 {
		t.Errorf("step rising edges = %d, want 400", got)
	}
	if r.step.Get() {
		t.Error("step line left high after move")
	}
	if got := r.motor.Position(); got != 400 {
		t.Errorf("Position() = %d, want 400", got)
	}
	if got := r.motor.Velocity(); got != 0 {
		t.Errorf("Velocity() = %v after move, want 0", got)
	}
}

// A 400 step move at acceleration 500 with a generous speed limit is a
// triangular profile; it cannot complete faster than 2*sqrt(L/a) = 1.789s.
func TestTriangularMoveDuration(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(400)
	elapsed := r.runToTarget(t)

	if elapsed < 1_788_000 {
		t.Errorf("move finished in %dµs, faster than the acceleration limit allows (1788854µs)", elapsed)
	}
	if elapsed > 1_900_000 {
		t.Errorf("move took %dµs, want under 1900000µs", elapsed)
	}
}

// With acceleration effectively unlimited the profile is cruise bound and the
// move takes steps/max_speed.
func TestCruiseMoveDuration(t *testing.T) {
	r := newRig(t, 100, 1e6)
	r.motor.MoveRelative(100)
	elapsed := r.runToTarget(t)

	if elapsed < 1_000_000 {
		t.Errorf("move finished in %dµs, faster than the speed limit allows (1000000µs)", elapsed)
	}
	if elapsed > 1_050_000 {
		t.Errorf("move took %dµs, want under 1050000µs", elapsed)
	}
}

func TestReverseMove(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(-3)
	r.runToTarget(t)

	if got := r.motor.Position(); got != -3 {
		t.Errorf("Position() = %d, want -3", got)
	}
	if !r.dir.Get() {
		t.Error("dir line low during reverse move, want high")
	}
	if got := r.step.Rises(); got != 3 {
		t.Errorf("step rising edges = %d, want 3", got)
	}
}

func TestVelocitySignTracksDirection(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(-50)

	var sawNegative bool
	for i := 0; r.motor.Moving(); i++ {
		if i > 5_000_000 {
			t.Fatal("motor never reached target")
		}
		r.motor.Tick()
		if r.motor.Velocity() < 0 {
			sawNegative = true
		}
		if r.motor.Velocity() > 0 {
			t.Fatalf("Velocity() = %v during reverse move, want <= 0", r.motor.Velocity())
		}
		r.clock.Advance(5)
	}
	if !sawNegative {
		t.Error("velocity never went negative during reverse move")
	}
}

func TestEnableIsActiveLow(t *testing.T) {
	r := newRig(t, 1000, 500)

	r.motor.Enable(true)
	if r.enable.Get() {
		t.Error("enable line high after Enable(true), want low")
	}
	if !r.motor.IsEnabled() {
		t.Error("IsEnabled() = false after Enable(true)")
	}

	r.motor.Enable(false)
	if !r.enable.Get() {
		t.Error("enable line low after Enable(false), want high")
	}
}

// Reversing the target mid-move latches the new direction, restarts the ramp
// from rest and still lands exactly on the new target.
func TestReversalMidMove(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(400)

	for i := 0; r.motor.Position() < 50; i++ {
		if i > 5_000_000 {
			t.Fatal("motor never got underway")
		}
		r.motor.Tick()
		r.clock.Advance(5)
	}

	r.motor.MoveRelative(-500)
	if got := r.motor.Target(); got != -100 {
		t.Fatalf("Target() = %d after reversal, want -100", got)
	}
	r.runToTarget(t)

	if got := r.motor.Position(); got != -100 {
		t.Errorf("Position() = %d, want -100", got)
	}
	if !r.dir.Get() {
		t.Error("dir line low after reverse motion, want high")
	}
	if got := r.motor.Velocity(); got != 0 {
		t.Errorf("Velocity() = %v at target, want 0", got)
	}
}

func TestMoveRelativeAccumulates(t *testing.T) {
	r := newRig(t, 1000, 500)
	r.motor.MoveRelative(10)
	r.motor.MoveRelative(-4)
	if got := r.motor.Target(); got != 6 {
		t.Errorf("Target() = %d, want 6", got)
	}
	r.runToTarget(t)
	if got := r.motor.Position(); got != 6 {
		t.Errorf("Position() = %d, want 6", got)
	}
}
