// Package chute reads the optical obstruction sensor guarding the food
// chute. The raw line is active low: low means something is blocking the
// chute. The reported state changes only after the raw level has held for
// the debounce interval.
package chute

import "smartfeeder-go/pkg/hal"

// State is the debounced condition of the chute.
type State int

const (
	StateClear State = iota
	StateObstructed
)

func (s State) String() string {
	switch s {
	case StateClear:
		return "clear"
	case StateObstructed:
		return "obstructed"
	default:
		return "unknown"
	}
}

const defaultDebounceMS = 20

// Config holds the sensor pin, clock and debounce interval.
type Config struct {
	Pin        hal.InputPin
	Clock      hal.Clock
	DebounceMS uint64
}

// Sensor is a debounced binary obstruction sensor.
type Sensor struct {
	pin      hal.InputPin
	clock    hal.Clock
	debounce uint64 // ms

	raw        bool // last raw level seen
	stable     bool // debounced level
	lastChange uint64
}

// New samples the line once to seed both the raw and debounced levels.
func New(cfg Config) *Sensor {
	if cfg.DebounceMS == 0 {
		cfg.DebounceMS = defaultDebounceMS
	}
	level := cfg.Pin.Get()
	return &Sensor{
		pin:        cfg.Pin,
		clock:      cfg.Clock,
		debounce:   cfg.DebounceMS,
		raw:        level,
		stable:     level,
		lastChange: cfg.Clock.NowMillis(),
	}
}

// poll folds the current raw level into the debounced state.
func (s *Sensor) poll() {
	now := s.clock.NowMillis()
	level := s.pin.Get()
	if level != s.raw {
		s.raw = level
		s.lastChange = now
	}
	if s.raw != s.stable && now-s.lastChange >= s.debounce {
		s.stable = s.raw
	}
}

// Obstructed reports the debounced state; low level means obstructed.
func (s *Sensor) Obstructed() bool {
	s.poll()
	return !s.stable
}

// CurrentState returns the debounced state for logging and the console.
func (s *Sensor) CurrentState() State {
	if s.Obstructed() {
		return StateObstructed
	}
	return StateClear
}
