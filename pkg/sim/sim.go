// Package sim provides a simulated feeder device: a manually advanced clock,
// recording pins, an HX711 line model and a hopper model. The supervisor loop
// runs against it unchanged, which is how the control loop is tested and how
// cmd/feeder-sim works without hardware.
package sim

import "sync"

// Clock is a hal.Clock whose time only moves when advanced. SleepMicros
// advances the clock itself, so a loop that yields through the clock makes
// progress without wall time passing.
type Clock struct {
	mu  sync.Mutex
	now uint64 // µs
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NowMillis() uint64 {
	return c.NowMicros() / 1000
}

func (c *Clock) SleepMicros(n uint64) {
	c.Advance(n)
}

// Advance moves the clock forward by n microseconds.
func (c *Clock) Advance(n uint64) {
	c.mu.Lock()
	c.now += n
	c.mu.Unlock()
}

// Pin is a recording digital line usable as either input or output. Rising
// edges are counted and can trigger a hook, which is how the HX711 model and
// the hopper observe SCK and STEP activity.
type Pin struct {
	mu     sync.Mutex
	level  bool
	rises  uint64
	onRise func()
}

// NewPin returns a pin at the given initial level.
func NewPin(high bool) *Pin {
	return &Pin{level: high}
}

func (p *Pin) Set(high bool) {
	p.mu.Lock()
	rising := high && !p.level
	p.level = high
	if rising {
		p.rises++
	}
	hook := p.onRise
	p.mu.Unlock()
	if rising && hook != nil {
		hook()
	}
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// SetLevel drives the line from the simulated device side.
func (p *Pin) SetLevel(high bool) {
	p.mu.Lock()
	if high && !p.level {
		p.rises++
	}
	p.level = high
	p.mu.Unlock()
}

// Rises returns the number of rising edges seen so far.
func (p *Pin) Rises() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rises
}

// OnRise installs a hook invoked after each rising edge.
func (p *Pin) OnRise(fn func()) {
	p.mu.Lock()
	p.onRise = fn
	p.mu.Unlock()
}
