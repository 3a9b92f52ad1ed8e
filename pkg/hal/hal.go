// Package hal provides the hardware abstraction the feeder core runs on:
// digital pins and a monotonic microsecond clock. Higher layers poll these
// interfaces rather than block, so the same control loop drives real GPIO
// hardware and the simulated device used in tests.
package hal

import "time"

// OutputPin is a single digital output line.
type OutputPin interface {
	// Set drives the line high (true) or low (false).
	Set(high bool)
}

// InputPin is a single digital input line.
type InputPin interface {
	// Get returns true if the line is high.
	Get() bool
}

// Clock provides monotonic non-decreasing time. SleepMicros may overshoot
// but never undershoots.
type Clock interface {
	NowMicros() uint64
	NowMillis() uint64
	SleepMicros(n uint64)
}

// WallClock is a Clock backed by the monotonic system clock.
type WallClock struct {
	start time.Time
}

// NewWallClock returns a Clock whose zero point is the moment of creation.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

func (c *WallClock) NowMicros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

func (c *WallClock) NowMillis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

func (c *WallClock) SleepMicros(n uint64) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}
