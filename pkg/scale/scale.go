// Package scale reads a strain-gauge load cell through an HX711-style 24-bit
// ADC using the bit-banged two-wire protocol, and converts raw counts to
// grams via a tare offset and calibration factor.
package scale

import (
	"errors"
	"math"

	"smartfeeder-go/pkg/hal"
)

// Common errors
var (
	ErrNotReady  = errors.New("scale: adc not ready")
	ErrZeroScale = errors.New("scale: calibration factor must be non-zero")
)

// Gain/channel selection, expressed as the number of extra SCK pulses after
// the 24 data bits.
const (
	Gain128ChanA = 1 // 25 pulses: channel A, gain 128
	Gain32ChanB  = 2 // 26 pulses: channel B, gain 32
	Gain64ChanA  = 3 // 27 pulses: channel A, gain 64
)

// GainPulses maps a configured gain (128, 64, 32) to its pulse count.
func GainPulses(gain int) int {
	switch gain {
	case 32:
		return Gain32ChanB
	case 64:
		return Gain64ChanA
	default:
		return Gain128ChanA
	}
}

const (
	// The HX711's slowest rate is 10 samples/s, so a conversion is due
	// within 100ms. Waits are bounded at a little over one period.
	defaultReadyTimeoutUS = 150_000

	clockHalfPeriodUS = 1
)

// Config holds the protocol pins and calibration for one load cell.
type Config struct {
	DT    hal.InputPin  // DOUT from the ADC, low = sample ready
	SCK   hal.OutputPin // serial clock to the ADC
	Clock hal.Clock

	Gain           int // pulse count, one of the Gain* constants
	ReadyTimeoutUS uint64
}

// Scale is a tared, calibrated load cell. Reads are serialized by the
// supervisor loop; the type itself is not safe for concurrent use.
type Scale struct {
	dt    hal.InputPin
	sck   hal.OutputPin
	clock hal.Clock

	gainPulses   int
	readyTimeout uint64

	scaleFactor float64
	tareOffset  int32
}

// New initializes the protocol pins and returns an uncalibrated scale.
func New(cfg Config) *Scale {
	if cfg.Gain == 0 {
		cfg.Gain = Gain128ChanA
	}
	if cfg.ReadyTimeoutUS == 0 {
		cfg.ReadyTimeoutUS = defaultReadyTimeoutUS
	}
	s := &Scale{
		dt:           cfg.DT,
		sck:          cfg.SCK,
		clock:        cfg.Clock,
		gainPulses:   cfg.Gain,
		readyTimeout: cfg.ReadyTimeoutUS,
		scaleFactor:  1,
	}
	s.sck.Set(false)
	return s
}

// IsReady reports whether the ADC has a conversion available (DOUT low).
func (s *Scale) IsReady() bool {
	return !s.dt.Get()
}

// SetScale stores the calibration factor (counts per gram).
func (s *Scale) SetScale(factor float64) error {
	if factor == 0 {
		return ErrZeroScale
	}
	s.scaleFactor = factor
	return nil
}

// TareOffset returns the stored zero reference in raw counts.
func (s *Scale) TareOffset() int32 {
	return s.tareOffset
}

// ReadRaw clocks out one 24-bit two's complement sample, MSB first, then
// issues the gain-selection pulses for the next conversion. It waits a
// bounded time for the ADC to become ready.
func (s *Scale) ReadRaw() (int32, error) {
	if !s.waitReady() {
		return 0, ErrNotReady
	}

	var raw int32
	for i := 0; i < 24; i++ {
		s.sck.Set(true)
		s.clock.SleepMicros(clockHalfPeriodUS)
		raw <<= 1
		if s.dt.Get() {
			raw |= 1
		}
		s.sck.Set(false)
		s.clock.SleepMicros(clockHalfPeriodUS)
	}
	for i := 0; i < s.gainPulses; i++ {
		s.sck.Set(true)
		s.clock.SleepMicros(clockHalfPeriodUS)
		s.sck.Set(false)
		s.clock.SleepMicros(clockHalfPeriodUS)
	}

	// Sign extend from 24 bits.
	if raw&0x800000 != 0 {
		raw |= -0x1000000
	}
	return raw, nil
}

func (s *Scale) waitReady() bool {
	deadline := s.clock.NowMicros() + s.readyTimeout
	for !s.IsReady() {
		if s.clock.NowMicros() >= deadline {
			return false
		}
		s.clock.SleepMicros(100)
	}
	return true
}

// readAverage reads n raw samples and returns their mean.
func (s *Scale) readAverage(n int) (float64, error) {
	if n < 1 {
		n = 1
	}
	var sum int64
	for i := 0; i < n; i++ {
		raw, err := s.ReadRaw()
		if err != nil {
			return 0, err
		}
		sum += int64(raw)
	}
	return float64(sum) / float64(n), nil
}

// Tare averages n raw samples and stores the result as the zero reference.
func (s *Scale) Tare(n int) error {
	mean, err := s.readAverage(n)
	if err != nil {
		return err
	}
	s.tareOffset = int32(math.Round(mean))
	return nil
}

// Units returns the average of n samples converted to grams. Negative
// physical readings are clamped to zero at this reporting boundary.
func (s *Scale) Units(n int) (float64, error) {
	mean, err := s.readAverage(n)
	if err != nil {
		return 0, err
	}
	grams := (mean - float64(s.tareOffset)) / s.scaleFactor
	if grams < 0 {
		grams = 0
	}
	return grams, nil
}
