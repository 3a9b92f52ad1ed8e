package scale_test

import (
	"math"
	"testing"

	"smartfeeder-go/pkg/scale"
	"smartfeeder-go/pkg/sim"
)

func newScale(t *testing.T, gainPulses int) (*scale.Scale, *sim.HX711, *sim.Clock) {
	t.Helper()
	clock := sim.NewClock()
	adc := sim.NewHX711(gainPulses)
	s := scale.New(scale.Config{
		DT:    adc.DT,
		SCK:   adc.SCK,
		Clock: clock,
		Gain:  gainPulses,
	})
	return s, adc, clock
}

func TestGainPulses(t *testing.T) {
	cases := []struct {
		gain, want int
	}{
		{128, scale.Gain128ChanA},
		{64, scale.Gain64ChanA},
		{32, scale.Gain32ChanB},
		{0, scale.Gain128ChanA},
	}
	for _, c := range cases {
		if got := scale.GainPulses(c.gain); got != c.want {
			t.Errorf("GainPulses(%d) = %d, want %d", c.gain, got, c.want)
		}
	}
}

func TestReadRawSignExtend(t *testing.T) {
	s, adc, _ := newScale(t, scale.Gain128ChanA)
	adc.QueueSamples(-1, -8388608, 8388607, 0, 42)

	want := []int32{-1, -8388608, 8388607, 0, 42}
	for i, w := range want {
		raw, err := s.ReadRaw()
		if err != nil {
			t.Fatalf("ReadRaw() #%d error = %v", i, err)
		}
		if raw != w {
			t.Errorf("ReadRaw() #%d = %d, want %d", i, raw, w)
		}
	}
}

func TestReadRawNotReady(t *testing.T) {
	s, _, _ := newScale(t, scale.Gain128ChanA)
	// Nothing queued and no sample source: DOUT stays high.
	if _, err := s.ReadRaw(); err != scale.ErrNotReady {
		t.Errorf("ReadRaw() error = %v, want %v", err, scale.ErrNotReady)
	}
}

func TestSetScaleRejectsZero(t *testing.T) {
	s, _, _ := newScale(t, scale.Gain128ChanA)
	if err := s.SetScale(0); err != scale.ErrZeroScale {
		t.Errorf("SetScale(0) error = %v, want %v", err, scale.ErrZeroScale)
	}
	if err := s.SetScale(-7050); err != nil {
		t.Errorf("SetScale(-7050) error = %v, want nil", err)
	}
}

func TestTareStoresMean(t *testing.T) {
	s, adc, _ := newScale(t, scale.Gain128ChanA)
	adc.QueueSamples(90, 100, 110)
	if err := s.Tare(3); err != nil {
		t.Fatalf("Tare() error = %v", err)
	}
	if got := s.TareOffset(); got != 100 {
		t.Errorf("TareOffset() = %d, want 100", got)
	}
}

// A reading below the tare point must never surface as negative grams.
func TestUnitsClampsNegative(t *testing.T) {
	s, adc, _ := newScale(t, scale.Gain128ChanA)
	if err := s.SetScale(-7050); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		adc.QueueSamples(100)
	}
	if err := s.Tare(10); err != nil {
		t.Fatalf("Tare() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		adc.QueueSamples(1805)
	}
	grams, err := s.Units(10)
	if err != nil {
		t.Fatalf("Units() error = %v", err)
	}
	if grams != 0 {
		t.Errorf("Units() = %v, want 0 (clamped)", grams)
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	s, adc, _ := newScale(t, scale.Gain128ChanA)
	const (
		tareCounts = 8421
		factor     = 420.0
		grams      = 25.0
	)
	if err := s.SetScale(factor); err != nil {
		t.Fatal(err)
	}

	adc.SampleFunc = func() int32 { return tareCounts }
	adc.DT.SetLevel(false)
	if err := s.Tare(5); err != nil {
		t.Fatalf("Tare() error = %v", err)
	}

	adc.SampleFunc = func() int32 { return tareCounts + int32(factor*grams) }
	got, err := s.Units(10)
	if err != nil {
		t.Fatalf("Units() error = %v", err)
	}
	if math.Abs(got-grams) > 0.01 {
		t.Errorf("Units() = %v, want %v", got, grams)
	}
}

func TestUnitsPropagatesNotReady(t *testing.T) {
	s, adc, _ := newScale(t, scale.Gain128ChanA)
	adc.QueueSamples(100)
	// One sample queued but three requested: the second read times out.
	if _, err := s.Units(3); err != scale.ErrNotReady {
		t.Errorf("Units() error = %v, want %v", err, scale.ErrNotReady)
	}
}

func TestGainPulseCountOnWire(t *testing.T) {
	for _, gp := range []int{scale.Gain128ChanA, scale.Gain32ChanB, scale.Gain64ChanA} {
		s, adc, _ := newScale(t, gp)
		adc.QueueSamples(1, 2)
		before := adc.SCK.Rises()
		if _, err := s.ReadRaw(); err != nil {
			t.Fatalf("ReadRaw() error = %v", err)
		}
		got := adc.SCK.Rises() - before
		want := uint64(24 + gp)
		if got != want {
			t.Errorf("gain %d: SCK pulses per conversion = %d, want %d", gp, got, want)
		}
	}
}
