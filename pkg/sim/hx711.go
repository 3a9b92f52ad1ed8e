package sim

import "sync"

// HX711 models the two-wire side of an HX711 load-cell ADC. The reader
// clocks SCK; the model shifts the current 24-bit sample out on DT, MSB
// first, and treats pulses beyond the 24th as gain selection. DT low means
// a sample is ready, matching the chip.
type HX711 struct {
	DT  *Pin
	SCK *Pin

	mu         sync.Mutex
	queue      []int32
	sample     uint32
	pulses     int
	gainPulses int
	// SampleFunc, when set, supplies a sample whenever the queue is empty,
	// so the ADC never runs dry.
	SampleFunc func() int32
}

// NewHX711 returns a model with the given number of gain pulses (1-3).
// The reader must clock exactly 24+gainPulses edges per conversion.
func NewHX711(gainPulses int) *HX711 {
	h := &HX711{
		DT:         NewPin(true), // high = not ready
		SCK:        NewPin(false),
		gainPulses: gainPulses,
	}
	h.SCK.OnRise(h.clock)
	return h
}

// QueueSamples appends raw conversions and marks the ADC ready.
func (h *HX711) QueueSamples(samples ...int32) {
	h.mu.Lock()
	h.queue = append(h.queue, samples...)
	h.mu.Unlock()
	h.DT.SetLevel(false)
}

func (h *HX711) next() (int32, bool) {
	if len(h.queue) > 0 {
		s := h.queue[0]
		h.queue = h.queue[1:]
		return s, true
	}
	if h.SampleFunc != nil {
		return h.SampleFunc(), true
	}
	return 0, false
}

func (h *HX711) clock() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pulses == 0 {
		s, ok := h.next()
		if !ok {
			h.DT.SetLevel(true)
			return
		}
		h.sample = uint32(s) & 0xffffff
	}

	h.pulses++
	switch {
	case h.pulses <= 24:
		bit := (h.sample >> uint(24-h.pulses)) & 1
		h.DT.SetLevel(bit == 1)
	case h.pulses >= 24+h.gainPulses:
		// Conversion complete. DT signals readiness for the next one.
		h.pulses = 0
		ready := len(h.queue) > 0 || h.SampleFunc != nil
		h.DT.SetLevel(!ready)
	}
}
