package sim

import "sync"

// Hopper models the food column sitting on the load cell. Every auger step
// observed on the STEP line drops a fixed amount of food onto the scale, and
// RawSample converts the accumulated weight back into HX711 counts.
type Hopper struct {
	mu           sync.Mutex
	grams        float64
	gramsPerStep float64
	tareCounts   float64
	countsPerG   float64
}

// HopperConfig describes the simulated scale and auger throughput.
type HopperConfig struct {
	InitialGrams  float64
	GramsPerStep  float64
	TareCounts    float64 // raw counts at zero grams
	CountsPerGram float64 // calibration factor, may be negative
}

func NewHopper(cfg HopperConfig) *Hopper {
	return &Hopper{
		grams:        cfg.InitialGrams,
		gramsPerStep: cfg.GramsPerStep,
		tareCounts:   cfg.TareCounts,
		countsPerG:   cfg.CountsPerGram,
	}
}

// Attach makes the hopper track auger motion on the given STEP pin.
func (h *Hopper) Attach(step *Pin) {
	step.OnRise(func() {
		h.mu.Lock()
		h.grams += h.gramsPerStep
		h.mu.Unlock()
	})
}

// Grams returns the current weight on the scale.
func (h *Hopper) Grams() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grams
}

// RawSample returns the HX711 counts for the current weight.
func (h *Hopper) RawSample() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int32(h.tareCounts + h.grams*h.countsPerG)
}
