// feeder-sim runs the complete firmware stack against the simulated device
// from pkg/sim: a modeled HX711, a hopper that gains weight as the auger
// turns, and plain recording pins. No hardware is required, which makes it
// the quickest way to exercise the transports end to end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"smartfeeder-go/pkg/chute"
	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/dispense"
	"smartfeeder-go/pkg/hal"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/scale"
	"smartfeeder-go/pkg/sim"
	"smartfeeder-go/pkg/stepper"
	"smartfeeder-go/pkg/supervisor"
	"smartfeeder-go/pkg/transport"
	"smartfeeder-go/pkg/transport/console"
	"smartfeeder-go/pkg/transport/mqttfeed"
)

// defaultConfig drives the simulator when no -config file is given. The pin
// names are placeholders; the simulator wires its own pins.
const defaultConfig = `
[feeder]
dispense_steps: 400
settle_ms: 1000
publish_period_ms: 30000

[stepper]
step_pin: gpio17
dir_pin: gpio27
enable_pin: gpio22
max_speed: 1000
acceleration: 500

[scale]
dt_pin: ^gpio5
sck_pin: gpio6
calibration_factor: 420.0
sample_count: 10

[chute]
pin: ^gpio21

[http]
bind: :8080
`

func main() {
	configPath := flag.String("config", "", "device configuration file (built-in defaults when empty)")
	gramsPerStep := flag.Float64("grams-per-step", 0.0125, "simulated food dropped per auger step")
	trace := flag.Bool("trace", false, "enable debug logging")
	flag.Parse()

	logger := log.New("feeder-sim")
	log.ConfigureFromEnv(logger)
	if *trace {
		logger.SetLevel(log.DEBUG)
	}

	var cfg *config.FeederConfig
	var err error
	if *configPath != "" {
		cfg, err = config.ParseFeederConfig(*configPath)
	} else {
		cfg, err = config.ParseFeederConfigString(defaultConfig)
	}
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	// Real pacing, simulated pins. The supervisor yields through the clock,
	// so a wall clock makes the simulator run at device speed.
	clock := hal.NewWallClock()

	stepPin := sim.NewPin(false)
	dirPin := sim.NewPin(false)
	enablePin := sim.NewPin(true)
	chutePin := sim.NewPin(true) // high = clear

	hopper := sim.NewHopper(sim.HopperConfig{
		GramsPerStep:  *gramsPerStep,
		TareCounts:    8421,
		CountsPerGram: cfg.Scale.CalibrationFactor,
	})
	hopper.Attach(stepPin)

	adc := sim.NewHX711(scale.GainPulses(cfg.Scale.Gain))
	adc.SampleFunc = hopper.RawSample
	adc.DT.SetLevel(false) // first conversion is ready immediately

	motor, err := stepper.New(stepper.Config{
		Step:         stepPin,
		Dir:          dirPin,
		Enable:       enablePin,
		Clock:        clock,
		MaxSpeed:     cfg.Stepper.MaxSpeed,
		Acceleration: cfg.Stepper.Acceleration,
		PulseWidthUS: uint64(cfg.Stepper.PulseWidthUS),
		DirSetupUS:   uint64(cfg.Stepper.DirSetupUS),
	})
	if err != nil {
		logger.WithError(err).Error("invalid stepper parameters")
		os.Exit(1)
	}

	cell := scale.New(scale.Config{
		DT:    adc.DT,
		SCK:   adc.SCK,
		Clock: clock,
		Gain:  scale.GainPulses(cfg.Scale.Gain),
	})
	if err := cell.SetScale(cfg.Scale.CalibrationFactor); err != nil {
		logger.WithError(err).Error("invalid calibration factor")
		os.Exit(1)
	}
	if err := cell.Tare(cfg.Scale.SampleCount); err != nil {
		logger.WithError(err).Warn("startup tare failed")
	}

	guard := chute.New(chute.Config{
		Pin:        chutePin,
		Clock:      clock,
		DebounceMS: uint64(cfg.Chute.DebounceMS),
	})

	dispenser := dispense.New(dispense.Config{
		Motor:         motor,
		Chute:         guard,
		Clock:         clock,
		Log:           logger.WithPrefix("dispense"),
		DispenseSteps: int64(cfg.DispenseSteps),
		SettleMS:      uint64(cfg.SettleMS),
		OnFinished: func(req *dispense.Request) {
			logger.WithFields(log.Fields{
				"request": req.ID,
				"outcome": req.Outcome.String(),
				"hopper":  hopper.Grams(),
			}).Info("simulated dispense finished")
		},
	})

	var link transport.Transport
	if cfg.MQTT != nil {
		link = mqttfeed.New(*cfg.MQTT, logger.WithPrefix("mqtt"))
	} else {
		link = console.New(*cfg.HTTP, logger.WithPrefix("console"))
	}

	sup := supervisor.New(supervisor.Config{
		Clock:           clock,
		Motor:           motor,
		Scale:           cell,
		Dispenser:       dispenser,
		Transport:       link,
		Log:             logger.WithPrefix("supervisor"),
		PublishPeriodMS: uint64(cfg.PublishPeriodMS),
		SampleCount:     cfg.Scale.SampleCount,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("simulated feeder starting")
	if err := sup.Run(ctx); err != nil {
		logger.WithError(err).Error("simulator exited on error")
		os.Exit(1)
	}
}
