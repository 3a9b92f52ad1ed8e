//go:build linux

// feederd is the smart feeder firmware daemon. It parses the device
// configuration, requests the GPIO lines, tares the scale and then hands
// control to the supervisor loop until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartfeeder-go/pkg/chute"
	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/dispense"
	"smartfeeder-go/pkg/hal"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/scale"
	"smartfeeder-go/pkg/stepper"
	"smartfeeder-go/pkg/supervisor"
	"smartfeeder-go/pkg/transport"
	"smartfeeder-go/pkg/transport/console"
	"smartfeeder-go/pkg/transport/mqttfeed"
)

func main() {
	configPath := flag.String("config", "/etc/smartfeeder/feeder.cfg", "device configuration file")
	logFile := flag.String("logfile", "", "write log output to this file instead of stderr")
	trace := flag.Bool("trace", false, "enable debug logging")
	flag.Parse()

	logger := log.New("feederd")
	log.ConfigureFromEnv(logger)
	if *trace {
		logger.SetLevel(log.DEBUG)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unable to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetWriter(f)
		logger.SetColorize(false)
	}

	cfg, err := config.ParseFeederConfig(*configPath)
	if err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			logger.Error("invalid configuration: %s", cerr.Error())
		} else {
			logger.WithError(err).Error("unable to load configuration")
		}
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("feederd exiting on error")
		os.Exit(1)
	}
}

func run(cfg *config.FeederConfig, logger *log.Logger) error {
	chip, err := hal.OpenChip(cfg.GPIOChip)
	if err != nil {
		return err
	}
	defer chip.Close()

	clock := hal.NewWallClock()

	stepLine, err := requestOutput(chip, cfg.Stepper.StepPin, "feeder-step", false)
	if err != nil {
		return err
	}
	defer stepLine.Close()
	dirLine, err := requestOutput(chip, cfg.Stepper.DirPin, "feeder-dir", false)
	if err != nil {
		return err
	}
	defer dirLine.Close()
	// The driver enable input is active low; high keeps the motor
	// de-energized until a dispense starts.
	enableLine, err := requestOutput(chip, cfg.Stepper.EnablePin, "feeder-enable", true)
	if err != nil {
		return err
	}
	defer enableLine.Close()

	sckLine, err := requestOutput(chip, cfg.Scale.SCKPin, "feeder-sck", false)
	if err != nil {
		return err
	}
	defer sckLine.Close()
	dtLine, err := requestInput(chip, cfg.Scale.DTPin, "feeder-dt")
	if err != nil {
		return err
	}
	defer dtLine.Close()

	chuteLine, err := requestInput(chip, cfg.Chute.Pin, "feeder-chute")
	if err != nil {
		return err
	}
	defer chuteLine.Close()

	motor, err := stepper.New(stepper.Config{
		Step:         stepLine,
		Dir:          dirLine,
		Enable:       enableLine,
		Clock:        clock,
		MaxSpeed:     cfg.Stepper.MaxSpeed,
		Acceleration: cfg.Stepper.Acceleration,
		PulseWidthUS: uint64(cfg.Stepper.PulseWidthUS),
		DirSetupUS:   uint64(cfg.Stepper.DirSetupUS),
	})
	if err != nil {
		return err
	}

	cell := scale.New(scale.Config{
		DT:    dtLine,
		SCK:   sckLine,
		Clock: clock,
		Gain:  scale.GainPulses(cfg.Scale.Gain),
	})
	if err := cell.SetScale(cfg.Scale.CalibrationFactor); err != nil {
		return err
	}
	if err := cell.Tare(cfg.Scale.SampleCount); err != nil {
		// The load cell may still be powering up. The feeder stays usable
		// for dispensing; weight reports start at 0 until it recovers.
		logger.WithError(err).Warn("startup tare failed")
	}

	guard := chute.New(chute.Config{
		Pin:        chuteLine,
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

	logger.Info("feeder starting")
	return sup.Run(ctx)
}

func requestOutput(chip *hal.Chip, pin config.Pin, consumer string, initial bool) (*hal.Line, error) {
	offset, err := hal.LineOffset(pin.Name)
	if err != nil {
		return nil, err
	}
	return chip.RequestLine(hal.LineRequest{
		Offset:    offset,
		Output:    true,
		ActiveLow: pin.Invert,
		Initial:   initial,
	}, consumer)
}

func requestInput(chip *hal.Chip, pin config.Pin, consumer string) (*hal.Line, error) {
	offset, err := hal.LineOffset(pin.Name)
	if err != nil {
		return nil, err
	}
	return chip.RequestLine(hal.LineRequest{
		Offset:    offset,
		ActiveLow: pin.Invert,
		PullUp:    pin.Pullup > 0,
		PullDown:  pin.Pullup < 0,
	}, consumer)
}
