// Package supervisor runs the single-threaded cooperative loop that ties the
// feeder together. Each iteration services the transport, advances the
// dispense state machine, advances motion, and emits periodic telemetry.
// Components are owned by their packages; the supervisor only sequences them.
package supervisor

import (
	"context"

	"smartfeeder-go/pkg/dispense"
	"smartfeeder-go/pkg/hal"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/scale"
	"smartfeeder-go/pkg/stepper"
	"smartfeeder-go/pkg/transport"
)

// idleYieldUS is the per-iteration yield while no motion is in progress.
// During motion the yield collapses to zero so step timing dominates.
const idleYieldUS = 10_000

// Config holds the supervised components.
type Config struct {
	Clock     hal.Clock
	Motor     *stepper.Motor
	Scale     *scale.Scale
	Dispenser *dispense.Controller
	Transport transport.Transport
	Log       *log.Logger

	PublishPeriodMS uint64
	SampleCount     int
}

// Supervisor is the device scheduler.
type Supervisor struct {
	clock     hal.Clock
	motor     *stepper.Motor
	scale     *scale.Scale
	dispenser *dispense.Controller
	transport transport.Transport
	log       *log.Logger

	publishPeriodMS uint64
	sampleCount     int
	lastPublish     uint64 // ms
}

// New returns a supervisor over the given components.
func New(cfg Config) *Supervisor {
	if cfg.Log == nil {
		cfg.Log = log.New("supervisor")
	}
	if cfg.SampleCount < 1 {
		cfg.SampleCount = 10
	}
	return &Supervisor{
		clock:           cfg.Clock,
		motor:           cfg.Motor,
		scale:           cfg.Scale,
		dispenser:       cfg.Dispenser,
		transport:       cfg.Transport,
		log:             cfg.Log,
		publishPeriodMS: cfg.PublishPeriodMS,
		sampleCount:     cfg.SampleCount,
	}
}

// Run executes the loop until the context is cancelled. Ordering within one
// iteration is fixed: transport, dispenser, motor, telemetry.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.transport.Start(); err != nil {
		return err
	}
	defer s.transport.Stop()

	s.lastPublish = s.clock.NowMillis()
	s.log.Info("supervisor loop started")

	for ctx.Err() == nil {
		s.serviceCommands()
		s.dispenser.Tick()
		moving := s.motor.Tick()
		s.publishIfDue()
		if !moving {
			s.clock.SleepMicros(idleYieldUS)
		}
	}

	s.log.Info("supervisor loop stopped")
	return nil
}

// serviceCommands drains every command currently queued on the transport.
func (s *Supervisor) serviceCommands() {
	for {
		select {
		case cmd := <-s.transport.Commands():
			s.handleCommand(cmd)
		default:
			return
		}
	}
}

func (s *Supervisor) handleCommand(cmd transport.Command) {
	if cmd.Name != transport.CommandDispense {
		s.log.WithField("command", cmd.Name).Warn("ignoring unknown command")
		return
	}

	respond := cmd.Respond
	_, err := s.dispenser.Submit(func(o dispense.Outcome) {
		if respond != nil {
			respond(o.String())
		}
		if o == dispense.OutcomeCompleted {
			// One unsolicited weight sample right after the portion
			// has settled on the scale.
			s.publishWeight()
		}
	})
	if err == dispense.ErrBusy {
		s.log.Warn("dispense refused, request already in flight")
		if respond != nil {
			respond("busy")
		}
	}
}

func (s *Supervisor) publishIfDue() {
	// A scale read takes whole milliseconds, far too long to stall step
	// generation or a settling portion. While a dispense is in flight the
	// publish is deferred; it stays due and fires on the next idle pass,
	// and the post-dispense sample covers the interesting reading anyway.
	if s.motor.Moving() || s.dispenser.CurrentState() != dispense.StateIdle {
		return
	}
	if s.clock.NowMillis()-s.lastPublish >= s.publishPeriodMS {
		s.publishWeight()
	}
}

// publishWeight emits one telemetry sample. A scale that stays NOT_READY
// reports 0 so telemetry stays monotonic for the caretaker's UI. While the
// transport is disconnected nothing is published and the publish timer is
// left due, so telemetry resumes immediately on reconnect.
func (s *Supervisor) publishWeight() {
	if !s.transport.Connected() {
		return
	}
	grams, err := s.scale.Units(s.sampleCount)
	if err != nil {
		s.log.WithError(err).Warn("weight sample failed, reporting 0")
		grams = 0
	}
	if err := s.transport.PublishWeight(grams); err != nil {
		s.log.WithError(err).Warn("weight publish failed")
		return
	}
	s.lastPublish = s.clock.NowMillis()
}
