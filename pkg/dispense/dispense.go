// Package dispense coordinates one food portion: interlock check, motor
// enable, acceleration-limited auger motion, and a settle delay before the
// confirming weight reading. Exactly one request is in flight at a time.
package dispense

import (
	"errors"

	"smartfeeder-go/pkg/chute"
	"smartfeeder-go/pkg/hal"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/stepper"
)

// ErrBusy is returned by Submit while a request is already in flight.
var ErrBusy = errors.New("dispense: request already in flight")

// Outcome is the terminal (or pending) result of a dispense request.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeAccepted
	OutcomeRejectedObstructed
	OutcomeCompleted
	OutcomeFaulted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejectedObstructed:
		return "rejected_obstructed"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the request lifecycle.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeRejectedObstructed, OutcomeCompleted, OutcomeFaulted:
		return true
	}
	return false
}

// State is the controller's position in the dispense cycle.
type State int

const (
	StateIdle State = iota
	StateGuarding
	StateMoving
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGuarding:
		return "guarding"
	case StateMoving:
		return "moving"
	case StateSettling:
		return "settling"
	default:
		return "unknown"
	}
}

// Request is one dispense attempt.
type Request struct {
	ID          uint64
	Steps       int64
	SubmittedAt uint64 // ms
	Outcome     Outcome

	respond func(Outcome)
}

// Config holds the controller's collaborators and portion parameters.
type Config struct {
	Motor *stepper.Motor
	Chute *chute.Sensor
	Clock hal.Clock
	Log   *log.Logger

	DispenseSteps int64
	SettleMS      uint64

	// OnFinished is invoked once per request with its terminal outcome,
	// after the requester has been answered. The simulator uses it to log
	// the hopper state after each portion.
	OnFinished func(*Request)
}

// Controller is the single-owner dispense state machine. Only the supervisor
// goroutine may call its methods.
type Controller struct {
	motor *stepper.Motor
	chute *chute.Sensor
	clock hal.Clock
	log   *log.Logger

	steps      int64
	settleMS   uint64
	onFinished func(*Request)

	state       State
	active      *Request
	nextID      uint64
	settleUntil uint64 // ms
}

// New returns an idle controller.
func New(cfg Config) *Controller {
	if cfg.Log == nil {
		cfg.Log = log.New("dispense")
	}
	return &Controller{
		motor:      cfg.Motor,
		chute:      cfg.Chute,
		clock:      cfg.Clock,
		log:        cfg.Log,
		steps:      cfg.DispenseSteps,
		settleMS:   cfg.SettleMS,
		onFinished: cfg.OnFinished,
	}
}

// CurrentState returns the controller state.
func (c *Controller) CurrentState() State {
	return c.state
}

// Submit starts a new dispense request. The respond callback receives the
// terminal outcome exactly once. While a request is in flight, Submit
// returns ErrBusy and changes nothing.
func (c *Controller) Submit(respond func(Outcome)) (uint64, error) {
	if c.state != StateIdle {
		return 0, ErrBusy
	}
	c.nextID++
	c.active = &Request{
		ID:          c.nextID,
		Steps:       c.steps,
		SubmittedAt: c.clock.NowMillis(),
		Outcome:     OutcomePending,
		respond:     respond,
	}
	c.state = StateGuarding
	c.log.WithField("request", c.nextID).Info("dispense submitted")
	return c.nextID, nil
}

// Tick advances the state machine by at most one transition.
func (c *Controller) Tick() {
	switch c.state {
	case StateIdle:

	case StateGuarding:
		// The interlock is sampled exactly once here. Once the auger
		// turns, aborting mid-rotation would jam it, so motion is never
		// re-checked.
		if c.chute.Obstructed() {
			c.log.WithField("request", c.active.ID).Warn("chute obstructed, dispense refused")
			c.finish(OutcomeRejectedObstructed)
			return
		}
		c.active.Outcome = OutcomeAccepted
		c.motor.Enable(true)
		c.motor.MoveRelative(c.steps)
		c.state = StateMoving

	case StateMoving:
		if c.motor.Moving() {
			return
		}
		c.motor.Enable(false)
		c.settleUntil = c.clock.NowMillis() + c.settleMS
		c.state = StateSettling

	case StateSettling:
		if c.clock.NowMillis() < c.settleUntil {
			return
		}
		c.finish(OutcomeCompleted)
	}
}

func (c *Controller) finish(o Outcome) {
	req := c.active
	req.Outcome = o
	c.active = nil
	c.state = StateIdle

	c.log.WithFields(log.Fields{"request": req.ID, "outcome": o.String()}).Info("dispense finished")
	if req.respond != nil {
		req.respond(o)
	}
	if c.onFinished != nil {
		c.onFinished(req)
	}
}
