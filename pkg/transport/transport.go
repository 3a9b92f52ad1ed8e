// Package transport defines the command/telemetry surface between the feeder
// and its caretaker. Concrete transports (MQTT pub/sub, embedded HTTP
// console) live in subpackages; the supervisor only sees this interface.
package transport

import (
	"errors"
	"strconv"
)

// ErrDisconnected is returned when a publish is attempted while the
// underlying transport has no connection.
var ErrDisconnected = errors.New("transport: disconnected")

// CommandDispense is the only required inbound command.
const CommandDispense = "dispense"

// Command is one inbound command. Respond delivers the outcome text back on
// the channel the command arrived on; it must be called at most once and may
// be called from the supervisor goroutine.
type Command struct {
	Name    string
	Respond func(outcome string)
}

// Transport is a connected command/telemetry channel. Implementations
// reconnect on their own with bounded back-off and never terminate the
// device.
type Transport interface {
	// Start brings the transport up. Connection failures after a
	// successful Start are handled internally with retry.
	Start() error

	// Stop tears the transport down.
	Stop() error

	// Commands is the stream of inbound commands. Commands arriving
	// faster than the supervisor drains them are dropped (at-most-once).
	Commands() <-chan Command

	// PublishWeight emits one telemetry weight in grams.
	PublishWeight(grams float64) error

	// Connected reports whether telemetry can currently be delivered.
	Connected() bool
}

// FormatWeight renders grams with two fractional digits, the wire format
// shared by every transport.
func FormatWeight(grams float64) string {
	return strconv.FormatFloat(grams, 'f', 2, 64)
}
