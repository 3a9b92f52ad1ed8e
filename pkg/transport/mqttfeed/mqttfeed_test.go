package mqttfeed

import (
	"testing"

	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/transport"
)

// testMessage satisfies mqtt.Message without a broker.
type testMessage struct {
	payload string
}

func (m testMessage) Duplicate() bool   { return false }
func (m testMessage) Qos() byte         { return 0 }
func (m testMessage) Retained() bool    { return false }
func (m testMessage) Topic() string     { return "pet/feeder/cmd" }
func (m testMessage) MessageID() uint16 { return 0 }
func (m testMessage) Payload() []byte   { return []byte(m.payload) }
func (m testMessage) Ack()              {}

func newTestClient() *Client {
	return New(config.MQTTConfig{
		Broker:        "tcp://127.0.0.1:1883",
		ClientID:      "test",
		CommandTopic:  "pet/feeder/cmd",
		WeightTopic:   "pet/feeder/weight",
		ResponseTopic: "pet/feeder/cmd/response",
	}, nil)
}

func TestInboundMessageBecomesCommand(t *testing.T) {
	c := newTestClient()
	c.onMessage(nil, testMessage{payload: "dispense"})

	select {
	case cmd := <-c.Commands():
		if cmd.Name != transport.CommandDispense {
			t.Errorf("command name = %q, want %q", cmd.Name, transport.CommandDispense)
		}
		if cmd.Respond == nil {
			t.Error("command has no Respond callback")
		}
	default:
		t.Fatal("no command queued after onMessage")
	}
}

func TestCommandOverflowIsDropped(t *testing.T) {
	c := newTestClient()
	for i := 0; i < commandBuffer+5; i++ {
		c.onMessage(nil, testMessage{payload: "dispense"})
	}
	if got := len(c.commands); got != commandBuffer {
		t.Errorf("queued commands = %d, want %d", got, commandBuffer)
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	c := newTestClient()
	// Never started, so the connection is closed.
	if err := c.PublishWeight(1.5); err != transport.ErrDisconnected {
		t.Errorf("PublishWeight() error = %v, want %v", err, transport.ErrDisconnected)
	}
}
