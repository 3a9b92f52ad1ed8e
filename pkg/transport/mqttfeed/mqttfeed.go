// Package mqttfeed is the pub/sub transport: commands arrive on a broker
// topic, outcomes go back on a response topic, and weight telemetry is
// published on its own topic. Payloads are UTF-8 text.
package mqttfeed

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/log"
	"smartfeeder-go/pkg/transport"
)

const (
	connectTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second

	// commandBuffer bounds queued commands. Commands are human-triggered
	// and at-most-once, so overflow is dropped with a log line.
	commandBuffer = 8
)

// Client is a Transport backed by an MQTT broker.
type Client struct {
	cfg      config.MQTTConfig
	cli      mqtt.Client
	log      *log.Logger
	commands chan transport.Command
}

// New builds the client; the broker is not contacted until Start.
func New(cfg config.MQTTConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New("mqtt")
	}
	c := &Client{
		cfg:      cfg,
		log:      logger,
		commands: make(chan transport.Command, commandBuffer),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(retryInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	c.cli = mqtt.NewClient(opts)
	return c
}

// Start begins connecting. With connect-retry enabled the client keeps
// trying in the background, so Start itself does not block on the broker.
func (c *Client) Start() error {
	c.log.WithField("broker", c.cfg.Broker).Info("connecting to broker")
	c.cli.Connect()
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() error {
	c.cli.Disconnect(250)
	return nil
}

// Commands returns the inbound command stream.
func (c *Client) Commands() <-chan transport.Command {
	return c.commands
}

// Connected reports whether the broker connection is open.
func (c *Client) Connected() bool {
	return c.cli.IsConnectionOpen()
}

// PublishWeight publishes one weight sample on the weight topic.
func (c *Client) PublishWeight(grams float64) error {
	if !c.Connected() {
		return transport.ErrDisconnected
	}
	return c.publish(c.cfg.WeightTopic, transport.FormatWeight(grams))
}

func (c *Client) publish(topic, payload string) error {
	tok := c.cli.Publish(topic, 0, false, payload)
	tok.WaitTimeout(time.Second)
	if err := tok.Error(); err != nil {
		c.log.WithError(err).WithField("topic", topic).Warn("publish failed")
		return err
	}
	return nil
}

func (c *Client) onConnect(cli mqtt.Client) {
	c.log.WithField("topic", c.cfg.CommandTopic).Info("connected, subscribing")
	tok := cli.Subscribe(c.cfg.CommandTopic, 0, c.onMessage)
	tok.WaitTimeout(time.Second)
	if err := tok.Error(); err != nil {
		c.log.WithError(err).Error("subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.WithError(err).Warn("broker connection lost, retrying every %s", retryInterval)
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd := transport.Command{
		Name: string(msg.Payload()),
		Respond: func(outcome string) {
			c.publish(c.cfg.ResponseTopic, outcome)
		},
	}
	select {
	case c.commands <- cmd:
	default:
		c.log.WithField("command", cmd.Name).Warn("command queue full, dropping")
	}
}
