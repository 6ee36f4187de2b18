package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// DefaultBufferSize is the number of outbound messages held while offline.
const DefaultBufferSize = 256

// ClientOptions configures a RealClient.
type ClientOptions struct {
	Broker     string
	ClientID   string
	BufferSize int
	Logger     *zap.Logger
}

// RealClient talks to an actual MQTT broker. Inbound batches from the units
// topic are queued in an Inbox; outbound messages published while the
// connection is down are queued and replayed on reconnect.
type RealClient struct {
	client paho.Client
	inbox  *Inbox
	out    *outbox
	logger *zap.Logger
}

// NewRealClient connects to the broker. A broker that is unreachable at
// startup is not fatal: the client keeps retrying and buffers meanwhile.
func NewRealClient(opts ClientOptions) (*RealClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	c := &RealClient{
		inbox:  NewInbox(logger),
		logger: logger,
	}
	c.out = newOutbox(size, c.send, logger)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(pahoOpts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("mqtt: broker not reachable yet, buffering", zap.String("broker", opts.Broker))
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	token := client.Subscribe(TopicUnits, 1, func(_ paho.Client, msg paho.Message) {
		c.inbox.Deliver(msg.Payload())
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Error("mqtt: subscribe failed", zap.String("topic", TopicUnits), zap.Error(token.Error()))
	}

	c.out.resume()
	c.logger.Info("mqtt: connected")
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.out.lost()
	c.logger.Warn("mqtt: connection lost", zap.Error(err))
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// Drain returns the inbound messages received since the previous call.
func (c *RealClient) Drain() []logic.Message {
	return c.inbox.Drain()
}

// Publish sends a command batch to the units.
func (c *RealClient) Publish(batch Batch) error {
	m, err := commandMsg(batch)
	if err != nil {
		return err
	}
	return c.out.publish(m)
}

// commandMsg serializes a batch for the commands topic.
// QoS 1 (at-least-once), not retained.
func commandMsg(batch Batch) (bufferedMsg, error) {
	payload, err := FormatBatch(batch)
	if err != nil {
		return bufferedMsg{}, fmt.Errorf("format batch: %w", err)
	}
	modeOnly := batch.ModeOnly()
	return bufferedMsg{
		topic:     TopicCommands,
		payload:   payload,
		qos:       1,
		essential: !modeOnly,
		modeOnly:  modeOnly,
	}, nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.out.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.out.isConnected()
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	return c.out.buffered()
}

// Rejected returns how many inbound messages failed to decode.
func (c *RealClient) Rejected() int {
	return c.inbox.Rejected()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
