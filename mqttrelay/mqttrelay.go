// Package mqttrelay forwards session log entries to an MQTT broker as they
// are appended, so a bench run can be watched from elsewhere.
package mqttrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	sercom "github.com/miniPCB/SerCom2"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

var (
	connectTimeout       = 10 * time.Second // bounds the initial connection
	connectRetryInterval = 5 * time.Second
)

// NewClient creates an MQTT client for brokerURL and connects it. When the
// broker is not reached in time the client is shut down, so it does not keep
// retrying in the background.
func NewClient(brokerURL, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if ok := token.WaitTimeout(connectTimeout); !ok {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return client, nil
}

// Client publishes through a connected paho client.
type Client struct {
	mqtt    mqtt.Client
	QoS     byte
	Timeout time.Duration
}

// NewPublisher wraps a connected client. Messages are sent with QoS 0.
func NewPublisher(c mqtt.Client) *Client {
	return &Client{mqtt: c, Timeout: 5 * time.Second}
}

func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.mqtt.Publish(topic, c.QoS, false, payload)
	if !tok.WaitTimeout(c.Timeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	return tok.Error()
}

// Close disconnects from the broker, waiting up to 250ms for pending work.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
}

// Message is the JSON body of a forwarded entry.
type Message struct {
	ID        string   `json:"id"`
	Session   string   `json:"session,omitempty"`
	Seq       uint64   `json:"seq"`
	Timestamp string   `json:"timestamp"`
	Kind      string   `json:"kind"`
	Category  string   `json:"category,omitempty"`
	Event     string   `json:"event,omitempty"`
	Payload   string   `json:"payload,omitempty"`
	Command   string   `json:"command,omitempty"`
	Response  *string  `json:"response,omitempty"`
	Time      *float64 `json:"time,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// NewMessage builds the message for e. session may be empty.
func NewMessage(e sercom.Entry, session string) Message {
	m := Message{
		ID:        uuid.NewString(),
		Session:   session,
		Seq:       e.Seq,
		Timestamp: e.Timestamp(),
	}
	if e.Kind == sercom.KindExchange {
		secs := e.Elapsed.Seconds()
		resp := e.Response
		m.Kind = "exchange"
		m.Command, m.Response, m.Time, m.Error = e.Command, &resp, &secs, e.Err
		return m
	}
	m.Kind = "event"
	m.Category = e.Category.String()
	m.Event = e.Description
	m.Payload = e.Payload
	return m
}

// Forwarder publishes entries from a log subscription.
type Forwarder struct {
	pub   Publisher
	topic string
	log   zerolog.Logger

	// Session reports the id stamped on each message. Optional.
	Session func() string
}

func NewForwarder(pub Publisher, topic string, log zerolog.Logger) *Forwarder {
	return &Forwarder{pub: pub, topic: topic, log: log}
}

// Run publishes every entry received on entries until the channel is closed
// or ctx is done, and returns how many were published. A failed publish is
// logged and skipped.
func (f *Forwarder) Run(ctx context.Context, entries <-chan sercom.Entry) (int, error) {
	published := 0
	for {
		select {
		case <-ctx.Done():
			return published, ctx.Err()
		case e, ok := <-entries:
			if !ok {
				return published, nil
			}
			if err := f.forward(e); err != nil {
				f.log.Warn().Err(err).Uint64("seq", e.Seq).Str("topic", f.topic).Msg("forward failed")
				continue
			}
			published++
		}
	}
}

func (f *Forwarder) forward(e sercom.Entry) error {
	var session string
	if f.Session != nil {
		session = f.Session()
	}
	body, err := json.Marshal(NewMessage(e, session))
	if err != nil {
		return err
	}
	return f.pub.Publish(f.topic, body)
}
