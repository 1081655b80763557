// Package mqtt publishes telemetry frames and alerts to an MQTT broker.
package mqtt

import (
	"errors"
	"log"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/msg"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config for the MQTT handler.
type Config struct {
	Enabled     bool   `json:"Enabled" yaml:"enabled"`
	Broker      string `json:"Broker" yaml:"broker"`
	ClientID    string `json:"ClientID" yaml:"client_id"`
	TopicPrefix string `json:"TopicPrefix" yaml:"topic_prefix"`
	QoS         byte   `json:"QoS" yaml:"qos"`
	Timeout     int    `json:"Timeout" yaml:"timeout"` // milliseconds
}

// Defaults for empty Config fields.
const (
	DefaultBroker      = "tcp://127.0.0.1:1883"
	DefaultTopicPrefix = "substation"
	DefaultTimeout     = 2000
)

type publisher interface {
	publish(topic string, qos byte, retained bool, payload []byte) error
	close()
}

// Handler publishes frames retained on <prefix>/telemetry so late subscribers get the latest,
// and alerts unretained on <prefix>/alert.
type Handler struct {
	*datastreams.Sink
	config  Config
	connect func(Config) (publisher, error)
}

// New subscribes a handler on system.
func New(cfg Config, system msg.Publisher, recorder datastreams.FailureRecorder) (*Handler, error) {
	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QoS > 2 {
		return nil, errors.New("mqtt: qos must be 0, 1 or 2")
	}
	sink, err := datastreams.NewSink("MQTT client", system, recorder)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "substation-twin-" + sink.PID().String()[:8]
	}
	return &Handler{Sink: sink, config: cfg, connect: dial}, nil
}

// Topic returns the MQTT topic a msg topic is published on.
func (h *Handler) Topic(t msg.Topic) string {
	return h.config.TopicPrefix + "/" + t.String()
}

// Process connects and publishes until Stop. A failed connect is logged and ends the process.
func (h *Handler) Process() {
	client, err := h.connect(h.config)
	if err != nil {
		log.Printf("[MQTT client] unable to connect to %s: %v\n", h.config.Broker, err)
		return
	}
	h.Run(writer{h, client})
}

type writer struct {
	h      *Handler
	client publisher
}

func (w writer) Write(m msg.Msg) error {
	data, err := datastreams.Encode(m)
	if err != nil {
		return err
	}
	return w.client.publish(w.h.Topic(m.Topic()), w.h.config.QoS, m.Topic() == msg.Telemetry, data)
}

func (w writer) Close() error {
	w.client.close()
	return nil
}

type pahoClient struct {
	client  paho.Client
	timeout time.Duration
}

func dial(cfg Config) (publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)
	c := pahoClient{
		client:  paho.NewClient(opts),
		timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
	if err := c.wait(c.client.Connect()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c pahoClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.wait(c.client.Publish(topic, qos, retained, payload))
}

func (c pahoClient) close() {
	c.client.Disconnect(uint(c.timeout / time.Millisecond))
}

func (c pahoClient) wait(token paho.Token) error {
	if !token.WaitTimeout(c.timeout) {
		return errors.New("mqtt: timed out waiting for broker")
	}
	return token.Error()
}
