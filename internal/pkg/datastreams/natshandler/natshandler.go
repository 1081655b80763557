// Package natshandler publishes telemetry frames and alerts to a NATS server.
package natshandler

import (
	"log"

	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Config for the NATS handler.
type Config struct {
	Enabled       bool   `json:"Enabled" yaml:"enabled"`
	Server        string `json:"Server" yaml:"server"`
	SubjectPrefix string `json:"SubjectPrefix" yaml:"subject_prefix"`
}

// DefaultSubjectPrefix prefixes every published subject.
const DefaultSubjectPrefix = "substation"

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Handler forwards frames to <prefix>.telemetry and alerts to <prefix>.alert.
type Handler struct {
	*datastreams.Sink
	config  Config
	connect func(url string) (conn, error)
}

// New subscribes a handler on system.
func New(cfg Config, system msg.Publisher, recorder datastreams.FailureRecorder) (*Handler, error) {
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	sink, err := datastreams.NewSink("NATS client", system, recorder)
	if err != nil {
		return nil, err
	}
	return &Handler{
		Sink:   sink,
		config: cfg,
		connect: func(url string) (conn, error) {
			return nats.Connect(url, nats.Name("substation-twin"))
		},
	}, nil
}

// Subject returns the subject a topic is published on.
func (h *Handler) Subject(t msg.Topic) string {
	return h.config.SubjectPrefix + "." + t.String()
}

// Process connects and publishes until Stop. A failed connect is logged and ends the process.
func (h *Handler) Process() {
	nc, err := h.connect(h.config.Server)
	if err != nil {
		log.Printf("[NATS client] unable to connect to %s: %v\n", h.config.Server, err)
		return
	}
	h.Run(writer{h, nc})
}

type writer struct {
	h  *Handler
	nc conn
}

func (w writer) Write(m msg.Msg) error {
	data, err := datastreams.Encode(m)
	if err != nil {
		return err
	}
	return w.nc.Publish(w.h.Subject(m.Topic()), data)
}

func (w writer) Close() error {
	w.nc.Close()
	return nil
}
