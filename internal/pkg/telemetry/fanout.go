package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/msg"
)

// Broadcaster publishes payloads by topic and reports how many subscribers dropped them.
type Broadcaster interface {
	Publish(topic msg.Topic, payload interface{}) int
}

// Alert is one alert string at the moment it was first raised.
type Alert struct {
	Timestamp time.Time `json:"Timestamp"`
	Tick      int       `json:"Tick"`
	Message   string    `json:"Message"`
}

// Fanout is a Subscriber that republishes every frame on msg.Telemetry and each alert on
// msg.Alert when it first appears. An alert that clears and returns is raised again.
type Fanout struct {
	mux    *sync.Mutex
	pub    Broadcaster
	active map[string]bool
}

// NewFanout returns a Fanout publishing on pub.
func NewFanout(pub Broadcaster) *Fanout {
	return &Fanout{
		mux:    &sync.Mutex{},
		pub:    pub,
		active: make(map[string]bool),
	}
}

// Deliver satisfies Subscriber. It fails when any subscriber inbox was full.
func (f *Fanout) Deliver(frame Frame) error {
	f.mux.Lock()
	defer f.mux.Unlock()

	dropped := f.pub.Publish(msg.Telemetry, frame)

	current := make(map[string]bool, len(frame.Grid.Alerts))
	for _, a := range frame.Grid.Alerts {
		current[a] = true
		if !f.active[a] {
			dropped += f.pub.Publish(msg.Alert, Alert{
				Timestamp: frame.Timestamp,
				Tick:      frame.Grid.Timestamp,
				Message:   a,
			})
		}
	}
	f.active = current

	if dropped > 0 {
		return fmt.Errorf("fanout: %d deliveries dropped for frame %v", dropped, frame.ID)
	}
	return nil
}
