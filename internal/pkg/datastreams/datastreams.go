// Package datastreams holds what the external sinks share: the merged subscription to frames and
// alerts and their wire encoding.
package datastreams

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
)

// inboxSize matches the msg subscriber buffer.
const inboxSize = 50

// FailureRecorder counts failed writes per sink.
type FailureRecorder interface {
	StreamFailure(sink string)
}

type nopRecorder struct{}

func (nopRecorder) StreamFailure(string) {}

// OrNop returns r, or a recorder that discards everything when r is nil.
func OrNop(r FailureRecorder) FailureRecorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// Subscribe subscribes pid to frames and alerts on system and merges both into one channel.
// The returned channel is never closed; sinks select on their own stop channel.
func Subscribe(pid uuid.UUID, system msg.Publisher) (<-chan msg.Msg, error) {
	inbox := make(chan msg.Msg, inboxSize)
	for _, topic := range []msg.Topic{msg.Telemetry, msg.Alert} {
		ch, err := system.Subscribe(pid, topic)
		if err != nil {
			system.Unsubscribe(pid)
			return nil, err
		}
		go redirectMsg(ch, inbox)
	}
	return inbox, nil
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		select {
		case chOut <- m:
		default:
		}
	}
}

// Encode returns the JSON body for a frame or alert message.
func Encode(m msg.Msg) ([]byte, error) {
	switch p := m.Payload().(type) {
	case telemetry.Frame, telemetry.Alert:
		return json.Marshal(p)
	default:
		return nil, fmt.Errorf("datastreams: unexpected %v payload %T", m.Topic(), p)
	}
}
