package msg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic is the category of a published message.
type Topic int

const (
	// Telemetry carries telemetry.Frame payloads, one per loop iteration.
	Telemetry Topic = iota
	// Alert carries twin alert strings as they first appear.
	Alert
)

func (t Topic) String() string {
	switch t {
	case Telemetry:
		return "telemetry"
	case Alert:
		return "alert"
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

// inboxSize bounds each subscriber channel. Slow subscribers drop messages instead of
// blocking the publisher.
const inboxSize = 50

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a published payload tagged with its sender and topic.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans messages out to subscribers by topic.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	subscribers map[Topic]map[uuid.UUID]chan Msg
	closed      bool
}

// NewPublisher returns a PubSub publishing as pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:         &sync.Mutex{},
		pid:         pid,
		subscribers: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID is the publisher's id, used as sender on every message.
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel receiving every message published on topic.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, errors.New("publisher closed")
	}
	subs, ok := p.subscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subscribers[topic] = subs
	}
	if _, exists := subs[pid]; exists {
		return nil, fmt.Errorf("%v already subscribed to %v", pid, topic)
	}
	ch := make(chan Msg, inboxSize)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			delete(subs, pid)
			close(ch)
		}
	}
}

// Publish delivers payload to every subscriber of topic without blocking. It returns the
// number of subscribers whose inbox was full.
func (p *PubSub) Publish(topic Topic, payload interface{}) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	dropped := 0
	m := New(p.pid, topic, payload)
	for _, ch := range p.subscribers[topic] {
		select {
		case ch <- m:
		default:
			dropped++
		}
	}
	return dropped
}

// Close unsubscribes everyone. Later Subscribe calls fail.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic, subs := range p.subscribers {
		for pid, ch := range subs {
			delete(subs, pid)
			close(ch)
		}
		delete(p.subscribers, topic)
	}
	p.closed = true
}
