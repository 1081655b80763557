package datastreams

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
)

// Writer delivers one message to an external store or broker.
type Writer interface {
	Write(msg.Msg) error
	Close() error
}

// Sink is the subscription and lifecycle shared by every datastream handler.
type Sink struct {
	mux      *sync.Mutex
	name     string
	pid      uuid.UUID
	system   msg.Publisher
	inbox    <-chan msg.Msg
	recorder FailureRecorder
	stop     chan bool
	done     chan bool
	started  bool
	stopped  bool
}

// NewSink subscribes a new sink named name to frames and alerts.
func NewSink(name string, system msg.Publisher, recorder FailureRecorder) (*Sink, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	inbox, err := Subscribe(pid, system)
	if err != nil {
		return nil, err
	}
	return &Sink{
		mux:      &sync.Mutex{},
		name:     name,
		pid:      pid,
		system:   system,
		inbox:    inbox,
		recorder: OrNop(recorder),
		stop:     make(chan bool),
		done:     make(chan bool),
	}, nil
}

// PID is the sink's subscriber id.
func (s *Sink) PID() uuid.UUID {
	return s.pid
}

// Name labels the sink in logs and metrics.
func (s *Sink) Name() string {
	return s.name
}

// Run writes every message to w until Stop. w is closed on exit.
func (s *Sink) Run(w Writer) {
	s.mux.Lock()
	if s.started || s.stopped {
		s.mux.Unlock()
		return
	}
	s.started = true
	s.mux.Unlock()

	log.Printf("[%s] Process Started\n", s.name)
	defer close(s.done)
	defer w.Close()
loop:
	for {
		select {
		case m := <-s.inbox:
			if err := w.Write(m); err != nil {
				log.Printf("[%s] unable to write %v message: %v\n", s.name, m.Topic(), err)
				s.recorder.StreamFailure(s.name)
			}
		case <-s.stop:
			break loop
		}
	}
	log.Printf("[%s] Process Shutdown\n", s.name)
}

// Stop unsubscribes and waits for a running Run to return.
func (s *Sink) Stop() {
	s.mux.Lock()
	if s.stopped {
		s.mux.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mux.Unlock()

	s.system.Unsubscribe(s.pid)
	close(s.stop)
	if started {
		<-s.done
	}
}
