/*
telemetry.go Fixed-cadence driver. Each iteration ticks the twin, reads sensors for the tracked
asset at the current transformer loading, updates its health and hands the resulting Frame to the
subscriber.
*/

package telemetry

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/sensor"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
)

// DefaultInterval is the loop cadence.
const DefaultInterval = time.Second

// Twin is the part of the network twin the loop drives.
type Twin interface {
	Tick() twin.Outcome
	Status() twin.Status
}

// HealthTracker updates asset health from telemetry.
type HealthTracker interface {
	ProcessTelemetry(id string, t asset.Telemetry) (asset.HealthRecord, bool)
	Record(id string) (asset.HealthRecord, bool)
}

// Recorder observes loop activity. Implementations must not block.
type Recorder interface {
	ObserveFrame(Frame)
	Degraded(reason error)
	SensorError(assetID string)
	DeliveryFailure()
}

// Subscriber receives every frame. Errors are logged and do not stop the loop.
type Subscriber func(Frame) error

// Frame is the output of one loop iteration. It is shared by value with every consumer and must
// be treated as read-only.
type Frame struct {
	ID        uuid.UUID             `json:"ID"`
	Timestamp time.Time             `json:"Timestamp"`
	Grid      twin.Status           `json:"Grid"`
	Assets    map[string]AssetFrame `json:"Assets"`
}

// Clone returns a copy of f that shares no maps or slices with it.
func (f Frame) Clone() Frame {
	c := f
	if f.Grid.Alerts != nil {
		c.Grid.Alerts = append([]string(nil), f.Grid.Alerts...)
	}
	if f.Grid.EdgeLoading != nil {
		c.Grid.EdgeLoading = make(map[string]float64, len(f.Grid.EdgeLoading))
		for k, v := range f.Grid.EdgeLoading {
			c.Grid.EdgeLoading[k] = v
		}
	}
	if f.Assets != nil {
		c.Assets = make(map[string]AssetFrame, len(f.Assets))
		for k, v := range f.Assets {
			c.Assets[k] = v
		}
	}
	return c
}

// AssetFrame joins the raw sample and the resulting health record of one asset.
type AssetFrame struct {
	Telemetry   asset.Telemetry    `json:"Telemetry"`
	Health      asset.HealthRecord `json:"Health"`
	SensorError string             `json:"SensorError,omitempty"`
}

// Config for a Loop. Zero fields take defaults.
type Config struct {
	AssetID  string
	Interval time.Duration
	Clock    func() time.Time
	Recorder Recorder
}

// Loop is the telemetry driver.
type Loop struct {
	mux      *sync.Mutex
	twin     Twin
	health   HealthTracker
	sensors  sensor.Source
	assetID  string
	interval time.Duration
	clock    func() time.Time
	recorder Recorder

	running bool
	stop    chan struct{}
	done    chan struct{}

	latestMux *sync.RWMutex
	latest    *Frame
	lastEmit  time.Time
}

// New builds a stopped Loop.
func New(t Twin, health HealthTracker, sensors sensor.Source, config Config) (*Loop, error) {
	if t == nil || health == nil || sensors == nil {
		return nil, errors.New("telemetry: twin, health tracker and sensor source are required")
	}
	if config.AssetID == "" {
		config.AssetID = twin.DefaultCriticalEdge
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	if _, ok := health.Record(config.AssetID); !ok {
		return nil, errors.New("telemetry: asset " + config.AssetID + " is not tracked")
	}
	return &Loop{
		mux:       &sync.Mutex{},
		twin:      t,
		health:    health,
		sensors:   sensors,
		assetID:   config.AssetID,
		interval:  config.Interval,
		clock:     config.Clock,
		recorder:  config.Recorder,
		latestMux: &sync.RWMutex{},
	}, nil
}

// Start launches the loop with an optional subscriber. It returns false, and changes nothing,
// if the loop is already running.
func (l *Loop) Start(sub Subscriber) bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.running {
		return false
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.Process(sub, l.stop, l.done)
	return true
}

// Stop signals the loop and waits for the in-flight iteration to finish. No frame is delivered
// after Stop returns. Stop must not be called from the subscriber: it waits on the goroutine
// that is running the subscriber.
func (l *Loop) Stop() {
	l.mux.Lock()
	if !l.running {
		l.mux.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mux.Unlock()
	<-done
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.running
}

// Latest returns a copy of the most recent frame, if any has been emitted.
func (l *Loop) Latest() (Frame, bool) {
	l.latestMux.RLock()
	defer l.latestMux.RUnlock()
	if l.latest == nil {
		return Frame{}, false
	}
	return l.latest.Clone(), true
}

// Process runs iterations until stop is closed. The first iteration runs immediately.
func (l *Loop) Process(sub Subscriber, stop <-chan struct{}, done chan<- struct{}) {
	log.Printf("[Telemetry] loop started, interval %v, asset %s\n", l.interval, l.assetID)
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			log.Println("[Telemetry] loop stopped")
			return
		default:
		}

		l.deliver(sub, l.Step())

		select {
		case <-stop:
			log.Println("[Telemetry] loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Step runs one iteration and returns its frame without delivering it.
func (l *Loop) Step() Frame {
	outcome := l.twin.Tick()
	if outcome.Degraded {
		log.Printf("[Telemetry] tick %d degraded: %v\n", outcome.Timestamp, outcome.Reason)
		l.recorder.Degraded(outcome.Reason)
	}
	status := l.twin.Status()

	af := AssetFrame{}
	sample, err := l.sensors.Read(l.assetID, status.TransformerLoadingPercent)
	if err != nil {
		log.Printf("[Telemetry] sensor read for %s failed: %v\n", l.assetID, err)
		l.recorder.SensorError(l.assetID)
		af.SensorError = err.Error()
		af.Telemetry = asset.Telemetry{LoadPercent: status.TransformerLoadingPercent}
		af.Health, _ = l.health.Record(l.assetID)
	} else {
		af.Telemetry = sample
		af.Health, _ = l.health.ProcessTelemetry(l.assetID, sample)
	}

	frame := Frame{
		ID:        uuid.New(),
		Timestamp: l.emitTime(),
		Grid:      status,
		Assets:    map[string]AssetFrame{l.assetID: af},
	}

	kept := frame.Clone()
	l.latestMux.Lock()
	l.latest = &kept
	l.latestMux.Unlock()
	l.recorder.ObserveFrame(frame)
	return frame
}

func (l *Loop) deliver(sub Subscriber, frame Frame) {
	if sub == nil {
		return
	}
	if err := sub(frame); err != nil {
		log.Printf("[Telemetry] subscriber delivery failed: %v\n", err)
		l.recorder.DeliveryFailure()
	}
}

// emitTime is the wall clock, nudged forward so frame timestamps strictly increase.
func (l *Loop) emitTime() time.Time {
	l.latestMux.Lock()
	defer l.latestMux.Unlock()
	now := l.clock()
	if !now.After(l.lastEmit) {
		now = l.lastEmit.Add(time.Nanosecond)
	}
	l.lastEmit = now
	return now
}

type nopRecorder struct{}

func (nopRecorder) ObserveFrame(Frame) {}
func (nopRecorder) Degraded(error) {}
func (nopRecorder) SensorError(string) {}
func (nopRecorder) DeliveryFailure() {}
