/*
twin.go Network twin. Holds the immutable topology, the current load vector and the latest
SimulationState. Writers (Tick, InjectAnomaly) are serialised by writeMux and compute a complete
new state before swapping it in under mux; readers copy the state pointer under a read lock, so a
reader never observes flows and alerts derived from different load vectors.
*/

package twin

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/ohowland/substation_twin/internal/pkg/loadprofile"
	"github.com/ohowland/substation_twin/internal/pkg/powerflow"
	"github.com/ohowland/substation_twin/internal/pkg/topology"
)

// Loading thresholds in percent of the critical edge rating.
const (
	WarningThreshold  = 80.0
	CriticalThreshold = 90.0
)

// DefaultCriticalEdge is the edge whose loading drives alerts.
const DefaultCriticalEdge = "T1_Transformer"

// AnomalyKind names an injectable fault scenario.
type AnomalyKind string

const (
	// Overload forces every industrial load to OverloadSetpoint.
	Overload AnomalyKind = "overload"
)

// OverloadSetpoint is the industrial setpoint forced by an Overload anomaly, in MW.
const OverloadSetpoint = 25.0

// Solver computes branch flows for a load vector.
type Solver interface {
	Solve(*topology.Network, map[string]float64) (powerflow.Solution, error)
}

// LoadProfile draws the load vector for a step.
type LoadProfile interface {
	Vector(step int, loads []topology.Load) map[string]float64
}

// Config selects the critical edge. Empty fields take defaults.
type Config struct {
	CriticalEdge string `json:"CriticalEdge" yaml:"critical_edge"`
}

// SimulationState is one immutable snapshot of the network. It is never mutated after it has
// been published.
type SimulationState struct {
	Timestamp          int
	Setpoints          map[string]float64 // MW per load
	Flows              map[string]float64 // MW per edge
	Loading            map[string]float64 // percent per edge, rounded to 2 decimals
	TotalLoad          float64            // MW
	TransformerLoading float64            // percent on the critical edge, rounded to 2 decimals
	Alerts             []string
	Degraded           bool
	Reason             string
}

// Status is the read model handed to collaborators.
type Status struct {
	Timestamp                 int                `json:"Timestamp"`
	TotalLoadMW               float64            `json:"TotalLoadMW"`
	TransformerLoadingPercent float64            `json:"TransformerLoadingPercent"`
	Alerts                    []string           `json:"Alerts"`
	Degraded                  bool               `json:"Degraded"`
	DegradedReason            string             `json:"DegradedReason,omitempty"`
	EdgeLoading               map[string]float64 `json:"EdgeLoading"`
}

// Outcome reports the result of a state update. Reason is set when Degraded.
type Outcome struct {
	Timestamp int
	Degraded  bool
	Reason    error
}

// Twin is the network digital twin.
type Twin struct {
	writeMux *sync.Mutex
	mux      *sync.RWMutex
	network  *topology.Network
	solver   Solver
	profile  LoadProfile
	critical topology.Edge

	// guarded by writeMux
	step      int
	setpoints map[string]float64
	lastGood  *SimulationState

	// guarded by mux
	state *SimulationState
}

// New builds a Twin over network and solves the base load case at timestamp 0.
func New(network *topology.Network, solver Solver, profile LoadProfile, config Config) (*Twin, error) {
	if network == nil {
		return nil, errors.New("twin: nil network")
	}
	if solver == nil || profile == nil {
		return nil, errors.New("twin: solver and load profile are required")
	}
	if config.CriticalEdge == "" {
		config.CriticalEdge = DefaultCriticalEdge
	}
	critical, ok := network.Edge(config.CriticalEdge)
	if !ok {
		return nil, &topology.InvalidTopologyError{Reason: fmt.Sprintf("critical edge %q not found", config.CriticalEdge)}
	}

	t := &Twin{
		writeMux: &sync.Mutex{},
		mux:      &sync.RWMutex{},
		network:  network,
		solver:   solver,
		profile:  profile,
		critical: critical,
	}

	zero := make(map[string]float64)
	for _, e := range network.Edges() {
		zero[e.ID] = 0
	}
	t.lastGood = t.evaluate(0, network.BaseSetpoints(), zero)
	t.state = t.lastGood

	t.writeMux.Lock()
	defer t.writeMux.Unlock()
	t.setpoints = network.BaseSetpoints()
	t.solve(t.setpoints)
	return t, nil
}

// Network returns the topology the twin was built over.
func (t *Twin) Network() *topology.Network {
	return t.network
}

// CriticalEdge returns the edge whose loading drives alerts.
func (t *Twin) CriticalEdge() topology.Edge {
	return t.critical
}

// Tick advances simulated time by one step, draws a new load vector and recomputes the flow.
// The timestamp advances even when the solve diverges.
func (t *Twin) Tick() Outcome {
	t.writeMux.Lock()
	defer t.writeMux.Unlock()

	t.step++
	t.setpoints = t.profile.Vector(t.step, t.network.Loads())
	return t.solve(t.setpoints)
}

// InjectAnomaly applies a fault scenario and recomputes the flow without advancing the load
// profile. Unrecognised kinds leave the twin untouched and report false.
func (t *Twin) InjectAnomaly(kind string) (Outcome, bool) {
	switch AnomalyKind(kind) {
	case Overload:
		t.writeMux.Lock()
		defer t.writeMux.Unlock()

		setpoints := make(map[string]float64, len(t.setpoints))
		for id, p := range t.setpoints {
			setpoints[id] = p
		}
		forced := 0
		for _, l := range t.network.Loads() {
			if loadprofile.Classify(l.ID) == loadprofile.Industrial {
				setpoints[l.ID] = OverloadSetpoint
				forced++
			}
		}
		if forced == 0 {
			log.Printf("[Twin] overload anomaly: network %q has no industrial load\n", t.network.Name())
		}
		t.setpoints = setpoints
		return t.solve(setpoints), true

	default:
		log.Printf("[Twin] ignoring unrecognised anomaly kind %q\n", kind)
		return Outcome{Timestamp: t.Status().Timestamp}, false
	}
}

// Status classifies the current state. It never mutates the twin.
func (t *Twin) Status() Status {
	t.mux.RLock()
	s := t.state
	t.mux.RUnlock()

	loading := make(map[string]float64, len(s.Loading))
	for id, v := range s.Loading {
		loading[id] = v
	}
	return Status{
		Timestamp:                 s.Timestamp,
		TotalLoadMW:               s.TotalLoad,
		TransformerLoadingPercent: s.TransformerLoading,
		Alerts:                    append([]string{}, s.Alerts...),
		Degraded:                  s.Degraded,
		DegradedReason:            s.Reason,
		EdgeLoading:               loading,
	}
}

// Snapshot returns a deep copy of the current SimulationState.
func (t *Twin) Snapshot() SimulationState {
	t.mux.RLock()
	s := t.state
	t.mux.RUnlock()

	out := *s
	out.Setpoints = copyMap(s.Setpoints)
	out.Flows = copyMap(s.Flows)
	out.Loading = copyMap(s.Loading)
	out.Alerts = append([]string{}, s.Alerts...)
	return out
}

// solve runs the solver for setpoints at the current step and publishes the result. On failure
// the last good state is republished as degraded. Caller holds writeMux.
func (t *Twin) solve(setpoints map[string]float64) Outcome {
	sol, err := t.solver.Solve(t.network, setpoints)

	var next *SimulationState
	if err != nil {
		log.Printf("[Twin] step %d degraded: %v\n", t.step, err)
		degraded := *t.lastGood
		degraded.Timestamp = t.step
		degraded.Degraded = true
		degraded.Reason = err.Error()
		next = &degraded
	} else {
		next = t.evaluate(t.step, setpoints, sol.Flows)
		t.lastGood = next
	}

	t.mux.Lock()
	t.state = next
	t.mux.Unlock()

	return Outcome{Timestamp: t.step, Degraded: err != nil, Reason: err}
}

// evaluate derives loading and alerts from one load vector and its flows.
func (t *Twin) evaluate(step int, setpoints, flows map[string]float64) *SimulationState {
	s := &SimulationState{
		Timestamp: step,
		Setpoints: copyMap(setpoints),
		Flows:     copyMap(flows),
		Loading:   make(map[string]float64, len(flows)),
		Alerts:    []string{},
	}

	ids := make([]string, 0, len(setpoints))
	for id := range setpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.TotalLoad += setpoints[id]
	}

	for _, e := range t.network.Edges() {
		s.Loading[e.ID] = LoadingPercent(flows[e.ID], e.SNom)
	}
	s.TransformerLoading = s.Loading[t.critical.ID]
	s.Alerts = Alerts(t.critical, s.TransformerLoading)
	return s
}

// LoadingPercent is |flow| / rating × 100, rounded to two decimals.
func LoadingPercent(flow, rating float64) float64 {
	if rating <= 0 {
		return 0
	}
	return round2(math.Abs(flow) / rating * 100)
}

// Alerts returns the alert strings for a loading of the given edge.
func Alerts(edge topology.Edge, loading float64) []string {
	alerts := []string{}
	switch {
	case loading > CriticalThreshold:
		alerts = append(alerts, fmt.Sprintf("CRITICAL: %s %s Overload Risk", edge.Kind, edge.ID))
	case loading > WarningThreshold:
		alerts = append(alerts, fmt.Sprintf("WARNING: %s %s High Load", edge.Kind, edge.ID))
	}
	return alerts
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
