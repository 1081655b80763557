/*
topology.go Immutable description of a substation network: buses, branch edges (lines and
transformers), generators and loads. A Network is validated once at construction and exposes
read-only copies of its elements afterwards.
*/

package topology

import (
	"fmt"
	"math"
	"sort"
)

// EdgeKind discriminates between the branch types a Network may carry.
type EdgeKind string

const (
	Line        EdgeKind = "Line"
	Transformer EdgeKind = "Transformer"
)

// Bus is a network node at a nominal voltage level.
type Bus struct {
	ID   string  `json:"ID" yaml:"id"`
	VNom float64 `json:"VNom" yaml:"v_nom"` // kV
}

// Edge is a line or transformer connecting Bus0 to Bus1.
type Edge struct {
	ID       string   `json:"ID" yaml:"id"`
	Kind     EdgeKind `json:"Kind" yaml:"kind"`
	Bus0     string   `json:"Bus0" yaml:"bus0"`
	Bus1     string   `json:"Bus1" yaml:"bus1"`
	X        float64  `json:"X" yaml:"x"`                 // series reactance, p.u.
	R        float64  `json:"R" yaml:"r"`                 // series resistance, p.u.
	SNom     float64  `json:"SNom" yaml:"s_nom"`          // MVA rating
	LengthKm float64  `json:"LengthKm" yaml:"length_km"` // optional
}

// Generator injects power at its host bus. Exactly one generator in a Network is the slack.
type Generator struct {
	ID    string  `json:"ID" yaml:"id"`
	Bus   string  `json:"Bus" yaml:"bus"`
	PNom  float64 `json:"PNom" yaml:"p_nom"`   // MW
	PSet  float64 `json:"PSet" yaml:"p_set"`   // MW, ignored for the slack
	Slack bool    `json:"Slack" yaml:"slack"`
}

// Load draws active power at its host bus. PSet is the base setpoint in MW.
type Load struct {
	ID   string  `json:"ID" yaml:"id"`
	Bus  string  `json:"Bus" yaml:"bus"`
	PSet float64 `json:"PSet" yaml:"p_set"`
}

// Spec is the declarative form of a Network.
type Spec struct {
	Name       string      `json:"Name" yaml:"name"`
	Buses      []Bus       `json:"Buses" yaml:"buses"`
	Edges      []Edge      `json:"Edges" yaml:"edges"`
	Generators []Generator `json:"Generators" yaml:"generators"`
	Loads      []Load      `json:"Loads" yaml:"loads"`
}

// InvalidTopologyError is returned when a Spec cannot form a consistent Network.
type InvalidTopologyError struct {
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return "invalid topology: " + e.Reason
}

func invalid(format string, a ...interface{}) error {
	return &InvalidTopologyError{Reason: fmt.Sprintf(format, a...)}
}

// Network is the validated, immutable topology.
type Network struct {
	name       string
	buses      []Bus
	busIndex   map[string]int
	edges      []Edge
	edgeIndex  map[string]int
	generators []Generator
	slack      int
	loads      []Load
	loadIndex  map[string]int
	graph      *Graph
}

// New validates spec and returns a Network. Any referential error yields *InvalidTopologyError.
func New(spec Spec) (*Network, error) {
	n := &Network{
		name:      spec.Name,
		busIndex:  make(map[string]int, len(spec.Buses)),
		edgeIndex: make(map[string]int, len(spec.Edges)),
		loadIndex: make(map[string]int, len(spec.Loads)),
		slack:     -1,
		graph:     NewGraph(),
	}

	if len(spec.Buses) == 0 {
		return nil, invalid("network has no buses")
	}
	for _, b := range spec.Buses {
		if b.ID == "" {
			return nil, invalid("bus with empty id")
		}
		if _, exists := n.busIndex[b.ID]; exists {
			return nil, invalid("duplicate bus id %q", b.ID)
		}
		n.busIndex[b.ID] = len(n.buses)
		n.buses = append(n.buses, b)
		if err := n.graph.AddNode(b.ID); err != nil {
			return nil, invalid("%v", err)
		}
	}

	for _, e := range spec.Edges {
		if e.ID == "" {
			return nil, invalid("edge with empty id")
		}
		if _, exists := n.edgeIndex[e.ID]; exists {
			return nil, invalid("duplicate edge id %q", e.ID)
		}
		if !n.hasBus(e.Bus0) {
			return nil, invalid("edge %q references unknown bus %q", e.ID, e.Bus0)
		}
		if !n.hasBus(e.Bus1) {
			return nil, invalid("edge %q references unknown bus %q", e.ID, e.Bus1)
		}
		if e.Bus0 == e.Bus1 {
			return nil, invalid("edge %q connects bus %q to itself", e.ID, e.Bus0)
		}
		if e.SNom <= 0 {
			return nil, invalid("edge %q has non-positive rating %v", e.ID, e.SNom)
		}
		if math.IsNaN(e.X) || math.IsInf(e.X, 0) {
			return nil, invalid("edge %q has non-finite reactance", e.ID)
		}
		if e.Kind == "" {
			e.Kind = Line
		}
		n.edgeIndex[e.ID] = len(n.edges)
		n.edges = append(n.edges, e)
		if err := n.graph.AddEdge(e.Bus0, e.Bus1); err != nil {
			return nil, invalid("edge %q: %v", e.ID, err)
		}
	}

	genIDs := make(map[string]struct{}, len(spec.Generators))
	for _, g := range spec.Generators {
		if _, exists := genIDs[g.ID]; exists {
			return nil, invalid("duplicate generator id %q", g.ID)
		}
		genIDs[g.ID] = struct{}{}
		if !n.hasBus(g.Bus) {
			return nil, invalid("generator %q references unknown bus %q", g.ID, g.Bus)
		}
		if g.Slack {
			if n.slack >= 0 {
				return nil, invalid("generators %q and %q are both marked slack", n.generators[n.slack].ID, g.ID)
			}
			n.slack = len(n.generators)
		}
		n.generators = append(n.generators, g)
	}
	if n.slack < 0 {
		return nil, invalid("no generator is marked slack")
	}

	for _, l := range spec.Loads {
		if l.ID == "" {
			return nil, invalid("load with empty id")
		}
		if _, exists := n.loadIndex[l.ID]; exists {
			return nil, invalid("duplicate load id %q", l.ID)
		}
		if !n.hasBus(l.Bus) {
			return nil, invalid("load %q references unknown bus %q", l.ID, l.Bus)
		}
		if l.PSet < 0 {
			return nil, invalid("load %q has negative setpoint %v", l.ID, l.PSet)
		}
		n.loadIndex[l.ID] = len(n.loads)
		n.loads = append(n.loads, l)
	}

	return n, nil
}

func (n *Network) hasBus(id string) bool {
	_, ok := n.busIndex[id]
	return ok
}

// Islands returns the buses with no path to from, sorted.
func (n *Network) Islands(from string) []string {
	return n.graph.Islands(from)
}

// Name is the scenario name the Network was built from.
func (n *Network) Name() string {
	return n.name
}

// Buses returns a copy of the bus list in declaration order.
func (n *Network) Buses() []Bus {
	return append([]Bus(nil), n.buses...)
}

// Bus looks up a bus by id.
func (n *Network) Bus(id string) (Bus, bool) {
	i, ok := n.busIndex[id]
	if !ok {
		return Bus{}, false
	}
	return n.buses[i], true
}

// Edges returns a copy of the edge list in declaration order.
func (n *Network) Edges() []Edge {
	return append([]Edge(nil), n.edges...)
}

// Edge looks up an edge by id.
func (n *Network) Edge(id string) (Edge, bool) {
	i, ok := n.edgeIndex[id]
	if !ok {
		return Edge{}, false
	}
	return n.edges[i], true
}

// Generators returns a copy of the generator list.
func (n *Network) Generators() []Generator {
	return append([]Generator(nil), n.generators...)
}

// Slack returns the reference generator.
func (n *Network) Slack() Generator {
	return n.generators[n.slack]
}

// Loads returns a copy of the load list with base setpoints.
func (n *Network) Loads() []Load {
	return append([]Load(nil), n.loads...)
}

// Load looks up a load by id.
func (n *Network) Load(id string) (Load, bool) {
	i, ok := n.loadIndex[id]
	if !ok {
		return Load{}, false
	}
	return n.loads[i], true
}

// BaseSetpoints returns the declared load setpoints keyed by load id.
func (n *Network) BaseSetpoints() map[string]float64 {
	out := make(map[string]float64, len(n.loads))
	for _, l := range n.loads {
		out[l.ID] = l.PSet
	}
	return out
}

// BusIDs returns bus ids sorted lexically. Used wherever a stable ordering is required.
func (n *Network) BusIDs() []string {
	ids := make([]string, 0, len(n.buses))
	for _, b := range n.buses {
		ids = append(ids, b.ID)
	}
	sort.Strings(ids)
	return ids
}
