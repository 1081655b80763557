/*
powerflow.go Linearised (DC) power flow. Bus voltage angles are found from the reduced
susceptance matrix B' and the net active power injections, with the slack bus as the angle
reference. Branch flows follow from the angle difference across each branch reactance. The
model is lossless: resistance is carried by the topology but does not enter the solve.
*/

package powerflow

import (
	"errors"
	"fmt"
	"math"

	"github.com/ohowland/substation_twin/internal/pkg/topology"
	"gonum.org/v1/gonum/mat"
)

// ErrSolverDivergence signals the linear system has no usable solution: the network is
// islanded, a branch has zero reactance, or the susceptance matrix is singular.
var ErrSolverDivergence = errors.New("power flow diverged")

// Solution holds the result of one solve.
type Solution struct {
	Flows          map[string]float64 // MW per edge, positive from Bus0 to Bus1
	Angles         map[string]float64 // rad per bus, slack bus is 0
	SlackInjection float64            // MW supplied by the slack generator
	TotalLoad      float64            // MW
}

// Solver is a stateless DC power flow solver. The zero value is ready to use.
type Solver struct{}

// New returns a Solver.
func New() Solver {
	return Solver{}
}

// Solve computes branch flows for the load setpoints (MW keyed by load id). Loads absent from
// setpoints are taken at their base value.
func (s Solver) Solve(n *topology.Network, setpoints map[string]float64) (Solution, error) {
	if n == nil {
		return Solution{}, errors.New("power flow: nil network")
	}

	busIDs := n.BusIDs()
	slackBus := n.Slack().Bus
	if err := checkConnected(n, slackBus); err != nil {
		return Solution{}, err
	}

	// reduced index: every bus except the slack
	index := make(map[string]int, len(busIDs)-1)
	for _, id := range busIDs {
		if id == slackBus {
			continue
		}
		index[id] = len(index)
	}

	injection := make(map[string]float64, len(busIDs))
	totalLoad := 0.0
	for _, l := range n.Loads() {
		p, ok := setpoints[l.ID]
		if !ok {
			p = l.PSet
		}
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return Solution{}, fmt.Errorf("power flow: load %q has invalid setpoint %v", l.ID, p)
		}
		injection[l.Bus] -= p
		totalLoad += p
	}
	generated := 0.0
	for _, g := range n.Generators() {
		if g.Slack {
			continue
		}
		injection[g.Bus] += g.PSet
		generated += g.PSet
	}

	edges := n.Edges()
	for _, e := range edges {
		if e.X == 0 {
			return Solution{}, fmt.Errorf("%w: edge %q has zero reactance", ErrSolverDivergence, e.ID)
		}
	}

	sol := Solution{
		Flows:          make(map[string]float64, len(edges)),
		Angles:         make(map[string]float64, len(busIDs)),
		SlackInjection: totalLoad - generated,
		TotalLoad:      totalLoad,
	}
	sol.Angles[slackBus] = 0

	m := len(index)
	if m == 0 {
		return sol, nil
	}

	b := mat.NewDense(m, m, nil)
	p := mat.NewVecDense(m, nil)
	for id, i := range index {
		p.SetVec(i, injection[id])
	}
	for _, e := range edges {
		y := 1 / e.X
		i, iOk := index[e.Bus0]
		j, jOk := index[e.Bus1]
		if iOk {
			b.Set(i, i, b.At(i, i)+y)
		}
		if jOk {
			b.Set(j, j, b.At(j, j)+y)
		}
		if iOk && jOk {
			b.Set(i, j, b.At(i, j)-y)
			b.Set(j, i, b.At(j, i)-y)
		}
	}

	var theta mat.VecDense
	if err := theta.SolveVec(b, p); err != nil {
		return Solution{}, fmt.Errorf("%w: %v", ErrSolverDivergence, err)
	}

	for id, i := range index {
		v := theta.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Solution{}, fmt.Errorf("%w: non-finite angle at bus %q", ErrSolverDivergence, id)
		}
		sol.Angles[id] = v
	}
	for _, e := range edges {
		sol.Flows[e.ID] = (sol.Angles[e.Bus0] - sol.Angles[e.Bus1]) / e.X
	}
	return sol, nil
}

// checkConnected fails fast when any bus cannot be reached from the slack bus.
func checkConnected(n *topology.Network, slackBus string) error {
	if islands := n.Islands(slackBus); len(islands) > 0 {
		return fmt.Errorf("%w: bus %q is islanded from slack bus %q", ErrSolverDivergence, islands[0], slackBus)
	}
	return nil
}
