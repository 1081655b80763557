package powerflow

import (
	"errors"
	"math"
	"testing"

	"github.com/ohowland/substation_twin/internal/pkg/topology"
	"gotest.tools/v3/assert"
)

const tol = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < tol
}

func triangle(t *testing.T) *topology.Network {
	n, err := topology.New(topology.Spec{
		Buses: []topology.Bus{{ID: "A", VNom: 20}, {ID: "B", VNom: 20}, {ID: "C", VNom: 20}},
		Edges: []topology.Edge{
			{ID: "AB", Bus0: "A", Bus1: "B", X: 0.1, SNom: 10},
			{ID: "BC", Bus0: "B", Bus1: "C", X: 0.1, SNom: 10},
			{ID: "AC", Bus0: "A", Bus1: "C", X: 0.1, SNom: 10},
		},
		Generators: []topology.Generator{{ID: "G", Bus: "A", PNom: 10, Slack: true}},
		Loads:      []topology.Load{{ID: "L", Bus: "B", PSet: 3}},
	})
	assert.NilError(t, err)
	return n
}

func TestRadialBaseCase(t *testing.T) {
	n, err := topology.SubstationAlpha()
	assert.NilError(t, err)

	sol, err := New().Solve(n, n.BaseSetpoints())
	assert.NilError(t, err)

	assert.Assert(t, near(sol.Flows["T1_Transformer"], 17), "T1 flow %v", sol.Flows["T1_Transformer"])
	assert.Assert(t, near(sol.Flows["Feeder_1_Res"], 5))
	assert.Assert(t, near(sol.Flows["Feeder_2_Comm"], 4))
	assert.Assert(t, near(sol.Flows["Feeder_3_Ind"], 8))
	assert.Assert(t, near(sol.SlackInjection, 17))
	assert.Assert(t, near(sol.TotalLoad, 17))
	assert.Equal(t, sol.Angles["HV_Grid_Bus"], 0.0)
}

func TestSlackBalancesLoad(t *testing.T) {
	n, err := topology.SubstationAlpha()
	assert.NilError(t, err)

	setpoints := map[string]float64{
		"Load_Residential": 2.5,
		"Load_Commercial":  1.25,
		"Load_Industrial":  25,
	}
	sol, err := New().Solve(n, setpoints)
	assert.NilError(t, err)

	leaving := 0.0
	for _, e := range n.Edges() {
		if e.Bus0 == n.Slack().Bus {
			leaving += sol.Flows[e.ID]
		}
		if e.Bus1 == n.Slack().Bus {
			leaving -= sol.Flows[e.ID]
		}
	}
	assert.Assert(t, near(leaving, 28.75))
	assert.Assert(t, near(sol.SlackInjection, 28.75))
}

func TestMeshedNetwork(t *testing.T) {
	sol, err := New().Solve(triangle(t), map[string]float64{"L": 3})
	assert.NilError(t, err)

	assert.Assert(t, near(sol.Flows["AB"], 2), "AB %v", sol.Flows["AB"])
	assert.Assert(t, near(sol.Flows["AC"], 1), "AC %v", sol.Flows["AC"])
	assert.Assert(t, near(sol.Flows["BC"], -1), "BC %v", sol.Flows["BC"])
}

func TestDeterministic(t *testing.T) {
	n := triangle(t)
	a, err := New().Solve(n, map[string]float64{"L": 7.3})
	assert.NilError(t, err)
	b, err := New().Solve(n, map[string]float64{"L": 7.3})
	assert.NilError(t, err)
	assert.DeepEqual(t, a, b)
}

func TestMissingSetpointUsesBase(t *testing.T) {
	n, err := topology.SubstationAlpha()
	assert.NilError(t, err)

	sol, err := New().Solve(n, map[string]float64{"Load_Industrial": 0})
	assert.NilError(t, err)
	assert.Assert(t, near(sol.Flows["T1_Transformer"], 9))
}

func TestNonSlackGenerator(t *testing.T) {
	spec := topology.SubstationAlphaSpec()
	spec.Generators = append(spec.Generators, topology.Generator{ID: "PV", Bus: "Feeder_3_End", PNom: 5, PSet: 3})
	n, err := topology.New(spec)
	assert.NilError(t, err)

	sol, err := New().Solve(n, n.BaseSetpoints())
	assert.NilError(t, err)
	assert.Assert(t, near(sol.Flows["Feeder_3_Ind"], 5))
	assert.Assert(t, near(sol.SlackInjection, 14))
}

func TestIslandedBusDiverges(t *testing.T) {
	spec := topology.SubstationAlphaSpec()
	spec.Buses = append(spec.Buses, topology.Bus{ID: "Orphan", VNom: 20})
	n, err := topology.New(spec)
	assert.NilError(t, err)

	_, err = New().Solve(n, n.BaseSetpoints())
	assert.Assert(t, errors.Is(err, ErrSolverDivergence))
	assert.ErrorContains(t, err, "Orphan")
}

func TestZeroReactanceDiverges(t *testing.T) {
	spec := topology.SubstationAlphaSpec()
	spec.Edges[2].X = 0
	n, err := topology.New(spec)
	assert.NilError(t, err)

	_, err = New().Solve(n, n.BaseSetpoints())
	assert.Assert(t, errors.Is(err, ErrSolverDivergence))
}

func TestNegativeSetpointRejected(t *testing.T) {
	n, err := topology.SubstationAlpha()
	assert.NilError(t, err)

	_, err = New().Solve(n, map[string]float64{"Load_Commercial": -2})
	assert.Assert(t, err != nil)
	assert.Assert(t, !errors.Is(err, ErrSolverDivergence))
}

func TestSingleBus(t *testing.T) {
	n, err := topology.New(topology.Spec{
		Buses:      []topology.Bus{{ID: "A", VNom: 20}},
		Generators: []topology.Generator{{ID: "G", Bus: "A", PNom: 10, Slack: true}},
		Loads:      []topology.Load{{ID: "L", Bus: "A", PSet: 4}},
	})
	assert.NilError(t, err)

	sol, err := New().Solve(n, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(sol.Flows), 0)
	assert.Assert(t, near(sol.SlackInjection, 4))
}
