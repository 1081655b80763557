package loadprofile

import (
	"testing"

	"github.com/ohowland/substation_twin/internal/pkg/topology"
	"gotest.tools/v3/assert"
)

var loads = []topology.Load{
	{ID: "Load_Residential"},
	{ID: "Load_Commercial"},
	{ID: "Load_Industrial"},
	{ID: "Pump_Station"},
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Classify("Load_Residential"), Residential)
	assert.Equal(t, Classify("load_commercial_2"), Commercial)
	assert.Equal(t, Classify("INDUSTRIAL-Park"), Industrial)
	assert.Equal(t, Classify("Pump_Station"), Unknown)
}

func TestFactorWraps(t *testing.T) {
	g := New(DefaultConfig(), 1)
	assert.Equal(t, g.Period(), 12)
	assert.Equal(t, g.Factor(0), 0.4)
	assert.Equal(t, g.Factor(6), 0.9)
	assert.Equal(t, g.Factor(12), g.Factor(0))
	assert.Equal(t, g.Factor(25), g.Factor(1))
	assert.Equal(t, g.Factor(-1), g.Factor(11))
}

func TestVectorBounds(t *testing.T) {
	g := New(DefaultConfig(), 42)
	for step := 0; step < 200; step++ {
		v := g.Vector(step, loads)
		assert.Equal(t, len(v), len(loads))
		f := g.Factor(step)
		for _, l := range loads {
			base := g.Magnitude(l.ID) * f
			assert.Assert(t, v[l.ID] >= base*0.8-1e-12, "%s below bound at step %d", l.ID, step)
			assert.Assert(t, v[l.ID] <= base*1.2+1e-12, "%s above bound at step %d", l.ID, step)
		}
	}
}

func TestMagnitudes(t *testing.T) {
	g := New(DefaultConfig(), 1)
	assert.Equal(t, g.Magnitude("Load_Residential"), 5.0)
	assert.Equal(t, g.Magnitude("Load_Commercial"), 4.0)
	assert.Equal(t, g.Magnitude("Load_Industrial"), 8.0)
	assert.Equal(t, g.Magnitude("Pump_Station"), 5.0)
}

func TestSeededReproducible(t *testing.T) {
	a := New(DefaultConfig(), 7)
	b := New(DefaultConfig(), 7)
	for step := 0; step < 10; step++ {
		assert.DeepEqual(t, a.Vector(step, loads), b.Vector(step, loads))
	}
}

func TestNoNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseMin, cfg.NoiseMax = 1, 1
	g := New(cfg, 3)
	v := g.Vector(7, loads)
	assert.Equal(t, v["Load_Industrial"], 8*0.9)
}
