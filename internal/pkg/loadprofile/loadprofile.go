/*
loadprofile.go Synthetic load generation. Each step draws a setpoint for every load as
  diurnal factor (indexed by step mod period) × category base magnitude × noise in [NoiseMin, NoiseMax].
The category of a load is found by substring match on its id. All randomness of the twin lives here.
*/

package loadprofile

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/topology"
)

// Category groups loads that share a base magnitude.
type Category string

const (
	Residential Category = "Residential"
	Commercial  Category = "Commercial"
	Industrial  Category = "Industrial"
	Unknown     Category = ""
)

// DefaultDiurnal is a simplified twelve step day/night cycle.
var DefaultDiurnal = []float64{0.4, 0.3, 0.3, 0.4, 0.6, 0.8, 0.9, 0.9, 0.8, 0.7, 0.5, 0.4}

// Config parameterises a Generator.
type Config struct {
	Diurnal    []float64
	Magnitudes map[Category]float64 // MW
	Fallback   float64              // MW for loads that match no category
	NoiseMin   float64
	NoiseMax   float64
}

// DefaultConfig returns the standard profile: residential 5 MW, commercial 4 MW,
// industrial 8 MW, ±20 % noise.
func DefaultConfig() Config {
	return Config{
		Diurnal: append([]float64(nil), DefaultDiurnal...),
		Magnitudes: map[Category]float64{
			Residential: 5,
			Commercial:  4,
			Industrial:  8,
		},
		Fallback: 5,
		NoiseMin: 0.8,
		NoiseMax: 1.2,
	}
}

// Generator produces noisy load vectors. Safe for concurrent use.
type Generator struct {
	mux    *sync.Mutex
	rng    *rand.Rand
	config Config
}

// New returns a Generator drawing noise from a source seeded with seed. A zero seed uses the clock.
func New(config Config, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(config.Diurnal) == 0 {
		config.Diurnal = append([]float64(nil), DefaultDiurnal...)
	}
	if config.NoiseMax < config.NoiseMin {
		config.NoiseMin, config.NoiseMax = config.NoiseMax, config.NoiseMin
	}
	return &Generator{
		mux:    &sync.Mutex{},
		rng:    rand.New(rand.NewSource(seed)),
		config: config,
	}
}

// Period is the number of steps in one diurnal cycle.
func (g *Generator) Period() int {
	return len(g.config.Diurnal)
}

// Factor returns the diurnal factor for step.
func (g *Generator) Factor(step int) float64 {
	p := len(g.config.Diurnal)
	i := step % p
	if i < 0 {
		i += p
	}
	return g.config.Diurnal[i]
}

// Magnitude returns the base magnitude for a load id.
func (g *Generator) Magnitude(loadID string) float64 {
	if m, ok := g.config.Magnitudes[Classify(loadID)]; ok {
		return m
	}
	return g.config.Fallback
}

// Vector draws a setpoint for each load at step.
func (g *Generator) Vector(step int, loads []topology.Load) map[string]float64 {
	factor := g.Factor(step)
	out := make(map[string]float64, len(loads))

	g.mux.Lock()
	defer g.mux.Unlock()
	for _, l := range loads {
		noise := g.config.NoiseMin + g.rng.Float64()*(g.config.NoiseMax-g.config.NoiseMin)
		out[l.ID] = g.Magnitude(l.ID) * factor * noise
	}
	return out
}

// Classify maps a load id to its category, case-insensitively.
func Classify(loadID string) Category {
	id := strings.ToLower(loadID)
	switch {
	case strings.Contains(id, "industrial"):
		return Industrial
	case strings.Contains(id, "commercial"):
		return Commercial
	case strings.Contains(id, "residential"):
		return Residential
	}
	return Unknown
}
