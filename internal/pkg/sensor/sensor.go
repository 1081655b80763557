// Package sensor provides transformer telemetry sources. The source is chosen once at startup
// and handed to the telemetry loop.
package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/asset"
)

// Source reads one telemetry sample for an asset carrying loadPercent of its rating.
type Source interface {
	Read(assetID string, loadPercent float64) (asset.Telemetry, error)
}

// Synthetic sample bounds.
const (
	OilBaseTemperature = 40.0
	OilLoadCoefficient = 0.5
	OilNoise           = 2.0
	VibrationMin       = 0.1
	VibrationMax       = 1.2
	GasMin             = 5.0
	GasMax             = 15.0
)

// Synthetic derives readings from loading with bounded uniform noise.
type Synthetic struct {
	mux *sync.Mutex
	rng *rand.Rand
}

// NewSynthetic returns a Synthetic source. A zero seed seeds from the clock.
func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{
		mux: &sync.Mutex{},
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Read never fails.
func (s *Synthetic) Read(assetID string, loadPercent float64) (asset.Telemetry, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return asset.Telemetry{
		LoadPercent:     loadPercent,
		OilTemperature:  OilBaseTemperature + OilLoadCoefficient*loadPercent + s.uniform(-OilNoise, OilNoise),
		Vibration:       s.uniform(VibrationMin, VibrationMax),
		DissolvedGasPPM: s.uniform(GasMin, GasMax),
	}, nil
}

func (s *Synthetic) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}
