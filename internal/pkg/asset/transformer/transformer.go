/*
transformer.go Condition model for a high voltage power transformer. Inputs are load, top oil
temperature, tank vibration and dissolved hydrogen. The score is the current condition only:
each Update starts again from 100 and does not carry the previous score forward.
*/

package transformer

import (
	"math"
	"sync"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/asset"
)

// Condition bands.
const (
	baseCondition     = 100.0
	stressTemperature = 85.0
	stressGasPPM      = 50.0
	stressPenalty     = 20.0
	severeTemperature = 95.0
	severeGasPPM      = 100.0
	severePenalty     = 40.0
	criticalBelow     = 40.0
)

// Config holds the nameplate limits of the transformer.
//
// The limits are not consulted by the condition score, which uses the fixed bands above.
// They are carried for reporting and for a future limit-driven scoring revision.
type Config struct {
	MaxOilTemperature float64 `json:"MaxOilTemperature" yaml:"max_oil_temperature"` // °C
	MaxVibration      float64 `json:"MaxVibration" yaml:"max_vibration"`            // mm/s
	MaxGasPPM         float64 `json:"MaxGasPPM" yaml:"max_gas_ppm"`
}

// DefaultConfig returns nameplate limits of 90 °C, 5 mm/s and 100 ppm.
func DefaultConfig() Config {
	return Config{
		MaxOilTemperature: 90,
		MaxVibration:      5,
		MaxGasPPM:         100,
	}
}

// Health is the asset.Model for a transformer.
type Health struct {
	mux    *sync.RWMutex
	id     string
	config Config
	clock  func() time.Time
	record asset.HealthRecord
}

// New returns a Health model starting at full score.
func New(id string, config Config) *Health {
	return NewWithClock(id, config, time.Now)
}

// NewWithClock is New with an injectable time source.
func NewWithClock(id string, config Config, clock func() time.Time) *Health {
	return &Health{
		mux:    &sync.RWMutex{},
		id:     id,
		config: config,
		clock:  clock,
		record: asset.HealthRecord{
			AssetID:     id,
			HealthScore: baseCondition,
			Status:      asset.Good,
			LastUpdate:  clock(),
		},
	}
}

// ID is the asset id.
func (h *Health) ID() string {
	return h.id
}

// Config returns the nameplate limits.
func (h *Health) Config() Config {
	return h.config
}

// Update scores t and stores the result as the latest record.
func (h *Health) Update(t asset.Telemetry) asset.HealthRecord {
	score := Score(t)
	rec := asset.HealthRecord{
		AssetID:     h.id,
		HealthScore: score,
		Status:      Classify(score),
		LastUpdate:  h.clock(),
	}

	h.mux.Lock()
	h.record = rec
	h.mux.Unlock()
	return rec
}

// Record returns the latest record.
func (h *Health) Record() asset.HealthRecord {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return h.record
}

// Score is the condition score for one sample. Both bands may apply.
func Score(t asset.Telemetry) float64 {
	condition := baseCondition
	if t.OilTemperature > stressTemperature || t.DissolvedGasPPM > stressGasPPM {
		condition -= stressPenalty
	}
	if t.OilTemperature > severeTemperature || t.DissolvedGasPPM > severeGasPPM {
		condition -= severePenalty
	}
	return math.Max(0, condition)
}

// Classify labels a score. A score of exactly 40 is still Good.
func Classify(score float64) string {
	if score < criticalBelow {
		return asset.Critical
	}
	return asset.Good
}
