package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Health status labels.
const (
	Good     = "Good"
	Critical = "Critical"
)

// Telemetry is one sensor sample for a physical asset.
type Telemetry struct {
	LoadPercent     float64 `json:"LoadPercent"`
	OilTemperature  float64 `json:"OilTemperature"`  // °C
	Vibration       float64 `json:"Vibration"`       // mm/s
	DissolvedGasPPM float64 `json:"DissolvedGasPPM"` // H2, ppm
}

// HealthRecord is the latest health assessment of an asset.
type HealthRecord struct {
	AssetID     string    `json:"AssetID"`
	HealthScore float64   `json:"HealthScore"`
	Status      string    `json:"Status"`
	LastUpdate  time.Time `json:"LastUpdate"`
}

// Model converts telemetry into a HealthRecord and remembers the latest one.
type Model interface {
	ID() string
	Update(Telemetry) HealthRecord
	Record() HealthRecord
}

// Manager is a registry of asset health models keyed by asset id.
type Manager struct {
	mux    *sync.RWMutex
	assets map[string]Model
}

// NewManager returns a Manager holding models.
func NewManager(models ...Model) (*Manager, error) {
	m := &Manager{
		mux:    &sync.RWMutex{},
		assets: make(map[string]Model, len(models)),
	}
	for _, model := range models {
		if err := m.Add(model); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers a model. Asset ids must be unique.
func (m *Manager) Add(model Model) error {
	if model == nil {
		return errors.New("asset manager: nil model")
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, exists := m.assets[model.ID()]; exists {
		return fmt.Errorf("asset manager: asset %q already registered", model.ID())
	}
	m.assets[model.ID()] = model
	return nil
}

// ProcessTelemetry updates the model for id. ok is false for unknown ids.
func (m *Manager) ProcessTelemetry(id string, t Telemetry) (HealthRecord, bool) {
	m.mux.RLock()
	model, ok := m.assets[id]
	m.mux.RUnlock()
	if !ok {
		return HealthRecord{}, false
	}
	return model.Update(t), true
}

// Record returns the latest record for id.
func (m *Manager) Record(id string) (HealthRecord, bool) {
	m.mux.RLock()
	model, ok := m.assets[id]
	m.mux.RUnlock()
	if !ok {
		return HealthRecord{}, false
	}
	return model.Record(), true
}

// IDs returns the registered asset ids, sorted.
func (m *Manager) IDs() []string {
	m.mux.RLock()
	defer m.mux.RUnlock()
	ids := make([]string, 0, len(m.assets))
	for id := range m.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
