package asset

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// counterModel scores telemetry by load and counts updates.
type counterModel struct {
	id      string
	updates int
	last    HealthRecord
}

func (m *counterModel) ID() string { return m.id }

func (m *counterModel) Update(t Telemetry) HealthRecord {
	m.updates++
	m.last = HealthRecord{AssetID: m.id, HealthScore: 100 - t.LoadPercent, Status: Good, LastUpdate: time.Now()}
	return m.last
}

func (m *counterModel) Record() HealthRecord { return m.last }

func TestManagerProcessTelemetry(t *testing.T) {
	t1 := &counterModel{id: "T1_Transformer"}
	m, err := NewManager(t1)
	assert.NilError(t, err)

	rec, ok := m.ProcessTelemetry("T1_Transformer", Telemetry{LoadPercent: 30})
	assert.Assert(t, ok)
	assert.Equal(t, rec.HealthScore, 70.0)
	assert.Equal(t, t1.updates, 1)

	latest, ok := m.Record("T1_Transformer")
	assert.Assert(t, ok)
	assert.Equal(t, latest, rec)
}

func TestManagerUnknownAsset(t *testing.T) {
	m, err := NewManager()
	assert.NilError(t, err)

	_, ok := m.ProcessTelemetry("T9", Telemetry{})
	assert.Assert(t, !ok)
	_, ok = m.Record("T9")
	assert.Assert(t, !ok)
}

func TestManagerRejectsDuplicate(t *testing.T) {
	_, err := NewManager(&counterModel{id: "T1"}, &counterModel{id: "T1"})
	assert.ErrorContains(t, err, "already registered")
}

func TestManagerIDs(t *testing.T) {
	m, err := NewManager(&counterModel{id: "T2"}, &counterModel{id: "T1"})
	assert.NilError(t, err)
	assert.DeepEqual(t, m.IDs(), []string{"T1", "T2"})
}
