package metrics

import (
	"errors"
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
)

func frame(loading float64, degraded bool) telemetry.Frame {
	return telemetry.Frame{
		Grid: twin.Status{
			TotalLoadMW:               17,
			TransformerLoadingPercent: loading,
			Alerts:                    []string{"WARNING: Transformer T1_Transformer High Load"},
			Degraded:                  degraded,
			EdgeLoading:               map[string]float64{"T1_Transformer": loading, "Feeder_1_Res": 50},
		},
		Assets: map[string]telemetry.AssetFrame{
			"T1_Transformer": {Health: asset.HealthRecord{AssetID: "T1_Transformer", HealthScore: 80}},
		},
	}
}

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame(frame(85, true))
	m.ObserveFrame(frame(42.5, false))

	assert.Equal(t, testutil.ToFloat64(m.frames), 2.0)
	assert.Equal(t, testutil.ToFloat64(m.transformerLoad), 42.5)
	assert.Equal(t, testutil.ToFloat64(m.totalLoad), 17.0)
	assert.Equal(t, testutil.ToFloat64(m.alerts), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.degraded), 0.0)
	assert.Equal(t, testutil.ToFloat64(m.edgeLoading.WithLabelValues("Feeder_1_Res")), 50.0)
	assert.Equal(t, testutil.ToFloat64(m.healthScore.WithLabelValues("T1_Transformer")), 80.0)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Degraded(errors.New("singular"))
	m.SensorError("T1_Transformer")
	m.SensorError("T1_Transformer")
	m.DeliveryFailure()
	m.AnomalyIgnored("earthquake")
	m.StreamFailure("nats")

	assert.Equal(t, testutil.ToFloat64(m.divergences), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.sensorErrors.WithLabelValues("T1_Transformer")), 2.0)
	assert.Equal(t, testutil.ToFloat64(m.deliveryFailures), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.ignoredAnomalies.WithLabelValues("earthquake")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.streamFailures.WithLabelValues("nats")), 1.0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFrame(frame(85, false))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := ioutil.ReadAll(rec.Body)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(body), "substation_transformer_loading_percent 85"))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.DeliveryFailure()
	assert.Equal(t, testutil.ToFloat64(b.deliveryFailures), 0.0)
}
