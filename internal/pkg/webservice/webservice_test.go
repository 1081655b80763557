package webservice

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/asset/transformer"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/loadprofile"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/powerflow"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/topology"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
	"gotest.tools/v3/assert"
)

type stubFrames struct {
	frame telemetry.Frame
	ok    bool
}

func (f stubFrames) Latest() (telemetry.Frame, bool) { return f.frame, f.ok }

type ignored map[string]int

func (i ignored) AnomalyIgnored(kind string) { i[kind]++ }

func newServer(t *testing.T, frames Frames, opts Options) *Server {
	network, err := topology.SubstationAlpha()
	assert.NilError(t, err)
	tw, err := twin.New(network, powerflow.New(), loadprofile.New(loadprofile.DefaultConfig(), 1), twin.Config{})
	assert.NilError(t, err)
	m, err := asset.NewManager(transformer.New("T1_Transformer", transformer.DefaultConfig()))
	assert.NilError(t, err)
	return New(tw, frames, m, opts)
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, "http://example.com"+target, nil))
	return w
}

func TestHealthCheck(t *testing.T) {
	w := serve(newServer(t, stubFrames{}, Options{}), "GET", "/health")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json; charset=UTF-8")
}

func TestGridStatus(t *testing.T) {
	w := serve(newServer(t, stubFrames{}, Options{}), "GET", "/api/grid/status")
	assert.Equal(t, w.Code, http.StatusOK)

	status := twin.Status{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, status.Timestamp, 0)
	assert.Equal(t, status.TotalLoadMW, 17.0)
	assert.Equal(t, status.TransformerLoadingPercent, 42.5)
	assert.Equal(t, len(status.Alerts), 0)
}

func TestSimulateOverload(t *testing.T) {
	s := newServer(t, stubFrames{}, Options{})
	w := serve(s, "POST", "/api/grid/simulate?scenario=overload")
	assert.Equal(t, w.Code, http.StatusOK)

	resp := SimulateResponse{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, resp.Status, "Anomaly Injected")
	assert.Assert(t, resp.Recognised)

	status := twin.Status{}
	assert.NilError(t, json.Unmarshal(serve(s, "GET", "/api/grid/status").Body.Bytes(), &status))
	assert.Equal(t, status.TransformerLoadingPercent, 85.0)
	assert.DeepEqual(t, status.Alerts, []string{"WARNING: Transformer T1_Transformer High Load"})
}

func TestSimulateDefaultsToOverload(t *testing.T) {
	w := serve(newServer(t, stubFrames{}, Options{}), "POST", "/api/grid/simulate")
	resp := SimulateResponse{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, resp.Scenario, "overload")
	assert.Assert(t, resp.Recognised)
}

func TestSimulateUnknownScenario(t *testing.T) {
	rec := ignored{}
	s := newServer(t, stubFrames{}, Options{Recorder: rec})
	w := serve(s, "POST", "/api/grid/simulate?scenario=earthquake")
	assert.Equal(t, w.Code, http.StatusOK)

	resp := SimulateResponse{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, resp.Status, "Ignored")
	assert.Assert(t, !resp.Recognised)
	assert.Equal(t, rec["earthquake"], 1)

	status := twin.Status{}
	assert.NilError(t, json.Unmarshal(serve(s, "GET", "/api/grid/status").Body.Bytes(), &status))
	assert.Equal(t, status.TransformerLoadingPercent, 42.5)
}

func TestSimulateRejectsGet(t *testing.T) {
	w := serve(newServer(t, stubFrames{}, Options{}), "GET", "/api/grid/simulate")
	assert.Equal(t, w.Code, http.StatusMethodNotAllowed)
}

func TestLatestTelemetry(t *testing.T) {
	w := serve(newServer(t, stubFrames{}, Options{}), "GET", "/api/telemetry/latest")
	assert.Equal(t, w.Code, http.StatusServiceUnavailable)

	id := uuid.New()
	w = serve(newServer(t, stubFrames{frame: telemetry.Frame{ID: id}, ok: true}, Options{}), "GET", "/api/telemetry/latest")
	assert.Equal(t, w.Code, http.StatusOK)
	frame := telemetry.Frame{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &frame))
	assert.Equal(t, frame.ID, id)
}

func TestAssetHealth(t *testing.T) {
	s := newServer(t, stubFrames{}, Options{})
	w := serve(s, "GET", "/api/assets/T1_Transformer/health")
	assert.Equal(t, w.Code, http.StatusOK)
	rec := asset.HealthRecord{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, rec.AssetID, "T1_Transformer")
	assert.Equal(t, rec.Status, asset.Good)

	w = serve(s, "GET", "/api/assets/T9/health")
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	w := serve(newServer(t, stubFrames{}, Options{Metrics: metrics}), "GET", "/metrics")
	assert.Equal(t, w.Body.String(), "ok")

	w = serve(newServer(t, stubFrames{}, Options{}), "GET", "/metrics")
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestLiveFeed(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	hub := NewHub()
	sink, err := datastreams.NewSink("Websocket", pub, nil)
	assert.NilError(t, err)
	go sink.Run(hub)
	defer sink.Stop()

	ts := httptest.NewServer(newServer(t, stubFrames{}, Options{Hub: hub}).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws/live", nil)
	assert.NilError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, hub.Clients(), 1)

	pub.Publish(msg.Alert, telemetry.Alert{Tick: 4, Message: "CRITICAL: Transformer T1_Transformer Overload Risk"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := conn.ReadMessage()
	assert.NilError(t, err)

	env := struct {
		Type string
		Data telemetry.Alert
	}{}
	assert.NilError(t, json.Unmarshal(body, &env))
	assert.Equal(t, env.Type, "alert")
	assert.Equal(t, env.Data.Tick, 4)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	assert.NilError(t, err)
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, hub.Clients(), 0)
}

func waitServe(t *testing.T, errc <-chan error) {
	t.Helper()
	select {
	case err := <-errc:
		assert.NilError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server still running after Shutdown returned")
	}
}

func TestServeAndShutdown(t *testing.T) {
	s := newServer(t, stubFrames{}, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	assert.NilError(t, s.Shutdown(context.Background()))
	waitServe(t, errc)
}

func TestShutdownDuringStartup(t *testing.T) {
	s := newServer(t, stubFrames{}, Options{})
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe("127.0.0.1:0") }()

	assert.NilError(t, s.Shutdown(context.Background()))
	waitServe(t, errc)
}

func TestShutdownBeforeServe(t *testing.T) {
	s := newServer(t, stubFrames{}, Options{})
	assert.NilError(t, s.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	assert.NilError(t, s.Serve(ln))
}
