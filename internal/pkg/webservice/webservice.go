// Package webservice is the HTTP and websocket surface collaborators use to read the twin and
// inject anomalies.
package webservice

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
)

// Grid is the twin as seen by HTTP handlers.
type Grid interface {
	Status() twin.Status
	InjectAnomaly(kind string) (twin.Outcome, bool)
}

// Frames exposes the latest telemetry frame.
type Frames interface {
	Latest() (telemetry.Frame, bool)
}

// Health exposes asset health records.
type Health interface {
	Record(id string) (asset.HealthRecord, bool)
}

// AnomalyRecorder counts unrecognised anomaly kinds.
type AnomalyRecorder interface {
	AnomalyIgnored(kind string)
}

// Options are the optional collaborators of a Server.
type Options struct {
	Hub      *Hub
	Metrics  http.Handler
	Recorder AnomalyRecorder
}

// SimulateResponse is the body returned by POST /api/grid/simulate.
type SimulateResponse struct {
	Status     string `json:"Status"`
	Scenario   string `json:"Scenario"`
	Recognised bool   `json:"Recognised"`
	Timestamp  int    `json:"Timestamp"`
	Degraded   bool   `json:"Degraded"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"Error"`
}

// Server routes requests to the twin, the telemetry loop and the asset manager.
type Server struct {
	router *mux.Router
	grid   Grid
	frames Frames
	health Health
	opts   Options
	srv    *http.Server
}

// New builds the router.
func New(grid Grid, frames Frames, health Health, opts Options) *Server {
	s := &Server{grid: grid, frames: frames, health: health, opts: opts}
	s.router = s.makeRouter()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) makeRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthCheck).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/grid/status", s.gridStatus).Methods("GET")
	api.HandleFunc("/grid/simulate", s.simulate).Methods("POST")
	api.HandleFunc("/telemetry/latest", s.latestTelemetry).Methods("GET")
	api.HandleFunc("/assets/{id}/health", s.assetHealth).Methods("GET")
	if s.opts.Hub != nil {
		api.Handle("/ws/live", s.opts.Hub).Methods("GET")
	}
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown. It returns nil once the server is shut down,
// including when Shutdown ran first.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. ln is closed on return.
func (s *Server) Serve(ln net.Listener) error {
	log.Println("[Webservice] Starting Server on", ln.Addr())
	err := s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server and any later Serve call.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		code = http.StatusInternalServerError
		body = []byte(`{"Error":"encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	w.Write(body)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Status": "ok"})
}

func (s *Server) gridStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.grid.Status())
}

// simulate injects the scenario named by the query parameter, overload when absent.
// Unrecognised scenarios are a logged no-op and still answer 200.
func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = string(twin.Overload)
	}
	outcome, ok := s.grid.InjectAnomaly(scenario)
	resp := SimulateResponse{
		Status:     "Anomaly Injected",
		Scenario:   scenario,
		Recognised: ok,
		Timestamp:  outcome.Timestamp,
		Degraded:   outcome.Degraded,
	}
	if !ok {
		resp.Status = "Ignored"
		if s.opts.Recorder != nil {
			s.opts.Recorder.AnomalyIgnored(scenario)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) latestTelemetry(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.frames.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{"no telemetry yet"})
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (s *Server) assetHealth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.health.Record(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{"unknown asset " + id})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
