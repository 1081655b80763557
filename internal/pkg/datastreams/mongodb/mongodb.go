// Package mongodb mirrors the latest grid status per publisher and appends alerts to MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config for the MongoDB handler.
type Config struct {
	Enabled  bool   `json:"Enabled" yaml:"enabled"`
	URI      string `json:"URI" yaml:"uri"`
	Database string `json:"Database" yaml:"database"`
	Timeout  int    `json:"Timeout" yaml:"timeout"` // milliseconds
}

// Collection names.
const (
	StatusCollection = "gridStatus"
	AlertCollection  = "alerts"
)

type collection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Handler upserts frames and inserts alerts.
type Handler struct {
	*datastreams.Sink
	config  Config
	connect func(context.Context, Config) (store, error)
}

type store struct {
	status, alerts collection
	disconnect     func(context.Context) error
}

// New subscribes a handler on system.
func New(cfg Config, system msg.Publisher, recorder datastreams.FailureRecorder) (*Handler, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://127.0.0.1:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "substation"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2000
	}
	sink, err := datastreams.NewSink("Mongo", system, recorder)
	if err != nil {
		return nil, err
	}
	return &Handler{Sink: sink, config: cfg, connect: dial}, nil
}

func (h *Handler) timeout() time.Duration {
	return time.Duration(h.config.Timeout) * time.Millisecond
}

// Process connects and mirrors until Stop. A failed connect is logged and ends the process.
func (h *Handler) Process() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout())
	s, err := h.connect(ctx, h.config)
	cancel()
	if err != nil {
		log.Printf("[Mongo] unable to connect to %s: %v\n", h.config.URI, err)
		return
	}
	h.Run(writer{h, s})
}

func dial(ctx context.Context, cfg Config) (store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return store{}, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return store{}, err
	}
	db := client.Database(cfg.Database)
	return store{
		status:     db.Collection(StatusCollection),
		alerts:     db.Collection(AlertCollection),
		disconnect: client.Disconnect,
	}, nil
}

type writer struct {
	h *Handler
	s store
}

func (w writer) Write(m msg.Msg) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.h.timeout())
	defer cancel()

	switch p := m.Payload().(type) {
	case telemetry.Frame:
		opts := options.Update().SetUpsert(true)
		_, err := w.s.status.UpdateOne(ctx, bson.M{"pid": m.PID().String()}, frameToBSON(m.PID().String(), p), opts)
		return err
	case telemetry.Alert:
		_, err := w.s.alerts.InsertOne(ctx, alertToBSON(m.PID().String(), p))
		return err
	}
	return fmt.Errorf("mongodb: unexpected payload %T", m.Payload())
}

func (w writer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.h.timeout())
	defer cancel()
	return w.s.disconnect(ctx)
}

func frameToBSON(pid string, f telemetry.Frame) bson.D {
	assets := bson.M{}
	for id, a := range f.Assets {
		assets[id] = bson.M{
			"loadPercent":     a.Telemetry.LoadPercent,
			"oilTemperature":  a.Telemetry.OilTemperature,
			"vibration":       a.Telemetry.Vibration,
			"dissolvedGasPpm": a.Telemetry.DissolvedGasPPM,
			"healthScore":     a.Health.HealthScore,
			"status":          a.Health.Status,
			"sensorError":     a.SensorError,
		}
	}
	return bson.D{
		{Key: "$set", Value: bson.M{
			"pid":                       pid,
			"frameId":                   f.ID.String(),
			"timestamp":                 f.Timestamp,
			"tick":                      f.Grid.Timestamp,
			"totalLoadMW":               f.Grid.TotalLoadMW,
			"transformerLoadingPercent": f.Grid.TransformerLoadingPercent,
			"alerts":                    append([]string{}, f.Grid.Alerts...),
			"degraded":                  f.Grid.Degraded,
			"edgeLoading":               f.Grid.EdgeLoading,
			"assets":                    assets,
		}},
	}
}

func alertToBSON(pid string, a telemetry.Alert) bson.M {
	return bson.M{
		"pid":       pid,
		"timestamp": a.Timestamp,
		"tick":      a.Tick,
		"message":   a.Message,
	}
}
