package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/asset/transformer"
	"github.com/ohowland/substation_twin/internal/pkg/config"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/mqtt"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/substation_twin/internal/pkg/loadprofile"
	"github.com/ohowland/substation_twin/internal/pkg/metrics"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/powerflow"
	"github.com/ohowland/substation_twin/internal/pkg/sensor"
	"github.com/ohowland/substation_twin/internal/pkg/sensor/modbussensor"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/topology"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
	"github.com/ohowland/substation_twin/internal/pkg/webservice"
)

// stream is a datastream handler run in its own goroutine.
type stream interface {
	Process()
	Stop()
}

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file")
	flag.Parse()

	log.Println("[Main] Starting Substation Twin v0.1.0")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}

	log.Println("[Main] Building Topology")
	network, err := buildNetwork(cfg)
	if err != nil {
		log.Fatalf("[Main] topology: %v", err)
	}

	log.Println("[Main] Building Twin")
	tw, err := twin.New(network, powerflow.New(), loadprofile.New(loadprofile.DefaultConfig(), cfg.Twin.Seed),
		twin.Config{CriticalEdge: cfg.Twin.CriticalEdge})
	if err != nil {
		log.Fatalf("[Main] twin: %v", err)
	}

	log.Println("[Main] Building Asset Health Models")
	assets, err := asset.NewManager(transformer.New(cfg.Telemetry.AssetID, transformer.DefaultConfig()))
	if err != nil {
		log.Fatalf("[Main] assets: %v", err)
	}

	log.Printf("[Main] Building %s Sensors\n", cfg.Sensors.Source)
	sensors, err := buildSensors(cfg)
	if err != nil {
		log.Fatalf("[Main] sensors: %v", err)
	}

	m := metrics.New()
	system := msg.NewPublisher(uuid.New())

	log.Println("[Main] Connecting Datastreams")
	streams, err := buildStreams(cfg, system, m)
	if err != nil {
		log.Fatalf("[Main] datastreams: %v", err)
	}
	hub := webservice.NewHub()
	hubSink, err := datastreams.NewSink("Websocket", system, m)
	if err != nil {
		log.Fatalf("[Main] websocket hub: %v", err)
	}
	go hubSink.Run(hub)
	for _, s := range streams {
		go s.Process()
	}

	log.Println("[Main] Starting Telemetry Loop")
	loop, err := telemetry.New(tw, assets, sensors, telemetry.Config{
		AssetID:  cfg.Telemetry.AssetID,
		Interval: cfg.Interval(),
		Recorder: m,
	})
	if err != nil {
		log.Fatalf("[Main] telemetry: %v", err)
	}
	loop.Start(telemetry.NewFanout(system).Deliver)

	server := webservice.New(tw, loop, assets, webservice.Options{
		Hub:      hub,
		Metrics:  m.Handler(),
		Recorder: m,
	})
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe(cfg.HTTP.Addr) }()

	select {
	case <-sigs:
	case err := <-serveErr:
		if err != nil {
			log.Printf("[Main] webservice: %v", err)
		}
	}

	log.Println("[Main] Stopping system")
	loop.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Main] webservice shutdown: %v", err)
	}
	hubSink.Stop()
	for _, s := range streams {
		s.Stop()
	}
	system.Close()
	log.Println("[Main] Stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildNetwork(cfg *config.Config) (*topology.Network, error) {
	if cfg.Topology == "" {
		return topology.SubstationAlpha()
	}
	return topology.LoadFile(cfg.Topology)
}

// buildSensors selects the sensor capability once; nothing probes for it later.
func buildSensors(cfg *config.Config) (sensor.Source, error) {
	switch cfg.Sensors.Source {
	case config.ModbusSensors:
		return modbussensor.New(cfg.Sensors.Modbus)
	default:
		return sensor.NewSynthetic(cfg.Twin.Seed), nil
	}
}

func buildStreams(cfg *config.Config, system msg.Publisher, m *metrics.Metrics) ([]stream, error) {
	var streams []stream
	if c := cfg.Streams.NATS; c.Enabled {
		h, err := natshandler.New(c, system, m)
		if err != nil {
			return nil, err
		}
		streams = append(streams, h)
	}
	if c := cfg.Streams.MQTT; c.Enabled {
		h, err := mqtt.New(c, system, m)
		if err != nil {
			return nil, err
		}
		streams = append(streams, h)
	}
	if c := cfg.Streams.Mongo; c.Enabled {
		h, err := mongodb.New(c, system, m)
		if err != nil {
			return nil, err
		}
		streams = append(streams, h)
	}
	if c := cfg.Streams.SQL; c.Enabled {
		h, err := sqldb.New(c, system, m)
		if err != nil {
			return nil, err
		}
		streams = append(streams, h)
	}
	return streams, nil
}
