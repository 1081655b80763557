// Package config loads the process configuration from a JSON or YAML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/mqtt"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/substation_twin/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/substation_twin/internal/pkg/sensor/modbussensor"
	"github.com/ohowland/substation_twin/internal/pkg/twin"

	"gopkg.in/yaml.v3"
)

// AddrEnv overrides HTTP.Addr when set.
const AddrEnv = "TWIN_HTTP_ADDR"

// Sensor sources.
const (
	SyntheticSensors = "synthetic"
	ModbusSensors    = "modbus"
)

// Config is the on-disk configuration shape.
type Config struct {
	HTTP      HTTPConfig      `json:"HTTP" yaml:"http"`
	Topology  string          `json:"Topology" yaml:"topology"` // empty selects the built-in scenario
	Twin      TwinConfig      `json:"Twin" yaml:"twin"`
	Telemetry TelemetryConfig `json:"Telemetry" yaml:"telemetry"`
	Sensors   SensorConfig    `json:"Sensors" yaml:"sensors"`
	Streams   StreamConfig    `json:"Streams" yaml:"streams"`
}

type HTTPConfig struct {
	Addr string `json:"Addr" yaml:"addr"`
}

type TwinConfig struct {
	Seed         int64  `json:"Seed" yaml:"seed"` // 0 seeds from the clock
	CriticalEdge string `json:"CriticalEdge" yaml:"critical_edge"`
}

type TelemetryConfig struct {
	IntervalMillis int    `json:"IntervalMillis" yaml:"interval_millis"`
	AssetID        string `json:"AssetID" yaml:"asset_id"`
}

type SensorConfig struct {
	Source string           `json:"Source" yaml:"source"`
	Modbus modbussensor.Comm `json:"Modbus" yaml:"modbus"`
}

type StreamConfig struct {
	NATS  natshandler.Config `json:"NATS" yaml:"nats"`
	MQTT  mqtt.Config        `json:"MQTT" yaml:"mqtt"`
	Mongo mongodb.Config     `json:"Mongo" yaml:"mongo"`
	SQL   sqldb.Config       `json:"SQL" yaml:"sql"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, applies defaults and the environment override, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, c)
	default:
		err = json.Unmarshal(raw, c)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if c.Topology != "" && !filepath.IsAbs(c.Topology) {
		// relative topology paths resolve against the config file when that file exists
		cand := filepath.Join(filepath.Dir(path), c.Topology)
		if _, err := os.Stat(cand); err == nil {
			c.Topology = cand
		}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if addr := os.Getenv(AddrEnv); addr != "" {
		c.HTTP.Addr = addr
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Twin.CriticalEdge == "" {
		c.Twin.CriticalEdge = twin.DefaultCriticalEdge
	}
	if c.Telemetry.IntervalMillis == 0 {
		c.Telemetry.IntervalMillis = 1000
	}
	if c.Telemetry.AssetID == "" {
		c.Telemetry.AssetID = c.Twin.CriticalEdge
	}
	if c.Sensors.Source == "" {
		c.Sensors.Source = SyntheticSensors
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Telemetry.IntervalMillis < 0 {
		return errors.New("telemetry.interval_millis must be positive")
	}
	switch c.Sensors.Source {
	case SyntheticSensors:
	case ModbusSensors:
		if c.Sensors.Modbus.TargetConfig.IPAddr == "" {
			return errors.New("sensors.modbus.target_config.ip_addr is required for modbus sensors")
		}
	default:
		return fmt.Errorf("sensors.source %q must be %q or %q", c.Sensors.Source, SyntheticSensors, ModbusSensors)
	}
	if c.Streams.SQL.Enabled {
		switch c.Streams.SQL.Driver {
		case "", sqldb.MySQL, sqldb.Postgres:
		default:
			return fmt.Errorf("streams.sql.driver %q is not supported", c.Streams.SQL.Driver)
		}
	}
	return nil
}

// Interval is the telemetry loop cadence.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Telemetry.IntervalMillis) * time.Millisecond
}
