// Package modbussensor reads transformer telemetry from a monitoring IED over Modbus/TCP.
package modbussensor

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"

	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/comm/modbuscomm"
)

// Register names the device map must provide.
const (
	OilTemperature = "OilTemperature"
	Vibration      = "Vibration"
	DissolvedGas   = "DissolvedGas"
)

// Comm is the device connection and register map.
type Comm struct {
	TargetConfig modbuscomm.PollerConfig `json:"TargetConfig" yaml:"target_config"`
	Registers    []modbuscomm.Register   `json:"Registers" yaml:"registers"`
}

// Sensor implements sensor.Source against a Modbus device.
type Sensor struct {
	handler   modbuscomm.ModbusComm
	registers []modbuscomm.Register
}

// New validates the register map and builds a poller for the target.
func New(c Comm) (*Sensor, error) {
	return NewWithHandler(modbuscomm.NewPoller(c.TargetConfig), c.Registers)
}

// NewFromFile reads a JSON Comm from path.
func NewFromFile(path string) (*Sensor, error) {
	jsonConfig, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Comm{}
	if err := json.Unmarshal(jsonConfig, &c); err != nil {
		return nil, err
	}
	return New(c)
}

// NewWithHandler builds a Sensor over an existing ModbusComm.
func NewWithHandler(handler modbuscomm.ModbusComm, registers []modbuscomm.Register) (*Sensor, error) {
	have := make(map[string]bool, len(registers))
	for _, r := range registers {
		have[r.Name] = true
	}
	for _, name := range []string{OilTemperature, Vibration, DissolvedGas} {
		if !have[name] {
			return nil, fmt.Errorf("modbussensor: register map missing %s", name)
		}
	}
	return &Sensor{handler: handler, registers: registers}, nil
}

// Read polls the device. Load percent comes from the twin, not the device.
func (s *Sensor) Read(assetID string, loadPercent float64) (asset.Telemetry, error) {
	values, err := s.handler.Read(s.registers)
	if err != nil {
		return asset.Telemetry{}, fmt.Errorf("modbussensor %s: %w", assetID, err)
	}

	t := asset.Telemetry{LoadPercent: loadPercent}
	for name, dst := range map[string]*float64{
		OilTemperature: &t.OilTemperature,
		Vibration:      &t.Vibration,
		DissolvedGas:   &t.DissolvedGasPPM,
	} {
		v, ok := values[name]
		if !ok || math.IsNaN(v) {
			return asset.Telemetry{}, fmt.Errorf("modbussensor %s: no value for %s", assetID, name)
		}
		*dst = v
	}
	return t, nil
}
