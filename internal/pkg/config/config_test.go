package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/comm/modbuscomm"
	"gotest.tools/v3/assert"
)

func TestDefault(t *testing.T) {
	t.Setenv(AddrEnv, "")
	c := Default()
	assert.Equal(t, c.HTTP.Addr, ":8080")
	assert.Equal(t, c.Twin.CriticalEdge, "T1_Transformer")
	assert.Equal(t, c.Telemetry.AssetID, "T1_Transformer")
	assert.Equal(t, c.Interval(), time.Second)
	assert.Equal(t, c.Sensors.Source, SyntheticSensors)
	assert.NilError(t, c.Validate())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv(AddrEnv, "")
	c, err := Load("testdata/twin.yaml")
	assert.NilError(t, err)
	assert.Equal(t, c.HTTP.Addr, ":9090")
	assert.Equal(t, c.Topology, filepath.Join("testdata", "topology.yaml"))
	assert.Equal(t, c.Twin.Seed, int64(42))
	assert.Equal(t, c.Interval(), 500*time.Millisecond)
	assert.Assert(t, c.Streams.NATS.Enabled)
	assert.Equal(t, c.Streams.NATS.Server, "nats://broker:4222")
	assert.Equal(t, c.Streams.SQL.Driver, "postgres")
	assert.Assert(t, !c.Streams.MQTT.Enabled)
}

func TestLoadJSON(t *testing.T) {
	t.Setenv(AddrEnv, "")
	c, err := Load("testdata/twin.json")
	assert.NilError(t, err)
	assert.Equal(t, c.Twin.CriticalEdge, "Feeder_3_Ind")
	assert.Equal(t, c.Telemetry.AssetID, "Feeder_3_Ind")
	assert.Equal(t, c.Sensors.Source, ModbusSensors)
	assert.Equal(t, c.Sensors.Modbus.TargetConfig.IPAddr, "10.0.0.20")
	assert.Equal(t, len(c.Sensors.Modbus.Registers), 3)
	assert.Equal(t, c.Sensors.Modbus.Registers[0].FunctionCode, modbuscomm.InputRegisters)
	assert.Equal(t, c.Streams.Mongo.URI, "mongodb://db:27017")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(AddrEnv, "127.0.0.1:7000")
	c, err := Load("testdata/twin.yaml")
	assert.NilError(t, err)
	assert.Equal(t, c.HTTP.Addr, "127.0.0.1:7000")
}

func TestValidate(t *testing.T) {
	_, err := Load("testdata/bad_source.json")
	assert.ErrorContains(t, err, `sensors.source "scada"`)

	c := Default()
	c.Sensors.Source = ModbusSensors
	assert.ErrorContains(t, c.Validate(), "ip_addr is required")

	c = Default()
	c.Streams.SQL.Enabled = true
	c.Streams.SQL.Driver = "oracle"
	assert.ErrorContains(t, c.Validate(), "not supported")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.ErrorContains(t, err, "no such file")
}
