package modbuscomm

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// connector opens and closes the transport under a modbus.Client.
type connector interface {
	Connect() error
	Close() error
}

// Poller reads registers from a Modbus/TCP device, one connection per Read.
type Poller struct {
	mux     *sync.Mutex
	handler connector
	client  modbus.Client
}

// PollerConfig is the configuration format for Poller
type PollerConfig struct {
	IPAddr       string `json:"IPAddr" yaml:"ip_addr"`
	Port         string `json:"Port" yaml:"port"`
	SlaveID      byte   `json:"SlaveID" yaml:"slave_id"`
	Timeout      int    `json:"Timeout" yaml:"timeout"` // milliseconds
	EnableLogger bool   `json:"EnableLogger" yaml:"enable_logger"`
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig) *Poller {
	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	if cfg.EnableLogger {
		handler.Logger = log.New(os.Stdout, "modbus: ", log.LstdFlags)
	}

	return &Poller{
		mux:     &sync.Mutex{},
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

// Read returns the scaled value of every register keyed by register name. Registers that fail
// are omitted and the last error is returned alongside the values that were read.
func (m *Poller) Read(registers []Register) (map[string]float64, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if err := m.handler.Connect(); err != nil {
		return nil, err
	}
	defer m.handler.Close()

	var err error
	readValues := make(map[string]float64, len(registers))
	for _, register := range registers {
		resp, readErr := m.readRaw(register)
		if readErr != nil {
			err = fmt.Errorf("register %s: %w", register.Name, readErr)
			continue
		}
		readValues[register.Name] = Decode(resp, register)
	}
	return readValues, err
}

func (m *Poller) readRaw(register Register) ([]byte, error) {
	switch register.FunctionCode {
	case InputRegisters:
		return m.client.ReadInputRegisters(register.Address, SizeOf(register.DataType))
	case HoldingRegisters, 0:
		return m.client.ReadHoldingRegisters(register.Address, SizeOf(register.DataType))
	}
	return nil, fmt.Errorf("unsupported function code %d", register.FunctionCode)
}

// Decode converts the raw register bytes into a scaled float64.
func Decode(bytes []byte, register Register) float64 {
	need := 2 * int(SizeOf(register.DataType))
	if need == 0 || len(bytes) < need {
		return math.NaN()
	}

	var n float64
	endian := getByteOrder(register.Endianness)
	switch register.DataType {
	case U16:
		n = float64(endian.Uint16(bytes))
	case I16:
		n = float64(int16(endian.Uint16(bytes)))
	case U32:
		n = float64(endian.Uint32(bytes))
	case I32:
		n = float64(int32(endian.Uint32(bytes)))
	case F32:
		n = float64(math.Float32frombits(endian.Uint32(bytes)))
	}

	if register.Scale != 0 {
		n *= register.Scale
	}
	return n
}

// getByteOrder returns the correct binary.endian object for the register type
func getByteOrder(e Endian) binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// SizeOf returns the number of u16 registers for the datatype
func SizeOf(t DataType) uint16 {
	switch t {
	case U16, I16:
		return 1
	case U32, I32, F32:
		return 2
	}
	return 0
}
