package modbuscomm

// ModbusComm reads a register map from a device.
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
}

// DataType defines the type of Modbus register for encoding/decoding
type DataType string

// Constants of DataType
const (
	U16 DataType = "u16"
	I16 DataType = "i16"
	U32 DataType = "u32"
	I32 DataType = "i32"
	F32 DataType = "f32"
)

// Function codes supported for reads.
const (
	HoldingRegisters = 3
	InputRegisters   = 4
)

// Endian byte order of Modbus register for encoding/decoding
type Endian string

// Constants of Endian
const (
	LittleEndian Endian = "little"
	BigEndian    Endian = "big"
)

// Register contains the data required to read a Modbus register.
// The decoded value is multiplied by Scale; a zero Scale reads as 1.
type Register struct {
	Name         string   `json:"Name" yaml:"name"`
	Address      uint16   `json:"Address" yaml:"address"`
	DataType     DataType `json:"DataType" yaml:"data_type"`
	FunctionCode int      `json:"FunctionCode" yaml:"function_code"`
	Endianness   Endian   `json:"Endianness" yaml:"endianness"`
	Scale        float64  `json:"Scale" yaml:"scale"`
}
