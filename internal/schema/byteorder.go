package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/x448/float16"
)

var ByteOrder *CustomByteOrder

type CustomByteOrder struct {
	binary.ByteOrder
}

// Init detects host endianness and installs the byte-order helpers used
// by the binary tensor codec. Must run before any file is read or
// written.
func Init() {
	loadByteOrder()
}

func loadByteOrder() {
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)

	switch buf {
	case [2]byte{0xCD, 0xAB}:
		ByteOrder = &CustomByteOrder{binary.LittleEndian}
	case [2]byte{0xAB, 0xCD}:
		ByteOrder = &CustomByteOrder{binary.BigEndian}
	default:
		panic("Could not determine endianness.")
	}
}

func (c *CustomByteOrder) PutFloat16FromFP32(b []byte, v float32) {
	fp16 := float16.Fromfloat32(v)
	c.ByteOrder.PutUint16(b, fp16.Bits())
}

func (c *CustomByteOrder) PutFloat32(b []byte, v float32) {
	c.PutUint32(b, math.Float32bits(v))
}

func (c *CustomByteOrder) Float16AsFP32(b []byte) float32 {
	return float16.Frombits(c.ByteOrder.Uint16(b)).Float32()
}

func (c *CustomByteOrder) Float32(b []byte) float32 {
	return math.Float32frombits(c.Uint32(b))
}

func (c *CustomByteOrder) Float32Vector(b []byte) []float32 {
	if len(b)%4 != 0 {
		panic("invalid byte slice length: must be a multiple of 4")
	}
	n := len(b) / 4
	result := make([]float32, n)

	for i := 0; i < n; i++ {
		offset := i * 4
		result[i] = math.Float32frombits(c.Uint32(b[offset : offset+4]))
	}

	return result
}

func (c *CustomByteOrder) FP16Vector(b []byte) []float32 {
	if len(b)%2 != 0 {
		panic("invalid byte slice length: must be a multiple of 2")
	}

	n := len(b) / 2 // Number of FP16 elements
	result := make([]float32, n)

	for i := 0; i < n; i++ {
		offset := i * 2
		result[i] = c.Float16AsFP32(b[offset : offset+2])
	}

	return result
}

func (c *CustomByteOrder) PutInt32(b []byte, v int32) {
	c.PutUint32(b, uint32(v))
}

func (c *CustomByteOrder) Int32(b []byte) int32 {
	return int32(c.Uint32(b))
}

// GetToByteFloat returns the writer for one float element at the given
// storage precision.
func GetToByteFloat(p enums.Precision) (func([]byte, float32), error) {
	switch p {
	case enums.PrecisionFP16:
		return ByteOrder.PutFloat16FromFP32, nil
	case enums.PrecisionFP32:
		return ByteOrder.PutFloat32, nil
	default:
		return nil, fmt.Errorf("unsupported precision: %s", p)
	}
}

// GetFromByteFloat returns the reader for one float element at the given
// storage precision.
func GetFromByteFloat(p enums.Precision) (func([]byte) float32, error) {
	switch p {
	case enums.PrecisionFP16:
		return ByteOrder.Float16AsFP32, nil
	case enums.PrecisionFP32:
		return ByteOrder.Float32, nil
	default:
		return nil, fmt.Errorf("unsupported precision: %s", p)
	}
}
