package dtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType identifies the storage precision of tensor data. The zero value
// means "unspecified" so callers can fall back to a default.
type DType uint8

const (
	Unspecified DType = iota
	F32
	F16
	BF16
)

func (d DType) String() string {
	switch d {
	case F32:
		return "F32"
	case F16:
		return "F16"
	case BF16:
		return "BF16"
	default:
		return "unspecified"
	}
}

// Parse resolves a safetensors-style dtype name.
func Parse(s string) (DType, error) {
	switch s {
	case "F32", "f32":
		return F32, nil
	case "F16", "f16":
		return F16, nil
	case "BF16", "bf16":
		return BF16, nil
	default:
		return Unspecified, fmt.Errorf("unsupported dtype %q", s)
	}
}

// Size returns the number of bytes per element.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case F16, BF16:
		return 2
	default:
		return 0
	}
}

// Encode serializes values into little-endian bytes at the given precision.
func Encode(d DType, values []float32) ([]byte, error) {
	switch d {
	case F32:
		out := make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case F16:
		out := make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case BF16:
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("encode: unsupported dtype %s", d)
	}
}

// Decode deserializes little-endian bytes at the given precision.
func Decode(d DType, raw []byte) ([]float32, error) {
	size := d.Size()
	if size == 0 {
		return nil, fmt.Errorf("decode: unsupported dtype %s", d)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("decode: %d bytes is not a multiple of %d", len(raw), size)
	}
	switch d {
	case F32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case F16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	case BF16:
		return bfloat16.DecodeFloat32(raw), nil
	default:
		return nil, fmt.Errorf("decode: unsupported dtype %s", d)
	}
}

// Cast round-trips values through the given precision, returning the
// values as they would read back from storage. F32 is the identity.
func Cast(d DType, values []float32) ([]float32, error) {
	if d == F32 {
		return values, nil
	}
	raw, err := Encode(d, values)
	if err != nil {
		return nil, err
	}
	return Decode(d, raw)
}
