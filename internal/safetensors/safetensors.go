// Package safetensors reads and writes the safetensors container:
// an 8-byte little-endian header length, a JSON header mapping tensor
// names to dtype/shape/offsets, then the raw tensor data.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/tensor"
)

type TensorInfo struct {
	DType dtype.DType
	Shape []int
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of a safetensors file. Tensor data is read
// lazily via ReadTensor.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		dt, err := dtype.Parse(th.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = TensorInfo{
			DType: dt,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
	}, nil
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadTensor reads one tensor, decoded to float32.
func (f *File) ReadTensor(name string) (tensor.Tensor, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return tensor.Tensor{}, fmt.Errorf("tensor not found: %s", name)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return tensor.Tensor{}, err
	}
	defer func() { _ = file.Close() }()

	raw := make([]byte, info.End-info.Start)
	if _, err := file.ReadAt(raw, f.DataStart+info.Start); err != nil {
		return tensor.Tensor{}, fmt.Errorf("read tensor %s: %w", name, err)
	}

	data, err := dtype.Decode(info.DType, raw)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	if want := tensor.NumElements(info.Shape); len(data) != want {
		return tensor.Tensor{}, fmt.Errorf("tensor %s: shape %v implies %d elements, file holds %d", name, info.Shape, want, len(data))
	}
	return tensor.Tensor{Data: data, Shape: append([]int(nil), info.Shape...)}, nil
}

// Write serializes a state dict to path at the given precision,
// tensors laid out in sorted name order.
func Write(path string, state tensor.StateDict, dt dtype.DType) error {
	if dt == dtype.Unspecified {
		dt = dtype.F32
	}

	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]tensorHeader, len(state))
	payload := make([][]byte, 0, len(names))
	var offset int64
	for _, name := range names {
		t := state[name]
		if err := t.Validate(); err != nil {
			return err
		}
		raw, err := dtype.Encode(dt, t.Data)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		header[name] = tensorHeader{
			DType:       dt.String(),
			Shape:       t.Shape,
			DataOffsets: []int64{offset, offset + int64(len(raw))},
		}
		payload = append(payload, raw)
		offset += int64(len(raw))
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(headerBytes); err != nil {
		_ = f.Close()
		return err
	}
	for _, raw := range payload {
		if _, err := f.Write(raw); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}
