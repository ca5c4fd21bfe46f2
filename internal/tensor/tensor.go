package tensor

import "fmt"

// Tensor is a dense parameter held in float32, regardless of the
// precision it was stored at.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NumElements returns the element count implied by the shape.
func NumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Zeros allocates a zero-filled tensor of the given shape.
func Zeros(shape ...int) Tensor {
	return Tensor{
		Data:  make([]float32, NumElements(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// Validate checks that the data length matches the shape.
func (t Tensor) Validate() error {
	if want := NumElements(t.Shape); len(t.Data) != want {
		return fmt.Errorf("tensor: shape %v implies %d elements, have %d", t.Shape, want, len(t.Data))
	}
	return nil
}

// StateDict maps parameter names to their full local values.
type StateDict map[string]Tensor

// ShardedSpec names one parameter shard owned by the current process.
// Single-process setups own the full parameter.
type ShardedSpec struct {
	Key   string
	Shape []int
}

// ShardedStateDict maps parameter names to the shard each process
// expects to load, as opposed to consolidated tensors.
type ShardedStateDict map[string]ShardedSpec

// Filter returns the subset of specs whose key satisfies keep.
func (d ShardedStateDict) Filter(keep func(key string) bool) ShardedStateDict {
	out := make(ShardedStateDict)
	for k, v := range d {
		if keep(k) {
			out[k] = v
		}
	}
	return out
}

// Merge copies src entries into dst, overwriting existing keys.
func (d StateDict) Merge(src StateDict) {
	for k, v := range src {
		d[k] = v
	}
}
