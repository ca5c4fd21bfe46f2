package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/safetensors"
	"github.com/samcharles93/rekindle/internal/tensor"
)

// IO loads and saves weight state for a strategy. LoadCheckpoint is
// selective: only the shards named by the sharded state dict are read.
type IO interface {
	LoadCheckpoint(dir string, sharded tensor.ShardedStateDict) (tensor.StateDict, error)
	SaveCheckpoint(dir string, state tensor.StateDict) error
}

// DirIO is safetensors-backed checkpoint IO over a weights directory.
type DirIO struct {
	// SaveDType is the precision weights are written at. Zero means F32.
	SaveDType dtype.DType
}

var _ IO = DirIO{}

// LoadCheckpoint reads the shards requested by sharded from the
// directory's weights file. Every requested key must be present.
func (io DirIO) LoadCheckpoint(dir string, sharded tensor.ShardedStateDict) (tensor.StateDict, error) {
	f, err := safetensors.Open(filepath.Join(dir, WeightsFilename))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint weights: %w", err)
	}

	state := make(tensor.StateDict, len(sharded))
	for key := range sharded {
		t, err := f.ReadTensor(key)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", dir, err)
		}
		state[key] = t
	}
	return state, nil
}

// SaveCheckpoint writes state into the directory's weights file,
// creating the directory if needed.
func (io DirIO) SaveCheckpoint(dir string, state tensor.StateDict) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return safetensors.Write(filepath.Join(dir, WeightsFilename), state, io.SaveDType)
}
