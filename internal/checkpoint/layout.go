// Package checkpoint defines the on-disk layout of a saved model
// checkpoint and the IO used to restore weights from it.
//
// A checkpoint directory holds a weights subdirectory and a context
// subdirectory. An adapter checkpoint additionally carries a metadata
// file under weights/ pointing back at the base checkpoint it was
// trained against.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

const (
	weightsSubdir = "weights"
	contextSubdir = "context"

	// AdapterMetadataFilename marks a checkpoint as adapter-only.
	AdapterMetadataFilename = "adapter_metadata.json"

	// WeightsFilename is the safetensors file DirIO reads and writes.
	WeightsFilename = "model.safetensors"
)

// WeightsDir returns the weights subdirectory of a checkpoint.
func WeightsDir(path string) string {
	return filepath.Join(path, weightsSubdir)
}

// ContextDir returns the context subdirectory of a checkpoint.
func ContextDir(path string) string {
	return filepath.Join(path, contextSubdir)
}

// AdapterMetadata records which base checkpoint an adapter checkpoint
// was trained against.
type AdapterMetadata struct {
	ModelCkptPath string `json:"model_ckpt_path"`
}

// LoadAdapterMetadata reads the adapter metadata of a checkpoint.
// It returns fs.ErrNotExist (wrapped) when the checkpoint carries none.
func LoadAdapterMetadata(path string) (AdapterMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(WeightsDir(path), AdapterMetadataFilename))
	if err != nil {
		return AdapterMetadata{}, err
	}
	var meta AdapterMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return AdapterMetadata{}, fmt.Errorf("parse %s: %w", AdapterMetadataFilename, err)
	}
	if meta.ModelCkptPath == "" {
		return AdapterMetadata{}, fmt.Errorf("%s: model_ckpt_path is empty", AdapterMetadataFilename)
	}
	return meta, nil
}

// SaveAdapterMetadata marks the checkpoint at path as adapter-only,
// recording the base checkpoint it overlays.
func SaveAdapterMetadata(path string, meta AdapterMetadata) error {
	if meta.ModelCkptPath == "" {
		return fmt.Errorf("%s: model_ckpt_path is empty", AdapterMetadataFilename)
	}
	if err := os.MkdirAll(WeightsDir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(WeightsDir(path), AdapterMetadataFilename), raw, 0o644)
}

// SourceKind tags the two ways a checkpoint can be restored.
type SourceKind int

const (
	// SourceDirect restores the full model state from the checkpoint
	// itself.
	SourceDirect SourceKind = iota
	// SourceViaAdapterBase restores the full model state from the base
	// checkpoint named by adapter metadata, then overlays adapter
	// weights from the adapter checkpoint.
	SourceViaAdapterBase
)

func (k SourceKind) String() string {
	switch k {
	case SourceDirect:
		return "direct"
	case SourceViaAdapterBase:
		return "via-adapter-base"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RestoreSource describes where full model weights come from and,
// for adapter checkpoints, where adapter weights come from.
type RestoreSource struct {
	Kind SourceKind

	// Path is the checkpoint whose weights restore the full model.
	Path string

	// AdapterWeightsDir is the weights directory holding adapter
	// tensors. Empty for direct restores.
	AdapterWeightsDir string
}

// ResolveRestoreSource inspects a checkpoint and decides how it must
// be restored. Malformed adapter metadata is an error; an absent
// metadata file selects a direct restore.
func ResolveRestoreSource(path string) (RestoreSource, error) {
	meta, err := LoadAdapterMetadata(path)
	switch {
	case err == nil:
		return RestoreSource{
			Kind:              SourceViaAdapterBase,
			Path:              meta.ModelCkptPath,
			AdapterWeightsDir: WeightsDir(path),
		}, nil
	case errors.Is(err, fs.ErrNotExist):
		return RestoreSource{Kind: SourceDirect, Path: path}, nil
	default:
		return RestoreSource{}, err
	}
}

// RestoreConfig describes what a strategy loads and from where.
// Built fresh per restore; immutable once installed.
type RestoreConfig struct {
	Path           string
	LoadModelState bool
	LoadOptimState bool
}

// RestoreConfigFor builds the inference-time restore config for a
// source: model weights only, never optimizer state.
func RestoreConfigFor(src RestoreSource) RestoreConfig {
	return RestoreConfig{
		Path:           src.Path,
		LoadModelState: true,
		LoadOptimState: false,
	}
}
