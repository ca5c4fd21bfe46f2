package checkpoint

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRestoreSourceDirect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(WeightsDir(dir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	src, err := ResolveRestoreSource(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if src.Kind != SourceDirect {
		t.Fatalf("kind: got %v", src.Kind)
	}
	if src.Path != dir {
		t.Fatalf("path: got %q, want %q", src.Path, dir)
	}
	if src.AdapterWeightsDir != "" {
		t.Fatalf("adapter weights dir should be empty, got %q", src.AdapterWeightsDir)
	}
}

func TestResolveRestoreSourceAdapter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(t.TempDir(), "base")
	if err := SaveAdapterMetadata(dir, AdapterMetadata{ModelCkptPath: base}); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	src, err := ResolveRestoreSource(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if src.Kind != SourceViaAdapterBase {
		t.Fatalf("kind: got %v", src.Kind)
	}
	if src.Path != base {
		t.Fatalf("path: got %q, want base %q", src.Path, base)
	}
	if src.AdapterWeightsDir != WeightsDir(dir) {
		t.Fatalf("adapter weights dir: got %q", src.AdapterWeightsDir)
	}
}

func TestResolveRestoreSourceMalformedMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(WeightsDir(dir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(WeightsDir(dir), AdapterMetadataFilename)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ResolveRestoreSource(dir); err == nil {
		t.Fatal("expected parse error to propagate")
	}

	if err := os.WriteFile(path, []byte(`{"model_ckpt_path": ""}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ResolveRestoreSource(dir); err == nil {
		t.Fatal("expected empty base path error")
	}
}

func TestLoadAdapterMetadataAbsent(t *testing.T) {
	t.Parallel()

	_, err := LoadAdapterMetadata(t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestRestoreConfigFor(t *testing.T) {
	t.Parallel()

	cfg := RestoreConfigFor(RestoreSource{Kind: SourceDirect, Path: "/ckpt"})
	if cfg.Path != "/ckpt" {
		t.Fatalf("path: got %q", cfg.Path)
	}
	if !cfg.LoadModelState {
		t.Fatal("model state must load")
	}
	if cfg.LoadOptimState {
		t.Fatal("optimizer state must not load")
	}
}
