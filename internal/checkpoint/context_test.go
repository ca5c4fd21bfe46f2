package checkpoint

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
)

type testComponent struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func init() {
	Register("test-component", func(raw []byte) (any, error) {
		var c testComponent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return &c, nil
	})
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := map[string]any{
		"model": map[string]any{
			"type": "test-component",
			"name": "outer",
			"model_transform": map[string]any{
				"type": "test-component",
				"name": "inner",
			},
		},
	}
	if err := SaveContext(dir, root); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadContext(dir, "model")
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if c, ok := got.(*testComponent); !ok || c.Name != "outer" {
		t.Fatalf("model: got %#v", got)
	}

	got, err = LoadContext(dir, "model.model_transform")
	if err != nil {
		t.Fatalf("load nested: %v", err)
	}
	if c, ok := got.(*testComponent); !ok || c.Name != "inner" {
		t.Fatalf("nested: got %#v", got)
	}
}

func TestLoadContextAbsentSubpath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := SaveContext(dir, map[string]any{
		"model": map[string]any{"type": "test-component"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := LoadContext(dir, "optimizer"); !errors.Is(err, ErrNoContext) {
		t.Fatalf("absent subpath: got %v", err)
	}
	if _, err := LoadContext(dir, "model.model_transform"); !errors.Is(err, ErrNoContext) {
		t.Fatalf("absent nested subpath: got %v", err)
	}
}

func TestLoadContextNullComponent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := SaveContext(dir, map[string]any{
		"model": map[string]any{
			"type":            "test-component",
			"model_transform": nil,
		},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := LoadContext(dir, "model.model_transform"); !errors.Is(err, ErrNoContext) {
		t.Fatalf("null component: got %v", err)
	}
}

func TestLoadContextUnknownType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := SaveContext(dir, map[string]any{
		"model": map[string]any{"type": "never-registered"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadContext(dir, "model"); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestLoadContextMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadContext(t.TempDir(), "model"); err == nil {
		t.Fatal("expected missing file error")
	}
}
