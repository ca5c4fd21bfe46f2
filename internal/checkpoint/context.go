package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// ContextFilename holds the serialized training context of a
// checkpoint: a JSON tree of typed components addressable by dotted
// subpath, e.g. "model" or "model.model_transform".
const ContextFilename = "io.json"

// ErrNoContext reports that a subpath names no component in the
// context tree.
var ErrNoContext = errors.New("context component not found")

// DecodeFunc rebuilds a component from its JSON node.
type DecodeFunc func(raw []byte) (any, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]DecodeFunc{}
)

// Register binds a context component type name to its decoder.
// Component packages register themselves at init time.
func Register(typeName string, decode DecodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[typeName]; dup {
		panic(fmt.Sprintf("checkpoint: duplicate context type %q", typeName))
	}
	registry[typeName] = decode
}

type typeEnvelope struct {
	Type string `json:"type"`
}

// LoadContext reads the context tree under dir and rebuilds the
// component at the dotted subpath. Returns ErrNoContext (wrapped) when
// the subpath is absent; other failures propagate unchanged.
func LoadContext(dir, subpath string) (any, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ContextFilename))
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	node := json.RawMessage(raw)
	walked := ""
	for _, part := range strings.Split(subpath, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			return nil, fmt.Errorf("context %s: %w", walked, err)
		}
		next, ok := obj[part]
		if !ok || string(next) == "null" {
			return nil, fmt.Errorf("%w: %s", ErrNoContext, subpath)
		}
		node = next
		if walked == "" {
			walked = part
		} else {
			walked += "." + part
		}
	}

	var env typeEnvelope
	if err := json.Unmarshal(node, &env); err != nil {
		return nil, fmt.Errorf("context %s: %w", subpath, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("context %s: missing type tag", subpath)
	}

	registryMu.RLock()
	decode, ok := registry[env.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("context %s: unknown type %q", subpath, env.Type)
	}
	out, err := decode(node)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", subpath, err)
	}
	return out, nil
}

// SaveContext serializes a context tree under dir, creating the
// directory if needed. The tree must carry type tags for every
// component that LoadContext should rebuild.
func SaveContext(dir string, root any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ContextFilename), raw, 0o644)
}
