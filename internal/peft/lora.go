// Package peft implements the low-rank adapter overlay: a small set of
// extra parameters applied on top of a frozen base model.
package peft

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/tensor"
	"github.com/samcharles93/rekindle/internal/tokenizer"
)

// ContextTypeLoRA is the context registry tag for LoRA transforms.
const ContextTypeLoRA = "lora"

// AdapterKeyMarker distinguishes adapter parameters in a sharded state
// dict from base model parameters.
const AdapterKeyMarker = ".adapter."

// IsAdapterKey reports whether a state-dict key belongs to an adapter.
func IsAdapterKey(key string) bool {
	return strings.Contains(key, AdapterKeyMarker)
}

func init() {
	checkpoint.Register(ContextTypeLoRA, func(raw []byte) (any, error) {
		var l LoRA
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, err
		}
		return &l, nil
	})
}

// ModelTransform turns a base model into a derived one. A saved
// context's model_transform component implements this when the
// checkpoint was trained with an adapter.
type ModelTransform interface {
	Apply(m model.Model) model.Model
}

// LoRA describes a low-rank adapter: per target module, a pair of
// matrices whose product is added to the frozen weight.
type LoRA struct {
	Dim           int      `json:"dim"`
	Alpha         float64  `json:"alpha"`
	TargetModules []string `json:"target_modules,omitempty"`
}

var _ ModelTransform = (*LoRA)(nil)

// MarshalJSON emits the context envelope form, type tag included.
func (l *LoRA) MarshalJSON() ([]byte, error) {
	type plain LoRA
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: ContextTypeLoRA, plain: plain(*l)})
}

func (l *LoRA) dim() int {
	if l.Dim <= 0 {
		return 32
	}
	return l.Dim
}

func (l *LoRA) scale() float32 {
	alpha := l.Alpha
	if alpha <= 0 {
		alpha = float64(l.dim())
	}
	return float32(alpha / float64(l.dim()))
}

// Apply overlays the adapter on a base model. Target modules default
// to every ".weight" parameter of the base model.
func (l *LoRA) Apply(m model.Model) model.Model {
	return &AdapterModel{base: m, lora: l}
}

// AdapterModel is a base model with LoRA parameters overlaid. The base
// weights stay untouched; adapter weights live in their own state and
// surface through the sharded state dict under AdapterKeyMarker keys.
type AdapterModel struct {
	base  model.Model
	lora  *LoRA
	state tensor.StateDict
}

var _ model.Model = (*AdapterModel)(nil)

// Base returns the wrapped model.
func (a *AdapterModel) Base() model.Model { return a.base }

// targets resolves the module paths the adapter overlays, sorted for
// deterministic iteration.
func (a *AdapterModel) targets() []string {
	if len(a.lora.TargetModules) > 0 {
		out := append([]string(nil), a.lora.TargetModules...)
		sort.Strings(out)
		return out
	}
	var out []string
	for key := range a.base.ShardedStateDict() {
		if name, ok := strings.CutSuffix(key, ".weight"); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func adapterKeys(target string) (aKey, bKey string) {
	return target + AdapterKeyMarker + "lora_a.weight",
		target + AdapterKeyMarker + "lora_b.weight"
}

// targetDims resolves the fan-in/fan-out of a target module from the
// base model's sharded spec for "<target>.weight".
func (a *AdapterModel) targetDims(target string) (in, out int, err error) {
	spec, ok := a.base.ShardedStateDict()[target+".weight"]
	if !ok {
		return 0, 0, fmt.Errorf("lora: target module %s not in base model", target)
	}
	if len(spec.Shape) != 2 {
		return 0, 0, fmt.Errorf("lora: target module %s is not 2-dimensional", target)
	}
	return spec.Shape[0], spec.Shape[1], nil
}

func (a *AdapterModel) ConfigureModel() {
	a.base.ConfigureModel()
	if len(a.state) > 0 {
		return
	}
	dim := a.lora.dim()
	a.state = make(tensor.StateDict)
	for _, target := range a.targets() {
		in, out, err := a.targetDims(target)
		if err != nil {
			continue
		}
		aKey, bKey := adapterKeys(target)
		a.state[aKey] = tensor.Zeros(in, dim)
		a.state[bKey] = tensor.Zeros(dim, out)
	}
}

func (a *AdapterModel) StateDict() tensor.StateDict {
	if len(a.base.StateDict()) == 0 && len(a.state) == 0 {
		return nil
	}
	merged := make(tensor.StateDict, len(a.base.StateDict())+len(a.state))
	merged.Merge(a.base.StateDict())
	merged.Merge(a.state)
	return merged
}

func (a *AdapterModel) ShardedStateDict() tensor.ShardedStateDict {
	sharded := make(tensor.ShardedStateDict)
	for k, v := range a.base.ShardedStateDict() {
		sharded[k] = v
	}
	dim := a.lora.dim()
	for _, target := range a.targets() {
		in, out, err := a.targetDims(target)
		if err != nil {
			continue
		}
		aKey, bKey := adapterKeys(target)
		sharded[aKey] = tensor.ShardedSpec{Key: aKey, Shape: []int{in, dim}}
		sharded[bKey] = tensor.ShardedSpec{Key: bKey, Shape: []int{dim, out}}
	}
	return sharded
}

func (a *AdapterModel) LoadStateDict(state tensor.StateDict, strict bool) error {
	baseState := make(tensor.StateDict)
	for key, t := range state {
		if IsAdapterKey(key) {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("lora: %s: %w", key, err)
			}
			if a.state == nil {
				a.state = make(tensor.StateDict)
			}
			a.state[key] = t
			continue
		}
		baseState[key] = t
	}
	if len(baseState) == 0 && !strict {
		return nil
	}
	return a.base.LoadStateDict(baseState, strict)
}

func (a *AdapterModel) InferenceWrapper(params model.WrapperParams) (model.Wrapped, error) {
	wrapped, err := a.base.InferenceWrapper(params)
	if err != nil {
		return nil, err
	}

	// The runner overlays the delta of targets whose output dimension
	// matches the logits vector, using the current token id as the
	// input row of the low-rank product.
	deltas := make([]loraDelta, 0, len(a.targets()))
	for _, target := range a.targets() {
		in, out, err := a.targetDims(target)
		if err != nil {
			return nil, err
		}
		aKey, bKey := adapterKeys(target)
		ta, okA := a.state[aKey]
		tb, okB := a.state[bKey]
		if !okA || !okB {
			return nil, fmt.Errorf("lora: adapter weights for %s not loaded", target)
		}
		deltas = append(deltas, loraDelta{
			a: ta.Data, b: tb.Data,
			in: in, out: out, dim: a.lora.dim(),
			scale: a.lora.scale(),
		})
	}
	return &adapterRunner{Wrapped: wrapped, deltas: deltas}, nil
}

func (a *AdapterModel) Tokenizer() tokenizer.Tokenizer {
	return a.base.Tokenizer()
}

type loraDelta struct {
	a, b    []float32
	in, out int
	dim     int
	scale   float32
}

// rowDelta computes scale * (A[id,:] · B)[:] for one input row.
func (d loraDelta) rowDelta(id int, dst []float32) {
	if id < 0 || id >= d.in || len(dst) != d.out {
		return
	}
	aRow := d.a[id*d.dim : (id+1)*d.dim]
	for r := 0; r < d.dim; r++ {
		av := aRow[r]
		if av == 0 {
			continue
		}
		bRow := d.b[r*d.out : (r+1)*d.out]
		for j, bv := range bRow {
			dst[j] += d.scale * av * bv
		}
	}
}

type adapterRunner struct {
	model.Wrapped
	deltas  []loraDelta
	scratch []float32
}

func (r *adapterRunner) ForwardToken(id int) ([]float32, error) {
	logits, err := r.Wrapped.ForwardToken(id)
	if err != nil {
		return nil, err
	}
	for _, d := range r.deltas {
		if d.out != len(logits) {
			continue
		}
		if len(r.scratch) != d.out {
			r.scratch = make([]float32, d.out)
		}
		clear(r.scratch)
		d.rowDelta(id, r.scratch)
		tensor.Add(logits, r.scratch)
	}
	return logits, nil
}

func (r *adapterRunner) EncodeContext(ids []int) error {
	enc, ok := r.Wrapped.(model.EncoderRunner)
	if !ok {
		return fmt.Errorf("lora: base model does not accept encoder input")
	}
	return enc.EncodeContext(ids)
}
