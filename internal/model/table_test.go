package model

import (
	"testing"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/tensor"
	"github.com/samcharles93/rekindle/internal/tokenizer"
)

func TestTableLMLazyConfigure(t *testing.T) {
	t.Parallel()

	m := NewTableLM(TableLMConfig{VocabSize: 4})
	if len(m.StateDict()) != 0 {
		t.Fatal("state dict should be empty before ConfigureModel")
	}

	m.ConfigureModel()
	state := m.StateDict()
	if len(state) != 1 {
		t.Fatalf("state dict size: got %d", len(state))
	}
	w, ok := state["decoder.table.weight"]
	if !ok {
		t.Fatal("table weight missing")
	}
	if len(w.Shape) != 2 || w.Shape[0] != 4 || w.Shape[1] != 4 {
		t.Fatalf("weight shape: got %v", w.Shape)
	}

	// Idempotent: a second call must not reallocate.
	w.Data[0] = 7
	m.ConfigureModel()
	if m.StateDict()["decoder.table.weight"].Data[0] != 7 {
		t.Fatal("ConfigureModel reallocated existing state")
	}
}

func TestTableLMDefaultVocab(t *testing.T) {
	t.Parallel()

	m := NewTableLM(TableLMConfig{})
	if m.Config.VocabSize != tokenizer.ByteVocabSize {
		t.Fatalf("default vocab: got %d", m.Config.VocabSize)
	}
	if m.Tokenizer().VocabSize() != tokenizer.ByteVocabSize {
		t.Fatalf("tokenizer vocab: got %d", m.Tokenizer().VocabSize())
	}
}

func TestTableLMLoadStateDict(t *testing.T) {
	t.Parallel()

	m := NewTableLM(TableLMConfig{VocabSize: 2})
	state := tensor.StateDict{
		"decoder.table.weight": {Data: []float32{1, 2, 3, 4}, Shape: []int{2, 2}},
	}
	if err := m.LoadStateDict(state, true); err != nil {
		t.Fatalf("strict load: %v", err)
	}
	if m.StateDict()["decoder.table.weight"].Data[3] != 4 {
		t.Fatal("weights not installed")
	}

	if err := m.LoadStateDict(tensor.StateDict{}, true); err == nil {
		t.Fatal("strict load with missing key should fail")
	}
	if err := m.LoadStateDict(tensor.StateDict{}, false); err != nil {
		t.Fatalf("non-strict load: %v", err)
	}
}

func TestTableLMForward(t *testing.T) {
	t.Parallel()

	m := NewTableLM(TableLMConfig{VocabSize: 3})
	if err := m.LoadStateDict(tensor.StateDict{
		"decoder.table.weight": {
			Data:  []float32{0, 1, 2, 3, 4, 5, 6, 7, 8},
			Shape: []int{3, 3},
		},
	}, true); err != nil {
		t.Fatalf("load: %v", err)
	}

	wrapped, err := m.InferenceWrapper(WrapperParams{ParamsDtype: dtype.F32})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	logits, err := wrapped.ForwardToken(1)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := []float32{3, 4, 5}
	for i := range want {
		if logits[i] != want[i] {
			t.Fatalf("logit %d: got %v, want %v", i, logits[i], want[i])
		}
	}

	if _, err := wrapped.ForwardToken(3); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestTableLMWrapperDefaults(t *testing.T) {
	t.Parallel()

	m := NewTableLM(TableLMConfig{VocabSize: 2})
	m.ConfigureModel()

	wrapped, err := m.InferenceWrapper(WrapperParams{})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if wrapped.ParamsDtype() != dtype.BF16 {
		t.Fatalf("default dtype: got %v", wrapped.ParamsDtype())
	}
	if wrapped.BatchThreshold() != DefaultBatchTimesSeqLenThreshold {
		t.Fatalf("default threshold: got %d", wrapped.BatchThreshold())
	}

	if _, err := NewTableLM(TableLMConfig{VocabSize: 2}).InferenceWrapper(WrapperParams{}); err == nil {
		t.Fatal("unconfigured model should not wrap")
	}
}

func TestTableLMContextRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewTableLM(TableLMConfig{VocabSize: 17})
	if err := checkpoint.SaveContext(dir, map[string]any{"model": m.ContextNode(nil)}); err != nil {
		t.Fatalf("save context: %v", err)
	}

	loaded, err := checkpoint.LoadContext(dir, "model")
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	got, ok := loaded.(*TableLM)
	if !ok {
		t.Fatalf("loaded %T", loaded)
	}
	if got.Config.VocabSize != 17 {
		t.Fatalf("vocab size: got %d", got.Config.VocabSize)
	}
}
