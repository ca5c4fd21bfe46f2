package model

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/tensor"
	"github.com/samcharles93/rekindle/internal/tokenizer"
)

// ContextTypeTableLM is the context registry tag for TableLM.
const ContextTypeTableLM = "table-lm"

// TableTargetModule is the module path adapters overlay on.
const TableTargetModule = "decoder.table"

const tableWeightKey = TableTargetModule + ".weight"

func init() {
	checkpoint.Register(ContextTypeTableLM, func(raw []byte) (any, error) {
		var node struct {
			Config TableLMConfig `json:"config"`
		}
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil, err
		}
		return NewTableLM(node.Config), nil
	})
}

type TableLMConfig struct {
	VocabSize int `json:"vocab_size"`
}

// TableLM is a lookup-table language model: one logits row per token
// id. It is deliberately small; its job is to exercise the restore and
// generation paths end to end, not to be a useful model.
type TableLM struct {
	Config TableLMConfig

	state tensor.StateDict
	tok   tokenizer.Tokenizer
}

var _ Model = (*TableLM)(nil)

func NewTableLM(cfg TableLMConfig) *TableLM {
	if cfg.VocabSize <= 0 {
		cfg.VocabSize = tokenizer.ByteVocabSize
	}
	return &TableLM{
		Config: cfg,
		tok:    tokenizer.NewByteTokenizer(),
	}
}

func (m *TableLM) ConfigureModel() {
	if len(m.state) > 0 {
		return
	}
	v := m.Config.VocabSize
	m.state = tensor.StateDict{
		tableWeightKey: tensor.Zeros(v, v),
	}
}

func (m *TableLM) StateDict() tensor.StateDict {
	return m.state
}

func (m *TableLM) ShardedStateDict() tensor.ShardedStateDict {
	v := m.Config.VocabSize
	return tensor.ShardedStateDict{
		tableWeightKey: {Key: tableWeightKey, Shape: []int{v, v}},
	}
}

func (m *TableLM) LoadStateDict(state tensor.StateDict, strict bool) error {
	for key := range m.ShardedStateDict() {
		t, ok := state[key]
		if !ok {
			if strict {
				return fmt.Errorf("table-lm: missing key %s", key)
			}
			continue
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("table-lm: %s: %w", key, err)
		}
		if m.state == nil {
			m.state = make(tensor.StateDict, 1)
		}
		m.state[key] = t
	}
	return nil
}

func (m *TableLM) InferenceWrapper(params WrapperParams) (Wrapped, error) {
	table, ok := m.state[tableWeightKey]
	if !ok {
		return nil, fmt.Errorf("table-lm: model not configured")
	}
	if params.BatchTimesSeqLenThreshold <= 0 {
		params.BatchTimesSeqLenThreshold = DefaultBatchTimesSeqLenThreshold
	}
	dt := params.ParamsDtype
	if dt == dtype.Unspecified {
		dt = dtype.BF16
	}
	data, err := dtype.Cast(dt, table.Data)
	if err != nil {
		return nil, fmt.Errorf("table-lm: cast weights: %w", err)
	}
	return &tableRunner{
		table:     data,
		vocab:     m.Config.VocabSize,
		dt:        dt,
		threshold: params.BatchTimesSeqLenThreshold,
	}, nil
}

func (m *TableLM) Tokenizer() tokenizer.Tokenizer {
	return m.tok
}

// ContextNode returns the serializable context component for this
// model, with an optional model_transform child.
func (m *TableLM) ContextNode(transform any) map[string]any {
	node := map[string]any{
		"type":   ContextTypeTableLM,
		"config": m.Config,
	}
	if transform != nil {
		node["model_transform"] = transform
	}
	return node
}

type tableRunner struct {
	table     []float32
	vocab     int
	dt        dtype.DType
	threshold int
}

func (r *tableRunner) Reset() {}

func (r *tableRunner) ForwardToken(id int) ([]float32, error) {
	if id < 0 || id >= r.vocab {
		return nil, fmt.Errorf("table-lm: token id %d out of range", id)
	}
	row := make([]float32, r.vocab)
	copy(row, r.table[id*r.vocab:(id+1)*r.vocab])
	return row, nil
}

func (r *tableRunner) ParamsDtype() dtype.DType { return r.dt }
func (r *tableRunner) BatchThreshold() int      { return r.threshold }
