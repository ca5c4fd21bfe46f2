// Package model defines the surfaces a restorable model exposes to the
// strategy and the generation engine, plus a small reference model.
package model

import (
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/tensor"
	"github.com/samcharles93/rekindle/internal/tokenizer"
)

// DefaultBatchTimesSeqLenThreshold is the batch-size × sequence-length
// product above which an inference wrapper switches its internal
// batching strategy.
const DefaultBatchTimesSeqLenThreshold = 1000

// WrapperParams parameterize InferenceWrapper.
type WrapperParams struct {
	ParamsDtype               dtype.DType
	BatchTimesSeqLenThreshold int
}

// Runner is the forward-pass surface the generation engine drives.
type Runner interface {
	// Reset clears any per-sequence state before a new prompt.
	Reset()
	// ForwardToken advances the sequence by one token and returns the
	// logits for the next position.
	ForwardToken(id int) ([]float32, error)
}

// EncoderRunner is implemented by encoder-decoder models that consume
// an encoder prompt before decoding.
type EncoderRunner interface {
	Runner
	EncodeContext(ids []int) error
}

// Wrapped is a model passed through its inference wrapper: a Runner
// that also reports the wrapper parameters it was built with.
type Wrapped interface {
	Runner
	ParamsDtype() dtype.DType
	BatchThreshold() int
}

// Model is a restorable model as the trainer/strategy lifecycle sees
// it. State dicts are empty until ConfigureModel has run.
type Model interface {
	// ConfigureModel lazily builds the parameters. Idempotent.
	ConfigureModel()
	StateDict() tensor.StateDict
	ShardedStateDict() tensor.ShardedStateDict
	// LoadStateDict installs restored weights. When strict, every
	// sharded key must be present in state; non-strict merges tolerate
	// missing and extra keys.
	LoadStateDict(state tensor.StateDict, strict bool) error
	InferenceWrapper(params WrapperParams) (Wrapped, error)
	Tokenizer() tokenizer.Tokenizer
}
