// Package infer wires checkpoint restoration to text generation: it
// restores distributed model weights (optionally with a low-rank
// adapter overlay) onto a strategy-managed trainer, wraps the restored
// model for inference and dispatches batched prompt generation.
package infer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/engine"
	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/peft"
	"github.com/samcharles93/rekindle/internal/strategy"
	"github.com/samcharles93/rekindle/internal/tokenizer"
)

// RestoreAndSetup restores the checkpoint at path onto the trainer's
// strategy and model, in a fixed sequence of lifecycle calls. When the
// checkpoint carries adapter metadata, the base checkpoint it names is
// restored as the full model state and the adapter weights are loaded
// as a second, filtered pass. The returned model is the one generation
// must use: it differs from m when an adapter was applied.
//
// The trainer, strategy and model are mutated in place. Collaborator
// failures propagate unchanged.
func RestoreAndSetup(ctx context.Context, path string, trainer *strategy.Trainer, m model.Model) (model.Model, error) {
	sharded, ok := trainer.Strategy.(strategy.Sharded)
	if !ok {
		return nil, fmt.Errorf("infer: strategy %T does not support sharded restore", trainer.Strategy)
	}
	if cp := sharded.ContextParallelSize(); cp > 1 {
		return nil, fmt.Errorf("infer: context parallelism is not supported for inference (context_parallel_size=%d)", cp)
	}

	src, err := checkpoint.ResolveRestoreSource(path)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Debug("resolved restore source", "kind", src.Kind.String(), "path", src.Path)

	sharded.SetRestoreConfig(checkpoint.RestoreConfigFor(src))
	sharded.SetSetupOptimizers(false)
	trainer.CheckpointPath = ""

	if err := sharded.Connect(m); err != nil {
		return nil, err
	}
	if launcher := sharded.Launcher(); launcher != nil {
		if err := launcher.Launch(ctx, func() error { return nil }, trainer); err != nil {
			return nil, err
		}
	}
	if err := sharded.SetupEnvironment(ctx); err != nil {
		return nil, err
	}

	if len(m.StateDict()) == 0 {
		m.ConfigureModel()
	}

	trainer.Mode = strategy.ModeTesting
	if err := sharded.SetupShardedExecution(ctx, trainer); err != nil {
		return nil, err
	}
	sharded.BindTrainer(trainer)
	if err := sharded.SelectiveRestore(ctx); err != nil {
		return nil, err
	}

	transform, err := loadModelTransform(path)
	if err != nil {
		return nil, err
	}
	if lora, ok := transform.(*peft.LoRA); ok {
		m = lora.Apply(m)
		m.ConfigureModel()

		adapterSharded := m.ShardedStateDict().Filter(peft.IsAdapterKey)
		adapterState, err := sharded.CheckpointIO().LoadCheckpoint(checkpoint.WeightsDir(path), adapterSharded)
		if err != nil {
			return nil, err
		}
		// The strategy keeps managing the adapter-augmented model from
		// here on, mirroring an in-place transform.
		if err := sharded.Connect(m); err != nil {
			return nil, err
		}
		if err := sharded.LoadModelStateDict(adapterState, false); err != nil {
			return nil, err
		}
		log.Info("applied adapter overlay", "params", len(adapterState))
	}
	return m, nil
}

// loadModelTransform reads the saved context's model_transform
// component. Checkpoints without one (no context file, or no such
// component) yield nil.
func loadModelTransform(path string) (any, error) {
	transform, err := checkpoint.LoadContext(checkpoint.ContextDir(path), "model.model_transform")
	switch {
	case err == nil:
		return transform, nil
	case errors.Is(err, checkpoint.ErrNoContext), errors.Is(err, fs.ErrNotExist):
		return nil, nil
	default:
		return nil, err
	}
}

// SetupConfig parameterizes SetupModelAndTokenizer. Zero values select
// the defaults: BF16 weights and a batching threshold of 1000.
type SetupConfig struct {
	ParamsDtype               dtype.DType
	BatchTimesSeqLenThreshold int
}

// SetupModelAndTokenizer loads the saved model context from the
// checkpoint at path, restores it onto the trainer and returns the
// inference-wrapped model together with the tokenizer adapter
// generation consumes. Any failure in the chain is fatal.
func SetupModelAndTokenizer(ctx context.Context, path string, trainer *strategy.Trainer, cfg SetupConfig) (model.Wrapped, *tokenizer.Adapter, error) {
	loaded, err := checkpoint.LoadContext(checkpoint.ContextDir(path), "model")
	if err != nil {
		return nil, nil, err
	}
	m, ok := loaded.(model.Model)
	if !ok {
		return nil, nil, fmt.Errorf("infer: checkpoint context %q holds %T, not a model", path, loaded)
	}

	m, err = RestoreAndSetup(ctx, path, trainer, m)
	if err != nil {
		return nil, nil, err
	}

	params := model.WrapperParams{
		ParamsDtype:               cfg.ParamsDtype,
		BatchTimesSeqLenThreshold: cfg.BatchTimesSeqLenThreshold,
	}
	if params.ParamsDtype == dtype.Unspecified {
		params.ParamsDtype = dtype.BF16
	}
	if params.BatchTimesSeqLenThreshold <= 0 {
		params.BatchTimesSeqLenThreshold = model.DefaultBatchTimesSeqLenThreshold
	}
	wrapped, err := m.InferenceWrapper(params)
	if err != nil {
		return nil, nil, err
	}
	return wrapped, tokenizer.NewAdapter(m.Tokenizer()), nil
}

// GenerateOptions are the optional knobs of Generate.
type GenerateOptions struct {
	// EncoderPrompts selects the encoder-decoder controller when
	// non-nil; it must then be index-aligned with the prompts.
	EncoderPrompts []string
	AddBOS         bool
	// MaxBatchSize caps concurrent prompts per engine batch. Zero
	// means 4.
	MaxBatchSize int
	RandomSeed   *int64
	// Params defaults to engine.DefaultParams() (512 tokens) when nil.
	Params *engine.CommonParams
}

// Generate runs one batched generation call against a restored model.
// The result at index i corresponds to prompts[i]; engine failures
// propagate unmodified.
func Generate(ctx context.Context, m model.Wrapped, tok *tokenizer.Adapter, prompts []string, opts GenerateOptions) ([]engine.Result, error) {
	eng, err := engine.New(engine.Config{
		Controller:   controllerFor(opts.EncoderPrompts),
		Model:        m,
		Tokenizer:    tok,
		MaxBatchSize: opts.MaxBatchSize,
		RandomSeed:   opts.RandomSeed,
		Logger:       logger.FromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	params := engine.DefaultParams()
	if opts.Params != nil {
		params = *opts.Params
	}

	return eng.Generate(ctx, engine.Request{
		Prompts:        prompts,
		EncoderPrompts: opts.EncoderPrompts,
		AddBOS:         opts.AddBOS,
		Params:         params,
	})
}

// controllerFor dispatches on encoder prompt presence, nothing else.
func controllerFor(encoderPrompts []string) engine.Controller {
	if encoderPrompts != nil {
		return engine.ControllerEncoderDecoder
	}
	return engine.ControllerDecoderOnly
}
