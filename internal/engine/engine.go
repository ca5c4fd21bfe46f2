// Package engine runs batched autoregressive text generation against
// an inference-wrapped model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/sampling"
)

// Controller selects the text-generation control flow. It is a pure
// dispatch: the encoder-decoder controller feeds an encoder prompt
// through the model before decoding, nothing else differs.
type Controller int

const (
	ControllerDecoderOnly Controller = iota
	ControllerEncoderDecoder
)

func (c Controller) String() string {
	switch c {
	case ControllerDecoderOnly:
		return "decoder-only"
	case ControllerEncoderDecoder:
		return "encoder-decoder"
	default:
		return fmt.Sprintf("controller(%d)", int(c))
	}
}

// ErrEncoderUnsupported reports that the encoder-decoder controller
// was selected for a model that accepts no encoder input.
var ErrEncoderUnsupported = errors.New("model does not accept encoder input")

// Tokenizer is the adapter surface the engine drives.
type Tokenizer interface {
	Tokenize(text string) ([]int, error)
	Detokenize(ids []int, removeSpecialTokens bool) (string, error)
	BOS() int
	EOD() int
	VocabSize() int
}

// Config binds an engine to a wrapped model and tokenizer adapter.
type Config struct {
	Controller   Controller
	Model        model.Wrapped
	Tokenizer    Tokenizer
	MaxBatchSize int
	// RandomSeed makes sampling reproducible. Nil seeds from the clock.
	RandomSeed *int64
	Logger     logger.Logger
}

// Request is one batched generation call.
type Request struct {
	Prompts        []string
	EncoderPrompts []string
	AddBOS         bool
	Params         CommonParams
}

// Result is the generation outcome for one prompt. Results are always
// index-aligned with the request's prompts.
type Result struct {
	Prompt          string
	GeneratedText   string
	GeneratedTokens []int
	// LogProbs holds one entry per generated token when the request
	// asked for log probabilities.
	LogProbs []float32
}

type Engine struct {
	controller   Controller
	model        model.Wrapped
	tok          Tokenizer
	maxBatchSize int
	seed         int64
	log          logger.Logger
}

// New validates the configuration and builds an engine. Selecting the
// encoder-decoder controller for a model without encoder support fails
// here, before any generation.
func New(cfg Config) (*Engine, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("engine: model is required")
	}
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("engine: tokenizer is required")
	}
	if cfg.Controller == ControllerEncoderDecoder {
		if _, ok := cfg.Model.(model.EncoderRunner); !ok {
			return nil, fmt.Errorf("engine: %w", ErrEncoderUnsupported)
		}
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 4
	}
	seed := time.Now().UnixNano()
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		controller:   cfg.Controller,
		model:        cfg.Model,
		tok:          cfg.Tokenizer,
		maxBatchSize: maxBatch,
		seed:         seed,
		log:          log.With("controller", cfg.Controller.String()),
	}, nil
}

// Controller reports which controller the engine dispatches to.
func (e *Engine) Controller() Controller { return e.controller }

// Generate decodes every prompt in the request and returns one result
// per prompt, index-aligned with the input. Prompts are consumed in
// batches of at most the configured batch size; within a batch the
// single-process engine decodes sequentially, so ordering is preserved
// by construction.
func (e *Engine) Generate(ctx context.Context, req Request) ([]Result, error) {
	if len(req.Prompts) == 0 {
		return nil, fmt.Errorf("engine: at least one prompt is required")
	}
	for i, p := range req.Prompts {
		if p == "" {
			return nil, fmt.Errorf("engine: prompt %d is empty", i)
		}
	}
	switch e.controller {
	case ControllerEncoderDecoder:
		if len(req.EncoderPrompts) != len(req.Prompts) {
			return nil, fmt.Errorf("engine: %d encoder prompts for %d prompts", len(req.EncoderPrompts), len(req.Prompts))
		}
	case ControllerDecoderOnly:
		if req.EncoderPrompts != nil {
			return nil, fmt.Errorf("engine: encoder prompts require the encoder-decoder controller")
		}
	}

	params := req.Params
	if params.NumTokensToGenerate <= 0 {
		params.NumTokensToGenerate = DefaultNumTokensToGenerate
	}

	sampler := sampling.New(sampling.Config{
		Seed:        e.seed,
		Temperature: float32(params.Temperature),
		TopK:        params.TopK,
		TopP:        float32(params.TopP),
	})

	start := time.Now()
	results := make([]Result, len(req.Prompts))
	for batchStart := 0; batchStart < len(req.Prompts); batchStart += e.maxBatchSize {
		batchEnd := min(batchStart+e.maxBatchSize, len(req.Prompts))
		for i := batchStart; i < batchEnd; i++ {
			var encoderPrompt string
			if e.controller == ControllerEncoderDecoder {
				encoderPrompt = req.EncoderPrompts[i]
			}
			res, err := e.runPrompt(ctx, req.Prompts[i], encoderPrompt, req.AddBOS, params, sampler)
			if err != nil {
				return nil, fmt.Errorf("engine: prompt %d: %w", i, err)
			}
			results[i] = res
		}
	}
	e.log.Debug("generation finished", "prompts", len(req.Prompts), "duration", time.Since(start))
	return results, nil
}

func (e *Engine) runPrompt(ctx context.Context, prompt, encoderPrompt string, addBOS bool, params CommonParams, sampler *sampling.Sampler) (Result, error) {
	ids, err := e.tok.Tokenize(prompt)
	if err != nil {
		return Result{}, fmt.Errorf("tokenize: %w", err)
	}
	if addBOS {
		ids = append([]int{e.tok.BOS()}, ids...)
	}
	if len(ids) == 0 {
		return Result{}, fmt.Errorf("prompt tokenized to nothing")
	}

	e.model.Reset()

	if e.controller == ControllerEncoderDecoder {
		encIDs, err := e.tok.Tokenize(encoderPrompt)
		if err != nil {
			return Result{}, fmt.Errorf("tokenize encoder prompt: %w", err)
		}
		enc, ok := e.model.(model.EncoderRunner)
		if !ok {
			return Result{}, ErrEncoderUnsupported
		}
		if err := enc.EncodeContext(encIDs); err != nil {
			return Result{}, fmt.Errorf("encode context: %w", err)
		}
	}

	// Prefill: feed the prompt, keep the logits of the last position.
	var logits []float32
	for _, id := range ids {
		logits, err = e.model.ForwardToken(id)
		if err != nil {
			return Result{}, fmt.Errorf("prefill: %w", err)
		}
	}

	res := Result{Prompt: prompt}
	eod := e.tok.EOD()
	for step := 0; step < params.NumTokensToGenerate; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		next, logProb := sampler.Sample(logits)
		if next == eod {
			break
		}
		res.GeneratedTokens = append(res.GeneratedTokens, next)
		if params.ReturnLogProbs {
			res.LogProbs = append(res.LogProbs, logProb)
		}
		logits, err = e.model.ForwardToken(next)
		if err != nil {
			return Result{}, fmt.Errorf("generation step %d: %w", step, err)
		}
	}

	res.GeneratedText, err = e.tok.Detokenize(res.GeneratedTokens, false)
	if err != nil {
		return Result{}, fmt.Errorf("detokenize: %w", err)
	}
	return res, nil
}
