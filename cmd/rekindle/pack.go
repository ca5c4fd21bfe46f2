package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/peft"
	"github.com/samcharles93/rekindle/internal/tensor"
)

func packCmd() *cli.Command {
	var (
		output    string
		vocabSize int64
		seed      int64
		saveDtype string

		adapter  bool
		basePath string
		loraDim  int64
		alpha    float64
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Create a demo checkpoint directory (base model or adapter)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "checkpoint directory to create",
				Required:    true,
				Destination: &output,
			},
			&cli.Int64Flag{
				Name:        "vocab-size",
				Usage:       "model vocabulary size (0 = byte tokenizer vocabulary)",
				Destination: &vocabSize,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "RNG seed for the generated weights",
				Value:       0,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "save-dtype",
				Usage:       "weight precision on disk (f32, f16, bf16)",
				Value:       "f32",
				Destination: &saveDtype,
			},
			&cli.BoolFlag{
				Name:        "adapter",
				Usage:       "create an adapter checkpoint instead of a base checkpoint",
				Destination: &adapter,
			},
			&cli.StringFlag{
				Name:        "base",
				Usage:       "base checkpoint the adapter overlays (adapter mode)",
				Destination: &basePath,
			},
			&cli.Int64Flag{
				Name:        "dim",
				Usage:       "adapter rank (adapter mode)",
				Value:       8,
				Destination: &loraDim,
			},
			&cli.Float64Flag{
				Name:        "alpha",
				Usage:       "adapter scaling factor (adapter mode)",
				Value:       16,
				Destination: &alpha,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			dt, err := dtype.Parse(saveDtype)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			io := checkpoint.DirIO{SaveDType: dt}
			rng := rand.New(rand.NewSource(seed))

			if adapter {
				if basePath == "" {
					return cli.Exit("error: --base is required with --adapter", 1)
				}
				if err := packAdapter(io, rng, output, basePath, int(loraDim), alpha); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				fmt.Printf("created adapter checkpoint %s (base %s)\n", output, basePath)
				return nil
			}

			if err := packBase(io, rng, output, int(vocabSize)); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			fmt.Printf("created checkpoint %s\n", output)
			return nil
		},
	}
}

func packBase(io checkpoint.DirIO, rng *rand.Rand, output string, vocabSize int) error {
	m := model.NewTableLM(model.TableLMConfig{VocabSize: vocabSize})
	m.ConfigureModel()
	randomizeState(rng, m.StateDict())

	if err := checkpoint.SaveContext(checkpoint.ContextDir(output), map[string]any{
		"model": m.ContextNode(nil),
	}); err != nil {
		return err
	}
	return io.SaveCheckpoint(checkpoint.WeightsDir(output), m.StateDict())
}

func packAdapter(io checkpoint.DirIO, rng *rand.Rand, output, basePath string, dim int, alpha float64) error {
	loaded, err := checkpoint.LoadContext(checkpoint.ContextDir(basePath), "model")
	if err != nil {
		return fmt.Errorf("load base context: %w", err)
	}
	base, ok := loaded.(*model.TableLM)
	if !ok {
		return fmt.Errorf("base checkpoint holds %T, cannot derive an adapter", loaded)
	}

	lora := &peft.LoRA{Dim: dim, Alpha: alpha}
	augmented := lora.Apply(base)
	augmented.ConfigureModel()

	adapterState := make(tensor.StateDict)
	for key, t := range augmented.StateDict() {
		if peft.IsAdapterKey(key) {
			adapterState[key] = t
		}
	}
	randomizeState(rng, adapterState)

	if err := checkpoint.SaveContext(checkpoint.ContextDir(output), map[string]any{
		"model": base.ContextNode(lora),
	}); err != nil {
		return err
	}
	if err := io.SaveCheckpoint(checkpoint.WeightsDir(output), adapterState); err != nil {
		return err
	}
	return checkpoint.SaveAdapterMetadata(output, checkpoint.AdapterMetadata{ModelCkptPath: basePath})
}

func randomizeState(rng *rand.Rand, state tensor.StateDict) {
	for _, t := range state {
		for i := range t.Data {
			t.Data[i] = rng.Float32()*2 - 1
		}
	}
}
