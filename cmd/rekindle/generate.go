package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/engine"
	"github.com/samcharles93/rekindle/internal/infer"
	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/strategy"
)

func generateCmd() *cli.Command {
	var (
		temp         float64
		topK         int64
		topP         float64
		numTokens    int64
		maxBatchSize int64
		seed         int64
		addBOS       bool
		logProbs     bool

		paramsDtype string
		threshold   int64
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Restore a checkpoint and generate text for one or more prompts",
		Flags: append([]cli.Flag{
			checkpointFlag(),
			&cli.StringSliceFlag{
				Name:    "prompt",
				Aliases: []string{"p"},
				Usage:   "prompt to generate from (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "encoder-prompt",
				Usage: "encoder prompt, one per prompt (selects the encoder-decoder path)",
			},
			&cli.BoolFlag{
				Name:        "add-bos",
				Usage:       "prepend the beginning-of-sequence token to each prompt",
				Destination: &addBOS,
			},
			&cli.Int64Flag{
				Name:        "num-tokens",
				Aliases:     []string{"n", "num_tokens"},
				Usage:       "max tokens to generate per prompt",
				Value:       engine.DefaultNumTokensToGenerate,
				Destination: &numTokens,
			},
			&cli.Int64Flag{
				Name:        "max-batch-size",
				Aliases:     []string{"max_batch_size"},
				Usage:       "max concurrent prompts per batch",
				Value:       4,
				Destination: &maxBatchSize,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       1.0,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Aliases:     []string{"top_k"},
				Usage:       "top-k sampling parameter (0 = full vocabulary)",
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Aliases:     []string{"top_p"},
				Usage:       "top-p sampling parameter (0 = disabled)",
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed (default -1 = random)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "log-probs",
				Usage:       "report per-token log probabilities",
				Destination: &logProbs,
			},
			&cli.StringFlag{
				Name:        "params-dtype",
				Usage:       "inference weight precision (bf16, f16, f32)",
				Value:       "bf16",
				Destination: &paramsDtype,
			},
			&cli.Int64Flag{
				Name:        "batch-threshold",
				Usage:       "batch-size x seqlen threshold of the inference wrapper",
				Value:       1000,
				Destination: &threshold,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyGenerateConfig(c, LoadConfig(), &temp, &topK, &topP, &numTokens, &maxBatchSize, &seed, &paramsDtype)

			log := buildLogger()
			ctx = logger.WithContext(ctx, log)

			if checkpointPath == "" {
				return cli.Exit("error: --checkpoint is required", 1)
			}
			prompts := c.StringSlice("prompt")
			if len(prompts) == 0 {
				return cli.Exit("error: at least one --prompt is required", 1)
			}
			var encoderPrompts []string
			if c.IsSet("encoder-prompt") {
				encoderPrompts = c.StringSlice("encoder-prompt")
			}

			dt, err := dtype.Parse(paramsDtype)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			trainer := strategy.NewTrainer(strategy.NewSingle(log))
			wrapped, tok, err := infer.SetupModelAndTokenizer(ctx, checkpointPath, trainer, infer.SetupConfig{
				ParamsDtype:               dt,
				BatchTimesSeqLenThreshold: int(threshold),
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: restore checkpoint: %v", err), 1)
			}
			log.Info("checkpoint restored", "path", checkpointPath, "dtype", dt.String())

			params := engine.CommonParams{
				Temperature:         temp,
				TopK:                int(topK),
				TopP:                topP,
				ReturnLogProbs:      logProbs,
				NumTokensToGenerate: int(numTokens),
			}
			opts := infer.GenerateOptions{
				EncoderPrompts: encoderPrompts,
				AddBOS:         addBOS,
				MaxBatchSize:   int(maxBatchSize),
				Params:         &params,
			}
			if seed >= 0 {
				opts.RandomSeed = &seed
			}

			results, err := infer.Generate(ctx, wrapped, tok, prompts, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generation: %v", err), 1)
			}

			for i, res := range results {
				if i > 0 {
					fmt.Println()
				}
				fmt.Printf("[%d] %s\n", i, res.Prompt)
				fmt.Println(res.GeneratedText)
				if logProbs {
					fmt.Printf("tokens=%v log_probs=%v\n", res.GeneratedTokens, res.LogProbs)
				}
			}
			return nil
		},
	}
}
