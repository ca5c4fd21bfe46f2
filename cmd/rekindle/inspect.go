package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/safetensors"
	"github.com/samcharles93/rekindle/internal/tensor"
)

func inspectCmd() *cli.Command {
	var showTensors bool

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the layout and contents of a checkpoint directory",
		Flags: []cli.Flag{
			checkpointFlag(),
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list the tensors in the weights file",
				Value:       true,
				Destination: &showTensors,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if checkpointPath == "" {
				return cli.Exit("error: --checkpoint is required", 1)
			}

			src, err := checkpoint.ResolveRestoreSource(checkpointPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			fmt.Printf("checkpoint: %s\n", checkpointPath)
			fmt.Printf("restore: %s\n", src.Kind)
			if src.Kind == checkpoint.SourceViaAdapterBase {
				fmt.Printf("base checkpoint: %s\n", src.Path)
				fmt.Printf("adapter weights: %s\n", src.AdapterWeightsDir)
			}

			ctxFile := filepath.Join(checkpoint.ContextDir(checkpointPath), checkpoint.ContextFilename)
			if _, err := os.Stat(ctxFile); err == nil {
				fmt.Printf("context: %s\n", ctxFile)
			} else {
				fmt.Println("context: (none)")
			}

			if showTensors {
				weightsFile := filepath.Join(checkpoint.WeightsDir(checkpointPath), checkpoint.WeightsFilename)
				f, err := safetensors.Open(weightsFile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: open weights: %v", err), 1)
				}
				fmt.Printf("weights: %s\n", weightsFile)
				for _, name := range f.Names() {
					info := f.Tensors[name]
					fmt.Printf("  %-48s %-5s shape=%v elements=%d\n",
						name, info.DType.String(), info.Shape, tensor.NumElements(info.Shape))
				}
			}
			return nil
		},
	}
}
