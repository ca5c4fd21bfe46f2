package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the rekindle version",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Println("rekindle", version.String())
			return nil
		},
	}
}
