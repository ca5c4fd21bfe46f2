package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/api"
	"github.com/samcharles93/rekindle/internal/engine"
	"github.com/samcharles93/rekindle/internal/infer"
	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/strategy"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Restore a checkpoint and serve generation over HTTP",
		Flags: append([]cli.Flag{
			checkpointFlag(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyServeConfig(c, LoadConfig(), &addr)

			log := buildLogger()
			ctx = logger.WithContext(ctx, log)

			if checkpointPath == "" {
				return cli.Exit("error: --checkpoint is required", 1)
			}

			trainer := strategy.NewTrainer(strategy.NewSingle(log))
			wrapped, tok, err := infer.SetupModelAndTokenizer(ctx, checkpointPath, trainer, infer.SetupConfig{})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: restore checkpoint: %v", err), 1)
			}
			log.Info("checkpoint restored", "path", checkpointPath)

			generate := func(ctx context.Context, prompts []string, opts infer.GenerateOptions) ([]engine.Result, error) {
				return infer.Generate(ctx, wrapped, tok, prompts, opts)
			}
			server := api.NewServer(generate, log)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
