package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rekindle/internal/logger"
)

var (
	checkpointPath string
	logLevel       string
	logFormat      string
	debug          bool
)

func checkpointFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "checkpoint",
		Aliases:     []string{"ckpt"},
		Usage:       "path to the checkpoint directory",
		Destination: &checkpointPath,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Default()
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
