package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the rekindle configuration file
// (~/.config/rekindle/config.yaml). Fields are pointers so "not set"
// is distinguishable from zero values.
type Config struct {
	Checkpoint string `yaml:"checkpoint"`

	// Generation defaults
	Temperature  *float64 `yaml:"temperature"`
	TopK         *int64   `yaml:"top_k"`
	TopP         *float64 `yaml:"top_p"`
	NumTokens    *int64   `yaml:"num_tokens"`
	MaxBatchSize *int64   `yaml:"max_batch_size"`
	Seed         *int64   `yaml:"seed"`

	// Restore defaults
	ParamsDtype string `yaml:"params_dtype"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rekindle", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or doesn't parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyGenerateConfig applies config file defaults to generate command
// variables when the corresponding CLI flag was not explicitly set.
func applyGenerateConfig(c *cli.Command, cfg Config,
	temp *float64, topK *int64, topP *float64, numTokens *int64,
	maxBatchSize *int64, seed *int64, paramsDtype *string,
) {
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointPath = cfg.Checkpoint
	}
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") && !c.IsSet("top_k") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") && !c.IsSet("top_p") {
		*topP = *cfg.TopP
	}
	if cfg.NumTokens != nil && !c.IsSet("num-tokens") {
		*numTokens = *cfg.NumTokens
	}
	if cfg.MaxBatchSize != nil && !c.IsSet("max-batch-size") {
		*maxBatchSize = *cfg.MaxBatchSize
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.ParamsDtype != "" && !c.IsSet("params-dtype") {
		*paramsDtype = cfg.ParamsDtype
	}
	applyLoggingConfig(c, cfg)
}

// applyServeConfig applies config file defaults to serve command
// variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointPath = cfg.Checkpoint
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	applyLoggingConfig(c, cfg)
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
