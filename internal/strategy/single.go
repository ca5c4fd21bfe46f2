package strategy

import (
	"context"
	"fmt"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/tensor"
)

// Single is the single-process strategy: no model, tensor or context
// parallelism. Every shard in the model's sharded state dict is owned
// by this process, so a selective restore loads all of it.
type Single struct {
	log logger.Logger
	io  checkpoint.IO

	restoreCfg      *checkpoint.RestoreConfig
	setupOptimizers bool
	launcher        Launcher

	model    model.Model
	trainer  *Trainer
	envReady bool
	planned  bool
}

var _ Sharded = (*Single)(nil)

// SingleOption mutates a Single during construction.
type SingleOption func(*Single)

// WithCheckpointIO overrides the safetensors-backed default IO.
func WithCheckpointIO(io checkpoint.IO) SingleOption {
	return func(s *Single) { s.io = io }
}

// WithLauncher installs a process launcher.
func WithLauncher(l Launcher) SingleOption {
	return func(s *Single) { s.launcher = l }
}

func NewSingle(log logger.Logger, opts ...SingleOption) *Single {
	if log == nil {
		log = logger.Default()
	}
	s := &Single{
		log:             log.With("strategy", "single"),
		io:              checkpoint.DirIO{},
		setupOptimizers: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Single) Name() string             { return "single" }
func (s *Single) ContextParallelSize() int { return 1 }

func (s *Single) SetRestoreConfig(cfg checkpoint.RestoreConfig) {
	s.restoreCfg = &cfg
}

func (s *Single) SetSetupOptimizers(enabled bool) {
	s.setupOptimizers = enabled
}

func (s *Single) Launcher() Launcher { return s.launcher }

func (s *Single) Connect(m model.Model) error {
	if m == nil {
		return fmt.Errorf("strategy: connect: nil model")
	}
	s.model = m
	return nil
}

func (s *Single) SetupEnvironment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.model == nil {
		return fmt.Errorf("strategy: setup environment before connect")
	}
	s.envReady = true
	s.log.Debug("environment ready")
	return nil
}

func (s *Single) SetupShardedExecution(ctx context.Context, t *Trainer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.envReady {
		return fmt.Errorf("strategy: sharded execution setup before environment setup")
	}
	sharded := s.model.ShardedStateDict()
	if len(sharded) == 0 {
		return fmt.Errorf("strategy: model has no parameters to plan")
	}
	s.planned = true
	s.log.Debug("execution plan ready", "mode", t.Mode.String(), "params", len(sharded), "optimizers", s.setupOptimizers)
	return nil
}

func (s *Single) BindTrainer(t *Trainer) {
	s.trainer = t
}

// SelectiveRestore loads the shards this process owns from the weights
// directory of the installed restore config.
func (s *Single) SelectiveRestore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.planned {
		return fmt.Errorf("strategy: selective restore before execution plan")
	}
	if s.restoreCfg == nil {
		s.log.Debug("no restore config installed, nothing to restore")
		return nil
	}
	if !s.restoreCfg.LoadModelState {
		return nil
	}
	if s.restoreCfg.LoadOptimState {
		return fmt.Errorf("strategy: optimizer state restore is not supported")
	}

	sharded := s.model.ShardedStateDict()
	state, err := s.io.LoadCheckpoint(checkpoint.WeightsDir(s.restoreCfg.Path), sharded)
	if err != nil {
		return err
	}
	if err := s.model.LoadStateDict(state, true); err != nil {
		return err
	}
	s.log.Info("restored model weights", "path", s.restoreCfg.Path, "params", len(state))
	return nil
}

func (s *Single) CheckpointIO() checkpoint.IO { return s.io }

func (s *Single) LoadModelStateDict(state tensor.StateDict, strict bool) error {
	if s.model == nil {
		return fmt.Errorf("strategy: load state dict before connect")
	}
	return s.model.LoadStateDict(state, strict)
}
