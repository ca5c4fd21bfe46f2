// Package strategy models the trainer/strategy lifecycle a checkpoint
// restore drives: connect, environment setup, sharded execution setup
// and selective restore, in that order.
package strategy

import (
	"context"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/tensor"
)

// RunMode is the trainer's current phase.
type RunMode int

const (
	ModeFitting RunMode = iota
	ModeTesting
)

func (m RunMode) String() string {
	switch m {
	case ModeFitting:
		return "fitting"
	case ModeTesting:
		return "testing"
	default:
		return "unknown"
	}
}

// Trainer binds a strategy to a run. Restoration mutates its fields in
// a fixed order and never rereads them concurrently.
type Trainer struct {
	Strategy Strategy

	// CheckpointPath is a previously scheduled resume path. Restoration
	// clears it; the restore config drives loading instead.
	CheckpointPath string

	// Mode is the trainer's run phase; inference restores set it to
	// ModeTesting before sharded execution setup.
	Mode RunMode
}

// NewTrainer returns a trainer bound to s.
func NewTrainer(s Strategy) *Trainer {
	return &Trainer{Strategy: s}
}

// Strategy is the minimal surface every strategy has.
type Strategy interface {
	Name() string
	ContextParallelSize() int
}

// Launcher establishes the distributed runtime before environment
// setup. Strategies without one return nil from Launcher().
type Launcher interface {
	Launch(ctx context.Context, fn func() error, t *Trainer) error
}

// Sharded is the strategy surface checkpoint restoration requires.
// Calls arrive in the order the methods are listed.
type Sharded interface {
	Strategy

	// SetRestoreConfig installs what the next SelectiveRestore loads.
	SetRestoreConfig(cfg checkpoint.RestoreConfig)
	// SetSetupOptimizers toggles optimizer construction during setup.
	SetSetupOptimizers(enabled bool)
	// Launcher returns the process launcher, or nil.
	Launcher() Launcher
	// Connect binds the model to the strategy.
	Connect(m model.Model) error
	// SetupEnvironment initializes the distributed execution
	// environment.
	SetupEnvironment(ctx context.Context) error
	// SetupShardedExecution builds the distributed execution plan for
	// the connected model.
	SetupShardedExecution(ctx context.Context, t *Trainer) error
	// BindTrainer points the strategy back at its trainer.
	BindTrainer(t *Trainer)
	// SelectiveRestore loads the weight shards relevant to this
	// process per the installed restore config.
	SelectiveRestore(ctx context.Context) error
	// CheckpointIO exposes the strategy's checkpoint reader/writer.
	CheckpointIO() checkpoint.IO
	// LoadModelStateDict pushes restored weights into the connected
	// model.
	LoadModelStateDict(state tensor.StateDict, strict bool) error
}
