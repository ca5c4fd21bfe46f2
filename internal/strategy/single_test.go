package strategy

import (
	"context"
	"testing"

	"github.com/samcharles93/rekindle/internal/checkpoint"
	"github.com/samcharles93/rekindle/internal/dtype"
	"github.com/samcharles93/rekindle/internal/logger"
	"github.com/samcharles93/rekindle/internal/model"
	"github.com/samcharles93/rekindle/internal/tensor"
)

func saveTestCheckpoint(t *testing.T, path string, data []float32, vocab int) {
	t.Helper()
	io := checkpoint.DirIO{SaveDType: dtype.F32}
	err := io.SaveCheckpoint(checkpoint.WeightsDir(path), tensor.StateDict{
		"decoder.table.weight": {Data: data, Shape: []int{vocab, vocab}},
	})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
}

func TestSingleRestoreLifecycle(t *testing.T) {
	t.Parallel()

	ckpt := t.TempDir()
	saveTestCheckpoint(t, ckpt, []float32{1, 2, 3, 4}, 2)

	ctx := context.Background()
	s := NewSingle(logger.Nop())
	trainer := NewTrainer(s)
	trainer.Mode = ModeTesting
	m := model.NewTableLM(model.TableLMConfig{VocabSize: 2})
	m.ConfigureModel()

	s.SetRestoreConfig(checkpoint.RestoreConfig{Path: ckpt, LoadModelState: true})
	s.SetSetupOptimizers(false)
	if err := s.Connect(m); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.SetupEnvironment(ctx); err != nil {
		t.Fatalf("setup environment: %v", err)
	}
	if err := s.SetupShardedExecution(ctx, trainer); err != nil {
		t.Fatalf("setup sharded execution: %v", err)
	}
	s.BindTrainer(trainer)
	if err := s.SelectiveRestore(ctx); err != nil {
		t.Fatalf("selective restore: %v", err)
	}

	got := m.StateDict()["decoder.table.weight"]
	for i, want := range []float32{1, 2, 3, 4} {
		if got.Data[i] != want {
			t.Fatalf("weight %d: got %v, want %v", i, got.Data[i], want)
		}
	}
}

func TestSingleLifecycleOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := model.NewTableLM(model.TableLMConfig{VocabSize: 2})
	m.ConfigureModel()

	s := NewSingle(logger.Nop())
	if err := s.SetupEnvironment(ctx); err == nil {
		t.Fatal("environment setup before connect should fail")
	}
	if err := s.Connect(nil); err == nil {
		t.Fatal("connect with nil model should fail")
	}
	if err := s.Connect(m); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.SetupShardedExecution(ctx, NewTrainer(s)); err == nil {
		t.Fatal("execution plan before environment setup should fail")
	}
	if err := s.SetupEnvironment(ctx); err != nil {
		t.Fatalf("setup environment: %v", err)
	}
	if err := s.SelectiveRestore(ctx); err == nil {
		t.Fatal("restore before execution plan should fail")
	}
}

func TestSingleRestoreWithoutConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSingle(logger.Nop())
	m := model.NewTableLM(model.TableLMConfig{VocabSize: 2})
	m.ConfigureModel()

	if err := s.Connect(m); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.SetupEnvironment(ctx); err != nil {
		t.Fatalf("setup environment: %v", err)
	}
	if err := s.SetupShardedExecution(ctx, NewTrainer(s)); err != nil {
		t.Fatalf("setup sharded execution: %v", err)
	}
	if err := s.SelectiveRestore(ctx); err != nil {
		t.Fatalf("restore without config should be a no-op: %v", err)
	}
}

func TestSingleRejectsOptimizerRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSingle(logger.Nop())
	m := model.NewTableLM(model.TableLMConfig{VocabSize: 2})
	m.ConfigureModel()

	s.SetRestoreConfig(checkpoint.RestoreConfig{Path: t.TempDir(), LoadModelState: true, LoadOptimState: true})
	if err := s.Connect(m); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.SetupEnvironment(ctx); err != nil {
		t.Fatalf("setup environment: %v", err)
	}
	if err := s.SetupShardedExecution(ctx, NewTrainer(s)); err != nil {
		t.Fatalf("setup sharded execution: %v", err)
	}
	if err := s.SelectiveRestore(ctx); err == nil {
		t.Fatal("optimizer state restore should fail")
	}
}

func TestSingleProperties(t *testing.T) {
	t.Parallel()

	s := NewSingle(nil)
	if s.Name() != "single" {
		t.Fatalf("name: got %q", s.Name())
	}
	if s.ContextParallelSize() != 1 {
		t.Fatalf("context parallel size: got %d", s.ContextParallelSize())
	}
	if s.Launcher() != nil {
		t.Fatal("default launcher should be nil")
	}
	if _, ok := s.CheckpointIO().(checkpoint.DirIO); !ok {
		t.Fatalf("default io: got %T", s.CheckpointIO())
	}
}
