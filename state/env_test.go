package state

import (
	"context"
	"log"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"composer/autosave"
	"composer/config"
)

func TestContextWithEnv(t *testing.T) {
	ctx := ContextWithEnv(context.Background())
	env := EnvFromContext(ctx)
	if env == nil {
		t.Fatal("EnvFromContext() returned nil")
	}
	if env.start.IsZero() {
		t.Error("Environment start time not set")
	}

	t.Run("panic on missing env", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic when env not in context")
			}
		}()
		EnvFromContext(context.Background())
	})
}

func TestLocalEnv_Uptime(t *testing.T) {
	env := &LocalEnv{start: time.Now().Add(-time.Minute)}
	if up := env.Uptime(); up < time.Minute || up > time.Hour {
		t.Errorf("Uptime() = %v", up)
	}
}

func TestLocalEnv_RedirectStdLog(t *testing.T) {
	t.Run("with logger", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		env := &LocalEnv{Log: zap.New(core)}

		env.RedirectStdLog()
		if env.restoreStdLog == nil {
			t.Fatal("Expected restoreStdLog to be set")
		}
		log.Print("from standard logger")
		env.RestoreStdLog()
		log.Print("after restore")

		if logs.FilterMessage("from standard logger").Len() != 1 {
			t.Errorf("standard log not redirected: %v", logs.All())
		}
		if logs.FilterMessage("after restore").Len() != 0 {
			t.Errorf("standard log not restored")
		}
	})

	t.Run("without logger", func(t *testing.T) {
		env := &LocalEnv{}
		env.RedirectStdLog()
		if env.restoreStdLog != nil {
			t.Error("Expected restoreStdLog to remain nil")
		}
		env.RestoreStdLog()
	})

	t.Run("repeated cycles", func(t *testing.T) {
		env := &LocalEnv{Log: zaptest.NewLogger(t)}
		for i := range 3 {
			env.RedirectStdLog()
			if env.restoreStdLog == nil {
				t.Errorf("Iteration %d: restoreStdLog not set", i)
			}
			env.RestoreStdLog()
		}
	})
}

func TestLocalEnv_EditorOptions(t *testing.T) {
	env := &LocalEnv{}
	if opts := env.EditorOptions(); opts.Autosave != autosave.DefaultConfig() {
		t.Errorf("options without configuration must use defaults: %+v", opts)
	}

	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Editor.InlineImageLimit = 4
	cfg.Autosave.Idle = 700 * time.Millisecond
	env.Cfg = cfg

	opts := env.EditorOptions()
	if opts.InlineLimit != 4 || opts.Autosave.Idle != 700*time.Millisecond || opts.Normalize.CleanupPasses != cfg.Normalize.CleanupPasses {
		t.Errorf("configuration not applied: %+v", opts)
	}
}
