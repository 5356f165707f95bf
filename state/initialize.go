package state

import (
	"time"

	"composer/autosave"
	"composer/editor"
	"composer/normalize"
)

// newLocalEnv creates a new LocalEnv instance with default values.
func newLocalEnv() *LocalEnv {
	return &LocalEnv{start: time.Now()}
}

// EditorOptions translates configuration into editor options. Without
// configuration editor defaults are used.
func (e *LocalEnv) EditorOptions() editor.Options {
	if e.Cfg == nil {
		return editor.Options{Autosave: autosave.DefaultConfig()}
	}
	return editor.Options{
		InlineLimit: e.Cfg.Editor.InlineImageLimit,
		Normalize: normalize.Options{
			CleanupPasses: e.Cfg.Normalize.CleanupPasses,
		},
		Autosave: autosave.Config{
			Idle:           e.Cfg.Autosave.Idle,
			Ceiling:        e.Cfg.Autosave.Ceiling,
			MaxRetries:     e.Cfg.Autosave.MaxRetries,
			Backoff:        e.Cfg.Autosave.Backoff,
			RequestTimeout: e.Cfg.Autosave.RequestTimeout,
		},
	}
}
