// Package session keeps a markup file on disk in sync with a document on the
// server: every change of the file becomes an edit which autosave delivers.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"composer/autosave"
	"composer/config"
	"composer/editor"
)

// ConflictSuffix is appended to the watched file name to store server side
// content of a conflicting save.
const ConflictSuffix = ".conflict.html"

// Session watches a single file.
type Session struct {
	path string
	ed   *editor.Editor
	rpt  *config.Report
	log  *zap.Logger

	// Force resolves conflicts in favor of local content.
	Force bool

	mu   sync.Mutex
	last string
	ctx  context.Context
}

// New creates session for file at path feeding ed. Editor must have autosave
// configured.
func New(path string, ed *editor.Editor, rpt *config.Report, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{path: filepath.Clean(path), ed: ed, rpt: rpt, log: log.Named("session"), ctx: context.Background()}
	if saver := ed.Autosave(); saver != nil {
		saver.OnStatus(s.onStatus)
	}
	return s
}

// Apply reads the file and replaces editor content with it. Returns false
// when file did not change since last Apply or Publish.
func (s *Session) Apply() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("unable to read %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if string(data) == s.last {
		return false, nil
	}
	if err := s.ed.Replace(string(data)); err != nil {
		return false, err
	}
	s.last = string(data)
	s.log.Debug("File applied", zap.String("file", s.path), zap.Int("size", len(data)))
	return true, nil
}

// Publish writes current document markup to the file.
func (s *Session) Publish() error {
	content, err := s.ed.Markup()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", s.path, err)
	}
	s.last = content
	return nil
}

// Watch applies file changes until context is canceled. Directory is watched
// rather than the file, editors tend to replace files on save.
func (s *Session) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", filepath.Dir(s.path), err)
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.log.Info("Watching file", zap.String("file", s.path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if _, err := s.Apply(); err != nil {
				s.log.Warn("Unable to apply file change", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (s *Session) onStatus(status autosave.Status) {
	saver := s.ed.Autosave()
	switch status {
	case autosave.StatusSaved:
		s.log.Info("Document saved", zap.Int64("version", saver.Version()))
		if s.rpt != nil {
			if snap := saver.Acknowledged(); snap.Markup != "" {
				s.rpt.StoreData(fmt.Sprintf("snapshots/v%d.html", saver.Version()), []byte(snap.Markup))
			}
		}
	case autosave.StatusError:
		s.log.Error("Document could not be saved", zap.Error(saver.Err()))
	case autosave.StatusUnsaved:
		if c, ok := saver.Conflict(); ok {
			s.conflict(c)
		}
	case autosave.StatusSaving:
	}
}

func (s *Session) conflict(c autosave.Conflict) {
	name := s.path + ConflictSuffix
	if err := os.WriteFile(name, []byte(c.Markup), 0o644); err != nil {
		s.log.Error("Unable to store conflicting content", zap.String("file", name), zap.Error(err))
	}
	if !s.Force {
		s.log.Warn("Document was changed elsewhere, local changes are kept unsaved",
			zap.Int64("server version", c.Version), zap.String("server content", name))
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.log.Warn("Document was changed elsewhere, overwriting", zap.Int64("server version", c.Version))
	go func() {
		if err := s.ed.Autosave().ResolveConflict(ctx, c.Version); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Unable to resolve conflict", zap.Error(err))
		}
	}()
}
