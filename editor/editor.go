// Package editor ties document, normalization, image layout, drag and drop,
// cursor preservation and autosave into a single editable surface.
package editor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"composer/autosave"
	"composer/cursor"
	"composer/dnd"
	"composer/layout"
	"composer/markup"
	"composer/model"
	"composer/normalize"
	"composer/persist"
	"composer/picker"
)

// Metadata is document information edited outside of the body.
type Metadata struct {
	Title    string
	Date     string
	Timezone string
}

// Options configures editor instance.
type Options struct {
	InlineLimit int
	Normalize   normalize.Options
	Autosave    autosave.Config
	// Clock drives autosave timers, system clock when nil.
	Clock autosave.Clock
}

// Editor is a single editable surface. It exclusively owns its document,
// selection and usage map, nothing is shared between instances.
//
// Editor never calls autosave manager while holding its own lock, manager
// calls back into editor (Capture, Prepare) while holding its lock.
type Editor struct {
	mu sync.Mutex

	doc      *model.Document
	sel      *cursor.Selection
	meta     Metadata
	engine   *layout.Engine
	pipeline *normalize.Pipeline
	detached *normalize.Pipeline
	broker   *dnd.Broker
	slot     *dnd.ReferenceSlot
	coord    *dnd.Coordinator
	panel    *picker.Panel
	saver    *autosave.Manager
	log      *zap.Logger

	// changed is set under lock and flushed to autosave after unlock
	changed  bool
	onChange func()
}

// New creates editor with empty document. Persister and panel are optional:
// without persister there is no autosave, without panel captions are empty.
func New(opts Options, persister autosave.Persister, panel *picker.Panel, hit dnd.HitTester, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("editor")

	e := &Editor{
		doc:    model.NewDocument(),
		broker: dnd.NewBroker(),
		slot:   &dnd.ReferenceSlot{},
		panel:  panel,
		log:    log,
	}
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = layout.DefaultInlineLimit
	}
	opts.Normalize.InlineLimit = opts.InlineLimit
	e.engine = layout.New(opts.InlineLimit, log)
	e.pipeline = normalize.New(opts.Normalize, e.engine, log)
	e.detached = e.pipeline.Detached()
	e.pipeline.Run(e.doc)

	var captions dnd.Captions
	if panel != nil {
		captions = panel
		panel.SetUsage(e.engine)
		panel.Refresh()
	}
	e.coord = dnd.NewCoordinator(e.doc, e.engine, e.broker, e.slot, hit, captions, dnd.Hooks{
		Normalize: func(*model.Document) { e.normalizeLocked() },
		Refresh:   e.refreshPanel,
		Changed:   func() { e.changed = true },
	}, log)

	if persister != nil {
		e.saver = autosave.NewManager(opts.Autosave, e, persister, opts.Clock, log)
	}
	return e
}

// OnChange installs callback invoked once per logical change, after the
// editor lock is released.
func (e *Editor) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// Autosave returns save manager, nil when editor has no persister.
func (e *Editor) Autosave() *autosave.Manager {
	return e.saver
}

// Close stops autosave timers.
func (e *Editor) Close() {
	if e.saver != nil {
		e.saver.Close()
	}
}

// Load replaces document content with markup loaded from the server.
func (e *Editor) Load(content string, meta Metadata, reference string, version int64) error {
	parsed, err := markup.ParseHTML(content)
	if err != nil {
		return fmt.Errorf("unable to load document: %w", err)
	}

	e.mu.Lock()
	if e.coord != nil {
		e.coord.Cancel()
	}
	e.broker.Clear()
	// document identity is kept, coordinator holds on to it
	e.doc.Root = parsed.Root
	e.engine.Track(e.doc)
	res := e.pipeline.Run(e.doc)
	e.engine.WrapFullWidthGroups(e.doc)
	e.engine.MarkInlineBlocks(e.doc)
	e.sel = nil
	e.meta = meta
	e.slot.Set(reference)
	e.refreshPanel()
	snap, err := e.snapshotLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.log.Debug("Document loaded", zap.Int64("version", version), zap.Int("blocks", len(parsed.Blocks())),
		zap.Bool("normalized", res.Changed), zap.Int("evictions", res.Evictions))
	if e.saver != nil {
		e.saver.Reset(snap, version)
	}
	return nil
}

// LoadRevision loads server revision.
func (e *Editor) LoadRevision(rev *persist.Revision) error {
	if rev == nil {
		return errors.New("no revision to load")
	}
	return e.Load(rev.Content, Metadata{Title: rev.Title, Date: rev.Date, Timezone: rev.Timezone}, rev.Reference, rev.Version)
}

// Edit applies user input. Callback mutates document in place and returns
// selection after the edit.
func (e *Editor) Edit(fn func(doc *model.Document, sel *cursor.Selection) *cursor.Selection) {
	e.mu.Lock()
	defer e.unlock()

	e.sel = fn(e.doc, e.sel)
	before := e.engine.Counts()
	e.engine.Track(e.doc)
	e.broker.Prune(e.doc)
	if !maps.Equal(before, e.engine.Counts()) {
		e.refreshPanel()
	}
	e.changed = true
}

// Replace substitutes whole document body with markup as a single user
// edit, so unlike Load it is tracked as a change to be saved.
func (e *Editor) Replace(content string) error {
	parsed, err := markup.ParseHTML(content)
	if err != nil {
		return fmt.Errorf("unable to parse content: %w", err)
	}
	e.Edit(func(doc *model.Document, _ *cursor.Selection) *cursor.Selection {
		doc.Root.SetChildren(parsed.Root.TakeChildren())
		return nil
	})
	return nil
}

// View gives read access to the document under the editor lock.
func (e *Editor) View(fn func(doc *model.Document, sel *cursor.Selection)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.doc, e.sel)
}

// Select sets selection without modifying the document.
func (e *Editor) Select(sel *cursor.Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sel = sel
}

// Selection returns copy of current selection.
func (e *Editor) Selection() *cursor.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sel == nil {
		return nil
	}
	sel := *e.sel
	return &sel
}

// SetMetadata updates document metadata.
func (e *Editor) SetMetadata(meta Metadata) {
	e.mu.Lock()
	defer e.unlock()
	if e.meta == meta {
		return
	}
	e.meta = meta
	e.changed = true
}

// Metadata returns current document metadata.
func (e *Editor) Metadata() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// Reference returns image in the reference slot.
func (e *Editor) Reference() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot.UUID()
}

// Commit saves immediately, used when metadata fields lose focus.
func (e *Editor) Commit(ctx context.Context) error {
	if e.saver == nil {
		return nil
	}
	return e.saver.SaveNow(ctx)
}

// Normalize rewrites live document into canonical form keeping selection.
func (e *Editor) Normalize() normalize.Result {
	e.mu.Lock()
	defer e.unlock()
	res := e.normalizeLocked()
	if res.Changed {
		e.changed = true
	}
	return res
}

func (e *Editor) normalizeLocked() normalize.Result {
	m := cursor.Save(e.doc, e.sel)
	res := e.pipeline.Run(e.doc)
	e.engine.WrapFullWidthGroups(e.doc)
	e.engine.MarkInlineBlocks(e.doc)
	if m != nil {
		e.sel = cursor.Restore(e.doc, m, e.log)
	}
	if res.Evictions > 0 {
		e.refreshPanel()
	}
	e.broker.Prune(e.doc)
	return res
}

func (e *Editor) refreshPanel() {
	if e.panel != nil {
		e.panel.Refresh()
	}
}

// Markup returns persisted form of the document.
func (e *Editor) Markup() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return markup.Serialize(e.doc, e.detached.Normalize)
}

// Usage returns copy of image usage counts.
func (e *Editor) Usage() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engine.Counts()
}

// Capture implements autosave.Source, live document is not modified.
func (e *Editor) Capture() autosave.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.snapshotLocked()
	if err != nil {
		e.log.Error("Unable to serialize document", zap.Error(err))
	}
	return snap
}

// Prepare implements autosave.Source: live document is normalized so user
// sees canonical result, then snapshot is taken.
func (e *Editor) Prepare() autosave.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.normalizeLocked()
	snap, err := e.snapshotLocked()
	if err != nil {
		e.log.Error("Unable to serialize document", zap.Error(err))
	}
	return snap
}

func (e *Editor) snapshotLocked() (autosave.Snapshot, error) {
	content, err := markup.Serialize(e.doc, e.detached.Normalize)
	if err != nil {
		return autosave.Snapshot{}, err
	}
	return autosave.Snapshot{
		Markup:    content,
		Title:     e.meta.Title,
		Date:      e.meta.Date,
		Timezone:  e.meta.Timezone,
		Reference: e.slot.UUID(),
	}, nil
}

// unlock releases editor lock and flushes pending change notification.
func (e *Editor) unlock() {
	changed, fn := e.changed, e.onChange
	e.changed = false
	e.mu.Unlock()
	if !changed {
		return
	}
	if e.saver != nil {
		e.saver.ScheduleSave()
	}
	if fn != nil {
		fn()
	}
}
