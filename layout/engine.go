// Package layout tracks image usage and places image wrappers in a document.
package layout

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"composer/model"
)

// DefaultInlineLimit is maximum number of InlineRight images per text block.
const DefaultInlineLimit = 2

// Engine owns usage map of a single editing surface and performs every image
// placement outside of normalization. It is not safe for concurrent use, the
// owner serializes access.
type Engine struct {
	usage map[string]int
	limit int
	log   *zap.Logger
}

// New creates engine with the given inline image limit.
func New(limit int, log *zap.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{usage: make(map[string]int), limit: limit, log: log.Named("layout")}
}

// Limit returns maximum number of InlineRight images per text block.
func (e *Engine) Limit() int {
	return e.limit
}

// Track rebuilds usage map from document content.
func (e *Engine) Track(doc *model.Document) {
	e.usage = countImages(doc)
	e.log.Debug("Usage rebuilt", zap.Int("images", e.Total()), zap.Int("unique", len(e.usage)))
}

func countImages(doc *model.Document) map[string]int {
	counts := make(map[string]int)
	for _, img := range doc.Images() {
		if img.Image == nil {
			continue
		}
		counts[img.Image.UUID]++
	}
	return counts
}

// RecordUsage adjusts usage count of an image. Key disappears when its count
// drops to zero.
func (e *Engine) RecordUsage(uuid string, delta int) {
	if uuid == "" || delta == 0 {
		return
	}
	n := e.usage[uuid] + delta
	if n <= 0 {
		if n < 0 {
			e.log.Warn("Usage count went negative, resetting", zap.String("uuid", uuid), zap.Int("count", n))
		}
		delete(e.usage, uuid)
		return
	}
	e.usage[uuid] = n
}

// Count returns number of wrappers referencing the image.
func (e *Engine) Count(uuid string) int {
	return e.usage[uuid]
}

// Counts returns a copy of the usage map.
func (e *Engine) Counts() map[string]int {
	return maps.Clone(e.usage)
}

// Total returns number of image wrappers in the document.
func (e *Engine) Total() int {
	total := 0
	for _, n := range e.usage {
		total += n
	}
	return total
}

// Verify compares usage map with document content.
func (e *Engine) Verify(doc *model.Document) error {
	actual := countImages(doc)
	if maps.Equal(actual, e.usage) {
		return nil
	}
	var diffs []string
	for _, id := range slices.Sorted(maps.Keys(mergeKeys(actual, e.usage))) {
		if actual[id] != e.usage[id] {
			diffs = append(diffs, fmt.Sprintf("%s: tracked %d, present %d", id, e.usage[id], actual[id]))
		}
	}
	return fmt.Errorf("usage map is out of sync: %s", strings.Join(diffs, "; "))
}

func mergeKeys(a, b map[string]int) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	return keys
}

// WrapFullWidthGroups regroups top-level full width images so that every
// consecutive run lives in exactly one content block. Idempotent.
func (e *Engine) WrapFullWidthGroups(doc *model.Document) {
	model.RegroupFullWidth(doc)
}

// MarkInlineBlocks recomputes inline image flag on every text block.
func (e *Engine) MarkInlineBlocks(doc *model.Document) {
	for _, b := range doc.Blocks() {
		b.RefreshInlineFlag()
	}
}

// EnforceInlineLimit evicts rightmost InlineRight images of the block which
// exceed the limit. Evicted images leave the document and their usage is
// decremented. Returns number of evicted images.
func (e *Engine) EnforceInlineLimit(block *model.Node) int {
	if block == nil || block.Kind != model.KindTextBlock {
		return 0
	}
	images := block.InlineImages()
	if len(images) <= e.limit {
		return 0
	}
	evicted := images[e.limit:]
	for _, img := range evicted {
		img.Detach()
		e.RecordUsage(img.Image.UUID, -1)
		e.log.Info("Inline image evicted, block is over the limit",
			zap.String("uuid", img.Image.UUID), zap.Int("limit", e.limit))
	}
	block.RefreshInlineFlag()
	return len(evicted)
}

// Mode selects where wrapper goes relative to the placement target.
type Mode string

const (
	ModeInlineStart Mode = "inline-start"
	ModeAfter       Mode = "after"
	ModeBefore      Mode = "before"
)

// Placement describes drop position. Nil target means end of the document.
type Placement struct {
	Mode   Mode
	Target *model.Node
}

func (p Placement) String() string {
	if p.Target == nil {
		return string(p.Mode) + ":end"
	}
	return string(p.Mode) + ":" + p.Target.String()
}

// ErrDetachedTarget is returned when placement target is not part of the
// document.
var ErrDetachedTarget = errors.New("placement target is not in the document")

// Insert places a new wrapper and counts it as used.
func (e *Engine) Insert(doc *model.Document, wrapper *model.Node, pl Placement) error {
	if wrapper == nil || wrapper.Kind != model.KindImage || wrapper.Image == nil {
		return fmt.Errorf("unable to insert %v: not an image wrapper", wrapper)
	}
	if err := e.place(doc, wrapper, pl); err != nil {
		return err
	}
	e.RecordUsage(wrapper.Image.UUID, 1)
	e.log.Debug("Image inserted", zap.String("uuid", wrapper.Image.UUID), zap.Stringer("placement", pl))
	return nil
}

// Attach moves existing wrapper to a new position. Usage does not change,
// layout follows the placement.
func (e *Engine) Attach(doc *model.Document, wrapper *model.Node, pl Placement) error {
	if wrapper == nil || wrapper.Kind != model.KindImage || wrapper.Image == nil {
		return fmt.Errorf("unable to attach %v: not an image wrapper", wrapper)
	}
	if pl.Target == wrapper {
		return nil
	}
	e.Detach(wrapper)
	if err := e.place(doc, wrapper, pl); err != nil {
		return err
	}
	e.log.Debug("Image moved", zap.String("uuid", wrapper.Image.UUID), zap.Stringer("placement", pl))
	return nil
}

// Detach takes wrapper out of the tree keeping it counted, the wrapper is
// expected to be attached again.
func (e *Engine) Detach(wrapper *model.Node) {
	parent := wrapper.Parent
	if parent == nil {
		return
	}
	wrapper.Detach()
	tidyParent(parent)
}

// Remove takes wrapper out of the document for good.
func (e *Engine) Remove(wrapper *model.Node) {
	if wrapper == nil || wrapper.Kind != model.KindImage || wrapper.Image == nil {
		return
	}
	e.Detach(wrapper)
	e.RecordUsage(wrapper.Image.UUID, -1)
	e.log.Debug("Image removed", zap.String("uuid", wrapper.Image.UUID), zap.Int("remaining", e.Count(wrapper.Image.UUID)))
}

// tidyParent keeps former container of a wrapper consistent.
func tidyParent(parent *model.Node) {
	switch parent.Kind {
	case model.KindContent:
		if len(parent.Children) == 0 {
			parent.Detach()
		}
	case model.KindTextBlock:
		parent.RefreshInlineFlag()
	}
}

func (e *Engine) place(doc *model.Document, w *model.Node, pl Placement) error {
	if pl.Target == nil {
		w.Image.Layout = model.LayoutFullWidth
		doc.Root.AppendChild(w)
		return nil
	}
	if !doc.Contains(pl.Target) {
		return ErrDetachedTarget
	}

	switch pl.Mode {
	case ModeInlineStart:
		tb := pl.Target.Closest(model.KindTextBlock)
		if tb == nil {
			return fmt.Errorf("inline placement needs a text block, got %s", pl.Target)
		}
		w.Image.Layout = model.LayoutInlineRight
		tb.InsertAt(0, w)
		tb.RefreshInlineFlag()
		return nil

	case ModeAfter, ModeBefore:
		target := pl.Target
		if target.Kind == model.KindImage {
			// next to another wrapper, sharing its layout
			w.Image.Layout = target.Image.Layout
			if pl.Mode == ModeAfter {
				target.Parent.InsertAfter(w, target)
			} else {
				target.Parent.InsertBefore(w, target)
			}
			if target.Parent.Kind == model.KindTextBlock {
				target.Parent.RefreshInlineFlag()
			}
			return nil
		}
		block := target.TopLevel()
		if block == nil {
			return ErrDetachedTarget
		}
		w.Image.Layout = model.LayoutFullWidth
		if pl.Mode == ModeAfter {
			doc.Root.InsertAfter(w, block)
		} else {
			doc.Root.InsertBefore(w, block)
		}
		return nil
	}
	return fmt.Errorf("unknown placement mode %q", pl.Mode)
}
