package dnd

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"composer/layout"
	"composer/model"
)

// Captions resolves default caption for a picker image.
type Captions interface {
	Caption(uuid string) string
}

// Hooks are invoked after every committed drop, in field order.
type Hooks struct {
	// Normalize runs normalization pipeline over the live document.
	Normalize func(doc *model.Document)
	// Refresh recomputes picker visibility from usage counts.
	Refresh func()
	// Changed is called exactly once per committed operation.
	Changed func()
}

// Target is a resolved drop position.
type Target struct {
	Placement layout.Placement
	// Between is set when pointer is in the gap between two blocks.
	Between bool
	// Self is set when editor payload is dropped onto one of its own
	// wrappers, such drop does nothing.
	Self bool
}

// Inline reports whether drop makes images float beside text.
func (t Target) Inline() bool {
	return t.Placement.Mode == layout.ModeInlineStart
}

// ErrNoDrag is returned by operations which need an active drag.
var ErrNoDrag = errors.New("no drag in progress")

type drag struct {
	source  Source
	effect  Effect
	payload []Item
	marked  []*model.Node
}

// Coordinator drives drag and drop state machine of a single surface. It is
// not safe for concurrent use, the owner serializes access.
type Coordinator struct {
	doc      *model.Document
	engine   *layout.Engine
	broker   *Broker
	slot     *ReferenceSlot
	hit      HitTester
	captions Captions
	hooks    Hooks
	log      *zap.Logger

	active *drag
}

// NewCoordinator creates coordinator working on the document. Document
// pointer must stay the same for the lifetime of the coordinator.
func NewCoordinator(doc *model.Document, engine *layout.Engine, broker *Broker, slot *ReferenceSlot,
	hit HitTester, captions Captions, hooks Hooks, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		doc:      doc,
		engine:   engine,
		broker:   broker,
		slot:     slot,
		hit:      hit,
		captions: captions,
		hooks:    hooks,
		log:      log.Named("dnd"),
	}
}

// SetHitTester replaces geometry provider, hosts re-render at will.
func (c *Coordinator) SetHitTester(hit HitTester) {
	c.hit = hit
}

// Dragging reports whether a drag is in progress and its source.
func (c *Coordinator) Dragging() (Source, bool) {
	if c.active == nil {
		return "", false
	}
	return c.active.source, true
}

// Payload returns items being dragged.
func (c *Coordinator) Payload() []Item {
	if c.active == nil {
		return nil
	}
	return slices.Clone(c.active.payload)
}

// DragStart begins a drag. When item is part of current selection the whole
// selection is dragged.
func (c *Coordinator) DragStart(item Item) (Effect, error) {
	if item.UUID == "" && item.Node != nil && item.Node.Image != nil {
		item.UUID = item.Node.Image.UUID
	}
	if item.UUID == "" {
		return "", fmt.Errorf("unable to drag image without identity from %s", item.Source)
	}
	if item.Source == SourceEditor && (item.Node == nil || !c.doc.Contains(item.Node)) {
		return "", fmt.Errorf("unable to drag editor image %s: wrapper is not in the document", item.UUID)
	}
	if c.active != nil {
		c.Cancel()
	}

	payload := []Item{item}
	if c.broker.Source() == item.Source && c.broker.Contains(item) {
		payload = c.broker.Selection()
	}

	d := &drag{source: item.Source, effect: EffectMove, payload: payload}
	if item.Source == SourcePicker {
		d.effect = EffectCopy
	}
	for _, it := range payload {
		if it.Node != nil {
			it.Node.Decor |= model.DecorDragging
			d.marked = append(d.marked, it.Node)
		}
	}
	c.active = d
	c.log.Debug("Drag started", zap.String("source", string(item.Source)), zap.Int("images", len(payload)),
		zap.String("effect", string(d.effect)))
	return d.effect, nil
}

// DragOver resolves drop target under pointer and updates indicators.
func (c *Coordinator) DragOver(p Point) Target {
	c.clearIndicators()
	t := c.resolve(p)
	if c.active == nil || t.Self {
		return t
	}
	if n := t.Placement.Target; n != nil {
		if t.Inline() {
			n = n.Closest(model.KindTextBlock)
		}
		if t.Between {
			n.Decor |= model.DecorDropBetween
		} else {
			n.Decor |= model.DecorDropTarget
		}
	}
	return t
}

func (c *Coordinator) resolve(p Point) Target {
	var t Target
	if c.hit == nil {
		t.Placement = layout.Placement{Mode: layout.ModeAfter}
		return t
	}

	if n := c.hit.NodeAt(p); n != nil && c.doc.Contains(n) {
		switch {
		case n.Closest(model.KindTextBlock) != nil:
			t.Placement = layout.Placement{Mode: layout.ModeInlineStart, Target: n.Closest(model.KindTextBlock)}
			if img := n.Closest(model.KindImage); img != nil {
				t.Self = c.inPayload(img)
			}
			return t
		case n.Closest(model.KindImage) != nil && n.Closest(model.KindImage).IsFullWidthImage():
			img := n.Closest(model.KindImage)
			t.Placement = layout.Placement{Mode: layout.ModeAfter, Target: img}
			t.Self = c.inPayload(img)
			return t
		}
	}

	block, rect, between := nearestBlock(c.doc, c.hit, p)
	if block == nil {
		t.Placement = layout.Placement{Mode: layout.ModeAfter}
		return t
	}
	mode := layout.ModeAfter
	if p.Y < rect.MidY() {
		mode = layout.ModeBefore
	}
	t.Placement = layout.Placement{Mode: mode, Target: block}
	t.Between = between
	return t
}

func (c *Coordinator) inPayload(n *model.Node) bool {
	if c.active == nil || c.active.source != SourceEditor {
		return false
	}
	return slices.ContainsFunc(c.active.payload, func(it Item) bool { return it.Node == n })
}

// Drop commits active drag at pointer position. Reports whether document
// changed.
func (c *Coordinator) Drop(p Point) (bool, error) {
	if c.active == nil {
		return false, ErrNoDrag
	}
	t := c.resolve(p)
	d := c.active
	defer c.finish()

	if t.Self {
		c.log.Debug("Drop onto own wrapper ignored")
		return false, nil
	}

	anchor := -1
	if t.Placement.Target != nil {
		anchor = c.doc.IndexOf(t.Placement.Target.TopLevel())
	}

	wrappers := make([]*model.Node, 0, len(d.payload))
	fresh := d.source != SourceEditor
	switch d.source {
	case SourcePicker, SourceReference:
		for _, it := range d.payload {
			caption := ""
			if c.captions != nil {
				caption = c.captions.Caption(it.UUID)
			}
			wrappers = append(wrappers, model.NewImage(it.UUID, model.LayoutFullWidth, caption))
		}
	case SourceEditor:
		// all wrappers leave their places before any is attached
		for _, it := range d.payload {
			if it.Node == nil || it.Node.Image == nil || !c.doc.Contains(it.Node) {
				continue
			}
			c.engine.Detach(it.Node)
			wrappers = append(wrappers, it.Node)
		}
	}
	if len(wrappers) == 0 {
		return false, nil
	}

	pl := t.Placement
	if pl.Target != nil && !c.doc.Contains(pl.Target) {
		// payload removal took target block with it, drop where it used to be
		pl = layout.Placement{Mode: layout.ModeBefore, Target: c.doc.Block(anchor)}
		if pl.Target == nil {
			pl.Mode = layout.ModeAfter
		}
	}
	var inlineBlock *model.Node
	if pl.Mode == layout.ModeInlineStart {
		inlineBlock = pl.Target.Closest(model.KindTextBlock)
	}

	for i, w := range wrappers {
		if i > 0 {
			pl = layout.Placement{Mode: layout.ModeAfter, Target: wrappers[i-1]}
		}
		if err := c.place(w, pl, fresh); err != nil {
			// wrapper is already out of its place, never lose it
			c.log.Warn("Unable to place image, appending to the end", zap.String("uuid", w.Image.UUID), zap.Error(err))
			if err := c.place(w, layout.Placement{Mode: layout.ModeAfter}, fresh); err != nil {
				return true, fmt.Errorf("unable to place image %s: %w", w.Image.UUID, err)
			}
		}
	}

	if inlineBlock != nil {
		if n := c.engine.EnforceInlineLimit(inlineBlock); n > 0 {
			c.log.Info("Drop exceeded inline image limit", zap.Int("evicted", n))
		}
	}
	if d.source == SourceReference {
		c.slot.Clear()
	}
	if len(d.payload) > 1 {
		c.broker.Clear()
	}
	c.log.Debug("Drop committed", zap.String("source", string(d.source)), zap.Int("images", len(wrappers)),
		zap.Stringer("placement", t.Placement))
	c.commit()
	return true, nil
}

func (c *Coordinator) place(w *model.Node, pl layout.Placement, fresh bool) error {
	if fresh {
		return c.engine.Insert(c.doc, w, pl)
	}
	return c.engine.Attach(c.doc, w, pl)
}

// DropOnReference puts dragged image into the reference slot. Document body
// is not modified.
func (c *Coordinator) DropOnReference() (bool, error) {
	if c.active == nil {
		return false, ErrNoDrag
	}
	d := c.active
	defer c.finish()

	if d.source == SourceReference || len(d.payload) == 0 {
		return false, nil
	}
	if !c.slot.Set(d.payload[0].UUID) {
		return false, nil
	}
	c.log.Debug("Reference image set", zap.String("uuid", d.payload[0].UUID), zap.String("source", string(d.source)))
	if c.hooks.Changed != nil {
		c.hooks.Changed()
	}
	return true, nil
}

// DropOnPicker handles drop back onto the picker: editor images are removed
// from the document, reference slot is cleared.
func (c *Coordinator) DropOnPicker() (bool, error) {
	if c.active == nil {
		return false, ErrNoDrag
	}
	d := c.active
	defer c.finish()

	switch d.source {
	case SourceEditor:
		nodes := make([]*model.Node, 0, len(d.payload))
		for _, it := range d.payload {
			nodes = append(nodes, it.Node)
		}
		return c.RemoveImages(nodes) > 0, nil
	case SourceReference:
		if !c.slot.Clear() {
			return false, nil
		}
		if c.hooks.Changed != nil {
			c.hooks.Changed()
		}
		return true, nil
	}
	return false, nil
}

// RemoveImages deletes wrappers from the document and returns how many were
// removed.
func (c *Coordinator) RemoveImages(nodes []*model.Node) int {
	removed := 0
	for _, n := range nodes {
		if n == nil || n.Kind != model.KindImage || n.Image == nil || !c.doc.Contains(n) {
			continue
		}
		c.broker.Deselect(Item{Source: SourceEditor, UUID: n.Image.UUID, Node: n})
		c.engine.Remove(n)
		removed++
	}
	if removed == 0 {
		return 0
	}
	c.log.Debug("Images removed", zap.Int("count", removed))
	c.commit()
	return removed
}

// Cancel abandons active drag, document is left untouched.
func (c *Coordinator) Cancel() {
	if c.active == nil {
		return
	}
	c.log.Debug("Drag cancelled", zap.String("source", string(c.active.source)))
	c.finish()
}

// commit runs post-drop sequence: regroup, mark, normalize, refresh, notify.
func (c *Coordinator) commit() {
	c.engine.WrapFullWidthGroups(c.doc)
	c.engine.MarkInlineBlocks(c.doc)
	if c.hooks.Normalize != nil {
		c.hooks.Normalize(c.doc)
	}
	c.broker.Prune(c.doc)
	if c.hooks.Refresh != nil {
		c.hooks.Refresh()
	}
	if c.hooks.Changed != nil {
		c.hooks.Changed()
	}
}

func (c *Coordinator) finish() {
	if c.active != nil {
		for _, n := range c.active.marked {
			n.Decor &^= model.DecorDragging
		}
	}
	c.clearIndicators()
	c.active = nil
}

func (c *Coordinator) clearIndicators() {
	model.Walk(c.doc.Root, func(n *model.Node) bool {
		n.Decor &^= model.DecorDropTarget | model.DecorDropBetween
		return true
	})
}
