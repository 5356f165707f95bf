package dnd

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"composer/layout"
	"composer/model"
	"composer/normalize"
)

type box struct {
	node *model.Node
	rect Rect
}

// fakeHit resolves points against registered boxes, later boxes are inner.
type fakeHit struct {
	boxes []box
}

func (f *fakeHit) add(n *model.Node, y, h float64) {
	f.boxes = append(f.boxes, box{node: n, rect: Rect{X: 0, Y: y, W: 500, H: h}})
}

func (f *fakeHit) NodeAt(p Point) *model.Node {
	var found *model.Node
	for _, b := range f.boxes {
		if p.X >= b.rect.X && p.X <= b.rect.X+b.rect.W && b.rect.ContainsY(p.Y) {
			found = b.node
		}
	}
	return found
}

func (f *fakeHit) Bounds(n *model.Node) (Rect, bool) {
	for _, b := range f.boxes {
		if b.node == n {
			return b.rect, true
		}
	}
	return Rect{}, false
}

type captions map[string]string

func (c captions) Caption(uuid string) string { return c[uuid] }

type harness struct {
	doc     *model.Document
	engine  *layout.Engine
	broker  *Broker
	slot    *ReferenceSlot
	hit     *fakeHit
	coord   *Coordinator
	changed int
	refresh int
}

func newHarness(t *testing.T, blocks ...*model.Node) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := &harness{
		doc:    model.NewDocument(blocks...),
		engine: layout.New(2, log),
		broker: NewBroker(),
		slot:   &ReferenceSlot{},
		hit:    &fakeHit{},
	}
	h.engine.Track(h.doc)
	pipeline := normalize.New(normalize.Options{}, h.engine, log)
	h.coord = NewCoordinator(h.doc, h.engine, h.broker, h.slot, h.hit, captions{"u1": "Harbor"}, Hooks{
		Normalize: pipeline.Normalize,
		Refresh:   func() { h.refresh++ },
		Changed:   func() { h.changed++ },
	}, log)
	// stack blocks vertically with gaps
	y := 0.0
	for _, b := range h.doc.Blocks() {
		h.hit.add(b, y, 100)
		for _, img := range b.Images() {
			h.hit.add(img, y+10, 40)
		}
		y += 120
	}
	return h
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	if err := h.engine.Verify(h.doc); err != nil {
		t.Fatalf("usage inconsistent: %v\n%s", err, h.doc.Dump())
	}
}

func TestPickerDropInline(t *testing.T) {
	tb := model.NewTextBlock(model.NewParagraph(model.NewText("text")))
	h := newHarness(t, tb)

	effect, err := h.coord.DragStart(Item{Source: SourcePicker, UUID: "u1"})
	if err != nil || effect != EffectCopy {
		t.Fatalf("unexpected drag start: %v %v", effect, err)
	}
	if tgt := h.coord.DragOver(Point{X: 10, Y: 50}); !tgt.Inline() || tb.Decor&model.DecorDropTarget == 0 {
		t.Fatalf("expected inline target with indicator, got %+v", tgt)
	}
	changed, err := h.coord.Drop(Point{X: 10, Y: 50})
	if err != nil || !changed {
		t.Fatalf("drop failed: %v %v", changed, err)
	}

	img := tb.Children[0]
	if !img.IsInlineImage() || img.Image.UUID != "u1" || img.Image.Caption != "Harbor" || !tb.HasInlineImage {
		t.Fatalf("unexpected tree:\n%s", h.doc.Dump())
	}
	if h.changed != 1 || h.refresh != 1 {
		t.Fatalf("expected single notification and refresh, got %d/%d", h.changed, h.refresh)
	}
	if tb.Decor != 0 {
		t.Fatalf("indicators left behind: %v", tb.Decor.Classes())
	}
	if _, ok := h.coord.Dragging(); ok {
		t.Fatalf("drag still active")
	}
	h.verify(t)
}

func TestDropEvictsRightmost(t *testing.T) {
	tb := model.NewTextBlock(
		model.NewImage("1", model.LayoutInlineRight, ""),
		model.NewImage("2", model.LayoutInlineRight, ""),
		model.NewParagraph(model.NewText("text")),
	)
	h := newHarness(t, tb)

	if _, err := h.coord.DragStart(Item{Source: SourcePicker, UUID: "3"}); err != nil {
		t.Fatalf("drag start failed: %v", err)
	}
	if _, err := h.coord.Drop(Point{X: 10, Y: 80}); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	images := tb.InlineImages()
	if len(images) != 2 || images[0].Image.UUID != "3" || images[1].Image.UUID != "1" {
		t.Fatalf("unexpected inline images:\n%s", h.doc.Dump())
	}
	if h.engine.Count("2") != 0 {
		t.Fatalf("evicted image still counted")
	}
	h.verify(t)
}

func TestEditorMoveToText(t *testing.T) {
	tb := model.NewTextBlock(model.NewParagraph(model.NewText("text")))
	fw := model.NewImage("a", model.LayoutFullWidth, "")
	h := newHarness(t, tb, model.NewContentBlock(fw))

	effect, err := h.coord.DragStart(Item{Source: SourceEditor, Node: fw})
	if err != nil || effect != EffectMove {
		t.Fatalf("unexpected drag start: %v %v", effect, err)
	}
	if fw.Decor&model.DecorDragging == 0 {
		t.Fatalf("dragging decoration missing")
	}
	if _, err := h.coord.Drop(Point{X: 10, Y: 90}); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if len(h.doc.Blocks()) != 1 || tb.Children[0] != fw || !fw.IsInlineImage() {
		t.Fatalf("unexpected tree:\n%s", h.doc.Dump())
	}
	if fw.Decor != 0 {
		t.Fatalf("decoration left: %v", fw.Decor.Classes())
	}
	if h.engine.Count("a") != 1 {
		t.Fatalf("move changed usage: %v", h.engine.Counts())
	}
	h.verify(t)
}

func TestDropOntoItself(t *testing.T) {
	fw := model.NewImage("a", model.LayoutFullWidth, "")
	h := newHarness(t, model.NewTextBlock(model.NewText("x")), model.NewContentBlock(fw))
	before := h.doc.Clone()

	if _, err := h.coord.DragStart(Item{Source: SourceEditor, Node: fw}); err != nil {
		t.Fatalf("drag start failed: %v", err)
	}
	if tgt := h.coord.DragOver(Point{X: 10, Y: 140}); !tgt.Self {
		t.Fatalf("expected self target, got %+v", tgt)
	}
	changed, err := h.coord.Drop(Point{X: 10, Y: 140})
	if err != nil || changed {
		t.Fatalf("self drop must be a no-op: %v %v", changed, err)
	}
	if !h.doc.Equal(before) || h.changed != 0 {
		t.Fatalf("document modified:\n%s", h.doc.Dump())
	}
}

func TestMultiSelectionDrag(t *testing.T) {
	a := model.NewImage("a", model.LayoutFullWidth, "")
	b := model.NewImage("b", model.LayoutFullWidth, "")
	h := newHarness(t,
		model.NewTextBlock(model.NewText("one")),
		model.NewContentBlock(a, b),
		model.NewTextBlock(model.NewText("two")),
	)

	h.broker.Select(Item{Source: SourceEditor, Node: a, UUID: "a"}, false)
	h.broker.Select(Item{Source: SourceEditor, Node: b, UUID: "b"}, true)

	if _, err := h.coord.DragStart(Item{Source: SourceEditor, Node: a}); err != nil {
		t.Fatalf("drag start failed: %v", err)
	}
	if n := len(h.coord.Payload()); n != 2 {
		t.Fatalf("expected whole selection in payload, got %d", n)
	}
	if _, err := h.coord.Drop(Point{X: 10, Y: 400}); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	blocks := h.doc.Blocks()
	if len(blocks) != 3 || blocks[2].Kind != model.KindContent {
		t.Fatalf("unexpected tree:\n%s", h.doc.Dump())
	}
	if blocks[2].Children[0] != a || blocks[2].Children[1] != b {
		t.Fatalf("images out of order:\n%s", h.doc.Dump())
	}
	if len(h.broker.Selection()) != 0 || a.Decor&model.DecorSelected != 0 {
		t.Fatalf("selection not cleared")
	}
	if h.changed != 1 {
		t.Fatalf("expected single change notification, got %d", h.changed)
	}
	h.verify(t)
}

func TestDragOverBetweenAndCancel(t *testing.T) {
	first := model.NewTextBlock(model.NewText("one"))
	h := newHarness(t, first, model.NewTextBlock(model.NewText("two")))
	before := h.doc.Clone()

	if _, err := h.coord.DragStart(Item{Source: SourcePicker, UUID: "u1"}); err != nil {
		t.Fatalf("drag start failed: %v", err)
	}
	tgt := h.coord.DragOver(Point{X: 10, Y: 110})
	if !tgt.Between || tgt.Placement.Mode != layout.ModeAfter || tgt.Placement.Target != first {
		t.Fatalf("unexpected target %+v", tgt)
	}
	if first.Decor&model.DecorDropBetween == 0 {
		t.Fatalf("between indicator missing")
	}

	h.coord.Cancel()
	if first.Decor != 0 || !h.doc.Equal(before) || h.changed != 0 {
		t.Fatalf("cancel left traces:\n%s", h.doc.Dump())
	}
	if _, err := h.coord.Drop(Point{}); err != ErrNoDrag {
		t.Fatalf("expected ErrNoDrag, got %v", err)
	}
}

func TestReferenceSlot(t *testing.T) {
	fw := model.NewImage("a", model.LayoutFullWidth, "")
	tb := model.NewTextBlock(model.NewText("x"))
	h := newHarness(t, tb, model.NewContentBlock(fw))

	t.Run("editor_to_reference", func(t *testing.T) {
		if _, err := h.coord.DragStart(Item{Source: SourceEditor, Node: fw}); err != nil {
			t.Fatalf("drag start failed: %v", err)
		}
		changed, err := h.coord.DropOnReference()
		if err != nil || !changed || h.slot.UUID() != "a" {
			t.Fatalf("reference not set: %v %v %q", changed, err, h.slot.UUID())
		}
		if len(h.doc.Images()) != 1 {
			t.Fatalf("body must keep the image")
		}
	})

	t.Run("reference_to_editor", func(t *testing.T) {
		if _, err := h.coord.DragStart(Item{Source: SourceReference, UUID: h.slot.UUID()}); err != nil {
			t.Fatalf("drag start failed: %v", err)
		}
		if _, err := h.coord.Drop(Point{X: 10, Y: 50}); err != nil {
			t.Fatalf("drop failed: %v", err)
		}
		if h.slot.UUID() != "" {
			t.Fatalf("slot must be cleared by move")
		}
		if h.engine.Count("a") != 2 || !tb.HasInlineImage {
			t.Fatalf("unexpected state %v:\n%s", h.engine.Counts(), h.doc.Dump())
		}
		h.verify(t)
	})

	t.Run("reference_to_picker", func(t *testing.T) {
		h.slot.Set("z")
		if _, err := h.coord.DragStart(Item{Source: SourceReference, UUID: "z"}); err != nil {
			t.Fatalf("drag start failed: %v", err)
		}
		if changed, _ := h.coord.DropOnPicker(); !changed || h.slot.UUID() != "" {
			t.Fatalf("reference not cleared")
		}
	})
}

func TestDropOnPickerRemoves(t *testing.T) {
	fw := model.NewImage("a", model.LayoutFullWidth, "")
	h := newHarness(t, model.NewTextBlock(model.NewText("x")), model.NewContentBlock(fw))

	if _, err := h.coord.DragStart(Item{Source: SourceEditor, Node: fw}); err != nil {
		t.Fatalf("drag start failed: %v", err)
	}
	changed, err := h.coord.DropOnPicker()
	if err != nil || !changed {
		t.Fatalf("removal failed: %v %v", changed, err)
	}
	if len(h.doc.Blocks()) != 1 || h.engine.Count("a") != 0 || h.refresh != 1 {
		t.Fatalf("unexpected state %v:\n%s", h.engine.Counts(), h.doc.Dump())
	}
	h.verify(t)
}

func TestBrokerExclusive(t *testing.T) {
	b := NewBroker()
	n := model.NewImage("e", model.LayoutFullWidth, "")

	b.Select(Item{Source: SourcePicker, UUID: "p1"}, false)
	b.Select(Item{Source: SourcePicker, UUID: "p2"}, true)
	if len(b.Selection()) != 2 || b.Source() != SourcePicker {
		t.Fatalf("unexpected selection %+v", b.Selection())
	}

	b.Select(Item{Source: SourceEditor, UUID: "e", Node: n}, true)
	if len(b.Selection()) != 1 || b.Source() != SourceEditor || n.Decor&model.DecorSelected == 0 {
		t.Fatalf("selection in another context must replace: %+v", b.Selection())
	}

	b.Toggle(Item{Source: SourceEditor, UUID: "e", Node: n})
	if len(b.Selection()) != 0 || b.Source() != "" || n.Decor != 0 {
		t.Fatalf("toggle did not deselect")
	}
}
