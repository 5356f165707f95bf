package editor

import (
	"composer/dnd"
	"composer/model"
)

// SetHitTester replaces geometry provider after re-rendering.
func (e *Editor) SetHitTester(hit dnd.HitTester) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coord.SetHitTester(hit)
}

// SelectImage adds image to the shared image selection.
func (e *Editor) SelectImage(item dnd.Item, additive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broker.Select(item, additive)
}

// ToggleImage flips image membership in the selection.
func (e *Editor) ToggleImage(item dnd.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broker.Toggle(item)
}

// ClearImageSelection drops image selection in every context.
func (e *Editor) ClearImageSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broker.Clear()
}

// ImageSelection returns selected images.
func (e *Editor) ImageSelection() []dnd.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broker.Selection()
}

func (e *Editor) DragStart(item dnd.Item) (dnd.Effect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coord.DragStart(item)
}

func (e *Editor) DragOver(p dnd.Point) dnd.Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coord.DragOver(p)
}

// Drop commits active drag into the document body.
func (e *Editor) Drop(p dnd.Point) (bool, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.coord.Drop(p)
}

// DropOnReference puts dragged image into the reference slot.
func (e *Editor) DropOnReference() (bool, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.coord.DropOnReference()
}

// DropOnPicker removes dragged editor images or clears the reference slot.
func (e *Editor) DropOnPicker() (bool, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.coord.DropOnPicker()
}

// CancelDrag abandons active drag.
func (e *Editor) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coord.Cancel()
}

// RemoveImages deletes image wrappers, used by delete affordance.
func (e *Editor) RemoveImages(nodes ...*model.Node) int {
	e.mu.Lock()
	defer e.unlock()
	return e.coord.RemoveImages(nodes)
}

// RemoveSelectedImages deletes editor images in the current selection.
func (e *Editor) RemoveSelectedImages() int {
	e.mu.Lock()
	defer e.unlock()
	if e.broker.Source() != dnd.SourceEditor {
		return 0
	}
	var nodes []*model.Node
	for _, it := range e.broker.Selection() {
		nodes = append(nodes, it.Node)
	}
	return e.coord.RemoveImages(nodes)
}
