// Package dnd implements drag and drop of images between the picker, the
// editor body and the reference slot.
package dnd

import (
	"slices"

	"composer/model"
)

// Source is a context images can be selected and dragged from.
type Source string

const (
	SourcePicker    Source = "picker"
	SourceEditor    Source = "editor"
	SourceReference Source = "reference"
)

// Effect of a drop on the originating context.
type Effect string

const (
	EffectCopy Effect = "copy"
	EffectMove Effect = "move"
)

// Item is a single selectable or draggable image. Node is set for wrappers
// living in the editor body.
type Item struct {
	Source Source
	UUID   string
	Node   *model.Node
}

func (i Item) same(o Item) bool {
	if i.Source != o.Source {
		return false
	}
	if i.Node != nil || o.Node != nil {
		return i.Node == o.Node
	}
	return i.UUID == o.UUID
}

// Broker coordinates image selection across contexts. Only one context may
// hold a selection at a time, selecting in one clears the other.
type Broker struct {
	source Source
	items  []Item
}

// NewBroker creates empty selection.
func NewBroker() *Broker {
	return &Broker{}
}

// Select adds item to selection. Non-additive selection or selection in a
// different context replaces current one.
func (b *Broker) Select(item Item, additive bool) {
	if !additive || item.Source != b.source {
		b.Clear()
	}
	b.source = item.Source
	if b.Contains(item) {
		return
	}
	b.items = append(b.items, item)
	if item.Node != nil {
		item.Node.Decor |= model.DecorSelected
	}
}

// Toggle flips item membership in the selection.
func (b *Broker) Toggle(item Item) {
	if b.Contains(item) {
		b.Deselect(item)
		return
	}
	b.Select(item, true)
}

// Deselect removes item from selection.
func (b *Broker) Deselect(item Item) {
	i := slices.IndexFunc(b.items, item.same)
	if i < 0 {
		return
	}
	if n := b.items[i].Node; n != nil {
		n.Decor &^= model.DecorSelected
	}
	b.items = slices.Delete(b.items, i, i+1)
	if len(b.items) == 0 {
		b.source = ""
	}
}

// Clear drops whole selection.
func (b *Broker) Clear() {
	for _, it := range b.items {
		if it.Node != nil {
			it.Node.Decor &^= model.DecorSelected
		}
	}
	b.items = nil
	b.source = ""
}

// Contains reports whether item is selected.
func (b *Broker) Contains(item Item) bool {
	return slices.ContainsFunc(b.items, item.same)
}

// Source returns context holding the selection, empty when nothing is
// selected.
func (b *Broker) Source() Source {
	return b.source
}

// Selection returns selected items in selection order.
func (b *Broker) Selection() []Item {
	return slices.Clone(b.items)
}

// Prune removes editor items whose wrappers are no longer in the document.
func (b *Broker) Prune(doc *model.Document) {
	for _, it := range b.Selection() {
		if it.Node != nil && !doc.Contains(it.Node) {
			b.Deselect(it)
		}
	}
}

// ReferenceSlot holds a single optional image outside of the document body.
type ReferenceSlot struct {
	uuid string
}

// UUID returns image in the slot, empty when slot is vacant.
func (r *ReferenceSlot) UUID() string {
	return r.uuid
}

// Set puts image into the slot replacing previous one. Reports whether slot
// content changed.
func (r *ReferenceSlot) Set(uuid string) bool {
	if r.uuid == uuid {
		return false
	}
	r.uuid = uuid
	return true
}

// Clear vacates the slot, reporting whether it held an image.
func (r *ReferenceSlot) Clear() bool {
	return r.Set("")
}
