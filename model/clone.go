package model

import "slices"

// Clone and comparison functions for the document tree. Copies are used to
// build snapshots without touching the live surface.

// Clone creates a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{Root: d.Root.Clone()}
}

// Clone creates a deep copy of the subtree rooted at n. The copy is detached.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := n.ShallowClone()
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// ShallowClone copies node without children and parent.
func (n *Node) ShallowClone() *Node {
	c := &Node{
		Kind:           n.Kind,
		Tag:            n.Tag,
		Text:           n.Text,
		Level:          n.Level,
		Attrs:          slices.Clone(n.Attrs),
		HasInlineImage: n.HasInlineImage,
		Decor:          n.Decor,
	}
	if n.Image != nil {
		img := *n.Image
		c.Image = &img
	}
	return c
}

// Equal reports structural equality of two subtrees, decoration excluded.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Tag != b.Tag || a.Text != b.Text || a.Level != b.Level ||
		a.HasInlineImage != b.HasInlineImage || !slices.Equal(a.Attrs, b.Attrs) {
		return false
	}
	if (a.Image == nil) != (b.Image == nil) || (a.Image != nil && *a.Image != *b.Image) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two documents.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return d == o
	}
	return Equal(d.Root, o.Root)
}
