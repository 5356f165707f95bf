package model

import "slices"

// Tree surgery primitives. All of them keep Parent links consistent, callers
// must never modify Children slices directly.

// AppendChild moves c to the end of n's children.
func (n *Node) AppendChild(c *Node) {
	if c == nil {
		return
	}
	c.Detach()
	c.Parent = n
	n.Children = append(n.Children, c)
}

// InsertAt moves nodes into n's children starting at position i.
func (n *Node) InsertAt(i int, nodes ...*Node) {
	var list []*Node
	for _, c := range nodes {
		if c == nil {
			continue
		}
		// detaching from n itself may shift the requested position
		if c.Parent == n && c.Index() < i {
			i--
		}
		c.Detach()
		c.Parent = n
		list = append(list, c)
	}
	i = min(max(i, 0), len(n.Children))
	n.Children = slices.Insert(n.Children, i, list...)
}

// InsertBefore moves c in front of ref, ref must be n's child.
func (n *Node) InsertBefore(c, ref *Node) {
	if ref == nil || ref.Parent != n {
		n.AppendChild(c)
		return
	}
	if c == ref {
		return
	}
	c.Detach()
	n.InsertAt(ref.Index(), c)
}

// InsertAfter moves c right behind ref, ref must be n's child.
func (n *Node) InsertAfter(c, ref *Node) {
	if ref == nil || ref.Parent != n {
		n.AppendChild(c)
		return
	}
	if c == ref {
		return
	}
	c.Detach()
	n.InsertAt(ref.Index()+1, c)
}

// RemoveChild detaches c from n, reporting whether c was n's child.
func (n *Node) RemoveChild(c *Node) bool {
	if c == nil || c.Parent != n {
		return false
	}
	c.Detach()
	return true
}

// Detach removes node from its parent. Detached node keeps its own subtree.
func (n *Node) Detach() {
	p := n.Parent
	if p == nil {
		return
	}
	if i := p.indexOf(n); i >= 0 {
		p.Children = slices.Delete(p.Children, i, i+1)
	}
	n.Parent = nil
}

// ReplaceWith puts nodes in place of n and detaches n.
func (n *Node) ReplaceWith(nodes ...*Node) {
	p := n.Parent
	if p == nil {
		return
	}
	i := n.Index()
	n.Detach()
	p.InsertAt(i, nodes...)
}

// Unwrap replaces n with its own children.
func (n *Node) Unwrap() {
	children := slices.Clone(n.Children)
	n.ReplaceWith(children...)
}

// SetChildren replaces all children of n with provided nodes.
func (n *Node) SetChildren(nodes []*Node) {
	for _, c := range n.Children {
		c.Parent = nil
	}
	n.Children = nil
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

// TakeChildren detaches and returns all children of n.
func (n *Node) TakeChildren() []*Node {
	out := n.Children
	n.Children = nil
	for _, c := range out {
		c.Parent = nil
	}
	return out
}

// Index returns position of n among its siblings or -1.
func (n *Node) Index() int {
	if n.Parent == nil {
		return -1
	}
	return n.Parent.indexOf(n)
}

func (n *Node) indexOf(c *Node) int {
	return slices.Index(n.Children, c)
}

// PrevSibling returns the node immediately preceding n.
func (n *Node) PrevSibling() *Node {
	i := n.Index()
	if i <= 0 {
		return nil
	}
	return n.Parent.Children[i-1]
}

// NextSibling returns the node immediately following n.
func (n *Node) NextSibling() *Node {
	i := n.Index()
	if i < 0 || i+1 >= len(n.Parent.Children) {
		return nil
	}
	return n.Parent.Children[i+1]
}

// Contains reports whether d is n or one of its descendants.
func (n *Node) Contains(d *Node) bool {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Closest returns the nearest ancestor-or-self of requested kind.
func (n *Node) Closest(kinds ...Kind) *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if slices.Contains(kinds, cur.Kind) {
			return cur
		}
	}
	return nil
}

// TopLevel returns the top-level block enclosing n, nil when n is not
// attached to a document root.
func (n *Node) TopLevel() *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Parent != nil && cur.Parent.Kind == KindDocument {
			return cur
		}
	}
	return nil
}

// Contains reports whether n is attached to the document.
func (d *Document) Contains(n *Node) bool {
	if d == nil || d.Root == nil || n == nil || n == d.Root {
		return false
	}
	return d.Root.Contains(n)
}

// IndexOf returns position of top-level block or -1.
func (d *Document) IndexOf(block *Node) int {
	if d == nil || d.Root == nil || block == nil || block.Parent != d.Root {
		return -1
	}
	return block.Index()
}
