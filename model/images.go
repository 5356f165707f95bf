package model

import "slices"

// InlineImages returns InlineRight wrappers which are direct children of the
// block, in order.
func (n *Node) InlineImages() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.IsInlineImage() {
			out = append(out, c)
		}
	}
	return out
}

// RefreshInlineFlag recomputes HasInlineImage of a text block and reports
// whether it changed.
func (n *Node) RefreshInlineFlag() bool {
	if n.Kind != KindTextBlock {
		return false
	}
	has := slices.ContainsFunc(n.Children, (*Node).IsInlineImage)
	if has == n.HasInlineImage {
		return false
	}
	n.HasInlineImage = has
	return true
}

// RegroupFullWidth makes every top-level run of full width images a single
// content block. Content blocks holding nothing but images are dissolved
// first, bare top-level wrappers are forced to full width. Result does not
// depend on how images were grouped before.
func RegroupFullWidth(doc *Document) {
	if doc == nil || doc.Root == nil {
		return
	}
	root := doc.Root

	for _, b := range slices.Clone(root.Children) {
		if b.Kind == KindContent && imagesOnly(b) {
			b.Unwrap()
		}
	}

	var group *Node
	for i := 0; i < len(root.Children); {
		b := root.Children[i]
		if b.Kind != KindImage || b.Image == nil {
			group = nil
			i++
			continue
		}
		b.Image.Layout = LayoutFullWidth
		if group == nil {
			group = NewContentBlock()
			root.InsertAt(i, group)
			i++
		}
		group.AppendChild(b)
	}
}

func imagesOnly(n *Node) bool {
	for _, c := range n.Children {
		if c.Kind != KindImage {
			return false
		}
	}
	return true
}
