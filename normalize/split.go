package normalize

import (
	"slices"

	"composer/model"
)

// splitAt moves at and everything following it inside block into a new
// block inserted right after block. Ancestors of at between it and block are
// shallow-cloned so both halves keep the same nesting. Returns the new block.
func splitAt(block, at *model.Node) *model.Node {
	var lower *model.Node
	node := at
	for {
		parent := node.Parent
		followers := slices.Clone(parent.Children[node.Index()+1:])

		pc := parent.ShallowClone()
		pc.Decor = 0
		if lower == nil {
			pc.AppendChild(node)
		} else {
			pc.AppendChild(lower)
		}
		for _, f := range followers {
			pc.AppendChild(f)
		}

		if parent == block {
			block.Parent.InsertAfter(pc, block)
			return pc
		}
		lower = pc
		node = parent
	}
}

// hoistOut takes target out of its top-level block placing it between the
// "before" and "after" halves of that block. Halves left without content
// are removed.
func hoistOut(block, target *model.Node) {
	after := splitAt(block, target)
	target.Detach()
	block.Parent.InsertAfter(target, block)
	pruneEmpty(after)
	pruneEmpty(block)
}

// pruneEmpty removes a split half which ended up without text and images.
func pruneEmpty(block *model.Node) {
	if block.Parent == nil || block.HasText() || block.HasImages() {
		return
	}
	block.Detach()
}

// hasBlockContent reports whether subtree holds anything which cannot live in
// inline context.
func hasBlockContent(n *model.Node) bool {
	return model.Find(n, func(d *model.Node) bool {
		return d.IsBlock() || d.IsInnerBlock() || d.Kind == model.KindListItem
	}) != nil
}

// isInlineContent reports whether top-level node belongs to a run which has
// to be wrapped into a text block.
func isInlineContent(n *model.Node) bool {
	switch n.Kind {
	case model.KindText, model.KindBreak, model.KindInline:
		return true
	case model.KindImage:
		return n.IsInlineImage()
	case model.KindElement:
		return !hasBlockContent(n)
	case model.KindDocument, model.KindTextBlock, model.KindContent, model.KindHeading, model.KindParagraph,
		model.KindList, model.KindListItem, model.KindQuote, model.KindCode, model.KindControl:
	}
	return false
}

func isBlankText(n *model.Node) bool {
	return n.Kind == model.KindText && model.IsBlank(n.Text)
}
