package normalize

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"composer/css"
	"composer/model"
)

// historical formatting tags and their modern replacements
var canonicalTags = map[string]string{
	"b":      "strong",
	"i":      "em",
	"strike": "s",
	"tt":     "code",
	"font":   "span",
}

var sizingProperties = []string{"width", "height", "font-size"}

// cleanup performs cosmetic repairs which do not affect document structure
// invariants on their own.
func (p *Pipeline) cleanup(doc *model.Document) {
	root := doc.Root

	model.Walk(root, func(n *model.Node) bool {
		if n.Kind == model.KindInline {
			if tag, ok := canonicalTags[n.Tag]; ok {
				n.Tag = tag
			}
		}
		p.stripZeroSizing(n)
		return true
	})

	// nested identical wrappers and nested links
	for _, n := range model.FindAll(root, func(d *model.Node) bool { return d.Kind == model.KindInline }) {
		if sameWrapperAncestor(n) || (n.Tag == "a" && linkAncestor(n)) {
			n.Unwrap()
		}
	}

	p.repairLists(root)

	for _, n := range model.FindAll(root, func(d *model.Node) bool { return d.Kind == model.KindElement }) {
		n.Unwrap()
	}

	p.removeEmpty(root)
}

func sameWrapperAncestor(n *model.Node) bool {
	for a := n.Parent; a != nil && a.Kind == model.KindInline; a = a.Parent {
		if a.Tag == n.Tag && slices.Equal(a.Attrs, n.Attrs) {
			return true
		}
	}
	return false
}

func linkAncestor(n *model.Node) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Kind == model.KindInline && a.Tag == "a" {
			return true
		}
	}
	return false
}

// stripZeroSizing removes zero-valued width/height attributes and zero
// sizing declarations from inline style.
func (p *Pipeline) stripZeroSizing(n *model.Node) {
	if len(n.Attrs) == 0 {
		return
	}
	for _, key := range []string{"width", "height"} {
		if v, ok := n.Attr(key); ok && isZeroLength(v) {
			n.RemoveAttr(key)
		}
	}
	style, ok := n.Attr("style")
	if !ok {
		return
	}
	s := p.styles.ParseInline(style)
	removed := s.RemoveIf(func(d css.Declaration) bool {
		return slices.Contains(sizingProperties, d.Property) && d.Value.IsZero()
	})
	if removed == 0 {
		return
	}
	if len(s.Declarations) == 0 {
		n.RemoveAttr("style")
		return
	}
	n.SetAttr("style", s.String())
}

func isZeroLength(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz%")
	if v == "" {
		return false
	}
	return strings.Trim(v, "0.+-") == ""
}

// repairLists wraps orphan list items into lists and non-item list children
// into items.
func (p *Pipeline) repairLists(root *model.Node) {
	for _, li := range model.FindAll(root, func(d *model.Node) bool {
		return d.Kind == model.KindListItem && (d.Parent == nil || d.Parent.Kind != model.KindList)
	}) {
		if li.Parent == nil || li.Parent.Kind == model.KindList {
			// already moved together with a preceding sibling
			continue
		}
		list := model.NewList("ul")
		parent, i := li.Parent, li.Index()
		parent.InsertAt(i, list)
		for i+1 < len(parent.Children) && parent.Children[i+1].Kind == model.KindListItem {
			list.AppendChild(parent.Children[i+1])
		}
		p.log.Debug("Wrapped orphan list items", zap.Int("items", len(list.Children)))
	}

	for _, list := range model.FindAll(root, func(d *model.Node) bool { return d.Kind == model.KindList }) {
		var item *model.Node
		for _, c := range slices.Clone(list.Children) {
			switch {
			case c.Kind == model.KindListItem || c.Kind == model.KindControl:
				item = nil
			case isBlankText(c):
				c.Detach()
			default:
				if item == nil {
					item = model.NewListItem()
					list.InsertBefore(item, c)
				}
				item.AppendChild(c)
			}
		}
	}
}

func keepsPlaceholder(n *model.Node) bool {
	switch n.Kind {
	case model.KindParagraph, model.KindTextBlock, model.KindHeading, model.KindListItem:
		return true
	}
	return false
}

func isStructural(n *model.Node) bool {
	return n.IsBlock() || n.IsInnerBlock() || n.Kind == model.KindListItem
}

// removeEmpty drops formatting and structural elements without content,
// deepest first. Whitespace is content for formatting only. An otherwise
// empty paragraph, text block, heading or list item keeps a single
// placeholder break.
func (p *Pipeline) removeEmpty(root *model.Node) {
	nodes := model.FindAll(root, func(d *model.Node) bool {
		return d.Kind == model.KindInline || isStructural(d)
	})
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		switch {
		case n.Kind == model.KindInline:
			if n.IsEmpty() && !n.HasImages() {
				n.Detach()
			}
		case n.Kind == model.KindList:
			if !slices.ContainsFunc(n.Children, func(c *model.Node) bool { return c.Kind == model.KindListItem }) {
				n.Detach()
			}
		case n.HasText() || n.HasImages():
		case keepsPlaceholder(n) && n.HasBreak():
			keepFirstBreak(n)
		default:
			n.Detach()
		}
	}
}

// keepFirstBreak leaves only the first break of a content-less subtree and
// drops everything else except controls.
func keepFirstBreak(n *model.Node) {
	first := model.Find(n, func(d *model.Node) bool { return d.Kind == model.KindBreak })
	for _, c := range slices.Clone(n.Children) {
		if c.Kind == model.KindControl {
			continue
		}
		c.Detach()
	}
	n.InsertAt(0, first)
}
