package model

import (
	"composer/utils/debug"
)

type treeWriter struct {
	*debug.TreeWriter
}

// Dump returns a readable tree of the document for troubleshooting and test
// failure messages.
func (d *Document) Dump() string {
	if d == nil || d.Root == nil {
		return "<nil Document>"
	}
	tw := treeWriter{debug.NewTreeWriter()}
	tw.Line(0, "Document blocks=%d", len(d.Root.Children))
	for _, b := range d.Root.Children {
		tw.node(1, b)
	}
	return tw.String()
}

// Dump returns a readable tree of the subtree.
func (n *Node) Dump() string {
	if n == nil {
		return "<nil Node>"
	}
	tw := treeWriter{debug.NewTreeWriter()}
	tw.node(0, n)
	return tw.String()
}

func (tw treeWriter) node(depth int, n *Node) {
	switch n.Kind {
	case KindText:
		tw.TextBlock(depth, "text", n.Text)
		return
	case KindImage:
		if n.Image != nil {
			tw.Line(depth, "image uuid=%q layout=%s caption=%q%s", n.Image.UUID, n.Image.Layout, n.Image.Caption, decor(n))
		} else {
			tw.Line(depth, "image <nil wrapper>")
		}
		return
	case KindHeading:
		tw.Line(depth, "heading level=%d%s", n.Level, decor(n))
	case KindTextBlock:
		if n.HasInlineImage {
			tw.Line(depth, "text-block inline-image%s", decor(n))
		} else {
			tw.Line(depth, "text-block%s", decor(n))
		}
	default:
		tw.Line(depth, "%s <%s>%s", n.Kind, n.Tag, decor(n))
	}
	for _, a := range n.Attrs {
		tw.Line(depth+1, "@%s=%q", a.Key, a.Val)
	}
	for _, c := range n.Children {
		tw.node(depth+1, c)
	}
}

func decor(n *Node) string {
	if n.Decor == 0 {
		return ""
	}
	out := ""
	for _, c := range n.Decor.Classes() {
		out += " [" + c + "]"
	}
	return out
}
