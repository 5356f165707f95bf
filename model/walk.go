package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// WalkFunc is called for every visited node in document order. Returning
// false skips the node's subtree.
type WalkFunc func(n *Node) bool

// Walk visits n and its descendants in pre-order. The callback must not
// restructure the tree it is walking.
func Walk(n *Node, fn WalkFunc) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Find returns the first descendant of n (excluding n) matching predicate.
func Find(n *Node, pred func(*Node) bool) *Node {
	var found *Node
	for _, c := range n.Children {
		Walk(c, func(d *Node) bool {
			if found != nil {
				return false
			}
			if pred(d) {
				found = d
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// FindAll returns all descendants of n (excluding n) matching predicate.
func FindAll(n *Node, pred func(*Node) bool) []*Node {
	var out []*Node
	for _, c := range n.Children {
		Walk(c, func(d *Node) bool {
			if pred(d) {
				out = append(out, d)
			}
			return true
		})
	}
	return out
}

// PlainText returns flattened text content of the subtree. Line breaks and
// images do not contribute characters, which keeps text offsets stable across
// structural rewrites.
func (n *Node) PlainText() string {
	var buf strings.Builder
	Walk(n, func(d *Node) bool {
		if d.Kind == KindControl {
			return false
		}
		if d.Kind == KindText {
			buf.WriteString(d.Text)
		}
		return true
	})
	return buf.String()
}

// TextLen returns number of characters (runes) in flattened text content.
func (n *Node) TextLen() int {
	return utf8.RuneCountInString(n.PlainText())
}

// HasText reports whether the subtree has any non-whitespace text.
func (n *Node) HasText() bool {
	found := false
	Walk(n, func(d *Node) bool {
		if found || d.Kind == KindControl {
			return false
		}
		if d.Kind == KindText && !IsBlank(d.Text) {
			found = true
		}
		return !found
	})
	return found
}

// HasBreak reports whether subtree has a line-break marker.
func (n *Node) HasBreak() bool {
	return n.Kind == KindBreak || Find(n, func(d *Node) bool { return d.Kind == KindBreak }) != nil
}

// Images returns image wrapper nodes in document order.
func (n *Node) Images() []*Node {
	return FindAll(n, func(d *Node) bool { return d.Kind == KindImage })
}

// HasImages reports whether subtree holds any image wrapper.
func (n *Node) HasImages() bool {
	return Find(n, func(d *Node) bool { return d.Kind == KindImage }) != nil
}

// IsEmpty reports whether subtree carries no content at all: no text, no
// images and no line breaks.
func (n *Node) IsEmpty() bool {
	switch n.Kind {
	case KindText:
		return n.Text == ""
	case KindBreak, KindImage:
		return false
	}
	return !n.HasText() && !n.HasImages() && !n.HasBreak() && !hasWhitespaceText(n)
}

func hasWhitespaceText(n *Node) bool {
	found := false
	Walk(n, func(d *Node) bool {
		if found || d.Kind == KindControl {
			return false
		}
		if d.Kind == KindText && d.Text != "" {
			found = true
		}
		return !found
	})
	return found
}

// IsBlank reports whether string consists of whitespace only. Non-breaking
// spaces count as content since editors use them as visible placeholders.
func IsBlank(s string) bool {
	for _, r := range s {
		if r == '\u00a0' || !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// PlainText returns flattened text content of the whole document.
func (d *Document) PlainText() string {
	if d == nil || d.Root == nil {
		return ""
	}
	return d.Root.PlainText()
}

// Images returns all image wrapper nodes of the document in order.
func (d *Document) Images() []*Node {
	if d == nil || d.Root == nil {
		return nil
	}
	return d.Root.Images()
}
