package model

import (
	"fmt"
	"strings"
)

// Type definitions for the editable document tree.

// Kind distinguishes the closed set of node variants the editor knows about.
type Kind string

const (
	KindDocument  Kind = "document"
	KindText      Kind = "text"
	KindBreak     Kind = "break"
	KindInline    Kind = "inline"
	KindImage     Kind = "image"
	KindTextBlock Kind = "text-block"
	KindContent   Kind = "content-block"
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindList      Kind = "list"
	KindListItem  Kind = "list-item"
	KindQuote     Kind = "quote"
	KindCode      Kind = "code"
	KindControl   Kind = "control"
	KindElement   Kind = "element"
)

// Layout is the placement of an image wrapper relative to the text flow.
type Layout string

const (
	LayoutInlineRight Layout = "inline-right"
	LayoutFullWidth   Layout = "full-width"
)

// ParseLayout converts markup attribute value to Layout, anything unknown is
// treated as full width.
func ParseLayout(s string) Layout {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(LayoutInlineRight), "inline", "float", "right":
		return LayoutInlineRight
	default:
		return LayoutFullWidth
	}
}

// ImageWrapper is an embedded image. It is exclusively owned by the node that
// holds it, moving an image means detaching and re-attaching the node.
type ImageWrapper struct {
	UUID    string
	Layout  Layout
	Caption string
}

func (w *ImageWrapper) Inline() bool {
	return w != nil && w.Layout == LayoutInlineRight
}

// Attr is a single markup attribute kept on a node.
type Attr struct {
	Key string
	Val string
}

// Decoration is transient editor-only state which never reaches serialized
// markup.
type Decoration uint8

const (
	DecorSelected Decoration = 1 << iota
	DecorDragging
	DecorDropTarget
	DecorDropBetween
)

var decorationClasses = []struct {
	flag  Decoration
	class string
}{
	{DecorSelected, "selected"},
	{DecorDragging, "dragging"},
	{DecorDropTarget, "drop-target"},
	{DecorDropBetween, "drop-between"},
}

// DecorationFromClass returns the flag for a transient class name.
func DecorationFromClass(class string) (Decoration, bool) {
	for _, d := range decorationClasses {
		if d.class == class {
			return d.flag, true
		}
	}
	return 0, false
}

// Classes lists class names for the set flags in stable order.
func (d Decoration) Classes() []string {
	var out []string
	for _, dc := range decorationClasses {
		if d&dc.flag != 0 {
			out = append(out, dc.class)
		}
	}
	return out
}

// Node is a single element of the document tree. Which fields are meaningful
// depends on Kind: Text for text runs, Level for headings, Image for image
// wrappers, HasInlineImage for text blocks, Tag and Attrs for elements which
// preserve source markup details.
//
// Image wrappers are expected to carry Image (NewImage does that). An image
// node without it has no identity: it is never rendered and normalization
// drops it.
type Node struct {
	Kind           Kind
	Tag            string
	Text           string
	Level          int
	Attrs          []Attr
	Image          *ImageWrapper
	HasInlineImage bool
	Decor          Decoration

	Parent   *Node
	Children []*Node
}

// Document is the unit of persistence: a root node whose children are the
// top-level blocks.
type Document struct {
	Root *Node
}

// NewDocument creates a document holding provided blocks.
func NewDocument(blocks ...*Node) *Document {
	doc := &Document{Root: &Node{Kind: KindDocument}}
	for _, b := range blocks {
		doc.Root.AppendChild(b)
	}
	return doc
}

// Blocks returns top-level blocks. The slice belongs to the tree and must not
// be modified directly.
func (d *Document) Blocks() []*Node {
	if d == nil || d.Root == nil {
		return nil
	}
	return d.Root.Children
}

// Block returns top-level block at index or nil.
func (d *Document) Block(i int) *Node {
	blocks := d.Blocks()
	if i < 0 || i >= len(blocks) {
		return nil
	}
	return blocks[i]
}

// Constructors used by parsers, the normalization pipeline and tests.

func NewText(s string) *Node {
	return &Node{Kind: KindText, Text: s}
}

func NewBreak() *Node {
	return &Node{Kind: KindBreak, Tag: "br"}
}

func NewInline(tag string, children ...*Node) *Node {
	return withChildren(&Node{Kind: KindInline, Tag: tag}, children)
}

func NewImage(uuid string, layout Layout, caption string) *Node {
	return &Node{Kind: KindImage, Tag: "figure", Image: &ImageWrapper{UUID: uuid, Layout: layout, Caption: caption}}
}

func NewTextBlock(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindTextBlock, Tag: "div"}, children)
}

func NewContentBlock(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindContent, Tag: "div"}, children)
}

func NewHeading(level int, children ...*Node) *Node {
	level = min(max(level, 1), 6)
	return withChildren(&Node{Kind: KindHeading, Tag: fmt.Sprintf("h%d", level), Level: level}, children)
}

func NewParagraph(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindParagraph, Tag: "p"}, children)
}

func NewList(tag string, children ...*Node) *Node {
	if tag != "ol" {
		tag = "ul"
	}
	return withChildren(&Node{Kind: KindList, Tag: tag}, children)
}

func NewListItem(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindListItem, Tag: "li"}, children)
}

func NewQuote(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindQuote, Tag: "blockquote"}, children)
}

func NewCode(children ...*Node) *Node {
	return withChildren(&Node{Kind: KindCode, Tag: "pre"}, children)
}

func NewElement(tag string, children ...*Node) *Node {
	return withChildren(&Node{Kind: KindElement, Tag: tag}, children)
}

func NewControl(tag string) *Node {
	return &Node{Kind: KindControl, Tag: tag}
}

func withChildren(n *Node, children []*Node) *Node {
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// Attr returns attribute value and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute value.
func (n *Node) SetAttr(key, val string) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Val = val
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Val: val})
}

// RemoveAttr deletes attribute, reporting whether it was present.
func (n *Node) RemoveAttr(key string) bool {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// IsBlock reports whether node kind may stand at the top level of a
// normalized document.
func (n *Node) IsBlock() bool {
	switch n.Kind {
	case KindTextBlock, KindContent, KindHeading:
		return true
	case KindDocument, KindText, KindBreak, KindInline, KindImage, KindParagraph,
		KindList, KindListItem, KindQuote, KindCode, KindControl, KindElement:
		return false
	}
	return false
}

// IsInnerBlock reports whether node is one of the block containers which must
// be wrapped by exactly one text block.
func (n *Node) IsInnerBlock() bool {
	switch n.Kind {
	case KindParagraph, KindList, KindQuote, KindCode:
		return true
	}
	return false
}

// IsFlow reports whether node belongs to inline content.
func (n *Node) IsFlow() bool {
	switch n.Kind {
	case KindText, KindBreak, KindInline:
		return true
	}
	return false
}

// IsTextContainer reports whether caret may be placed inside the node even
// when it holds no text.
func (n *Node) IsTextContainer() bool {
	switch n.Kind {
	case KindTextBlock, KindHeading, KindParagraph, KindListItem, KindQuote, KindCode:
		return true
	}
	return false
}

// IsInlineImage reports whether node is an image wrapper floated beside text.
func (n *Node) IsInlineImage() bool {
	return n.Kind == KindImage && n.Image != nil && n.Image.Inline()
}

// IsFullWidthImage reports whether node is an image wrapper occupying its own
// block space.
func (n *Node) IsFullWidthImage() bool {
	return n.Kind == KindImage && n.Image != nil && !n.Image.Inline()
}

func (n *Node) String() string {
	switch n.Kind {
	case KindText:
		return fmt.Sprintf("text(%q)", n.Text)
	case KindImage:
		if n.Image != nil {
			return fmt.Sprintf("image(%s,%s)", n.Image.UUID, n.Image.Layout)
		}
	case KindHeading:
		return fmt.Sprintf("heading(%d)", n.Level)
	}
	if n.Tag != "" {
		return fmt.Sprintf("%s<%s>", n.Kind, n.Tag)
	}
	return string(n.Kind)
}
