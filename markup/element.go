// Package markup converts between the document tree and its persisted markup.
package markup

import (
	"slices"
	"strconv"
	"strings"

	"composer/model"
)

// Class names and attributes of the persisted markup grammar.
const (
	ClassTextBlock      = "text-block"
	ClassContentBlock   = "content-block"
	ClassHasInlineImage = "has-inline-image"
	ClassEditorControl  = "editor-control"

	AttrUUID   = "data-uuid"
	AttrLayout = "data-layout"
)

var inlineTags = map[string]struct{}{
	"a": {}, "abbr": {}, "b": {}, "big": {}, "cite": {}, "code": {}, "del": {}, "em": {}, "font": {},
	"i": {}, "ins": {}, "kbd": {}, "mark": {}, "q": {}, "s": {}, "samp": {}, "small": {}, "span": {},
	"strike": {}, "strong": {}, "sub": {}, "sup": {}, "tt": {}, "u": {}, "var": {},
}

// droppedTags never produce document content.
var droppedTags = map[string]struct{}{
	"script": {}, "style": {}, "template": {}, "head": {}, "meta": {}, "link": {}, "title": {}, "noscript": {},
}

// transientAttrs are editor-only attributes which never enter the tree.
var transientAttrs = []string{"contenteditable", "draggable", "spellcheck", "tabindex"}

// newElement classifies a markup element. It returns nil when the element
// must be skipped entirely and reports whether its children should be
// converted.
func newElement(tag string, attrs []model.Attr) (*model.Node, bool) {
	tag = strings.ToLower(tag)
	if _, drop := droppedTags[tag]; drop {
		return nil, false
	}

	var (
		classes []string
		decor   model.Decoration
		kept    []model.Attr
		uuid    string
		layout  string
	)
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		switch {
		case key == "class":
			for _, c := range strings.Fields(a.Val) {
				if d, ok := model.DecorationFromClass(c); ok {
					decor |= d
					continue
				}
				classes = append(classes, c)
			}
		case key == AttrUUID:
			uuid = strings.TrimSpace(a.Val)
		case key == AttrLayout:
			layout = a.Val
		case strings.HasPrefix(key, "data-editor-"), slices.Contains(transientAttrs, key):
		default:
			kept = append(kept, model.Attr{Key: key, Val: a.Val})
		}
	}

	if slices.Contains(classes, ClassEditorControl) {
		n := model.NewControl(tag)
		n.Decor = decor
		return n, false
	}

	var n *model.Node
	descend := true
	switch {
	case tag == "br":
		n, descend = model.NewBreak(), false
	case (tag == "figure" || tag == "img") && uuid != "":
		n, descend = model.NewImage(uuid, model.ParseLayout(layout), ""), false
		if tag == "img" {
			if alt, ok := attrValue(kept, "alt"); ok {
				n.Image.Caption = strings.TrimSpace(alt)
			}
		}
	case tag == "img":
		// images without identity cannot be tracked
		return nil, false
	case tag == "div" && slices.Contains(classes, ClassContentBlock):
		n = model.NewContentBlock()
	case tag == "div":
		n = model.NewTextBlock()
		n.HasInlineImage = slices.Contains(classes, ClassHasInlineImage)
	case tag == "p":
		n = model.NewParagraph()
	case len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6':
		level, _ := strconv.Atoi(tag[1:])
		n = model.NewHeading(level)
	case tag == "ul" || tag == "ol":
		n = model.NewList(tag)
	case tag == "li":
		n = model.NewListItem()
	case tag == "blockquote":
		n = model.NewQuote()
	case tag == "pre":
		n = model.NewCode()
	default:
		if _, ok := inlineTags[tag]; ok {
			n = model.NewInline(tag)
		} else {
			n = model.NewElement(tag)
		}
	}
	n.Decor = decor

	if n.Kind != model.KindImage && n.Kind != model.KindBreak {
		n.Attrs = kept
		if rest := withoutStructural(classes); len(rest) > 0 {
			n.Attrs = append(n.Attrs, model.Attr{Key: "class", Val: strings.Join(rest, " ")})
		}
	}
	return n, descend
}

func withoutStructural(classes []string) []string {
	var out []string
	for _, c := range classes {
		switch c {
		case ClassTextBlock, ClassContentBlock, ClassHasInlineImage:
			continue
		}
		out = append(out, c)
	}
	return out
}

func attrValue(attrs []model.Attr, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// allowedAttrs lists attributes which survive serialization, per tag; the
// empty key applies to every tag.
var allowedAttrs = map[string][]string{
	"":     {"title", "lang", "dir"},
	"a":    {"href", "target", "rel"},
	"span": {"style"},
	"p":    {"style"},
	"ol":   {"start", "type"},
	"pre":  {"class"},
	"code": {"class"},
}

func persistedAttrs(n *model.Node) []model.Attr {
	var out []model.Attr
	for _, a := range n.Attrs {
		if slices.Contains(allowedAttrs[""], a.Key) || slices.Contains(allowedAttrs[n.Tag], a.Key) {
			out = append(out, a)
		}
	}
	return out
}

// elementTag returns markup tag and class for a tree node.
func elementTag(n *model.Node) (tag, class string) {
	switch n.Kind {
	case model.KindTextBlock:
		if n.HasInlineImage {
			return "div", ClassTextBlock + " " + ClassHasInlineImage
		}
		return "div", ClassTextBlock
	case model.KindContent:
		return "div", ClassContentBlock
	case model.KindHeading:
		return "h" + strconv.Itoa(min(max(n.Level, 1), 6)), ""
	case model.KindParagraph:
		return "p", ""
	case model.KindList:
		if n.Tag == "ol" {
			return "ol", ""
		}
		return "ul", ""
	case model.KindListItem:
		return "li", ""
	case model.KindQuote:
		return "blockquote", ""
	case model.KindCode:
		return "pre", ""
	case model.KindInline:
		return n.Tag, ""
	case model.KindBreak:
		return "br", ""
	case model.KindImage:
		return "figure", ""
	case model.KindDocument, model.KindText, model.KindControl, model.KindElement:
	}
	return "", ""
}

// StripDecoration removes every trace of transient editor state: control
// nodes are dropped and decoration flags cleared.
func StripDecoration(doc *model.Document) {
	if doc == nil || doc.Root == nil {
		return
	}
	controls := model.FindAll(doc.Root, func(n *model.Node) bool { return n.Kind == model.KindControl })
	for _, c := range controls {
		c.Detach()
	}
	model.Walk(doc.Root, func(n *model.Node) bool {
		n.Decor = 0
		return true
	})
}

// ClearDecoration removes requested flags from every node of the document.
func ClearDecoration(doc *model.Document, flags model.Decoration) {
	if doc == nil || doc.Root == nil {
		return
	}
	model.Walk(doc.Root, func(n *model.Node) bool {
		n.Decor &^= flags
		return true
	})
}
