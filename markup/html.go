package markup

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"composer/model"
)

// ParseHTML builds document tree from markup fragment. Parsing is tolerant:
// anything the HTML5 parser accepts produces a tree, unrecognized elements
// are kept for normalization to resolve.
func ParseHTML(s string) (*model.Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse markup: %w", err)
	}

	doc := model.NewDocument()
	for _, h := range nodes {
		if n := fromHTML(h); n != nil {
			doc.Root.AppendChild(n)
		}
	}
	return doc, nil
}

// ParseHTMLReader is ParseHTML for markup coming from a stream, encName
// selects source encoding (empty means sniff it).
func ParseHTMLReader(r io.Reader, encName string) (*model.Document, error) {
	s, err := Decode(r, encName)
	if err != nil {
		return nil, err
	}
	return ParseHTML(s)
}

func fromHTML(h *html.Node) *model.Node {
	switch h.Type {
	case html.TextNode:
		return model.NewText(h.Data)
	case html.ElementNode:
	default:
		// comments, doctypes and raw nodes carry no content
		return nil
	}

	attrs := make([]model.Attr, 0, len(h.Attr))
	for _, a := range h.Attr {
		attrs = append(attrs, model.Attr{Key: a.Key, Val: a.Val})
	}
	n, descend := newElement(h.Data, attrs)
	if n == nil {
		return nil
	}
	if n.Kind == model.KindImage && n.Image.Caption == "" {
		n.Image.Caption = htmlCaption(h)
	}
	if !descend {
		return n
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if m := fromHTML(c); m != nil {
			n.AppendChild(m)
		}
	}
	return n
}

func htmlCaption(h *html.Node) string {
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Figcaption {
			return strings.TrimSpace(htmlText(c))
		}
	}
	return ""
}

func htmlText(h *html.Node) string {
	if h.Type == html.TextNode {
		return h.Data
	}
	var buf strings.Builder
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(htmlText(c))
	}
	return buf.String()
}

// RenderHTML emits persisted markup for the document. Decoration and editor
// controls are never rendered, the document itself is not modified.
func RenderHTML(doc *model.Document) (string, error) {
	var buf strings.Builder
	if err := WriteHTML(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML is RenderHTML writing into provided stream.
func WriteHTML(w io.Writer, doc *model.Document) error {
	for _, b := range doc.Blocks() {
		for _, h := range toHTML(b) {
			if err := html.Render(w, h); err != nil {
				return fmt.Errorf("unable to render markup: %w", err)
			}
		}
	}
	return nil
}

// toHTML converts a subtree. Unknown elements have no persisted form and
// contribute their children only.
func toHTML(n *model.Node) []*html.Node {
	switch n.Kind {
	case model.KindText:
		return []*html.Node{{Type: html.TextNode, Data: n.Text}}
	case model.KindControl, model.KindDocument:
		return nil
	case model.KindElement:
		var out []*html.Node
		for _, c := range n.Children {
			out = append(out, toHTML(c)...)
		}
		return out
	case model.KindImage:
		if n.Image == nil {
			return nil
		}
		return []*html.Node{imageToHTML(n)}
	case model.KindBreak, model.KindInline, model.KindTextBlock, model.KindContent, model.KindHeading,
		model.KindParagraph, model.KindList, model.KindListItem, model.KindQuote, model.KindCode:
	}

	tag, class := elementTag(n)
	if tag == "" {
		return nil
	}
	h := newHTMLElement(tag)
	if class != "" {
		h.Attr = append(h.Attr, html.Attribute{Key: "class", Val: class})
	}
	for _, a := range persistedAttrs(n) {
		h.Attr = append(h.Attr, html.Attribute{Key: a.Key, Val: a.Val})
	}
	for _, c := range n.Children {
		for _, hc := range toHTML(c) {
			h.AppendChild(hc)
		}
	}
	return []*html.Node{h}
}

func imageToHTML(n *model.Node) *html.Node {
	h := newHTMLElement("figure")
	h.Attr = []html.Attribute{
		{Key: AttrUUID, Val: n.Image.UUID},
		{Key: AttrLayout, Val: string(n.Image.Layout)},
	}
	if n.Image.Caption != "" {
		fc := newHTMLElement("figcaption")
		fc.AppendChild(&html.Node{Type: html.TextNode, Data: n.Image.Caption})
		h.AppendChild(fc)
	}
	return h
}

func newHTMLElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// Serialize produces markup suitable for persistence: the document is cloned,
// stripped of decoration, normalized and rendered. The live document is never
// touched.
func Serialize(doc *model.Document, normalize func(*model.Document)) (string, error) {
	clone := doc.Clone()
	StripDecoration(clone)
	if normalize != nil {
		normalize(clone)
	}
	return RenderHTML(clone)
}
