package markup

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"composer/model"
)

// Named character references hand-edited files tend to contain, XML parser
// knows only the predefined five.
var namedEntities = []string{
	"nbsp", "shy", "mdash", "ndash", "hellip", "laquo", "raquo", "ldquo", "rdquo", "bdquo",
	"lsquo", "rsquo", "sbquo", "copy", "reg", "trade", "bull", "middot", "deg", "times",
	"minus", "plusmn", "sect", "para", "euro", "thinsp", "ensp", "emsp", "zwnj", "zwj",
}

func entityMap() map[string]string {
	m := make(map[string]string, len(namedEntities))
	for _, name := range namedEntities {
		m[name] = html.UnescapeString("&" + name + ";")
	}
	return m
}

// ReadXHTML reads document stored as a well-formed XHTML file. Content is
// taken from body element when present, otherwise from the root element
// itself. Returns document title (may be empty).
func ReadXHTML(r io.Reader) (*model.Document, string, error) {
	xdoc := etree.NewDocument()
	xdoc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Entity:        entityMap(),
		Permissive:    true,
	}
	if _, err := xdoc.ReadFrom(r); err != nil {
		return nil, "", fmt.Errorf("unable to read XHTML: %w", err)
	}

	root := xdoc.Root()
	if root == nil {
		return model.NewDocument(), "", nil
	}

	var title string
	container := root
	if strings.EqualFold(root.Tag, "html") {
		if t := root.FindElement("./head/title"); t != nil {
			title = strings.TrimSpace(t.Text())
		}
		container = root.SelectElement("body")
	}

	doc := model.NewDocument()
	if container == nil {
		return doc, title, nil
	}
	for _, tok := range container.Child {
		if n := fromXML(tok); n != nil {
			doc.Root.AppendChild(n)
		}
	}
	return doc, title, nil
}

func fromXML(tok etree.Token) *model.Node {
	switch t := tok.(type) {
	case *etree.CharData:
		return model.NewText(t.Data)
	case *etree.Element:
		attrs := make([]model.Attr, 0, len(t.Attr))
		for _, a := range t.Attr {
			if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
				continue
			}
			attrs = append(attrs, model.Attr{Key: a.Key, Val: a.Value})
		}
		n, descend := newElement(t.Tag, attrs)
		if n == nil {
			return nil
		}
		if n.Kind == model.KindImage && n.Image.Caption == "" {
			if fc := t.SelectElement("figcaption"); fc != nil {
				n.Image.Caption = strings.TrimSpace(xmlText(fc))
			}
		}
		if !descend {
			return n
		}
		for _, c := range t.Child {
			if m := fromXML(c); m != nil {
				n.AppendChild(m)
			}
		}
		return n
	}
	return nil
}

func xmlText(el *etree.Element) string {
	var buf strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			buf.WriteString(t.Data)
		case *etree.Element:
			buf.WriteString(xmlText(t))
		}
	}
	return buf.String()
}

// WriteXHTML stores document as a standalone XHTML file.
func WriteXHTML(w io.Writer, doc *model.Document, title string) error {
	xdoc := etree.NewDocument()
	xdoc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: true,
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	xdoc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := xdoc.CreateElement("html")
	root.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")

	head := root.CreateElement("head")
	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")
	head.CreateElement("title").SetText(title)

	body := root.CreateElement("body")
	for _, b := range doc.Blocks() {
		toXML(body, b)
	}

	if _, err := xdoc.WriteTo(w); err != nil {
		return fmt.Errorf("unable to write XHTML: %w", err)
	}
	return nil
}

func toXML(parent *etree.Element, n *model.Node) {
	switch n.Kind {
	case model.KindText:
		parent.CreateText(n.Text)
		return
	case model.KindControl, model.KindDocument:
		return
	case model.KindElement:
		for _, c := range n.Children {
			toXML(parent, c)
		}
		return
	case model.KindImage:
		if n.Image == nil {
			return
		}
		fig := parent.CreateElement("figure")
		fig.CreateAttr(AttrUUID, n.Image.UUID)
		fig.CreateAttr(AttrLayout, string(n.Image.Layout))
		if n.Image.Caption != "" {
			fig.CreateElement("figcaption").SetText(n.Image.Caption)
		}
		return
	case model.KindBreak, model.KindInline, model.KindTextBlock, model.KindContent, model.KindHeading,
		model.KindParagraph, model.KindList, model.KindListItem, model.KindQuote, model.KindCode:
	}

	tag, class := elementTag(n)
	if tag == "" {
		return
	}
	el := parent.CreateElement(tag)
	if class != "" {
		el.CreateAttr("class", class)
	}
	for _, a := range persistedAttrs(n) {
		el.CreateAttr(a.Key, a.Val)
	}
	for _, c := range n.Children {
		toXML(el, c)
	}
}
