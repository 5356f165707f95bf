// Package cursor keeps caret and selection stable across structural rewrites
// of the document.
package cursor

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"composer/model"
)

// Position is a caret location: a text node and rune offset into it, or an
// empty text container with offset 0.
type Position struct {
	Node   *model.Node
	Offset int
}

// Selection is a range between two positions, collapsed when both are equal.
type Selection struct {
	Start Position
	End   Position
}

// Collapsed reports whether selection is a plain caret.
func (s *Selection) Collapsed() bool {
	return s.Start == s.End
}

// Caret returns collapsed selection at position.
func Caret(n *model.Node, offset int) *Selection {
	p := Position{Node: n, Offset: offset}
	return &Selection{Start: p, End: p}
}

// Marker is a structure independent record of a selection. Offsets count
// characters of the flattened document text, stop ordinals disambiguate
// positions sharing the same offset (end of one run and start of the next).
type Marker struct {
	Start int
	End   int
	Block int

	startStop int
	endStop   int
}

// stop is a place where caret may rest.
type stop struct {
	node  *model.Node
	start int
	len   int
}

// stops lists caret stops in document order: text nodes and innermost text
// containers without any text node.
func stops(doc *model.Document) []stop {
	var (
		out    []stop
		offset int
	)
	var visit func(n *model.Node)
	visit = func(n *model.Node) {
		switch {
		case n.Kind == model.KindControl:
			return
		case n.Kind == model.KindText:
			l := utf8.RuneCountInString(n.Text)
			out = append(out, stop{node: n, start: offset, len: l})
			offset += l
			return
		case n.IsTextContainer() && isBareContainer(n):
			out = append(out, stop{node: n, start: offset})
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	if doc != nil && doc.Root != nil {
		for _, b := range doc.Root.Children {
			visit(b)
		}
	}
	return out
}

// isBareContainer reports whether container holds neither text nor another
// text container.
func isBareContainer(n *model.Node) bool {
	return model.Find(n, func(d *model.Node) bool {
		return d.Kind == model.KindText || d.IsTextContainer()
	}) == nil
}

// locate converts position into absolute offset and stop ordinal.
func locate(all []stop, pos Position) (abs, ordinal int, ok bool) {
	idx := -1
	for i, s := range all {
		if s.node == pos.Node {
			idx = i
			break
		}
	}
	if idx < 0 {
		// element position, use first stop inside it
		for i, s := range all {
			if pos.Node.Contains(s.node) {
				idx = i
				pos.Offset = 0
				break
			}
		}
	}
	if idx < 0 {
		return 0, 0, false
	}

	s := all[idx]
	abs = s.start + min(max(pos.Offset, 0), s.len)
	for i := idx - 1; i >= 0; i-- {
		if all[i].start+all[i].len < abs {
			break
		}
		ordinal++
	}
	return abs, ordinal, true
}

// resolve finds stop for absolute offset and ordinal.
func resolve(all []stop, abs, ordinal int) (Position, bool) {
	var candidates []stop
	for _, s := range all {
		if s.start <= abs && abs <= s.start+s.len {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Position{}, false
	}
	s := candidates[min(ordinal, len(candidates)-1)]
	return Position{Node: s.node, Offset: abs - s.start}, true
}

// Save records selection as a marker. Returns nil when there is no selection
// or it does not belong to the document.
func Save(doc *model.Document, sel *Selection) *Marker {
	if sel == nil || sel.Start.Node == nil || sel.End.Node == nil {
		return nil
	}
	if !doc.Contains(sel.Start.Node) || !doc.Contains(sel.End.Node) {
		return nil
	}

	all := stops(doc)
	start, startStop, ok := locate(all, sel.Start)
	if !ok {
		return nil
	}
	end, endStop, ok := locate(all, sel.End)
	if !ok {
		return nil
	}
	return &Marker{
		Start:     start,
		End:       end,
		Block:     doc.IndexOf(sel.Start.Node.TopLevel()),
		startStop: startStop,
		endStop:   endStop,
	}
}

// Restore rebuilds selection from marker after document was rewritten. When
// offsets cannot be resolved caret goes to the end of the block which held
// the selection, then to the end of the document. Returns nil only when
// document has no place for a caret.
func Restore(doc *model.Document, m *Marker, log *zap.Logger) *Selection {
	if m == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	all := stops(doc)
	if len(all) == 0 {
		log.Debug("No caret stops in document, selection dropped")
		return nil
	}

	start, okStart := resolve(all, m.Start, m.startStop)
	end, okEnd := resolve(all, m.End, m.endStop)
	if okStart && okEnd {
		return &Selection{Start: start, End: end}
	}

	if block := doc.Block(m.Block); block != nil {
		var last *stop
		for i := range all {
			if block.Contains(all[i].node) {
				last = &all[i]
			}
		}
		if last != nil {
			log.Debug("Selection restored to end of block", zap.Int("block", m.Block), zap.Int("start", m.Start), zap.Int("end", m.End))
			return Caret(last.node, last.len)
		}
	}

	last := all[len(all)-1]
	log.Debug("Selection restored to end of document", zap.Int("block", m.Block), zap.Int("start", m.Start), zap.Int("end", m.End))
	return Caret(last.node, last.len)
}
