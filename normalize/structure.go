package normalize

import (
	"slices"

	"go.uber.org/zap"

	"composer/model"
)

// coerceTopLevel makes every child of the root a recognizable block.
func (p *Pipeline) coerceTopLevel(doc *model.Document) {
	root := doc.Root
	for i := 0; i < len(root.Children); {
		c := root.Children[i]
		switch {
		case c.Kind == model.KindControl:
			c.Detach()
		case c.Kind == model.KindElement && hasBlockContent(c):
			// invalid container, its children are classified in its place
			p.log.Debug("Promoting children of invalid container", zap.String("tag", c.Tag))
			c.Unwrap()
		case c.Kind == model.KindListItem:
			list := model.NewList("ul")
			root.InsertAt(i, list)
			for i+1 < len(root.Children) && root.Children[i+1].Kind == model.KindListItem {
				list.AppendChild(root.Children[i+1])
			}
			i++
		case isInlineContent(c):
			if !p.wrapInlineRun(root, i) {
				continue
			}
			i++
		case c.Kind == model.KindContent:
			p.fixContentBlock(c)
			if c.Parent == nil {
				continue
			}
			i++
		case c.Kind == model.KindTextBlock:
			p.fixNestedTextBlocks(c)
			i++
		default:
			i++
		}
	}
}

// wrapInlineRun wraps run of inline content starting at position i into a
// text block. Whitespace at the edges of the run is dropped. Reports whether
// a block was created.
func (p *Pipeline) wrapInlineRun(root *model.Node, i int) bool {
	end := i
	for end < len(root.Children) && isInlineContent(root.Children[end]) {
		end++
	}
	run := slices.Clone(root.Children[i:end])
	for len(run) > 0 && isBlankText(run[0]) {
		run[0].Detach()
		run = run[1:]
	}
	for len(run) > 0 && isBlankText(run[len(run)-1]) {
		run[len(run)-1].Detach()
		run = run[:len(run)-1]
	}
	if len(run) == 0 {
		return false
	}
	tb := model.NewTextBlock()
	root.InsertAt(i, tb)
	for _, n := range run {
		tb.AppendChild(n)
	}
	return true
}

// fixContentBlock keeps only images inside content block forcing them to full
// width. Everything else moves to a text block right after it. Empty content
// block is removed.
func (p *Pipeline) fixContentBlock(cb *model.Node) {
	var spill *model.Node
	for _, c := range slices.Clone(cb.Children) {
		switch {
		case c.Kind == model.KindImage:
			c.Image.Layout = model.LayoutFullWidth
		case isBlankText(c) || c.Kind == model.KindBreak:
			c.Detach()
		default:
			if spill == nil {
				spill = model.NewTextBlock()
				cb.Parent.InsertAfter(spill, cb)
			}
			spill.AppendChild(c)
		}
	}
	if spill != nil {
		p.log.Debug("Moved non-image content out of content block", zap.Int("nodes", len(spill.Children)))
	}
	if len(cb.Children) == 0 {
		cb.Detach()
	}
}

// fixNestedTextBlocks resolves text blocks inside a text block: direct
// children become paragraphs unless they hold blocks, deeper ones are
// dissolved. Invalid containers inside the block are dissolved as well.
func (p *Pipeline) fixNestedTextBlocks(tb *model.Node) {
	for _, n := range model.FindAll(tb, func(d *model.Node) bool {
		return (d.Kind == model.KindTextBlock && d.Parent != tb) || (d.Kind == model.KindElement && hasBlockContent(d))
	}) {
		n.Unwrap()
	}
	for _, c := range slices.Clone(tb.Children) {
		if c.Kind != model.KindTextBlock {
			continue
		}
		if slices.ContainsFunc(c.Children, func(d *model.Node) bool {
			return d.IsInnerBlock() || d.IsBlock() || d.Kind == model.KindListItem
		}) {
			c.Unwrap()
			continue
		}
		c.Kind, c.Tag, c.HasInlineImage = model.KindParagraph, "p", false
	}
}

// inlineScopes returns containers whose direct children form inline content
// of the text block: the block itself and its paragraphs.
func inlineScopes(tb *model.Node) []*model.Node {
	scopes := []*model.Node{tb}
	for _, c := range tb.Children {
		if c.Kind == model.KindParagraph {
			scopes = append(scopes, c)
		}
	}
	return scopes
}

// inBreakGroup reports whether node may be part of a line break group.
func inBreakGroup(n *model.Node) bool {
	switch n.Kind {
	case model.KindBreak, model.KindControl:
		return true
	case model.KindText:
		return model.IsBlank(n.Text)
	case model.KindInline:
		return !n.HasText() && !n.HasImages() && !n.HasBreak()
	case model.KindDocument, model.KindImage, model.KindTextBlock, model.KindContent, model.KindHeading,
		model.KindParagraph, model.KindList, model.KindListItem, model.KindQuote, model.KindCode, model.KindElement:
	}
	return false
}

func anyText(nodes []*model.Node) bool {
	return slices.ContainsFunc(nodes, (*model.Node).HasText)
}

// resolveBreaks turns line breaks separating text into block boundaries.
func (p *Pipeline) resolveBreaks(doc *model.Document) {
	root := doc.Root
	for i := 0; i < len(root.Children); i++ {
		tb := root.Children[i]
		if tb.Kind != model.KindTextBlock {
			continue
		}
		if !tb.HasText() {
			keepSingleBreak(tb)
			continue
		}
		for _, scope := range inlineScopes(tb) {
			liftBreaks(scope)
		}
		// after a split the block keeps its first half, so keep going
		for more := true; more; {
			more = p.resolveBlockBreaks(tb)
		}
	}
}

// liftBreaks brings line breaks nested in formatting spans up to scope
// level. Spans are split around each break so formatting on both sides is
// kept, halves left without content are dropped.
func liftBreaks(scope *model.Node) {
	for {
		br := model.Find(scope, func(d *model.Node) bool {
			return d.Kind == model.KindBreak && d.Parent != scope && insideSpans(d, scope)
		})
		if br == nil {
			return
		}
		top := br
		for top.Parent != scope {
			top = top.Parent
		}
		after := splitAt(top, br)
		br.Detach()
		scope.InsertBefore(br, after)
		pruneSpan(top)
		pruneSpan(after)
	}
}

// insideSpans reports whether every ancestor of n below scope is a
// formatting span.
func insideSpans(n, scope *model.Node) bool {
	for a := n.Parent; a != scope; a = a.Parent {
		if a == nil || a.Kind != model.KindInline {
			return false
		}
	}
	return true
}

func pruneSpan(n *model.Node) {
	if n.Parent == nil || n.HasText() || n.HasImages() || n.HasBreak() {
		return
	}
	n.Detach()
}

// keepSingleBreak leaves exactly one placeholder break in a text-less block.
func keepSingleBreak(tb *model.Node) {
	seen := false
	for _, scope := range inlineScopes(tb) {
		for _, c := range slices.Clone(scope.Children) {
			if c.Kind != model.KindBreak {
				continue
			}
			if seen {
				c.Detach()
			}
			seen = true
		}
	}
}

// resolveBlockBreaks handles first break group in the block. It reports true
// when there may be more work for the same block.
func (p *Pipeline) resolveBlockBreaks(tb *model.Node) bool {
	for _, scope := range inlineScopes(tb) {
		children := scope.Children
		for start := 0; start < len(children); start++ {
			if children[start].Kind != model.KindBreak {
				continue
			}
			// extend group in both directions
			from, to := start, start
			for from > 0 && inBreakGroup(children[from-1]) {
				from--
			}
			for to+1 < len(children) && inBreakGroup(children[to+1]) {
				to++
			}
			group := slices.Clone(children[from : to+1])
			before, after := anyText(children[:from]), anyText(children[to+1:])

			if before && after {
				next := children[to+1]
				for _, g := range group {
					if g.Kind != model.KindControl {
						g.Detach()
					}
				}
				splitAt(tb, next)
				p.log.Debug("Split text block at line break")
				return true
			}
			for _, g := range group {
				if g.Kind == model.KindBreak {
					g.Detach()
				}
			}
			return true
		}
	}
	return false
}

// wrapOrphanBlocks puts every top-level inner block into its own text block.
func (p *Pipeline) wrapOrphanBlocks(doc *model.Document) {
	for _, c := range slices.Clone(doc.Root.Children) {
		if !c.IsInnerBlock() {
			continue
		}
		tb := model.NewTextBlock()
		c.ReplaceWith(tb)
		tb.AppendChild(c)
	}
}

func isHoistable(n *model.Node) bool {
	return n.Kind == model.KindHeading || n.Kind == model.KindContent || n.IsFullWidthImage()
}

// hoist moves headings, content blocks and full width images out of text
// blocks, gathers deep inline images at block front and flattens headings.
func (p *Pipeline) hoist(doc *model.Document) {
	root := doc.Root
	for i := 0; i < len(root.Children); i++ {
		tb := root.Children[i]
		if tb.Kind != model.KindTextBlock {
			continue
		}
		if target := model.Find(tb, isHoistable); target != nil {
			p.log.Debug("Hoisting out of text block", zap.Stringer("node", target))
			hoistOut(tb, target)
			// revisit same position, the block may be gone or still hold more
			i--
			continue
		}
		gatherInlineImages(tb)
	}

	for _, h := range slices.Clone(root.Children) {
		if h.Kind == model.KindHeading {
			p.flattenHeading(h)
		}
	}
}

// gatherInlineImages moves InlineRight images nested deeper than direct
// children to the front of the block, after images already there.
func gatherInlineImages(tb *model.Node) {
	deep := model.FindAll(tb, func(d *model.Node) bool { return d.IsInlineImage() && d.Parent != tb })
	if len(deep) == 0 {
		return
	}
	pos := 0
	for pos < len(tb.Children) && tb.Children[pos].IsInlineImage() {
		pos++
	}
	tb.InsertAt(pos, deep...)
}

// flattenHeading makes heading content purely inline. Images found inside
// are moved right after the heading as full width ones.
func (p *Pipeline) flattenHeading(h *model.Node) {
	images := h.Images()
	for i := len(images) - 1; i >= 0; i-- {
		img := images[i]
		img.Image.Layout = model.LayoutFullWidth
		h.Parent.InsertAfter(img, h)
	}
	for _, n := range model.FindAll(h, func(d *model.Node) bool {
		return !d.IsFlow() && d.Kind != model.KindControl
	}) {
		n.Unwrap()
	}
}

// segmentStarts returns first node of every segment of the text block. A
// segment is an inner block or a run of other content holding text.
func segmentStarts(tb *model.Node) []*model.Node {
	var (
		starts  []*model.Node
		runHead *model.Node
		counted bool
	)
	for _, c := range tb.Children {
		if c.IsInnerBlock() {
			starts = append(starts, c)
			runHead, counted = nil, false
			continue
		}
		if runHead == nil {
			runHead = c
		}
		if !counted && c.HasText() {
			starts = append(starts, runHead)
			counted = true
		}
	}
	return starts
}

// splitSegments enforces single block per text block.
func (p *Pipeline) splitSegments(doc *model.Document) {
	root := doc.Root
	for i := 0; i < len(root.Children); i++ {
		tb := root.Children[i]
		if tb.Kind != model.KindTextBlock {
			continue
		}
		starts := segmentStarts(tb)
		if len(starts) < 2 {
			continue
		}
		p.log.Debug("Splitting text block into segments", zap.Int("segments", len(starts)))

		// segment boundaries start with the second one, nodes before it stay
		pieces := make([]*model.Node, 0, len(starts)-1)
		for k := len(starts) - 1; k >= 1; k-- {
			piece := tb.ShallowClone()
			piece.Decor, piece.HasInlineImage = 0, false
			rest := slices.Clone(tb.Children[starts[k].Index():])
			for _, n := range rest {
				piece.AppendChild(n)
			}
			root.InsertAfter(piece, tb)
			pieces = append(pieces, piece)
		}
		// first piece inherits inline images, all of them go to its front
		images := tb.InlineImages()
		for k := len(pieces) - 1; k >= 0; k-- {
			images = append(images, pieces[k].InlineImages()...)
		}
		tb.InsertAt(0, images...)
	}
}

// convertImageOnly turns text blocks holding only images into content
// blocks, regroups full width images and enforces inline limit. Returns
// number of evicted images.
func (p *Pipeline) convertImageOnly(doc *model.Document) int {
	root := doc.Root
	for _, b := range slices.Clone(root.Children) {
		switch b.Kind {
		case model.KindTextBlock:
			if b.HasText() || !b.HasImages() {
				continue
			}
			images := b.Images()
			for _, img := range images {
				img.Image.Layout = model.LayoutFullWidth
			}
			b.SetChildren(images)
			b.Kind, b.HasInlineImage = model.KindContent, false
			p.log.Debug("Converted image-only text block", zap.Int("images", len(images)))
		case model.KindContent:
			p.fixContentBlock(b)
		}
	}

	model.RegroupFullWidth(doc)

	evicted := 0
	for _, b := range slices.Clone(root.Children) {
		if b.Kind != model.KindTextBlock {
			continue
		}
		evicted += p.enforceInlineLimit(b)
		b.RefreshInlineFlag()
	}
	return evicted
}

func (p *Pipeline) enforceInlineLimit(tb *model.Node) int {
	if p.limiter != nil {
		return p.limiter.EnforceInlineLimit(tb)
	}
	images := tb.InlineImages()
	if len(images) <= p.opts.InlineLimit {
		return 0
	}
	for _, img := range images[p.opts.InlineLimit:] {
		img.Detach()
	}
	return len(images) - p.opts.InlineLimit
}

// ensureNonEmpty guarantees document has at least one block.
func (p *Pipeline) ensureNonEmpty(doc *model.Document) {
	if len(doc.Root.Children) > 0 {
		return
	}
	doc.Root.AppendChild(model.NewTextBlock(model.NewBreak()))
}
