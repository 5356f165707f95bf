// Package normalize rewrites arbitrary document trees into canonical form.
package normalize

import (
	"go.uber.org/zap"

	"composer/css"
	"composer/model"
)

// Defaults used when options are left zero.
const (
	DefaultCleanupPasses = 5
	DefaultInlineLimit   = 2
)

// InlineLimiter enforces maximum number of InlineRight images per text block,
// returning number of evicted wrappers. Layout engine implements it so that
// usage counts stay consistent with the tree.
type InlineLimiter interface {
	EnforceInlineLimit(block *model.Node) int
}

// Options controls pipeline behavior.
type Options struct {
	// CleanupPasses bounds number of rounds the pipeline runs looking for a
	// stable tree.
	CleanupPasses int
	// InlineLimit is used only when no InlineLimiter is provided.
	InlineLimit int
}

// Result describes what a pipeline run did.
type Result struct {
	Changed   bool
	Evictions int
	Rounds    int
}

// Pipeline is a stateless sequence of normalization passes.
type Pipeline struct {
	opts    Options
	limiter InlineLimiter
	styles  *css.Parser
	log     *zap.Logger
}

// New creates pipeline. When limiter is nil images over the limit are
// dropped without any usage accounting, which is what snapshot building on a
// detached copy needs.
func New(opts Options, limiter InlineLimiter, log *zap.Logger) *Pipeline {
	if opts.CleanupPasses <= 0 {
		opts.CleanupPasses = DefaultCleanupPasses
	}
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = DefaultInlineLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("normalize")
	return &Pipeline{opts: opts, limiter: limiter, styles: css.NewParser(log), log: log}
}

// Detached returns pipeline with the same options which does not report
// evictions to the limiter.
func (p *Pipeline) Detached() *Pipeline {
	return &Pipeline{opts: p.opts, styles: p.styles, log: p.log}
}

// Run normalizes document in place. It never fails: whatever tree it is
// given, result satisfies document invariants. Running it on its own output
// changes nothing.
func (p *Pipeline) Run(doc *model.Document) Result {
	var res Result
	if doc == nil {
		return res
	}
	if doc.Root == nil {
		doc.Root = model.NewDocument().Root
	}

	original := doc.Clone()
	p.dropBareImages(doc)
	for res.Rounds < p.opts.CleanupPasses {
		res.Rounds++
		before := doc.Clone()

		p.coerceTopLevel(doc)
		p.resolveBreaks(doc)
		p.wrapOrphanBlocks(doc)
		p.hoist(doc)
		p.splitSegments(doc)
		res.Evictions += p.convertImageOnly(doc)
		p.ensureNonEmpty(doc)
		p.cleanup(doc)
		p.ensureNonEmpty(doc)

		if doc.Equal(before) {
			break
		}
	}
	res.Changed = !doc.Equal(original)

	if res.Changed {
		p.log.Debug("Document normalized", zap.Int("rounds", res.Rounds), zap.Int("evictions", res.Evictions),
			zap.Int("blocks", len(doc.Blocks())))
	}
	return res
}

// dropBareImages removes image nodes which have no wrapper data.
func (p *Pipeline) dropBareImages(doc *model.Document) {
	for _, n := range model.FindAll(doc.Root, func(d *model.Node) bool { return d.Kind == model.KindImage && d.Image == nil }) {
		p.log.Debug("Dropping image without identity", zap.Stringer("parent", n.Parent))
		n.Detach()
	}
}

// Normalize is Run without result, suitable as a callback.
func (p *Pipeline) Normalize(doc *model.Document) {
	p.Run(doc)
}
