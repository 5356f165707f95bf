package dnd

import (
	"math"

	"composer/model"
)

// Point is a pointer location in surface coordinates.
type Point struct {
	X, Y float64
}

// Rect is the rendered box of a node.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Bottom() float64 { return r.Y + r.H }
func (r Rect) MidY() float64   { return r.Y + r.H/2 }

// ContainsY reports whether vertical coordinate falls inside the box.
func (r Rect) ContainsY(y float64) bool {
	return y >= r.Y && y <= r.Bottom()
}

// distanceY is vertical distance from y to the box, zero inside.
func (r Rect) distanceY(y float64) float64 {
	switch {
	case y < r.Y:
		return r.Y - y
	case y > r.Bottom():
		return y - r.Bottom()
	}
	return 0
}

// HitTester is supplied by the rendering host.
type HitTester interface {
	// NodeAt returns the innermost document node under the point, nil when
	// point is outside of any node.
	NodeAt(p Point) *model.Node
	// Bounds returns rendered box of the node.
	Bounds(n *model.Node) (Rect, bool)
}

// nearestBlock finds top-level block closest to the point vertically and
// reports whether the point lies in the gap between two blocks.
func nearestBlock(doc *model.Document, hit HitTester, p Point) (block *model.Node, rect Rect, between bool) {
	best := math.Inf(1)
	above, below := false, false
	inside := false
	for _, b := range doc.Blocks() {
		r, ok := hit.Bounds(b)
		if !ok {
			continue
		}
		switch {
		case r.ContainsY(p.Y):
			inside = true
		case r.Bottom() < p.Y:
			above = true
		default:
			below = true
		}
		if d := r.distanceY(p.Y); d < best {
			best, block, rect = d, b, r
		}
	}
	return block, rect, !inside && above && below
}
