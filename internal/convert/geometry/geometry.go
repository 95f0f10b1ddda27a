// Package geometry re-targets CSG brush polygons between engine generations:
// world scale, polygon winding and texture axes.
package geometry

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// MinVertices is the smallest number of distinct vertices a polygon needs.
const MinVertices = 3

// defaultScales are the world-unit factors between generations that differ
// in player size. Pairs not listed keep a factor of 1.
var defaultScales = map[scene.Pair]float64{
	{Source: scene.UE1, Target: scene.UE4}: 2.2,
	{Source: scene.UE2, Target: scene.UE4}: 1.875,
	{Source: scene.UE3, Target: scene.UE4}: 1,
}

// DefaultScale returns the built-in world scale for pair.
func DefaultScale(pair scene.Pair) float64 {
	if s, ok := defaultScales[pair]; ok {
		return s
	}
	return 1
}

// leftHanded reports the polygon winding convention of g: UE4 winds faces
// opposite to every earlier generation.
func leftHanded(g scene.Generation) bool { return g != scene.UE4 }

// ReversesWinding reports whether polygons must be re-wound for pair.
func ReversesWinding(pair scene.Pair) bool {
	return leftHanded(pair.Source) != leftHanded(pair.Target)
}

// Stats summarizes one document's geometry conversion.
type Stats struct {
	Brushes    int
	Polygons   int
	Degenerate int
	Vertices   int
}

// Converter re-targets brushes for one generation pair. It holds no
// per-document state and may be shared.
type Converter struct {
	pair    scene.Pair
	scale   float64
	reverse bool
	logger  *zap.Logger
}

// New creates a Converter. A scale of 0 selects DefaultScale(pair).
//
// Precondition: scale must not be negative.
func New(pair scene.Pair, scale float64, logger *zap.Logger) *Converter {
	if scale == 0 {
		scale = DefaultScale(pair)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		pair:    pair,
		scale:   scale,
		reverse: ReversesWinding(pair),
		logger:  logger,
	}
}

// Scale returns the world scale in effect.
func (c *Converter) Scale() float64 { return c.scale }

// ConvertBrush returns a converted copy of b. Polygons with fewer than
// MinVertices distinct vertices are left out with one Geometry diagnostic
// each; every other polygon keeps its vertex count.
func (c *Converter) ConvertBrush(b *scene.Brush, diags *diag.List) (*scene.Brush, Stats) {
	out := &scene.Brush{}
	st := Stats{Brushes: 1}
	for _, p := range b.Polygons {
		if n := p.DistinctVertices(); n < MinVertices {
			diags.Warn(diag.KindGeometry, p.Line, "degenerate polygon with %d distinct vertices excluded", n)
			st.Degenerate++
			continue
		}
		q := c.convertPolygon(p)
		out.Polygons = append(out.Polygons, q)
		st.Polygons++
		st.Vertices += len(q.Vertices)
	}
	return out, st
}

func (c *Converter) convertPolygon(p *scene.Polygon) *scene.Polygon {
	q := p.Clone()
	q.Origin = p.Origin.Mul(c.scale)
	// Texel density stays constant, so texture axes shrink as the world grows.
	q.TextureU = p.TextureU.Mul(1 / c.scale)
	q.TextureV = p.TextureV.Mul(1 / c.scale)
	for i, v := range p.Vertices {
		q.Vertices[i] = v.Mul(c.scale)
	}
	if c.reverse {
		reverse(q.Vertices)
	}
	return q
}

func reverse(vs []mgl64.Vec3) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}

// ConvertDocument converts every brush in doc in place. Cancellation is
// checked before each brush.
//
// Postcondition: on cancellation the brushes visited so far are converted
// and the returned error wraps ctx.Err().
func (c *Converter) ConvertDocument(ctx context.Context, doc *scene.Document, diags *diag.List) (Stats, error) {
	var (
		total Stats
		err   error
	)
	doc.Walk(func(a *scene.Actor) bool {
		if err != nil {
			return false
		}
		if a.Brush == nil {
			return true
		}
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("converting geometry: %w", cerr)
			return false
		}
		b, st := c.ConvertBrush(a.Brush, diags)
		a.Brush = b
		total.add(st)
		return true
	})
	c.logger.Debug("geometry converted",
		zap.String("pair", c.pair.String()),
		zap.Float64("scale", c.scale),
		zap.Bool("rewound", c.reverse),
		zap.Int("polygons", total.Polygons),
		zap.Int("degenerate", total.Degenerate),
	)
	return total, err
}

func (s *Stats) add(o Stats) {
	s.Brushes += o.Brushes
	s.Polygons += o.Polygons
	s.Degenerate += o.Degenerate
	s.Vertices += o.Vertices
}
