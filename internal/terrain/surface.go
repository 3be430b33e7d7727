package terrain

import (
	"math"

	"github.com/banshee-data/geoalign/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// spiral lists cell offsets (dc, dr) around the enclosing cell, ring by
// ring out to radius 4.
var spiral = [][2]int{
	// radius 1
	{0, 0}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	// radius 2
	{2, 0}, {2, 1}, {2, 2}, {1, 2}, {0, 2}, {-1, 2}, {-2, 2}, {-2, 1}, {-2, 0},
	{-2, -1}, {-2, -2}, {-1, -2}, {0, -2}, {1, -2}, {2, -2}, {2, -1},
	// radius 3
	{3, 0}, {3, 1}, {3, 2}, {2, 3}, {1, 3}, {0, 3}, {-1, 3}, {-2, 3}, {-3, 2},
	{-3, 1}, {-3, 0}, {-3, -1}, {-3, -2}, {-2, -3}, {-1, -3}, {0, -3}, {1, -3},
	{2, -3}, {3, -2}, {3, -1},
	// radius 4
	{4, 0}, {4, 1}, {4, 2}, {4, 3}, {3, 3}, {3, 4}, {2, 4}, {1, 4}, {0, 4},
	{-1, 4}, {-2, 4}, {-3, 4}, {-3, 3}, {-4, 3}, {-4, 2}, {-4, 1}, {-4, 0},
	{-4, -1}, {-4, -2}, {-4, -3}, {-3, -3}, {-3, -4}, {-2, -4}, {-1, -4}, {0, -4},
	{1, -4}, {2, -4}, {3, -4}, {3, -3}, {4, -3}, {4, -2}, {4, -1},
}

// spiralSlack is added to the best distance, in units of spacing, before
// the planar bound of a cell stops the search.
const spiralSlack = 1.5

// node returns the local position of node (c, r) with height relative to
// the origin.
func (g *Grid) node(c, r int) r3.Vec {
	x, y := g.GridToWorld(float64(c), float64(r))
	return r3.Vec{X: x, Y: y, Z: g.Height(c, r) - g.origin.H0}
}

// axisGap returns the signed gap from v to the interval spanned by vals,
// or zero when v lies inside it.
func axisGap(v float64, vals ...float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range vals {
		lo = math.Min(lo, w-v)
		hi = math.Max(hi, w-v)
	}
	switch {
	case lo > 0:
		return lo
	case hi < 0:
		return hi
	}
	return 0
}

// SurfacePlane returns the plane of the terrain facet nearest to the local
// point (x, y, z). Each cell is split into the facets (p00, p01, p10) and
// (p11, p01, p10). It reports false when the point is outside the grid or
// no facet lies within the initial search bound.
func (g *Grid) SurfacePlane(x, y, z float64) (geometry.Plane, bool) {
	col, row := g.WorldToGrid(x, y)
	ci := int(math.Floor(col))
	ri := int(math.Floor(row))
	if !g.validCell(ci, ri) {
		return geometry.Plane{}, false
	}

	p := r3.Vec{X: x, Y: y, Z: z}
	best := 2*g.spacing + math.Abs(z-(g.Height(ci, ri)-g.origin.H0))
	var plane geometry.Plane
	found := false

	for _, off := range spiral {
		c := ci + off[0]
		r := ri + off[1]
		if !g.validCell(c, r) {
			continue
		}

		p00 := g.node(c, r)
		p01 := g.node(c, r+1)
		p10 := g.node(c+1, r)
		p11 := g.node(c+1, r+1)

		dx := axisGap(x, p00.X, p01.X, p10.X, p11.X)
		dy := axisGap(y, p00.Y, p01.Y, p10.Y, p11.Y)
		reach := best + spiralSlack*g.spacing
		if dx*dx+dy*dy > reach*reach {
			break
		}
		dz := axisGap(z, p00.Z, p01.Z, p10.Z, p11.Z)
		if dx*dx+dy*dy+dz*dz > best*best {
			continue
		}

		if d, pl := geometry.PointTriangle(p00, p01, p10, p); d < best {
			best, plane, found = d, pl, true
		}
		if d, pl := geometry.PointTriangle(p11, p01, p10, p); d < best {
			best, plane, found = d, pl, true
		}
	}
	return plane, found
}
