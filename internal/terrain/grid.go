package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/geoalign/internal/geodesy"
	"github.com/banshee-data/geoalign/internal/geometry"
)

var (
	// ErrDimensionMismatch is returned when the height slice does not hold
	// rows*cols values.
	ErrDimensionMismatch = errors.New("terrain: height count does not match grid dimensions")

	// ErrInvalidSpacing is returned for a non-positive grid spacing.
	ErrInvalidSpacing = errors.New("terrain: grid spacing must be positive")
)

// Grid is a rows x cols lattice of heights stored row by row from the
// upper-left corner. Columns run east and rows run south in projection
// coordinates; in the local frame the lattice is rotated by the meridian
// convergence at the corner.
type Grid struct {
	rows, cols int
	heights    []float32

	ulLat, ulLon float64
	ulX, ulY     float64
	cosA, sinA   float64

	// Spacing in local metres (projected spacing divided by the scale
	// factor).
	spacing float64

	origin geodesy.Origin
}

// NewGrid builds a grid whose upper-left node sits at the projected
// position (upperLeftNorth, upperLeftEast) of proj with nodes spacing
// projected metres apart. Until WithOrigin is called the grid uses a local
// origin at its upper-left corner with zero height.
func NewGrid(rows, cols int, heights []float32, upperLeftNorth, upperLeftEast, spacing float64, proj geodesy.Projection) (*Grid, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: need at least 2x2 nodes, got %dx%d", ErrDimensionMismatch, rows, cols)
	}
	if len(heights) != rows*cols {
		return nil, fmt.Errorf("%w: got %d heights for %dx%d", ErrDimensionMismatch, len(heights), rows, cols)
	}
	if !(spacing > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}

	lat, lon := proj.Inverse(upperLeftNorth, upperLeftEast)
	angle := proj.MeridianConvergence(lat, lon)
	g := &Grid{
		rows:    rows,
		cols:    cols,
		heights: heights,
		ulLat:   lat,
		ulLon:   lon,
		cosA:    math.Cos(angle),
		sinA:    math.Sin(angle),
		spacing: spacing / proj.Scale(lat, lon),
	}
	return g.WithOrigin(geodesy.NewOrigin(lat, lon, 0)), nil
}

// GridFromFunc samples height(north, east) at every node of a grid laid
// out like NewGrid.
func GridFromFunc(rows, cols int, upperLeftNorth, upperLeftEast, spacing float64, proj geodesy.Projection, height func(north, east float64) float64) (*Grid, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrDimensionMismatch, rows, cols)
	}
	heights := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			heights[r*cols+c] = float32(height(upperLeftNorth-float64(r)*spacing, upperLeftEast+float64(c)*spacing))
		}
	}
	return NewGrid(rows, cols, heights, upperLeftNorth, upperLeftEast, spacing, proj)
}

// WithOrigin returns a view of the grid expressed in the local frame of o.
func (g *Grid) WithOrigin(o geodesy.Origin) *Grid {
	v := *g
	v.origin = o
	v.ulX = o.LongitudeToLocal(g.ulLon)
	v.ulY = o.LatitudeToLocal(g.ulLat)
	return &v
}

// Origin returns the local frame the grid is expressed in.
func (g *Grid) Origin() geodesy.Origin { return g.origin }

// Rows returns the number of rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return g.cols }

// Spacing returns the node spacing in local metres.
func (g *Grid) Spacing() float64 { return g.spacing }

// Height returns the stored height of node (col, row). It panics when the
// node is out of range.
func (g *Grid) Height(col, row int) float64 {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		panic(fmt.Sprintf("terrain: node (%d, %d) outside %dx%d grid", col, row, g.cols, g.rows))
	}
	return float64(g.heights[row*g.cols+col])
}

// GridToWorld converts fractional grid coordinates to local x (east) and
// y (north).
func (g *Grid) GridToWorld(col, row float64) (x, y float64) {
	x = g.ulX + g.spacing*(col*g.cosA-row*g.sinA)
	y = g.ulY - g.spacing*(col*g.sinA+row*g.cosA)
	return x, y
}

// WorldToGrid is the inverse of GridToWorld.
func (g *Grid) WorldToGrid(x, y float64) (col, row float64) {
	dx := x - g.ulX
	dy := y - g.ulY
	col = (dx*g.cosA - dy*g.sinA) / g.spacing
	row = (dx*g.sinA + dy*g.cosA) / -g.spacing
	return col, row
}

// validCell reports whether (c, r) is the upper-left node of a full cell.
func (g *Grid) validCell(c, r int) bool {
	return c >= 0 && r >= 0 && c < g.cols-1 && r < g.rows-1
}

// nodeSnap is the distance in grid units within which a coordinate is
// treated as lying on a node line.
const nodeSnap = 1e-7

// snapToNode rounds v to the nearest integer when it is within nodeSnap
// of it.
func snapToNode(v float64) float64 {
	if n := math.Round(v); math.Abs(v-n) < nodeSnap {
		return n
	}
	return v
}

// cellIndex returns the cell containing v along an axis of n nodes. The
// last node line belongs to the last cell.
func cellIndex(v float64, n int) int {
	i := int(math.Floor(v))
	if i == n-1 && v == float64(n-1) {
		return n - 2
	}
	return i
}

// InterpolatedAltitude returns the bilinear height at a geographic
// position, or -Inf when the position is outside the grid. Every node
// returns its stored height.
func (g *Grid) InterpolatedAltitude(lat, lon float64) float64 {
	col, row := g.WorldToGrid(g.origin.LongitudeToLocal(lon), g.origin.LatitudeToLocal(lat))
	col, row = snapToNode(col), snapToNode(row)
	c := cellIndex(col, g.cols)
	r := cellIndex(row, g.rows)
	if !g.validCell(c, r) {
		return math.Inf(-1)
	}
	fx := col - float64(c)
	fy := row - float64(r)
	return geometry.Bilinear(
		g.Height(c, r),
		g.Height(c+1, r),
		g.Height(c, r+1),
		g.Height(c+1, r+1),
		fx, fy)
}
