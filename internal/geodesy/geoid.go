package geodesy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// GeoidModel returns the geoid separation N (metres) so that
// ellipsoidal height = orthometric height + N.
type GeoidModel interface {
	GeoidHeight(lat, lon float64) float64
}

// ConstantGeoid is a GeoidModel with the same separation everywhere.
type ConstantGeoid float64

// GeoidHeight implements GeoidModel.
func (c ConstantGeoid) GeoidHeight(lat, lon float64) float64 { return float64(c) }

// GeoidNoValue marks a missing node in a GeoidGrid.
const GeoidNoValue float32 = 9999.0

// maxGeoidSeparation bounds plausible geoid values; anything outside falls
// back to the default separation.
const maxGeoidSeparation = 200.0

// ErrGeoidGridShape is returned when the node array does not match the
// grid extent.
var ErrGeoidGridShape = errors.New("geoid grid: node count does not match extent")

// GeoidGrid is a regular latitude/longitude grid of geoid separations held
// in memory. Rows run from LatMin northwards, columns from LonMin eastwards.
type GeoidGrid struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	rows, cols     int
	dLat, dLon     float64
	values         []float32

	// Fallback is returned for positions outside the grid or next to
	// missing nodes.
	Fallback float64
}

// NewGeoidGrid builds a grid from its extent and node values (row-major,
// southernmost row first). The node spacing is derived from the extent.
func NewGeoidGrid(latMin, latMax, lonMin, lonMax float64, rows, cols int, values []float32, fallback float64) (*GeoidGrid, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("geoid grid needs at least 2x2 nodes, got %dx%d", rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: got %d values for %dx%d", ErrGeoidGridShape, len(values), rows, cols)
	}
	if latMax <= latMin || lonMax <= lonMin {
		return nil, fmt.Errorf("geoid grid extent is empty: lat [%f, %f] lon [%f, %f]", latMin, latMax, lonMin, lonMax)
	}
	return &GeoidGrid{
		LatMin:   latMin,
		LatMax:   latMax,
		LonMin:   lonMin,
		LonMax:   lonMax,
		rows:     rows,
		cols:     cols,
		dLat:     (latMax - latMin) / float64(rows-1),
		dLon:     (lonMax - lonMin) / float64(cols-1),
		values:   values,
		Fallback: fallback,
	}, nil
}

func (g *GeoidGrid) node(row, col int) float32 {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return GeoidNoValue
	}
	return g.values[row*g.cols+col]
}

// GeoidHeight implements GeoidModel with bilinear interpolation. A missing
// node only poisons the result when it carries non-zero weight.
func (g *GeoidGrid) GeoidHeight(lat, lon float64) float64 {
	if lat < g.LatMin || lat > g.LatMax || lon < g.LonMin || lon > g.LonMax {
		return g.Fallback
	}
	ni := (lat - g.LatMin) / g.dLat
	ei := (lon - g.LonMin) / g.dLon
	row := int(math.Floor(ni))
	col := int(math.Floor(ei))
	fn := ni - float64(row)
	fe := ei - float64(col)

	ll := g.node(row, col)
	lr := g.node(row, col+1)
	ul := g.node(row+1, col)
	ur := g.node(row+1, col+1)

	missing := func(v float32, weight float64) bool { return v == GeoidNoValue && weight != 0 }
	if missing(ll, (1-fe)*(1-fn)) || missing(lr, fe*(1-fn)) || missing(ul, (1-fe)*fn) || missing(ur, fe*fn) {
		return g.Fallback
	}

	// Missing nodes with zero weight must not leak into the sum.
	val := func(v float32) float64 {
		if v == GeoidNoValue {
			return 0
		}
		return float64(v)
	}
	n := val(ll)*(1-fe)*(1-fn) + val(lr)*fe*(1-fn) + val(ul)*(1-fe)*fn + val(ur)*fe*fn
	if math.Abs(n) >= maxGeoidSeparation {
		return g.Fallback
	}
	return n
}

// MagneticModel returns the magnetic declination (radians, positive east)
// used to turn compass headings into true headings.
type MagneticModel interface {
	Declination(lat, lon, h float64, t time.Time) float64
}

// ConstantDeclination is a MagneticModel with a fixed declination in
// radians.
type ConstantDeclination float64

// Declination implements MagneticModel.
func (c ConstantDeclination) Declination(lat, lon, h float64, t time.Time) float64 {
	return float64(c)
}
