package geometry

import "gonum.org/v1/gonum/spatial/r3"

// Plane is the set of points x with Normal·x = D. Normal is a unit vector
// for planes produced by this package.
type Plane struct {
	Normal r3.Vec
	D      float64
}

// SignedDistance returns Normal·p - D.
func (pl Plane) SignedDistance(p r3.Vec) float64 {
	return r3.Dot(pl.Normal, p) - pl.D
}

// IsZero reports whether the plane has no normal.
func (pl Plane) IsZero() bool {
	return pl.Normal == (r3.Vec{})
}

// Bilinear interpolates the four corner values of a unit cell. h10 is the
// value at (1, 0) and h01 the value at (0, 1).
func Bilinear(h00, h10, h01, h11, fx, fy float64) float64 {
	return h00*(1-fx)*(1-fy) + h10*fx*(1-fy) + h01*(1-fx)*fy + h11*fx*fy
}
