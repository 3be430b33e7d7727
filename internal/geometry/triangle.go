package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// interiorSqrDistance is the squared distance below which the closest
// point is treated as lying on the triangle and the facet normal is used.
const interiorSqrDistance = 1e-4

// PointTriangle returns the distance from p to the triangle (p1, p2, p3)
// and the plane through the closest point facing p.
//
// The closest point is found with Eberly's region classification over the
// parametrisation p1 + s·(p2-p1) + t·(p3-p1). When the closest point is
// (numerically) p itself the returned plane is the triangle plane with
// normal (p2-p1)×(p3-p1); otherwise the normal points from the closest
// point towards p.
func PointTriangle(p1, p2, p3, p r3.Vec) (float64, Plane) {
	e0 := r3.Sub(p2, p1)
	e1 := r3.Sub(p3, p1)
	dv := r3.Sub(p1, p)

	a := r3.Dot(e0, e0)
	b := r3.Dot(e0, e1)
	c := r3.Dot(e1, e1)
	d := r3.Dot(e0, dv)
	e := r3.Dot(e1, dv)
	f := r3.Dot(dv, dv)

	det := a*c - b*b
	s := b*e - c*d
	t := b*d - a*e

	var sqr float64
	interior := func() float64 { return s*(a*s+b*t+2*d) + t*(b*s+c*t+2*e) + f }

	// Closest point on the edge s = 0, t in [0, 1].
	edgeT := func() {
		s = 0
		switch {
		case e >= 0:
			t = 0
			sqr = f
		case -e >= c:
			t = 1
			sqr = c + 2*e + f
		default:
			t = -e / c
			sqr = e*t + f
		}
	}
	// Closest point on the edge t = 0, s in [0, 1].
	edgeS := func() {
		t = 0
		switch {
		case d >= 0:
			s = 0
			sqr = f
		case -d >= a:
			s = 1
			sqr = a + 2*d + f
		default:
			s = -d / a
			sqr = d*s + f
		}
	}

	if s+t <= det {
		switch {
		case s < 0 && t < 0: // region 4
			if d < 0 {
				edgeS()
			} else {
				edgeT()
			}
		case s < 0: // region 3
			edgeT()
		case t < 0: // region 5
			edgeS()
		default: // region 0
			inv := 1 / det
			s *= inv
			t *= inv
			sqr = interior()
		}
	} else {
		switch {
		case s < 0: // region 2
			tmp0 := b + d
			tmp1 := c + e
			if tmp1 > tmp0 {
				numer := tmp1 - tmp0
				denom := a - 2*b + c
				if numer >= denom {
					s, t = 1, 0
					sqr = a + 2*d + f
				} else {
					s = numer / denom
					t = 1 - s
					sqr = interior()
				}
			} else if tmp1 <= 0 {
				s, t = 0, 1
				sqr = c + 2*e + f
			} else {
				edgeT()
			}
		case t < 0: // region 6
			tmp0 := b + e
			tmp1 := a + d
			if tmp1 > tmp0 {
				numer := tmp1 - tmp0
				denom := a - 2*b + c
				if numer >= denom {
					s, t = 0, 1
					sqr = c + 2*e + f
				} else {
					t = numer / denom
					s = 1 - t
					sqr = interior()
				}
			} else if tmp1 <= 0 {
				s, t = 1, 0
				sqr = a + 2*d + f
			} else {
				edgeS()
			}
		default: // region 1
			numer := c + e - b - d
			denom := a - 2*b + c
			switch {
			case numer <= 0:
				s, t = 0, 1
				sqr = c + 2*e + f
			case numer >= denom:
				s, t = 1, 0
				sqr = a + 2*d + f
			default:
				s = numer / denom
				t = 1 - s
				sqr = interior()
			}
		}
	}

	closest := r3.Add(p1, r3.Add(r3.Scale(s, e0), r3.Scale(t, e1)))
	dist := math.Sqrt(math.Max(sqr, 0))

	var n r3.Vec
	if sqr < interiorSqrDistance {
		n = r3.Unit(r3.Cross(e0, e1))
	} else {
		n = r3.Unit(r3.Sub(p, closest))
	}
	return dist, Plane{Normal: n, D: r3.Dot(n, closest)}
}
