package geodesy

import "math"

// Ellipsoid describes a reference ellipsoid by semi-major axis (metres) and
// flattening.
type Ellipsoid struct {
	A float64
	F float64
}

// WGS84 is the ellipsoid used for GNSS fixes and for the default projection.
var WGS84 = Ellipsoid{A: 6378137.0, F: 1.0 / 298.25722}

// E2 returns the first eccentricity squared.
func (e Ellipsoid) E2() float64 {
	return e.F * (2 - e.F)
}

// B returns the semi-minor axis.
func (e Ellipsoid) B() float64 {
	return e.A * (1 - e.F)
}

// MeridionalRadius returns the radius of curvature in the meridian at the
// given latitude (degrees).
func (e Ellipsoid) MeridionalRadius(latDeg float64) float64 {
	a := e.A
	b := e.B()
	sinLat, cosLat := math.Sincos(latDeg * math.Pi / 180)
	return a * a * b * b / math.Pow(a*a*cosLat*cosLat+b*b*sinLat*sinLat, 1.5)
}

// NormalRadius returns the radius of curvature in the prime vertical at the
// given latitude (degrees).
func (e Ellipsoid) NormalRadius(latDeg float64) float64 {
	a := e.A
	b := e.B()
	sinLat, cosLat := math.Sincos(latDeg * math.Pi / 180)
	return a * a / math.Sqrt(a*a*cosLat*cosLat+b*b*sinLat*sinLat)
}

// Projection is a transverse Mercator projection computed with the
// conformal-sphere (Gauss–Schreiber) step followed by a third order
// Gauss–Krüger series. Coordinates are returned as (north, east).
//
// Accuracy is sub-millimetre within the normal extent of a 6° zone. There
// is no validity check: points far from the central meridian degrade
// silently.
type Projection struct {
	Ellipsoid       Ellipsoid
	CentralMeridian float64 // degrees
	ScaleFactor     float64
	FalseNorthing   float64
	FalseEasting    float64
}

// UTM returns the WGS84 UTM projection for a zone (1..60).
func UTM(zone int) Projection {
	return Projection{
		Ellipsoid:       WGS84,
		CentralMeridian: (float64(zone) - 30.5) * 6.0,
		ScaleFactor:     0.9996,
		FalseNorthing:   0,
		FalseEasting:    500000,
	}
}

// DefaultProjection is UTM zone 33, the zone terrain grids are delivered in.
var DefaultProjection = UTM(33)

// seriesCoefficients returns the forward Gauss–Krüger coefficients b0..b3.
func (p Projection) seriesCoefficients() (b0, b1, b2, b3 float64) {
	a := p.Ellipsoid.A
	f := p.Ellipsoid.F
	ff := f * f
	fff := f * ff
	b0 = a * (1 - f/2 + ff/16 + fff/32)
	b1 = a * (f/4 - ff/6 - 11.0/384.0*fff)
	b2 = a * (13.0/192.0*ff - 79.0/1920.0*fff)
	b3 = a * (61.0 / 1920.0 * fff)
	return
}

// Forward projects geodetic latitude/longitude (degrees) to (north, east).
func (p Projection) Forward(latDeg, lonDeg float64) (north, east float64) {
	e := math.Sqrt(p.Ellipsoid.E2())

	lat := latDeg * math.Pi / 180
	dl := (lonDeg - p.CentralMeridian) * math.Pi / 180

	esf := e * math.Sin(lat)
	q := (1 - esf) / (1 + esf)

	// Conformal latitude
	hs := math.Tan(lat/2+math.Pi/4) * math.Pow(q, e/2)
	c := 2 * (math.Atan(hs) - math.Pi/4)

	sl, cl := math.Sincos(dl)
	cc := math.Cos(c)
	tc := math.Tan(c)

	// Sphere to transverse Mercator
	sp := cc * sl
	u := math.Atan(tc / cl)
	v := math.Atanh(sp)

	b0, b1, b2, b3 := p.seriesCoefficients()
	x := b0*u + b1*math.Sin(2*u)*math.Cosh(2*v) + b2*math.Sin(4*u)*math.Cosh(4*v) + b3*math.Sin(6*u)*math.Cosh(6*v)
	y := b0*v + b1*math.Cos(2*u)*math.Sinh(2*v) + b2*math.Cos(4*u)*math.Sinh(4*v) + b3*math.Cos(6*u)*math.Sinh(6*v)

	north = p.ScaleFactor*x + p.FalseNorthing
	east = p.ScaleFactor*y + p.FalseEasting
	return north, east
}

// Inverse converts projected (north, east) back to latitude/longitude
// (degrees).
func (p Projection) Inverse(north, east float64) (latDeg, lonDeg float64) {
	f := p.Ellipsoid.F
	ff := f * f
	fff := f * ff

	x := (north - p.FalseNorthing) / p.ScaleFactor
	y := (east - p.FalseEasting) / p.ScaleFactor

	b0, _, _, _ := p.seriesCoefficients()
	c1 := f/4 - ff/24 - fff*43.0/768.0
	c2 := ff/192 + fff*13.0/960.0
	c3 := fff * 17.0 / 3840.0

	xb, yb := x/b0, y/b0
	u := xb - c1*math.Sin(2*xb)*math.Cosh(2*yb) - c2*math.Sin(4*xb)*math.Cosh(4*yb) - c3*math.Sin(6*xb)*math.Cosh(6*yb)
	v := yb - c1*math.Cos(2*xb)*math.Sinh(2*yb) - c2*math.Cos(4*xb)*math.Sinh(4*yb) - c3*math.Cos(6*xb)*math.Sinh(6*yb)

	// Conformal sphere back to geographic
	ps := (math.Atan(math.Exp(v)) - math.Pi/4) * 2
	su, cu := math.Sincos(u)
	tp := math.Tan(ps)

	dl := math.Atan2(tp, cu)
	sdl, cdl := math.Sincos(dl)
	w := math.Atan2(su, cu*cdl+tp*sdl)

	lat := w + (f+ff/3-fff/6)*math.Sin(2*w) + (ff*7.0/12.0+fff*23.0/60.0)*math.Sin(4*w) + fff*7.0/15.0*math.Sin(6*w)

	return lat * 180 / math.Pi, dl*180/math.Pi + p.CentralMeridian
}

// MeridianConvergence returns the angle (radians) between grid north and
// true north at the given position.
func (p Projection) MeridianConvergence(latDeg, lonDeg float64) float64 {
	ee := p.Ellipsoid.E2()

	lat := latDeg * math.Pi / 180
	dl := (lonDeg - p.CentralMeridian) * math.Pi / 180
	dl2 := dl * dl
	dl3 := dl2 * dl
	dl5 := dl3 * dl2

	sf, cf := math.Sincos(lat)
	cf2 := cf * cf
	cf4 := cf2 * cf2
	eps2 := ee * cf2 / (1 - ee)
	eps4 := eps2 * eps2
	tf := math.Tan(lat)
	tf2 := tf * tf

	d1 := dl * sf
	d3 := dl3 / 3 * sf * cf2 * (1 + 3*eps2 + 2*eps4)
	d5 := dl5 / 15 * sf * cf4 * (2 - tf2)

	return d1 + d3 + d5
}

// Scale returns the point scale factor from the ellipsoid to the projection
// plane at the given position.
func (p Projection) Scale(latDeg, lonDeg float64) float64 {
	ee := p.Ellipsoid.E2()

	lat := latDeg * math.Pi / 180
	dl := (lonDeg - p.CentralMeridian) * math.Pi / 180
	dl2 := dl * dl
	dl4 := dl2 * dl2

	cf := math.Cos(lat)
	cf2 := cf * cf
	cf4 := cf2 * cf2
	eps2 := ee * cf2 / (1 - ee)
	tf := math.Tan(lat)
	tf2 := tf * tf

	k2 := 0.5 * dl2 * cf2 * (1 + eps2)
	k4 := 1.0 / 24.0 * dl4 * cf4 * (5 - 4*tf2)
	return p.ScaleFactor * (1 + k2 + k4)
}
