package geodesy

import (
	"fmt"
	"math"
)

// Origin anchors the local frame: x is metres east, y metres north and z
// metres above the origin height. An Origin is a value and never changes
// after construction.
type Origin struct {
	Lat0, Lon0, H0 float64

	// Metres per degree of latitude and longitude at Lat0.
	LatScale, LonScale float64
}

// NewOrigin creates an origin on the WGS84 ellipsoid.
func NewOrigin(lat, lon, h float64) Origin {
	return NewOriginOn(WGS84, lat, lon, h)
}

// NewOriginOn creates an origin using the radii of curvature of e.
func NewOriginOn(e Ellipsoid, lat, lon, h float64) Origin {
	return Origin{
		Lat0:     lat,
		Lon0:     lon,
		H0:       h,
		LatScale: e.MeridionalRadius(lat) * math.Pi / 180,
		LonScale: e.NormalRadius(lat) * math.Pi / 180 * math.Cos(lat*math.Pi/180),
	}
}

// LatitudeToLocal returns metres north of the origin.
func (o Origin) LatitudeToLocal(lat float64) float64 { return (lat - o.Lat0) * o.LatScale }

// LongitudeToLocal returns metres east of the origin.
func (o Origin) LongitudeToLocal(lon float64) float64 { return (lon - o.Lon0) * o.LonScale }

// HeightToLocal returns metres above the origin.
func (o Origin) HeightToLocal(h float64) float64 { return h - o.H0 }

// LocalToLatitude is the inverse of LatitudeToLocal.
func (o Origin) LocalToLatitude(y float64) float64 { return y/o.LatScale + o.Lat0 }

// LocalToLongitude is the inverse of LongitudeToLocal.
func (o Origin) LocalToLongitude(x float64) float64 { return x/o.LonScale + o.Lon0 }

// LocalToHeight is the inverse of HeightToLocal.
func (o Origin) LocalToHeight(z float64) float64 { return z + o.H0 }

// ToLocal converts a geodetic position to local (x east, y north, z up).
func (o Origin) ToLocal(lat, lon, h float64) (x, y, z float64) {
	return o.LongitudeToLocal(lon), o.LatitudeToLocal(lat), o.HeightToLocal(h)
}

// FromLocal converts local coordinates back to a geodetic position.
func (o Origin) FromLocal(x, y, z float64) (lat, lon, h float64) {
	return o.LocalToLatitude(y), o.LocalToLongitude(x), o.LocalToHeight(z)
}

// IsZero reports whether o is the zero value (no origin established).
func (o Origin) IsZero() bool {
	return o.LatScale == 0 && o.LonScale == 0
}

func (o Origin) String() string {
	return fmt.Sprintf("origin(lat=%.7f lon=%.7f h=%.2f)", o.Lat0, o.Lon0, o.H0)
}
