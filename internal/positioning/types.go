package positioning

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/units"
)

// Pose is one sample from the device tracker: a position in the device
// frame and the device attitude as a unit quaternion.
type Pose struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// Fix is a geographic position report. Altitude is ellipsoidal; the
// provider subtracts the geoid separation.
type Fix struct {
	Lat, Lon float64
	Altitude float64
	// Accuracy is the horizontal standard deviation in metres.
	Accuracy float64
	Time     time.Time
}

// CloudPoint is a device-frame point from a depth sensor.
type CloudPoint struct {
	Position   r3.Vec
	Confidence float64
}

// Location is a filtered geographic position.
type Location struct {
	Lat, Lon float64
	Height   float64
	Accuracy float64
	// Speed is the horizontal speed in m/s.
	Speed float64
	// Bearing is the direction of travel in degrees clockwise from north.
	Bearing float64
	Time    time.Time
	// Filtered is false when the location is the last raw fix, returned
	// while no transform has been accepted.
	Filtered bool
}

// SpeedIn returns the speed in the given units (see package units).
func (l Location) SpeedIn(unit string) float64 {
	return units.ConvertSpeed(l.Speed, unit)
}

// Estimate describes the most recent solve.
type Estimate struct {
	Parameters   alignment.Parameters
	Converged    bool
	Accepted     bool
	Observations int
	Time         time.Time
}

// Heading returns the yaw of q as a compass angle: radians clockwise from
// the frame's y axis, in (-π, π]. q need not be normalized.
func Heading(q quat.Number) float64 {
	if a := quat.Abs(q); a > 0 {
		q = quat.Scale(1/a, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	r01 := 2 * (x*y - w*z)
	r11 := 1 - 2*(x*x+z*z)
	return alignment.NormalizeAngle(math.Atan2(r01, r11))
}

// RotationVectorQuat decodes a rotation-vector sample [x, y, z, (w)] into
// a unit quaternion. The scalar part is reconstructed when absent.
func RotationVectorQuat(rv []float64) (quat.Number, bool) {
	if len(rv) < 3 {
		return quat.Number{}, false
	}
	q := quat.Number{Imag: rv[0], Jmag: rv[1], Kmag: rv[2]}
	if len(rv) >= 4 {
		q.Real = rv[3]
	} else {
		w2 := 1 - (rv[0]*rv[0] + rv[1]*rv[1] + rv[2]*rv[2])
		if w2 > 0 {
			q.Real = math.Sqrt(w2)
		}
	}
	if quat.Abs(q) == 0 {
		return quat.Number{}, false
	}
	return q, true
}

// TransformMatrix returns the column-major 4×4 homogeneous matrix mapping
// world coordinates to the device frame under p.
func TransformMatrix(p alignment.Parameters) [16]float64 {
	s, c := p.SinAz(), p.CosAz()
	return [16]float64{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		-p.X0*c - p.Y0*s, p.X0*s - p.Y0*c, -p.Z0, 1,
	}
}

func rotationMatrix(az float64) [16]float64 {
	return TransformMatrix(alignment.NewParameters(0, 0, 0, az))
}

var identityMatrix = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}
