package alignment

import (
	"fmt"
	"math"
)

// Parameters is an immutable snapshot of the transform and its a
// posteriori variances. The sine and cosine of Az are always derived from
// Az when a snapshot is built.
type Parameters struct {
	X0, Y0, Z0 float64
	Az         float64

	sinAz, cosAz float64

	// Sigma2 is the variance of unit weight. The other variances are
	// scaled by it.
	Sigma2   float64
	XYSigma2 float64
	ZSigma2  float64
	AzSigma2 float64
}

// NewParameters returns a snapshot with the given translation and
// rotation. Az is normalized into (-π, π].
func NewParameters(x0, y0, z0, az float64) Parameters {
	az = NormalizeAngle(az)
	s, c := math.Sincos(az)
	return Parameters{X0: x0, Y0: y0, Z0: z0, Az: az, sinAz: s, cosAz: c}
}

// Identity is the zero transform.
func Identity() Parameters { return NewParameters(0, 0, 0, 0) }

// SinAz returns sin(Az).
func (p Parameters) SinAz() float64 { return p.sinAz }

// CosAz returns cos(Az).
func (p Parameters) CosAz() float64 { return p.cosAz }

// withCorrection applies dx = [dX0, dY0, dZ0, dAz] and clears the
// variances.
func (p Parameters) withCorrection(dx []float64) Parameters {
	return NewParameters(p.X0+dx[0], p.Y0+dx[1], p.Z0+dx[2], p.Az+dx[3])
}

// ToWorld maps a device point into the world frame.
func (p Parameters) ToWorld(x, y, z float64) (xw, yw, zw float64) {
	return p.cosAz*x - p.sinAz*y + p.X0, p.sinAz*x + p.cosAz*y + p.Y0, z + p.Z0
}

// ToDevice is the inverse of ToWorld.
func (p Parameters) ToDevice(xw, yw, zw float64) (x, y, z float64) {
	dx, dy := xw-p.X0, yw-p.Y0
	return p.cosAz*dx + p.sinAz*dy, -p.sinAz*dx + p.cosAz*dy, zw - p.Z0
}

func (p Parameters) String() string {
	return fmt.Sprintf("x=%.3f y=%.3f z=%.3f az=%.4f xy_sd=%.3f z_sd=%.3f az_sd=%.4f sigma=%.3f",
		p.X0, p.Y0, p.Z0, p.Az,
		math.Sqrt(p.XYSigma2), math.Sqrt(p.ZSigma2), math.Sqrt(p.AzSigma2), math.Sqrt(p.Sigma2))
}

// NormalizeAngle maps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	n := math.Remainder(a, 2*math.Pi)
	if n <= -math.Pi {
		n += 2 * math.Pi
	}
	return n
}
