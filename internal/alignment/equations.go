package alignment

import (
	"math"

	"github.com/banshee-data/geoalign/internal/geometry"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// numParams is the number of estimated parameters: X0, Y0, Z0, Az.
const numParams = 4

// modelEquations are the linearised condition equations of one
// observation at given parameters: A·v + B·dx = f with observation
// cofactors Q and unit-weight equation weights We.
type modelEquations struct {
	A  *mat.Dense    // conditions × observations
	B  *mat.Dense    // conditions × numParams
	F  *mat.VecDense // conditions
	Q  *mat.Dense    // observations × observations
	We *mat.Dense    // conditions × conditions
}

func (eq modelEquations) conditions() int { return eq.F.Len() }

// accumulate adds Bᵗ·w·We·B to N and Bᵗ·w·We·f to t and returns fᵗ·w·We·f.
func (eq modelEquations) accumulate(w float64, N *mat.Dense, t *mat.VecDense) float64 {
	var we mat.Dense
	we.Scale(w, eq.We)

	var web mat.Dense
	web.Mul(&we, eq.B)
	var btwb mat.Dense
	btwb.Mul(eq.B.T(), &web)
	N.Add(N, &btwb)

	var wf mat.VecDense
	wf.MulVec(&we, eq.F)
	var btwf mat.VecDense
	btwf.MulVec(eq.B.T(), &wf)
	t.AddVec(t, &btwf)

	return mat.Dot(eq.F, &wf)
}

// residuals computes v = Q·Aᵗ·We·f and the cofactors
// Qvv = Q·Aᵗ·(We − We·B·N⁻¹·Bᵗ·We)·A·Q, and from them the normalized
// residual max_i |v_i| / sqrt(Qvv_ii·σ²).
func (eq modelEquations) residuals(ninv mat.Matrix, sigma2 float64) Residuals {
	var web mat.Dense
	web.Mul(eq.We, eq.B)
	var wbnbw mat.Dense
	wbnbw.Product(&web, ninv, web.T())
	var core mat.Dense
	core.Sub(eq.We, &wbnbw)

	var aq mat.Dense
	aq.Mul(eq.A, eq.Q)
	var qvv mat.Dense
	qvv.Product(aq.T(), &core, &aq)

	var wf mat.VecDense
	wf.MulVec(eq.We, eq.F)
	var v mat.VecDense
	v.MulVec(aq.T(), &wf)

	n := v.Len()
	res := Residuals{V: make([]float64, n), SD: make([]float64, n)}
	for i := 0; i < n; i++ {
		sd := math.Sqrt(qvv.At(i, i) * sigma2)
		res.V[i] = v.AtVec(i)
		res.SD[i] = sd
		if sd > 0 {
			res.Normalized = math.Max(res.Normalized, math.Abs(res.V[i])/sd)
		}
	}
	return res
}

func diag(vals ...float64) *mat.Dense {
	d := mat.NewDense(len(vals), len(vals), nil)
	for i, v := range vals {
		d.Set(i, i, v)
	}
	return d
}

func sq(v float64) float64 { return v * v }

func (o *Position2D) equations(p Parameters, _ *Config) (modelEquations, bool) {
	s, c := p.sinAz, p.cosAz
	xt, yt := o.Device.X, o.Device.Y
	return modelEquations{
		A: mat.NewDense(2, 4, []float64{
			c, -s, -1, 0,
			s, c, 0, -1,
		}),
		B: mat.NewDense(2, numParams, []float64{
			1, 0, 0, -xt*s - yt*c,
			0, 1, 0, xt*c - yt*s,
		}),
		F: mat.NewVecDense(2, []float64{
			o.World.X - c*xt + s*yt - p.X0,
			o.World.Y - s*xt - c*yt - p.Y0,
		}),
		Q: diag(sq(o.DeviceSD.X), sq(o.DeviceSD.Y), sq(o.WorldSD.X), sq(o.WorldSD.Y)),
		We: diag(
			1/(sq(o.WorldSD.X)+sq(o.DeviceSD.X)),
			1/(sq(o.WorldSD.Y)+sq(o.DeviceSD.Y)),
		),
	}, true
}

func (o *Position3D) equations(p Parameters, _ *Config) (modelEquations, bool) {
	s, c := p.sinAz, p.cosAz
	xt, yt, zt := o.Device.X, o.Device.Y, o.Device.Z
	return modelEquations{
		A: mat.NewDense(3, 6, []float64{
			c, -s, 0, -1, 0, 0,
			s, c, 0, 0, -1, 0,
			0, 0, 1, 0, 0, -1,
		}),
		B: mat.NewDense(3, numParams, []float64{
			1, 0, 0, -xt*s - yt*c,
			0, 1, 0, xt*c - yt*s,
			0, 0, 1, 0,
		}),
		F: mat.NewVecDense(3, []float64{
			o.World.X - c*xt + s*yt - p.X0,
			o.World.Y - s*xt - c*yt - p.Y0,
			o.World.Z - zt - p.Z0,
		}),
		Q: diag(
			sq(o.DeviceSD.X), sq(o.DeviceSD.Y), sq(o.DeviceSD.Z),
			sq(o.WorldSD.X), sq(o.WorldSD.Y), sq(o.WorldSD.Z),
		),
		We: diag(
			1/(sq(o.WorldSD.X)+sq(o.DeviceSD.X)),
			1/(sq(o.WorldSD.Y)+sq(o.DeviceSD.Y)),
			1/(sq(o.WorldSD.Z)+sq(o.DeviceSD.Z)),
		),
	}, true
}

func (o *Orientation) equations(p Parameters, cfg *Config) (modelEquations, bool) {
	variance := sq(o.SD) + cfg.OrientationVarianceFloor
	return modelEquations{
		A:  mat.NewDense(1, 1, []float64{-1}),
		B:  mat.NewDense(1, numParams, []float64{0, 0, 0, 1}),
		F:  mat.NewVecDense(1, []float64{NormalizeAngle(o.Heading - p.Az)}),
		Q:  mat.NewDense(1, 1, []float64{variance}),
		We: mat.NewDense(1, 1, []float64{1 / variance}),
	}, true
}

// planeEquations is shared by the plane and terrain variants: the signed
// distance from the transformed device point to pl.
func planeEquations(p Parameters, device r3.Vec, pl geometry.Plane, sd float64) modelEquations {
	s, c := p.sinAz, p.cosAz
	a, b, cz, d := pl.Normal.X, pl.Normal.Y, pl.Normal.Z, pl.D
	xt, yt, zt := device.X, device.Y, device.Z
	variance := sq(sd)
	return modelEquations{
		A: mat.NewDense(1, 1, []float64{-1}),
		B: mat.NewDense(1, numParams, []float64{
			a, b, cz, -a*(xt*s+yt*c) + b*(xt*c-yt*s),
		}),
		F: mat.NewVecDense(1, []float64{
			d - a*(c*xt-s*yt+p.X0) - b*(s*xt+c*yt+p.Y0) - cz*(zt+p.Z0),
		}),
		Q:  mat.NewDense(1, 1, []float64{variance}),
		We: mat.NewDense(1, 1, []float64{1 / variance}),
	}
}

func (o *PointInPlane) equations(p Parameters, _ *Config) (modelEquations, bool) {
	return planeEquations(p, o.Device, o.Plane, o.SD), true
}

func (o *PointInTerrain) equations(p Parameters, _ *Config) (modelEquations, bool) {
	if o.Surface == nil {
		return modelEquations{}, false
	}
	xw, yw, zw := p.ToWorld(o.Device.X, o.Device.Y, o.Device.Z)
	pl, ok := o.Surface.SurfacePlane(xw, yw, zw)
	if !ok {
		return modelEquations{}, false
	}
	return planeEquations(p, o.Device, pl, o.SD), true
}
