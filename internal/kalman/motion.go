package kalman

import "gonum.org/v1/gonum/mat"

// Axes is the number of spatial axes in the constant-acceleration state.
const Axes = 3

// StateDim is the size of the [position, velocity, acceleration] state.
const StateDim = 3 * Axes

// ConstantAcceleration is the kinematic model x = [pos₃, vel₃, acc₃] with
// piecewise-constant white acceleration noise.
type ConstantAcceleration struct {
	AccelVariance float64
}

// Transition returns F(dt) with pos += vel·dt + ½acc·dt² and
// vel += acc·dt.
func (m ConstantAcceleration) Transition(dt float64) *mat.Dense {
	F := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		F.Set(i, i, 1)
	}
	for i := 0; i < Axes; i++ {
		F.Set(i, Axes+i, dt)
		F.Set(Axes+i, 2*Axes+i, dt)
		F.Set(i, 2*Axes+i, 0.5*dt*dt)
	}
	return F
}

// ProcessNoise returns Q(dt), the discrete white-noise acceleration
// covariance applied independently on each axis.
func (m ConstantAcceleration) ProcessNoise(dt float64) *mat.SymDense {
	v := m.AccelVariance
	dt2 := dt * dt
	a00 := 0.25 * dt2 * dt2 * v
	a01 := 0.5 * dt2 * dt * v
	a02 := 0.5 * dt2 * v
	a11 := dt2 * v
	a12 := dt * v
	a22 := v

	Q := mat.NewSymDense(StateDim, nil)
	for i := 0; i < Axes; i++ {
		p, vel, acc := i, Axes+i, 2*Axes+i
		Q.SetSym(p, p, a00)
		Q.SetSym(p, vel, a01)
		Q.SetSym(p, acc, a02)
		Q.SetSym(vel, vel, a11)
		Q.SetSym(vel, acc, a12)
		Q.SetSym(acc, acc, a22)
	}
	return Q
}

// PredictBy advances f by dt seconds. Non-positive steps are ignored.
func (m ConstantAcceleration) PredictBy(f *Filter, dt float64) {
	if dt <= 0 {
		return
	}
	f.Predict(m.Transition(dt), m.ProcessNoise(dt))
}

// PositionModel returns H selecting the position block of the state.
func PositionModel() *mat.Dense {
	H := mat.NewDense(Axes, StateDim, nil)
	for i := 0; i < Axes; i++ {
		H.Set(i, i, 1)
	}
	return H
}
