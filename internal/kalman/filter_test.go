package kalman

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func initialFilter(t *testing.T) *Filter {
	t.Helper()
	f := New(StateDim)
	require.NoError(t, f.Initialize(
		[]float64{1, 2, 3, 0.5, -0.25, 0.1, 0.02, 0.01, -0.03},
		[]float64{0.01, 0.01, 0.01, 0.2, 0.2, 0.2, 0.1, 0.1, 0.1},
	))
	return f
}

func TestFilter_Initialize(t *testing.T) {
	t.Parallel()

	f := New(3)
	assert.False(t, f.Initialized())

	err := f.Initialize([]float64{1, 2}, []float64{1, 1, 1})
	assert.ErrorIs(t, err, ErrDimension)
	err = f.Initialize([]float64{1, 2, 3}, []float64{1})
	assert.ErrorIs(t, err, ErrDimension)

	require.NoError(t, f.Initialize([]float64{1, 2, 3}, []float64{4, 5, 6}))
	assert.True(t, f.Initialized())
	assert.Equal(t, []float64{1, 2, 3}, f.State())
	assert.Equal(t, 5.0, f.CovarianceAt(1, 1))
	assert.Equal(t, 0.0, f.CovarianceAt(0, 1))
}

func TestFilter_Preconditions(t *testing.T) {
	t.Parallel()

	f := New(StateDim)
	assert.Panics(t, func() {
		_ = f.Update(PositionModel(), []float64{1, 2, 3}, mat.NewDiagDense(3, []float64{1, 1, 1}))
	})
	assert.Panics(t, func() { f.Predict(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil)) })
	assert.Panics(t, func() { New(0) })

	f = initialFilter(t)
	assert.Panics(t, func() {
		_ = f.Update(PositionModel(), []float64{1, 2}, mat.NewDiagDense(3, []float64{1, 1, 1}))
	})
}

func TestFilter_StateIsCopied(t *testing.T) {
	t.Parallel()

	f := initialFilter(t)
	s := f.State()
	s[0] = 100
	assert.Equal(t, 1.0, f.StateAt(0))

	p := f.Covariance()
	p.Set(0, 0, 100)
	assert.Equal(t, 0.01, f.CovarianceAt(0, 0))
}

func TestConstantAcceleration_ZeroStep(t *testing.T) {
	t.Parallel()

	m := ConstantAcceleration{AccelVariance: 0.01}
	f := initialFilter(t)
	before := f.State()
	pBefore := f.Covariance()

	m.PredictBy(f, 0)
	m.PredictBy(f, -1)

	assert.Equal(t, before, f.State())
	assert.True(t, mat.Equal(pBefore, f.Covariance()))

	// The explicit zero-step transition is the identity with zero noise.
	f.Predict(m.Transition(0), m.ProcessNoise(0))
	assert.Equal(t, before, f.State())
}

func TestConstantAcceleration_Grouping(t *testing.T) {
	t.Parallel()

	m := ConstantAcceleration{AccelVariance: 0.01}
	steps := initialFilter(t)
	for _, dt := range []float64{0.1, 0.25, 0.05, 0.6} {
		m.PredictBy(steps, dt)
	}
	single := initialFilter(t)
	m.PredictBy(single, 1.0)

	if diff := cmp.Diff(single.State(), steps.State(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("grouped prediction mismatch (-single +steps):\n%s", diff)
	}

	// Position follows the kinematic equation.
	assert.InDelta(t, 1+0.5*1+0.5*0.02, single.StateAt(0), 1e-12)
	assert.InDelta(t, 0.5+0.02, single.StateAt(3), 1e-12)
}

func TestConstantAcceleration_ProcessNoise(t *testing.T) {
	t.Parallel()

	m := ConstantAcceleration{AccelVariance: 2}
	Q := m.ProcessNoise(0.5)

	assert.InDelta(t, 0.25*0.0625*2, Q.At(0, 0), 1e-15)
	assert.InDelta(t, 0.5*0.125*2, Q.At(0, 3), 1e-15)
	assert.InDelta(t, 0.5*0.25*2, Q.At(6, 0), 1e-15)
	assert.InDelta(t, 0.25*2, Q.At(4, 4), 1e-15)
	assert.InDelta(t, 0.5*2, Q.At(5, 8), 1e-15)
	assert.InDelta(t, 2, Q.At(8, 8), 1e-15)
	assert.Zero(t, Q.At(0, 1))

	F := m.Transition(0.5)
	assert.Equal(t, 0.5, F.At(1, 4))
	assert.Equal(t, 0.5, F.At(4, 7))
	assert.Equal(t, 0.125, F.At(2, 8))
}

func TestFilter_UpdatePullsTowardsMeasurement(t *testing.T) {
	t.Parallel()

	f := initialFilter(t)
	R := mat.NewDiagDense(3, []float64{0.001, 0.001, 0.001})
	require.NoError(t, f.Update(PositionModel(), []float64{2, 2, 3}, R))

	// P00 = 0.01, R = 0.001: gain 10/11.
	assert.InDelta(t, 1+10.0/11.0, f.StateAt(0), 1e-9)
	assert.InDelta(t, 0.01/11, f.CovarianceAt(0, 0), 1e-12)
	assert.InDelta(t, 2, f.StateAt(1), 1e-12)
}

func TestFilter_UpdateSingular(t *testing.T) {
	t.Parallel()

	f := New(2)
	require.NoError(t, f.Initialize([]float64{1, 1}, []float64{0, 0}))
	H := mat.NewDense(1, 2, []float64{1, 0})
	err := f.Update(H, []float64{3}, mat.NewDense(1, 1, []float64{0}))
	assert.ErrorIs(t, err, ErrSingularInnovation)
	assert.Equal(t, []float64{1, 1}, f.State())
}
