package kalman

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when an initial state or covariance does not
	// match the filter size.
	ErrDimension = errors.New("kalman: dimension mismatch")

	// ErrSingularInnovation is returned by Update when H·P·Hᵗ + R cannot be
	// inverted. The state is left unchanged.
	ErrSingularInnovation = errors.New("kalman: singular innovation covariance")
)

// Filter tracks a state vector x and its covariance P.
type Filter struct {
	n           int
	x           *mat.VecDense
	p           *mat.Dense
	initialized bool
}

// New returns an uninitialised filter with an n-dimensional state.
func New(n int) *Filter {
	if n <= 0 {
		panic(fmt.Sprintf("kalman: invalid state dimension %d", n))
	}
	return &Filter{
		n: n,
		x: mat.NewVecDense(n, nil),
		p: mat.NewDense(n, n, nil),
	}
}

// Dim returns the state dimension.
func (f *Filter) Dim() int { return f.n }

// Initialize sets the state to x0 and the covariance to diag(pDiag).
func (f *Filter) Initialize(x0, pDiag []float64) error {
	if len(x0) != f.n || len(pDiag) != f.n {
		return fmt.Errorf("%w: want %d, got state %d and covariance %d", ErrDimension, f.n, len(x0), len(pDiag))
	}
	f.x = mat.NewVecDense(f.n, append([]float64(nil), x0...))
	f.p = mat.NewDense(f.n, f.n, nil)
	for i, v := range pDiag {
		f.p.Set(i, i, v)
	}
	f.initialized = true
	return nil
}

// Initialized reports whether Initialize has been called.
func (f *Filter) Initialized() bool { return f.initialized }

// Predict advances the filter: x = F·x, P = F·P·Fᵗ + Q.
func (f *Filter) Predict(F, Q mat.Matrix) {
	f.mustInit("Predict")
	f.checkSquare("F", F)
	f.checkSquare("Q", Q)

	var x mat.VecDense
	x.MulVec(F, f.x)
	f.x = &x

	var p mat.Dense
	p.Product(F, f.p, F.T())
	p.Add(&p, Q)
	f.p = &p
}

// Update fuses a measurement z with model H and covariance R.
func (f *Filter) Update(H mat.Matrix, z []float64, R mat.Matrix) error {
	f.mustInit("Update")
	m, c := H.Dims()
	if c != f.n || len(z) != m {
		panic(fmt.Sprintf("kalman: Update with H %dx%d and %d measurements on %d states", m, c, len(z), f.n))
	}
	if rr, rc := R.Dims(); rr != m || rc != m {
		panic(fmt.Sprintf("kalman: Update with R %dx%d, want %dx%d", rr, rc, m, m))
	}

	// Innovation y = z - H·x
	var hx mat.VecDense
	hx.MulVec(H, f.x)
	y := mat.NewVecDense(m, append([]float64(nil), z...))
	y.SubVec(y, &hx)

	// S = H·P·Hᵗ + R
	var s mat.Dense
	s.Product(H, f.p, H.T())
	s.Add(&s, R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}

	// K = P·Hᵗ·S⁻¹
	var k mat.Dense
	k.Product(f.p, H.T(), &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, y)
	f.x.AddVec(f.x, &ky)

	// P = P - K·H·P
	var khp mat.Dense
	khp.Product(&k, H, f.p)
	f.p.Sub(f.p, &khp)
	return nil
}

// State returns a copy of the state vector.
func (f *Filter) State() []float64 {
	out := make([]float64, f.n)
	copy(out, f.x.RawVector().Data)
	return out
}

// StateAt returns element i of the state vector.
func (f *Filter) StateAt(i int) float64 { return f.x.AtVec(i) }

// Covariance returns a copy of the covariance matrix.
func (f *Filter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(f.p)
}

// CovarianceAt returns element (i, j) of the covariance.
func (f *Filter) CovarianceAt(i, j int) float64 { return f.p.At(i, j) }

func (f *Filter) mustInit(op string) {
	if !f.initialized {
		panic("kalman: " + op + " called before Initialize")
	}
}

func (f *Filter) checkSquare(name string, m mat.Matrix) {
	if r, c := m.Dims(); r != f.n || c != f.n {
		panic(fmt.Sprintf("kalman: %s is %dx%d, want %dx%d", name, r, c, f.n, f.n))
	}
}
