package alignment

import (
	"fmt"
	"math"
)

// Kernel is the redescending weight function w = exp(-0.05·(K·r)^A)
// applied to normalized residuals above one.
type Kernel struct {
	K float64
	A float64
}

// Weight returns the weight for normalized residual r, never below floor.
func (k Kernel) Weight(r, floor float64) float64 {
	if !(r > 1) {
		return 1
	}
	w := math.Exp(-0.05 * math.Pow(k.K*r, k.A))
	if w < floor {
		return floor
	}
	return w
}

// Config holds the estimator tunables.
type Config struct {
	// Iterations per stage.
	StageIterations [3]int

	// Kernels used to reweight after stage 1 and stage 2.
	Kernels [2]Kernel

	// A stage converges when every correction is below gate·σ of its
	// parameter.
	ConvergenceGates [3]float64

	MinWeight float64

	// Added to the a priori variance of orientation observations.
	OrientationVarianceFloor float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		StageIterations:          [3]int{3, 3, 10},
		Kernels:                  [2]Kernel{{K: 1, A: 4.4}, {K: 0.6, A: 6}},
		ConvergenceGates:         [3]float64{0.3, 0.3, 0.1},
		MinWeight:                1e-6,
		OrientationVarianceFloor: 0.1 * 0.1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	for i, n := range c.StageIterations {
		if n < 1 {
			return fmt.Errorf("stage %d iterations must be positive, got %d", i+1, n)
		}
	}
	for i, g := range c.ConvergenceGates {
		if !(g > 0) {
			return fmt.Errorf("stage %d convergence gate must be positive, got %v", i+1, g)
		}
	}
	for i, k := range c.Kernels {
		if !(k.K > 0) || !(k.A > 0) {
			return fmt.Errorf("kernel %d must have positive k and a, got %+v", i+1, k)
		}
	}
	if c.MinWeight <= 0 || c.MinWeight > 1 {
		return fmt.Errorf("min weight must be in (0, 1], got %v", c.MinWeight)
	}
	if c.OrientationVarianceFloor < 0 {
		return fmt.Errorf("orientation variance floor must be non-negative, got %v", c.OrientationVarianceFloor)
	}
	return nil
}
