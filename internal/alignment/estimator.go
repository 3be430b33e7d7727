package alignment

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	errSingular     = errors.New("singular normal equations")
	errNaN          = errors.New("NaN in solution")
	errNoRedundancy = errors.New("no redundancy")
)

// Estimator solves for the transform from a set of observations. A single
// goroutine is expected to drive Adjust; the accessors may be called from
// anywhere.
type Estimator struct {
	cfg Config

	mu     sync.Mutex
	stages [3]Parameters

	// Seed for the first stage of the next Adjust: the last converged
	// result, or the identity.
	seed Parameters
}

// NewEstimator returns an estimator with the given tuning.
func NewEstimator(cfg Config) *Estimator {
	id := Identity()
	return &Estimator{cfg: cfg, stages: [3]Parameters{id, id, id}, seed: id}
}

// Config returns the tuning in use.
func (e *Estimator) Config() Config { return e.cfg }

// Parameters returns the final stage of the last Adjust.
func (e *Estimator) Parameters() Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stages[2]
}

// StageParameters returns the snapshot of every stage of the last Adjust.
func (e *Estimator) StageParameters() [3]Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stages
}

// Reset forgets the warm start and all stage results.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := Identity()
	e.stages = [3]Parameters{id, id, id}
	e.seed = id
}

// Adjust re-estimates the transform from obs. It returns true only if the
// final stage converged; singular or degenerate systems and exhausted
// iterations return false. Observations receive their residual
// diagnostics after the first and second stage.
func (e *Estimator) Adjust(obs []Observation) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			opsf("adjust: recovered from panic: %v", r)
			ok = false
		}
	}()

	weights := make([]float64, len(obs))
	for i := range weights {
		weights[i] = 1
	}

	p := e.seed
	for stage := 0; stage < len(e.stages); stage++ {
		next, ninv, converged, err := e.runStage(stage, p, obs, weights)
		e.stages[stage] = next
		if err != nil {
			diagf("adjust: stage %d failed with %d observations: %v", stage+1, len(obs), err)
			return false
		}
		if stage == len(e.stages)-1 {
			if !converged {
				diagf("adjust: no convergence after %d iterations", e.cfg.StageIterations[stage])
				return false
			}
			e.seed = next
			return true
		}
		down := e.reweight(e.cfg.Kernels[stage], next, ninv, obs, weights)
		diagf("adjust: stage %d %s, %d of %d observations down-weighted", stage+1, next, down, len(obs))
		p = next
	}
	return false
}

// runStage iterates the adjustment from p with fixed weights.
func (e *Estimator) runStage(stage int, p Parameters, obs []Observation, weights []float64) (Parameters, *mat.Dense, bool, error) {
	gate := e.cfg.ConvergenceGates[stage]
	var ninv *mat.Dense
	for it := 0; it < e.cfg.StageIterations[stage]; it++ {
		next, x, n, err := e.iterate(p, obs, weights)
		if err != nil {
			return p, nil, false, err
		}
		p, ninv = next, n
		tracef("stage %d iteration %d: dx=%v %s", stage+1, it+1, x, p)

		if converged(x, ninv, p.Sigma2, gate) {
			return p, ninv, true, nil
		}
	}
	return p, ninv, false, nil
}

// converged reports whether every correction is below gate standard
// deviations of its parameter.
func converged(x []float64, ninv *mat.Dense, sigma2, gate float64) bool {
	for i, dx := range x {
		if !(math.Abs(dx) < gate*math.Sqrt(ninv.At(i, i)*sigma2)) {
			return false
		}
	}
	return true
}

// iterate builds and solves the normal equations once.
func (e *Estimator) iterate(p Parameters, obs []Observation, weights []float64) (Parameters, []float64, *mat.Dense, error) {
	N := mat.NewDense(numParams, numParams, nil)
	t := mat.NewVecDense(numParams, nil)
	vWv := 0.0
	r := -numParams

	for i, o := range obs {
		eq, ok := o.equations(p, &e.cfg)
		if !ok {
			continue
		}
		vWv += eq.accumulate(weights[i], N, t)
		r += eq.conditions()
	}
	if r <= 0 {
		return p, nil, nil, fmt.Errorf("%w: %d conditions for %d parameters", errNoRedundancy, r+numParams, numParams)
	}

	var ninv mat.Dense
	if err := ninv.Inverse(N); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", errSingular, err)
	}
	var xv mat.VecDense
	xv.MulVec(&ninv, t)
	x := xv.RawVector().Data
	if floats.HasNaN(x) || floats.HasNaN(ninv.RawMatrix().Data) {
		return p, nil, nil, errNaN
	}

	next := p.withCorrection(x)
	vWv -= mat.Dot(&xv, t)
	next.Sigma2 = vWv / float64(r)
	next.XYSigma2 = next.Sigma2 * (ninv.At(0, 0) + ninv.At(1, 1) + ninv.At(0, 1) + ninv.At(1, 0))
	next.ZSigma2 = next.Sigma2 * ninv.At(2, 2)
	next.AzSigma2 = next.Sigma2 * ninv.At(3, 3)
	return next, x, &ninv, nil
}

// reweight stores residual diagnostics on every observation under p and
// sets its weight for the next stage. It returns how many observations were
// down-weighted.
func (e *Estimator) reweight(k Kernel, p Parameters, ninv *mat.Dense, obs []Observation, weights []float64) int {
	down := 0
	for i, o := range obs {
		var res Residuals
		if eq, ok := o.equations(p, &e.cfg); ok {
			res = eq.residuals(ninv, p.Sigma2)
		} else {
			res.Normalized = math.MaxFloat32
		}
		weights[i] = k.Weight(res.Normalized, e.cfg.MinWeight)
		res.Weight = weights[i]
		if weights[i] < 1 {
			down++
		}
		o.setResiduals(res)
	}
	return down
}
