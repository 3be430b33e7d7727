// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and synthetic alignment
// datasets so package tests do not each grow their own generators.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertSliceInDelta checks that got and want have the same length and
// differ by at most tol element-wise.
func AssertSliceInDelta(t testing.TB, want, got []float64, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("length = %d, want %d", len(got), len(want))
		return
	}
	if !floats.EqualApprox(want, got, tol) {
		t.Errorf("slices differ beyond %g:\n got  %v\n want %v", tol, got, want)
	}
}

// AngleDiff returns a-b wrapped into [-π, π].
func AngleDiff(a, b float64) float64 {
	return math.Remainder(a-b, 2*math.Pi)
}

// AssertAngleInDelta checks two angles (radians) modulo 2π.
func AssertAngleInDelta(t testing.TB, want, got, tol float64) {
	t.Helper()
	if d := math.Abs(AngleDiff(got, want)); d > tol {
		t.Errorf("angle = %.6f, want %.6f (diff %.6f > %g)", got, want, d, tol)
	}
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Transform is a ground-truth device-to-world transform: rotation Az about
// the vertical axis followed by translation.
type Transform struct {
	X0, Y0, Z0, Az float64
}

// Apply maps a device point into the world frame.
func (tr Transform) Apply(p r3.Vec) r3.Vec {
	s, c := math.Sincos(tr.Az)
	return r3.Vec{
		X: c*p.X - s*p.Y + tr.X0,
		Y: s*p.X + c*p.Y + tr.Y0,
		Z: p.Z + tr.Z0,
	}
}

// PointPair is a point seen in both frames.
type PointPair struct {
	Device, World r3.Vec
}

// PointPairs draws n device points uniformly in a box of half-width
// spread (and a quarter of that vertically), maps them through tr and adds
// Gaussian noise with standard deviation noiseSD to each world component.
func PointPairs(rng *rand.Rand, tr Transform, n int, spread, noiseSD float64) []PointPair {
	pairs := make([]PointPair, n)
	for i := range pairs {
		d := r3.Vec{
			X: (rng.Float64()*2 - 1) * spread,
			Y: (rng.Float64()*2 - 1) * spread,
			Z: (rng.Float64()*2 - 1) * spread / 4,
		}
		w := tr.Apply(d)
		w.X += rng.NormFloat64() * noiseSD
		w.Y += rng.NormFloat64() * noiseSD
		w.Z += rng.NormFloat64() * noiseSD
		pairs[i] = PointPair{Device: d, World: w}
	}
	return pairs
}

// SlopedSurface returns a height function z = z0 + gx·x + gy·y.
func SlopedSurface(z0, gx, gy float64) func(x, y float64) float64 {
	return func(x, y float64) float64 { return z0 + gx*x + gy*y }
}
