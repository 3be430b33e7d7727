package positioning

import (
	"fmt"
	"time"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/config"
	"github.com/banshee-data/geoalign/internal/kalman"
)

// ProviderConfig holds the provider tunables.
type ProviderConfig struct {
	Alignment alignment.Config

	// A solve is accepted only when every standard deviation is below its
	// threshold.
	AcceptXYSD float64
	AcceptZSD  float64
	AcceptAzSD float64

	AccelVariance          float64
	DevicePositionVariance float64
	// DevicePointSD is the device-frame sigma of a position observation.
	DevicePointSD float64
	// VerticalAccuracyFactor scales a fix's horizontal accuracy into its
	// vertical sigma.
	VerticalAccuracyFactor float64
	DefaultCompassSD       float64

	PredictionRefresh time.Duration
	WorkerTimeout     time.Duration

	InitialState      [kalman.StateDim]float64
	InitialCovariance [kalman.StateDim]float64
}

// FromTuning builds a ProviderConfig from a tuning document, using
// defaults for every field the document leaves unset.
func FromTuning(tc *config.TuningConfig) ProviderConfig {
	coarse := tc.GetCoarseConvergenceGate()
	return ProviderConfig{
		Alignment: alignment.Config{
			StageIterations: [3]int{tc.GetStage1Iterations(), tc.GetStage2Iterations(), tc.GetStage3Iterations()},
			Kernels: [2]alignment.Kernel{
				{K: tc.GetKernel1K(), A: tc.GetKernel1A()},
				{K: tc.GetKernel2K(), A: tc.GetKernel2A()},
			},
			ConvergenceGates:         [3]float64{coarse, coarse, tc.GetFinalConvergenceGate()},
			MinWeight:                tc.GetMinWeight(),
			OrientationVarianceFloor: tc.GetOrientationVarianceFloor(),
		},
		AcceptXYSD:             tc.GetAcceptXYSD(),
		AcceptZSD:              tc.GetAcceptZSD(),
		AcceptAzSD:             tc.GetAcceptAzSD(),
		AccelVariance:          tc.GetAccelVariance(),
		DevicePositionVariance: tc.GetDevicePositionVariance(),
		DevicePointSD:          tc.GetDevicePointSD(),
		VerticalAccuracyFactor: tc.GetVerticalAccuracyFactor(),
		DefaultCompassSD:       tc.GetDefaultCompassSD(),
		PredictionRefresh:      tc.GetPredictionRefresh(),
		WorkerTimeout:          tc.GetWorkerTimeout(),
		InitialCovariance: [kalman.StateDim]float64{
			0.01, 0.01, 0.01,
			0.2, 0.2, 0.2,
			0.1, 0.1, 0.1,
		},
	}
}

// DefaultProviderConfig returns the built-in tuning.
func DefaultProviderConfig() ProviderConfig {
	return FromTuning(config.EmptyTuningConfig())
}

// Validate checks that the configuration values are usable.
func (c ProviderConfig) Validate() error {
	if err := c.Alignment.Validate(); err != nil {
		return fmt.Errorf("alignment: %w", err)
	}
	if !(c.AcceptXYSD > 0 && c.AcceptZSD > 0 && c.AcceptAzSD > 0) {
		return fmt.Errorf("acceptance thresholds must be positive, got %v/%v/%v", c.AcceptXYSD, c.AcceptZSD, c.AcceptAzSD)
	}
	if !(c.AccelVariance > 0) || !(c.DevicePositionVariance > 0) {
		return fmt.Errorf("filter variances must be positive, got %v and %v", c.AccelVariance, c.DevicePositionVariance)
	}
	if !(c.DevicePointSD > 0) || !(c.VerticalAccuracyFactor > 0) || !(c.DefaultCompassSD > 0) {
		return fmt.Errorf("observation sigmas must be positive")
	}
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("worker timeout must be positive, got %v", c.WorkerTimeout)
	}
	if c.PredictionRefresh < 0 {
		return fmt.Errorf("prediction refresh must be non-negative, got %v", c.PredictionRefresh)
	}
	for i, v := range c.InitialCovariance {
		if v < 0 {
			return fmt.Errorf("initial covariance[%d] must be non-negative, got %v", i, v)
		}
	}
	return nil
}

// accepts reports whether p is precise enough to publish.
func (c ProviderConfig) accepts(p alignment.Parameters) bool {
	return sqrtLess(p.XYSigma2, c.AcceptXYSD) &&
		sqrtLess(p.ZSigma2, c.AcceptZSD) &&
		sqrtLess(p.AzSigma2, c.AcceptAzSD)
}

// sqrtLess reports sqrt(v) < limit, false for NaN.
func sqrtLess(v, limit float64) bool {
	return v >= 0 && v < limit*limit
}
