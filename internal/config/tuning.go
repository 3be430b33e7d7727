package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for alignment tuning.
// Every field is optional; the Get* accessors fall back to the built-in
// defaults for fields the JSON omits.
type TuningConfig struct {
	// Estimator params
	Stage1Iterations         *int     `json:"stage1_iterations,omitempty"`
	Stage2Iterations         *int     `json:"stage2_iterations,omitempty"`
	Stage3Iterations         *int     `json:"stage3_iterations,omitempty"`
	Kernel1K                 *float64 `json:"kernel1_k,omitempty"`
	Kernel1A                 *float64 `json:"kernel1_a,omitempty"`
	Kernel2K                 *float64 `json:"kernel2_k,omitempty"`
	Kernel2A                 *float64 `json:"kernel2_a,omitempty"`
	CoarseConvergenceGate    *float64 `json:"coarse_convergence_gate,omitempty"`
	FinalConvergenceGate     *float64 `json:"final_convergence_gate,omitempty"`
	MinWeight                *float64 `json:"min_weight,omitempty"`
	OrientationVarianceFloor *float64 `json:"orientation_variance_floor,omitempty"`

	// Acceptance thresholds for publishing a new transform
	AcceptXYSD *float64 `json:"accept_xy_sd,omitempty"` // metres
	AcceptZSD  *float64 `json:"accept_z_sd,omitempty"`  // metres
	AcceptAzSD *float64 `json:"accept_az_sd,omitempty"` // radians

	// Device motion filter params
	AccelVariance          *float64 `json:"accel_variance,omitempty"`
	DevicePositionVariance *float64 `json:"device_position_variance,omitempty"`
	DevicePointSD          *float64 `json:"device_point_sd,omitempty"`
	VerticalAccuracyFactor *float64 `json:"vertical_accuracy_factor,omitempty"`
	DefaultCompassSD       *float64 `json:"default_compass_sd,omitempty"`

	// Timing params
	PredictionRefresh *string `json:"prediction_refresh,omitempty"` // duration string like "200ms"
	WorkerTimeout     *string `json:"worker_timeout,omitempty"`     // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// built-in default.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		Stage1Iterations:         ptrInt(e.GetStage1Iterations()),
		Stage2Iterations:         ptrInt(e.GetStage2Iterations()),
		Stage3Iterations:         ptrInt(e.GetStage3Iterations()),
		Kernel1K:                 ptrFloat64(e.GetKernel1K()),
		Kernel1A:                 ptrFloat64(e.GetKernel1A()),
		Kernel2K:                 ptrFloat64(e.GetKernel2K()),
		Kernel2A:                 ptrFloat64(e.GetKernel2A()),
		CoarseConvergenceGate:    ptrFloat64(e.GetCoarseConvergenceGate()),
		FinalConvergenceGate:     ptrFloat64(e.GetFinalConvergenceGate()),
		MinWeight:                ptrFloat64(e.GetMinWeight()),
		OrientationVarianceFloor: ptrFloat64(e.GetOrientationVarianceFloor()),
		AcceptXYSD:               ptrFloat64(e.GetAcceptXYSD()),
		AcceptZSD:                ptrFloat64(e.GetAcceptZSD()),
		AcceptAzSD:               ptrFloat64(e.GetAcceptAzSD()),
		AccelVariance:            ptrFloat64(e.GetAccelVariance()),
		DevicePositionVariance:   ptrFloat64(e.GetDevicePositionVariance()),
		DevicePointSD:            ptrFloat64(e.GetDevicePointSD()),
		VerticalAccuracyFactor:   ptrFloat64(e.GetVerticalAccuracyFactor()),
		DefaultCompassSD:         ptrFloat64(e.GetDefaultCompassSD()),
		PredictionRefresh:        ptrString(e.GetPredictionRefresh().String()),
		WorkerTimeout:            ptrString(e.GetWorkerTimeout().String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // deeper packages
		"../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*int{
		"stage1_iterations": c.Stage1Iterations,
		"stage2_iterations": c.Stage2Iterations,
		"stage3_iterations": c.Stage3Iterations,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"kernel1_k":                c.Kernel1K,
		"kernel1_a":                c.Kernel1A,
		"kernel2_k":                c.Kernel2K,
		"kernel2_a":                c.Kernel2A,
		"coarse_convergence_gate":  c.CoarseConvergenceGate,
		"final_convergence_gate":   c.FinalConvergenceGate,
		"accept_xy_sd":             c.AcceptXYSD,
		"accept_z_sd":              c.AcceptZSD,
		"accept_az_sd":             c.AcceptAzSD,
		"accel_variance":           c.AccelVariance,
		"device_position_variance": c.DevicePositionVariance,
		"device_point_sd":          c.DevicePointSD,
		"vertical_accuracy_factor": c.VerticalAccuracyFactor,
		"default_compass_sd":       c.DefaultCompassSD,
	} {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.MinWeight != nil && (*c.MinWeight <= 0 || *c.MinWeight > 1) {
		return fmt.Errorf("min_weight must be in (0, 1], got %f", *c.MinWeight)
	}
	if c.OrientationVarianceFloor != nil && *c.OrientationVarianceFloor < 0 {
		return fmt.Errorf("orientation_variance_floor must be non-negative, got %f", *c.OrientationVarianceFloor)
	}

	if c.PredictionRefresh != nil && *c.PredictionRefresh != "" {
		if _, err := time.ParseDuration(*c.PredictionRefresh); err != nil {
			return fmt.Errorf("invalid prediction_refresh '%s': %w", *c.PredictionRefresh, err)
		}
	}
	if c.WorkerTimeout != nil && *c.WorkerTimeout != "" {
		d, err := time.ParseDuration(*c.WorkerTimeout)
		if err != nil {
			return fmt.Errorf("invalid worker_timeout '%s': %w", *c.WorkerTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("worker_timeout must be positive, got %s", d)
		}
	}

	return nil
}

// GetStage1Iterations returns the stage1_iterations value or the default.
func (c *TuningConfig) GetStage1Iterations() int {
	if c.Stage1Iterations == nil {
		return 3
	}
	return *c.Stage1Iterations
}

// GetStage2Iterations returns the stage2_iterations value or the default.
func (c *TuningConfig) GetStage2Iterations() int {
	if c.Stage2Iterations == nil {
		return 3
	}
	return *c.Stage2Iterations
}

// GetStage3Iterations returns the stage3_iterations value or the default.
func (c *TuningConfig) GetStage3Iterations() int {
	if c.Stage3Iterations == nil {
		return 10
	}
	return *c.Stage3Iterations
}

// GetKernel1K returns the kernel1_k value or the default.
func (c *TuningConfig) GetKernel1K() float64 {
	if c.Kernel1K == nil {
		return 1.0
	}
	return *c.Kernel1K
}

// GetKernel1A returns the kernel1_a value or the default.
func (c *TuningConfig) GetKernel1A() float64 {
	if c.Kernel1A == nil {
		return 4.4
	}
	return *c.Kernel1A
}

// GetKernel2K returns the kernel2_k value or the default.
func (c *TuningConfig) GetKernel2K() float64 {
	if c.Kernel2K == nil {
		return 0.6
	}
	return *c.Kernel2K
}

// GetKernel2A returns the kernel2_a value or the default.
func (c *TuningConfig) GetKernel2A() float64 {
	if c.Kernel2A == nil {
		return 6.0
	}
	return *c.Kernel2A
}

// GetCoarseConvergenceGate returns the coarse_convergence_gate value or the default.
func (c *TuningConfig) GetCoarseConvergenceGate() float64 {
	if c.CoarseConvergenceGate == nil {
		return 0.3
	}
	return *c.CoarseConvergenceGate
}

// GetFinalConvergenceGate returns the final_convergence_gate value or the default.
func (c *TuningConfig) GetFinalConvergenceGate() float64 {
	if c.FinalConvergenceGate == nil {
		return 0.1
	}
	return *c.FinalConvergenceGate
}

// GetMinWeight returns the min_weight value or the default.
func (c *TuningConfig) GetMinWeight() float64 {
	if c.MinWeight == nil {
		return 1e-6
	}
	return *c.MinWeight
}

// GetOrientationVarianceFloor returns the orientation_variance_floor value or the default.
func (c *TuningConfig) GetOrientationVarianceFloor() float64 {
	if c.OrientationVarianceFloor == nil {
		return 0.01
	}
	return *c.OrientationVarianceFloor
}

// GetAcceptXYSD returns the accept_xy_sd value or the default.
func (c *TuningConfig) GetAcceptXYSD() float64 {
	if c.AcceptXYSD == nil {
		return 10
	}
	return *c.AcceptXYSD
}

// GetAcceptZSD returns the accept_z_sd value or the default.
func (c *TuningConfig) GetAcceptZSD() float64 {
	if c.AcceptZSD == nil {
		return 20
	}
	return *c.AcceptZSD
}

// GetAcceptAzSD returns the accept_az_sd value or the default.
func (c *TuningConfig) GetAcceptAzSD() float64 {
	if c.AcceptAzSD == nil {
		return 0.5
	}
	return *c.AcceptAzSD
}

// GetAccelVariance returns the accel_variance value or the default.
func (c *TuningConfig) GetAccelVariance() float64 {
	if c.AccelVariance == nil {
		return 0.01
	}
	return *c.AccelVariance
}

// GetDevicePositionVariance returns the device_position_variance value or the default.
func (c *TuningConfig) GetDevicePositionVariance() float64 {
	if c.DevicePositionVariance == nil {
		return 0.001
	}
	return *c.DevicePositionVariance
}

// GetDevicePointSD returns the device_point_sd value or the default.
func (c *TuningConfig) GetDevicePointSD() float64 {
	if c.DevicePointSD == nil {
		return 0.1
	}
	return *c.DevicePointSD
}

// GetVerticalAccuracyFactor returns the vertical_accuracy_factor value or the default.
func (c *TuningConfig) GetVerticalAccuracyFactor() float64 {
	if c.VerticalAccuracyFactor == nil {
		return 2
	}
	return *c.VerticalAccuracyFactor
}

// GetDefaultCompassSD returns the default_compass_sd value or the default.
func (c *TuningConfig) GetDefaultCompassSD() float64 {
	if c.DefaultCompassSD == nil {
		return math.Pi / 2
	}
	return *c.DefaultCompassSD
}

// GetPredictionRefresh parses and returns the PredictionRefresh as a time.Duration.
func (c *TuningConfig) GetPredictionRefresh() time.Duration {
	if c.PredictionRefresh == nil || *c.PredictionRefresh == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PredictionRefresh)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetWorkerTimeout parses and returns the WorkerTimeout as a time.Duration.
func (c *TuningConfig) GetWorkerTimeout() time.Duration {
	if c.WorkerTimeout == nil || *c.WorkerTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.WorkerTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}
