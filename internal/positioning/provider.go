package positioning

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/geodesy"
	"github.com/banshee-data/geoalign/internal/kalman"
	"github.com/banshee-data/geoalign/internal/timeutil"
	"github.com/banshee-data/geoalign/internal/units"
)

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c timeutil.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithGeoid sets the geoid model used to convert ellipsoidal fix
// altitudes to orthometric heights. The default is a zero separation, so
// heights stay ellipsoidal; callers that need orthometric heights must
// supply a model such as a GeoidGrid.
func WithGeoid(g geodesy.GeoidModel) Option {
	return func(p *Provider) { p.geoid = g }
}

// WithMagneticModel sets the declination source applied to compass
// readings. Defaults to zero declination.
func WithMagneticModel(m geodesy.MagneticModel) Option {
	return func(p *Provider) { p.magnetic = m }
}

// WithEstimator replaces the estimator built from the provider config.
func WithEstimator(e *alignment.Estimator) Option {
	return func(p *Provider) { p.estimator = e }
}

// Provider combines the device track with world observations into
// filtered geographic locations.
type Provider struct {
	cfg       ProviderConfig
	clock     timeutil.Clock
	geoid     geodesy.GeoidModel
	magnetic  geodesy.MagneticModel
	estimator *alignment.Estimator
	motion    kalman.ConstantAcceleration
	store     *ObservationStore

	// mu guards the filter and everything derived from the device and
	// location streams.
	mu          sync.Mutex
	filter      *kalman.Filter
	lastComp    time.Time
	havePose    bool
	deviceDir   float64
	compassAz   float64
	declination float64
	origin      geodesy.Origin
	hasOrigin   bool
	lastFix     *Fix

	// estMu guards the published transform.
	estMu     sync.RWMutex
	estimate  Estimate
	published alignment.Parameters
	accepted  bool
	matrix    [16]float64

	listenerMu sync.Mutex
	listeners  []originListener
	nextID     int

	// generation is bumped by Reset so that a solve started before the
	// reset is not published after it.
	generation atomic.Uint64
	solves     atomic.Uint64
	forced     atomic.Bool
	wake       chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type originListener struct {
	id int
	fn func(geodesy.Origin)
}

// NewProvider returns a stopped provider. Call Start to run the
// re-estimation worker.
func NewProvider(cfg ProviderConfig, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		cfg:      cfg,
		clock:    timeutil.RealClock{},
		geoid:    geodesy.ConstantGeoid(0),
		magnetic: geodesy.ConstantDeclination(0),
		motion:   kalman.ConstantAcceleration{AccelVariance: cfg.AccelVariance},
		filter:   kalman.New(kalman.StateDim),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.estimator == nil {
		p.estimator = alignment.NewEstimator(cfg.Alignment)
	}
	p.store = NewObservationStore(func(int) { p.signal() })
	p.resetLocked()
	return p, nil
}

// Store exposes the observation store.
func (p *Provider) Store() *ObservationStore { return p.store }

// Reset reinitialises the filter and forgets every observation, the origin
// and the transform.
func (p *Provider) Reset() {
	p.generation.Add(1)
	p.mu.Lock()
	p.resetLocked()
	p.mu.Unlock()
	p.store.Clear()
	p.estimator.Reset()
	// A solve in flight during the reset is discarded, so the worker must
	// not skip the refilled store when it reaches the same size.
	p.Recompute()
	opsf("provider reset")
}

// resetLocked restores the initial state. Callers hold mu, or own p
// exclusively during construction.
func (p *Provider) resetLocked() {
	if err := p.filter.Initialize(p.cfg.InitialState[:], p.cfg.InitialCovariance[:]); err != nil {
		panic(err) // sizes are fixed by the array types
	}
	p.lastComp = time.Time{}
	p.havePose = false
	p.deviceDir = 0
	p.compassAz = 0
	p.declination = 0
	p.origin = geodesy.Origin{}
	p.hasOrigin = false
	p.lastFix = nil

	p.estMu.Lock()
	p.estimate = Estimate{Parameters: alignment.Identity()}
	p.published = alignment.Identity()
	p.accepted = false
	p.matrix = identityMatrix
	p.estMu.Unlock()
}

// predictLocked advances the filter to now.
func (p *Provider) predictLocked(now time.Time) {
	if !p.lastComp.IsZero() {
		p.motion.PredictBy(p.filter, now.Sub(p.lastComp).Seconds())
	}
	p.lastComp = now
}

func (p *Provider) devicePositionLocked() r3.Vec {
	return r3.Vec{X: p.filter.StateAt(0), Y: p.filter.StateAt(1), Z: p.filter.StateAt(2)}
}

// DeviceState returns the filtered device-frame position and velocity.
// ok is false before the first pose.
func (p *Provider) DeviceState() (pos, vel r3.Vec, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.havePose {
		return r3.Vec{}, r3.Vec{}, false
	}
	vel = r3.Vec{X: p.filter.StateAt(3), Y: p.filter.StateAt(4), Z: p.filter.StateAt(5)}
	return p.devicePositionLocked(), vel, true
}

// Location returns the current filtered geographic location. While no
// transform has been accepted it returns the last raw fix, with Filtered
// false. ok is false when there is nothing to report.
func (p *Provider) Location() (Location, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastComp.IsZero() {
		if now := p.clock.Now(); now.Sub(p.lastComp) > p.cfg.PredictionRefresh {
			p.predictLocked(now)
		}
	}

	p.estMu.RLock()
	accepted, params := p.accepted, p.published
	p.estMu.RUnlock()

	if !accepted || !p.hasOrigin || !p.havePose {
		if p.lastFix == nil {
			return Location{}, false
		}
		f := *p.lastFix
		return Location{Lat: f.Lat, Lon: f.Lon, Height: f.Altitude, Accuracy: f.Accuracy, Time: f.Time}, true
	}

	d := p.devicePositionLocked()
	xw, yw, zw := params.ToWorld(d.X, d.Y, d.Z)
	lat, lon, h := p.origin.FromLocal(xw, yw, zw)

	vx, vy := p.filter.StateAt(3), p.filter.StateAt(4)
	s, c := params.SinAz(), params.CosAz()
	ve, vn := c*vx-s*vy, s*vx+c*vy

	return Location{
		Lat:      lat,
		Lon:      lon,
		Height:   h,
		Accuracy: math.Sqrt(params.XYSigma2 + p.filter.CovarianceAt(0, 0) + p.filter.CovarianceAt(1, 1)),
		Speed:    math.Hypot(vx, vy),
		Bearing:  units.Bearing(ve, vn),
		Time:     p.lastComp,
		Filtered: true,
	}, true
}

// TransformMatrix returns the published world-to-device matrix in
// column-major order.
func (p *Provider) TransformMatrix() [16]float64 {
	p.estMu.RLock()
	defer p.estMu.RUnlock()
	return p.matrix
}

// Estimate returns the outcome of the most recent solve.
func (p *Provider) Estimate() Estimate {
	p.estMu.RLock()
	defer p.estMu.RUnlock()
	return p.estimate
}

// Accepted reports whether a transform has been accepted since the last
// reset.
func (p *Provider) Accepted() bool {
	p.estMu.RLock()
	defer p.estMu.RUnlock()
	return p.accepted
}

// Origin returns the local origin, once established.
func (p *Provider) Origin() (geodesy.Origin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.origin, p.hasOrigin
}

// AddOriginListener registers fn to be called whenever the origin is
// established. The returned func unregisters it.
func (p *Provider) AddOriginListener(fn func(geodesy.Origin)) (remove func()) {
	p.listenerMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners = append(p.listeners, originListener{id: id, fn: fn})
	p.listenerMu.Unlock()

	return func() {
		p.listenerMu.Lock()
		defer p.listenerMu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) notifyOrigin(o geodesy.Origin) {
	p.listenerMu.Lock()
	ls := append([]originListener(nil), p.listeners...)
	p.listenerMu.Unlock()
	for _, l := range ls {
		l.fn(o)
	}
}

// establishOriginLocked creates the origin at the first world fix and
// publishes the compass-only rotation. The caller must notify listeners
// after releasing mu.
func (p *Provider) establishOriginLocked(lat, lon, h, altitude float64) {
	p.origin = geodesy.NewOrigin(lat, lon, h)
	p.hasOrigin = true
	p.declination = p.magnetic.Declination(lat, lon, altitude, p.clock.Now())

	p.estMu.Lock()
	p.matrix = rotationMatrix(p.compassAz)
	p.estMu.Unlock()

	opsf("origin established at %s, declination %.2f°", p.origin, units.Degrees(p.declination))
}

func positionUpdate(variance float64) *mat.Dense {
	return mat.NewDense(kalman.Axes, kalman.Axes, []float64{
		variance, 0, 0,
		0, variance, 0,
		0, 0, variance,
	})
}
