package positioning

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/geodesy"
	"github.com/banshee-data/geoalign/internal/geometry"
	"github.com/banshee-data/geoalign/internal/testutil"
	"github.com/banshee-data/geoalign/internal/timeutil"
)

var (
	epoch  = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	refOrg = geodesy.NewOrigin(59.91, 10.75, 0)
	truth  = testutil.Transform{X0: 10, Y0: -5, Z0: 2, Az: 0.3}
)

const deviceYaw = 0.7

func newTestProvider(t *testing.T, opts ...Option) (*Provider, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	p, err := NewProvider(DefaultProviderConfig(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return p, clock
}

// devicePath is a noise-free walk around an ellipse, one sample a second.
func devicePath(k int) r3.Vec {
	a := float64(k) * 0.35
	return r3.Vec{X: 15 * math.Cos(a), Y: 10 * math.Sin(a), Z: 0.05 * float64(k)}
}

func fixFor(w r3.Vec, at time.Time) Fix {
	lat, lon, h := refOrg.FromLocal(w.X, w.Y, w.Z)
	return Fix{Lat: lat, Lon: lon, Altitude: h, Accuracy: 1, Time: at}
}

// feed drives n steps of pose, fix and compass samples consistent with
// the ground-truth transform.
func feed(p *Provider, clock *timeutil.MockClock, from, n int) {
	trueHeading := -deviceYaw - truth.Az
	for k := from; k < from+n; k++ {
		clock.Advance(time.Second)
		d := devicePath(k)
		p.HandlePose(Pose{Translation: d, Rotation: yaw(deviceYaw)})
		p.HandleLocation(fixFor(truth.Apply(d), clock.Now()))
		p.HandleCompassHeading(trueHeading, 0.05)
	}
}

func TestProviderHandlers(t *testing.T) {
	t.Parallel()

	t.Run("nothing to report before any input", func(t *testing.T) {
		t.Parallel()
		p, _ := newTestProvider(t)
		_, ok := p.Location()
		assert.False(t, ok)
		_, ok = p.Origin()
		assert.False(t, ok)
		assert.Equal(t, identityMatrix, p.TransformMatrix())
		_, _, ok = p.DeviceState()
		assert.False(t, ok)
	})

	t.Run("default geoid keeps ellipsoidal heights", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		p.HandleLocation(Fix{Lat: 59.9, Lon: 10.7, Altitude: 140, Accuracy: 5, Time: clock.Now()})
		o, ok := p.Origin()
		require.True(t, ok)
		assert.Equal(t, 140.0, o.H0)
	})

	t.Run("fix before pose sets origin but stores nothing", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t, WithGeoid(geodesy.ConstantGeoid(40)))
		fix := Fix{Lat: 59.9, Lon: 10.7, Altitude: 140, Accuracy: 5, Time: clock.Now()}
		assert.Nil(t, p.HandleLocation(fix))
		assert.Zero(t, p.Store().Len())

		o, ok := p.Origin()
		require.True(t, ok)
		assert.Equal(t, 59.9, o.Lat0)
		assert.Equal(t, 100.0, o.H0, "origin height is geoid corrected")

		loc, ok := p.Location()
		require.True(t, ok)
		assert.False(t, loc.Filtered)
		assert.Equal(t, fix.Lat, loc.Lat)
		assert.Equal(t, fix.Accuracy, loc.Accuracy)
	})

	t.Run("compass before pose is ignored", func(t *testing.T) {
		t.Parallel()
		p, _ := newTestProvider(t)
		assert.Nil(t, p.HandleCompassHeading(1, 0.1))
		assert.Nil(t, p.HandleRotationVector([]float64{0, 0, 0.3}))
		assert.Nil(t, p.HandleRotationVector([]float64{0}))
	})

	t.Run("location fix becomes a 3D observation", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		// The second sample pulls the filter onto the track.
		for i := 0; i < 2; i++ {
			clock.Advance(time.Second)
			p.HandlePose(Pose{Translation: r3.Vec{X: 1, Y: 2, Z: 3}, Rotation: yaw(0)})
		}

		obs := p.HandleLocation(Fix{Lat: 59.9, Lon: 10.7, Altitude: 50, Accuracy: 4})
		require.NotNil(t, obs)
		pos, ok := obs.(*alignment.Position3D)
		require.True(t, ok)
		assert.InDelta(t, 0, pos.World.X, 1e-9)
		assert.InDelta(t, 0, pos.World.Z, 1e-9)
		assert.Equal(t, r3.Vec{X: 4, Y: 4, Z: 8}, pos.WorldSD)
		assert.Equal(t, r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}, pos.DeviceSD)
		assert.InDelta(t, 1, pos.Device.X, 0.05)
		assert.InDelta(t, 2, pos.Device.Y, 0.05)
		assert.InDelta(t, 3, pos.Device.Z, 0.05)
		assert.Equal(t, 1, p.Store().Len())
	})

	t.Run("manual observations", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		clock.Advance(time.Second)
		p.HandlePose(Pose{Translation: r3.Vec{X: 1}, Rotation: yaw(0)})

		two := p.HandleLatLng(59.9, 10.7, 3)
		require.IsType(t, &alignment.Position2D{}, two)
		assert.Equal(t, r3.Vec{X: 3, Y: 3}, two.(*alignment.Position2D).WorldSD)
		o, _ := p.Origin()
		assert.Zero(t, o.H0)

		three := p.HandleLatLngH(59.9001, 10.7, 12, 2, 0.5)
		require.IsType(t, &alignment.Position3D{}, three)
		w := three.(*alignment.Position3D).World
		assert.InDelta(t, o.LatScale*0.0001, w.Y, 1e-6)
		assert.InDelta(t, 12, w.Z, 1e-9)

		pl := p.HandlePlanePoint(r3.Vec{Z: 1}, testPlane(), 0.2)
		assert.Equal(t, alignment.KindPointInPlane, pl.Kind())

		cloud := p.HandlePointCloud([]CloudPoint{{Position: r3.Vec{X: 1}}, {Position: r3.Vec{Y: 1}}}, nil, 0.3)
		assert.Len(t, cloud, 2)
		assert.Equal(t, 5, p.Store().Len())

		assert.True(t, p.RemoveObservation(cloud[0].ID()))
		assert.False(t, p.RemoveObservation(cloud[0].ID()))
		assert.True(t, p.RemoveObservations([]uuid.UUID{cloud[0].ID(), cloud[1].ID()}))
		assert.False(t, p.RemoveObservations([]uuid.UUID{cloud[1].ID()}))
		assert.Equal(t, 3, p.Store().Len())
	})
}

func testPlane() geometry.Plane {
	return geometry.Plane{Normal: r3.Vec{Z: 1}, D: 0}
}

func TestProviderOrientation(t *testing.T) {
	t.Parallel()

	p, clock := newTestProvider(t, WithMagneticModel(geodesy.ConstantDeclination(0.1)))
	clock.Advance(time.Second)
	p.HandlePose(Pose{Rotation: yaw(0.4)})

	// Declination is only known once the origin exists.
	obs := p.HandleCompassHeading(0.5, 0.2)
	require.NotNil(t, obs)
	assert.InDelta(t, -0.4-0.5, obs.(*alignment.Orientation).Heading, 1e-12)
	assert.Equal(t, 0.2, obs.(*alignment.Orientation).SD)

	// The first fix publishes the compass-only rotation.
	p.HandleLocation(Fix{Lat: 60, Lon: 10, Accuracy: 5})
	assert.Equal(t, rotationMatrix(-0.9), p.TransformMatrix())

	obs = p.HandleCompassHeading(0.5, 0.2)
	assert.InDelta(t, alignment.NormalizeAngle(-0.4-0.6), obs.(*alignment.Orientation).Heading, 1e-12)

	q := yaw(-0.5) // compass heading 0.5
	obs = p.HandleRotationVector([]float64{q.Imag, q.Jmag, q.Kmag, q.Real, 0.4})
	require.NotNil(t, obs)
	assert.InDelta(t, alignment.NormalizeAngle(-0.4-0.6), obs.(*alignment.Orientation).Heading, 1e-12)
	assert.InDelta(t, 0.2, obs.(*alignment.Orientation).SD, 1e-12)

	obs = p.HandleRotationVector([]float64{q.Imag, q.Jmag, q.Kmag})
	assert.InDelta(t, math.Pi/2, obs.(*alignment.Orientation).SD, 1e-12)
}

func TestProviderOriginListeners(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)

	var calls atomic.Int32
	var seen geodesy.Origin
	remove := p.AddOriginListener(func(o geodesy.Origin) {
		// Re-entering the provider must not deadlock.
		got, ok := p.Origin()
		assert.True(t, ok)
		assert.Equal(t, o, got)
		_ = p.TransformMatrix()
		seen = o
		calls.Add(1)
	})
	var other atomic.Int32
	removeOther := p.AddOriginListener(func(geodesy.Origin) { other.Add(1) })

	p.HandleLocation(Fix{Lat: 61, Lon: 9, Altitude: 10, Accuracy: 3})
	p.HandleLocation(Fix{Lat: 61.001, Lon: 9, Altitude: 10, Accuracy: 3})
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 61.0, seen.Lat0)

	removeOther()
	p.Reset()
	p.HandleLatLng(62, 8, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), other.Load())
	assert.Equal(t, 62.0, seen.Lat0)

	remove()
	remove()
	p.Reset()
	p.HandleLatLngH(63, 7, 5, 1, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProviderWorker(t *testing.T) {
	t.Parallel()

	t.Run("solves and publishes", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		p.Start(context.Background())
		defer p.Close()

		feed(p, clock, 0, 20)

		require.Eventually(t, func() bool {
			e := p.Estimate()
			return e.Accepted && e.Observations == p.Store().Len()
		}, 5*time.Second, 10*time.Millisecond)
		assert.Positive(t, p.Solves())

		e := p.Estimate()
		assert.True(t, e.Converged)
		testutil.AssertAngleInDelta(t, truth.Az, e.Parameters.Az, 0.01)
		assert.Equal(t, TransformMatrix(e.Parameters), p.TransformMatrix())

		loc, ok := p.Location()
		require.True(t, ok)
		assert.True(t, loc.Filtered)
		assert.Equal(t, clock.Now(), loc.Time)

		want := truth.Apply(devicePath(19))
		x, y, z := refOrg.ToLocal(loc.Lat, loc.Lon, loc.Height)
		assert.InDelta(t, want.X, x, 0.5)
		assert.InDelta(t, want.Y, y, 0.5)
		assert.InDelta(t, want.Z, z, 1.0)
		assert.Positive(t, loc.Accuracy)
		assert.Less(t, loc.Accuracy, 2.0)
		assert.GreaterOrEqual(t, loc.Bearing, 0.0)
		assert.Less(t, loc.Bearing, 360.0)

		// Without new poses the location is predicted forward.
		_, vel, ok := p.DeviceState()
		require.True(t, ok)
		clock.Advance(2 * time.Second)
		later, ok := p.Location()
		require.True(t, ok)
		assert.Equal(t, clock.Now(), later.Time)
		if math.Hypot(vel.X, vel.Y) > 0.5 {
			assert.NotEqual(t, loc.Lat, later.Lat)
		}

		// Undo re-solves over the remaining observations.
		before := p.Solves()
		first := p.Store().Snapshot()[0]
		require.True(t, p.RemoveObservation(first.ID()))
		require.Eventually(t, func() bool {
			return p.Solves() > before && p.Estimate().Observations == p.Store().Len()
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("needs position and orientation", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		p.Start(context.Background())
		defer p.Close()

		for k := 0; k < 5; k++ {
			clock.Advance(time.Second)
			d := devicePath(k)
			p.HandlePose(Pose{Translation: d, Rotation: yaw(0)})
			p.HandleLocation(fixFor(truth.Apply(d), clock.Now()))
		}
		p.Recompute()
		assert.Never(t, func() bool { return p.Solves() > 0 }, 200*time.Millisecond, 10*time.Millisecond)
		assert.False(t, p.Accepted())
	})

	t.Run("recompute forces a solve", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		p.Start(context.Background())
		defer p.Close()

		feed(p, clock, 0, 8)
		require.Eventually(t, func() bool {
			return p.Estimate().Observations == p.Store().Len()
		}, 5*time.Second, 10*time.Millisecond)

		before := p.Solves()
		p.Recompute()
		require.Eventually(t, func() bool { return p.Solves() > before }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("timer re-arms", func(t *testing.T) {
		t.Parallel()
		p, clock := newTestProvider(t)
		p.Start(context.Background())
		defer p.Close()

		require.Eventually(t, func() bool { return clock.ActiveTimers() == 1 }, time.Second, time.Millisecond)
		clock.Advance(5 * time.Second)
		require.Eventually(t, func() bool { return clock.ActiveTimers() == 1 }, time.Second, time.Millisecond)
		assert.Zero(t, p.Solves())
	})

	t.Run("start and close are idempotent", func(t *testing.T) {
		t.Parallel()
		p, _ := newTestProvider(t)
		p.Close()
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		p.Start(ctx)
		cancel()
		p.Close()
		p.Close()
	})
}

func TestProviderReset(t *testing.T) {
	t.Parallel()

	p, clock := newTestProvider(t)
	p.Start(context.Background())
	defer p.Close()

	feed(p, clock, 0, 15)
	require.Eventually(t, p.Accepted, 5*time.Second, 10*time.Millisecond)

	p.Reset()
	assert.False(t, p.Accepted())
	assert.Zero(t, p.Store().Len())
	assert.Equal(t, identityMatrix, p.TransformMatrix())
	_, ok := p.Origin()
	assert.False(t, ok)
	_, ok = p.Location()
	assert.False(t, ok)
	_, _, ok = p.DeviceState()
	assert.False(t, ok)

	// The provider is usable again after a reset.
	feed(p, clock, 0, 15)
	require.Eventually(t, func() bool {
		e := p.Estimate()
		return e.Accepted && e.Observations == p.Store().Len()
	}, 5*time.Second, 10*time.Millisecond)
}

// gatedSurface blocks the first surface lookup until release is closed,
// holding the worker inside a solve.
type gatedSurface struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSurface) SurfacePlane(x, y, z float64) (geometry.Plane, bool) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return geometry.Plane{}, false
}

func TestProviderResetDuringSolve(t *testing.T) {
	t.Parallel()

	p, clock := newTestProvider(t)
	gate := &gatedSurface{entered: make(chan struct{}), release: make(chan struct{})}
	feed(p, clock, 0, 8)
	p.Store().Add(alignment.NewPointInTerrain(r3.Vec{}, gate, 0.1))
	n := p.Store().Len()

	p.Start(context.Background())
	defer p.Close()
	<-gate.entered

	reset := make(chan struct{})
	go func() {
		defer close(reset)
		p.Reset()
	}()
	require.Eventually(t, func() bool { return p.Store().Len() == 0 }, 5*time.Second, time.Millisecond)

	// Refill to the size the in-flight solve saw, then let it finish.
	feed(p, clock, 100, 8)
	p.Store().Add(alignment.NewPointInTerrain(r3.Vec{}, gate, 0.1))
	require.Equal(t, n, p.Store().Len())
	close(gate.release)
	<-reset

	require.Eventually(t, func() bool {
		e := p.Estimate()
		return p.Solves() >= 2 && e.Observations == n
	}, 5*time.Second, 10*time.Millisecond)
}
