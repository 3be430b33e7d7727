package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/geodesy"
	"github.com/banshee-data/geoalign/internal/positioning"
	"github.com/banshee-data/geoalign/internal/terrain"
	"github.com/banshee-data/geoalign/internal/timeutil"
)

// Scenario describes a synthetic walk with a known device-to-world
// transform.
type Scenario struct {
	Steps int
	Seed  uint64
	Step  time.Duration

	Truth alignment.Parameters
	// DeviceYaw is the constant device heading in the device frame,
	// counter-clockwise radians.
	DeviceYaw float64

	RefLat, RefLon float64
	Zone           int

	FixNoise     float64
	FixAccuracy  float64
	CompassNoise float64
	CompassSD    float64
	// Every OutlierEvery-th fix is displaced by OutlierSize metres. Zero
	// disables outliers.
	OutlierEvery int
	OutlierSize  float64

	// Every CloudEvery steps a batch of CloudPoints terrain points is
	// observed. Zero disables point clouds.
	CloudEvery  int
	CloudPoints int
	CloudNoise  float64

	// Timeout bounds the wait for the final solve.
	Timeout time.Duration
}

// DefaultScenario returns a one minute walk with a gross fix error every
// 15 seconds and terrain matching every 5 seconds.
func DefaultScenario() Scenario {
	return Scenario{
		Steps:        60,
		Seed:         1,
		Step:         time.Second,
		Truth:        alignment.NewParameters(10, -5, 2, 0.3),
		DeviceYaw:    0.7,
		RefLat:       59.91,
		RefLon:       10.75,
		Zone:         32,
		FixNoise:     1.5,
		FixAccuracy:  2,
		CompassNoise: 0.05,
		CompassSD:    0.1,
		OutlierEvery: 15,
		OutlierSize:  25,
		CloudEvery:   5,
		CloudPoints:  8,
		CloudNoise:   0.05,
		Timeout:      10 * time.Second,
	}
}

// Validate checks the scenario for values the simulation cannot use.
func (sc Scenario) Validate() error {
	if sc.Steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", sc.Steps)
	}
	if sc.Step <= 0 {
		return fmt.Errorf("step must be positive, got %v", sc.Step)
	}
	if sc.Zone < 1 || sc.Zone > 60 {
		return fmt.Errorf("UTM zone must be in [1, 60], got %d", sc.Zone)
	}
	if !(sc.FixAccuracy > 0) || !(sc.CompassSD > 0) {
		return errors.New("fix accuracy and compass sd must be positive")
	}
	if sc.CloudEvery > 0 && (sc.CloudPoints < 1 || !(sc.CloudNoise > 0)) {
		return errors.New("point clouds need a positive point count and noise")
	}
	if sc.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", sc.Timeout)
	}
	return nil
}

// TrackPoint pairs the true world position of the device with the
// provider's filtered output, both in the reference local frame.
type TrackPoint struct {
	Truth       r3.Vec
	Filtered    r3.Vec
	HasFiltered bool
}

// Result summarises a simulation run.
type Result struct {
	Estimate      positioning.Estimate
	Location      positioning.Location
	Origin        geodesy.Origin
	AzError       float64
	LocationError float64
	Track         []TrackPoint
	Observations  []alignment.Observation
	Solves        uint64
}

// path is the device-frame position at step k: an ellipse with a slow
// climb.
func path(k int) r3.Vec {
	a := float64(k) * 0.2
	return r3.Vec{X: 15 * math.Cos(a), Y: 10 * math.Sin(a), Z: 0.02 * float64(k)}
}

// terrainHeight is the true terrain in the reference local frame.
func terrainHeight(x, y float64) float64 {
	return 1 + 0.04*x - 0.03*y + 0.5*math.Sin(x/12)
}

func yawQuat(theta float64) quat.Number {
	s, c := math.Sincos(theta / 2)
	return quat.Number{Real: c, Kmag: s}
}

// referenceOrigin is the frame the ground truth is expressed in.
func referenceOrigin(sc Scenario) geodesy.Origin {
	return geodesy.NewOrigin(sc.RefLat, sc.RefLon, 0)
}

// buildTerrain samples terrainHeight on a grid covering the walk.
func buildTerrain(sc Scenario, ref geodesy.Origin) (*terrain.Grid, error) {
	proj := geodesy.UTM(sc.Zone)
	n0, e0 := proj.Forward(sc.RefLat, sc.RefLon)
	const (
		half    = 60.0
		spacing = 2.0
	)
	nodes := int(2*half/spacing) + 1
	return terrain.GridFromFunc(nodes, nodes, n0+half, e0-half, spacing, proj, func(north, east float64) float64 {
		lat, lon := proj.Inverse(north, east)
		x, y, _ := ref.ToLocal(lat, lon, 0)
		return terrainHeight(x, y) + ref.H0
	})
}

// cloudAround returns device-frame points on the terrain near the
// device's true world position w.
func cloudAround(rng *rand.Rand, sc Scenario, w r3.Vec) []positioning.CloudPoint {
	pts := make([]positioning.CloudPoint, sc.CloudPoints)
	for i := range pts {
		x := w.X + (rng.Float64()*2-1)*6
		y := w.Y + (rng.Float64()*2-1)*6
		z := terrainHeight(x, y) + rng.NormFloat64()*sc.CloudNoise
		dx, dy, dz := sc.Truth.ToDevice(x, y, z)
		pts[i] = positioning.CloudPoint{Position: r3.Vec{X: dx, Y: dy, Z: dz}, Confidence: 1}
	}
	return pts
}

// Run drives a provider through the scenario and waits for a solve over
// every observation.
func Run(ctx context.Context, sc Scenario, cfg positioning.ProviderConfig) (Result, error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	prov, err := positioning.NewProvider(cfg, positioning.WithClock(clock))
	if err != nil {
		return Result{}, fmt.Errorf("create provider: %w", err)
	}
	prov.Start(ctx)
	defer prov.Close()

	ref := referenceOrigin(sc)
	var grid *terrain.Grid
	if sc.CloudEvery > 0 {
		if grid, err = buildTerrain(sc, ref); err != nil {
			return Result{}, fmt.Errorf("build terrain: %w", err)
		}
	}

	origins := make(chan geodesy.Origin, 1)
	remove := prov.AddOriginListener(func(o geodesy.Origin) {
		select {
		case origins <- o:
		default:
		}
	})
	defer remove()

	rng := rand.New(rand.NewPCG(sc.Seed, sc.Seed^0x5851f42d4c957f2d))
	headings := make(chan float64)
	clouds := make(chan []positioning.CloudPoint)
	track := make([]TrackPoint, 0, sc.Steps)

	g, gctx := errgroup.WithContext(ctx)

	// Device tracker and location service.
	g.Go(func() error {
		defer close(headings)
		defer close(clouds)
		trueHeading := -sc.DeviceYaw - sc.Truth.Az
		for k := 0; k < sc.Steps; k++ {
			clock.Advance(sc.Step)
			d := path(k)
			prov.HandlePose(positioning.Pose{Translation: d, Rotation: yawQuat(sc.DeviceYaw)})

			wx, wy, wz := sc.Truth.ToWorld(d.X, d.Y, d.Z)
			w := r3.Vec{X: wx, Y: wy, Z: wz}
			noisy := r3.Vec{
				X: w.X + rng.NormFloat64()*sc.FixNoise,
				Y: w.Y + rng.NormFloat64()*sc.FixNoise,
				Z: w.Z + rng.NormFloat64()*sc.FixNoise*2,
			}
			if sc.OutlierEvery > 0 && k > 0 && k%sc.OutlierEvery == 0 {
				noisy.X += sc.OutlierSize
			}
			lat, lon, h := ref.FromLocal(noisy.X, noisy.Y, noisy.Z)
			prov.HandleLocation(positioning.Fix{Lat: lat, Lon: lon, Altitude: h, Accuracy: sc.FixAccuracy, Time: clock.Now()})

			tp := TrackPoint{Truth: w}
			if loc, ok := prov.Location(); ok && loc.Filtered {
				x, y, z := ref.ToLocal(loc.Lat, loc.Lon, loc.Height)
				tp.Filtered, tp.HasFiltered = r3.Vec{X: x, Y: y, Z: z}, true
			}
			track = append(track, tp)

			select {
			case headings <- trueHeading + rng.NormFloat64()*sc.CompassNoise:
			case <-gctx.Done():
				return gctx.Err()
			}
			if sc.CloudEvery > 0 && k%sc.CloudEvery == 0 {
				select {
				case clouds <- cloudAround(rng, sc, w):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	// Compass.
	g.Go(func() error {
		for h := range headings {
			prov.HandleCompassHeading(h, sc.CompassSD)
		}
		return nil
	})

	// Depth sensor matched against the terrain model.
	g.Go(func() error {
		var surf alignment.SurfaceModel
		for batch := range clouds {
			if surf == nil {
				select {
				case o := <-origins:
					surf = grid.WithOrigin(o)
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			prov.HandlePointCloud(batch, surf, sc.CloudNoise*2)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if err := waitForSolve(ctx, prov, sc.Timeout); err != nil {
		return Result{}, err
	}

	res := Result{
		Estimate:     prov.Estimate(),
		Track:        track,
		Observations: prov.Store().Snapshot(),
		Solves:       prov.Solves(),
	}
	res.Origin, _ = prov.Origin()
	res.AzError = alignment.NormalizeAngle(res.Estimate.Parameters.Az - sc.Truth.Az)
	res.LocationError = math.NaN()
	if loc, ok := prov.Location(); ok {
		res.Location = loc
		x, y, z := ref.ToLocal(loc.Lat, loc.Lon, loc.Height)
		res.LocationError = r3.Norm(r3.Sub(r3.Vec{X: x, Y: y, Z: z}, track[len(track)-1].Truth))
	}
	return res, nil
}

// waitForSolve polls until the worker has solved over the whole store.
func waitForSolve(ctx context.Context, prov *positioning.Provider, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if prov.Solves() > 0 && prov.Estimate().Observations == prov.Store().Len() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for solve over %d observations: %w", prov.Store().Len(), ctx.Err())
		case <-ticker.C:
		}
	}
}
