package positioning

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/geodesy"
	"github.com/banshee-data/geoalign/internal/geometry"
	"github.com/banshee-data/geoalign/internal/kalman"
)

// HandlePose feeds one tracker sample into the Kalman filter and records
// the device heading.
func (p *Provider) HandlePose(pose Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.predictLocked(p.clock.Now())
	z := []float64{pose.Translation.X, pose.Translation.Y, pose.Translation.Z}
	if err := p.filter.Update(kalman.PositionModel(), z, positionUpdate(p.cfg.DevicePositionVariance)); err != nil {
		diagf("pose update skipped: %v", err)
		return
	}
	p.deviceDir = Heading(pose.Rotation)
	p.havePose = true
	tracef("pose %.3f %.3f %.3f heading %.4f", z[0], z[1], z[2], p.deviceDir)
}

// HandleLocation records a geographic fix. The first fix establishes the
// origin. Once the device track has started, the fix is paired with the
// predicted device position and stored as a 3D position observation,
// which is returned. It returns nil when no observation was stored.
func (p *Provider) HandleLocation(fix Fix) alignment.Observation {
	obs, origin, created := p.handleLocation(fix)
	if created {
		p.notifyOrigin(origin)
	}
	if obs != nil {
		p.store.Add(obs)
	}
	return obs
}

func (p *Provider) handleLocation(fix Fix) (alignment.Observation, geodesy.Origin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := fix
	p.lastFix = &f

	n := p.geoid.GeoidHeight(fix.Lat, fix.Lon)
	created := false
	if !p.hasOrigin {
		p.establishOriginLocked(fix.Lat, fix.Lon, fix.Altitude-n, fix.Altitude)
		created = true
	}
	x, y, z := p.origin.ToLocal(fix.Lat, fix.Lon, fix.Altitude-n)
	worldSD := r3.Vec{X: fix.Accuracy, Y: fix.Accuracy, Z: fix.Accuracy * p.cfg.VerticalAccuracyFactor}

	return p.pairLocked(r3.Vec{X: x, Y: y, Z: z}, worldSD, true), p.origin, created
}

// HandleLatLng records a horizontal position picked on a map, with
// accuracy as its standard deviation in metres.
func (p *Provider) HandleLatLng(lat, lon, accuracy float64) alignment.Observation {
	obs, origin, created := p.handleManual(lat, lon, 0, r3.Vec{X: accuracy, Y: accuracy}, false)
	if created {
		p.notifyOrigin(origin)
	}
	if obs != nil {
		p.store.Add(obs)
	}
	return obs
}

// HandleLatLngH records a 3D position picked on a map, with a height
// typically taken from a terrain model.
func (p *Provider) HandleLatLngH(lat, lon, h, hAccuracy, vAccuracy float64) alignment.Observation {
	obs, origin, created := p.handleManual(lat, lon, h, r3.Vec{X: hAccuracy, Y: hAccuracy, Z: vAccuracy}, true)
	if created {
		p.notifyOrigin(origin)
	}
	if obs != nil {
		p.store.Add(obs)
	}
	return obs
}

func (p *Provider) handleManual(lat, lon, h float64, worldSD r3.Vec, threeD bool) (alignment.Observation, geodesy.Origin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	created := false
	if !p.hasOrigin {
		p.establishOriginLocked(lat, lon, h, h)
		created = true
	}
	x, y, z := p.origin.ToLocal(lat, lon, h)
	if !threeD {
		z = 0
	}
	return p.pairLocked(r3.Vec{X: x, Y: y, Z: z}, worldSD, threeD), p.origin, created
}

// pairLocked builds a position observation from a world point and the
// device position predicted to now. It returns nil before the first pose.
func (p *Provider) pairLocked(world, worldSD r3.Vec, threeD bool) alignment.Observation {
	if !p.havePose {
		return nil
	}
	p.predictLocked(p.clock.Now())
	device := p.devicePositionLocked()
	sd := p.cfg.DevicePointSD
	if threeD {
		return alignment.NewPosition3D(device, world, r3.Vec{X: sd, Y: sd, Z: sd}, worldSD)
	}
	device.Z = 0
	return alignment.NewPosition2D(device, world, r3.Vec{X: sd, Y: sd}, worldSD)
}

// HandleRotationVector records a rotation-vector sensor reading
// [x, y, z, w, accuracy] as an orientation observation. The optional
// fifth element is the heading accuracy in radians. It returns nil when
// the sample is unusable or no pose has been received.
func (p *Provider) HandleRotationVector(rv []float64) alignment.Observation {
	q, ok := RotationVectorQuat(rv)
	if !ok {
		return nil
	}
	sd := p.cfg.DefaultCompassSD
	if len(rv) > 4 && rv[4] > 0 {
		sd = rv[4] / 2
	}
	return p.HandleCompassHeading(Heading(q), sd)
}

// HandleCompassHeading records a magnetic compass heading, in radians
// clockwise from magnetic north, as an orientation observation relating
// the device heading to true north.
func (p *Provider) HandleCompassHeading(heading, sd float64) alignment.Observation {
	p.mu.Lock()
	if !p.havePose {
		p.mu.Unlock()
		return nil
	}
	trueHeading := heading + p.declination
	p.compassAz = alignment.NormalizeAngle(p.deviceDir - trueHeading)
	obs := alignment.NewOrientation(p.compassAz, sd)
	p.mu.Unlock()

	p.store.Add(obs)
	return obs
}

// HandlePointCloud records every point as lying on surf with standard
// deviation sd, and returns the new observations.
func (p *Provider) HandlePointCloud(points []CloudPoint, surf alignment.SurfaceModel, sd float64) []alignment.Observation {
	obs := make([]alignment.Observation, 0, len(points))
	for _, pt := range points {
		obs = append(obs, alignment.NewPointInTerrain(pt.Position, surf, sd))
	}
	p.store.AddAll(obs)
	return obs
}

// HandlePlanePoint records a device point known to lie on a world plane.
func (p *Provider) HandlePlanePoint(device r3.Vec, plane geometry.Plane, sd float64) alignment.Observation {
	obs := alignment.NewPointInPlane(device, plane, sd)
	p.store.Add(obs)
	return obs
}

// RemoveObservation drops one observation, typically to undo a manual
// calibration point, and reports whether it was present.
func (p *Provider) RemoveObservation(id uuid.UUID) bool {
	return p.store.Remove(id)
}

// RemoveObservations drops every listed observation and reports whether
// at least one was present.
func (p *Provider) RemoveObservations(ids []uuid.UUID) bool {
	return p.store.RemoveAll(ids) > 0
}
