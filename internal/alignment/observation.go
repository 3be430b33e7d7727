package alignment

import (
	"sync"

	"github.com/banshee-data/geoalign/internal/geometry"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind identifies an observation variant.
type Kind int

const (
	KindPosition2D Kind = iota
	KindPosition3D
	KindOrientation
	KindPointInPlane
	KindPointInTerrain
)

func (k Kind) String() string {
	switch k {
	case KindPosition2D:
		return "position2d"
	case KindPosition3D:
		return "position3d"
	case KindOrientation:
		return "orientation"
	case KindPointInPlane:
		return "point_in_plane"
	case KindPointInTerrain:
		return "point_in_terrain"
	default:
		return "unknown"
	}
}

// IsPosition reports whether k pairs a device point with a world point.
func (k Kind) IsPosition() bool { return k == KindPosition2D || k == KindPosition3D }

// Residuals are the a posteriori diagnostics of one observation from the
// most recent reweighting. V and SD are indexed like the observation
// vector of the variant (device components first, then world).
type Residuals struct {
	V          []float64
	SD         []float64
	Normalized float64
	Weight     float64
}

// Observation is one of *Position2D, *Position3D, *Orientation,
// *PointInPlane or *PointInTerrain.
type Observation interface {
	ID() uuid.UUID
	Kind() Kind

	// Residuals returns a copy of the latest diagnostics.
	Residuals() Residuals

	setResiduals(Residuals)
	equations(p Parameters, cfg *Config) (modelEquations, bool)
}

// SurfaceModel finds the plane of the surface facet nearest to a world
// point. *terrain.Grid implements it.
type SurfaceModel interface {
	SurfacePlane(x, y, z float64) (geometry.Plane, bool)
}

type base struct {
	id uuid.UUID

	mu  sync.Mutex
	res Residuals
}

func (b *base) ID() uuid.UUID { return b.id }

func (b *base) Residuals() Residuals {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.res
	r.V = append([]float64(nil), b.res.V...)
	r.SD = append([]float64(nil), b.res.SD...)
	return r
}

func (b *base) setResiduals(r Residuals) {
	b.mu.Lock()
	b.res = r
	b.mu.Unlock()
}

// Position2D is a point seen in both frames, using only x and y. The Z
// components of its vectors are ignored.
type Position2D struct {
	base
	Device, World     r3.Vec
	DeviceSD, WorldSD r3.Vec
}

// NewPosition2D creates a horizontal point pair with per-axis a priori
// standard deviations.
func NewPosition2D(device, world, deviceSD, worldSD r3.Vec) *Position2D {
	return &Position2D{base: base{id: uuid.New(), res: Residuals{Weight: 1}}, Device: device, World: world, DeviceSD: deviceSD, WorldSD: worldSD}
}

// Kind implements Observation.
func (*Position2D) Kind() Kind { return KindPosition2D }

// Position3D is a point seen in both frames.
type Position3D struct {
	base
	Device, World     r3.Vec
	DeviceSD, WorldSD r3.Vec
}

// NewPosition3D creates a point pair with per-axis a priori standard
// deviations.
func NewPosition3D(device, world, deviceSD, worldSD r3.Vec) *Position3D {
	return &Position3D{base: base{id: uuid.New(), res: Residuals{Weight: 1}}, Device: device, World: world, DeviceSD: deviceSD, WorldSD: worldSD}
}

// Kind implements Observation.
func (*Position3D) Kind() Kind { return KindPosition3D }

// Orientation observes Az directly, typically from a compass: the heading
// of the world north axis in the device frame.
type Orientation struct {
	base
	Heading float64 // radians
	SD      float64 // radians
}

// NewOrientation creates a heading observation.
func NewOrientation(heading, sd float64) *Orientation {
	return &Orientation{base: base{id: uuid.New(), res: Residuals{Weight: 1}}, Heading: heading, SD: sd}
}

// Kind implements Observation.
func (*Orientation) Kind() Kind { return KindOrientation }

// PointInPlane constrains a device point to a known world plane. The plane
// normal must be a unit vector.
type PointInPlane struct {
	base
	Device r3.Vec
	Plane  geometry.Plane
	SD     float64
}

// NewPointInPlane creates a point-on-plane observation.
func NewPointInPlane(device r3.Vec, plane geometry.Plane, sd float64) *PointInPlane {
	return &PointInPlane{base: base{id: uuid.New(), res: Residuals{Weight: 1}}, Device: device, Plane: plane, SD: sd}
}

// Kind implements Observation.
func (*PointInPlane) Kind() Kind { return KindPointInPlane }

// PointInTerrain constrains a device point to a terrain surface. The
// target facet is looked up at the point's current world position every
// time equations are built.
type PointInTerrain struct {
	base
	Device  r3.Vec
	Surface SurfaceModel
	SD      float64
}

// NewPointInTerrain creates a point-on-terrain observation.
func NewPointInTerrain(device r3.Vec, surface SurfaceModel, sd float64) *PointInTerrain {
	return &PointInTerrain{base: base{id: uuid.New(), res: Residuals{Weight: 1}}, Device: device, Surface: surface, SD: sd}
}

// Kind implements Observation.
func (*PointInTerrain) Kind() Kind { return KindPointInTerrain }
