package scene

import (
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// Resources accounts live GPU-side allocations. Every Geometry and Material
// is created through a Resources and must be disposed exactly once; the
// counters let callers prove that purge and teardown do not leak.
type Resources struct {
	geometries atomic.Int64
	materials  atomic.Int64
}

// MemoryInfo is a snapshot of live allocations.
type MemoryInfo struct {
	Geometries int64 `json:"geometries"`
	Materials  int64 `json:"materials"`
}

// Info returns the number of live geometries and materials.
func (r *Resources) Info() MemoryInfo {
	return MemoryInfo{
		Geometries: r.geometries.Load(),
		Materials:  r.materials.Load(),
	}
}

// GeometryKind names a geometry primitive.
type GeometryKind string

const (
	GeometryPolyline GeometryKind = "polyline"
	GeometrySphere   GeometryKind = "sphere"
	GeometryBox      GeometryKind = "box"
	GeometryGrid     GeometryKind = "grid"
)

// Geometry is vertex data owned by the GPU. Sphere and box geometries are
// centred on their object's position; polyline vertices are in world space.
type Geometry struct {
	Kind     GeometryKind
	Vertices []r3.Vec
	// LineDistances holds the cumulative length at each polyline vertex,
	// required for dashed rendering.
	LineDistances []float64
	Radius        float64
	Size          float64
	Divisions     int

	res      *Resources
	disposed atomic.Bool
}

// Dispose releases the geometry. Repeated calls are no-ops.
func (g *Geometry) Dispose() {
	if g == nil || !g.disposed.CompareAndSwap(false, true) {
		return
	}
	g.res.geometries.Add(-1)
}

// Disposed reports whether Dispose has been called. A nil geometry is
// never disposed.
func (g *Geometry) Disposed() bool { return g != nil && g.disposed.Load() }

// MaterialKind names a shading model.
type MaterialKind string

const (
	MaterialLineBasic  MaterialKind = "line-basic"
	MaterialLineDashed MaterialKind = "line-dashed"
	MaterialStandard   MaterialKind = "mesh-standard"
)

// Material describes how a geometry is shaded.
type Material struct {
	Kind     MaterialKind
	Color    Color
	DashSize float64
	GapSize  float64

	res      *Resources
	disposed atomic.Bool
}

// Dispose releases the material. Repeated calls are no-ops.
func (m *Material) Dispose() {
	if m == nil || !m.disposed.CompareAndSwap(false, true) {
		return
	}
	m.res.materials.Add(-1)
}

// Disposed reports whether Dispose has been called. A nil material is
// never disposed.
func (m *Material) Disposed() bool { return m != nil && m.disposed.Load() }

func (r *Resources) geometry(g *Geometry) *Geometry {
	g.res = r
	r.geometries.Add(1)
	return g
}

// NewPolyline allocates a polyline through points in order and computes its
// line distances.
func (r *Resources) NewPolyline(points []r3.Vec) *Geometry {
	verts := make([]r3.Vec, len(points))
	copy(verts, points)
	dist := make([]float64, len(verts))
	for i := 1; i < len(verts); i++ {
		dist[i] = dist[i-1] + r3.Norm(r3.Sub(verts[i], verts[i-1]))
	}
	return r.geometry(&Geometry{Kind: GeometryPolyline, Vertices: verts, LineDistances: dist})
}

// NewSphere allocates a sphere geometry.
func (r *Resources) NewSphere(radius float64) *Geometry {
	return r.geometry(&Geometry{Kind: GeometrySphere, Radius: radius})
}

// NewBox allocates a cube geometry with the given edge length.
func (r *Resources) NewBox(size float64) *Geometry {
	return r.geometry(&Geometry{Kind: GeometryBox, Size: size})
}

// NewGrid allocates a square ground grid in the XZ plane.
func (r *Resources) NewGrid(size float64, divisions int) *Geometry {
	half := size / 2
	verts := make([]r3.Vec, 0, 4*(divisions+1))
	step := size / float64(divisions)
	for i := 0; i <= divisions; i++ {
		k := -half + float64(i)*step
		verts = append(verts,
			r3.Vec{X: -half, Z: k}, r3.Vec{X: half, Z: k},
			r3.Vec{X: k, Z: -half}, r3.Vec{X: k, Z: half},
		)
	}
	return r.geometry(&Geometry{Kind: GeometryGrid, Vertices: verts, Size: size, Divisions: divisions})
}

// NewMaterial allocates a material.
func (r *Resources) NewMaterial(kind MaterialKind, color Color) *Material {
	r.materials.Add(1)
	return &Material{Kind: kind, Color: color, res: r}
}

// NewDashedMaterial allocates a dashed line material.
func (r *Resources) NewDashedMaterial(color Color, dash, gap float64) *Material {
	m := r.NewMaterial(MaterialLineDashed, color)
	m.DashSize = dash
	m.GapSize = gap
	return m
}
