package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// PerspectiveCamera is a pinhole camera with a vertical field of view.
type PerspectiveCamera struct {
	FOV    float64 // vertical, degrees
	Aspect float64
	Near   float64
	Far    float64

	Position r3.Vec
	Target   r3.Vec
	Up       r3.Vec

	// basis, rebuilt by LookAt
	right, up, forward r3.Vec
	tanHalf            float64
}

// NewPerspectiveCamera returns a camera at the origin looking down -Z.
func NewPerspectiveCamera(fov, aspect, near, far float64) *PerspectiveCamera {
	c := &PerspectiveCamera{
		FOV:    fov,
		Aspect: aspect,
		Near:   near,
		Far:    far,
		Up:     r3.Vec{Y: 1},
		Target: r3.Vec{Z: -1},
	}
	c.UpdateProjection()
	c.LookAt(c.Target)
	return c
}

// SetPosition moves the camera and keeps its current target.
func (c *PerspectiveCamera) SetPosition(p r3.Vec) {
	c.Position = p
	c.LookAt(c.Target)
}

// LookAt orients the camera towards target.
func (c *PerspectiveCamera) LookAt(target r3.Vec) {
	c.Target = target
	f := r3.Sub(target, c.Position)
	if r3.Norm(f) == 0 {
		f = r3.Vec{Z: -1}
	}
	c.forward = r3.Unit(f)
	right := r3.Cross(c.forward, c.Up)
	if r3.Norm(right) == 0 {
		right = r3.Vec{X: 1}
	}
	c.right = r3.Unit(right)
	c.up = r3.Cross(c.right, c.forward)
}

// SetAspect updates the aspect ratio and the projection.
func (c *PerspectiveCamera) SetAspect(aspect float64) {
	c.Aspect = aspect
	c.UpdateProjection()
}

// UpdateProjection recomputes cached projection terms after FOV, Aspect,
// Near or Far change.
func (c *PerspectiveCamera) UpdateProjection() {
	c.tanHalf = math.Tan(c.FOV * math.Pi / 360)
}

// Project maps a world point to normalised device coordinates in [-1, 1]
// and returns its view depth. ok is false when the point lies outside the
// near/far range or the view frustum.
func (c *PerspectiveCamera) Project(p r3.Vec) (ndc r3.Vec, depth float64, ok bool) {
	rel := r3.Sub(p, c.Position)
	depth = r3.Dot(rel, c.forward)
	if depth < c.Near || depth > c.Far || c.Aspect <= 0 {
		return r3.Vec{}, depth, false
	}
	ndc = r3.Vec{
		X: r3.Dot(rel, c.right) / (depth * c.tanHalf * c.Aspect),
		Y: r3.Dot(rel, c.up) / (depth * c.tanHalf),
		Z: (depth - c.Near) / (c.Far - c.Near),
	}
	ok = math.Abs(ndc.X) <= 1 && math.Abs(ndc.Y) <= 1
	return ndc, depth, ok
}
