// Package scene is a retained-mode 3D scene graph: objects with geometry and
// material, a perspective camera, and a renderer that projects the scene into
// frames for the browser-facing outputs.
package scene

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Color is a 24-bit RGB value, 0xRRGGBB.
type Color uint32

// Hex returns the CSS form, e.g. "#00aaff".
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

// Tag marks who owns an object so a whole group can be found and purged
// without a separate registry.
type Tag string

const (
	TagNone   Tag = ""
	TagPath   Tag = "path"
	TagHelper Tag = "helper"
)

// ObjectKind names the type of a scene object.
type ObjectKind string

const (
	KindLine             ObjectKind = "line"
	KindMesh             ObjectKind = "mesh"
	KindGrid             ObjectKind = "grid"
	KindDirectionalLight ObjectKind = "directional-light"
	KindAmbientLight     ObjectKind = "ambient-light"
)

// Object is a node in the scene.
type Object struct {
	ID       string
	Kind     ObjectKind
	Name     string
	Tag      Tag
	Position r3.Vec

	Geometry *Geometry
	Material *Material

	// Lights only.
	Color     Color
	Intensity float64
}

// NewObject creates an object with a fresh ID.
func NewObject(kind ObjectKind, name string, tag Tag) *Object {
	return &Object{ID: uuid.NewString(), Kind: kind, Name: name, Tag: tag}
}

// Dispose releases the object's geometry and material.
func (o *Object) Dispose() {
	o.Geometry.Dispose()
	o.Material.Dispose()
}

// Scene holds the object graph. It is safe for concurrent use, but the
// viewer mutates it from a single goroutine; other readers take snapshots.
type Scene struct {
	Background Color

	mu       sync.RWMutex
	children []*Object
	res      *Resources
}

// New creates an empty scene whose objects allocate from res.
func New(background Color, res *Resources) *Scene {
	if res == nil {
		res = &Resources{}
	}
	return &Scene{Background: background, res: res}
}

// Resources returns the allocator shared by the scene's objects.
func (s *Scene) Resources() *Resources { return s.res }

// Add appends objects to the scene.
func (s *Scene) Add(objs ...*Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, objs...)
}

// RemoveWhere detaches every object matching pred and returns them in scene
// order. The caller owns the returned objects.
func (s *Scene) RemoveWhere(pred func(*Object) bool) []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*Object
	kept := s.children[:0]
	for _, c := range s.children {
		if pred(c) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(s.children); i++ {
		s.children[i] = nil
	}
	s.children = kept
	return removed
}

// PurgeTag removes and disposes every object carrying tag, returning how
// many were removed.
func (s *Scene) PurgeTag(tag Tag) int {
	removed := s.RemoveWhere(func(o *Object) bool { return o.Tag == tag })
	for _, o := range removed {
		o.Dispose()
	}
	return len(removed)
}

// Children returns a copy of the current child list.
func (s *Scene) Children() []*Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Object, len(s.children))
	copy(out, s.children)
	return out
}

// Len returns the number of children.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.children)
}

// Census counts tagged objects by their primitive: lines, spheres, cubes.
type Census struct {
	Lines   int `json:"lines"`
	Spheres int `json:"spheres"`
	Cubes   int `json:"cubes"`
	Total   int `json:"total"`
}

// CountTag returns a census of objects carrying tag.
func (s *Scene) CountTag(tag Tag) Census {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Census
	for _, o := range s.children {
		if o.Tag != tag {
			continue
		}
		c.Total++
		switch {
		case o.Kind == KindLine:
			c.Lines++
		case o.Geometry != nil && o.Geometry.Kind == GeometrySphere:
			c.Spheres++
		case o.Geometry != nil && o.Geometry.Kind == GeometryBox:
			c.Cubes++
		}
	}
	return c
}

// Dispose removes every object and releases its resources.
func (s *Scene) Dispose() {
	removed := s.RemoveWhere(func(*Object) bool { return true })
	for _, o := range removed {
		o.Dispose()
	}
}
