package scene

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Frame is an immutable snapshot of one rendered frame. Screen coordinates
// are in drawing-buffer pixels with the origin at the top left.
type Frame struct {
	Number     uint64        `json:"number"`
	Time       time.Time     `json:"time"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	PixelRatio float64       `json:"pixel_ratio"`
	Background string        `json:"background"`
	Camera     FrameCamera   `json:"camera"`
	Objects    []FrameObject `json:"objects"`
}

// FrameCamera is the camera state a frame was rendered with.
type FrameCamera struct {
	Position r3.Vec  `json:"position"`
	Target   r3.Vec  `json:"target"`
	FOV      float64 `json:"fov"`
	Aspect   float64 `json:"aspect"`
}

// FrameObject is one visible object. Lines carry one screen point per
// visible vertex; meshes carry their projected centre.
type FrameObject struct {
	ID       string       `json:"id"`
	Kind     ObjectKind   `json:"kind"`
	Name     string       `json:"name,omitempty"`
	Tag      Tag          `json:"tag,omitempty"`
	Geometry GeometryKind `json:"geometry,omitempty"`
	Material MaterialKind `json:"material,omitempty"`
	Color    string       `json:"color,omitempty"`
	Depth    float64      `json:"depth"`
	Points   [][2]float64 `json:"points"`
}

// Count returns how many objects in the frame carry tag.
func (f *Frame) Count(tag Tag) int {
	n := 0
	for _, o := range f.Objects {
		if o.Tag == tag {
			n++
		}
	}
	return n
}

func projectObject(o *Object, cam *PerspectiveCamera, w, h int) (FrameObject, bool) {
	fo := FrameObject{
		ID:   o.ID,
		Kind: o.Kind,
		Name: o.Name,
		Tag:  o.Tag,
	}
	if o.Geometry != nil {
		fo.Geometry = o.Geometry.Kind
	}
	if o.Material != nil {
		fo.Material = o.Material.Kind
		fo.Color = o.Material.Color.Hex()
	}

	switch o.Kind {
	case KindAmbientLight, KindDirectionalLight:
		fo.Color = o.Color.Hex()
		return fo, true
	}

	var verts []r3.Vec
	if o.Geometry != nil && len(o.Geometry.Vertices) > 0 {
		verts = make([]r3.Vec, len(o.Geometry.Vertices))
		for i, v := range o.Geometry.Vertices {
			verts[i] = r3.Add(v, o.Position)
		}
	} else {
		verts = []r3.Vec{o.Position}
	}

	depth := 0.0
	for _, v := range verts {
		ndc, d, ok := cam.Project(v)
		if !ok {
			continue
		}
		fo.Points = append(fo.Points, [2]float64{
			(ndc.X + 1) / 2 * float64(w),
			(1 - ndc.Y) / 2 * float64(h),
		})
		if len(fo.Points) == 1 || d < depth {
			depth = d
		}
	}
	if len(fo.Points) == 0 {
		return fo, false
	}
	fo.Depth = depth
	return fo, true
}
