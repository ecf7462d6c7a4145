package scenestream

import (
	"time"

	"github.com/banshee-data/pathview/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/types/known/structpb"
)

func vec(v r3.Vec) []interface{} {
	return []interface{}{v.X, v.Y, v.Z}
}

// FrameToStruct encodes a frame, keeping only objects whose tag is in tags
// (all objects when tags is empty).
func FrameToStruct(f *scene.Frame, tags []scene.Tag) (*structpb.Struct, error) {
	objects := make([]interface{}, 0, len(f.Objects))
	for _, o := range f.Objects {
		if !wanted(o.Tag, tags) {
			continue
		}
		points := make([]interface{}, len(o.Points))
		for i, pt := range o.Points {
			points[i] = []interface{}{pt[0], pt[1]}
		}
		objects = append(objects, map[string]interface{}{
			"id":       o.ID,
			"kind":     string(o.Kind),
			"name":     o.Name,
			"tag":      string(o.Tag),
			"geometry": string(o.Geometry),
			"material": string(o.Material),
			"color":    o.Color,
			"depth":    o.Depth,
			"points":   points,
		})
	}

	return structpb.NewStruct(map[string]interface{}{
		"number":      float64(f.Number),
		"time":        f.Time.UTC().Format(time.RFC3339Nano),
		"width":       float64(f.Width),
		"height":      float64(f.Height),
		"pixel_ratio": f.PixelRatio,
		"background":  f.Background,
		"camera": map[string]interface{}{
			"position": vec(f.Camera.Position),
			"target":   vec(f.Camera.Target),
			"fov":      f.Camera.FOV,
			"aspect":   f.Camera.Aspect,
		},
		"objects": objects,
	})
}

func wanted(tag scene.Tag, tags []scene.Tag) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
