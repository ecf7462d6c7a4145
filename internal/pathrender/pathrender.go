// Package pathrender turns a robot path into scene primitives: one dashed
// polyline, a sphere per waypoint and a cube per waypoint that carries a
// grasp action. Every primitive is tagged scene.TagPath and the whole set is
// replaced on each call.
package pathrender

import (
	"strconv"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinWaypoints is the shortest path that renders anything.
const MinWaypoints = 2

// Style holds the colours and sizes of path primitives.
type Style struct {
	LineColor    scene.Color
	DashSize     float64
	GapSize      float64
	VertexColor  scene.Color
	VertexRadius float64
	GraspClose   scene.Color
	GraspOpen    scene.Color
	GraspSize    float64
}

// DefaultStyle is used by Replace.
var DefaultStyle = Style{
	LineColor:    0x00aaff,
	DashSize:     0.1,
	GapSize:      0.05,
	VertexColor:  0xffffff,
	VertexRadius: 0.03,
	GraspClose:   0x00ff00,
	GraspOpen:    0xff0000,
	GraspSize:    0.06,
}

// Replace purges every path-tagged object from s and, if p has at least
// MinWaypoints waypoints, adds the primitives describing it. It returns the
// resulting census of path-tagged objects.
func Replace(s *scene.Scene, p *feed.Path) scene.Census {
	return DefaultStyle.Replace(s, p)
}

// Replace is Replace with this style.
func (st Style) Replace(s *scene.Scene, p *feed.Path) scene.Census {
	s.PurgeTag(scene.TagPath)
	if p.Len() < MinWaypoints {
		return scene.Census{}
	}

	res := s.Resources()
	objs := make([]*scene.Object, 0, 1+2*len(p.Points))

	verts := make([]r3.Vec, len(p.Points))
	for i, w := range p.Points {
		verts[i] = w.Vec()
	}
	line := scene.NewObject(scene.KindLine, "path", scene.TagPath)
	line.Geometry = res.NewPolyline(verts)
	line.Material = res.NewDashedMaterial(st.LineColor, st.DashSize, st.GapSize)
	objs = append(objs, line)

	census := scene.Census{Lines: 1}
	for i, w := range p.Points {
		v := scene.NewObject(scene.KindMesh, vertexName(i), scene.TagPath)
		v.Position = w.Vec()
		v.Geometry = res.NewSphere(st.VertexRadius)
		v.Material = res.NewMaterial(scene.MaterialStandard, st.VertexColor)
		objs = append(objs, v)
		census.Spheres++

		if w.Grasp == nil {
			continue
		}
		color := st.GraspOpen
		if *w.Grasp {
			color = st.GraspClose
		}
		c := scene.NewObject(scene.KindMesh, graspName(i, *w.Grasp), scene.TagPath)
		c.Position = w.Vec()
		c.Geometry = res.NewBox(st.GraspSize)
		c.Material = res.NewMaterial(scene.MaterialStandard, color)
		objs = append(objs, c)
		census.Cubes++
	}

	s.Add(objs...)
	census.Total = len(objs)
	return census
}

func vertexName(i int) string {
	return "waypoint-" + strconv.Itoa(i)
}

func graspName(i int, closed bool) string {
	if closed {
		return "grasp-close-" + strconv.Itoa(i)
	}
	return "grasp-open-" + strconv.Itoa(i)
}
