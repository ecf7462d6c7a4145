package feed

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Summary is a digest of a path for panels and charts.
type Summary struct {
	Waypoints  int     `json:"waypoints"`
	GraspClose int     `json:"grasp_close"`
	GraspOpen  int     `json:"grasp_open"`
	LengthM    float64 `json:"length_m"`
	Min        r3.Vec  `json:"min"`
	Max        r3.Vec  `json:"max"`
	Renderable bool    `json:"renderable"`
}

// Vec returns the waypoint position.
func (w Waypoint) Vec() r3.Vec {
	return r3.Vec{X: w.X, Y: w.Y, Z: w.Z}
}

// Summary computes waypoint and grasp counts, polyline length and the
// axis-aligned bounds. A nil or empty path yields the zero Summary.
func (p *Path) Summary() Summary {
	var s Summary
	if p.Len() == 0 {
		return s
	}
	s.Waypoints = len(p.Points)
	s.Renderable = s.Waypoints >= 2
	s.Min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	s.Max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}

	for i, wp := range p.Points {
		v := wp.Vec()
		s.Min = r3.Vec{X: math.Min(s.Min.X, v.X), Y: math.Min(s.Min.Y, v.Y), Z: math.Min(s.Min.Z, v.Z)}
		s.Max = r3.Vec{X: math.Max(s.Max.X, v.X), Y: math.Max(s.Max.Y, v.Y), Z: math.Max(s.Max.Z, v.Z)}
		if i > 0 {
			s.LengthM += r3.Norm(r3.Sub(v, p.Points[i-1].Vec()))
		}
		if wp.Grasp != nil {
			if *wp.Grasp {
				s.GraspClose++
			} else {
				s.GraspOpen++
			}
		}
	}
	return s
}
