// Package synthetic serves a stand-in for the path planning backend. It
// generates pick-and-place paths with matching status and robot programs so
// the dashboard can be exercised without the real planner.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
)

// Generator produces a new plan on every call to Next.
type Generator struct {
	// Configuration
	WorkspaceRadius float64 // metres, horizontal reach for pick and place
	TableHeight     float64 // metres, z of the work surface
	ApproachHeight  float64 // metres above the surface for approach/retreat
	TravelSteps     int     // intermediate points on the transfer arc
	InvalidEvery    int     // every Nth plan fails validation; 0 disables

	mu   sync.Mutex
	rng  *rand.Rand
	plan uint64
}

// NewGenerator creates a generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		WorkspaceRadius: 0.6,
		TableHeight:     0.0,
		ApproachHeight:  0.15,
		TravelSteps:     4,
		InvalidEvery:    0,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// Plan is one generated backend state.
type Plan struct {
	Number uint64
	Path   *feed.Path
	Status feed.StatusSnapshot
	Code   feed.CodeSnapshot
}

// Next generates the next plan.
func (g *Generator) Next() Plan {
	g.mu.Lock()
	g.plan++
	n := g.plan
	pick := g.randomPoint()
	place := g.randomPoint()
	g.mu.Unlock()

	path := g.pickAndPlace(pick, place)
	status := feed.StatusSnapshot{Valid: true, Message: "OK"}
	if g.InvalidEvery > 0 && n%uint64(g.InvalidEvery) == 0 {
		status = feed.StatusSnapshot{
			Valid:   false,
			Message: fmt.Sprintf("Bad move: joint limit exceeded at waypoint %d", len(path.Points)/2),
		}
	}
	return Plan{
		Number: n,
		Path:   path,
		Status: status,
		Code: feed.CodeSnapshot{
			Karel: KarelProgram(n, path),
			KRL:   KRLProgram(n, path),
		},
	}
}

// randomPoint picks a point on the work surface outside a small dead zone
// around the robot base. Callers hold g.mu.
func (g *Generator) randomPoint() feed.Waypoint {
	angle := g.rng.Float64() * 2 * math.Pi
	r := g.WorkspaceRadius * (0.3 + 0.7*math.Sqrt(g.rng.Float64()))
	return feed.Waypoint{
		X: round3(r * math.Cos(angle)),
		Y: round3(r * math.Sin(angle)),
		Z: g.TableHeight,
	}
}

// pickAndPlace builds approach, grasp, lift, transfer, release and retreat
// waypoints. The gripper closes at the pick point and opens at the place
// point; every other waypoint carries no gripper action.
func (g *Generator) pickAndPlace(pick, place feed.Waypoint) *feed.Path {
	up := g.ApproachHeight
	above := func(w feed.Waypoint) feed.Waypoint {
		return feed.Waypoint{X: w.X, Y: w.Y, Z: round3(w.Z + up)}
	}

	pts := []feed.Waypoint{above(pick)}
	pts = append(pts, feed.Waypoint{X: pick.X, Y: pick.Y, Z: pick.Z, Grasp: feed.Bool(true)})
	pts = append(pts, above(pick))

	// Transfer along a raised arc between the two approach points.
	for i := 1; i <= g.TravelSteps; i++ {
		t := float64(i) / float64(g.TravelSteps+1)
		lift := math.Sin(t*math.Pi) * up
		pts = append(pts, feed.Waypoint{
			X: round3(pick.X + (place.X-pick.X)*t),
			Y: round3(pick.Y + (place.Y-pick.Y)*t),
			Z: round3(g.TableHeight + up + lift),
		})
	}

	pts = append(pts, above(place))
	pts = append(pts, feed.Waypoint{X: place.X, Y: place.Y, Z: place.Z, Grasp: feed.Bool(false)})
	pts = append(pts, above(place))
	return &feed.Path{Points: pts}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// KarelProgram renders a FANUC KAREL program that visits every waypoint.
// Coordinates are emitted in millimetres.
func KarelProgram(n uint64, p *feed.Path) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROGRAM pick_place_%d\n", n)
	b.WriteString("%NOLOCKGROUP\nVAR\n  target : XYZWPR\nBEGIN\n")
	for i, wp := range p.Points {
		fmt.Fprintf(&b, "  -- waypoint %d\n", i)
		fmt.Fprintf(&b, "  target.x = %.1f\n  target.y = %.1f\n  target.z = %.1f\n", wp.X*1000, wp.Y*1000, wp.Z*1000)
		b.WriteString("  MOVE TO target\n")
		if wp.Grasp != nil {
			if *wp.Grasp {
				b.WriteString("  DOUT[1] = ON\n")
			} else {
				b.WriteString("  DOUT[1] = OFF\n")
			}
		}
	}
	fmt.Fprintf(&b, "END pick_place_%d\n", n)
	return b.String()
}

// KRLProgram renders a KUKA KRL program that visits every waypoint.
func KRLProgram(n uint64, p *feed.Path) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DEF pick_place_%d()\n", n)
	b.WriteString("  BAS(#INITMOV, 0)\n")
	for i, wp := range p.Points {
		move := "LIN"
		if i == 0 {
			move = "PTP"
		}
		fmt.Fprintf(&b, "  %s {X %.1f, Y %.1f, Z %.1f, A 0, B 90, C 0}\n", move, wp.X*1000, wp.Y*1000, wp.Z*1000)
		if wp.Grasp != nil {
			fmt.Fprintf(&b, "  $OUT[1] = %s\n", krlBool(*wp.Grasp))
		}
	}
	b.WriteString("END\n")
	return b.String()
}

func krlBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
