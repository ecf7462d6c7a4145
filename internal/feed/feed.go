// Package feed defines the snapshots published by the backend and the strict
// decoders that turn raw response bodies into them. Decoding is the only place
// payload shape is checked: a body that does not match is rejected as a whole
// and never reaches the dashboard.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed marks a syntactically valid JSON body whose shape does not
// match the expected snapshot.
var ErrMalformed = errors.New("malformed payload")

// Waypoint is one point along a computed robot path.
type Waypoint struct {
	X, Y, Z float64
	// Grasp is nil when no gripper action happens at this point.
	Grasp *bool
}

// Path is an ordered, immutable sequence of waypoints. A new *Path is
// produced for every accepted poll tick; consumers must not mutate it.
type Path struct {
	Points []Waypoint
}

// Len returns the number of waypoints; a nil path has none.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Points)
}

// StatusSnapshot is the backend's validation verdict for the latest path.
type StatusSnapshot struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// CodeSnapshot holds the generated robot programs.
type CodeSnapshot struct {
	Karel string `json:"karel"`
	KRL   string `json:"krl"`
}

type wireStatus struct {
	Valid   *bool   `json:"valid"`
	Message *string `json:"message"`
}

type wireCode struct {
	Karel *string `json:"karel"`
	KRL   *string `json:"krl"`
}

type wirePathEnvelope struct {
	Path *struct {
		Points *[]wireWaypoint `json:"points"`
	} `json:"path"`
}

type wireWaypoint struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Z     *float64 `json:"z"`
	Grasp *bool    `json:"grasp"`
}

// DecodeStatus parses a /api/latest/status body. "valid" is required;
// a missing "message" decodes as empty.
func DecodeStatus(body []byte) (StatusSnapshot, error) {
	var w wireStatus
	if err := unmarshal(body, &w); err != nil {
		return StatusSnapshot{}, fmt.Errorf("status: %w", err)
	}
	if w.Valid == nil {
		return StatusSnapshot{}, fmt.Errorf("status: %w: missing \"valid\"", ErrMalformed)
	}
	s := StatusSnapshot{Valid: *w.Valid}
	if w.Message != nil {
		s.Message = *w.Message
	}
	return s, nil
}

// DecodeCode parses a /api/latest/code body. Both programs must be present,
// although either may be empty.
func DecodeCode(body []byte) (CodeSnapshot, error) {
	var w wireCode
	if err := unmarshal(body, &w); err != nil {
		return CodeSnapshot{}, fmt.Errorf("code: %w", err)
	}
	if w.Karel == nil || w.KRL == nil {
		return CodeSnapshot{}, fmt.Errorf("code: %w: missing \"karel\" or \"krl\"", ErrMalformed)
	}
	return CodeSnapshot{Karel: *w.Karel, KRL: *w.KRL}, nil
}

// DecodePath parses a /api/latest/path body of the form
// {"path": {"points": [{"x":..,"y":..,"z":..,"grasp":true|false|null}]}}.
// Every coordinate is required and must be finite; "grasp" may be omitted.
func DecodePath(body []byte) (*Path, error) {
	var w wirePathEnvelope
	if err := unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	if w.Path == nil || w.Path.Points == nil {
		return nil, fmt.Errorf("path: %w: missing \"path.points\"", ErrMalformed)
	}

	raw := *w.Path.Points
	points := make([]Waypoint, len(raw))
	for i, wp := range raw {
		if wp.X == nil || wp.Y == nil || wp.Z == nil {
			return nil, fmt.Errorf("path: %w: point %d missing coordinate", ErrMalformed, i)
		}
		if !finite(*wp.X) || !finite(*wp.Y) || !finite(*wp.Z) {
			return nil, fmt.Errorf("path: %w: point %d has non-finite coordinate", ErrMalformed, i)
		}
		points[i] = Waypoint{X: *wp.X, Y: *wp.Y, Z: *wp.Z, Grasp: wp.Grasp}
	}
	return &Path{Points: points}, nil
}

type encodedWaypoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Grasp *bool   `json:"grasp"`
}

type encodedPath struct {
	Path struct {
		Points []encodedWaypoint `json:"points"`
	} `json:"path"`
}

// MarshalJSON encodes p in the /api/latest/path envelope, so stored or
// served paths round-trip through DecodePath. A nil path encodes as an
// empty point list.
func (p *Path) MarshalJSON() ([]byte, error) {
	var e encodedPath
	e.Path.Points = make([]encodedWaypoint, p.Len())
	for i := range e.Path.Points {
		wp := p.Points[i]
		e.Path.Points[i] = encodedWaypoint{X: wp.X, Y: wp.Y, Z: wp.Z, Grasp: wp.Grasp}
	}
	return json.Marshal(e)
}

func unmarshal(body []byte, v interface{}) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if body[0] != '{' {
		return fmt.Errorf("%w: expected JSON object", ErrMalformed)
	}
	return json.Unmarshal(body, v)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Bool returns a pointer to b, for building waypoints with a grasp flag.
func Bool(b bool) *bool { return &b }
