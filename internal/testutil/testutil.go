// Package testutil provides shared test fixtures: backend response bodies
// and the reference paths used across package tests.
package testutil

import (
	"encoding/json"
	"testing"

	"github.com/banshee-data/pathview/internal/feed"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ThreePointPath returns a three waypoint path with one waypoint of each
// grasp state: none, close and open.
func ThreePointPath() *feed.Path {
	return &feed.Path{Points: []feed.Waypoint{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0, Grasp: feed.Bool(true)},
		{X: 1, Y: 1, Z: 0, Grasp: feed.Bool(false)},
	}}
}

// PathBody encodes p as a /api/latest/path response body.
func PathBody(p *feed.Path) string {
	if p == nil {
		p = &feed.Path{}
	}
	return mustJSON(p)
}

// StatusBody encodes a /api/latest/status response body.
func StatusBody(valid bool, message string) string {
	return mustJSON(map[string]interface{}{"valid": valid, "message": message})
}

// CodeBody encodes a /api/latest/code response body.
func CodeBody(karel, krl string) string {
	return mustJSON(map[string]string{"karel": karel, "krl": krl})
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
