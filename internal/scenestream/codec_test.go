package scenestream

import (
	"testing"

	"github.com/banshee-data/pathview/internal/scene"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestFrameToStruct(t *testing.T) {
	s, err := FrameToStruct(testFrame(9), nil)
	require.NoError(t, err)

	got := s.AsMap()
	assert.Equal(t, 9.0, got["number"])
	assert.Equal(t, "#111111", got["background"])
	assert.Equal(t, "2023-11-14T22:13:20Z", got["time"])

	objs := got["objects"].([]interface{})
	require.Len(t, objs, 2)
	w0 := objs[1].(map[string]interface{})
	want := map[string]interface{}{
		"id":       "w0",
		"kind":     "mesh",
		"name":     "waypoint-0",
		"tag":      "path",
		"geometry": "",
		"material": "",
		"color":    "#ffffff",
		"depth":    0.0,
		"points":   []interface{}{[]interface{}{320.0, 240.0}},
	}
	if diff := cmp.Diff(want, w0); diff != "" {
		t.Errorf("object mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRequest(t *testing.T) {
	req, err := NewRequest(Request{Tags: []scene.Tag{scene.TagPath, scene.TagHelper}, MaxFrames: 5})
	require.NoError(t, err)
	r, err := ParseRequest(req)
	require.NoError(t, err)
	assert.Equal(t, Request{Tags: []scene.Tag{scene.TagPath, scene.TagHelper}, MaxFrames: 5}, r)

	r, err = ParseRequest(nil)
	require.NoError(t, err)
	assert.Equal(t, Request{}, r)

	bad := []map[string]interface{}{
		{"tags": "path"},
		{"tags": []interface{}{1.0}},
		{"max_frames": 1.5},
		{"max_frames": "3"},
		{"follow": true},
	}
	for _, fields := range bad {
		s, err := structpb.NewStruct(fields)
		require.NoError(t, err)
		if _, err := ParseRequest(s); err == nil {
			t.Errorf("ParseRequest(%v): expected error", fields)
		}
	}
}
