package charts

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/pathrender"
	"github.com/banshee-data/pathview/internal/scene"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

func testPath() *feed.Path {
	return &feed.Path{Points: []feed.Waypoint{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0.5, Grasp: feed.Bool(true)},
		{X: 2, Y: 1, Z: 0, Grasp: feed.Bool(false)},
	}}
}

func TestRenderPathPage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPathPage(&buf, testPath()))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Robot Path")
	assert.Contains(t, html, "waypoints=3")
	assert.Contains(t, html, "grasp close")
	assert.Contains(t, html, "dashed")
	assert.Contains(t, html, pathrender.DefaultStyle.GraspClose.Hex())
}

func TestRenderPathPage_NoPath(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPathPage(&buf, nil))
	assert.Contains(t, buf.String(), "waypoints=0")
}

func TestWaypointScatter3D_SeriesSplit(t *testing.T) {
	sc := WaypointScatter3D(testPath(), pathrender.DefaultStyle)
	require.Len(t, sc.MultiSeries, 3)

	counts := map[string]int{}
	for _, s := range sc.MultiSeries {
		data, ok := s.Data.([]opts.Chart3DData)
		require.True(t, ok, "series %s data is %T", s.Name, s.Data)
		counts[s.Name] = len(data)
	}
	assert.Equal(t, map[string]int{"waypoints": 3, "grasp close": 1, "grasp open": 1}, counts)
}

func TestRenderFramePage(t *testing.T) {
	f := &scene.Frame{
		Number: 42,
		Width:  200,
		Height: 100,
		Objects: []scene.FrameObject{
			{Name: "grid", Tag: scene.TagHelper, Points: [][2]float64{{10, 10}, {20, 20}}},
			{Name: "waypoint-0", Tag: scene.TagPath, Points: [][2]float64{{100, 50}}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderFramePage(&buf, f))
	html := buf.String()
	assert.Contains(t, html, "frame=42 200x100 objects=2")
	assert.Contains(t, html, "waypoint-0")

	buf.Reset()
	require.NoError(t, RenderFramePage(&buf, nil))
	assert.Contains(t, buf.String(), "no frame rendered")
}

func TestRenderPathPNG(t *testing.T) {
	for name, p := range map[string]*feed.Path{
		"path":   testPath(),
		"single": {Points: []feed.Waypoint{{}}},
		"nil":    nil,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderPathPNG(&buf, p, 3*vg.Inch, 2*vg.Inch))

			img, err := png.Decode(&buf)
			require.NoError(t, err)
			b := img.Bounds()
			assert.Greater(t, b.Dx(), b.Dy(), "3x2 inch canvas is wider than tall")
		})
	}
}

func TestPathPlot_Legend(t *testing.T) {
	pl, err := PathPlot(testPath(), pathrender.DefaultStyle)
	require.NoError(t, err)
	assert.Contains(t, pl.Title.Text, "3 waypoints")

	pl, err = PathPlot(&feed.Path{Points: []feed.Waypoint{{}, {X: 1}}}, pathrender.DefaultStyle)
	require.NoError(t, err)
	assert.Contains(t, pl.Title.Text, "1.000 m")
}

func TestRGBA(t *testing.T) {
	c := rgba(0x00aaff)
	assert.Equal(t, uint8(0x00), c.R)
	assert.Equal(t, uint8(0xaa), c.G)
	assert.Equal(t, uint8(0xff), c.B)
	assert.Equal(t, uint8(0xff), c.A)
}
