// Package charts renders paths and viewer frames for the browser: 3D
// go-echarts pages and gonum/plot PNG projections.
package charts

import (
	"fmt"
	"io"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/pathrender"
	"github.com/banshee-data/pathview/internal/scene"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// AssetsHost is where chart pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func initOpts(title string) opts.Initialization {
	return opts.Initialization{
		PageTitle:  title,
		Theme:      "dark",
		Width:      "900px",
		Height:     "600px",
		AssetsHost: AssetsHost,
	}
}

func point3D(w feed.Waypoint) opts.Chart3DData {
	return opts.Chart3DData{Value: []interface{}{w.X, w.Y, w.Z}}
}

// PathLine3D builds the dashed 3D polyline of p.
func PathLine3D(p *feed.Path, style pathrender.Style) *charts.Line3D {
	sum := p.Summary()

	line := charts.NewLine3D()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts("Robot Path")),
		charts.WithTitleOpts(opts.Title{
			Title:    "Robot Path",
			Subtitle: fmt.Sprintf("waypoints=%d length=%.3fm", sum.Waypoints, sum.LengthM),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X (m)", Show: opts.Bool(true)}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y (m)", Show: opts.Bool(true)}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z (m)", Show: opts.Bool(true)}),
	)

	data := make([]opts.Chart3DData, 0, p.Len())
	if p.Len() >= pathrender.MinWaypoints {
		for _, w := range p.Points {
			data = append(data, point3D(w))
		}
	}
	line.AddSeries("path", data,
		charts.WithLineStyleOpts(opts.LineStyle{
			Color: style.LineColor.Hex(),
			Type:  "dashed",
			Width: 2,
		}),
	)
	return line
}

// WaypointScatter3D builds the waypoint and grasp markers of p, one series
// per marker kind.
func WaypointScatter3D(p *feed.Path, style pathrender.Style) *charts.Scatter3D {
	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts("Waypoints")),
		charts.WithTitleOpts(opts.Title{Title: "Waypoints and grasp actions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X (m)", Show: opts.Bool(true)}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y (m)", Show: opts.Bool(true)}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z (m)", Show: opts.Bool(true)}),
	)

	var vertices, closes, opens []opts.Chart3DData
	if p.Len() >= pathrender.MinWaypoints {
		for _, w := range p.Points {
			vertices = append(vertices, point3D(w))
			if w.Grasp == nil {
				continue
			}
			if *w.Grasp {
				closes = append(closes, point3D(w))
			} else {
				opens = append(opens, point3D(w))
			}
		}
	}

	scatter.AddSeries("waypoints", vertices,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: style.VertexColor.Hex()}))
	scatter.AddSeries("grasp close", closes,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: style.GraspClose.Hex()}))
	scatter.AddSeries("grasp open", opens,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: style.GraspOpen.Hex()}))
	return scatter
}

// RenderPathPage writes an HTML page with the 3D path and its markers. Paths
// too short to render produce empty charts.
func RenderPathPage(w io.Writer, p *feed.Path) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = "pathview"
	page.AddCharts(
		PathLine3D(p, pathrender.DefaultStyle),
		WaypointScatter3D(p, pathrender.DefaultStyle),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render path page: %w", err)
	}
	return nil
}

// RenderFramePage writes a 2D scatter of what the viewer last drew, one
// series per object tag, in drawing-buffer pixels with y pointing up.
func RenderFramePage(w io.Writer, f *scene.Frame) error {
	scatter := charts.NewScatter()

	subtitle := "no frame rendered"
	width, height := 1, 1
	if f != nil {
		subtitle = fmt.Sprintf("frame=%d %dx%d objects=%d", f.Number, f.Width, f.Height, len(f.Objects))
		width, height = f.Width, f.Height
	}
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts("Viewer Frame")),
		charts.WithTitleOpts(opts.Title{Title: "Viewer Frame", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: height, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
	)

	series := map[scene.Tag][]opts.ScatterData{}
	if f != nil {
		for _, o := range f.Objects {
			for _, pt := range o.Points {
				series[o.Tag] = append(series[o.Tag], opts.ScatterData{
					Name:  o.Name,
					Value: []interface{}{pt[0], float64(height) - pt[1]},
				})
			}
		}
	}
	for _, tag := range []scene.Tag{scene.TagHelper, scene.TagPath} {
		scatter.AddSeries(string(tag), series[tag], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render frame page: %w", err)
	}
	return nil
}
