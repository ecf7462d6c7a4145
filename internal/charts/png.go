package charts

import (
	"fmt"
	"image/color"
	"io"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/pathrender"
	"github.com/banshee-data/pathview/internal/scene"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Default PNG size.
const (
	PNGWidth  = 6 * vg.Inch
	PNGHeight = 6 * vg.Inch
)

func rgba(c scene.Color) color.RGBA {
	return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 0xff}
}

// PathPlot builds a top-down (XY) projection of p.
func PathPlot(p *feed.Path, style pathrender.Style) (*plot.Plot, error) {
	sum := p.Summary()

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Robot Path (top view) - %d waypoints, %.3f m", sum.Waypoints, sum.LengthM)
	pl.X.Label.Text = "X (m)"
	pl.Y.Label.Text = "Y (m)"
	pl.Add(plotter.NewGrid())

	if p.Len() < pathrender.MinWaypoints {
		return pl, nil
	}

	pts := make(plotter.XYs, len(p.Points))
	var closes, opens plotter.XYs
	for i, w := range p.Points {
		pts[i] = plotter.XY{X: w.X, Y: w.Y}
		if w.Grasp == nil {
			continue
		}
		if *w.Grasp {
			closes = append(closes, pts[i])
		} else {
			opens = append(opens, pts[i])
		}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("path line: %w", err)
	}
	line.Color = rgba(style.LineColor)
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	pl.Add(line)
	pl.Legend.Add("path", line)

	vertices, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("waypoints: %w", err)
	}
	vertices.GlyphStyle.Shape = draw.CircleGlyph{}
	vertices.GlyphStyle.Color = color.RGBA{A: 0xff}
	vertices.GlyphStyle.Radius = vg.Points(2)
	pl.Add(vertices)

	for _, g := range []struct {
		name string
		xys  plotter.XYs
		c    scene.Color
	}{
		{"grasp close", closes, style.GraspClose},
		{"grasp open", opens, style.GraspOpen},
	} {
		if len(g.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(g.xys)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Color = rgba(g.c)
		sc.GlyphStyle.Radius = vg.Points(4)
		pl.Add(sc)
		pl.Legend.Add(g.name, sc)
	}
	return pl, nil
}

// RenderPathPNG writes the top-down projection of p as a PNG image.
func RenderPathPNG(w io.Writer, p *feed.Path, width, height vg.Length) error {
	pl, err := PathPlot(p, pathrender.DefaultStyle)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
