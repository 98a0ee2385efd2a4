package uhepipe

import (
	"fmt"
	"image/color"
	"os"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/decibelcooper/uhepipe/internal/histogram"
)

var lineColors = []color.Color{
	color.RGBA{A: 255},
	color.RGBA{G: 255, A: 255},
	color.RGBA{B: 255, A: 255},
	color.RGBA{R: 255, B: 127, G: 127, A: 255},
}

// PlotH1D overlays one-dimensional snapshots sharing an axis variable.
func PlotH1D(title string, snaps ...histogram.Snapshot) (*plot.Plot, error) {
	if len(snaps) == 0 {
		return nil, fmt.Errorf("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = snaps[0].Axes[0].Label
	p.X.Tick.Marker = TicksFor(snaps[0].Axes[0].Variable)
	p.Y.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}

	for i, s := range snaps {
		h1, err := s.H1D()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		h := hplot.NewH1D(h1)
		h.LineStyle.Color = lineColors[i%len(lineColors)]
		if len(snaps) == 1 {
			h.Infos.Style = hplot.HInfoSummary
		} else {
			p.Legend.Add(s.Name, h)
		}
		p.Add(h)
	}
	return p, nil
}

// SaveH1D writes PlotH1D output; the format follows the file extension.
func SaveH1D(path, title string, snaps ...histogram.Snapshot) error {
	p, err := PlotH1D(title, snaps...)
	if err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// SaveHeatMap draws a two-dimensional snapshot as a heat map with a colour
// bar and writes it as PNG.
func SaveHeatMap(path, title string, s histogram.Snapshot) error {
	if len(s.Axes) != 2 {
		return fmt.Errorf("%s: heat map needs 2 axes, have %d", s.Name, len(s.Axes))
	}
	zMin, zMax := s.Values[0], s.Values[0]
	for _, v := range s.Values {
		zMin, zMax = min(zMin, v), max(zMax, v)
	}
	if zMax <= zMin {
		zMax = zMin + 1
	}

	img := vgimg.New(670, 400)
	dc := draw.New(img)
	dcPlot := draw.Crop(dc, 0, -70, 0, 0)
	dcBar := draw.Crop(dc, 620, 0, 0, 0)

	colorMap := moreland.ExtendedBlackBody()
	colorMap.SetMin(zMin)
	colorMap.SetMax(zMax)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = s.Axes[0].Label
	p.Y.Label.Text = s.Axes[1].Label
	p.X.Tick.Marker = TicksFor(s.Axes[0].Variable)
	p.Y.Tick.Marker = TicksFor(s.Axes[1].Variable)
	heatMap := plotter.NewHeatMap(s, colorMap.Palette(1000))
	heatMap.Min = zMin
	heatMap.Max = zMax
	p.Add(heatMap)
	p.Draw(dcPlot)

	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: colorMap, Vertical: true})
	bar.HideX()
	bar.Y.Padding = 0
	bar.Draw(dcBar)

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}
