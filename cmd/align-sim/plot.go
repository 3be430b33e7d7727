package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/geoalign/internal/alignment"
)

// writePlots saves a track plot and a residual plot into dir and returns
// the file paths.
func writePlots(dir string, res Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	trackFile := filepath.Join(dir, "track.png")
	if err := trackPlot(res).Save(8*vg.Inch, 8*vg.Inch, trackFile); err != nil {
		return nil, fmt.Errorf("save track plot: %w", err)
	}

	p, err := residualPlot(res.Observations)
	if err != nil {
		return nil, err
	}
	residualFile := filepath.Join(dir, "residuals.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, residualFile); err != nil {
		return nil, fmt.Errorf("save residual plot: %w", err)
	}
	return []string{trackFile, residualFile}, nil
}

func trackPlot(res Result) *plot.Plot {
	p := plot.New()
	p.Title.Text = "Device track (local frame)"
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"

	truth := make(plotter.XYs, 0, len(res.Track))
	filtered := make(plotter.XYs, 0, len(res.Track))
	for _, tp := range res.Track {
		truth = append(truth, plotter.XY{X: tp.Truth.X, Y: tp.Truth.Y})
		if tp.HasFiltered {
			filtered = append(filtered, plotter.XY{X: tp.Filtered.X, Y: tp.Filtered.Y})
		}
	}

	colors := generateColors(2)
	if len(truth) > 0 {
		if line, err := plotter.NewLine(truth); err == nil {
			line.Color = colors[0]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add("truth", line)
		}
	}
	if len(filtered) > 0 {
		if sc, err := plotter.NewScatter(filtered); err == nil {
			sc.Color = colors[1]
			p.Add(sc)
			p.Legend.Add("filtered", sc)
		}
	}
	p.Legend.Top = true
	return p
}

var residualKinds = []alignment.Kind{
	alignment.KindPosition2D,
	alignment.KindPosition3D,
	alignment.KindOrientation,
	alignment.KindPointInPlane,
	alignment.KindPointInTerrain,
}

// residualPlot scatters the normalized residual of every observation by
// insertion order, one colour per observation kind.
func residualPlot(obs []alignment.Observation) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Normalized residuals"
	p.X.Label.Text = "Observation"
	p.Y.Label.Text = "max |v|/σ"

	byKind := make(map[alignment.Kind]plotter.XYs)
	for i, o := range obs {
		r := o.Residuals().Normalized
		if r >= maxPlottedResidual {
			continue // unresolved terrain points
		}
		byKind[o.Kind()] = append(byKind[o.Kind()], plotter.XY{X: float64(i), Y: r})
	}

	colors := generateColors(len(residualKinds))
	for i, k := range residualKinds {
		pts := byKind[k]
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("residual scatter: %w", err)
		}
		sc.Color = colors[i]
		p.Add(sc)
		p.Legend.Add(k.String(), sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

const maxPlottedResidual = 1e6

// generateColors creates a palette of distinct colors
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
