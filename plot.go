package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"regexp"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"synthPerturb/internal/perturb"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// plotFileName is sg<subgroup>_<column>.png with the column name reduced
// to file-safe characters.
func plotFileName(u unit) string {
	return fmt.Sprintf("sg%d_%s.png", u.Subgroup, unsafeFileChars.ReplaceAllString(u.Category.Name, "_"))
}

// plotDensities renders the reference, before and after densities of one
// unit as a PNG line plot in dir.
func plotDensities(dir string, u unit, grid perturb.Grid, reference, before, after []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create plot directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Subgroup %d: %s", u.Subgroup, u.Category.Name)
	p.X.Label.Text = u.Category.Name
	p.Y.Label.Text = "Density"
	p.Add(plotter.NewGrid())

	series := []struct {
		name   string
		values []float64
		color  color.Color
		dashed bool
	}{
		{"reference", reference, color.RGBA{A: 255}, false},
		{"before", before, color.RGBA{B: 255, A: 255}, true},
		{"after", after, color.RGBA{R: 255, A: 255}, false},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(grid.Points))
		for i, x := range grid.Points {
			pts[i].X = x
			pts[i].Y = s.values[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		line.LineStyle.Width = vg.Points(1)
		line.LineStyle.Color = s.color
		if s.dashed {
			line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(dir, plotFileName(u)))
}
