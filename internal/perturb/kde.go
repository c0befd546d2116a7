package perturb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DensityFloor is the smallest value a PDF may hold. It keeps the
	// logarithm and the ratio in KLDivergence finite.
	DensityFloor = 1e-8

	// GridSize is the number of evaluation points of a shared grid.
	GridSize = 1000
)

// Grid is an ordered set of uniformly spaced evaluation points.
type Grid struct {
	Points []float64
	DX     float64
}

// NewGrid spans n points over [lo, hi]. When lo == hi every point is lo
// and DX is zero.
func NewGrid(lo, hi float64, n int) Grid {
	if n < 2 {
		return Grid{Points: []float64{lo}}
	}
	points := floats.Span(make([]float64, n), lo, hi)
	return Grid{Points: points, DX: points[1] - points[0]}
}

// SharedGrid builds a grid covering the full range of both samples, so
// no density mass is lost at either tail.
//
// Parameters:
//   - p, q: cleaned, non-empty samples
//
// Returns:
//   - A grid of GridSize points over [min(p ∪ q), max(p ∪ q)]
func SharedGrid(p, q []float64) (Grid, error) {
	if len(p) == 0 || len(q) == 0 {
		return Grid{}, fmt.Errorf("shared grid: %w", ErrEmptySample)
	}
	lo := math.Min(floats.Min(p), floats.Min(q))
	hi := math.Max(floats.Max(p), floats.Max(q))
	return NewGrid(lo, hi, GridSize), nil
}

// GaussianKDE estimates the density of sample at every grid point with a
// uniform-weight Gaussian kernel of the given bandwidth. Values at or
// below DensityFloor are raised to it.
//
// Parameters:
//   - backend: the array backend evaluating the kernels
//   - sample: the data points (no NaN)
//   - grid: evaluation points
//   - bandwidth: kernel width, must be > 0
//
// Returns:
//   - A PDF aligned 1:1 with grid
func GaussianKDE(backend Backend, sample []float64, grid Grid, bandwidth float64) ([]float64, error) {
	if len(sample) == 0 {
		return nil, fmt.Errorf("gaussian kde: %w", ErrEmptySample)
	}
	if !(bandwidth > 0) || math.IsInf(bandwidth, 0) {
		return nil, fmt.Errorf("gaussian kde: bandwidth %v: %w", bandwidth, ErrInvalidBandwidth)
	}
	pdf := make([]float64, len(grid.Points))
	if err := backend.GaussianKDE(pdf, sample, grid.Points, bandwidth); err != nil {
		return nil, fmt.Errorf("gaussian kde: %s backend: %w", backend.Name(), err)
	}
	for i, v := range pdf {
		if v <= DensityFloor {
			pdf[i] = DensityFloor
		}
	}
	return pdf, nil
}

// kdeAt is the mean of the sample's Gaussian kernels at one grid point.
// Every backend calls it so that their results agree bit for bit.
func kdeAt(g float64, sample []float64, bandwidth float64) float64 {
	var sum float64
	for _, x := range sample {
		sum += distuv.Normal{Mu: x, Sigma: bandwidth}.Prob(g)
	}
	return sum / float64(len(sample))
}

// Clean drops missing (NaN) entries and replaces exact zeros with
// DensityFloor so that no degenerate mass point sits at zero. The input is
// not modified.
func Clean(sample []float64) []float64 {
	out := make([]float64, 0, len(sample))
	for _, v := range sample {
		switch {
		case math.IsNaN(v):
			continue
		case v == 0:
			out = append(out, DensityFloor)
		default:
			out = append(out, v)
		}
	}
	return out
}
