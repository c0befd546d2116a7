package perturb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KLDivergence calculates the discretized Kullback-Leibler divergence
// D(p||q) = Σ p·log(p/q)·dx of two densities sampled on the same grid.
//
// Parameters:
//   - p: the candidate density being evaluated
//   - q: the reference density it is matched against
//   - dx: the grid spacing
//
// Returns:
//   - The divergence, or ErrLengthMismatch when p and q are not aligned
//
// Note:
//   - The measure is directional; swapping p and q changes the result
//   - q is floored at DensityFloor so the ratio stays finite
func KLDivergence(p, q []float64, dx float64) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("kl divergence: %d vs %d points: %w", len(p), len(q), ErrLengthMismatch)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if floats.Min(q) <= DensityFloor {
		floored := make([]float64, len(q))
		for i, v := range q {
			floored[i] = math.Max(v, DensityFloor)
		}
		q = floored
	}
	return stat.KullbackLeibler(p, q) * dx, nil
}
