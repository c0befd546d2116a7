package main

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"synthPerturb/internal/perturb"
)

// Distance compares the reference density with the perturbed density on
// a shared grid, using the named metric. It backs the fit column of the
// report; the search itself always minimizes the KL objective.
//
// Parameters:
//   - metric: one of ValidMetrics
//   - reference: the reference density
//   - perturbed: the density of the perturbed values
//   - dx: grid spacing
//
// Returns:
//   - The distance between the densities
func Distance(metric string, reference, perturbed []float64, dx float64) float64 {
	switch strings.ToUpper(metric) {
	case "EUCLIDEAN":
		return EuclideanDistance(reference, perturbed, dx)
	case "CHI_SQUARED":
		return ChiSquaredDistance(reference, perturbed, dx)
	case "KL_DIVERGENCE":
		d, _ := perturb.KLDivergence(perturbed, reference, dx)
		return d
	case "JSDIVERGENCE":
		return JSDivergence(reference, perturbed, dx)
	default: // MANHATTAN
		return ManhattanDistance(reference, perturbed, dx)
	}
}

// ManhattanDistance is the L1 distance of two densities, twice their total
// variation distance.
func ManhattanDistance(p, q []float64, dx float64) float64 {
	return floats.Distance(p, q, 1) * dx
}

// EuclideanDistance is the L2 distance of two densities.
func EuclideanDistance(p, q []float64, dx float64) float64 {
	return floats.Distance(p, q, 2) * math.Sqrt(dx)
}

// ChiSquaredDistance treats p as expected and q as observed.
func ChiSquaredDistance(p, q []float64, dx float64) float64 {
	return stat.ChiSquare(q, p) * dx
}

// JSDivergence is the symmetric Jensen-Shannon divergence.
func JSDivergence(p, q []float64, dx float64) float64 {
	return stat.JensenShannon(p, q) * dx
}
