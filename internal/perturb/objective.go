package perturb

import (
	"fmt"
	"math"
)

// ObjectiveResult is the cost of one candidate scale vector together with
// the terms it is composed of.
type ObjectiveResult struct {
	Cost       float64
	Divergence float64
	Proximity  float64
	Penalty    float64
}

// Objective scores candidate scale vectors for one (subgroup, column)
// unit: how far the perturbed column's density drifts from the reference,
// how close its sum gets to the target, and how large the perturbation is.
type Objective struct {
	original  []float64
	reference []float64
	target    float64
	bandwidth float64
	policy    CostPolicy
	backend   Backend
}

// NewObjective prepares an objective. The reference sample is cleaned once
// and the kernel width is chosen from it.
//
// Parameters:
//   - original: the synthetic values being perturbed
//   - reference: the static values whose density is matched
//   - target: the sum the perturbed values should approach
//   - bw: bandwidth selection
//   - policy: cost policy for the perturbation penalty
//   - backend: array backend, nil selects SerialBackend
//
// Returns:
//   - ErrEmptySample when either sample has no usable value
func NewObjective(original, reference []float64, target float64, bw Bandwidth, policy CostPolicy, backend Backend) (*Objective, error) {
	if err := bw.Validate(); err != nil {
		return nil, err
	}
	if _, ok := costPolicyNames[policy]; !ok {
		return nil, fmt.Errorf("%v: %w", policy, ErrUnknownCostPolicy)
	}
	if len(Clean(original)) == 0 {
		return nil, fmt.Errorf("original sample: %w", ErrEmptySample)
	}
	ref := Clean(reference)
	if len(ref) == 0 {
		return nil, fmt.Errorf("reference sample: %w", ErrEmptySample)
	}
	h, err := bw.For(ref)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		backend = SerialBackend{}
	}
	return &Objective{
		original:  original,
		reference: ref,
		target:    target,
		bandwidth: h,
		policy:    policy,
		backend:   backend,
	}, nil
}

// Dim is the number of scale factors a candidate must carry.
func (o *Objective) Dim() int { return len(o.original) }

// Bandwidth is the kernel width in use.
func (o *Objective) Bandwidth() float64 { return o.bandwidth }

// Evaluate scores one scale vector.
func (o *Objective) Evaluate(factors []float64) (ObjectiveResult, error) {
	if len(factors) != len(o.original) {
		return ObjectiveResult{}, fmt.Errorf("scale vector has %d factors for %d values: %w",
			len(factors), len(o.original), ErrLengthMismatch)
	}
	candidate := Apply(o.original, factors)
	for i, v := range candidate {
		if math.IsInf(v, 0) {
			return ObjectiveResult{}, fmt.Errorf("perturbed value %d is not finite", i)
		}
	}

	div, err := o.divergence(candidate)
	if err != nil {
		return ObjectiveResult{}, err
	}
	prox := Proximity(nanSum(candidate), o.target, ProximityEpsilon)
	pen, err := o.policy.Penalty(factors)
	if err != nil {
		return ObjectiveResult{}, err
	}

	res := ObjectiveResult{
		Cost:       div + prox + pen,
		Divergence: div,
		Proximity:  prox,
		Penalty:    pen,
	}
	if math.IsNaN(res.Cost) {
		return res, fmt.Errorf("objective is NaN (divergence %v, proximity %v, penalty %v)", div, prox, pen)
	}
	return res, nil
}

func (o *Objective) divergence(candidate []float64) (float64, error) {
	p := Clean(candidate)
	grid, err := SharedGrid(p, o.reference)
	if err != nil {
		return 0, err
	}
	pdfP, err := GaussianKDE(o.backend, p, grid, o.bandwidth)
	if err != nil {
		return 0, err
	}
	pdfQ, err := GaussianKDE(o.backend, o.reference, grid, o.bandwidth)
	if err != nil {
		return 0, err
	}
	return KLDivergence(pdfP, pdfQ, grid.DX)
}

// Densities returns the shared grid and the densities of the reference,
// of the original values and of the values scaled by factors. It is meant
// for diagnostics.
func (o *Objective) Densities(factors []float64) (grid Grid, reference, before, after []float64, err error) {
	if len(factors) != len(o.original) {
		err = fmt.Errorf("scale vector has %d factors for %d values: %w", len(factors), len(o.original), ErrLengthMismatch)
		return
	}
	b := Clean(o.original)
	a := Clean(Apply(o.original, factors))
	all := append(append(make([]float64, 0, len(a)+len(b)), a...), b...)
	if grid, err = SharedGrid(all, o.reference); err != nil {
		return
	}
	if reference, err = GaussianKDE(o.backend, o.reference, grid, o.bandwidth); err != nil {
		return
	}
	if before, err = GaussianKDE(o.backend, b, grid, o.bandwidth); err != nil {
		return
	}
	after, err = GaussianKDE(o.backend, a, grid, o.bandwidth)
	return
}

// Apply multiplies values elementwise by factors into a new slice.
func Apply(values, factors []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factors[i]
	}
	return out
}

func nanSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}
