package perturb

import (
	"fmt"
	"math"
	"strings"
)

// ProximityEpsilon keeps Proximity finite for a zero target.
const ProximityEpsilon = 1e-8

// Proximity is the normalized relative distance |value − target| /
// (|target| + epsilon). It is scale invariant so it can be summed with a
// divergence.
func Proximity(value, target, epsilon float64) float64 {
	return math.Abs(value-target) / (math.Abs(target) + epsilon)
}

// CostPolicy selects how the magnitude of a scale vector is penalized.
type CostPolicy int

const (
	// CostLinear is Σ(f − 1): signed, it rewards shrinkage and penalizes
	// growth.
	CostLinear CostPolicy = iota
	// CostExponential is Σ((e^(f−1) − 1) / (e − 1)): still signed, with a
	// steeper penalty for large growth.
	CostExponential
)

var costPolicyNames = map[CostPolicy]string{
	CostLinear:      "linear",
	CostExponential: "exponential",
}

func (p CostPolicy) String() string {
	if name, ok := costPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("CostPolicy(%d)", int(p))
}

// ParseCostPolicy maps a configuration name to a CostPolicy. An empty name
// selects CostLinear.
func ParseCostPolicy(name string) (CostPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CostLinear, nil
	}
	for p, n := range costPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownCostPolicy)
}

// Penalty scores a scale vector under the policy.
func (p CostPolicy) Penalty(factors []float64) (float64, error) {
	var sum float64
	switch p {
	case CostLinear:
		for _, f := range factors {
			sum += f - 1
		}
	case CostExponential:
		for _, f := range factors {
			sum += (math.Exp(f-1) - 1) / (math.E - 1)
		}
	default:
		return 0, fmt.Errorf("%v: %w", p, ErrUnknownCostPolicy)
	}
	return sum, nil
}
