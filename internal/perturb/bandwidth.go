package perturb

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// DefaultBandwidth is the fixed kernel width used when no rule is selected.
const DefaultBandwidth = 1.0

// BandwidthPolicy selects how the kernel width of a density estimate is
// chosen.
type BandwidthPolicy int

const (
	// BandwidthFixed uses the configured value as is.
	BandwidthFixed BandwidthPolicy = iota
	// BandwidthScott derives the width with Scott's rule.
	BandwidthScott
	// BandwidthSilverman derives the width with Silverman's rule.
	BandwidthSilverman
)

var bandwidthPolicyNames = map[BandwidthPolicy]string{
	BandwidthFixed:     "fixed",
	BandwidthScott:     "scott",
	BandwidthSilverman: "silverman",
}

func (p BandwidthPolicy) String() string {
	if name, ok := bandwidthPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("BandwidthPolicy(%d)", int(p))
}

// ParseBandwidthPolicy maps a configuration name to a BandwidthPolicy. An
// empty name selects BandwidthFixed.
func ParseBandwidthPolicy(name string) (BandwidthPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return BandwidthFixed, nil
	}
	for p, n := range bandwidthPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownBandwidthPolicy)
}

// Bandwidth is a bandwidth selection: a policy and the fixed width used
// by BandwidthFixed and as the fallback of the rules.
type Bandwidth struct {
	Policy BandwidthPolicy
	Value  float64
}

// Validate checks that the fixed width is usable.
func (b Bandwidth) Validate() error {
	if _, ok := bandwidthPolicyNames[b.Policy]; !ok {
		return fmt.Errorf("%v: %w", b.Policy, ErrUnknownBandwidthPolicy)
	}
	if !(b.Value > 0) || math.IsInf(b.Value, 0) {
		return fmt.Errorf("bandwidth %v: %w", b.Value, ErrInvalidBandwidth)
	}
	return nil
}

// For returns the kernel width to use for sample. A rule that yields a
// non-positive or non-finite width, as a constant sample does, falls back
// to the fixed value.
func (b Bandwidth) For(sample []float64) (float64, error) {
	var bw float64
	switch b.Policy {
	case BandwidthFixed:
		return b.Value, nil
	case BandwidthScott:
		bw = ScottsBandwidth(sample)
	case BandwidthSilverman:
		bw = SilvermansBandwidth(sample, 1)
	default:
		return 0, fmt.Errorf("%v: %w", b.Policy, ErrUnknownBandwidthPolicy)
	}
	if !(bw > 0) || math.IsInf(bw, 0) || math.IsNaN(bw) {
		return b.Value, nil
	}
	return bw, nil
}

// ScottsBandwidth computes (4σ / 3n)^(1/5), with σ the population
// standard deviation of data. It returns NaN for an empty sample.
func ScottsBandwidth(data []float64) float64 {
	n := float64(len(data))
	if n == 0 {
		return math.NaN()
	}
	return math.Pow(4*popStdDev(data)/(3*n), 1.0/5)
}

// SilvermansBandwidth computes (4σ⁵ / 3n)^(1/5) · (1/d)^(1/5) for data of
// dimensionality dims. It returns NaN for an empty sample or dims < 1.
func SilvermansBandwidth(data []float64, dims int) float64 {
	n := float64(len(data))
	if n == 0 || dims < 1 {
		return math.NaN()
	}
	sd := popStdDev(data)
	return math.Pow(4*math.Pow(sd, 5)/(3*n), 1.0/5) * math.Pow(1/float64(dims), 1.0/5)
}

func popStdDev(data []float64) float64 {
	return math.Sqrt(stat.PopVariance(data, nil))
}
