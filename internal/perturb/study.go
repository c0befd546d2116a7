package perturb

import (
	"fmt"
	"math"
)

// DefaultStep is the resolution of a sampled scale factor.
const DefaultStep = 0.1

// MaxLevels caps the number of admissible factor values of one category.
const MaxLevels = math.MaxInt32

// Bounds constrains every scale factor of a category to
// [max(MinValue, MinMult), MaxMult] on a grid of Step.
type Bounds struct {
	MinValue float64 `json:"minValue" mapstructure:"minValue"`
	MinMult  float64 `json:"minMult" mapstructure:"minMult"`
	MaxMult  float64 `json:"maxMult" mapstructure:"maxMult"`
	// Step is the factor resolution; zero means DefaultStep.
	Step float64 `json:"step" mapstructure:"step"`
}

// Low is the smallest admissible factor.
func (b Bounds) Low() float64 { return math.Max(b.MinValue, b.MinMult) }

// High is the largest admissible factor.
func (b Bounds) High() float64 { return b.MaxMult }

func (b Bounds) step() float64 {
	if b.Step == 0 {
		return DefaultStep
	}
	return b.Step
}

// Validate reports bounds that leave no admissible factor.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinValue, b.MinMult, b.MaxMult, b.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds %+v: non-finite value: %w", b, ErrInvalidBounds)
		}
	}
	if b.MinMult > b.MaxMult {
		return fmt.Errorf("bounds %+v: minMult > maxMult: %w", b, ErrInvalidBounds)
	}
	if b.Low() > b.High() {
		return fmt.Errorf("bounds %+v: minValue > maxMult: %w", b, ErrInvalidBounds)
	}
	if b.Step < 0 {
		return fmt.Errorf("bounds %+v: negative step: %w", b, ErrInvalidBounds)
	}
	if n := (b.High() - b.Low()) / b.step(); math.IsInf(n, 0) || n >= MaxLevels {
		return fmt.Errorf("bounds %+v: step too fine, at least %d levels: %w", b, MaxLevels, ErrInvalidBounds)
	}
	return nil
}

// levels is the number of admissible factor values.
func (b Bounds) levels() int {
	return int(math.Floor((b.High()-b.Low())/b.step()+1e-9)) + 1
}

// level returns the k-th admissible factor value.
func (b Bounds) level(k int) float64 {
	return math.Min(b.Low()+float64(k)*b.step(), b.High())
}

// TrialState is the outcome of one trial.
type TrialState int

const (
	TrialComplete TrialState = iota
	TrialRejected
)

func (s TrialState) String() string {
	switch s {
	case TrialComplete:
		return "complete"
	case TrialRejected:
		return "rejected"
	}
	return fmt.Sprintf("TrialState(%d)", int(s))
}

// RejectedCost is the cost recorded for a trial whose evaluation failed.
const RejectedCost = math.MaxFloat64

// Trial is one sampled scale vector and its score.
type Trial struct {
	Number  int
	Factors []float64
	Result  ObjectiveResult
	State   TrialState
	Err     error
}

// Study is every trial of one search and its incumbent.
type Study struct {
	Trials  []Trial
	best    int
	history []float64
}

func newStudy(capacity int) *Study {
	return &Study{
		Trials:  make([]Trial, 0, capacity),
		best:    -1,
		history: make([]float64, 0, capacity),
	}
}

// record appends t and promotes it when it beats the incumbent. It reports
// whether the incumbent changed.
func (s *Study) record(t Trial) bool {
	t.Number = len(s.Trials)
	s.Trials = append(s.Trials, t)
	improved := false
	if t.State == TrialComplete && (s.best < 0 || t.Result.Cost < s.Trials[s.best].Result.Cost) {
		s.best = t.Number
		improved = true
	}
	if s.best < 0 {
		s.history = append(s.history, RejectedCost)
	} else {
		s.history = append(s.history, s.Trials[s.best].Result.Cost)
	}
	return improved
}

// Best returns the incumbent trial. ok is false while no trial completed.
func (s *Study) Best() (t Trial, ok bool) {
	if s.best < 0 {
		return Trial{}, false
	}
	return s.Trials[s.best], true
}

// BestHistory is the incumbent cost after each trial. It never increases.
func (s *Study) BestHistory() []float64 {
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}

// Rejected counts trials whose evaluation failed.
func (s *Study) Rejected() int {
	n := 0
	for _, t := range s.Trials {
		if t.State == TrialRejected {
			n++
		}
	}
	return n
}
