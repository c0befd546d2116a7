package perturb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTrials is the trial budget used when Config.Trials is zero.
const DefaultTrials = 100

// Config holds the search parameters shared by every Optimize call.
type Config struct {
	// Trials is the base trial budget.
	Trials int
	// TrialsPerRecord, when positive, raises the budget to
	// ceil(TrialsPerRecord * len(sample)) for large subgroups.
	TrialsPerRecord float64
	// MaxTrials, when positive, caps the budget.
	MaxTrials int

	Bandwidth  Bandwidth
	CostPolicy CostPolicy
}

// DefaultConfig is a fixed 1.0 bandwidth, the linear cost policy and
// DefaultTrials trials.
func DefaultConfig() Config {
	return Config{
		Trials:     DefaultTrials,
		Bandwidth:  Bandwidth{Policy: BandwidthFixed, Value: DefaultBandwidth},
		CostPolicy: CostLinear,
	}
}

// Validate reports unusable search parameters.
func (c Config) Validate() error {
	if c.Trials < 0 || c.MaxTrials < 0 || c.TrialsPerRecord < 0 || math.IsNaN(c.TrialsPerRecord) {
		return fmt.Errorf("trials %d, per record %v, max %d: %w", c.Trials, c.TrialsPerRecord, c.MaxTrials, ErrInvalidTrials)
	}
	if err := c.Bandwidth.Validate(); err != nil {
		return err
	}
	if _, ok := costPolicyNames[c.CostPolicy]; !ok {
		return fmt.Errorf("%v: %w", c.CostPolicy, ErrUnknownCostPolicy)
	}
	return nil
}

// Budget is the number of trials run for a sample of n values.
func (c Config) Budget(n int) int {
	budget := c.Trials
	if budget == 0 {
		budget = DefaultTrials
	}
	if c.TrialsPerRecord > 0 {
		budget = max(budget, int(math.Ceil(c.TrialsPerRecord*float64(n))))
	}
	if c.MaxTrials > 0 {
		budget = min(budget, c.MaxTrials)
	}
	return budget
}

// Optimizer runs a bounded random search for the scale vector minimizing
// an Objective. An Optimizer owns its random source and must not be used
// from several goroutines at once.
type Optimizer struct {
	cfg     Config
	log     *logrus.Entry
	rng     *rand.Rand
	backend Backend
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger trial progress is reported to.
func WithLogger(log *logrus.Entry) Option {
	return func(o *Optimizer) { o.log = log }
}

// WithRand sets the random source factors are drawn from.
func WithRand(rng *rand.Rand) Option {
	return func(o *Optimizer) { o.rng = rng }
}

// WithSeed seeds a private random source.
func WithSeed(seed int64) Option {
	return func(o *Optimizer) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithBackend sets the array backend.
func WithBackend(b Backend) Option {
	return func(o *Optimizer) { o.backend = b }
}

// NewOptimizer validates cfg and builds an Optimizer. Without options it
// logs nowhere, evaluates serially and seeds from the clock.
func NewOptimizer(cfg Config, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Optimizer{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = logrus.NewEntry(l)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.backend == nil {
		o.backend = SerialBackend{}
	}
	return o, nil
}

// Result is the outcome of one Optimize call.
type Result struct {
	// Values is the original sample scaled by the best factors, in the
	// original order.
	Values    []float64
	Factors   []float64
	Objective ObjectiveResult
	Bandwidth float64
	Study     *Study
}

// Optimize searches for per-record scale factors moving sum(original)
// toward target while keeping its density close to reference's.
//
// Parameters:
//   - ctx: checked between trials
//   - original: the synthetic values to perturb
//   - reference: the values whose density should be preserved
//   - target: the desired sum
//   - bounds: admissible factor range
//
// Returns:
//   - The best trial found, applied to original
//   - ErrEmptySample, ErrInvalidBounds on bad input; ErrNoFeasibleTrial when
//     every trial was rejected
func (o *Optimizer) Optimize(ctx context.Context, original, reference []float64, target float64, bounds Bounds) (*Result, error) {
	if len(original) == 0 || len(reference) == 0 {
		return nil, fmt.Errorf("optimize: %d original, %d reference values: %w", len(original), len(reference), ErrEmptySample)
	}
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	obj, err := NewObjective(original, reference, target, o.cfg.Bandwidth, o.cfg.CostPolicy, o.backend)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	budget := o.cfg.Budget(obj.Dim())
	study := newStudy(budget)
	log := o.log.WithFields(logrus.Fields{
		"dim":       obj.Dim(),
		"trials":    budget,
		"bandwidth": obj.Bandwidth(),
	})

	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimize: trial %d: %w", i, err)
		}
		factors := o.Sample(bounds, obj.Dim())
		res, err := obj.Evaluate(factors)
		if err != nil {
			log.WithError(err).WithField("trial", i).Debug("trial rejected")
			study.record(Trial{Factors: factors, Result: ObjectiveResult{Cost: RejectedCost}, State: TrialRejected, Err: err})
			continue
		}
		if study.record(Trial{Factors: factors, Result: res, State: TrialComplete}) {
			log.WithFields(logrus.Fields{"trial": i, "cost": res.Cost}).Debug("new incumbent")
		}
	}

	best, ok := study.Best()
	if !ok {
		return nil, fmt.Errorf("optimize: %d trials rejected: %w", study.Rejected(), errors.Join(ErrNoFeasibleTrial, lastErr(study)))
	}
	log.WithFields(logrus.Fields{
		"cost":     best.Result.Cost,
		"best":     best.Number,
		"rejected": study.Rejected(),
	}).Debug("study completed")

	return &Result{
		Values:    Apply(original, best.Factors),
		Factors:   best.Factors,
		Objective: best.Result,
		Bandwidth: obj.Bandwidth(),
		Study:     study,
	}, nil
}

// Sample draws a scale vector of n factors, each uniform over the
// admissible levels of bounds. bounds must be valid.
func (o *Optimizer) Sample(bounds Bounds, n int) []float64 {
	levels := bounds.levels()
	factors := make([]float64, n)
	for i := range factors {
		factors[i] = bounds.level(o.rng.Intn(levels))
	}
	return factors
}

func lastErr(s *Study) error {
	for i := len(s.Trials) - 1; i >= 0; i-- {
		if s.Trials[i].Err != nil {
			return s.Trials[i].Err
		}
	}
	return nil
}
