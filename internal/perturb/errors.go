package perturb

import "errors"

// Configuration and input errors. Callers match them with errors.Is; the
// returned errors are wrapped with the offending values.
var (
	ErrEmptySample            = errors.New("empty sample")
	ErrLengthMismatch         = errors.New("length mismatch")
	ErrInvalidBounds          = errors.New("invalid bounds")
	ErrInvalidBandwidth       = errors.New("invalid bandwidth")
	ErrNonFiniteDensity       = errors.New("non-finite density")
	ErrInvalidTrials          = errors.New("invalid trial budget")
	ErrNoFeasibleTrial        = errors.New("no feasible trial")
	ErrUnknownBackend         = errors.New("unknown backend")
	ErrUnknownCostPolicy      = errors.New("unknown cost policy")
	ErrUnknownBandwidthPolicy = errors.New("unknown bandwidth policy")
)
