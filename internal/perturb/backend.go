package perturb

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Backend evaluates the array kernels of the objective. Implementations
// must produce identical results; they differ only in how the work is
// scheduled.
type Backend interface {
	Name() string
	// GaussianKDE writes the unfloored kernel density of sample at every
	// grid point into dst, which has len(grid) elements.
	GaussianKDE(dst, sample, grid []float64, bandwidth float64) error
}

// Backend names accepted by NewBackend.
const (
	BackendSerial   = "serial"
	BackendParallel = "parallel"
)

// NewBackend returns the backend registered under name. An empty name
// selects the serial backend.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendSerial:
		return SerialBackend{}, nil
	case BackendParallel:
		return NewParallelBackend(0), nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownBackend)
	}
}

// SerialBackend evaluates grid points one after another on the calling
// goroutine.
type SerialBackend struct{}

func (SerialBackend) Name() string { return BackendSerial }

func (SerialBackend) GaussianKDE(dst, sample, grid []float64, bandwidth float64) error {
	if len(dst) != len(grid) {
		return fmt.Errorf("%d outputs for %d grid points: %w", len(dst), len(grid), ErrLengthMismatch)
	}
	for i, g := range grid {
		if dst[i] = kdeAt(g, sample, bandwidth); math.IsNaN(dst[i]) {
			return fmt.Errorf("grid point %v: %w", g, ErrNonFiniteDensity)
		}
	}
	return nil
}

// ParallelBackend shards the grid into contiguous chunks evaluated on
// separate goroutines.
type ParallelBackend struct {
	workers int
}

// NewParallelBackend returns a backend running at most workers goroutines
// per kernel. workers <= 0 uses GOMAXPROCS.
func NewParallelBackend(workers int) *ParallelBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParallelBackend{workers: workers}
}

func (b *ParallelBackend) Name() string { return BackendParallel }

func (b *ParallelBackend) GaussianKDE(dst, sample, grid []float64, bandwidth float64) error {
	if len(dst) != len(grid) {
		return fmt.Errorf("%d outputs for %d grid points: %w", len(dst), len(grid), ErrLengthMismatch)
	}
	chunk := (len(grid) + b.workers - 1) / b.workers
	if chunk == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(b.workers)
	for lo := 0; lo < len(grid); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(grid))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if dst[i] = kdeAt(grid[i], sample, bandwidth); math.IsNaN(dst[i]) {
					return fmt.Errorf("grid point %v: %w", grid[i], ErrNonFiniteDensity)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
