package perturb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("")
	require.NoError(t, err)
	require.Equal(t, BackendSerial, b.Name())

	b, err = NewBackend("Parallel")
	require.NoError(t, err)
	require.Equal(t, BackendParallel, b.Name())

	_, err = NewBackend("cuda")
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestBackends_Agree(t *testing.T) {
	sample := []float64{3, 3.5, 9, 14, 14.2, 27}
	grids := []Grid{
		NewGrid(0, 30, GridSize),
		NewGrid(0, 30, 7),
		{Points: []float64{5}},
	}
	backends := []Backend{NewParallelBackend(1), NewParallelBackend(3), NewParallelBackend(64)}

	for _, g := range grids {
		want, err := GaussianKDE(SerialBackend{}, sample, g, 1.3)
		require.NoError(t, err)
		for _, b := range backends {
			got, err := GaussianKDE(b, sample, g, 1.3)
			require.NoError(t, err)
			require.Equal(t, want, got, "%d workers, %d points", b.(*ParallelBackend).workers, len(g.Points))
		}
	}
}

func TestBackends_ReportNonFiniteDensity(t *testing.T) {
	sample := []float64{1, math.NaN()}
	g := NewGrid(0, 10, 50)
	for _, b := range []Backend{SerialBackend{}, NewParallelBackend(4)} {
		_, err := GaussianKDE(b, sample, g, 1)
		require.ErrorIs(t, err, ErrNonFiniteDensity, b.Name())
	}
}

func TestBackends_LengthMismatch(t *testing.T) {
	grid := []float64{1, 2, 3}
	for _, b := range []Backend{SerialBackend{}, NewParallelBackend(2)} {
		err := b.GaussianKDE(make([]float64, 2), []float64{1}, grid, 1)
		require.ErrorIs(t, err, ErrLengthMismatch, b.Name())
	}
}
