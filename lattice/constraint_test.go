package lattice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsotonicProject(t *testing.T) {
	cases := []struct {
		in   []float64
		sign int
		want []float64
	}{
		{[]float64{1, 2, 3}, 1, []float64{1, 2, 3}},
		{[]float64{3, 1, 2}, 1, []float64{2, 2, 2}},
		{[]float64{4, 3, 2, 1}, 1, []float64{2.5, 2.5, 2.5, 2.5}},
		{[]float64{1, 3, 2, 4}, 1, []float64{1, 2.5, 2.5, 4}},
		{[]float64{1, 2, 3}, -1, []float64{2, 2, 2}},
		{[]float64{3, 2, 1}, -1, []float64{3, 2, 1}},
		{[]float64{5, 7}, 0, []float64{5, 7}},
	}
	for _, c := range cases {
		v := append([]float64(nil), c.in...)
		isotonicProject(v, c.sign)
		assert.InDeltaSlice(t, c.want, v, 1e-12, "input %v sign %d", c.in, c.sign)
	}
}

func TestUnimodalProject(t *testing.T) {
	// Valley: already valid sequences survive untouched.
	v := []float64{3, 1, 0, 2, 5}
	unimodalProject(v, UnimodalValley)
	assert.InDeltaSlice(t, []float64{3, 1, 0, 2, 5}, v, 1e-12)

	// A strictly increasing start violating nothing for a valley either.
	v = []float64{1, 2, 3, 4}
	unimodalProject(v, UnimodalValley)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, v, 1e-12)

	// Peak projection of a valley-shaped sequence flattens the dip.
	v = []float64{1, 0, 1}
	unimodalProject(v, UnimodalPeak)
	assertUnimodal(t, v, UnimodalPeak)

	v = []float64{0.9, 0.1, 0.8, 0.2, 0.7}
	unimodalProject(v, UnimodalValley)
	assertUnimodal(t, v, UnimodalValley)
}

// assertUnimodal checks that v splits into the two monotone runs the mode
// demands.
func assertUnimodal(t *testing.T, v []float64, mode Unimodality) {
	t.Helper()
	n := len(v)
	ok := false
	for split := 0; split <= n; split++ {
		good := true
		for i := 1; i < split; i++ {
			if mode == UnimodalValley && v[i] > v[i-1]+1e-9 {
				good = false
			}
			if mode == UnimodalPeak && v[i] < v[i-1]-1e-9 {
				good = false
			}
		}
		for i := split + 1; i < n; i++ {
			if mode == UnimodalValley && v[i] < v[i-1]-1e-9 {
				good = false
			}
			if mode == UnimodalPeak && v[i] > v[i-1]+1e-9 {
				good = false
			}
		}
		if good {
			ok = true
			break
		}
	}
	assert.True(t, ok, "sequence %v is not unimodal (mode %d)", v, mode)
}

func TestLatticeMonotonicProjectionBothModes(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	for _, mode := range []Interpolation{InterpolateMultilinear, InterpolateSimplex} {
		lat, err := NewLattice(LatticeConfig{
			Shape:         []int{3, 3},
			Interpolation: mode,
			Monotonic:     []Monotonicity{MonotonicIncreasing, MonotonicDecreasing},
		})
		require.NoError(t, err)
		for i := range lat.Params {
			lat.Params[i] = rng.Float64()
		}

		report := lat.Project(ProjectionOptions{MaxSweeps: 5000, Tolerance: 1e-10})
		assert.True(t, report.Converged)

		// Function-level monotonicity: increasing in dim 0, decreasing in
		// dim 1, for points differing only in the constrained dimension.
		for trial := 0; trial < 200; trial++ {
			a := rng.Float64()
			lo, hi := rng.Float64(), rng.Float64()
			if lo > hi {
				lo, hi = hi, lo
			}
			up := lat.Forward([]float64{hi, a})
			dn := lat.Forward([]float64{lo, a})
			assert.GreaterOrEqual(t, up, dn-1e-9, "mode %d dim 0", mode)

			up = lat.Forward([]float64{a, lo})
			dn = lat.Forward([]float64{a, hi})
			assert.GreaterOrEqual(t, up, dn-1e-9, "mode %d dim 1", mode)
		}
	}
}

func TestLatticeProjectionIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	lat, err := NewLattice(LatticeConfig{
		Shape:     []int{4, 3},
		Monotonic: []Monotonicity{MonotonicIncreasing, MonotonicNone},
	})
	require.NoError(t, err)
	for i := range lat.Params {
		lat.Params[i] = rng.Float64()
	}

	lat.Project(DefaultProjectionOptions())
	after := append([]float64(nil), lat.Params...)

	report := lat.Project(DefaultProjectionOptions())
	assert.True(t, report.Converged)
	assert.Equal(t, 1, report.Sweeps)
	assert.Equal(t, after, lat.Params)
}

func TestLatticeTrustProjection(t *testing.T) {
	rng := rand.New(rand.NewSource(47))
	lat, err := NewLattice(LatticeConfig{
		Shape:  []int{3, 3},
		Trusts: []TrustConstraint{{MainDim: 0, CondDim: 1, Direction: MonotonicIncreasing}},
	})
	require.NoError(t, err)
	for i := range lat.Params {
		lat.Params[i] = rng.Float64()
	}

	report := lat.Project(ProjectionOptions{MaxSweeps: 2000, Tolerance: 1e-10})
	assert.True(t, report.Converged)

	// Every elementary square must have a non-negative mixed difference:
	// the dim-0 effect never shrinks as dim 1 grows.
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			q00 := lat.Params[i*3+j]
			q10 := lat.Params[(i+1)*3+j]
			q01 := lat.Params[i*3+j+1]
			q11 := lat.Params[(i+1)*3+j+1]
			assert.GreaterOrEqual(t, (q11-q01)-(q10-q00), -1e-8)
		}
	}
}

func TestLatticeUnimodalProjection(t *testing.T) {
	lat, err := NewLattice(LatticeConfig{
		Shape:    []int{5},
		Unimodal: []Unimodality{UnimodalValley},
	})
	require.NoError(t, err)
	copy(lat.Params, []float64{0.2, 0.8, 0.1, 0.9, 0.3})

	report := lat.Project(DefaultProjectionOptions())
	assert.True(t, report.Converged)
	assertUnimodal(t, lat.Params, UnimodalValley)
}

func TestProjectionSweepCapReported(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	lat, err := NewLattice(LatticeConfig{
		Shape:     []int{4, 4},
		Monotonic: []Monotonicity{MonotonicIncreasing, MonotonicIncreasing},
		Trusts:    []TrustConstraint{{MainDim: 0, CondDim: 1, Direction: MonotonicDecreasing}},
	})
	require.NoError(t, err)
	for i := range lat.Params {
		lat.Params[i] = rng.Float64() * 10
	}

	// A cap of 1 sweep cannot finish: the report must say so instead of
	// pretending convergence.
	report := lat.Project(ProjectionOptions{MaxSweeps: 1, Tolerance: 1e-12})
	assert.False(t, report.Converged)
	assert.Equal(t, 1, report.Sweeps)
	assert.Greater(t, report.MaxDelta, 1e-12)
}

func TestNoConstraintsIsNoop(t *testing.T) {
	lat, err := NewLattice(LatticeConfig{Shape: []int{2, 2}})
	require.NoError(t, err)
	before := append([]float64(nil), lat.Params...)
	report := lat.Project(DefaultProjectionOptions())
	assert.True(t, report.Converged)
	assert.Zero(t, report.Sweeps)
	assert.Equal(t, before, lat.Params)
}
