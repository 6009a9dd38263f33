package lattice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaplacianRegularizer(t *testing.T) {
	// 1-D grid [0, 1, 3]: differences 1 and 2, penalty 1 + 4 = 5.
	penalty, grad := LaplacianRegularizer([]float64{0, 1, 3}, []int{3}, []float64{1})
	assert.InDelta(t, 5.0, penalty, 1e-12)
	require.Len(t, grad, 3)
	// d/dp of (p1-p0)^2 + (p2-p1)^2.
	assert.InDelta(t, -2.0, grad[0], 1e-12)
	assert.InDelta(t, 2.0*1-2.0*2, grad[1], 1e-12)
	assert.InDelta(t, 4.0, grad[2], 1e-12)
}

func TestLaplacianPerDimensionWeights(t *testing.T) {
	params := []float64{0, 1, 2, 4} // 2x2 grid
	shape := []int{2, 2}

	// Only dimension 0 weighted: edges (p00,p10) and (p01,p11).
	penalty, _ := LaplacianRegularizer(params, shape, []float64{1, 0})
	assert.InDelta(t, (2.0-0)*(2.0-0)+(4.0-1)*(4.0-1), penalty, 1e-12)

	// Only dimension 1: edges (p00,p01) and (p10,p11).
	penalty, _ = LaplacianRegularizer(params, shape, []float64{0, 1})
	assert.InDelta(t, 1.0+4.0, penalty, 1e-12)
}

func TestHessianAndWrinkleRegularizers(t *testing.T) {
	heights := []float64{0, 0.5, 1}

	// Perfectly linear: first differences equal, second difference zero.
	penalty, _ := HessianRegularizer(heights, 2)
	assert.InDelta(t, 2*(0.25+0.25), penalty, 1e-12)
	penalty, _ = WrinkleRegularizer(heights, 3)
	assert.Zero(t, penalty)

	bent := []float64{0, 1, 0}
	penalty, grad := WrinkleRegularizer(bent, 1)
	assert.InDelta(t, 4.0, penalty, 1e-12) // (0 - 2 + 0)^2
	assert.InDelta(t, -4.0, grad[0], 1e-12)
	assert.InDelta(t, 8.0, grad[1], 1e-12)
	assert.InDelta(t, -4.0, grad[2], 1e-12)
}

func TestTorsionRegularizer(t *testing.T) {
	// 2x2 grid with pure interaction: torsion p00 - p10 - p01 + p11 = 1.
	params := []float64{0, 0, 0, 1}
	penalty, grad := TorsionRegularizer(params, []int{2, 2}, []float64{1, 1})
	assert.InDelta(t, 1.0, penalty, 1e-12)
	assert.InDelta(t, 2.0, grad[0], 1e-12)
	assert.InDelta(t, -2.0, grad[1], 1e-12)
	assert.InDelta(t, -2.0, grad[2], 1e-12)
	assert.InDelta(t, 2.0, grad[3], 1e-12)

	// An additive surface has zero torsion.
	additive := []float64{0, 1, 2, 3} // p(i,j) = 2i + j
	penalty, _ = TorsionRegularizer(additive, []int{2, 2}, []float64{1, 1})
	assert.Zero(t, penalty)
}

func TestZeroWeightSkips(t *testing.T) {
	params := []float64{3, 1, 4, 1, 5, 9}

	penalty, grad := LaplacianRegularizer(params, []int{6}, []float64{0})
	assert.Zero(t, penalty)
	assert.Nil(t, grad)

	penalty, grad = HessianRegularizer(params, 0)
	assert.Zero(t, penalty)
	assert.Nil(t, grad)

	penalty, grad = WrinkleRegularizer(params, 0)
	assert.Zero(t, penalty)
	assert.Nil(t, grad)

	penalty, grad = TorsionRegularizer(params, []int{2, 3}, []float64{0, 0})
	assert.Zero(t, penalty)
	assert.Nil(t, grad)
}

func TestRegularizerGradientsMatchFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	shape := []int{3, 3}
	params := make([]float64, 9)
	for i := range params {
		params[i] = rng.Float64()
	}
	const eps = 1e-6

	check := func(name string, fn func(p []float64) (float64, []float64)) {
		_, grad := fn(params)
		require.NotNil(t, grad, name)
		for i := range params {
			orig := params[i]
			params[i] = orig + eps
			up, _ := fn(params)
			params[i] = orig - eps
			dn, _ := fn(params)
			params[i] = orig
			assert.InDelta(t, (up-dn)/(2*eps), grad[i], 1e-5, "%s param %d", name, i)
		}
	}

	check("laplacian", func(p []float64) (float64, []float64) {
		return LaplacianRegularizer(p, shape, []float64{0.7, 1.3})
	})
	check("torsion", func(p []float64) (float64, []float64) {
		return TorsionRegularizer(p, shape, []float64{0.5, 2})
	})
	check("hessian", func(p []float64) (float64, []float64) {
		return HessianRegularizer(p, 1.7)
	})
	check("wrinkle", func(p []float64) (float64, []float64) {
		return WrinkleRegularizer(p, 0.9)
	})
}
