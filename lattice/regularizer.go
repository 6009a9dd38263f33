package lattice

import "gonum.org/v1/gonum/floats"

// Regularizers are pure functions from current parameters to a scalar
// penalty and its gradient; the caller adds both to the training loss and
// gradient. Every regularizer skips all work when its weight is zero.

// LaplacianRegularizer penalizes non-flatness over the grid: the weighted
// sum of squared differences between each vertex and its neighbor along each
// dimension; nil or all-zero weights skip the computation entirely.
func LaplacianRegularizer(params []float64, shape []int, weights []float64) (float64, []float64) {
	if !anyPositive(weights) {
		return 0, nil
	}
	strides := gridStrides(shape)
	penalty := 0.0
	grad := make([]float64, len(params))
	ndim := len(shape)
	idx := make([]int, ndim)
	for flat := range params {
		unravelIndex(flat, shape, idx)
		for d := 0; d < ndim; d++ {
			w := weights[d]
			if w == 0 || idx[d] >= shape[d]-1 {
				continue
			}
			diff := params[flat+strides[d]] - params[flat]
			penalty += w * diff * diff
			grad[flat] -= 2 * w * diff
			grad[flat+strides[d]] += 2 * w * diff
		}
	}
	return penalty, grad
}

// HessianRegularizer penalizes non-linearity of a calibrator: the weighted
// sum of squared first differences between consecutive heights.
func HessianRegularizer(heights []float64, weight float64) (float64, []float64) {
	if weight == 0 || len(heights) < 2 {
		return 0, nil
	}
	penalty := 0.0
	grad := make([]float64, len(heights))
	for i := 0; i < len(heights)-1; i++ {
		diff := heights[i+1] - heights[i]
		penalty += diff * diff
		grad[i] -= 2 * diff
		grad[i+1] += 2 * diff
	}
	floats.Scale(weight, grad)
	return weight * penalty, grad
}

// WrinkleRegularizer penalizes curvature change of a calibrator: the
// weighted sum of squared second differences of the heights.
func WrinkleRegularizer(heights []float64, weight float64) (float64, []float64) {
	if weight == 0 || len(heights) < 3 {
		return 0, nil
	}
	penalty := 0.0
	grad := make([]float64, len(heights))
	for i := 1; i < len(heights)-1; i++ {
		d2 := heights[i-1] - 2*heights[i] + heights[i+1]
		penalty += d2 * d2
		grad[i-1] += 2 * d2
		grad[i] -= 4 * d2
		grad[i+1] += 2 * d2
	}
	floats.Scale(weight, grad)
	return weight * penalty, grad
}

// TorsionRegularizer penalizes pairwise interaction in a lattice, driving
// the surface toward additive behavior: for every pair of dimensions, the
// squared mixed second difference of every elementary square spanning the
// pair. weights gives one weight per dimension; a pair's effective weight is
// the product of its two dimension weights, so zeroing either dimension
// skips the pair.
func TorsionRegularizer(params []float64, shape []int, weights []float64) (float64, []float64) {
	if !anyPositive(weights) {
		return 0, nil
	}
	strides := gridStrides(shape)
	ndim := len(shape)
	penalty := 0.0
	grad := make([]float64, len(params))
	idx := make([]int, ndim)
	for a := 0; a < ndim; a++ {
		for b := a + 1; b < ndim; b++ {
			w := weights[a] * weights[b]
			if w == 0 {
				continue
			}
			sa, sb := strides[a], strides[b]
			for flat := range params {
				unravelIndex(flat, shape, idx)
				if idx[a] >= shape[a]-1 || idx[b] >= shape[b]-1 {
					continue
				}
				t := params[flat] - params[flat+sa] - params[flat+sb] + params[flat+sa+sb]
				penalty += w * t * t
				grad[flat] += 2 * w * t
				grad[flat+sa] -= 2 * w * t
				grad[flat+sb] -= 2 * w * t
				grad[flat+sa+sb] += 2 * w * t
			}
		}
	}
	return penalty, grad
}

// anyPositive reports whether any weight is nonzero.
func anyPositive(weights []float64) bool {
	for _, w := range weights {
		if w != 0 {
			return true
		}
	}
	return false
}
