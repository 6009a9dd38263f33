package lattice

import "sort"

// Interpolation kernels. Both kernels operate on a calibrated point in
// [0,1]^D over a grid described by shape and flattened-index strides. The
// multilinear kernel touches the 2^D vertices of the containing cell; the
// simplex kernel decomposes each cell into D! simplices and touches only the
// D+1 vertices of the one containing the point, trading interpolation
// accuracy for sparser gradients.

// cellLocate maps one coordinate in [0,1] to the grid interval containing it
// and the fractional offset within that interval. The interval index is in
// [0, verts-2]: a point exactly on the upper boundary takes the last
// interval with offset 1, never a zero-width interval, so the weights stay
// well-defined. Coordinates outside [0,1] are clamped.
func cellLocate(u float64, verts int) (int, float64) {
	scaled := clamp01(u) * float64(verts-1)
	base := int(scaled)
	if base > verts-2 {
		base = verts - 2
	}
	return base, scaled - float64(base)
}

// multilinearWeightsCPU returns the flattened vertex indices of the
// containing cell and the multilinear weight of each vertex: the product,
// across dimensions, of (1-offset) or offset depending on the corner bit.
// The weights sum to 1.
func multilinearWeightsCPU(point []float64, shape, strides []int) ([]int, []float64) {
	ndim := len(shape)
	base := make([]int, ndim)
	frac := make([]float64, ndim)
	baseFlat := 0
	for d := 0; d < ndim; d++ {
		base[d], frac[d] = cellLocate(point[d], shape[d])
		baseFlat += base[d] * strides[d]
	}

	corners := 1 << ndim
	idxs := make([]int, corners)
	weights := make([]float64, corners)
	for c := 0; c < corners; c++ {
		idx := baseFlat
		w := 1.0
		for d := 0; d < ndim; d++ {
			if c&(1<<d) != 0 {
				idx += strides[d]
				w *= frac[d]
			} else {
				w *= 1 - frac[d]
			}
		}
		idxs[c] = idx
		weights[c] = w
	}
	return idxs, weights
}

// multilinearInputGradCPU computes df/du per dimension: for each dimension
// the weighted sum of finite differences across the dimension's hyperplane,
// scaled by the interval count so the gradient is with respect to the unit
// coordinate.
func multilinearInputGradCPU(point []float64, shape, strides []int, params []float64) []float64 {
	ndim := len(shape)
	base := make([]int, ndim)
	frac := make([]float64, ndim)
	baseFlat := 0
	for d := 0; d < ndim; d++ {
		base[d], frac[d] = cellLocate(point[d], shape[d])
		baseFlat += base[d] * strides[d]
	}

	grad := make([]float64, ndim)
	corners := 1 << ndim
	for c := 0; c < corners; c++ {
		idx := baseFlat
		for d := 0; d < ndim; d++ {
			if c&(1<<d) != 0 {
				idx += strides[d]
			}
		}
		p := params[idx]
		for d := 0; d < ndim; d++ {
			// Weight over all dimensions except d, signed by d's corner bit.
			w := 1.0
			for e := 0; e < ndim; e++ {
				if e == d {
					continue
				}
				if c&(1<<e) != 0 {
					w *= frac[e]
				} else {
					w *= 1 - frac[e]
				}
			}
			if c&(1<<d) != 0 {
				grad[d] += w * p
			} else {
				grad[d] -= w * p
			}
		}
	}
	for d := 0; d < ndim; d++ {
		grad[d] *= float64(shape[d] - 1)
	}
	return grad
}

// simplexOrder returns the dimensions of a cell sorted by descending
// fractional offset, ties broken by lower dimension first so the
// decomposition is deterministic on simplex boundaries.
func simplexOrder(frac []float64) []int {
	order := make([]int, len(frac))
	for d := range order {
		order[d] = d
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frac[order[a]] > frac[order[b]]
	})
	return order
}

// simplexWeightsCPU returns the D+1 vertex indices of the simplex containing
// the point and their interpolation weights. Walking from the cell's base
// corner, one grid step is taken per dimension in descending-offset order;
// consecutive offset differences are the weights. The weights sum to 1.
func simplexWeightsCPU(point []float64, shape, strides []int) ([]int, []float64) {
	ndim := len(shape)
	frac := make([]float64, ndim)
	baseFlat := 0
	for d := 0; d < ndim; d++ {
		var base int
		base, frac[d] = cellLocate(point[d], shape[d])
		baseFlat += base * strides[d]
	}
	order := simplexOrder(frac)

	idxs := make([]int, ndim+1)
	weights := make([]float64, ndim+1)
	idxs[0] = baseFlat
	weights[0] = 1 - frac[order[0]]
	idx := baseFlat
	for k := 0; k < ndim; k++ {
		idx += strides[order[k]]
		idxs[k+1] = idx
		if k+1 < ndim {
			weights[k+1] = frac[order[k]] - frac[order[k+1]]
		} else {
			weights[k+1] = frac[order[k]]
		}
	}
	return idxs, weights
}

// simplexInputGradCPU computes df/du per dimension for the simplex kernel:
// within one simplex the function is affine, so the partial along the
// dimension stepped at position k is the vertex difference across that step.
func simplexInputGradCPU(point []float64, shape, strides []int, params []float64) []float64 {
	ndim := len(shape)
	frac := make([]float64, ndim)
	baseFlat := 0
	for d := 0; d < ndim; d++ {
		var base int
		base, frac[d] = cellLocate(point[d], shape[d])
		baseFlat += base * strides[d]
	}
	order := simplexOrder(frac)

	grad := make([]float64, ndim)
	idx := baseFlat
	prev := params[idx]
	for k := 0; k < ndim; k++ {
		d := order[k]
		idx += strides[d]
		cur := params[idx]
		grad[d] = (cur - prev) * float64(shape[d]-1)
		prev = cur
	}
	return grad
}
