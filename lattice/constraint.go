package lattice

import "math"

// Constraint projection. Every declared shape constraint is expressed as
// linear inequalities on parameter differences and re-established after each
// optimizer step by projecting the parameters back onto the feasible set.
// One-dimensional monotonicity uses exact isotonic regression (pool adjacent
// violators); everything spanning several inequalities at once is handled by
// round-robin halfspace projections under a sweep cap, which is approximate:
// when the cap is hit the parameters are only approximately feasible and the
// caller gets a non-converged ProjectionReport.

// isotonicProject replaces v in place with its least-squares non-decreasing
// (sign > 0) or non-increasing (sign < 0) fit. Pool adjacent violators.
func isotonicProject(v []float64, sign int) {
	if sign == 0 || len(v) < 2 {
		return
	}
	if sign < 0 {
		for i := range v {
			v[i] = -v[i]
		}
		isotonicProject(v, 1)
		for i := range v {
			v[i] = -v[i]
		}
		return
	}

	// Blocks of pooled values: mean and count, merged while out of order.
	means := make([]float64, 0, len(v))
	counts := make([]int, 0, len(v))
	for _, x := range v {
		means = append(means, x)
		counts = append(counts, 1)
		for len(means) > 1 && means[len(means)-2] > means[len(means)-1] {
			n := len(means)
			total := means[n-2]*float64(counts[n-2]) + means[n-1]*float64(counts[n-1])
			counts[n-2] += counts[n-1]
			means[n-2] = total / float64(counts[n-2])
			means = means[:n-1]
			counts = counts[:n-1]
		}
	}
	i := 0
	for b := range means {
		for k := 0; k < counts[b]; k++ {
			v[i] = means[b]
			i++
		}
	}
}

// unimodalProject replaces v in place with its least-squares valley (or
// peak) fit: the best split into a non-increasing prefix and non-decreasing
// suffix over all split positions. Exact, O(n^2); sequences here are short.
func unimodalProject(v []float64, mode Unimodality) {
	if mode == UnimodalNone || len(v) < 3 {
		return
	}
	if mode == UnimodalPeak {
		for i := range v {
			v[i] = -v[i]
		}
		unimodalProject(v, UnimodalValley)
		for i := range v {
			v[i] = -v[i]
		}
		return
	}

	n := len(v)
	best := math.Inf(1)
	var bestFit []float64
	scratch := make([]float64, n)
	for split := 0; split <= n; split++ {
		copy(scratch, v)
		isotonicProject(scratch[:split], -1)
		isotonicProject(scratch[split:], 1)
		cost := 0.0
		for i := range v {
			d := scratch[i] - v[i]
			cost += d * d
		}
		if cost < best {
			best = cost
			bestFit = append(bestFit[:0], scratch...)
		}
	}
	copy(v, bestFit)
}

// convexPass runs one halfspace-projection pass over the second differences
// of v, pushing each consecutive triple toward the declared curvature.
// Returns the largest single adjustment made.
func convexPass(v []float64, conv Convexity) float64 {
	if conv == ConvexNone || len(v) < 3 {
		return 0
	}
	sign := 1.0
	if conv == ConvexConcave {
		sign = -1
	}
	maxDelta := 0.0
	for i := 1; i < len(v)-1; i++ {
		// Violation of sign * (v[i-1] - 2 v[i] + v[i+1]) >= 0, projected onto
		// the halfspace with normal (1, -2, 1), squared norm 6.
		s := sign * (v[i-1] - 2*v[i] + v[i+1])
		if s >= 0 {
			continue
		}
		step := -s / 6 * sign
		v[i-1] += step
		v[i] -= 2 * step
		v[i+1] += step
		if d := math.Abs(2 * step); d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

// clampPass boxes v into [lo, hi], returning the largest adjustment.
func clampPass(v []float64, lo, hi float64) float64 {
	maxDelta := 0.0
	for i, x := range v {
		c := x
		if c < lo {
			c = lo
		}
		if c > hi {
			c = hi
		}
		if c != x {
			if d := math.Abs(c - x); d > maxDelta {
				maxDelta = d
			}
			v[i] = c
		}
	}
	return maxDelta
}

// projectSequence runs the capped round-robin projection for a single
// parameter sequence (calibrator heights): isotonic, curvature, bounds.
func projectSequence(v []float64, mono Monotonicity, conv Convexity, lo, hi float64, opt ProjectionOptions) ProjectionReport {
	opt = opt.withDefaults()
	scratch := make([]float64, len(v))
	report := ProjectionReport{}
	for sweep := 1; sweep <= opt.MaxSweeps; sweep++ {
		report.Sweeps = sweep
		maxDelta := 0.0

		if s := monotonicSign(mono); s != 0 {
			copy(scratch, v)
			isotonicProject(v, s)
			if d := maxAbsDiff(scratch, v); d > maxDelta {
				maxDelta = d
			}
		}
		if d := convexPass(v, conv); d > maxDelta {
			maxDelta = d
		}
		if d := clampPass(v, lo, hi); d > maxDelta {
			maxDelta = d
		}

		report.MaxDelta = maxDelta
		if maxDelta <= opt.Tolerance {
			report.Converged = true
			return report
		}
	}
	return report
}

// sliceIter walks every 1-D slice of the grid aligned with dimension d,
// calling fn with the flattened index of the slice's first vertex. The
// elements of the slice are at base, base+strides[d], ...
func sliceIter(shape, strides []int, d int, fn func(base int)) {
	total := 1
	for _, n := range shape {
		total *= n
	}
	for flat := 0; flat < total; flat++ {
		if (flat/strides[d])%shape[d] != 0 {
			continue
		}
		fn(flat)
	}
}

// gatherSlice copies a 1-D grid slice into dst.
func gatherSlice(params []float64, base, stride, n int, dst []float64) {
	for i := 0; i < n; i++ {
		dst[i] = params[base+i*stride]
	}
}

// scatterSlice writes a 1-D grid slice back, returning the largest change.
func scatterSlice(params []float64, base, stride, n int, src []float64) float64 {
	maxDelta := 0.0
	for i := 0; i < n; i++ {
		idx := base + i*stride
		if d := math.Abs(src[i] - params[idx]); d > maxDelta {
			maxDelta = d
		}
		params[idx] = src[i]
	}
	return maxDelta
}

// trustPass runs one halfspace-projection pass over every elementary square
// spanning the trust constraint's two dimensions. The mixed second
// difference of each square must carry the declared sign.
func trustPass(params []float64, shape, strides []int, tr TrustConstraint) float64 {
	sign := 1.0
	if tr.Direction == MonotonicDecreasing {
		sign = -1
	}
	m, c := tr.MainDim, tr.CondDim
	sm, sc := strides[m], strides[c]

	ndim := len(shape)
	idx := make([]int, ndim)
	maxDelta := 0.0
	for flat := range params {
		unravelIndex(flat, shape, idx)
		if idx[m] >= shape[m]-1 || idx[c] >= shape[c]-1 {
			continue
		}
		q00 := flat
		q10 := flat + sm
		q01 := flat + sc
		q11 := flat + sm + sc
		// sign * (p11 - p01 - p10 + p00) >= 0, normal (1,-1,-1,1), norm^2 4.
		t := sign * (params[q11] - params[q01] - params[q10] + params[q00])
		if t >= 0 {
			continue
		}
		step := -t / 4 * sign
		params[q00] += step
		params[q11] += step
		params[q01] -= step
		params[q10] -= step
		if d := math.Abs(step); d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

// projectLattice re-establishes all declared lattice constraints with
// round-robin per-slice projections under the sweep cap.
func projectLattice(l *Lattice, opt ProjectionOptions) ProjectionReport {
	if !l.hasConstraints() {
		return ProjectionReport{Converged: true}
	}
	opt = opt.withDefaults()
	report := ProjectionReport{}

	maxLen := 0
	for _, n := range l.Shape {
		if n > maxLen {
			maxLen = n
		}
	}
	scratch := make([]float64, maxLen)

	for sweep := 1; sweep <= opt.MaxSweeps; sweep++ {
		report.Sweeps = sweep
		maxDelta := 0.0

		for d := 0; d < len(l.Shape); d++ {
			mono := dimConstraint(l.Monotonic, d, MonotonicNone)
			conv := dimConstraint(l.Convex, d, ConvexNone)
			uni := dimConstraint(l.Unimodal, d, UnimodalNone)
			if mono == MonotonicNone && conv == ConvexNone && uni == UnimodalNone {
				continue
			}
			n := l.Shape[d]
			stride := l.strides[d]
			slice := scratch[:n]
			sliceIter(l.Shape, l.strides, d, func(base int) {
				gatherSlice(l.Params, base, stride, n, slice)
				isotonicProject(slice, monotonicSign(mono))
				unimodalProject(slice, uni)
				convexPass(slice, conv)
				if delta := scatterSlice(l.Params, base, stride, n, slice); delta > maxDelta {
					maxDelta = delta
				}
			})
		}
		for _, tr := range l.Trusts {
			if delta := trustPass(l.Params, l.Shape, l.strides, tr); delta > maxDelta {
				maxDelta = delta
			}
		}

		report.MaxDelta = maxDelta
		if maxDelta <= opt.Tolerance {
			report.Converged = true
			break
		}
	}
	report.warn(opt, "lattice")
	return report
}

// maxAbsDiff returns the largest elementwise absolute difference.
func maxAbsDiff(a, b []float64) float64 {
	m := 0.0
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}
