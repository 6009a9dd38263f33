// Package lattice implements calibrated interpolated lookup-table models.
//
// A model maps a raw feature vector to a scalar in two stages:
//   - Per-feature calibrators (piecewise-linear or categorical) normalize raw
//     inputs into a bounded range
//   - A lattice, a regular D-dimensional grid of learnable values, is
//     interpolated at the calibrated point to produce the output
//
// Shape constraints (monotonicity, convexity, unimodality, pairwise trust)
// are enforced by projecting parameters after each optimizer step, so the
// constraints hold exactly during evaluation while the model stays
// differentiable. High-dimensional problems are handled by ensembles of many
// small lattices (random tiny lattices or crystals) instead of one
// exponentially large grid.
//
// The package computes values and gradients; it does not own an optimizer.
// The caller runs the training loop:
//
//	model, _ := lattice.NewCalibratedLattice(cfg)
//	out := model.Forward(x)
//	grads := model.Backward(x, dLoss)
//	// apply grads with any SGD-style update, then:
//	model.ProjectConstraints(lattice.DefaultProjectionOptions())
package lattice

import (
	"math"
)

// LatticeConfig describes one interpolated lookup table over a regular grid.
// Shape gives the vertex count per dimension (each >= 2); constraints are
// declared per dimension and frozen after construction.
type LatticeConfig struct {
	Shape         []int
	Interpolation Interpolation

	// Per-dimension constraints. A nil slice means unconstrained.
	Monotonic []Monotonicity
	Convex    []Convexity
	Unimodal  []Unimodality
	Trusts    []TrustConstraint

	// Initialization range for the linear ramp initializer.
	OutputMin float64
	OutputMax float64
}

// Lattice holds the learnable grid values for one lookup table.
// Params is indexed by flattened multi-index: index = sum_d v_d * stride_d,
// with the last dimension varying fastest.
type Lattice struct {
	Shape         []int
	Params        []float64
	Interpolation Interpolation

	Monotonic []Monotonicity
	Convex    []Convexity
	Unimodal  []Unimodality
	Trusts    []TrustConstraint

	strides []int
}

// NewLattice validates the configuration and builds a lattice with linearly
// initialized parameters. Every dimension must have at least 2 vertices; a
// single-vertex dimension is rejected as degenerate.
func NewLattice(cfg LatticeConfig) (*Lattice, error) {
	if len(cfg.Shape) == 0 {
		return nil, configErrorf("lattice shape is empty")
	}
	total := 1
	for d, n := range cfg.Shape {
		if n < 2 {
			return nil, configErrorf("lattice dimension %d has %d vertices, need at least 2", d, n)
		}
		total *= n
	}
	ndim := len(cfg.Shape)
	if cfg.Monotonic != nil && len(cfg.Monotonic) != ndim {
		return nil, configErrorf("monotonic declarations: got %d, want %d", len(cfg.Monotonic), ndim)
	}
	if cfg.Convex != nil && len(cfg.Convex) != ndim {
		return nil, configErrorf("convexity declarations: got %d, want %d", len(cfg.Convex), ndim)
	}
	if cfg.Unimodal != nil && len(cfg.Unimodal) != ndim {
		return nil, configErrorf("unimodality declarations: got %d, want %d", len(cfg.Unimodal), ndim)
	}
	for d := 0; d < ndim; d++ {
		mono := dimConstraint(cfg.Monotonic, d, MonotonicNone)
		uni := dimConstraint(cfg.Unimodal, d, UnimodalNone)
		if mono != MonotonicNone && uni != UnimodalNone {
			return nil, configErrorf("dimension %d declares both monotonicity and unimodality", d)
		}
	}
	for _, tr := range cfg.Trusts {
		if tr.MainDim < 0 || tr.MainDim >= ndim || tr.CondDim < 0 || tr.CondDim >= ndim {
			return nil, configErrorf("trust constraint references dimension out of range: main=%d cond=%d", tr.MainDim, tr.CondDim)
		}
		if tr.MainDim == tr.CondDim {
			return nil, configErrorf("trust constraint on identical dimensions %d", tr.MainDim)
		}
		if tr.Direction == MonotonicNone {
			return nil, configErrorf("trust constraint between dimensions %d and %d has no direction", tr.MainDim, tr.CondDim)
		}
	}
	if cfg.Interpolation != InterpolateMultilinear && cfg.Interpolation != InterpolateSimplex {
		return nil, configErrorf("unknown interpolation mode %d", cfg.Interpolation)
	}

	lo, hi := cfg.OutputMin, cfg.OutputMax
	if lo == 0 && hi == 0 {
		hi = 1
	}
	if hi < lo {
		return nil, configErrorf("lattice output range [%g, %g] is inverted", lo, hi)
	}

	lat := &Lattice{
		Shape:         append([]int(nil), cfg.Shape...),
		Params:        make([]float64, total),
		Interpolation: cfg.Interpolation,
		Monotonic:     append([]Monotonicity(nil), cfg.Monotonic...),
		Convex:        append([]Convexity(nil), cfg.Convex...),
		Unimodal:      append([]Unimodality(nil), cfg.Unimodal...),
		Trusts:        append([]TrustConstraint(nil), cfg.Trusts...),
		strides:       gridStrides(cfg.Shape),
	}
	lat.initLinear(lo, hi)
	return lat, nil
}

// initLinear fills the grid with the average of per-dimension linear ramps
// scaled into [lo, hi]. Dimensions declared monotonically decreasing get a
// reversed ramp so the initial surface already satisfies the declaration.
func (l *Lattice) initLinear(lo, hi float64) {
	ndim := len(l.Shape)
	idx := make([]int, ndim)
	for flat := range l.Params {
		unravelIndex(flat, l.Shape, idx)
		sum := 0.0
		for d := 0; d < ndim; d++ {
			r := float64(idx[d]) / float64(l.Shape[d]-1)
			if dimConstraint(l.Monotonic, d, MonotonicNone) == MonotonicDecreasing {
				r = 1 - r
			}
			sum += r
		}
		l.Params[flat] = lo + (hi-lo)*sum/float64(ndim)
	}
}

// NumDims returns the number of lattice dimensions.
func (l *Lattice) NumDims() int { return len(l.Shape) }

// NumParams returns the total vertex count.
func (l *Lattice) NumParams() int { return len(l.Params) }

// Forward evaluates the lattice at a calibrated point in [0,1]^D.
// Out-of-range coordinates are clamped into the unit cube so a forward pass
// always produces a value.
func (l *Lattice) Forward(point []float64) float64 {
	idxs, weights := l.weights(point)
	out := 0.0
	for k, idx := range idxs {
		out += weights[k] * l.Params[idx]
	}
	return out
}

// Backward computes gradients at a calibrated point.
// gradOutput: gradient flowing back from the loss w.r.t. the lattice output.
// Returns the dense parameter gradient (nonzero only at the interpolation
// vertices: 2^D for multilinear, D+1 for simplex) and the gradient w.r.t.
// each input coordinate.
func (l *Lattice) Backward(point []float64, gradOutput float64) ([]float64, []float64) {
	gradParams := make([]float64, len(l.Params))
	idxs, weights := l.weights(point)
	for k, idx := range idxs {
		gradParams[idx] += gradOutput * weights[k]
	}
	gradInput := l.inputGradient(point)
	for d := range gradInput {
		gradInput[d] *= gradOutput
	}
	return gradParams, gradInput
}

// InputGradient returns df/du per dimension at a calibrated point, without a
// loss gradient applied.
func (l *Lattice) InputGradient(point []float64) []float64 {
	return l.inputGradient(point)
}

func (l *Lattice) weights(point []float64) ([]int, []float64) {
	if l.Interpolation == InterpolateSimplex {
		return simplexWeightsCPU(point, l.Shape, l.strides)
	}
	return multilinearWeightsCPU(point, l.Shape, l.strides)
}

func (l *Lattice) inputGradient(point []float64) []float64 {
	if l.Interpolation == InterpolateSimplex {
		return simplexInputGradCPU(point, l.Shape, l.strides, l.Params)
	}
	return multilinearInputGradCPU(point, l.Shape, l.strides, l.Params)
}

// Project re-establishes every declared constraint on the grid values.
// Constraints across multiple dimensions are handled by round-robin per-slice
// projections, which is an approximate joint projection: exact simultaneous
// satisfaction of all declarations is not guaranteed when the sweep cap is
// hit, and the report says so rather than hiding it.
func (l *Lattice) Project(opt ProjectionOptions) ProjectionReport {
	return projectLattice(l, opt)
}

// hasConstraints reports whether any projection work is declared.
func (l *Lattice) hasConstraints() bool {
	for _, m := range l.Monotonic {
		if m != MonotonicNone {
			return true
		}
	}
	for _, c := range l.Convex {
		if c != ConvexNone {
			return true
		}
	}
	for _, u := range l.Unimodal {
		if u != UnimodalNone {
			return true
		}
	}
	return len(l.Trusts) > 0
}

// gridStrides computes flattened-index strides, last dimension fastest.
func gridStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

// unravelIndex writes the multi-index of flat into out.
func unravelIndex(flat int, shape []int, out []int) {
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = flat % shape[d]
		flat /= shape[d]
	}
}

// dimConstraint reads a per-dimension declaration with a default for nil
// slices.
func dimConstraint[T comparable](decl []T, d int, def T) T {
	if decl == nil {
		return def
	}
	return decl[d]
}

// clamp01 clamps v into the unit interval. NaN collapses to 0 so degenerate
// inputs still produce a defined output.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
