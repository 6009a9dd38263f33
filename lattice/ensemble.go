package lattice

import (
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// EnsembleConfig wires an assignment (from BuildRTLAssignment or
// BuildCrystalsAssignment) into a runnable model. Calibrators are shared:
// one per feature, feeding every sublattice that consumes the feature.
// Per-feature constraint declarations are carried onto every sublattice
// dimension bound to that feature.
type EnsembleConfig struct {
	Calibrators []Calibrator
	Assignment  [][]int

	// LatticeVertices is the vertex count used for every sublattice
	// dimension; 0 means 2.
	LatticeVertices int
	Interpolation   Interpolation

	// Monotonic declares per-feature direction, applied to every sublattice
	// dimension consuming the feature. nil means unconstrained.
	Monotonic []Monotonicity

	OutputMin float64
	OutputMax float64

	// LearnWeights makes the per-sublattice combination weights ordinary
	// trainable parameters instead of the fixed uniform average.
	LearnWeights bool
}

// Ensemble combines many small lattices over feature subsets into one model.
// Output is the weighted sum of sublattice outputs; with fixed uniform
// weights that is the arithmetic mean.
type Ensemble struct {
	Calibrators []Calibrator
	Assignment  [][]int
	Lattices    []*Lattice

	// Weights holds one combination weight per sublattice, uniform 1/K
	// unless LearnWeights was set (then the optimizer owns them like any
	// other parameter).
	Weights      []float64
	LearnWeights bool
}

// EnsembleGradients holds everything Ensemble.Backward produces. Weights is
// nil unless the ensemble learns its combination weights.
type EnsembleGradients struct {
	Calibrator [][]float64
	Lattices   [][]float64
	Weights    []float64
	Input      []float64
}

// NewEnsemble validates the assignment against the calibrators and builds
// one sublattice per assignment entry.
func NewEnsemble(cfg EnsembleConfig) (*Ensemble, error) {
	if len(cfg.Calibrators) == 0 {
		return nil, configErrorf("ensemble has no calibrators")
	}
	if len(cfg.Assignment) == 0 {
		return nil, configErrorf("ensemble has no sublattices")
	}
	if cfg.Monotonic != nil && len(cfg.Monotonic) != len(cfg.Calibrators) {
		return nil, configErrorf("monotonic declarations: got %d, want %d", len(cfg.Monotonic), len(cfg.Calibrators))
	}
	verts := cfg.LatticeVertices
	if verts == 0 {
		verts = 2
	}
	if verts < 2 {
		return nil, configErrorf("sublattice vertex count %d, need at least 2", verts)
	}

	numFeatures := len(cfg.Calibrators)
	lattices := make([]*Lattice, len(cfg.Assignment))
	for k, members := range cfg.Assignment {
		if len(members) == 0 {
			return nil, configErrorf("sublattice %d consumes no features", k)
		}
		shape := make([]int, len(members))
		mono := make([]Monotonicity, len(members))
		for d, f := range members {
			if f < 0 || f >= numFeatures {
				return nil, configErrorf("sublattice %d references feature %d, have %d features", k, f, numFeatures)
			}
			shape[d] = verts
			if cfg.Monotonic != nil {
				mono[d] = cfg.Monotonic[f]
			}
		}
		lat, err := NewLattice(LatticeConfig{
			Shape:         shape,
			Interpolation: cfg.Interpolation,
			Monotonic:     mono,
			OutputMin:     cfg.OutputMin,
			OutputMax:     cfg.OutputMax,
		})
		if err != nil {
			return nil, err
		}
		lattices[k] = lat
	}

	weights := make([]float64, len(cfg.Assignment))
	for k := range weights {
		weights[k] = 1 / float64(len(weights))
	}
	return &Ensemble{
		Calibrators:  cfg.Calibrators,
		Assignment:   copyAssignment(cfg.Assignment),
		Lattices:     lattices,
		Weights:      weights,
		LearnWeights: cfg.LearnWeights,
	}, nil
}

// NumFeatures returns the raw input width the ensemble consumes.
func (e *Ensemble) NumFeatures() int { return len(e.Calibrators) }

// Calibrate maps the raw feature vector through the shared calibrators.
func (e *Ensemble) Calibrate(x []float64) []float64 {
	u := make([]float64, len(e.Calibrators))
	for i, c := range e.Calibrators {
		u[i] = c.Evaluate(x[i])
	}
	return u
}

// Forward evaluates every sublattice on its feature subset and combines the
// outputs with the ensemble weights.
func (e *Ensemble) Forward(x []float64) float64 {
	u := e.Calibrate(x)
	outs := e.sublatticeOutputs(u)
	return floats.Dot(e.Weights, outs)
}

// ForwardParallel evaluates the sublattices concurrently. Evaluation is pure
// over immutable configuration, so the fan-out needs no coordination beyond
// the join; it must not overlap a parameter update.
func (e *Ensemble) ForwardParallel(x []float64) float64 {
	u := e.Calibrate(x)
	outs := make([]float64, len(e.Lattices))
	g := new(errgroup.Group)
	for k := range e.Lattices {
		k := k
		g.Go(func() error {
			outs[k] = e.Lattices[k].Forward(gatherPoint(u, e.Assignment[k]))
			return nil
		})
	}
	// Evaluation never fails; Wait only joins the workers.
	_ = g.Wait()
	return floats.Dot(e.Weights, outs)
}

// Backward computes all gradients for a raw input. Gradient flow mirrors the
// combine rule: each sublattice receives gradOutput scaled by its weight,
// calibrator gradients accumulate across every sublattice consuming the
// feature, and weight gradients (when learned) are the raw sublattice
// outputs times gradOutput.
func (e *Ensemble) Backward(x []float64, gradOutput float64) *EnsembleGradients {
	u := e.Calibrate(x)

	out := &EnsembleGradients{
		Calibrator: make([][]float64, len(e.Calibrators)),
		Lattices:   make([][]float64, len(e.Lattices)),
		Input:      make([]float64, len(x)),
	}
	if e.LearnWeights {
		out.Weights = make([]float64, len(e.Weights))
	}

	// Accumulated df/du per feature across sublattices.
	gradPoint := make([]float64, len(u))
	for k, lat := range e.Lattices {
		point := gatherPoint(u, e.Assignment[k])
		gradLat, gradIn := lat.Backward(point, gradOutput*e.Weights[k])
		out.Lattices[k] = gradLat
		for d, f := range e.Assignment[k] {
			gradPoint[f] += gradIn[d]
		}
		if e.LearnWeights {
			out.Weights[k] = gradOutput * lat.Forward(point)
		}
	}

	for i, c := range e.Calibrators {
		slope, gradParams := c.Gradient(x[i])
		for j := range gradParams {
			gradParams[j] *= gradPoint[i]
		}
		out.Calibrator[i] = gradParams
		out.Input[i] = gradPoint[i] * slope
	}
	return out
}

// ProjectConstraints re-establishes the declared constraints on every
// calibrator and sublattice. Serialized by the caller like any other
// parameter update.
func (e *Ensemble) ProjectConstraints(opt ProjectionOptions) ProjectionReport {
	report := ProjectionReport{Converged: true}
	for _, c := range e.Calibrators {
		report = report.merge(c.Project(opt))
	}
	for _, lat := range e.Lattices {
		report = report.merge(lat.Project(opt))
	}
	return report
}

func (e *Ensemble) sublatticeOutputs(u []float64) []float64 {
	outs := make([]float64, len(e.Lattices))
	for k, lat := range e.Lattices {
		outs[k] = lat.Forward(gatherPoint(u, e.Assignment[k]))
	}
	return outs
}

// gatherPoint selects the calibrated coordinates a sublattice consumes.
func gatherPoint(u []float64, members []int) []float64 {
	point := make([]float64, len(members))
	for d, f := range members {
		point[d] = u[f]
	}
	return point
}

func copyAssignment(a [][]int) [][]int {
	out := make([][]int, len(a))
	for k, members := range a {
		out[k] = append([]int(nil), members...)
	}
	return out
}
