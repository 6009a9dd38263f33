package lattice

// CalibratedLatticeConfig wires one calibrator per feature into a single
// lattice. Calibrator i feeds lattice dimension i, so the lattice shape must
// have one entry per calibrator.
type CalibratedLatticeConfig struct {
	Calibrators []Calibrator
	Lattice     LatticeConfig
}

// CalibratedLattice is the two-stage model: raw feature vector -> per-feature
// calibrators -> lattice -> scalar output.
type CalibratedLattice struct {
	Calibrators []Calibrator
	Lattice     *Lattice
}

// Gradients holds everything Backward produces. Calibrator[i] matches
// Calibrators[i].Params(); Lattice matches Lattice.Params; Input is the
// gradient w.r.t. the raw feature vector.
type Gradients struct {
	Calibrator [][]float64
	Lattice    []float64
	Input      []float64
}

// NewCalibratedLattice validates the wiring and builds the lattice.
func NewCalibratedLattice(cfg CalibratedLatticeConfig) (*CalibratedLattice, error) {
	if len(cfg.Calibrators) == 0 {
		return nil, configErrorf("model has no calibrators")
	}
	if len(cfg.Lattice.Shape) != len(cfg.Calibrators) {
		return nil, configErrorf("lattice has %d dimensions for %d calibrators",
			len(cfg.Lattice.Shape), len(cfg.Calibrators))
	}
	for i, c := range cfg.Calibrators {
		if c == nil {
			return nil, configErrorf("calibrator %d is nil", i)
		}
	}
	lat, err := NewLattice(cfg.Lattice)
	if err != nil {
		return nil, err
	}
	return &CalibratedLattice{
		Calibrators: cfg.Calibrators,
		Lattice:     lat,
	}, nil
}

// NumFeatures returns the raw input width the model consumes.
func (m *CalibratedLattice) NumFeatures() int { return len(m.Calibrators) }

// Calibrate maps a raw feature vector to the calibrated point consumed by
// the lattice.
func (m *CalibratedLattice) Calibrate(x []float64) []float64 {
	u := make([]float64, len(m.Calibrators))
	for i, c := range m.Calibrators {
		u[i] = c.Evaluate(x[i])
	}
	return u
}

// Forward evaluates the model on a raw feature vector.
func (m *CalibratedLattice) Forward(x []float64) float64 {
	return m.Lattice.Forward(m.Calibrate(x))
}

// Backward computes all gradients for a raw input given the loss gradient
// w.r.t. the model output. Calibrator parameter gradients chain the lattice
// input gradient through each calibrator's interpolation weights; the raw
// input gradient chains it through the calibrator slopes.
func (m *CalibratedLattice) Backward(x []float64, gradOutput float64) *Gradients {
	u := m.Calibrate(x)
	gradLattice, gradPoint := m.Lattice.Backward(u, gradOutput)

	out := &Gradients{
		Calibrator: make([][]float64, len(m.Calibrators)),
		Lattice:    gradLattice,
		Input:      make([]float64, len(x)),
	}
	for i, c := range m.Calibrators {
		slope, gradParams := c.Gradient(x[i])
		for j := range gradParams {
			gradParams[j] *= gradPoint[i]
		}
		out.Calibrator[i] = gradParams
		out.Input[i] = gradPoint[i] * slope
	}
	return out
}

// ProjectConstraints re-establishes every declared constraint on the
// calibrators and the lattice. Called by the external training loop after
// each parameter update; idempotent on already-valid parameters. Concurrent
// calls against the same model are not safe and must be serialized by the
// caller.
func (m *CalibratedLattice) ProjectConstraints(opt ProjectionOptions) ProjectionReport {
	report := ProjectionReport{Converged: true}
	for _, c := range m.Calibrators {
		report = report.merge(c.Project(opt))
	}
	return report.merge(m.Lattice.Project(opt))
}
