package lattice

import "math"

// CategoricalCalibratorConfig configures a lookup-table calibrator for
// discrete categories. Category ids are 0..NumCategories-1; every other id
// (negative, too large, NaN) resolves to a reserved missing bucket.
type CategoricalCalibratorConfig struct {
	NumCategories int
	OutputMin     float64
	OutputMax     float64

	// Orderings lists pairs [a, b] requiring output(a) <= output(b).
	Orderings [][2]int

	// InitialOutputs overrides the default mid-range initialization. Length
	// NumCategories+1; the last entry is the missing bucket.
	InitialOutputs []float64
}

// CategoricalCalibrator maps category ids to learnable bounded outputs by
// direct lookup. No interpolation: the gradient puts unit weight on exactly
// the bucket that was read.
type CategoricalCalibrator struct {
	NumCategories int
	Outputs       []float64 // len NumCategories+1, last entry = missing bucket
	OutputMin     float64
	OutputMax     float64
	Orderings     [][2]int
}

// NewCategoricalCalibrator validates the configuration and initializes all
// buckets to the middle of the output range.
func NewCategoricalCalibrator(cfg CategoricalCalibratorConfig) (*CategoricalCalibrator, error) {
	if cfg.NumCategories < 1 {
		return nil, configErrorf("need at least 1 category, got %d", cfg.NumCategories)
	}
	lo, hi := cfg.OutputMin, cfg.OutputMax
	if lo == 0 && hi == 0 {
		hi = 1
	}
	if hi < lo {
		return nil, configErrorf("calibrator output range [%g, %g] is inverted", lo, hi)
	}
	for _, pair := range cfg.Orderings {
		for _, id := range []int{pair[0], pair[1]} {
			if id < 0 || id >= cfg.NumCategories {
				return nil, configErrorf("ordering references category %d, have %d categories", id, cfg.NumCategories)
			}
		}
		if pair[0] == pair[1] {
			return nil, configErrorf("ordering pairs category %d with itself", pair[0])
		}
	}

	outputs := make([]float64, cfg.NumCategories+1)
	if cfg.InitialOutputs != nil {
		if len(cfg.InitialOutputs) != len(outputs) {
			return nil, configErrorf("initial outputs: got %d, want %d", len(cfg.InitialOutputs), len(outputs))
		}
		copy(outputs, cfg.InitialOutputs)
	} else {
		mid := (lo + hi) / 2
		for i := range outputs {
			outputs[i] = mid
		}
	}

	return &CategoricalCalibrator{
		NumCategories: cfg.NumCategories,
		Outputs:       outputs,
		OutputMin:     lo,
		OutputMax:     hi,
		Orderings:     append([][2]int(nil), cfg.Orderings...),
	}, nil
}

// MissingID is the reserved bucket index for unknown or missing categories.
func (c *CategoricalCalibrator) MissingID() int { return c.NumCategories }

// bucket resolves a raw input to a bucket index. Anything that is not a
// valid category id lands in the missing bucket, never an error.
func (c *CategoricalCalibrator) bucket(x float64) int {
	if math.IsNaN(x) {
		return c.NumCategories
	}
	id := int(x)
	if id < 0 || id >= c.NumCategories {
		return c.NumCategories
	}
	return id
}

// Evaluate looks up the calibrated output for a category id.
func (c *CategoricalCalibrator) Evaluate(x float64) float64 {
	return c.Outputs[c.bucket(x)]
}

// Gradient puts unit weight on the bucket read by Evaluate. The input
// derivative of a lookup is 0.
func (c *CategoricalCalibrator) Gradient(x float64) (float64, []float64) {
	grad := make([]float64, len(c.Outputs))
	grad[c.bucket(x)] = 1
	return 0, grad
}

// Params returns the learnable bucket outputs, missing bucket included.
func (c *CategoricalCalibrator) Params() []float64 { return c.Outputs }

// Project clamps the outputs to their bounds and repairs violated ordering
// pairs by moving both ends to their midpoint, sweeping until stable or the
// cap is hit.
func (c *CategoricalCalibrator) Project(opt ProjectionOptions) ProjectionReport {
	opt = opt.withDefaults()
	report := ProjectionReport{}
	for sweep := 1; sweep <= opt.MaxSweeps; sweep++ {
		report.Sweeps = sweep
		maxDelta := clampPass(c.Outputs, c.OutputMin, c.OutputMax)
		for _, pair := range c.Orderings {
			lo, hi := c.Outputs[pair[0]], c.Outputs[pair[1]]
			if lo <= hi {
				continue
			}
			mid := (lo + hi) / 2
			c.Outputs[pair[0]] = mid
			c.Outputs[pair[1]] = mid
			if d := math.Abs(lo - mid); d > maxDelta {
				maxDelta = d
			}
		}
		report.MaxDelta = maxDelta
		if maxDelta <= opt.Tolerance {
			report.Converged = true
			break
		}
	}
	report.warn(opt, "categorical calibrator")
	return report
}
