package lattice

// Calibrator is the per-feature transform feeding a lattice: it maps one raw
// input to a bounded calibrated value and exposes gradients and constraint
// projection. Dispatch over calibrator kinds happens once at model
// construction, never per call.
type Calibrator interface {
	// Evaluate maps a raw input to the calibrated value.
	Evaluate(x float64) float64

	// Gradient returns the derivative w.r.t. the input and the gradient
	// w.r.t. the calibrator's parameters, in parameter order. The parameter
	// gradient is sparse in content: at most two entries are nonzero and
	// they sum to 1 for in-range inputs.
	Gradient(x float64) (float64, []float64)

	// Params exposes the learnable parameter slice. The external optimizer
	// mutates it; Project must be called afterward.
	Params() []float64

	// Project re-establishes the declared constraints. Idempotent.
	Project(opt ProjectionOptions) ProjectionReport
}

// PWLCalibratorConfig configures a piecewise-linear calibrator. Keypoints
// come from external statistics (commonly feature quantiles) and are frozen;
// the heights are the learnable parameters.
type PWLCalibratorConfig struct {
	Keypoints     Keypoints
	OutputMin     float64
	OutputMax     float64
	Monotonic     Monotonicity
	Convex        Convexity
	Extrapolation Extrapolation

	// InitialHeights overrides the default linear initialization. Must match
	// the keypoint count when set.
	InitialHeights []float64
}

// PWLCalibrator is a piecewise-linear function over fixed keypoints with one
// learnable output height per keypoint, each bounded to
// [OutputMin, OutputMax].
type PWLCalibrator struct {
	Keypoints     Keypoints
	Heights       []float64
	OutputMin     float64
	OutputMax     float64
	Monotonic     Monotonicity
	Convex        Convexity
	Extrapolation Extrapolation
}

// NewPWLCalibrator validates the configuration and initializes the heights
// linearly between the output bounds (reversed for a decreasing
// declaration) unless explicit initial heights are given.
func NewPWLCalibrator(cfg PWLCalibratorConfig) (*PWLCalibrator, error) {
	if err := cfg.Keypoints.Validate(); err != nil {
		return nil, err
	}
	lo, hi := cfg.OutputMin, cfg.OutputMax
	if lo == 0 && hi == 0 {
		hi = 1
	}
	if hi < lo {
		return nil, configErrorf("calibrator output range [%g, %g] is inverted", lo, hi)
	}
	n := len(cfg.Keypoints)
	heights := make([]float64, n)
	if cfg.InitialHeights != nil {
		if len(cfg.InitialHeights) != n {
			return nil, configErrorf("initial heights: got %d, want %d", len(cfg.InitialHeights), n)
		}
		copy(heights, cfg.InitialHeights)
	} else {
		for i := range heights {
			r := float64(i) / float64(n-1)
			if cfg.Monotonic == MonotonicDecreasing {
				r = 1 - r
			}
			heights[i] = lo + (hi-lo)*r
		}
	}

	cal := &PWLCalibrator{
		Keypoints:     append(Keypoints(nil), cfg.Keypoints...),
		Heights:       heights,
		OutputMin:     lo,
		OutputMax:     hi,
		Monotonic:     cfg.Monotonic,
		Convex:        cfg.Convex,
		Extrapolation: cfg.Extrapolation,
	}
	return cal, nil
}

// Evaluate maps a raw scalar to its calibrated value by linear interpolation
// between the two heights enclosing x. Out-of-range inputs either hold the
// boundary height or continue the boundary segment's slope, per the
// construction-time extrapolation mode. The heights themselves stay inside
// the output bounds, so only linear extrapolation can leave the range; a
// downstream lattice clamps its input into the unit cube regardless.
func (c *PWLCalibrator) Evaluate(x float64) float64 {
	seg, frac := c.Keypoints.Segment(x)
	if c.Extrapolation == ExtrapolateClamp {
		frac = clamp01(frac)
	}
	return (1-frac)*c.Heights[seg] + frac*c.Heights[seg+1]
}

// Gradient returns the local slope dy/dx and the height gradient: weight
// 1-frac on the segment's lower height and frac on the upper one. For a
// clamped out-of-range input the slope is 0 and the boundary height carries
// the full unit weight.
func (c *PWLCalibrator) Gradient(x float64) (float64, []float64) {
	gradHeights := make([]float64, len(c.Heights))
	seg, frac := c.Keypoints.Segment(x)
	if c.Extrapolation == ExtrapolateClamp {
		clamped := clamp01(frac)
		if clamped != frac {
			if clamped == 0 {
				gradHeights[seg] = 1
			} else {
				gradHeights[seg+1] = 1
			}
			return 0, gradHeights
		}
		frac = clamped
	}
	width := c.Keypoints[seg+1] - c.Keypoints[seg]
	slope := (c.Heights[seg+1] - c.Heights[seg]) / width
	gradHeights[seg] = 1 - frac
	gradHeights[seg+1] = frac
	return slope, gradHeights
}

// Params returns the learnable height slice.
func (c *PWLCalibrator) Params() []float64 { return c.Heights }

// Project re-establishes monotonicity (exact isotonic fit), curvature, and
// the output bounds on the heights.
func (c *PWLCalibrator) Project(opt ProjectionOptions) ProjectionReport {
	report := projectSequence(c.Heights, c.Monotonic, c.Convex, c.OutputMin, c.OutputMax, opt)
	report.warn(opt, "calibrator")
	return report
}
