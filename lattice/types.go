package lattice

// Monotonicity declares the required direction of a function along one
// dimension or calibrator.
type Monotonicity int

const (
	MonotonicNone       Monotonicity = 0 // no ordering requirement
	MonotonicIncreasing Monotonicity = 1 // output non-decreasing in the input
	MonotonicDecreasing Monotonicity = 2 // output non-increasing in the input
)

// Convexity declares the required curvature along one dimension or
// calibrator.
type Convexity int

const (
	ConvexNone    Convexity = 0 // no curvature requirement
	ConvexConvex  Convexity = 1 // second differences non-negative
	ConvexConcave Convexity = 2 // second differences non-positive
)

// Unimodality declares a single-extremum shape along one dimension.
type Unimodality int

const (
	UnimodalNone   Unimodality = 0 // no shape requirement
	UnimodalValley Unimodality = 1 // decreasing then increasing
	UnimodalPeak   Unimodality = 2 // increasing then decreasing
)

// Interpolation selects the lattice interpolation kernel. The choice is made
// at construction time, never per call.
type Interpolation int

const (
	InterpolateMultilinear Interpolation = 0 // 2^D surrounding vertices
	InterpolateSimplex     Interpolation = 1 // D+1 vertices via simplex decomposition
)

// Extrapolation selects how a piecewise-linear calibrator treats inputs
// outside its keypoint range.
type Extrapolation int

const (
	ExtrapolateClamp  Extrapolation = 0 // hold the boundary keypoint value
	ExtrapolateLinear Extrapolation = 1 // continue the boundary segment's slope
)

// TrustConstraint ties two lattice dimensions together: the effect of
// MainDim must grow (Direction = MonotonicIncreasing) or shrink
// (MonotonicDecreasing) as CondDim increases. Expressed on the grid as a
// sign condition on the mixed second difference of every elementary cell
// spanning the two dimensions.
type TrustConstraint struct {
	MainDim   int
	CondDim   int
	Direction Monotonicity
}

// ProjectionOptions controls the iterative constraint projection shared by
// calibrators and lattices. Multi-dimensional projections sweep the declared
// constraints round-robin until no parameter moves more than Tolerance or
// MaxSweeps is reached.
type ProjectionOptions struct {
	MaxSweeps int     // sweep cap; <= 0 falls back to the default
	Tolerance float64 // L-infinity early-exit threshold; <= 0 falls back to the default
	Verbose   bool    // print a [WARNING] line when the cap is hit
}

const (
	defaultMaxSweeps = 100
	defaultTolerance = 1e-9
)

// DefaultProjectionOptions returns the package defaults (100 sweeps, 1e-9
// tolerance, quiet).
func DefaultProjectionOptions() ProjectionOptions {
	return ProjectionOptions{MaxSweeps: defaultMaxSweeps, Tolerance: defaultTolerance}
}

func (opt ProjectionOptions) withDefaults() ProjectionOptions {
	if opt.MaxSweeps <= 0 {
		opt.MaxSweeps = defaultMaxSweeps
	}
	if opt.Tolerance <= 0 {
		opt.Tolerance = defaultTolerance
	}
	return opt
}

// monotonicSign maps a direction to the sign used by the isotonic kernels.
// Returns 0 for MonotonicNone.
func monotonicSign(m Monotonicity) int {
	switch m {
	case MonotonicIncreasing:
		return 1
	case MonotonicDecreasing:
		return -1
	default:
		return 0
	}
}
