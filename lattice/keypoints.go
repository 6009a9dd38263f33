package lattice

import "sort"

// Keypoints is the ordered sequence of input breakpoints for a
// piecewise-linear calibrator. It is set at construction from external
// statistics (commonly feature quantiles) and frozen afterward.
type Keypoints []float64

// Validate checks the construction invariants: at least two keypoints,
// strictly increasing, no duplicates.
func (kp Keypoints) Validate() error {
	if len(kp) < 2 {
		return configErrorf("need at least 2 keypoints, got %d", len(kp))
	}
	for i := 1; i < len(kp); i++ {
		if kp[i] <= kp[i-1] {
			return configErrorf("keypoints must be strictly increasing: kp[%d]=%g, kp[%d]=%g",
				i-1, kp[i-1], i, kp[i])
		}
	}
	return nil
}

// Segment locates the keypoint interval for x and the fractional position
// within it. The returned index is always in [0, len(kp)-2]; out-of-range
// inputs map to the boundary segment with a fraction below 0 or above 1, so
// the caller decides between clamping and linear extrapolation.
func (kp Keypoints) Segment(x float64) (int, float64) {
	// First index with kp[i] >= x, biased into the valid segment range.
	i := sort.SearchFloat64s(kp, x)
	if i > 0 {
		i--
	}
	if i > len(kp)-2 {
		i = len(kp) - 2
	}
	frac := (x - kp[i]) / (kp[i+1] - kp[i])
	return i, frac
}

// Min returns the first keypoint.
func (kp Keypoints) Min() float64 { return kp[0] }

// Max returns the last keypoint.
func (kp Keypoints) Max() float64 { return kp[len(kp)-1] }
