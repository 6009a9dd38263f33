package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPWLHalfSegmentScenario(t *testing.T) {
	cal, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 10, 20},
		OutputMax:      1,
		InitialHeights: []float64{0, 0.5, 1},
	})
	require.NoError(t, err)

	// Halfway into the first segment.
	assert.InDelta(t, 0.25, cal.Evaluate(5), 1e-12)
	// Keypoints reproduce their heights.
	assert.InDelta(t, 0.0, cal.Evaluate(0), 1e-12)
	assert.InDelta(t, 0.5, cal.Evaluate(10), 1e-12)
	assert.InDelta(t, 1.0, cal.Evaluate(20), 1e-12)
}

func TestPWLDeterministicEvaluation(t *testing.T) {
	cal, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints: Keypoints{-1, 0, 2, 5},
		OutputMax: 1,
	})
	require.NoError(t, err)
	for _, x := range []float64{-3, -1, 0.7, 2, 4.9, 5, 8} {
		first := cal.Evaluate(x)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, cal.Evaluate(x))
		}
	}
}

func TestPWLGradientWeightsSumToOne(t *testing.T) {
	for _, mode := range []Extrapolation{ExtrapolateClamp, ExtrapolateLinear} {
		cal, err := NewPWLCalibrator(PWLCalibratorConfig{
			Keypoints:     Keypoints{0, 1, 3, 10},
			OutputMax:     1,
			Extrapolation: mode,
		})
		require.NoError(t, err)
		for _, x := range []float64{-5, 0, 0.5, 1, 2.2, 3, 9.9, 10, 40} {
			_, gradHeights := cal.Gradient(x)
			sum := 0.0
			nonzero := 0
			for _, g := range gradHeights {
				sum += g
				if g != 0 {
					nonzero++
				}
			}
			assert.InDelta(t, 1.0, sum, 1e-12, "mode %d x=%g", mode, x)
			assert.LessOrEqual(t, nonzero, 2)
		}
	}
}

func TestPWLGradientMatchesFiniteDifference(t *testing.T) {
	cal, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 10, 20},
		OutputMax:      1,
		InitialHeights: []float64{0.1, 0.7, 0.9},
		Extrapolation:  ExtrapolateLinear,
	})
	require.NoError(t, err)

	const eps = 1e-7
	for _, x := range []float64{-2, 3, 12.5, 25} {
		slope, gradHeights := cal.Gradient(x)

		fd := (cal.Evaluate(x+eps) - cal.Evaluate(x-eps)) / (2 * eps)
		assert.InDelta(t, fd, slope, 1e-6, "x=%g", x)

		for i := range cal.Heights {
			orig := cal.Heights[i]
			cal.Heights[i] = orig + eps
			up := cal.Evaluate(x)
			cal.Heights[i] = orig - eps
			dn := cal.Evaluate(x)
			cal.Heights[i] = orig
			assert.InDelta(t, (up-dn)/(2*eps), gradHeights[i], 1e-6, "x=%g height %d", x, i)
		}
	}
}

func TestPWLExtrapolationModes(t *testing.T) {
	clamp, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 10},
		OutputMax:      1,
		InitialHeights: []float64{0.2, 0.8},
	})
	require.NoError(t, err)
	linear, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 10},
		OutputMax:      1,
		InitialHeights: []float64{0.2, 0.8},
		Extrapolation:  ExtrapolateLinear,
	})
	require.NoError(t, err)

	// Clamp holds boundary values; linear continues the boundary slope 0.06.
	assert.InDelta(t, 0.2, clamp.Evaluate(-5), 1e-12)
	assert.InDelta(t, 0.8, clamp.Evaluate(15), 1e-12)
	assert.InDelta(t, 0.2-5*0.06, linear.Evaluate(-5), 1e-12)
	assert.InDelta(t, 0.8+5*0.06, linear.Evaluate(15), 1e-12)

	slope, _ := clamp.Gradient(-5)
	assert.Zero(t, slope)
	slope, _ = linear.Gradient(-5)
	assert.InDelta(t, 0.06, slope, 1e-12)
}

func TestPWLMonotonicProjection(t *testing.T) {
	cal, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 1, 2, 3, 4},
		OutputMax:      1,
		Monotonic:      MonotonicIncreasing,
		InitialHeights: []float64{0.5, 0.2, 0.9, 0.4, 0.6},
	})
	require.NoError(t, err)

	report := cal.Project(DefaultProjectionOptions())
	assert.True(t, report.Converged)
	for i := 1; i < len(cal.Heights); i++ {
		assert.GreaterOrEqual(t, cal.Heights[i], cal.Heights[i-1])
	}

	// Idempotent: re-projecting valid parameters moves nothing.
	before := append([]float64(nil), cal.Heights...)
	report = cal.Project(DefaultProjectionOptions())
	assert.True(t, report.Converged)
	assert.Equal(t, 1, report.Sweeps)
	assert.Equal(t, before, cal.Heights)
}

func TestPWLDecreasingAndConvexProjection(t *testing.T) {
	dec, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 1, 2, 3},
		OutputMax:      1,
		Monotonic:      MonotonicDecreasing,
		InitialHeights: []float64{0.1, 0.9, 0.3, 0.5},
	})
	require.NoError(t, err)
	dec.Project(DefaultProjectionOptions())
	for i := 1; i < len(dec.Heights); i++ {
		assert.LessOrEqual(t, dec.Heights[i], dec.Heights[i-1]+1e-9)
	}

	conv, err := NewPWLCalibrator(PWLCalibratorConfig{
		Keypoints:      Keypoints{0, 1, 2, 3, 4},
		OutputMin:      -2,
		OutputMax:      2,
		Convex:         ConvexConvex,
		InitialHeights: []float64{0, 1, 1.5, 1.2, 0.8},
	})
	require.NoError(t, err)
	report := conv.Project(ProjectionOptions{MaxSweeps: 5000, Tolerance: 1e-10})
	assert.True(t, report.Converged)
	for i := 1; i < len(conv.Heights)-1; i++ {
		d2 := conv.Heights[i-1] - 2*conv.Heights[i] + conv.Heights[i+1]
		assert.GreaterOrEqual(t, d2, -1e-8, "second difference at %d", i)
	}
}

func TestPWLConstructionErrors(t *testing.T) {
	cases := []PWLCalibratorConfig{
		{Keypoints: Keypoints{1}, OutputMax: 1},
		{Keypoints: Keypoints{}, OutputMax: 1},
		{Keypoints: Keypoints{0, 0, 1}, OutputMax: 1},
		{Keypoints: Keypoints{0, -1}, OutputMax: 1},
		{Keypoints: Keypoints{0, 1}, OutputMin: 1, OutputMax: 0},
		{Keypoints: Keypoints{0, 1}, OutputMax: 1, InitialHeights: []float64{0.5}},
	}
	for i, cfg := range cases {
		_, err := NewPWLCalibrator(cfg)
		require.Error(t, err, "case %d", i)
		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr, "case %d", i)
	}
}
