package lattice

import "fmt"

// ConfigError reports an invalid construction-time configuration: bad
// keypoints, a degenerate grid shape, an infeasible ensemble assignment, or
// conflicting constraint declarations. Configuration is frozen after
// construction, so this error never occurs during evaluation.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ProjectionReport describes the outcome of one constraint projection.
// Non-convergence is a warning-level condition, not an error: the parameters
// are approximately constrained and training may continue.
type ProjectionReport struct {
	Converged bool    // true when the last sweep moved nothing beyond tolerance
	Sweeps    int     // sweeps actually run
	MaxDelta  float64 // largest parameter change in the final sweep
}

// merge combines reports from independently projected parameter containers
// into the worst case.
func (r ProjectionReport) merge(other ProjectionReport) ProjectionReport {
	out := ProjectionReport{
		Converged: r.Converged && other.Converged,
		Sweeps:    r.Sweeps,
		MaxDelta:  r.MaxDelta,
	}
	if other.Sweeps > out.Sweeps {
		out.Sweeps = other.Sweeps
	}
	if other.MaxDelta > out.MaxDelta {
		out.MaxDelta = other.MaxDelta
	}
	return out
}

func (r ProjectionReport) warn(opt ProjectionOptions, what string) {
	if opt.Verbose && !r.Converged {
		fmt.Printf("[WARNING] %s projection hit the sweep cap (%d sweeps, max delta %.3g)\n",
			what, r.Sweeps, r.MaxDelta)
	}
}
