package lattice

import "math/rand"

// RTLConfig configures a Random Tiny Lattices assignment: NumLattices
// sublattices of LatticeRank features each, drawn uniformly at random from
// NumFeatures features. The draw depends only on Seed, never on data.
type RTLConfig struct {
	NumFeatures int
	NumLattices int
	LatticeRank int
	Seed        int64

	// NoRepeats forbids a feature appearing twice within the same
	// sublattice. Requires LatticeRank <= NumFeatures.
	NoRepeats bool
}

// BuildRTLAssignment draws the feature subset for each sublattice.
// Deterministic for a fixed seed.
func BuildRTLAssignment(cfg RTLConfig) ([][]int, error) {
	if cfg.NumFeatures < 1 {
		return nil, configErrorf("rtl: need at least 1 feature, got %d", cfg.NumFeatures)
	}
	if cfg.NumLattices < 1 {
		return nil, configErrorf("rtl: need at least 1 sublattice, got %d", cfg.NumLattices)
	}
	if cfg.LatticeRank < 1 {
		return nil, configErrorf("rtl: sublattice rank %d is not positive", cfg.LatticeRank)
	}
	if cfg.NoRepeats && cfg.LatticeRank > cfg.NumFeatures {
		return nil, configErrorf("rtl: rank %d exceeds %d features with repeats forbidden",
			cfg.LatticeRank, cfg.NumFeatures)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	assignment := make([][]int, cfg.NumLattices)
	for k := range assignment {
		members := make([]int, 0, cfg.LatticeRank)
		seen := make(map[int]bool, cfg.LatticeRank)
		for len(members) < cfg.LatticeRank {
			f := rng.Intn(cfg.NumFeatures)
			if cfg.NoRepeats && seen[f] {
				continue
			}
			seen[f] = true
			members = append(members, f)
		}
		assignment[k] = members
	}
	return assignment, nil
}
