package lattice

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Crystals builds the ensemble assignment in two stages: a prefit over the
// training data estimates how strongly every feature pair interacts, then a
// greedy pass packs strongly interacting features into the same sublattices.
// Both stages run once, before any lattice is instantiated, and their output
// is immutable for the model's lifetime.

// InteractionMatrix is the symmetric mapping from feature pairs to a
// non-negative interaction-strength score. Produced by the prefit or
// supplied externally; read-only input to the assignment pass.
type InteractionMatrix struct {
	Labels  []string    `json:"labels"`
	Scores  [][]float64 `json:"scores"`
	N       int         `json:"n"`
	Samples int         `json:"samples"`

	// Correlations carries the per-pair Pearson correlation from the prefit
	// for diagnostics. Empty when the matrix was supplied externally.
	Correlations [][]float64 `json:"correlations,omitempty"`
}

// InteractionPair is one ranked entry of the interaction report.
type InteractionPair struct {
	IndexA      int     `json:"index_a"`
	IndexB      int     `json:"index_b"`
	FeatureA    string  `json:"feature_a"`
	FeatureB    string  `json:"feature_b"`
	Score       float64 `json:"score"`
	Correlation float64 `json:"correlation"`
}

// Validate checks the matrix invariants: square, symmetric, non-negative.
func (im *InteractionMatrix) Validate() error {
	if im.N < 1 || len(im.Scores) != im.N {
		return configErrorf("interaction matrix: %d rows for n=%d", len(im.Scores), im.N)
	}
	for i, row := range im.Scores {
		if len(row) != im.N {
			return configErrorf("interaction matrix row %d has %d entries, want %d", i, len(row), im.N)
		}
		for j, s := range row {
			if s < 0 || math.IsNaN(s) {
				return configErrorf("interaction matrix entry (%d,%d) = %g is not a valid score", i, j, s)
			}
			if im.Scores[j][i] != s {
				return configErrorf("interaction matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// Score returns the interaction strength of an unordered feature pair.
func (im *InteractionMatrix) Score(a, b int) float64 {
	return im.Scores[a][b]
}

// TopPairs returns all pairs with score >= threshold, strongest first; equal
// scores order by lower indices.
func (im *InteractionMatrix) TopPairs(threshold float64) []InteractionPair {
	var pairs []InteractionPair
	for i := 0; i < im.N; i++ {
		for j := i + 1; j < im.N; j++ {
			if im.Scores[i][j] < threshold {
				continue
			}
			p := InteractionPair{
				IndexA:   i,
				IndexB:   j,
				FeatureA: im.label(i),
				FeatureB: im.label(j),
				Score:    im.Scores[i][j],
			}
			if im.Correlations != nil {
				p.Correlation = im.Correlations[i][j]
			}
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].Score > pairs[b].Score
	})
	return pairs
}

func (im *InteractionMatrix) label(i int) string {
	if i < len(im.Labels) {
		return im.Labels[i]
	}
	return "F" + itoa(i)
}

// ToJSON serializes the matrix for diagnostics.
func (im *InteractionMatrix) ToJSON() (string, error) {
	data, err := json.MarshalIndent(im, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InteractionMatrixFromJSON deserializes a matrix produced by ToJSON or by
// an external prefit.
func InteractionMatrixFromJSON(jsonStr string) (*InteractionMatrix, error) {
	var im InteractionMatrix
	if err := json.Unmarshal([]byte(jsonStr), &im); err != nil {
		return nil, err
	}
	if err := im.Validate(); err != nil {
		return nil, err
	}
	return &im, nil
}

// PrefitInteractionMatrix estimates pairwise interaction strength from data.
// data is sample-major (rows are samples, columns are features); y is the
// target. For every feature pair a lightweight model
//
//	y ~ b0 + b1*a + b2*b + b3*a*b
//
// is fit by least squares on min-max normalized columns; |b3| is exactly the
// torsion of the equivalent 2x2 lattice over the pair and serves as the
// interaction score. Scores are normalized by their 95th percentile so
// thresholds transfer across datasets.
func PrefitInteractionMatrix(data [][]float64, y []float64, labels []string) (*InteractionMatrix, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, configErrorf("prefit: empty dataset")
	}
	numSamples := len(data)
	numFeatures := len(data[0])
	if len(y) != numSamples {
		return nil, configErrorf("prefit: %d targets for %d samples", len(y), numSamples)
	}
	if numSamples < 4 {
		return nil, configErrorf("prefit: need at least 4 samples, got %d", numSamples)
	}
	for i, row := range data {
		if len(row) != numFeatures {
			return nil, configErrorf("prefit: sample %d has %d features, want %d", i, len(row), numFeatures)
		}
	}
	if labels == nil || len(labels) != numFeatures {
		labels = make([]string, numFeatures)
		for i := range labels {
			labels[i] = "F" + itoa(i)
		}
	}

	// Min-max normalize each column; a constant column collapses to zeros.
	cols := make([][]float64, numFeatures)
	for j := 0; j < numFeatures; j++ {
		col := make([]float64, numSamples)
		lo, hi := data[0][j], data[0][j]
		for i := 0; i < numSamples; i++ {
			v := data[i][j]
			col[i] = v
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			for i := range col {
				col[i] = (col[i] - lo) / (hi - lo)
			}
		} else {
			for i := range col {
				col[i] = 0
			}
		}
		cols[j] = col
	}

	scores := make([][]float64, numFeatures)
	corrs := make([][]float64, numFeatures)
	for i := range scores {
		scores[i] = make([]float64, numFeatures)
		corrs[i] = make([]float64, numFeatures)
	}

	yVec := mat.NewVecDense(numSamples, y)
	design := mat.NewDense(numSamples, 4, nil)
	for i := 0; i < numFeatures; i++ {
		for j := i + 1; j < numFeatures; j++ {
			a, b := cols[i], cols[j]
			for s := 0; s < numSamples; s++ {
				design.Set(s, 0, 1)
				design.Set(s, 1, a[s])
				design.Set(s, 2, b[s])
				design.Set(s, 3, a[s]*b[s])
			}
			var beta mat.Dense
			score := 0.0
			if err := beta.Solve(design, yVec); err == nil {
				score = math.Abs(beta.At(3, 0))
			}
			// Rank-deficient pairs (constant or duplicated columns) score 0.
			scores[i][j] = score
			scores[j][i] = score

			c := stat.Correlation(a, b, nil)
			if math.IsNaN(c) {
				c = 0
			}
			corrs[i][j] = c
			corrs[j][i] = c
		}
	}

	normalizeScores(scores)
	return &InteractionMatrix{
		Labels:       labels,
		Scores:       scores,
		N:            numFeatures,
		Samples:      numSamples,
		Correlations: corrs,
	}, nil
}

// normalizeScores rescales the off-diagonal scores by their 95th percentile
// so one dominant pair cannot flatten the rest of the ranking.
func normalizeScores(scores [][]float64) {
	var flat []float64
	for i := range scores {
		for j := i + 1; j < len(scores); j++ {
			flat = append(flat, scores[i][j])
		}
	}
	p95, err := stats.Percentile(flat, 95)
	if err != nil || p95 <= 0 {
		return
	}
	for i := range scores {
		for j := range scores[i] {
			scores[i][j] /= p95
		}
	}
}

// CrystalsConfig configures the greedy assignment pass.
type CrystalsConfig struct {
	NumFeatures int
	NumLattices int
	LatticeRank int

	// MaxUses caps how many sublattices any single feature may join.
	// Every feature must still appear at least once.
	MaxUses int
}

// BuildCrystalsAssignment packs features into sublattices: repeatedly seed a
// sublattice with the currently least-used feature, then fill it with the
// features scoring highest against the members already placed. Score ties
// break to the lower feature index, so the assignment is deterministic given
// the matrix. Infeasible configurations are rejected before any lattice is
// built.
func BuildCrystalsAssignment(im *InteractionMatrix, cfg CrystalsConfig) ([][]int, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	if cfg.NumFeatures != im.N {
		return nil, configErrorf("crystals: config has %d features, matrix has %d", cfg.NumFeatures, im.N)
	}
	if cfg.NumLattices < 1 {
		return nil, configErrorf("crystals: need at least 1 sublattice, got %d", cfg.NumLattices)
	}
	if cfg.LatticeRank < 1 || cfg.LatticeRank > cfg.NumFeatures {
		return nil, configErrorf("crystals: rank %d outside [1, %d]", cfg.LatticeRank, cfg.NumFeatures)
	}
	if cfg.MaxUses < 1 {
		return nil, configErrorf("crystals: max uses %d is not positive", cfg.MaxUses)
	}
	totalSlots := cfg.NumLattices * cfg.LatticeRank
	if totalSlots > cfg.NumFeatures*cfg.MaxUses {
		return nil, configErrorf("crystals: %d placements exceed capacity %d (%d features x %d uses)",
			totalSlots, cfg.NumFeatures*cfg.MaxUses, cfg.NumFeatures, cfg.MaxUses)
	}
	if totalSlots < cfg.NumFeatures {
		return nil, configErrorf("crystals: %d placements cannot cover %d features", totalSlots, cfg.NumFeatures)
	}

	uses := make([]int, cfg.NumFeatures)
	assignment := make([][]int, cfg.NumLattices)
	placed := 0

	for k := 0; k < cfg.NumLattices; k++ {
		seed := -1
		for f := 0; f < cfg.NumFeatures; f++ {
			if uses[f] >= cfg.MaxUses {
				continue
			}
			if seed < 0 || uses[f] < uses[seed] {
				seed = f
			}
		}
		if seed < 0 {
			return nil, configErrorf("crystals: no feature available to seed sublattice %d", k)
		}
		members := []int{seed}
		uses[seed]++
		placed++

		for len(members) < cfg.LatticeRank {
			mustCover := uncovered(uses) >= totalSlots-placed
			best := -1
			bestScore := math.Inf(-1)
			for f := 0; f < cfg.NumFeatures; f++ {
				if uses[f] >= cfg.MaxUses || containsInt(members, f) {
					continue
				}
				if mustCover && uses[f] > 0 {
					continue
				}
				score := 0.0
				for _, g := range members {
					score += im.Scores[f][g]
				}
				if score > bestScore {
					bestScore = score
					best = f
				}
			}
			if best < 0 {
				return nil, configErrorf("crystals: cannot fill sublattice %d to rank %d under usage cap %d",
					k, cfg.LatticeRank, cfg.MaxUses)
			}
			members = append(members, best)
			uses[best]++
			placed++
		}
		sort.Ints(members)
		assignment[k] = members
	}

	for f, n := range uses {
		if n == 0 {
			return nil, configErrorf("crystals: feature %d was never assigned", f)
		}
	}
	return assignment, nil
}

// uncovered counts features not yet placed in any sublattice.
func uncovered(uses []int) int {
	n := 0
	for _, u := range uses {
		if u == 0 {
			n++
		}
	}
	return n
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// itoa converts an int to a string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
