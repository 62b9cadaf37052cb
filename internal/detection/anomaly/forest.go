package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// eulerGamma is used by the harmonic-number approximation in avgPathLength.
const eulerGamma = 0.5772156649

// Forest is an isolation forest: an ensemble of random trees in which
// outliers end up on shorter paths than inliers.
type Forest struct {
	Trees       []*node `json:"trees"`
	SampleSize  int     `json:"sample_size"`
	HeightLimit int     `json:"height_limit"`
	Dim         int     `json:"dim"`
}

type node struct {
	Size     int     `json:"size"`
	Feature  int     `json:"feature"`
	SplitVal float64 `json:"split"`
	Left     *node   `json:"left,omitempty"`
	Right    *node   `json:"right,omitempty"`
}

func (n *node) leaf() bool {
	return n.Left == nil || n.Right == nil
}

// buildForest fits numTrees trees on subsamples of at most sampleSize rows.
func buildForest(data [][]float64, numTrees, sampleSize int, seed uint64) *Forest {
	rng := rand.New(rand.NewPCG(seed, seed))
	psi := min(sampleSize, len(data))
	f := &Forest{
		Trees:       make([]*node, numTrees),
		SampleSize:  psi,
		HeightLimit: int(math.Ceil(math.Log2(float64(max(psi, 2))))),
		Dim:         len(data[0]),
	}
	for i := range f.Trees {
		idx := rng.Perm(len(data))[:psi]
		sample := make([][]float64, psi)
		for j, k := range idx {
			sample[j] = data[k]
		}
		f.Trees[i] = buildTree(rng, sample, 0, f.HeightLimit)
	}
	return f
}

func buildTree(rng *rand.Rand, rows [][]float64, depth, limit int) *node {
	if len(rows) <= 1 || depth >= limit {
		return &node{Size: len(rows)}
	}

	// Pick a random feature among those that still vary in this partition.
	dim := len(rows[0])
	var candidates []int
	lows := make([]float64, dim)
	highs := make([]float64, dim)
	for d := 0; d < dim; d++ {
		lo, hi := rows[0][d], rows[0][d]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[d])
			hi = math.Max(hi, r[d])
		}
		lows[d], highs[d] = lo, hi
		if hi > lo {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &node{Size: len(rows)}
	}
	feature := candidates[rng.IntN(len(candidates))]
	split := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{Size: len(rows)}
	}
	return &node{
		Size:     len(rows),
		Feature:  feature,
		SplitVal: split,
		Left:     buildTree(rng, left, depth+1, limit),
		Right:    buildTree(rng, right, depth+1, limit),
	}
}

// validate checks a decoded forest so that scoring cannot index out of range
// or walk into a missing child.
func (f *Forest) validate() error {
	if len(f.Trees) == 0 || f.Dim <= 0 {
		return errors.New("anomaly: model file has no trees")
	}
	if f.SampleSize <= 0 {
		return fmt.Errorf("anomaly: invalid sample size %d", f.SampleSize)
	}
	for i, t := range f.Trees {
		if err := f.validateNode(t); err != nil {
			return fmt.Errorf("anomaly: tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *Forest) validateNode(n *node) error {
	if n == nil {
		return errors.New("missing node")
	}
	if (n.Left == nil) != (n.Right == nil) {
		return errors.New("node has a single child")
	}
	if n.Left == nil {
		return nil
	}
	if n.Feature < 0 || n.Feature >= f.Dim {
		return fmt.Errorf("split feature %d outside dimension %d", n.Feature, f.Dim)
	}
	if err := f.validateNode(n.Left); err != nil {
		return err
	}
	return f.validateNode(n.Right)
}

// avgPathLength is c(n), the mean path length of an unsuccessful search in
// a binary search tree of n nodes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func pathLength(n *node, x []float64, depth int) float64 {
	for !n.leaf() {
		if x[n.Feature] < n.SplitVal {
			n = n.Left
		} else {
			n = n.Right
		}
		depth++
	}
	return float64(depth) + avgPathLength(n.Size)
}

// score returns -2^(-E[h(x)]/c(psi)). Values near -1 are outliers, values
// near -0.5 or above are inliers.
func (f *Forest) score(x []float64) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += pathLength(t, x, 0)
	}
	mean := sum / float64(len(f.Trees))
	c := avgPathLength(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return -math.Pow(2, -mean/c)
}
