package anomaly

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// eulerGamma is the Euler–Mascheroni constant used in the harmonic number
// approximation H(i) ≈ ln(i) + γ.
const eulerGamma = 0.5772156649

// Forest is a fitted isolation forest.
type Forest struct {
	trees []*node
	psi   int // subsample size each tree was grown on
}

type node struct {
	feature     int
	split       float64
	left, right *node
	size        int // number of training rows; only meaningful on leaves
}

func (n *node) leaf() bool {
	return n.left == nil
}

// Fit grows cfg.Trees isolation trees over rows. Each tree draws its own
// subsample of min(cfg.MaxSamples, len(rows)) rows without replacement from a
// random stream derived from cfg.Seed and the tree index, so the fitted forest
// does not depend on cfg.Workers.
func Fit(ctx context.Context, rows [][]float64, cfg Config) (*Forest, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrModelFit, len(rows))
	}

	psi := cfg.MaxSamples
	if psi > len(rows) || psi < 2 {
		psi = len(rows)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	f := &Forest{trees: make([]*node, cfg.Trees), psi: psi}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := treeRand(cfg.Seed, i)
			sample := rng.Perm(len(rows))[:psi]
			f.trees[i] = grow(rows, sample, 0, maxDepth, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// treeRand returns the random stream for tree i.
func treeRand(seed int64, i int) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "iforest/tree/%d", i)
	return rand.New(rand.NewSource(int64(h.Sum64()) ^ seed))
}

// grow builds a tree over rows[idx]. Split features are drawn among the
// features that are not constant on the node; a node with no such feature
// becomes a leaf.
func grow(rows [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	dims := len(rows[idx[0]])
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	copy(lo, rows[idx[0]])
	copy(hi, rows[idx[0]])
	for _, r := range idx[1:] {
		for d, v := range rows[r] {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}

	var candidates []int
	for d := 0; d < dims; d++ {
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(idx)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])
	if split <= lo[feature] {
		split = lo[feature] + (hi[feature]-lo[feature])/2
	}

	var left, right []int
	for _, r := range idx {
		if rows[r][feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    grow(rows, left, depth+1, maxDepth, rng),
		right:   grow(rows, right, depth+1, maxDepth, rng),
	}
}

// pathLength returns the isolation depth of x in the tree rooted at n.
// Leaves holding more than one row add the expected depth c(size) of an
// unbuilt subtree.
func pathLength(n *node, x []float64) float64 {
	depth := 0.0
	for !n.leaf() {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// Score returns the anomaly score 2^(-E[h(x)]/c(psi)) in (0, 1].
// Scores near 1 are anomalous; scores well below 0.5 are normal.
func (f *Forest) Score(x []float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += pathLength(t, x)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/averagePathLength(f.psi))
}

// Trees returns the number of fitted trees.
func (f *Forest) Trees() int {
	return len(f.trees)
}
