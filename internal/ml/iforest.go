package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649

// scoreEpsilon absorbs rounding when averaging path lengths so a sample that
// sits exactly on the threshold is not flagged.
const scoreEpsilon = 1e-12

// ForestConfig configures an IsolationForest
type ForestConfig struct {
	// NumTrees is the ensemble size
	NumTrees int
	// MaxSamples caps the subsample drawn for each tree
	MaxSamples int
	// Contamination is the expected outlier fraction. Zero selects the
	// automatic rule: a sample is an outlier when its score exceeds 0.5.
	Contamination float64
	Seed          uint64
}

// DefaultForestConfig returns the configuration used across the pipeline
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:   200,
		MaxSamples: 256,
		Seed:       42,
	}
}

// Validate checks the forest parameters
func (c ForestConfig) Validate() error {
	if c.NumTrees <= 0 {
		return fmt.Errorf("number of trees must be positive, got %d", c.NumTrees)
	}
	if c.MaxSamples < 2 {
		return fmt.Errorf("max samples must be at least 2, got %d", c.MaxSamples)
	}
	if c.Contamination < 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be within [0, 0.5], got %v", c.Contamination)
	}
	return nil
}

type isoNode struct {
	feature     int
	split       float64
	left, right *isoNode
	size        int
}

func (n *isoNode) isLeaf() bool {
	return n.left == nil
}

// IsolationForest isolates samples with random axis-aligned splits. Samples
// that isolate in few splits get scores close to 1.
type IsolationForest struct {
	config     ForestConfig
	trees      []*isoNode
	sampleSize int
	threshold  float64
	rng        *rand.Rand
}

// NewIsolationForest creates an unfitted forest
func NewIsolationForest(config ForestConfig) *IsolationForest {
	return &IsolationForest{config: config}
}

// Fit grows the ensemble on X. At least two samples are required.
func (f *IsolationForest) Fit(X [][]float64) error {
	if err := f.config.Validate(); err != nil {
		return err
	}
	if _, err := columns(X); err != nil {
		return err
	}
	if len(X) < 2 {
		return fmt.Errorf("isolation forest needs at least 2 samples, got %d", len(X))
	}

	f.rng = rand.New(rand.NewPCG(f.config.Seed, f.config.Seed^0x9e3779b97f4a7c15))
	f.sampleSize = min(f.config.MaxSamples, len(X))
	maxDepth := int(math.Ceil(math.Log2(float64(max(f.sampleSize, 2)))))

	f.trees = make([]*isoNode, f.config.NumTrees)
	for t := range f.trees {
		idx := f.rng.Perm(len(X))[:f.sampleSize]
		f.trees[t] = f.grow(X, idx, 0, maxDepth)
	}

	if f.config.Contamination > 0 {
		f.threshold = Quantile(f.Scores(X), 1-f.config.Contamination)
	} else {
		f.threshold = 0.5
	}
	return nil
}

func (f *IsolationForest) grow(X [][]float64, idx []int, depth, maxDepth int) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	// candidate features are the ones that vary within this node
	width := len(X[idx[0]])
	var candidates []int
	lows := make([]float64, width)
	highs := make([]float64, width)
	for j := 0; j < width; j++ {
		lo, hi := X[idx[0]][j], X[idx[0]][j]
		for _, i := range idx[1:] {
			lo = math.Min(lo, X[i][j])
			hi = math.Max(hi, X[i][j])
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{size: len(idx)}
	}

	feature := candidates[f.rng.IntN(len(candidates))]
	split := lows[feature] + f.rng.Float64()*(highs[feature]-lows[feature])

	var left, right []int
	for _, i := range idx {
		if X[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    f.grow(X, left, depth+1, maxDepth),
		right:   f.grow(X, right, depth+1, maxDepth),
		size:    len(idx),
	}
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func pathLength(node *isoNode, x []float64) float64 {
	depth := 0.0
	for !node.isLeaf() {
		if x[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + averagePathLength(node.size)
}

// Scores returns the anomaly score of each sample in (0, 1]
func (f *IsolationForest) Scores(X [][]float64) []float64 {
	norm := averagePathLength(f.sampleSize)
	scores := make([]float64, len(X))
	for i, x := range X {
		total := 0.0
		for _, tree := range f.trees {
			total += pathLength(tree, x)
		}
		mean := total / float64(len(f.trees))
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores
}

// Threshold returns the score above which a sample is an outlier
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

// Predict reports, for each sample, whether it is an outlier
func (f *IsolationForest) Predict(X [][]float64) []bool {
	scores := f.Scores(X)
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = s > f.threshold+scoreEpsilon
	}
	return out
}

// FitPredict fits the forest on X and labels the same samples
func (f *IsolationForest) FitPredict(X [][]float64) ([]bool, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}
	return f.Predict(X), nil
}

// Column turns a series into a one-feature sample matrix
func Column(values []float64) [][]float64 {
	X := make([][]float64, len(values))
	for i, v := range values {
		X[i] = []float64{v}
	}
	return X
}
