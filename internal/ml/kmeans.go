package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeansConfig configures a KMeans run
type KMeansConfig struct {
	K       int
	NInit   int
	MaxIter int
	// Tol is the squared centroid shift below which Lloyd iterations stop
	Tol  float64
	Seed uint64
}

// DefaultKMeansConfig returns the configuration used by the clusterer
func DefaultKMeansConfig(k int) KMeansConfig {
	return KMeansConfig{
		K:       k,
		NInit:   10,
		MaxIter: 300,
		Tol:     1e-4,
		Seed:    42,
	}
}

// KMeansResult is the best partition found across all initializations
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

// KMeans partitions samples into K clusters using k-means++ seeding followed
// by Lloyd iterations, keeping the run with the lowest inertia.
type KMeans struct {
	config KMeansConfig
	rng    *rand.Rand
}

// NewKMeans creates a KMeans estimator
func NewKMeans(config KMeansConfig) *KMeans {
	return &KMeans{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed^0x2545f4914f6cdd1d)),
	}
}

// Fit clusters X. K must be between 1 and len(X).
func (km *KMeans) Fit(X [][]float64) (*KMeansResult, error) {
	if _, err := columns(X); err != nil {
		return nil, err
	}
	k := km.config.K
	if k < 1 || k > len(X) {
		return nil, fmt.Errorf("k must be within [1, %d], got %d", len(X), k)
	}
	nInit := max(km.config.NInit, 1)
	maxIter := max(km.config.MaxIter, 1)

	var best *KMeansResult
	for run := 0; run < nInit; run++ {
		result := km.lloyd(X, km.seedCentroids(X, k), maxIter)
		if best == nil || result.Inertia < best.Inertia {
			best = result
		}
	}
	return best, nil
}

// seedCentroids implements k-means++: each new centroid is drawn with
// probability proportional to its squared distance from the closest chosen one.
func (km *KMeans) seedCentroids(X [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(X[km.rng.IntN(len(X))]))

	dist := make([]float64, len(X))
	for len(centroids) < k {
		total := 0.0
		for i, x := range X {
			d := math.Inf(1)
			for _, c := range centroids {
				d = math.Min(d, squaredDistance(x, c))
			}
			dist[i] = d
			total += d
		}

		next := 0
		if total == 0 {
			next = km.rng.IntN(len(X))
		} else {
			target := km.rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, clone(X[next]))
	}
	return centroids
}

func (km *KMeans) lloyd(X [][]float64, centroids [][]float64, maxIter int) *KMeansResult {
	labels := make([]int, len(X))
	width := len(X[0])

	for iter := 0; iter < maxIter; iter++ {
		for i, x := range X {
			labels[i] = nearest(x, centroids)
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, width)
		}
		for i, x := range X {
			floats.Add(sums[labels[i]], x)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				// an empty cluster takes over the sample farthest from its centroid
				far := farthest(X, labels, centroids)
				sums[c] = clone(X[far])
				counts[c] = 1
				labels[far] = c
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += squaredDistance(sums[c], centroids[c])
			centroids[c] = sums[c]
		}
		if shift <= km.config.Tol {
			break
		}
	}

	inertia := 0.0
	for i, x := range X {
		labels[i] = nearest(x, centroids)
		inertia += squaredDistance(x, centroids[labels[i]])
	}
	return &KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
}

func nearest(x []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(x, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func farthest(X [][]float64, labels []int, centroids [][]float64) int {
	best, bestDist := 0, -1.0
	for i, x := range X {
		if d := squaredDistance(x, centroids[labels[i]]); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
