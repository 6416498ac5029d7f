package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

// OutlierModel is the optional ML detector capability. Score fits a model
// over the prior samples and returns a decision score for value; ok reports
// whether the model produced a score at all. A declined score contributes no
// finding and never fails the call.
type OutlierModel interface {
	Score(prior []float64, value float64) (score float64, ok bool)
}

// NoopOutlierModel is installed when the ML detector is disabled or no
// backing model is available. It deterministically declines every score.
type NoopOutlierModel struct{}

// Score always declines.
func (NoopOutlierModel) Score([]float64, float64) (float64, bool) { return 0, false }

// IsolationForest scores values by how quickly random axis splits isolate
// them from the fitted samples. Values easier to isolate than the most
// anomalous contamination share of the training set score below zero.
type IsolationForest struct {
	trees         int
	subsampleSize int
	contamination float64
	seed          int64
}

// NewIsolationForest creates a forest with the given contamination rate.
// Fitting is re-done per Score call from a fixed seed, so scores are
// deterministic for identical inputs.
func NewIsolationForest(contamination float64) *IsolationForest {
	return &IsolationForest{
		trees:         100,
		subsampleSize: 256,
		contamination: contamination,
		seed:          42,
	}
}

// Score fits the forest over prior and returns the decision score for value:
// the value's sample score minus the contamination-quantile of the training
// sample scores, mirroring scikit-learn's decision_function.
func (f *IsolationForest) Score(prior []float64, value float64) (float64, bool) {
	if len(prior) < 2 {
		return 0, false
	}

	rng := rand.New(rand.NewSource(f.seed))
	sub := f.subsampleSize
	if sub > len(prior) {
		sub = len(prior)
	}
	depthLimit := int(math.Ceil(math.Log2(float64(sub)))) + 1

	trees := make([]*isoNode, f.trees)
	for i := range trees {
		sample := make([]float64, sub)
		for j, idx := range rng.Perm(len(prior))[:sub] {
			sample[j] = prior[idx]
		}
		trees[i] = buildIsoTree(rng, sample, 0, depthLimit)
	}

	norm := avgUnsuccessfulSearch(float64(sub))
	sampleScore := func(v float64) float64 {
		total := 0.0
		for _, t := range trees {
			total += pathLength(t, v, 0)
		}
		return -math.Pow(2, -(total/float64(len(trees)))/norm)
	}

	trainScores := make([]float64, len(prior))
	for i, v := range prior {
		trainScores[i] = sampleScore(v)
	}
	offset := quantile(trainScores, f.contamination)

	return sampleScore(value) - offset, true
}

// isoNode is one node of an isolation tree over a single dimension.
type isoNode struct {
	split       float64
	left, right *isoNode
	size        int
}

func buildIsoTree(rng *rand.Rand, sample []float64, depth, limit int) *isoNode {
	if len(sample) <= 1 || depth >= limit {
		return &isoNode{size: len(sample)}
	}
	lo, hi := sample[0], sample[0]
	for _, v := range sample[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return &isoNode{size: len(sample)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range sample {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	return &isoNode{
		split: split,
		left:  buildIsoTree(rng, left, depth+1, limit),
		right: buildIsoTree(rng, right, depth+1, limit),
		size:  len(sample),
	}
}

func pathLength(n *isoNode, v float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + avgUnsuccessfulSearch(float64(n.size))
	}
	if v < n.split {
		return pathLength(n.left, v, depth+1)
	}
	return pathLength(n.right, v, depth+1)
}

// avgUnsuccessfulSearch is c(n), the average path length of an unsuccessful
// BST search, used to normalize isolation depths.
func avgUnsuccessfulSearch(n float64) float64 {
	if n <= 1 {
		return 0
	}
	const euler = 0.5772156649
	return 2*(math.Log(n-1)+euler) - 2*(n-1)/n
}

func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
