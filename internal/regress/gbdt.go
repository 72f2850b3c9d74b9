// Package regress implements the context-expectation model: gradient
// boosted regression trees with squared loss, L2-regularized leaves, and
// native categorical splits. Training is fully deterministic: exact
// greedy splits plus a seeded shuffle for cross-validation folds.
package regress

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/config"
)

// Model is a trained boosted-tree ensemble.
type Model struct {
	base      float64
	shrinkage float64
	trees     []*node
}

type node struct {
	leaf  bool
	value float64

	feature   int
	threshold float64          // numeric: left if x < threshold
	catLeft   map[float64]bool // categorical: left if member
	left      *node
	right     *node
}

type trainParams struct {
	maxDepth int
	minLeaf  int
	l2       float64
}

// Train fits the ensemble to the feature matrix. categorical marks which
// columns hold ordinal category codes and get set-membership splits.
func Train(x [][]float64, y []float64, categorical []bool, cfg config.ModelConfig) (*Model, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, eris.Errorf("regress: bad training shape: %d rows, %d targets", len(x), len(y))
	}

	trees := cfg.Trees
	if trees <= 0 {
		trees = 100
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	params := trainParams{
		maxDepth: max(cfg.MaxDepth, 1),
		minLeaf:  max(cfg.MinLeaf, 1),
		l2:       math.Max(cfg.L2, 0),
	}

	m := &Model{
		base:      mean(y),
		shrinkage: lr,
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.base
	}
	residual := make([]float64, len(y))
	indices := make([]int, len(y))
	for i := range indices {
		indices[i] = i
	}

	for t := 0; t < trees; t++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		root := buildNode(x, residual, indices, categorical, params, 0)
		m.trees = append(m.trees, root)
		for i := range pred {
			pred[i] += lr * predictNode(root, x[i])
		}
	}
	return m, nil
}

// Predict scores one feature row.
func (m *Model) Predict(row []float64) float64 {
	out := m.base
	for _, t := range m.trees {
		out += m.shrinkage * predictNode(t, row)
	}
	return out
}

// PredictAll scores every row of a feature matrix.
func (m *Model) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.Predict(row)
	}
	return out
}

// CrossValidate estimates generalization RMSE with seeded k-fold CV and
// returns the mean of the per-fold RMSEs.
func CrossValidate(x [][]float64, y []float64, categorical []bool, cfg config.ModelConfig) (float64, error) {
	folds := cfg.CVFolds
	if folds < 2 {
		folds = 5
	}
	if len(x) < folds {
		return 0, eris.Errorf("regress: %d rows is too few for %d-fold CV", len(x), folds)
	}

	// Seeded shuffle makes fold assignment reproducible across runs.
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	perm := rng.Perm(len(x))

	var total float64
	for f := 0; f < folds; f++ {
		var trainX, testX [][]float64
		var trainY, testY []float64
		for i, idx := range perm {
			if i%folds == f {
				testX = append(testX, x[idx])
				testY = append(testY, y[idx])
			} else {
				trainX = append(trainX, x[idx])
				trainY = append(trainY, y[idx])
			}
		}

		m, err := Train(trainX, trainY, categorical, cfg)
		if err != nil {
			return 0, err
		}
		total += RMSE(testY, m.PredictAll(testX))
	}

	rmse := total / float64(folds)
	zap.L().Info("cross-validation done",
		zap.Int("folds", folds),
		zap.Int("rows", len(x)),
		zap.Float64("rmse", rmse),
	)
	return rmse, nil
}

// RMSE is the root mean squared error between targets and predictions.
func RMSE(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var sum float64
	for i := range y {
		d := y[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(y)))
}

func mean(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	return sum / float64(len(y))
}

// buildNode grows one regression tree node on the residuals of the rows
// in indices.
func buildNode(x [][]float64, residual []float64, indices []int, categorical []bool, params trainParams, depth int) *node {
	n := len(indices)
	var sum float64
	for _, i := range indices {
		sum += residual[i]
	}
	// L2-regularized leaf weight.
	leafValue := sum / (float64(n) + params.l2)

	if depth >= params.maxDepth || n < 2*params.minLeaf {
		return &node{leaf: true, value: leafValue}
	}

	split, ok := bestSplit(x, residual, indices, categorical, params)
	if !ok {
		return &node{leaf: true, value: leafValue}
	}

	var leftIdx, rightIdx []int
	for _, i := range indices {
		if split.goesLeft(x[i][split.feature]) {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	return &node{
		feature:   split.feature,
		threshold: split.threshold,
		catLeft:   split.catLeft,
		left:      buildNode(x, residual, leftIdx, categorical, params, depth+1),
		right:     buildNode(x, residual, rightIdx, categorical, params, depth+1),
	}
}

type candidate struct {
	feature   int
	threshold float64
	catLeft   map[float64]bool
	gain      float64
}

func (c candidate) goesLeft(v float64) bool {
	if c.catLeft != nil {
		return c.catLeft[v]
	}
	return v < c.threshold
}

// bestSplit searches all features for the split with the highest
// regularized gain. Feature order breaks exact ties, which keeps the
// search deterministic.
func bestSplit(x [][]float64, residual []float64, indices []int, categorical []bool, params trainParams) (candidate, bool) {
	var sum float64
	for _, i := range indices {
		sum += residual[i]
	}
	n := float64(len(indices))
	parentScore := sum * sum / (n + params.l2)

	best := candidate{gain: 1e-12}
	found := false

	numFeatures := len(x[indices[0]])
	for f := 0; f < numFeatures; f++ {
		var c candidate
		var ok bool
		if f < len(categorical) && categorical[f] {
			c, ok = bestCategoricalSplit(x, residual, indices, f, sum, parentScore, params)
		} else {
			c, ok = bestNumericSplit(x, residual, indices, f, sum, parentScore, params)
		}
		if ok && c.gain > best.gain {
			best = c
			found = true
		}
	}
	return best, found
}

// bestNumericSplit scans sorted values with prefix sums.
func bestNumericSplit(x [][]float64, residual []float64, indices []int, f int, sum, parentScore float64, params trainParams) (candidate, bool) {
	order := append([]int(nil), indices...)
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

	best := candidate{feature: f}
	found := false

	var leftSum float64
	for pos := 0; pos < len(order)-1; pos++ {
		i := order[pos]
		leftSum += residual[i]

		// Can only split between distinct values.
		if x[i][f] == x[order[pos+1]][f] {
			continue
		}
		nL := float64(pos + 1)
		nR := float64(len(order)) - nL
		if nL < float64(params.minLeaf) || nR < float64(params.minLeaf) {
			continue
		}

		rightSum := sum - leftSum
		gain := leftSum*leftSum/(nL+params.l2) + rightSum*rightSum/(nR+params.l2) - parentScore
		if gain > best.gain {
			best.gain = gain
			best.threshold = (x[i][f] + x[order[pos+1]][f]) / 2
			found = true
		}
	}
	return best, found
}

// bestCategoricalSplit orders the node's category codes by mean residual
// and scans that ordering, which finds the optimal binary partition for
// squared loss.
func bestCategoricalSplit(x [][]float64, residual []float64, indices []int, f int, sum, parentScore float64, params trainParams) (candidate, bool) {
	type catStat struct {
		code  float64
		sum   float64
		count float64
	}
	statIdx := map[float64]int{}
	var stats []catStat
	for _, i := range indices {
		code := x[i][f]
		si, ok := statIdx[code]
		if !ok {
			si = len(stats)
			statIdx[code] = si
			stats = append(stats, catStat{code: code})
		}
		stats[si].sum += residual[i]
		stats[si].count++
	}
	if len(stats) < 2 {
		return candidate{}, false
	}

	sort.SliceStable(stats, func(a, b int) bool {
		ma := stats[a].sum / stats[a].count
		mb := stats[b].sum / stats[b].count
		if ma != mb {
			return ma < mb
		}
		return stats[a].code < stats[b].code
	})

	best := candidate{feature: f}
	found := false

	var leftSum, leftCount float64
	for pos := 0; pos < len(stats)-1; pos++ {
		leftSum += stats[pos].sum
		leftCount += stats[pos].count

		nR := float64(len(indices)) - leftCount
		if leftCount < float64(params.minLeaf) || nR < float64(params.minLeaf) {
			continue
		}

		rightSum := sum - leftSum
		gain := leftSum*leftSum/(leftCount+params.l2) + rightSum*rightSum/(nR+params.l2) - parentScore
		if gain > best.gain {
			best.gain = gain
			left := make(map[float64]bool, pos+1)
			for k := 0; k <= pos; k++ {
				left[stats[k].code] = true
			}
			best.catLeft = left
			found = true
		}
	}
	return best, found
}

func predictNode(n *node, row []float64) float64 {
	for !n.leaf {
		v := row[n.feature]
		goLeft := false
		if n.catLeft != nil {
			// Codes never seen at this node fall right.
			goLeft = n.catLeft[v]
		} else {
			goLeft = v < n.threshold
		}
		if goLeft {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}
