package regress

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiok-scout/gems-cli/internal/config"
)

func testModelCfg() config.ModelConfig {
	return config.ModelConfig{
		Trees:        60,
		MaxDepth:     4,
		LearningRate: 0.1,
		L2:           1.0,
		MinLeaf:      2,
		CVFolds:      5,
		Seed:         42,
	}
}

// syntheticCorpus generates rows whose rating depends on the category
// code and a numeric feature, with a small deterministic wobble.
func syntheticCorpus(n int) (x [][]float64, y []float64, categorical []bool) {
	rng := rand.New(rand.NewPCG(7, 7))
	categorical = []bool{true, false}
	for i := 0; i < n; i++ {
		cat := float64(i % 4)
		reviews := rng.Float64() * 8
		rating := 3.5 + 0.2*cat + 0.05*reviews + 0.02*math.Sin(float64(i))
		x = append(x, []float64{cat, reviews})
		y = append(y, rating)
	}
	return x, y, categorical
}

func TestTrain_FitsSignal(t *testing.T) {
	x, y, cat := syntheticCorpus(300)

	m, err := Train(x, y, cat, testModelCfg())
	require.NoError(t, err)

	rmse := RMSE(y, m.PredictAll(x))
	assert.Less(t, rmse, 0.05, "model must capture the category and review effects")
}

func TestTrain_Deterministic(t *testing.T) {
	x, y, cat := syntheticCorpus(200)
	cfg := testModelCfg()

	a, err := Train(x, y, cat, cfg)
	require.NoError(t, err)
	b, err := Train(x, y, cat, cfg)
	require.NoError(t, err)

	for _, row := range x {
		assert.Equal(t, a.Predict(row), b.Predict(row), "identical input and config must yield identical predictions")
	}
}

func TestTrain_CategoricalSplitIsSetMembership(t *testing.T) {
	// Categories 0 and 3 are high, 1 and 2 low. A threshold split on the
	// ordinal code cannot separate them in one cut; a set split can.
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		code := float64(i % 4)
		target := 3.0
		if code == 0 || code == 3 {
			target = 4.5
		}
		x = append(x, []float64{code})
		y = append(y, target)
	}

	cfg := testModelCfg()
	cfg.MaxDepth = 1 // force a single split per tree
	m, err := Train(x, y, []bool{true}, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 4.5, m.Predict([]float64{0}), 0.05)
	assert.InDelta(t, 3.0, m.Predict([]float64{1}), 0.05)
	assert.InDelta(t, 3.0, m.Predict([]float64{2}), 0.05)
	assert.InDelta(t, 4.5, m.Predict([]float64{3}), 0.05)
}

func TestTrain_UnseenCategoryFallsBack(t *testing.T) {
	x, y, cat := syntheticCorpus(100)
	m, err := Train(x, y, cat, testModelCfg())
	require.NoError(t, err)

	// An unseen code (-1) must still produce a finite, in-range score.
	got := m.Predict([]float64{-1, 2.0})
	assert.False(t, math.IsNaN(got))
	assert.Greater(t, got, 2.0)
	assert.Less(t, got, 6.0)
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(nil, nil, nil, testModelCfg())
	require.Error(t, err)

	_, err = Train([][]float64{{1}}, []float64{1, 2}, nil, testModelCfg())
	require.Error(t, err)
}

func TestTrain_ConstantTarget(t *testing.T) {
	x := [][]float64{{0, 1}, {1, 2}, {2, 3}, {3, 4}}
	y := []float64{4.0, 4.0, 4.0, 4.0}

	m, err := Train(x, y, []bool{true, false}, testModelCfg())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, m.Predict([]float64{1, 2}), 0.01)
}

func TestCrossValidate(t *testing.T) {
	x, y, cat := syntheticCorpus(250)
	cfg := testModelCfg()

	rmse, err := CrossValidate(x, y, cat, cfg)
	require.NoError(t, err)
	assert.Greater(t, rmse, 0.0)
	assert.Less(t, rmse, 0.1, "held-out error should stay close to the noise floor")

	again, err := CrossValidate(x, y, cat, cfg)
	require.NoError(t, err)
	assert.Equal(t, rmse, again, "seeded folds make CV reproducible")
}

func TestCrossValidate_SeedChangesFolds(t *testing.T) {
	x, y, cat := syntheticCorpus(100)
	cfg := testModelCfg()

	a, err := CrossValidate(x, y, cat, cfg)
	require.NoError(t, err)

	cfg.Seed = 1234
	b, err := CrossValidate(x, y, cat, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCrossValidate_TooFewRows(t *testing.T) {
	x := [][]float64{{1}, {2}}
	y := []float64{1, 2}
	_, err := CrossValidate(x, y, nil, testModelCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too few")
}

func TestRMSE(t *testing.T) {
	assert.Zero(t, RMSE(nil, nil))
	assert.InDelta(t, 1.0, RMSE([]float64{1, 2}, []float64{2, 3}), 1e-12)
	assert.InDelta(t, 0.5, RMSE([]float64{4.0, 4.0}, []float64{4.5, 3.5}), 1e-12)
}
