package explain

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurisk/internal/dataset"
	"edurisk/internal/features"
	"edurisk/internal/ml"
)

// linearModel is a hand-written classifier whose output depends only on
// the first feature. Attributions have a known right answer.
type linearModel struct{}

func (linearModel) PredictProba(row []float64) ([2]float64, error) {
	p1 := 0.2 + 0.5*row[0]
	if p1 < 0 {
		p1 = 0
	}
	if p1 > 1 {
		p1 = 1
	}
	return [2]float64{1 - p1, p1}, nil
}

func (linearModel) Family() ml.Family { return ml.FamilyNeural }

func randomRows(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, features.Count)
		for j := range row {
			row[j] = rng.Float64()
		}
		rows[i] = row
	}
	return rows
}

func labelRows(rows [][]float64) []int {
	y := make([]int, len(rows))
	for i, row := range rows {
		if row[0] > 0.5 {
			y[i] = 1
		}
	}
	return y
}

func writeBackground(t *testing.T, rows [][]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "background.csv")
	require.NoError(t, dataset.WriteBackground(path, rows))
	return path
}

func TestTreeExplainerReconstructsPrediction(t *testing.T) {
	rows := randomRows(200, 1)
	p := ml.DefaultRandomForestParams()
	p.Trees = 10
	rf, err := ml.TrainRandomForest(rows, labelRows(rows), p)
	require.NoError(t, err)

	ex := NewTreeExplainer(rf, features.Count)
	for _, row := range rows[:10] {
		res, err := ex.Explain(row)
		require.NoError(t, err)
		assert.Equal(t, MethodTreePath, res.Method)

		proba, err := rf.PredictProba(row)
		require.NoError(t, err)
		assert.InDelta(t, proba[1], res.Prediction, 1e-9)

		total := res.Baseline
		for _, a := range res.Top {
			total += a.Attribution
		}
		assert.InDelta(t, res.Prediction, total, 1e-9)
	}
}

func TestTreeExplainerRanksByMagnitude(t *testing.T) {
	rows := randomRows(200, 2)
	p := ml.DefaultRandomForestParams()
	p.Trees = 10
	rf, err := ml.TrainRandomForest(rows, labelRows(rows), p)
	require.NoError(t, err)

	ex := NewTreeExplainer(rf, 3)
	res, err := ex.Explain(rows[0])
	require.NoError(t, err)

	require.Len(t, res.Top, 3)
	for i := 1; i < len(res.Top); i++ {
		assert.GreaterOrEqual(t,
			math.Abs(res.Top[i-1].Attribution),
			math.Abs(res.Top[i].Attribution))
	}
	assert.Equal(t, rows[0][features.Index(res.Top[0].Feature)], res.Top[0].Value)
	assert.NotEmpty(t, res.Top[0].DisplayName)
}

func TestKernelExplainerAdditivity(t *testing.T) {
	background := randomRows(40, 3)
	ex, err := NewKernelExplainer(linearModel{}, background, 50, 7, features.Count)
	require.NoError(t, err)

	row := make([]float64, features.Count)
	for j := range row {
		row[j] = 0.5
	}
	row[0] = 0.95 // far from the background mean, so the signal is unambiguous

	res, err := ex.Explain(row)
	require.NoError(t, err)
	assert.Equal(t, MethodKernelSHAP, res.Method)

	total := res.Baseline
	for _, a := range res.Top {
		total += a.Attribution
	}
	assert.InDelta(t, res.Prediction, total, 1e-9)

	// All the signal is in the first feature.
	assert.Equal(t, features.PreviousQualification, res.Top[0].Feature)
}

func TestKernelExplainerDeterministic(t *testing.T) {
	background := randomRows(30, 5)
	ex, err := NewKernelExplainer(linearModel{}, background, 50, 7, 3)
	require.NoError(t, err)

	row := randomRows(1, 6)[0]
	a, err := ex.Explain(row)
	require.NoError(t, err)
	b, err := ex.Explain(row)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKernelExplainerCapsBackground(t *testing.T) {
	background := randomRows(120, 7)
	ex, err := NewKernelExplainer(linearModel{}, background, 0, 1, 3)
	require.NoError(t, err)
	assert.Len(t, ex.background, MaxBackgroundRows)
	assert.Equal(t, MaxKernelSamples, ex.samples)
}

func TestKernelExplainerEmptyBackground(t *testing.T) {
	_, err := NewKernelExplainer(linearModel{}, nil, 50, 1, 3)
	assert.Error(t, err)
}

func TestSurrogateExplainerDirection(t *testing.T) {
	background := randomRows(40, 8)
	ex, err := NewSurrogateExplainer(linearModel{}, background, 9, features.Count)
	require.NoError(t, err)

	row := randomRows(1, 10)[0]
	res, err := ex.Explain(row)
	require.NoError(t, err)
	assert.Equal(t, MethodSurrogate, res.Method)

	// The dominant coefficient belongs to the only informative feature,
	// and its local slope is positive.
	require.NotEmpty(t, res.Top)
	assert.Equal(t, features.PreviousQualification, res.Top[0].Feature)
	assert.Greater(t, res.Top[0].Attribution, 0.0)
	assert.NotEmpty(t, res.Top[0].Description)
}

func TestEngineTreeFamilyUsesPathAttribution(t *testing.T) {
	rows := randomRows(200, 11)
	p := ml.DefaultRandomForestParams()
	p.Trees = 5
	rf, err := ml.TrainRandomForest(rows, labelRows(rows), p)
	require.NoError(t, err)

	// No background file on purpose: the tree path does not need one.
	eng := NewEngine(rf, Config{BackgroundPath: filepath.Join(t.TempDir(), "background.csv")})
	res, err := eng.Primary(rows[0])
	require.NoError(t, err)
	assert.Equal(t, MethodTreePath, res.Method)
}

func TestEngineNonTreeFamilyUsesKernel(t *testing.T) {
	path := writeBackground(t, randomRows(30, 12))

	eng := NewEngine(linearModel{}, Config{BackgroundPath: path})
	res, err := eng.Primary(randomRows(1, 13)[0])
	require.NoError(t, err)
	assert.Equal(t, MethodKernelSHAP, res.Method)

	sur, err := eng.Surrogate(randomRows(1, 14)[0])
	require.NoError(t, err)
	assert.Equal(t, MethodSurrogate, sur.Method)
}

func TestEngineMissingBackgroundFailsSoftly(t *testing.T) {
	eng := NewEngine(linearModel{}, Config{BackgroundPath: filepath.Join(t.TempDir(), "background.csv")})

	_, err := eng.Primary(randomRows(1, 15)[0])
	assert.Error(t, err)

	// The failure is cached, not retried into a different answer.
	_, err2 := eng.Surrogate(randomRows(1, 16)[0])
	assert.Error(t, err2)
}
