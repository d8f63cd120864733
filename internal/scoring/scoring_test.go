package scoring

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurisk/internal/dataset"
	"edurisk/internal/explain"
	"edurisk/internal/features"
	"edurisk/internal/metrics"
	"edurisk/internal/ml"
	"edurisk/internal/risk"
	"edurisk/internal/storage"
)

type captureFeed struct {
	records []storage.Record
}

func (c *captureFeed) Broadcast(r storage.Record) { c.records = append(c.records, r) }

func studentVector() features.Vector {
	return features.Vector{
		features.PreviousQualification: 1,
		features.AgeAtEnrollment:       19,
		features.ScholarshipHolder:     0,
		features.Debtor:                1,
		features.TuitionFeesUpToDate:   0,
		features.FirstSemGrade:         8.5,
		features.SecondSemGrade:        7.0,
		features.GDP:                   0.3,
	}
}

func trainedForest(t *testing.T) *ml.RandomForest {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	x := make([][]float64, 200)
	y := make([]int, 200)
	for i := range x {
		row := make([]float64, features.Count)
		for j := range row {
			row[j] = rng.Float64() * 20
		}
		x[i] = row
		if row[5] < 10 { // low first-semester grade
			y[i] = 1
		}
	}

	p := ml.DefaultRandomForestParams()
	p.Trees = 10
	rf, err := ml.TrainRandomForest(x, y, p)
	require.NoError(t, err)
	return rf
}

func newService(t *testing.T, feed Broadcaster) (*Service, *storage.Store) {
	t.Helper()
	rf := trainedForest(t)
	predictor := ml.NewPredictorFromClassifier(ml.NameRandomForest, rf, risk.Default)
	engine := explain.NewEngine(rf, explain.Config{})

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return New(predictor, engine, store, feed, m), store
}

func TestScoreProducesExplainedResult(t *testing.T) {
	feed := &captureFeed{}
	svc, store := newService(t, feed)

	res, err := svc.Score("s-001", studentVector())
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "s-001", res.StudentID)
	assert.GreaterOrEqual(t, res.RiskScore, 0.0)
	assert.LessOrEqual(t, res.RiskScore, 100.0)
	assert.Equal(t, risk.Categorize(res.RiskScore, risk.Default), res.RiskCategory)
	assert.Equal(t, "ok", res.ExplainerStatus.Primary)
	assert.NotEmpty(t, res.TopFeatures)

	// Persisted and broadcast with the same identity.
	require.Len(t, feed.records, 1)
	assert.Equal(t, res.ID, feed.records[0].ID)

	history, err := store.ByStudent("s-001")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.RiskScore, history[0].RiskScore)
}

func TestScoreDeterministicForSameInput(t *testing.T) {
	svc, _ := newService(t, nil)

	a, err := svc.Score("s-002", studentVector())
	require.NoError(t, err)
	b, err := svc.Score("s-002", studentVector())
	require.NoError(t, err)

	assert.Equal(t, a.RiskScore, b.RiskScore)
	assert.Equal(t, a.RiskCategory, b.RiskCategory)
	assert.Equal(t, a.TopFeatures, b.TopFeatures)
}

func TestScoreMissingFeatureFailsHard(t *testing.T) {
	svc, store := newService(t, nil)

	v := studentVector()
	delete(v, features.TuitionFeesUpToDate)

	_, err := svc.Score("s-003", v)
	var missing *features.MissingFeatureError
	require.ErrorAs(t, err, &missing)

	// Nothing was persisted for the failed request.
	history, herr := store.ByStudent("s-003")
	require.NoError(t, herr)
	assert.Empty(t, history)
}

func TestScoreWithoutModel(t *testing.T) {
	predictor := ml.NewPredictor(t.TempDir(), risk.Default)
	svc := New(predictor, nil, nil, nil, nil)

	_, err := svc.Score("s-004", studentVector())
	assert.ErrorIs(t, err, ml.ErrModelNotLoaded)
}

func TestScoreDegradesExplanationNotScore(t *testing.T) {
	// A neural-family stub with no background file: the kernel explainer
	// cannot be built, but the score still comes back.
	clf := constantNeural{p1: 0.72}
	predictor := ml.NewPredictorFromClassifier(ml.NameNeuralNetwork, clf, risk.Default)
	engine := explain.NewEngine(clf, explain.Config{
		BackgroundPath: filepath.Join(t.TempDir(), "background.csv"),
	})
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := New(predictor, engine, nil, nil, m)

	res, err := svc.Score("s-005", studentVector())
	require.NoError(t, err)

	assert.InDelta(t, 72.0, res.RiskScore, 1e-9)
	assert.Equal(t, risk.High, res.RiskCategory)
	assert.Empty(t, res.TopFeatures)
	assert.Contains(t, res.ExplainerStatus.Primary, "degraded")
	assert.Contains(t, res.ExplainerStatus.Surrogate, "degraded")
}

func TestScoreSurrogateIndependentOfPrimary(t *testing.T) {
	// Tree primary works without background data; the surrogate needs it
	// and degrades alone.
	rf := trainedForest(t)
	predictor := ml.NewPredictorFromClassifier(ml.NameRandomForest, rf, risk.Default)
	engine := explain.NewEngine(rf, explain.Config{
		BackgroundPath: filepath.Join(t.TempDir(), "background.csv"),
	})
	svc := New(predictor, engine, nil, nil, nil)

	res, err := svc.Score("s-006", studentVector())
	require.NoError(t, err)

	assert.Equal(t, "ok", res.ExplainerStatus.Primary)
	assert.NotEmpty(t, res.TopFeatures)
	assert.Contains(t, res.ExplainerStatus.Surrogate, "degraded")
	assert.Empty(t, res.SurrogateFeatures)
}

// populationForest trains a forest on a synthetic population whose
// dropout propensity is driven by low semester grades, debt and unpaid
// tuition, matching the distribution of the sample-data generator.
func populationForest(t *testing.T) *ml.RandomForest {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	n := 3000
	x := make([][]float64, n)
	y := make([]int, n)

	for i := range x {
		prevQual := float64(1 + rng.Intn(17))
		age := math.Min(17+rng.ExpFloat64()*6, 60)
		scholarship, debtor, tuitionPaid := 0.0, 0.0, 1.0
		if rng.Float64() < 0.25 {
			scholarship = 1
		}
		if rng.Float64() < 0.11 {
			debtor = 1
		}
		if rng.Float64() >= 0.88 {
			tuitionPaid = 0
		}
		grade1 := math.Max(0, math.Min(20, rng.NormFloat64()*3+11.5))
		grade2 := math.Max(0, math.Min(20, grade1+rng.NormFloat64()*2))
		gdp := rng.NormFloat64() * 2.3

		logit := -1.8 +
			(10-grade1)*0.18 +
			(10-grade2)*0.22 +
			debtor*0.9 +
			(1-tuitionPaid)*1.4 -
			scholarship*0.6 +
			(age-20)*0.03
		if rng.Float64() < 1/(1+math.Exp(-logit)) {
			y[i] = 1
		}
		x[i] = []float64{prevQual, age, scholarship, debtor, tuitionPaid, grade1, grade2, gdp}
	}

	p := ml.DefaultRandomForestParams()
	p.Trees = 30
	p.MaxDepth = 12
	rf, err := ml.TrainRandomForest(x, y, p)
	require.NoError(t, err)
	return rf
}

// A student in academic and financial distress lands in the High band
// with the distress features leading the attribution list; a supported,
// well-performing student lands in Low.
func TestScoreEndToEndScenarios(t *testing.T) {
	rf := populationForest(t)
	predictor := ml.NewPredictorFromClassifier(ml.NameRandomForest, rf, risk.Default)
	engine := explain.NewEngine(rf, explain.Config{})
	svc := New(predictor, engine, nil, nil, nil)

	atRisk := features.Vector{
		features.PreviousQualification: 1,
		features.AgeAtEnrollment:       19,
		features.ScholarshipHolder:     0,
		features.Debtor:                1,
		features.TuitionFeesUpToDate:   0,
		features.FirstSemGrade:         8.5,
		features.SecondSemGrade:        7.8,
		features.GDP:                   2.7,
	}
	res, err := svc.Score("s-100", atRisk)
	require.NoError(t, err)
	assert.Equal(t, risk.High, res.RiskCategory)
	require.Len(t, res.TopFeatures, 3)

	distress := map[string]bool{
		features.Debtor:              true,
		features.TuitionFeesUpToDate: true,
		features.FirstSemGrade:       true,
		features.SecondSemGrade:      true,
	}
	grades := 0
	for _, a := range res.TopFeatures {
		assert.True(t, distress[a.Feature], "unexpected top feature %s", a.Feature)
		if a.Feature == features.FirstSemGrade || a.Feature == features.SecondSemGrade {
			grades++
		}
	}
	assert.GreaterOrEqual(t, grades, 1, "a semester grade should lead the explanation")

	thriving := features.Vector{
		features.PreviousQualification: 1,
		features.AgeAtEnrollment:       19,
		features.ScholarshipHolder:     1,
		features.Debtor:                0,
		features.TuitionFeesUpToDate:   1,
		features.FirstSemGrade:         15.5,
		features.SecondSemGrade:        16.0,
		features.GDP:                   1.74,
	}
	res, err = svc.Score("s-101", thriving)
	require.NoError(t, err)
	assert.Equal(t, risk.Low, res.RiskCategory)
	assert.Less(t, res.DropoutProbability, 0.3)
}

// constantNeural always returns the same probability and reports the
// neural family so the engine routes it through the kernel explainer.
type constantNeural struct{ p1 float64 }

func (c constantNeural) PredictProba([]float64) ([2]float64, error) {
	return [2]float64{1 - c.p1, c.p1}, nil
}
func (c constantNeural) Family() ml.Family { return ml.FamilyNeural }

// Surrogate path with a working background file.
func TestScoreSurrogateWithBackground(t *testing.T) {
	rf := trainedForest(t)
	rows := make([][]float64, 30)
	rng := rand.New(rand.NewSource(2))
	for i := range rows {
		row := make([]float64, features.Count)
		for j := range row {
			row[j] = rng.Float64() * 20
		}
		rows[i] = row
	}
	path := filepath.Join(t.TempDir(), "background.csv")
	require.NoError(t, dataset.WriteBackground(path, rows))

	predictor := ml.NewPredictorFromClassifier(ml.NameRandomForest, rf, risk.Default)
	engine := explain.NewEngine(rf, explain.Config{BackgroundPath: path})
	svc := New(predictor, engine, nil, nil, nil)

	res, err := svc.Score("s-007", studentVector())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ExplainerStatus.Surrogate)
	assert.NotEmpty(t, res.SurrogateFeatures)
	assert.NotEmpty(t, res.SurrogateFeatures[0].Description)
}
