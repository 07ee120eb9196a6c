package ml

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovitals/reviver/internal/features"
)

// memStore is an in-memory ModelStore for trainer and predictor tests.
type memStore struct {
	models  map[string]*TrainedModel
	samples []*TrainingSample
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{models: make(map[string]*TrainedModel)}
}

func (s *memStore) SaveModel(model *TrainedModel) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.models[model.TargetName] = model
	return nil
}

func (s *memStore) LoadModels() (map[string]*TrainedModel, error) {
	out := make(map[string]*TrainedModel, len(s.models))
	for k, v := range s.models {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveSamples(samples []*TrainingSample) error {
	s.samples = append(s.samples, samples...)
	return nil
}

func (s *memStore) LoadSamples() ([]*TrainingSample, error) {
	return s.samples, nil
}

// syntheticCorpus builds a clean, learnable corpus: abandonment is
// separable on the last-commit feature, the continuous targets are
// linear in the star and commit-gap features.
func syntheticCorpus(n int) []*TrainingSample {
	samples := make([]*TrainingSample, 0, n)
	for i := 0; i < n; i++ {
		yearsSince := float64(i%8) * 0.5 // 0 .. 3.5
		starsLog := float64(i%10) * 0.7  // 0 .. 6.3

		var v features.Vector
		v[features.FYearsSinceLastCommit] = yearsSince
		v[features.FStarsLog] = starsLog
		v[features.FHasLicense] = float64(i % 2)

		effort := 30 + int(yearsSince*80)
		samples = append(samples, &TrainingSample{
			ID:       fmt.Sprintf("sample-%d", i),
			Features: v,
			Labels: Labels{
				IsAbandoned:               yearsSince > 1.5,
				RevivalSuccessProbability: clamp(0.1+starsLog*0.12, 0, 1),
				EstimatedEffortDays:       effort,
				CommunityAdoptionLikely:   clamp(0.05+starsLog*0.1, 0, 1),
			},
			SourceRepository: fmt.Sprintf("org/repo-%d", i),
			ObservedAt:       time.Now(),
		})
	}
	return samples
}

func testTrainerConfig() TrainerConfig {
	config := DefaultTrainerConfig()
	config.Seed = 1
	return config
}

func TestTrainAllRejectsInsufficientSamples(t *testing.T) {
	trainer := NewTrainer(newMemStore(), testTrainerConfig(), nil)

	_, err := trainer.TrainAll(syntheticCorpus(MinTrainingSamples - 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestTrainAllTrainsEveryTarget(t *testing.T) {
	store := newMemStore()
	trainer := NewTrainer(store, testTrainerConfig(), nil)

	reports, err := trainer.TrainAll(syntheticCorpus(80))
	require.NoError(t, err)
	require.Len(t, reports, len(Targets))

	seen := make(map[string]TargetReport)
	for _, report := range reports {
		seen[report.TargetName] = report
		assert.Equal(t, 80, report.SampleCount)
	}
	for _, target := range Targets {
		assert.Contains(t, seen, target)
	}

	// The corpus is clean and separable, so the abandonment model must
	// clear the gate and be persisted.
	abandonment := seen[TargetAbandonment]
	assert.Equal(t, "logistic-gd", abandonment.Algorithm)
	assert.True(t, abandonment.Persisted)
	assert.GreaterOrEqual(t, abandonment.Accuracy, 0.9)

	for _, target := range []string{TargetRevivalSuccess, TargetEffort, TargetAdoption} {
		report := seen[target]
		assert.Equal(t, "linear-gd", report.Algorithm)
		assert.True(t, report.Persisted, "target %s should clear the gate on linear data", target)
	}
}

func TestTrainAllPersistedModelShape(t *testing.T) {
	store := newMemStore()
	trainer := NewTrainer(store, testTrainerConfig(), nil)

	_, err := trainer.TrainAll(syntheticCorpus(60))
	require.NoError(t, err)

	for target, model := range store.models {
		assert.Equal(t, target, model.TargetName)
		assert.Equal(t, features.SchemaVersion, model.SchemaVersion)
		assert.Len(t, model.Weights, features.Dim+1)
		assert.Len(t, model.FeatureMeans, features.Dim)
		assert.Len(t, model.FeatureStds, features.Dim)
		assert.False(t, model.TrainedAt.IsZero())
	}
}

func TestTrainAllQualityGateDiscardsNoiseModels(t *testing.T) {
	store := newMemStore()
	config := testTrainerConfig()
	config.MinAccuracy = 0.99
	trainer := NewTrainer(store, config, nil)

	// Random labels cannot reach 99% validation accuracy.
	samples := syntheticCorpus(40)
	for i, s := range samples {
		s.Labels.IsAbandoned = i%3 == 0
		s.Labels.RevivalSuccessProbability = float64((i*7)%10) / 10
	}

	reports, err := trainer.TrainAll(samples)
	require.NoError(t, err)
	for _, report := range reports {
		if report.TargetName == TargetAbandonment || report.TargetName == TargetRevivalSuccess {
			assert.False(t, report.Persisted, "noise model for %s should be discarded", report.TargetName)
		}
	}
	assert.NotContains(t, store.models, TargetAbandonment)
}

func TestEvaluateBinaryConfusionMatrix(t *testing.T) {
	gd := &GradientDescent{Sigmoid: true}

	// Weights that predict positive iff x0 > 0.
	weights := []float64{10, 0}
	x := [][]float64{{1}, {1}, {-1}, {-1}, {1}, {-1}}
	y := []float64{1, 1, 0, 0, 0, 1} // two mistakes

	accuracy, precision, recall, f1 := evaluateBinary(gd, weights, x, y)
	assert.InDelta(t, 4.0/6.0, accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, precision, 1e-9) // tp=2 fp=1
	assert.InDelta(t, 2.0/3.0, recall, 1e-9)    // tp=2 fn=1
	assert.InDelta(t, 2.0/3.0, f1, 1e-9)
}

func TestEvaluateR2(t *testing.T) {
	gd := &GradientDescent{}

	// Perfect model: y = x0.
	weights := []float64{1, 0}
	x := [][]float64{{1}, {2}, {3}}
	y := []float64{1, 2, 3}
	assert.InDelta(t, 1.0, evaluateR2(gd, weights, x, y), 1e-9)

	// A model worse than the mean floors at zero.
	badWeights := []float64{-5, 0}
	assert.Equal(t, 0.0, evaluateR2(gd, badWeights, x, y))
}

func TestFitScalerHandlesConstantFeature(t *testing.T) {
	x := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	means, stds := fitScaler(x)

	assert.InDelta(t, 3, means[0], 1e-9)
	assert.InDelta(t, 5, means[1], 1e-9)
	assert.Equal(t, 1.0, stds[1]) // zero variance maps to 1, not a div-by-zero

	applyScaler(x, means, stds)
	assert.InDelta(t, 0, x[0][1], 1e-9)
	assert.InDelta(t, 0, x[1][1], 1e-9)
}

func TestPrepareScalesEffortTarget(t *testing.T) {
	trainer := NewTrainer(newMemStore(), testTrainerConfig(), nil)

	samples := []*TrainingSample{
		{Labels: Labels{EstimatedEffortDays: 365}},
		{Labels: Labels{EstimatedEffortDays: 0}}, // clamped up to 1 day
		{Labels: Labels{EstimatedEffortDays: 999}},
	}

	_, y := trainer.prepare(TargetEffort, samples)
	assert.InDelta(t, 1.0, y[0], 1e-9)
	assert.InDelta(t, 1.0/365, y[1], 1e-9)
	assert.InDelta(t, 1.0, y[2], 1e-9)
}

func TestSplitHoldsOutValidationFraction(t *testing.T) {
	trainer := NewTrainer(newMemStore(), testTrainerConfig(), nil)

	x := make([][]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = float64(i)
	}

	trainX, trainY, valX, valY := trainer.split(x, y)
	assert.Len(t, valX, 4)
	assert.Len(t, valY, 4)
	assert.Len(t, trainX, 16)
	assert.Len(t, trainY, 16)
}
