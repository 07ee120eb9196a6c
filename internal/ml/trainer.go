package ml

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/repovitals/reviver/internal/features"
)

// MinTrainingSamples is the floor below which training refuses to run.
// A model fitted on fewer rows than features is noise.
const MinTrainingSamples = 10

// ErrInsufficientSamples is returned when the corpus is too small to
// train; callers should collect more data rather than retry.
var ErrInsufficientSamples = errors.New("insufficient training samples")

// TrainerConfig controls the descent and the quality gate.
type TrainerConfig struct {
	LearningRate       float64
	Epochs             int
	L2Penalty          float64
	MaxPatience        int
	ValidationFraction float64
	MinAccuracy        float64
	Standardize        bool
	Seed               int64
}

// DefaultTrainerConfig returns the settings used in production.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		LearningRate:       0.05,
		Epochs:             500,
		L2Penalty:          0.001,
		MaxPatience:        25,
		ValidationFraction: 0.2,
		MinAccuracy:        0.6,
		Standardize:        true,
		Seed:               time.Now().UnixNano(),
	}
}

// TargetReport summarizes one target's training run.
type TargetReport struct {
	TargetName  string  `json:"target_name"`
	Algorithm   string  `json:"algorithm"`
	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision,omitempty"`
	Recall      float64 `json:"recall,omitempty"`
	F1          float64 `json:"f1,omitempty"`
	SampleCount int     `json:"sample_count"`
	Persisted   bool    `json:"persisted"`
}

// Trainer fits one linear model per prediction target and persists the
// ones that clear the accuracy gate. Writes to the store are
// serialized; two training runs never interleave.
type Trainer struct {
	store  ModelStore
	config TrainerConfig
	logger *slog.Logger

	mu sync.Mutex
}

// NewTrainer creates a trainer backed by the given store.
func NewTrainer(store ModelStore, config TrainerConfig, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{store: store, config: config, logger: logger}
}

// TrainAll trains every target from the given samples. Models that
// fail the accuracy gate are discarded and reported, not persisted.
func (t *Trainer) TrainAll(samples []*TrainingSample) ([]TargetReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(samples) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientSamples, len(samples), MinTrainingSamples)
	}

	reports := make([]TargetReport, 0, len(Targets))
	for _, target := range Targets {
		report, err := t.trainTarget(target, samples)
		if err != nil {
			return reports, fmt.Errorf("training %s: %w", target, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (t *Trainer) trainTarget(target string, samples []*TrainingSample) (TargetReport, error) {
	x, y := t.prepare(target, samples)
	trainX, trainY, valX, valY := t.split(x, y)

	var means, stds []float64
	if t.config.Standardize {
		means, stds = fitScaler(trainX)
		applyScaler(trainX, means, stds)
		applyScaler(valX, means, stds)
	}

	model := t.modelFor(target)
	weights, err := model.Fit(trainX, trainY, valX, valY)
	if err != nil {
		return TargetReport{}, err
	}

	report := TargetReport{
		TargetName:  target,
		Algorithm:   model.Name(),
		SampleCount: len(samples),
	}
	if target == TargetAbandonment {
		report.Accuracy, report.Precision, report.Recall, report.F1 = evaluateBinary(model, weights, valX, valY)
	} else {
		report.Accuracy = evaluateR2(model, weights, valX, valY)
	}

	if report.Accuracy < t.config.MinAccuracy {
		t.logger.Warn("model failed quality gate, discarding",
			"target", target,
			"accuracy", report.Accuracy,
			"min_accuracy", t.config.MinAccuracy,
			"samples", len(samples))
		return report, nil
	}

	trained := &TrainedModel{
		TargetName:    target,
		Algorithm:     model.Name(),
		SchemaVersion: features.SchemaVersion,
		Weights:       weights,
		FeatureMeans:  means,
		FeatureStds:   stds,
		Accuracy:      report.Accuracy,
		SampleCount:   len(samples),
		TrainedAt:     time.Now(),
	}
	if err := t.store.SaveModel(trained); err != nil {
		return report, fmt.Errorf("persisting model: %w", err)
	}
	report.Persisted = true

	t.logger.Info("model trained",
		"target", target,
		"algorithm", model.Name(),
		"accuracy", report.Accuracy,
		"samples", len(samples))
	return report, nil
}

// modelFor selects the algorithm per target: logistic descent for the
// binary abandonment target, plain linear descent elsewhere.
func (t *Trainer) modelFor(target string) LinearModel {
	return &GradientDescent{
		LearningRate: t.config.LearningRate,
		Epochs:       t.config.Epochs,
		L2Penalty:    t.config.L2Penalty,
		MaxPatience:  t.config.MaxPatience,
		Sigmoid:      target == TargetAbandonment,
	}
}

// prepare extracts the per-target label column. Effort days are scaled
// to years so one target doesn't need a wildly different learning rate.
func (t *Trainer) prepare(target string, samples []*TrainingSample) ([][]float64, []float64) {
	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		row := make([]float64, features.Dim)
		copy(row, s.Features[:])
		x[i] = row

		switch target {
		case TargetAbandonment:
			if s.Labels.IsAbandoned {
				y[i] = 1
			}
		case TargetRevivalSuccess:
			y[i] = clamp(s.Labels.RevivalSuccessProbability, 0, 1)
		case TargetEffort:
			y[i] = clamp(float64(s.Labels.EstimatedEffortDays), 1, 365) / 365
		case TargetAdoption:
			y[i] = clamp(s.Labels.CommunityAdoptionLikely, 0, 1)
		}
	}
	return x, y
}

// split shuffles and carves off the validation fraction.
func (t *Trainer) split(x [][]float64, y []float64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	rng := rand.New(rand.NewSource(t.config.Seed))
	idx := rng.Perm(len(x))

	valCount := int(float64(len(x)) * t.config.ValidationFraction)
	if valCount < 1 {
		valCount = 1
	}
	if valCount >= len(x) {
		valCount = len(x) - 1
	}

	for i, j := range idx {
		if i < valCount {
			valX = append(valX, x[j])
			valY = append(valY, y[j])
		} else {
			trainX = append(trainX, x[j])
			trainY = append(trainY, y[j])
		}
	}
	return trainX, trainY, valX, valY
}

// evaluateBinary derives accuracy/precision/recall/F1 from a confusion
// matrix at threshold 0.5.
func evaluateBinary(model LinearModel, weights []float64, x [][]float64, y []float64) (accuracy, precision, recall, f1 float64) {
	if len(x) == 0 {
		return 0, 0, 0, 0
	}
	var tp, tn, fp, fn float64
	for i, row := range x {
		raw, err := model.Predict(row, weights)
		if err != nil {
			return 0, 0, 0, 0
		}
		predicted := sigmoid(raw) >= 0.5
		actual := y[i] >= 0.5
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		default:
			tn++
		}
	}
	total := tp + tn + fp + fn
	accuracy = (tp + tn) / total
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return accuracy, precision, recall, f1
}

// evaluateR2 computes 1 - SS_res/SS_tot as the accuracy proxy for
// continuous targets, floored at zero so the gate compares cleanly.
func evaluateR2(model LinearModel, weights []float64, x [][]float64, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i, row := range x {
		pred, err := model.Predict(row, weights)
		if err != nil {
			return 0
		}
		d := y[i] - pred
		ssRes += d * d
		dt := y[i] - mean
		ssTot += dt * dt
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 || math.IsNaN(r2) {
		return 0
	}
	return r2
}

// fitScaler computes per-feature mean and std-dev over the rows.
func fitScaler(x [][]float64) (means, stds []float64) {
	if len(x) == 0 {
		return nil, nil
	}
	dim := len(x[0])
	means = make([]float64, dim)
	stds = make([]float64, dim)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(x))
	for j := range means {
		means[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

// applyScaler standardizes rows in place with the stored parameters.
func applyScaler(x [][]float64, means, stds []float64) {
	if len(means) == 0 {
		return
	}
	for _, row := range x {
		for j := range row {
			row[j] = (row[j] - means[j]) / stds[j]
		}
	}
}
