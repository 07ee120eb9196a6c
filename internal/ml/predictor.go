package ml

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/repovitals/reviver/internal/features"
)

// ErrSchemaMismatch is returned when a persisted model does not fit the
// current feature schema. Inference refuses to run on such a model;
// retraining is the only fix.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// keyFactorCount is how many top contributing features are surfaced.
const keyFactorCount = 3

// factorExplanations maps feature names to revival-facing phrasing.
// Features without an entry fall back to a generic summary.
var factorExplanations = map[string]string{
	"years_since_last_commit":  "long period without commits",
	"commits_365d_log":         "recent commit volume",
	"stars_log":                "community star interest",
	"forks_log":                "fork activity",
	"open_issues_log":          "open issue backlog",
	"issues_opened_30d":        "recent issue activity",
	"contributors_log":         "contributor base size",
	"avg_issue_close_days":     "slow issue response times",
	"pr_merge_rate":            "pull request merge rate",
	"outdated_dep_ratio":       "outdated dependencies",
	"critical_vulns":           "critical vulnerabilities",
	"has_ci":                   "continuous integration presence",
	"has_tests":                "test suite presence",
	"age_years":                "project age",
	"years_since_last_release": "time since last release",
}

// Predictor runs inference against the persisted per-target models.
// Models are loaded as a consistent snapshot; call Reload to pick up a
// newer training run.
type Predictor struct {
	store  ModelStore
	logger *slog.Logger

	mu     sync.RWMutex
	models map[string]*TrainedModel
}

// NewPredictor creates a predictor and loads the current model
// snapshot. An empty store is a valid state: ML is just unavailable.
func NewPredictor(store ModelStore, logger *slog.Logger) (*Predictor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Predictor{store: store, logger: logger}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload replaces the in-memory model snapshot from the store.
func (p *Predictor) Reload() error {
	models, err := p.store.LoadModels()
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	p.mu.Lock()
	p.models = models
	p.mu.Unlock()
	p.logger.Info("model snapshot loaded", "models", len(models))
	return nil
}

// Available reports whether every prediction target has a model.
func (p *Predictor) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, target := range Targets {
		if p.models[target] == nil {
			return false
		}
	}
	return true
}

// Models returns the current snapshot's metadata, weights excluded.
func (p *Predictor) Models() []TrainedModel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]TrainedModel, 0, len(p.models))
	for _, m := range p.models {
		meta := *m
		meta.Weights = nil
		meta.FeatureMeans = nil
		meta.FeatureStds = nil
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetName < out[j].TargetName })
	return out
}

// Predict runs every target model over the vector. It returns nil when
// models are missing or overall confidence is below the threshold:
// the caller falls back to heuristics rather than trusting a guess.
// Schema or dimension mismatches are hard errors, never papered over.
func (p *Predictor) Predict(v features.Vector, confidenceThreshold float64) (*Prediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.availableLocked() {
		return nil, nil
	}

	confidence := p.confidenceLocked()
	if confidence < confidenceThreshold {
		p.logger.Debug("prediction below confidence threshold",
			"confidence", confidence,
			"threshold", confidenceThreshold)
		return nil, nil
	}

	pred := &Prediction{ConfidenceScore: confidence}
	for _, target := range Targets {
		model := p.models[target]
		raw, err := p.infer(model, v)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", target, err)
		}
		switch target {
		case TargetAbandonment:
			pred.AbandonmentProbability = sigmoid(raw)
		case TargetRevivalSuccess:
			pred.RevivalSuccessProbability = clamp(raw, 0, 1)
		case TargetEffort:
			pred.EstimatedEffortDays = int(clamp(raw*365, 1, 365))
		case TargetAdoption:
			pred.CommunityAdoptionLikely = clamp(raw, 0, 1)
		}
	}
	pred.KeyFactors = p.keyFactors(p.models[TargetAbandonment], v)
	return pred, nil
}

// infer applies the model's stored scaling and evaluates the linear
// output, refusing stale models from an older feature schema.
func (p *Predictor) infer(model *TrainedModel, v features.Vector) (float64, error) {
	if model.SchemaVersion != features.SchemaVersion {
		return 0, fmt.Errorf("%w: model schema version %d does not match current schema %d; retrain required",
			ErrSchemaMismatch, model.SchemaVersion, features.SchemaVersion)
	}
	if len(model.Weights) != features.Dim+1 {
		return 0, fmt.Errorf("%w: model has %d weights, expected %d", ErrSchemaMismatch, len(model.Weights), features.Dim+1)
	}
	row := make([]float64, features.Dim)
	copy(row, v[:])
	if model.Standardized() {
		if len(model.FeatureMeans) != features.Dim || len(model.FeatureStds) != features.Dim {
			return 0, fmt.Errorf("%w: model scaling parameters have wrong dimension", ErrSchemaMismatch)
		}
		for j := range row {
			row[j] = (row[j] - model.FeatureMeans[j]) / model.FeatureStds[j]
		}
	}
	sum := model.Weights[features.Dim]
	for j, f := range row {
		sum += model.Weights[j] * f
	}
	return sum, nil
}

func (p *Predictor) availableLocked() bool {
	for _, target := range Targets {
		if p.models[target] == nil {
			return false
		}
	}
	return true
}

// confidenceLocked is the harmonic mean of sub-model accuracies. The
// harmonic mean lets any single weak sub-model drag the whole thing
// down instead of being masked by strong siblings.
func (p *Predictor) confidenceLocked() float64 {
	sum := 0.0
	for _, target := range Targets {
		acc := p.models[target].Accuracy
		if acc <= 0 {
			return 0
		}
		sum += 1 / acc
	}
	return clamp(float64(len(Targets))/sum, 0, 1)
}

// keyFactors ranks feature/weight products by magnitude and maps the
// top contributors to human-readable explanations.
func (p *Predictor) keyFactors(model *TrainedModel, v features.Vector) []string {
	type contribution struct {
		name  string
		value float64
	}
	contribs := make([]contribution, 0, features.Dim)
	for j := 0; j < features.Dim && j < len(model.Weights); j++ {
		contribs = append(contribs, contribution{
			name:  features.Names[j],
			value: math.Abs(model.Weights[j] * v[j]),
		})
	}
	sort.Slice(contribs, func(i, j int) bool { return contribs[i].value > contribs[j].value })

	factors := make([]string, 0, keyFactorCount)
	for _, c := range contribs {
		if len(factors) == keyFactorCount {
			break
		}
		if c.value == 0 {
			continue
		}
		if explanation, ok := factorExplanations[c.name]; ok {
			factors = append(factors, explanation)
		} else {
			factors = append(factors, fmt.Sprintf("signal from %s", c.name))
		}
	}
	return factors
}
