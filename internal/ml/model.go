package ml

import (
	"time"

	"github.com/repovitals/reviver/internal/features"
)

// Prediction target names. One trained model is persisted per target.
const (
	TargetAbandonment    = "abandonment"
	TargetRevivalSuccess = "revival_success"
	TargetEffort         = "effort_days"
	TargetAdoption       = "community_adoption"
)

// Targets lists every prediction target in a stable order.
var Targets = []string{TargetAbandonment, TargetRevivalSuccess, TargetEffort, TargetAdoption}

// Labels are the supervised outcomes attached to a training sample.
type Labels struct {
	IsAbandoned               bool    `json:"is_abandoned"`
	RevivalSuccessProbability float64 `json:"revival_success_probability"` // 0..1
	EstimatedEffortDays       int     `json:"estimated_effort_days"`
	CommunityAdoptionLikely   float64 `json:"community_adoption_likelihood"` // 0..1
}

// TrainingSample pairs one feature vector with its observed labels.
// Samples are immutable once stored; re-collection supersedes them.
type TrainingSample struct {
	ID               string          `json:"id"`
	Features         features.Vector `json:"features"`
	Labels           Labels          `json:"labels"`
	SourceRepository string          `json:"source_repository"`
	ObservedAt       time.Time       `json:"observed_at"`
}

// TrainedModel is one persisted per-target linear model. Replaced
// atomically on retraining, never partially updated.
type TrainedModel struct {
	TargetName    string    `json:"target_name"`
	Algorithm     string    `json:"algorithm"`
	SchemaVersion int       `json:"schema_version"`
	Weights       []float64 `json:"weights"` // bias last
	FeatureMeans  []float64 `json:"feature_means,omitempty"`
	FeatureStds   []float64 `json:"feature_stds,omitempty"`
	Accuracy      float64   `json:"accuracy"`
	SampleCount   int       `json:"training_sample_count"`
	TrainedAt     time.Time `json:"trained_at"`
}

// Standardized reports whether scaling parameters were stored with the
// model and must be applied at inference.
func (m *TrainedModel) Standardized() bool {
	return len(m.FeatureMeans) > 0 && len(m.FeatureStds) > 0
}

// Prediction is the ephemeral per-inference result.
type Prediction struct {
	AbandonmentProbability    float64  `json:"abandonment_probability"`       // 0..1
	RevivalSuccessProbability float64  `json:"revival_success_probability"`   // 0..1
	EstimatedEffortDays       int      `json:"estimated_effort_days"`         // 1..365
	CommunityAdoptionLikely   float64  `json:"community_adoption_likelihood"` // 0..1
	ConfidenceScore           float64  `json:"confidence_score"`              // 0..1
	KeyFactors                []string `json:"key_factors"`
}

// ModelStore is the durable model and corpus persistence boundary,
// implemented by internal/store.
type ModelStore interface {
	SaveModel(model *TrainedModel) error
	LoadModels() (map[string]*TrainedModel, error)
	SaveSamples(samples []*TrainingSample) error
	LoadSamples() ([]*TrainingSample, error)
}
