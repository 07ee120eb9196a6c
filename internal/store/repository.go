package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repovitals/reviver/internal/features"
	"github.com/repovitals/reviver/internal/ml"
)

// Repository implements ml.ModelStore on top of the SQLite connection.
type Repository struct {
	db *DB
}

// NewRepository creates the persistence layer for models and samples.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveModel replaces the persisted model for its target atomically.
func (r *Repository) SaveModel(model *ml.TrainedModel) error {
	weights, err := json.Marshal(model.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	means, stds := sql.NullString{}, sql.NullString{}
	if model.Standardized() {
		m, err := json.Marshal(model.FeatureMeans)
		if err != nil {
			return fmt.Errorf("failed to encode feature means: %w", err)
		}
		s, err := json.Marshal(model.FeatureStds)
		if err != nil {
			return fmt.Errorf("failed to encode feature stds: %w", err)
		}
		means = sql.NullString{String: string(m), Valid: true}
		stds = sql.NullString{String: string(s), Valid: true}
	}

	stmt, err := r.db.stmt("upsert_model")
	if err != nil {
		return err
	}
	_, err = stmt.Exec(
		model.TargetName, model.Algorithm, model.SchemaVersion, string(weights),
		means, stds, model.Accuracy, model.SampleCount, model.TrainedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", model.TargetName, err)
	}
	return nil
}

// LoadModels returns every persisted model keyed by target name. An
// empty map means ML is unavailable, which is not an error.
func (r *Repository) LoadModels() (map[string]*ml.TrainedModel, error) {
	stmt, err := r.db.stmt("load_models")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	models := make(map[string]*ml.TrainedModel)
	for rows.Next() {
		var m ml.TrainedModel
		var weights string
		var means, stds sql.NullString
		if err := rows.Scan(
			&m.TargetName, &m.Algorithm, &m.SchemaVersion, &weights,
			&means, &stds, &m.Accuracy, &m.SampleCount, &m.TrainedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		if err := json.Unmarshal([]byte(weights), &m.Weights); err != nil {
			return nil, fmt.Errorf("failed to decode weights for %s: %w", m.TargetName, err)
		}
		if means.Valid {
			if err := json.Unmarshal([]byte(means.String), &m.FeatureMeans); err != nil {
				return nil, fmt.Errorf("failed to decode means for %s: %w", m.TargetName, err)
			}
		}
		if stds.Valid {
			if err := json.Unmarshal([]byte(stds.String), &m.FeatureStds); err != nil {
				return nil, fmt.Errorf("failed to decode stds for %s: %w", m.TargetName, err)
			}
		}
		models[m.TargetName] = &m
	}
	return models, rows.Err()
}

// SaveSamples appends training samples to the corpus. IDs and observed
// timestamps are filled in when absent.
func (r *Repository) SaveSamples(samples []*ml.TrainingSample) error {
	stmt, err := r.db.stmt("insert_sample")
	if err != nil {
		return err
	}
	for _, s := range samples {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if s.ObservedAt.IsZero() {
			s.ObservedAt = time.Now()
		}
		feats, err := json.Marshal(s.Features[:])
		if err != nil {
			return fmt.Errorf("failed to encode features: %w", err)
		}
		_, err = stmt.Exec(
			s.ID, s.SourceRepository, string(feats), s.Labels.IsAbandoned,
			s.Labels.RevivalSuccessProbability, s.Labels.EstimatedEffortDays,
			s.Labels.CommunityAdoptionLikely, s.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save sample %s: %w", s.ID, err)
		}
	}
	return nil
}

// LoadSamples returns the full training corpus in observation order.
// Rows persisted under an older feature schema are skipped rather than
// padded into the current shape.
func (r *Repository) LoadSamples() ([]*ml.TrainingSample, error) {
	stmt, err := r.db.stmt("load_samples")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []*ml.TrainingSample
	for rows.Next() {
		var s ml.TrainingSample
		var feats string
		if err := rows.Scan(
			&s.ID, &s.SourceRepository, &feats, &s.Labels.IsAbandoned,
			&s.Labels.RevivalSuccessProbability, &s.Labels.EstimatedEffortDays,
			&s.Labels.CommunityAdoptionLikely, &s.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		var raw []float64
		if err := json.Unmarshal([]byte(feats), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode features for %s: %w", s.ID, err)
		}
		if len(raw) != features.Dim {
			continue
		}
		copy(s.Features[:], raw)
		samples = append(samples, &s)
	}
	return samples, rows.Err()
}

// SampleCount reports the corpus size without loading it.
func (r *Repository) SampleCount() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM training_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}
