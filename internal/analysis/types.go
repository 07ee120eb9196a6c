package analysis

import "github.com/repovitals/reviver/internal/ml"

// ScoringMethod discriminates how a BlendedAnalysis was produced.
type ScoringMethod string

const (
	MethodRuleBased  ScoringMethod = "rule-based"
	MethodMLEnhanced ScoringMethod = "ml-enhanced"
	MethodHybrid     ScoringMethod = "hybrid"
)

// HeuristicScore is the deterministic scorer output.
type HeuristicScore struct {
	AbandonmentScore float64  `json:"abandonment_score"` // 0..100
	RevivalPotential float64  `json:"revival_potential"` // 0..100
	Reasons          []string `json:"reasons"`
	Recommendations  []string `json:"recommendations"`
}

// BlendedAnalysis is the externally visible result. Prediction is only
// set when Method is ml-enhanced or hybrid.
type BlendedAnalysis struct {
	Repository       string         `json:"repository"`
	AbandonmentScore float64        `json:"abandonment_score"` // 0..100
	RevivalPotential float64        `json:"revival_potential"` // 0..100
	Method           ScoringMethod  `json:"scoring_method"`
	Heuristic        HeuristicScore `json:"heuristic"`
	Prediction       *ml.Prediction `json:"prediction,omitempty"`
	Reasons          []string       `json:"reasons"`
	Recommendations  []string       `json:"recommendations"`
}
