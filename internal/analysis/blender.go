package analysis

import "github.com/repovitals/reviver/internal/ml"

// mlEnhancedThreshold separates hybrid results from ones where the
// model effectively owns the number.
const mlEnhancedThreshold = 0.8

// Blend merges the heuristic result with an optional prediction. With
// no prediction the heuristic passes through unchanged as rule-based.
// Otherwise each score is a confidence-weighted combination, so model
// influence scales continuously rather than switching all-or-nothing.
func Blend(repository string, heuristic HeuristicScore, pred *ml.Prediction) BlendedAnalysis {
	result := BlendedAnalysis{
		Repository:       repository,
		AbandonmentScore: heuristic.AbandonmentScore,
		RevivalPotential: heuristic.RevivalPotential,
		Method:           MethodRuleBased,
		Heuristic:        heuristic,
		Reasons:          append([]string{}, heuristic.Reasons...),
		Recommendations:  append([]string{}, heuristic.Recommendations...),
	}
	if pred == nil {
		return result
	}

	conf := clip(pred.ConfidenceScore, 0, 1)
	result.AbandonmentScore = clip(blendPair(pred.AbandonmentProbability*100, heuristic.AbandonmentScore, conf), 0, 100)
	result.RevivalPotential = clip(blendPair(pred.RevivalSuccessProbability*100, heuristic.RevivalPotential, conf), 0, 100)
	result.Prediction = pred
	result.Method = MethodHybrid
	if conf > mlEnhancedThreshold {
		result.Method = MethodMLEnhanced
	}

	// Model explanations supplement the heuristic ones, never replace them.
	result.Reasons = append(result.Reasons, pred.KeyFactors...)
	return result
}

// blendPair weights the model value by its own confidence.
func blendPair(mlValue, heuristicValue, confidence float64) float64 {
	return mlValue*confidence + heuristicValue*(1-confidence)
}
