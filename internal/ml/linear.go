package ml

import (
	"fmt"
	"math"
)

// LinearModel is the small interface the trainer and predictor share,
// so the descent algorithm can be swapped without touching either.
type LinearModel interface {
	// Fit learns weights (bias last) from row-major features and labels.
	Fit(x [][]float64, y []float64, xVal [][]float64, yVal []float64) ([]float64, error)
	// Predict evaluates the raw linear output for one feature row.
	Predict(x []float64, weights []float64) (float64, error)
	// Name identifies the algorithm in persisted models.
	Name() string
}

// GradientDescent is batch gradient descent with L2 regularization and
// patience-based early stopping against a validation split.
type GradientDescent struct {
	LearningRate float64
	Epochs       int
	L2Penalty    float64
	MaxPatience  int
	// Sigmoid squashes the output during training, for binary targets.
	Sigmoid bool
}

// Name implements LinearModel.
func (g *GradientDescent) Name() string {
	if g.Sigmoid {
		return "logistic-gd"
	}
	return "linear-gd"
}

// Fit implements LinearModel. The returned weights are the best-seen
// validation snapshot, not the final epoch's.
func (g *GradientDescent) Fit(x [][]float64, y []float64, xVal [][]float64, yVal []float64) ([]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("mismatched training data: %d rows, %d labels", len(x), len(y))
	}
	dim := len(x[0])
	weights := make([]float64, dim+1) // bias last
	best := make([]float64, dim+1)
	bestLoss := math.Inf(1)
	patience := 0

	// Early stopping tracks the validation split, or the training set
	// itself when the caller did not hold anything out.
	evalX, evalY := xVal, yVal
	if len(evalX) == 0 {
		evalX, evalY = x, y
	}

	grad := make([]float64, dim+1)
	for epoch := 0; epoch < g.Epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		for i, row := range x {
			pred := g.raw(row, weights)
			if g.Sigmoid {
				pred = sigmoid(pred)
			}
			err := y[i] - pred
			for j, f := range row {
				grad[j] += err * f
			}
			grad[dim] += err
		}
		n := float64(len(x))
		for j := range weights {
			update := grad[j] / n
			if j < dim { // bias is not regularized
				update -= g.L2Penalty * weights[j]
			}
			weights[j] += g.LearningRate * update
		}

		loss := g.validationLoss(evalX, evalY, weights)
		if loss < bestLoss {
			bestLoss = loss
			copy(best, weights)
			patience = 0
		} else {
			patience++
			if patience >= g.MaxPatience {
				break
			}
		}
	}
	return best, nil
}

// Predict implements LinearModel. The output is raw; callers apply the
// sigmoid where the target is a probability.
func (g *GradientDescent) Predict(x []float64, weights []float64) (float64, error) {
	if len(weights) != len(x)+1 {
		return 0, fmt.Errorf("weight dimension %d does not match feature dimension %d", len(weights), len(x))
	}
	return g.raw(x, weights), nil
}

func (g *GradientDescent) raw(x []float64, weights []float64) float64 {
	sum := weights[len(weights)-1]
	for j, f := range x {
		sum += weights[j] * f
	}
	return sum
}

// validationLoss is mean squared error over the given split.
func (g *GradientDescent) validationLoss(xVal [][]float64, yVal []float64, weights []float64) float64 {
	sum := 0.0
	for i, row := range xVal {
		pred := g.raw(row, weights)
		if g.Sigmoid {
			pred = sigmoid(pred)
		}
		d := yVal[i] - pred
		sum += d * d
	}
	return sum / float64(len(xVal))
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
