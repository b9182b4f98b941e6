package ml

import (
	"errors"
	"fmt"
)

// Classifier is a multi-class model over integer-coded categorical features.
// Feature values are category codes stored as float64; labels are codes in [0, classes).
type Classifier interface {
	Fit(features [][]float64, labels []int, classes int) error
	PredictProba(features []float64) ([]float64, error)
	Predict(features []float64) (int, float64, error)
	NumFeatures() int
	NumClasses() int
}

const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

// ModelParams holds the settings shared by the supported classifiers.
type ModelParams struct {
	NEstimators int
	MaxDepth    int
	RandomState int64
}

// NewClassifier returns an untrained classifier of the given type.
func NewClassifier(modelType string, params ModelParams) (Classifier, error) {
	switch modelType {
	case "", ModelTypeRandomForest:
		return NewRandomForest(
			WithNEstimators(params.NEstimators),
			WithMaxDepth(params.MaxDepth),
			WithRandomState(params.RandomState),
		), nil
	case ModelTypeDecisionTree:
		return &DecisionTree{MaxDepth: params.MaxDepth, RandomState: params.RandomState}, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func validateTrainingSet(features [][]float64, labels []int, classes int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	if classes <= 0 {
		return 0, errors.New("classes must be positive")
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
		if labels[i] < 0 || labels[i] >= classes {
			return 0, fmt.Errorf("row %d label %d out of range [0, %d)", i, labels[i], classes)
		}
	}
	return width, nil
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
