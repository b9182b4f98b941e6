package ml

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// TrainingExample is one labeled dataset row.
type TrainingExample struct {
	SoilType string
	Season   string
	State    string
	Crop     string
}

type TrainingConfig struct {
	ModelType   string
	NEstimators int
	MaxDepth    int
	RandomState int64
	// TestRatio > 0 enables a holdout evaluation on a separate model. The bundled
	// model is always fit on every row.
	TestRatio float64
	Dataset   string
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		ModelType:   ModelTypeRandomForest,
		NEstimators: DefaultNEstimators,
		RandomState: DefaultRandomState,
	}
}

type Evaluation struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

type TrainingReport struct {
	Rows          int           `json:"rows"`
	Classes       int           `json:"classes"`
	TrainAccuracy float64       `json:"train_accuracy"`
	Holdout       *Evaluation   `json:"holdout,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Train fits the four encoders and the classifier over the whole dataset and
// returns them as a validated bundle.
func Train(examples []TrainingExample, cfg TrainingConfig) (*Bundle, *TrainingReport, error) {
	start := time.Now()
	if len(examples) == 0 {
		return nil, nil, inputErrorf("dataset is empty")
	}

	encoders, err := fitEncoders(examples)
	if err != nil {
		return nil, nil, err
	}
	features, labels, err := encoders.encode(examples)
	if err != nil {
		return nil, nil, err
	}

	model, err := NewClassifier(cfg.ModelType, ModelParams{
		NEstimators: cfg.NEstimators,
		MaxDepth:    cfg.MaxDepth,
		RandomState: cfg.RandomState,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := model.Fit(features, labels, encoders.crop.Len()); err != nil {
		return nil, nil, fmt.Errorf("fit %s: %w", modelTypeOrDefault(cfg.ModelType), err)
	}

	accuracy, _, _, err := evaluateModel(model, features, labels, encoders.crop.Len())
	if err != nil {
		return nil, nil, err
	}

	report := &TrainingReport{
		Rows:          len(examples),
		Classes:       encoders.crop.Len(),
		TrainAccuracy: accuracy,
	}
	if cfg.TestRatio > 0 && cfg.TestRatio < 1 {
		holdout, err := holdoutEvaluation(features, labels, encoders.crop.Len(), cfg)
		if err != nil {
			return nil, nil, err
		}
		report.Holdout = holdout
	}

	nEstimators := 0
	if rf, ok := model.(*RandomForest); ok {
		nEstimators = rf.NEstimators
	}
	bundle := &Bundle{
		Model:  model,
		Soil:   encoders.soil,
		Season: encoders.season,
		State:  encoders.state,
		Crop:   encoders.crop,
		Metadata: BundleMetadata{
			Version:     BundleVersion,
			ModelType:   modelTypeOrDefault(cfg.ModelType),
			Dataset:     cfg.Dataset,
			Rows:        len(examples),
			NEstimators: nEstimators,
			RandomState: cfg.RandomState,
			Accuracy:    accuracy,
			TrainedAt:   time.Now().UTC(),
		},
	}
	if err := bundle.Validate(); err != nil {
		return nil, nil, err
	}
	report.Duration = time.Since(start)
	return bundle, report, nil
}

type encoderSet struct {
	soil, season, state, crop *LabelEncoder
}

func fitEncoders(examples []TrainingExample) (*encoderSet, error) {
	soil := make([]string, len(examples))
	season := make([]string, len(examples))
	state := make([]string, len(examples))
	crop := make([]string, len(examples))
	for i, ex := range examples {
		soil[i] = ex.SoilType
		season[i] = ex.Season
		state[i] = ex.State
		crop[i] = ex.Crop
	}

	var (
		set encoderSet
		err error
	)
	if set.soil, err = FitEncoder(FieldSoilType, soil); err != nil {
		return nil, err
	}
	if set.season, err = FitEncoder(FieldSeason, season); err != nil {
		return nil, err
	}
	if set.state, err = FitEncoder(FieldPlace, state); err != nil {
		return nil, err
	}
	if set.crop, err = FitEncoder(FieldCrop, crop); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *encoderSet) encode(examples []TrainingExample) ([][]float64, []int, error) {
	features := make([][]float64, len(examples))
	labels := make([]int, len(examples))
	for i, ex := range examples {
		soil, err := s.soil.Encode(ex.SoilType)
		if err != nil {
			return nil, nil, err
		}
		season, err := s.season.Encode(ex.Season)
		if err != nil {
			return nil, nil, err
		}
		state, err := s.state.Encode(ex.State)
		if err != nil {
			return nil, nil, err
		}
		crop, err := s.crop.Encode(ex.Crop)
		if err != nil {
			return nil, nil, err
		}
		features[i] = FeatureVector(soil, season, state)
		labels[i] = crop
	}
	return features, labels, nil
}

// FeatureVector lays out the three category codes in model column order.
func FeatureVector(soil, season, state int) []float64 {
	return []float64{float64(soil), float64(season), float64(state)}
}

func holdoutEvaluation(features [][]float64, labels []int, classes int, cfg TrainingConfig) (*Evaluation, error) {
	rnd := rand.New(rand.NewSource(cfg.RandomState))
	indices := rnd.Perm(len(features))
	split := int(math.Round(float64(len(features)) * (1 - cfg.TestRatio)))
	if split <= 0 || split >= len(features) {
		return nil, nil
	}

	var trainX, testX [][]float64
	var trainY, testY []int
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}

	model, err := NewClassifier(cfg.ModelType, ModelParams{
		NEstimators: cfg.NEstimators,
		MaxDepth:    cfg.MaxDepth,
		RandomState: cfg.RandomState,
	})
	if err != nil {
		return nil, err
	}
	if err := model.Fit(trainX, trainY, classes); err != nil {
		return nil, fmt.Errorf("fit holdout model: %w", err)
	}
	accuracy, precision, recall, err := evaluateModel(model, testX, testY, classes)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		TrainRows: len(trainX),
		TestRows:  len(testX),
		Accuracy:  accuracy,
		Precision: precision,
		Recall:    recall,
	}, nil
}

// evaluateModel returns accuracy and macro-averaged precision and recall.
func evaluateModel(model Classifier, features [][]float64, labels []int, classes int) (accuracy, precision, recall float64, err error) {
	if len(features) == 0 {
		return 0, 0, 0, nil
	}
	truePositive := make([]int, classes)
	predicted := make([]int, classes)
	actual := make([]int, classes)
	correct := 0
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			return 0, 0, 0, err
		}
		predicted[label]++
		actual[labels[i]]++
		if label == labels[i] {
			correct++
			truePositive[label]++
		}
	}

	var pSum, rSum float64
	var pN, rN int
	for c := 0; c < classes; c++ {
		if predicted[c] > 0 {
			pSum += float64(truePositive[c]) / float64(predicted[c])
			pN++
		}
		if actual[c] > 0 {
			rSum += float64(truePositive[c]) / float64(actual[c])
			rN++
		}
	}
	accuracy = float64(correct) / float64(len(features))
	if pN > 0 {
		precision = pSum / float64(pN)
	}
	if rN > 0 {
		recall = rSum / float64(rN)
	}
	return accuracy, precision, recall, nil
}

func modelTypeOrDefault(modelType string) string {
	if modelType == "" {
		return ModelTypeRandomForest
	}
	return modelType
}
