package ml

import (
	"reflect"
	"testing"
)

func TestTrainBuildsBundle(t *testing.T) {
	bundle, report, err := Train(scenarioExamples(5), DefaultTrainingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Rows != 40 || report.Classes != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.TrainAccuracy != 1 {
		t.Fatalf("expected perfect training accuracy on noiseless data, got %f", report.TrainAccuracy)
	}
	if report.Holdout != nil {
		t.Fatal("holdout evaluation should be off by default")
	}

	want := map[string][]string{
		FieldSoilType: {"Clayey", "Loamy"},
		FieldSeason:   {"Summer", "Winter"},
		FieldPlace:    {"Punjab", "Telangana"},
		FieldCrop:     {"Rice", "Wheat"},
	}
	if got := bundle.Vocabularies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected vocabularies %v, got %v", want, got)
	}
	if bundle.Metadata.NEstimators != DefaultNEstimators || bundle.Metadata.RandomState != DefaultRandomState {
		t.Fatalf("unexpected metadata: %+v", bundle.Metadata)
	}
}

func TestTrainDeterministic(t *testing.T) {
	examples := scenarioExamples(3)
	examples[0].Crop = "Maize"
	examples[9].Crop = "Maize"

	first, _, err := Train(examples, DefaultTrainingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := Train(examples, DefaultTrainingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for soil := 0; soil < first.Soil.Len(); soil++ {
		for season := 0; season < first.Season.Len(); season++ {
			for state := 0; state < first.State.Len(); state++ {
				row := FeatureVector(soil, season, state)
				a, err := first.Model.PredictProba(row)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				b, err := second.Model.PredictProba(row)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !reflect.DeepEqual(a, b) {
					t.Fatalf("runs disagree on %v: %v vs %v", row, a, b)
				}
			}
		}
	}
}

func TestTrainEmptyDataset(t *testing.T) {
	if _, _, err := Train(nil, DefaultTrainingConfig()); KindOf(err) != KindInput {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestTrainUnsupportedModelType(t *testing.T) {
	cfg := DefaultTrainingConfig()
	cfg.ModelType = "svm"
	if _, _, err := Train(scenarioExamples(1), cfg); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}

func TestTrainDecisionTree(t *testing.T) {
	cfg := DefaultTrainingConfig()
	cfg.ModelType = ModelTypeDecisionTree
	bundle, _, err := Train(scenarioExamples(2), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := bundle.Model.(*DecisionTree); !ok {
		t.Fatalf("expected *DecisionTree, got %T", bundle.Model)
	}
	if bundle.Metadata.ModelType != ModelTypeDecisionTree || bundle.Metadata.NEstimators != 0 {
		t.Fatalf("unexpected metadata: %+v", bundle.Metadata)
	}
}

func TestTrainHoldoutEvaluation(t *testing.T) {
	cfg := DefaultTrainingConfig()
	cfg.TestRatio = 0.25
	_, report, err := Train(scenarioExamples(5), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Holdout == nil {
		t.Fatal("expected holdout evaluation")
	}
	if report.Holdout.TrainRows != 30 || report.Holdout.TestRows != 10 {
		t.Fatalf("unexpected split: %+v", report.Holdout)
	}
	if report.Holdout.Accuracy < 0.5 {
		t.Fatalf("holdout accuracy too low: %f", report.Holdout.Accuracy)
	}
}
