package ml

import "testing"

// scenarioExamples covers every soil/season/state combination; the crop follows the
// soil type so a fitted model has a clear signal to learn.
func scenarioExamples(repeat int) []TrainingExample {
	var examples []TrainingExample
	for r := 0; r < repeat; r++ {
		for _, soil := range []string{"Loamy", "Clayey"} {
			for _, season := range []string{"Winter", "Summer"} {
				for _, state := range []string{"Telangana", "Punjab"} {
					crop := "Rice"
					if soil == "Clayey" {
						crop = "Wheat"
					}
					examples = append(examples, TrainingExample{SoilType: soil, Season: season, State: state, Crop: crop})
				}
			}
		}
	}
	return examples
}

func constantExamples(crop string) []TrainingExample {
	examples := scenarioExamples(1)
	for i := range examples {
		examples[i].Crop = crop
	}
	return examples
}

func trainScenario(t *testing.T) *Bundle {
	t.Helper()
	bundle, _, err := Train(scenarioExamples(5), DefaultTrainingConfig())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return bundle
}

// stubClassifier lets tests drive the predictor into failure paths.
type stubClassifier struct {
	label   int
	classes int
	err     error
	panics  bool
}

func (s *stubClassifier) Fit([][]float64, []int, int) error { return nil }

func (s *stubClassifier) PredictProba([]float64) ([]float64, error) {
	return make([]float64, s.classes), s.err
}

func (s *stubClassifier) Predict([]float64) (int, float64, error) {
	if s.panics {
		panic("corrupt tree")
	}
	return s.label, 1, s.err
}

func (s *stubClassifier) NumFeatures() int { return 3 }
func (s *stubClassifier) NumClasses() int  { return s.classes }
