package ml

import "testing"

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := &DecisionTree{}
	if err := model.Fit(features, labels, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1 on a pure leaf, got %f", confidence)
	}
	if model.NumFeatures() != 2 || model.NumClasses() != 3 {
		t.Fatalf("unexpected shape: %d features, %d classes", model.NumFeatures(), model.NumClasses())
	}
}

func TestDecisionTreeCategoricalCodes(t *testing.T) {
	// label is 1 only when both codes are 1
	features := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 1}, {1, 2}}
	labels := []int{0, 0, 0, 1, 0, 0}

	model := &DecisionTree{}
	if err := model.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != labels[i] {
			t.Fatalf("row %v: expected %d, got %d", row, labels[i], label)
		}
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{0}, {1}, {2}, {3}}
	labels := []int{0, 1, 0, 1}

	model := &DecisionTree{MaxDepth: 1}
	if err := model.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Nodes) > 3 {
		t.Fatalf("depth-1 tree should have at most 3 nodes, got %d", len(model.Nodes))
	}
}

func TestDecisionTreeConflictingRows(t *testing.T) {
	features := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels := []int{0, 1, 1}

	model := &DecisionTree{}
	if err := model.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 1 {
		t.Fatalf("expected majority label 1, got %d", label)
	}
	if confidence < 0.66 || confidence > 0.67 {
		t.Fatalf("expected confidence 2/3, got %f", confidence)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := &DecisionTree{}
	if _, _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained model")
	}
	if err := model.Fit(nil, nil, 2); err == nil {
		t.Fatal("expected error for empty training set")
	}
	if err := model.Fit([][]float64{{1}, {2}}, []int{0}, 2); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if err := model.Fit([][]float64{{1}, {2}}, []int{0, 5}, 2); err == nil {
		t.Fatal("expected error for out-of-range label")
	}
}
