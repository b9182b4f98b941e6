package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	entries := []TrainingLog{
		{ModelName: "crop_model", ModelType: "random_forest", Dataset: "a.csv", Accuracy: 0.9, TrainedAt: base, DataPoints: 40},
		{ModelName: "crop_model", ModelType: "decision_tree", Dataset: "b.csv", Accuracy: 0.8, TrainedAt: base.Add(time.Hour), DataPoints: 50},
	}
	for _, e := range entries {
		if err := store.SaveTrainingLog(e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	logs, err := store.LoadTrainingLog(0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Dataset != "b.csv" || logs[0].DataPoints != 50 || logs[0].ModelType != "decision_tree" {
		t.Errorf("expected newest first, got %+v", logs[0])
	}
	if !logs[1].TrainedAt.Equal(base) {
		t.Errorf("trained_at round trip: got %v, want %v", logs[1].TrainedAt, base)
	}

	limited, err := store.LoadTrainingLog(1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 log, got %d", len(limited))
	}
}

func TestPredictions(t *testing.T) {
	store := openTestStore(t)

	if err := store.SavePrediction(PredictionRecord{SoilType: "Loamy"}); err == nil {
		t.Error("expected error for empty crop")
	}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, crop := range []string{"Rice", "Wheat", "Maize"} {
		err := store.SavePrediction(PredictionRecord{
			RequestID:       crop,
			SoilType:        "Loamy",
			Season:          "Winter",
			Place:           "Telangana",
			RecommendedCrop: crop,
			Confidence:      0.5,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	records, err := store.RecentPredictions(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RecommendedCrop != "Maize" || records[1].RecommendedCrop != "Wheat" {
		t.Errorf("unexpected order: %+v", records)
	}
	if records[0].Place != "Telangana" {
		t.Errorf("unexpected place %q", records[0].Place)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}
