package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agriadvisor/ml"
)

func TestReadDataset(t *testing.T) {
	input := "state,soil_type,season,crop,yield\n" +
		"Telangana,Loamy,Winter,Rice,3.1\n" +
		"Punjab, Clayey ,Summer,Wheat,2.7\n"

	examples, stats, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ml.TrainingExample{
		{SoilType: "Loamy", Season: "Winter", State: "Telangana", Crop: "Rice"},
		{SoilType: "Clayey", Season: "Summer", State: "Punjab", Crop: "Wheat"},
	}
	if len(examples) != len(want) {
		t.Fatalf("expected %d examples, got %d", len(want), len(examples))
	}
	for i := range want {
		if examples[i] != want[i] {
			t.Errorf("example %d: got %+v, want %+v", i, examples[i], want[i])
		}
	}
	if stats.Corrected != 1 {
		t.Errorf("expected one corrected row, got %d", stats.Corrected)
	}
}

func TestReadDatasetMalformedRowIsFatal(t *testing.T) {
	input := "soil_type,season,state,crop\n" +
		"Loamy,Winter,Telangana,Rice\n" +
		"Clayey,,Punjab,Wheat\n"

	_, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
	var dsErr *DatasetError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DatasetError, got %v", err)
	}
	if len(dsErr.Issues) != 1 || dsErr.Issues[0].Line != 3 {
		t.Fatalf("unexpected issues: %+v", dsErr.Issues)
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error should name the line, got %q", err)
	}
}

func TestReadDatasetWrongFieldCount(t *testing.T) {
	input := "soil_type,season,state,crop\nLoamy,Winter,Telangana\n"
	if _, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{}); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestReadDatasetMissingColumn(t *testing.T) {
	input := "soil_type,season,crop\nLoamy,Winter,Rice\n"
	_, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
	if err == nil || !strings.Contains(err.Error(), "state") {
		t.Fatalf("expected missing state column error, got %v", err)
	}
}

func TestReadDatasetEmpty(t *testing.T) {
	if _, _, err := ReadDataset(strings.NewReader(""), IngestionConfig{}); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, _, err := ReadDataset(strings.NewReader("soil_type,season,state,crop\n"), IngestionConfig{}); err == nil {
		t.Fatal("expected error for header-only input")
	}
}

func TestReadDatasetEncodings(t *testing.T) {
	t.Run("utf-8 with BOM", func(t *testing.T) {
		input := "\xef\xbb\xbfsoil_type,season,state,crop\nLoamy,Winter,Telangana,Rice\n"
		examples, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if examples[0].SoilType != "Loamy" {
			t.Errorf("unexpected example %+v", examples[0])
		}
	})

	t.Run("latin-1", func(t *testing.T) {
		input := "soil_type,season,state,crop\nLoamy,Winter,Goa,Caf\xe9\n"
		examples, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{Encoding: "ISO-8859-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if examples[0].Crop != "Café" {
			t.Errorf("expected decoded crop, got %q", examples[0].Crop)
		}
	})

	t.Run("latin-1 read as utf-8", func(t *testing.T) {
		input := "soil_type,season,state,crop\nLoamy,Winter,Goa,Caf\xe9\n"
		_, _, err := ReadDataset(strings.NewReader(input), IngestionConfig{})
		var dsErr *DatasetError
		if !errors.As(err, &dsErr) || dsErr.Issues[0].Type != "encoding_validation" {
			t.Fatalf("expected encoding issue, got %v", err)
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		if _, _, err := ReadDataset(strings.NewReader("x"), IngestionConfig{Encoding: "no-such-charset"}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	content := "soil_type;season;state;crop\nLoamy;Winter;Telangana;Rice\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	examples, _, err := LoadDataset(path, IngestionConfig{Comma: ';'})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 1 || examples[0].State != "Telangana" {
		t.Fatalf("unexpected examples %+v", examples)
	}

	if _, _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.csv"), IngestionConfig{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
