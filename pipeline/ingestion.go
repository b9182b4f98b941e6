package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"agriadvisor/ml"
)

// Dataset columns, matched case-insensitively against the CSV header.
const (
	ColumnSoilType = "soil_type"
	ColumnSeason   = "season"
	ColumnState    = "state"
	ColumnCrop     = "crop"
)

// IngestionConfig 数据集读取配置
type IngestionConfig struct {
	// Encoding is an IANA charset name. Empty means UTF-8 with an optional BOM.
	Encoding string
	// Comma defaults to ','.
	Comma rune
}

// DatasetError lists every row rejected while loading. Any rejected row makes the
// whole dataset unusable.
type DatasetError struct {
	Issues []QualityIssue
}

func (e *DatasetError) Error() string {
	const shown = 3
	parts := make([]string, 0, shown)
	for i, issue := range e.Issues {
		if i == shown {
			break
		}
		parts = append(parts, issue.Error())
	}
	msg := fmt.Sprintf("dataset has %d malformed rows: %s", len(e.Issues), strings.Join(parts, "; "))
	if len(e.Issues) > shown {
		msg += "; ..."
	}
	return msg
}

// LoadDataset reads the labeled dataset at path.
func LoadDataset(path string, cfg IngestionConfig) ([]ml.TrainingExample, CleaningStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CleaningStats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f, cfg)
}

// ReadDataset decodes r into training examples. Columns are located by header name and
// extra columns are ignored.
func ReadDataset(r io.Reader, cfg IngestionConfig) ([]ml.TrainingExample, CleaningStats, error) {
	decoded, err := decodeReader(r, cfg.Encoding)
	if err != nil {
		return nil, CleaningStats{}, err
	}

	reader := csv.NewReader(decoded)
	if cfg.Comma != 0 {
		reader.Comma = cfg.Comma
	}
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, CleaningStats{}, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, CleaningStats{}, fmt.Errorf("read dataset header: %w", err)
	}
	columns, err := locateColumns(header)
	if err != nil {
		return nil, CleaningStats{}, err
	}

	var rows []*DatasetRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, CleaningStats{}, fmt.Errorf("read dataset: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, &DatasetRow{
			Line:     line,
			SoilType: record[columns[ColumnSoilType]],
			Season:   record[columns[ColumnSeason]],
			State:    record[columns[ColumnState]],
			Crop:     record[columns[ColumnCrop]],
		})
	}

	cleaner := NewDataCleaner()
	cleaned, issues := cleaner.Clean(rows)
	stats := cleaner.GetStats()
	if len(issues) > 0 {
		return nil, stats, &DatasetError{Issues: issues}
	}
	if len(cleaned) == 0 {
		return nil, stats, errors.New("dataset has no rows")
	}

	examples := make([]ml.TrainingExample, len(cleaned))
	for i, row := range cleaned {
		examples[i] = ml.TrainingExample{
			SoilType: row.SoilType,
			Season:   row.Season,
			State:    row.State,
			Crop:     row.Crop,
		}
	}
	return examples, stats, nil
}

func locateColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, 4)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	var missing []string
	for _, required := range []string{ColumnSoilType, ColumnSeason, ColumnState, ColumnCrop} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset header is missing columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func decodeReader(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		// invalid bytes are left in place for the encoding rule to report
		return transform.NewReader(r, unicode.BOMOverride(transform.Nop)), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown dataset encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported dataset encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
