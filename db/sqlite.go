package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(50),
        model_type VARCHAR(20),
        dataset TEXT,
        accuracy REAL,
        precision REAL,
        recall REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY,
        request_id VARCHAR(36),
        soil_type TEXT,
        season TEXT,
        place TEXT,
        recommended_crop TEXT,
        confidence REAL,
        created_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions (created_at);
    `

// Store wraps the sqlite database holding training runs and served predictions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	ModelType  string    `json:"model_type"`
	Dataset    string    `json:"dataset"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

// SaveTrainingLog records one training run.
func (s *Store) SaveTrainingLog(entry TrainingLog) error {
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
        INSERT INTO training_log (
            model_name, model_type, dataset, accuracy, precision, recall, trained_at, data_points
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.ModelName,
		entry.ModelType,
		entry.Dataset,
		entry.Accuracy,
		entry.Precision,
		entry.Recall,
		entry.TrainedAt.UTC(),
		entry.DataPoints,
	)
	return err
}

// LoadTrainingLog returns training runs, newest first.
func (s *Store) LoadTrainingLog(limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
        SELECT model_name, model_type, dataset, accuracy, precision, recall, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.ModelType, &log.Dataset, &log.Accuracy, &log.Precision,
			&log.Recall, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// PredictionRecord is one answered /predict request.
type PredictionRecord struct {
	RequestID       string    `json:"request_id"`
	SoilType        string    `json:"soil_type"`
	Season          string    `json:"season"`
	Place           string    `json:"place"`
	RecommendedCrop string    `json:"recommended_crop"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Store) SavePrediction(record PredictionRecord) error {
	if record.RecommendedCrop == "" {
		return errors.New("recommended crop required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
        INSERT INTO predictions (
            request_id, soil_type, season, place, recommended_crop, confidence, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `,
		record.RequestID,
		record.SoilType,
		record.Season,
		record.Place,
		record.RecommendedCrop,
		record.Confidence,
		record.CreatedAt.UTC(),
	)
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
        SELECT request_id, soil_type, season, place, recommended_crop, confidence, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var r PredictionRecord
		if err := rows.Scan(&r.RequestID, &r.SoilType, &r.Season, &r.Place, &r.RecommendedCrop,
			&r.Confidence, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
