package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"agriadvisor/config"
	"agriadvisor/db"
	"agriadvisor/logging"
	"agriadvisor/ml"
	"agriadvisor/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml, then ../config.yaml)")
	dataset := flag.String("dataset", "", "labeled CSV dataset (soil_type, season, state, crop)")
	encoding := flag.String("encoding", "", "dataset charset, IANA name (default UTF-8)")
	modelPath := flag.String("model_path", "", "model bundle output path")
	modelType := flag.String("model_type", "", "random_forest or decision_tree")
	nEstimators := flag.Int("n_estimators", 0, "number of trees")
	randomState := flag.Int64("random_state", 0, "random seed")
	maxDepth := flag.Int("max_depth", 0, "max tree depth, 0 for unlimited")
	testRatio := flag.Float64("test_ratio", 0, "holdout ratio for evaluation, 0 to skip")
	flag.Parse()

	path, baseDir := *configPath, ""
	if path == "" {
		path, baseDir = config.Resolve("config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	cfg.Rebase(baseDir)

	// explicitly set flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.ML.Dataset.Path = *dataset
		case "encoding":
			cfg.ML.Dataset.Encoding = *encoding
		case "model_path":
			cfg.ML.ModelPath = *modelPath
		case "model_type":
			cfg.ML.ModelType = *modelType
		case "n_estimators":
			cfg.ML.NEstimators = *nEstimators
		case "random_state":
			cfg.ML.RandomState = *randomState
		case "max_depth":
			cfg.ML.MaxDepth = *maxDepth
		case "test_ratio":
			cfg.ML.TestRatio = *testRatio
		}
	})

	logger, err := logging.New(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.ML.Dataset.Path == "" {
		return fmt.Errorf("dataset is required")
	}

	examples, stats, err := pipeline.LoadDataset(cfg.ML.Dataset.Path, pipeline.IngestionConfig{
		Encoding: cfg.ML.Dataset.Encoding,
	})
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", cfg.ML.Dataset.Path, err)
	}
	logger.Info("dataset loaded",
		zap.String("path", cfg.ML.Dataset.Path),
		zap.Int("rows", len(examples)),
		zap.Int64("corrected", stats.Corrected))

	bundle, report, err := ml.Train(examples, ml.TrainingConfig{
		ModelType:   cfg.ML.ModelType,
		NEstimators: cfg.ML.NEstimators,
		MaxDepth:    cfg.ML.MaxDepth,
		RandomState: cfg.ML.RandomState,
		TestRatio:   cfg.ML.TestRatio,
		Dataset:     filepath.Base(cfg.ML.Dataset.Path),
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("model_type", bundle.Metadata.ModelType),
		zap.Int("rows", report.Rows),
		zap.Int("classes", report.Classes),
		zap.Float64("train_accuracy", report.TrainAccuracy),
		zap.Duration("duration", report.Duration),
	}
	if report.Holdout != nil {
		fields = append(fields,
			zap.Int("test_rows", report.Holdout.TestRows),
			zap.Float64("accuracy", report.Holdout.Accuracy),
			zap.Float64("precision", report.Holdout.Precision),
			zap.Float64("recall", report.Holdout.Recall))
	}
	logger.Info("model trained", fields...)

	if err := os.MkdirAll(filepath.Dir(cfg.ML.ModelPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := bundle.Save(cfg.ML.ModelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	logger.Info("model saved", zap.String("path", cfg.ML.ModelPath))

	recordTrainingRun(cfg, bundle, report, logger)
	return nil
}

// recordTrainingRun appends the run to the training log. Failures only warn: the
// artifact is already on disk.
func recordTrainingRun(cfg *config.Config, bundle *ml.Bundle, report *ml.TrainingReport, logger *zap.Logger) {
	if cfg.Database.Path == "" {
		return
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Warn("training log unavailable", zap.String("path", cfg.Database.Path), zap.Error(err))
		return
	}
	defer store.Close()

	entry := db.TrainingLog{
		ModelName:  filepath.Base(cfg.ML.ModelPath),
		ModelType:  bundle.Metadata.ModelType,
		Dataset:    bundle.Metadata.Dataset,
		Accuracy:   report.TrainAccuracy,
		TrainedAt:  bundle.Metadata.TrainedAt,
		DataPoints: report.Rows,
	}
	if report.Holdout != nil {
		entry.Accuracy = report.Holdout.Accuracy
		entry.Precision = report.Holdout.Precision
		entry.Recall = report.Holdout.Recall
	}
	if err := store.SaveTrainingLog(entry); err != nil {
		logger.Warn("failed to record training run", zap.Error(err))
	}
}
