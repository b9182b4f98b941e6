package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// APIKeyEnv overrides llm.api_key when set.
const APIKeyEnv = "OPENAI_API_KEY"

type Config struct {
	Http     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	ML       MLConfig       `yaml:"ml"`
	LLM      LLMConfig      `yaml:"llm"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	Timeout         time.Duration `yaml:"timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DatabaseConfig 数据库配置，Path 为空时不记录训练与预测日志
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DatasetConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"`
}

type MLConfig struct {
	ModelType   string        `yaml:"model_type"`
	ModelPath   string        `yaml:"model_path"`
	Watch       bool          `yaml:"watch"`
	CacheSize   int           `yaml:"cache_size"`
	Dataset     DatasetConfig `yaml:"dataset"`
	NEstimators int           `yaml:"n_estimators"`
	RandomState int64         `yaml:"random_state"`
	MaxDepth    int           `yaml:"max_depth"`
	TestRatio   float64       `yaml:"test_ratio"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// Timeout of zero leaves advisory requests unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Http: HTTPConfig{
			Port:            5001,
			Timeout:         30 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Database: DatabaseConfig{
			Path: "data/agriadvisor.db",
		},
		ML: MLConfig{
			ModelType:   "random_forest",
			ModelPath:   "models/crop_model.bundle",
			CacheSize:   1024,
			Dataset:     DatasetConfig{Path: "data/crop_dataset.csv"},
			NEstimators: 100,
			RandomState: 42,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo",
			MaxTokens:   200,
			Temperature: 0.7,
		},
	}
}

// Resolve looks for name in the working directory, then one level up so the
// binaries can be started from cmd/. The second return value is the directory
// relative paths in the file should be resolved against.
func Resolve(name string) (string, string) {
	if _, err := os.Stat(name); err == nil {
		return name, ""
	}
	parent := filepath.Join("..", name)
	if _, err := os.Stat(parent); err == nil {
		return parent, ".."
	}
	return name, ""
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error. OPENAI_API_KEY, when set, replaces llm.api_key.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		config.LLM.APIKey = key
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values that cannot be served or trained with.
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	if c.ML.ModelPath == "" {
		return errors.New("ml.model_path is required")
	}
	if c.ML.TestRatio < 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("ml.test_ratio must be in [0, 1): %v", c.ML.TestRatio)
	}
	if c.ML.CacheSize < 0 {
		return fmt.Errorf("ml.cache_size must not be negative: %d", c.ML.CacheSize)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative: %v", c.LLM.Timeout)
	}
	return nil
}

// Rebase prefixes the relative file paths with dir.
func (c *Config) Rebase(dir string) {
	if dir == "" {
		return
	}
	for _, p := range []*string{&c.Database.Path, &c.ML.ModelPath, &c.ML.Dataset.Path, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}
