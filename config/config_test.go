package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 5001 {
		t.Errorf("expected default port 5001, got %d", cfg.Http.Port)
	}
	if cfg.ML.NEstimators != 100 || cfg.ML.RandomState != 42 {
		t.Errorf("unexpected forest defaults: %+v", cfg.ML)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" || cfg.LLM.MaxTokens != 200 || cfg.LLM.Temperature != 0.7 {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 0 {
		t.Errorf("advisory timeout should default to unbounded, got %v", cfg.LLM.Timeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := writeConfig(t, `
http:
  port: 8080
  allowed_origins: ["http://localhost:3000"]
ml:
  model_path: /tmp/model.bundle
  watch: true
  n_estimators: 10
llm:
  api_key: from-file
  timeout: 15s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Http.Port)
	}
	if len(cfg.Http.AllowedOrigins) != 1 || cfg.Http.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected origins %v", cfg.Http.AllowedOrigins)
	}
	if !cfg.ML.Watch || cfg.ML.NEstimators != 10 || cfg.ML.ModelPath != "/tmp/model.bundle" {
		t.Errorf("unexpected ml config %+v", cfg.ML)
	}
	if cfg.ML.RandomState != 42 {
		t.Errorf("unset fields should keep defaults, got random_state %d", cfg.ML.RandomState)
	}
	if cfg.LLM.Timeout != 15*time.Second || cfg.LLM.APIKey != "from-file" {
		t.Errorf("unexpected llm config %+v", cfg.LLM)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	path := writeConfig(t, "llm:\n  api_key: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("expected env key, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 5001 {
		t.Errorf("expected defaults, got port %d", cfg.Http.Port)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "http: [port"},
		{"bad port", "http:\n  port: 70000\n"},
		{"bad test ratio", "ml:\n  test_ratio: 1.5\n"},
		{"negative timeout", "llm:\n  timeout: -1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRebase(t *testing.T) {
	cfg := Default()
	cfg.ML.ModelPath = "/abs/model.bundle"
	cfg.Rebase("..")
	if cfg.Database.Path != filepath.Join("..", "data/agriadvisor.db") {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.ML.ModelPath != "/abs/model.bundle" {
		t.Errorf("absolute paths must not change, got %q", cfg.ML.ModelPath)
	}
	if cfg.Log.File != "" {
		t.Errorf("empty paths must stay empty, got %q", cfg.Log.File)
	}
}
