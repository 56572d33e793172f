package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Publishing.MinHoursBetweenPosts != 4 {
		t.Errorf("expected 4h min interval, got %d", cfg.Publishing.MinHoursBetweenPosts)
	}
	if cfg.Publishing.ApprovalThreshold != 10 {
		t.Errorf("expected approval threshold 10, got %d", cfg.Publishing.ApprovalThreshold)
	}
	if cfg.Publishing.AutoPublishAfterThreshold {
		t.Error("auto publish must be off by default")
	}
	if cfg.Prayer.MinWords != 130 || cfg.Prayer.MaxWords != 170 {
		t.Errorf("expected word window [130,170], got [%d,%d]", cfg.Prayer.MinWords, cfg.Prayer.MaxWords)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: ollama
  model: llama3.1:8b
publishing:
  max_posts_per_day: 2
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Publishing.MaxPostsPerDay != 2 {
		t.Errorf("expected 2 posts per day, got %d", cfg.Publishing.MaxPostsPerDay)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Publishing.MaxConsecutiveFailures != 3 {
		t.Errorf("expected default failure limit 3, got %d", cfg.Publishing.MaxConsecutiveFailures)
	}
	if cfg.Voice.ModelID != "eleven_multilingual_v2" {
		t.Errorf("expected default voice model, got %q", cfg.Voice.ModelID)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Footage.PrimarySource != "pexels" {
		t.Errorf("expected pexels primary source, got %q", cfg.Footage.PrimarySource)
	}
}

func TestMinInterval(t *testing.T) {
	cfg, err := parse(nil)
	if err != nil {
		t.Fatalf("failed to parse empty config: %v", err)
	}
	if cfg.MinInterval() != 4*time.Hour {
		t.Errorf("expected 4h, got %v", cfg.MinInterval())
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
