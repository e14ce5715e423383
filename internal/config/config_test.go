package config

import (
	"strings"
	"testing"
)

const validKEK = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Valid(t *testing.T) {
	t.Setenv(EnvKEK, validKEK)
	t.Setenv(EnvProjectID, "test-project")
	t.Setenv(EnvDataset, "")
	t.Setenv(EnvGeminiModel, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ProjectID != "test-project" {
		t.Errorf("ProjectID = %q", cfg.ProjectID)
	}
	if cfg.Dataset != DefaultDataset {
		t.Errorf("Dataset = %q, want default %q", cfg.Dataset, DefaultDataset)
	}
	if cfg.GeminiModel != DefaultGeminiModel {
		t.Errorf("GeminiModel = %q, want default %q", cfg.GeminiModel, DefaultGeminiModel)
	}
}

func TestLoad_MissingKEK(t *testing.T) {
	t.Setenv(EnvKEK, "")
	t.Setenv(EnvProjectID, "test-project")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing KEK")
	}
}

func TestLoad_MalformedKEK(t *testing.T) {
	tests := []struct {
		name string
		kek  string
	}{
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvKEK, tt.kek)
			t.Setenv(EnvProjectID, "test-project")

			if _, err := Load(); err == nil {
				t.Error("expected error for malformed KEK")
			}
		})
	}
}

func TestLoad_MissingProject(t *testing.T) {
	t.Setenv(EnvKEK, validKEK)
	t.Setenv(EnvProjectID, "")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing project")
	}
}
