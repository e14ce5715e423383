// Package config loads process configuration from the environment. Secrets
// are validated here so malformed key material fails fast at startup, not on
// the first per-document call.
package config

import (
	"fmt"
	"os"

	"github.com/dvloznov/statement-ingest/internal/keycrypt"
)

// Environment variable names.
const (
	EnvKEK         = "STATEMENT_KEK"
	EnvProjectID   = "GCP_PROJECT"
	EnvDataset     = "BQ_DATASET"
	EnvBucket      = "GCS_BUCKET"
	EnvGeminiModel = "GEMINI_MODEL"
	EnvLogLevel    = "LOG_LEVEL"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultDataset     = "ingest"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Config is the resolved process configuration. The KEK is threaded from
// here into the components that need it; nothing reads it ambiently.
type Config struct {
	KEK         keycrypt.Key
	ProjectID   string
	Dataset     string
	Bucket      string
	GeminiModel string
	LogLevel    string
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	kekHex := os.Getenv(EnvKEK)
	if kekHex == "" {
		return nil, fmt.Errorf("config: %s is required (hex-encoded 32-byte root key)", EnvKEK)
	}
	kek, err := keycrypt.KeyFromHex(kekHex)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvKEK, err)
	}

	projectID := os.Getenv(EnvProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("config: %s is required", EnvProjectID)
	}

	cfg := &Config{
		KEK:         kek,
		ProjectID:   projectID,
		Dataset:     getenvDefault(EnvDataset, DefaultDataset),
		Bucket:      os.Getenv(EnvBucket),
		GeminiModel: getenvDefault(EnvGeminiModel, DefaultGeminiModel),
		LogLevel:    os.Getenv(EnvLogLevel),
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
