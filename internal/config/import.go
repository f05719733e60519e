// Package config provides configuration management for the data dictionary.
// This file contains the lightweight configuration for the vocabulary import
// CLI, which runs standalone against an OHDSI Athena CSV export.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// ImportConfig is a simplified configuration for the vocabulary import CLI.
// It requires no application database and uses sensible defaults.
type ImportConfig struct {
	// Data storage
	DataDir string // Base directory for the vocabulary database

	// Import settings
	SourceDir string // Directory holding the Athena CSV export
	BatchSize int    // Rows per insert transaction

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultImportConfig returns a configuration with sensible defaults.
func DefaultImportConfig() *ImportConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".data-dictionary")

	return &ImportConfig{
		DataDir:   dataDir,
		BatchSize: 5000,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadImportConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadImportConfig() *ImportConfig {
	cfg := DefaultImportConfig()

	// Data directory
	if v := os.Getenv("DATADICT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Import settings
	if v := os.Getenv("DATADICT_VOCAB_SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}
	if v := os.Getenv("DATADICT_IMPORT_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}

	// Logging
	if v := os.Getenv("DATADICT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATADICT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// VocabularyDBPath returns the path to the vocabulary SQLite database.
func (c *ImportConfig) VocabularyDBPath() string {
	return filepath.Join(c.DataDir, "vocabulary.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *ImportConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
