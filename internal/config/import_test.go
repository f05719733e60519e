package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultImportConfig(t *testing.T) {
	cfg := DefaultImportConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 5000, cfg.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadImportConfig_Defaults(t *testing.T) {
	// Clear relevant env vars
	clearEnvVars(t)

	cfg := LoadImportConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 5000, cfg.BatchSize)
	assert.Empty(t, cfg.SourceDir)
}

func TestLoadImportConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	// Set environment variables
	os.Setenv("DATADICT_DATA_DIR", "/tmp/test-datadict")
	os.Setenv("DATADICT_VOCAB_SOURCE_DIR", "/tmp/athena-export")
	os.Setenv("DATADICT_IMPORT_BATCH", "500")
	os.Setenv("DATADICT_LOG_LEVEL", "debug")

	defer clearEnvVars(t)

	cfg := LoadImportConfig()

	assert.Equal(t, "/tmp/test-datadict", cfg.DataDir)
	assert.Equal(t, "/tmp/athena-export", cfg.SourceDir)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestImportConfig_VocabularyDBPath(t *testing.T) {
	cfg := &ImportConfig{DataDir: "/home/user/.data-dictionary"}

	path := cfg.VocabularyDBPath()

	assert.Equal(t, "/home/user/.data-dictionary/vocabulary.db", path)
}

func TestImportConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &ImportConfig{DataDir: filepath.Join(tmpDir, "datadict")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	// Verify directory exists
	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"DATADICT_DATA_DIR",
		"DATADICT_VOCAB_SOURCE_DIR",
		"DATADICT_IMPORT_BATCH",
		"DATADICT_LOG_LEVEL",
		"DATADICT_LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
