package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Hierarchy  HierarchyConfig  `mapstructure:"hierarchy"`
	Athena     AthenaConfig     `mapstructure:"athena"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
}

// DatabaseConfig represents the application (postgres) database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// VocabularyConfig represents the local OMOP vocabulary store configuration
type VocabularyConfig struct {
	DatabasePath string        `mapstructure:"database_path"`
	CacheSize    int           `mapstructure:"cache_size"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	ImportBatch  int           `mapstructure:"import_batch"`
	ReadOnly     bool          `mapstructure:"read_only"`
}

// EnrichmentConfig tunes the relationship enrichment engine
type EnrichmentConfig struct {
	// AllowedVocabularies overrides the built-in enrichment allow-list when
	// non-empty.
	AllowedVocabularies []string `mapstructure:"allowed_vocabularies"`
	PreserveRecommended bool     `mapstructure:"preserve_recommended"`
}

// HierarchyConfig tunes hierarchy traversal defaults
type HierarchyConfig struct {
	DefaultLevelsUp   int `mapstructure:"default_levels_up"`
	DefaultLevelsDown int `mapstructure:"default_levels_down"`
	// WarnThreshold is the soft size-guard: counts above it flag the graph
	// response so callers can confirm before rendering.
	WarnThreshold int           `mapstructure:"warn_threshold"`
	CountCacheTTL time.Duration `mapstructure:"count_cache_ttl"`
}

// AthenaConfig represents the remote OHDSI Athena concept API configuration
type AthenaConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
	Enabled    bool          `mapstructure:"enabled"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}
