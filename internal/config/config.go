package config

import (
	"fmt"
	"strings"

	"github.com/indicate-eu/data-dictionary/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/data-dictionary/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("DATADICT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.tls_enabled", false)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "data_dictionary")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Vocabulary store defaults
	viper.SetDefault("vocabulary.database_path", "./data/vocabulary.db")
	viper.SetDefault("vocabulary.cache_size", 10000)
	viper.SetDefault("vocabulary.cache_ttl", "1h")
	viper.SetDefault("vocabulary.import_batch", 5000)
	viper.SetDefault("vocabulary.read_only", true)

	// Enrichment defaults
	viper.SetDefault("enrichment.allowed_vocabularies", domain.AllowedVocabularies)
	viper.SetDefault("enrichment.preserve_recommended", true)

	// Hierarchy defaults
	viper.SetDefault("hierarchy.default_levels_up", 2)
	viper.SetDefault("hierarchy.default_levels_down", 2)
	viper.SetDefault("hierarchy.warn_threshold", 100)
	viper.SetDefault("hierarchy.count_cache_ttl", "10m")

	// Athena defaults
	viper.SetDefault("athena.base_url", "https://athena.ohdsi.org/api/v1/")
	viper.SetDefault("athena.timeout", "30s")
	viper.SetDefault("athena.rate_limit", 5)
	viper.SetDefault("athena.retry_count", 3)
	viper.SetDefault("athena.enabled", false)

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.enabled", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetVocabularyConfig returns vocabulary store configuration
func (m *Manager) GetVocabularyConfig() *domain.VocabularyConfig {
	return &m.config.Vocabulary
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetEnrichmentConfig returns enrichment engine configuration
func (m *Manager) GetEnrichmentConfig() *domain.EnrichmentConfig {
	return &m.config.Enrichment
}

// GetHierarchyConfig returns hierarchy traversal configuration
func (m *Manager) GetHierarchyConfig() *domain.HierarchyConfig {
	return &m.config.Hierarchy
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate database configuration
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	// Validate vocabulary store configuration
	if config.Vocabulary.DatabasePath == "" {
		return fmt.Errorf("vocabulary database path is required")
	}

	// Validate hierarchy configuration
	if config.Hierarchy.DefaultLevelsUp < 0 || config.Hierarchy.DefaultLevelsDown < 0 {
		return fmt.Errorf("hierarchy default levels must be non-negative")
	}
	if config.Hierarchy.WarnThreshold <= 0 {
		return fmt.Errorf("hierarchy warn threshold must be positive")
	}

	// Validate cache configuration when enabled
	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when caching is enabled")
	}

	// Validate Athena configuration when enabled
	if config.Athena.Enabled && config.Athena.BaseURL == "" {
		return fmt.Errorf("Athena base URL is required when the Athena client is enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
