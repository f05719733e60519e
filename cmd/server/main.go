package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/api"
	"github.com/indicate-eu/data-dictionary/internal/cache"
	"github.com/indicate-eu/data-dictionary/internal/config"
	"github.com/indicate-eu/data-dictionary/internal/database"
	"github.com/indicate-eu/data-dictionary/internal/domain"
	"github.com/indicate-eu/data-dictionary/internal/mappings"
	"github.com/indicate-eu/data-dictionary/internal/repository"
	"github.com/indicate-eu/data-dictionary/internal/service"
	"github.com/indicate-eu/data-dictionary/internal/vocabulary"
	"github.com/indicate-eu/data-dictionary/pkg/athena"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(&cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting data dictionary server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Application database (general concepts, mappings, history)
	db, err := database.NewConnection(ctx, database.FromDomainConfig(&cfg.Database), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	databaseURL := postgresURL(&cfg.Database)
	migrationRunner, err := database.NewMigrationRunner(databaseURL, cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := migrationRunner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	migrationRunner.Close()

	mappingStore, err := mappings.NewPostgresStoreFromURL(databaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open mapping store")
	}
	defer mappingStore.Close()

	// Local vocabulary store, if a release has been imported
	var vocabStore domain.VocabularyStore
	if _, err := os.Stat(cfg.Vocabulary.DatabasePath); err == nil {
		store, err := vocabulary.NewStore(cfg.Vocabulary.DatabasePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open vocabulary store")
		}
		defer store.Close()
		vocabStore = vocabulary.NewCachedStore(store, cfg.Vocabulary.CacheSize, cfg.Vocabulary.CacheTTL, logger)
		logger.WithField("path", cfg.Vocabulary.DatabasePath).Info("Vocabulary store loaded")
	} else {
		logger.WithField("path", cfg.Vocabulary.DatabasePath).
			Warn("Vocabulary database not found; concept and hierarchy endpoints will be unavailable")
	}

	// Optional Redis cache
	var countCache service.CountCache
	var conceptCache athena.ConceptCache
	if cfg.Cache.Enabled {
		cacheClient, err := cache.NewClient(cfg.Cache, cfg.Hierarchy.CountCacheTTL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer cacheClient.Close()
		countCache = cacheClient
		conceptCache = cacheClient
	}

	// Optional remote concept fallback
	var remote *athena.Client
	if cfg.Athena.Enabled {
		remote = athena.NewClient(cfg.Athena, conceptCache, logger)
	}

	conceptRepo := repository.NewGeneralConceptRepository(db.Pool, logger)
	historyRepo := repository.NewHistoryRepository(db.Pool, logger)

	deps := api.Dependencies{
		Vocabulary: vocabStore,
		Mappings:   mappingStore,
		Concepts:   conceptRepo,
		History:    historyRepo,
		Resolver:   athena.NewResolver(vocabStore, remote),
		Enricher:   service.NewEnricher(logger, cfg.Enrichment.AllowedVocabularies),
		Hierarchy:  service.NewHierarchyService(vocabStore, countCache, cfg.Hierarchy.WarnThreshold, logger),
		Statistics: service.NewStatisticsService(mappingStore, conceptRepo, vocabStore),
	}

	server := api.NewServer(configManager, deps, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(cfg *domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

func postgresURL(db *domain.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.Username),
		url.QueryEscape(db.Password),
		db.Host, db.Port, db.Database, db.SSLMode,
	)
}
