// Package api exposes the dictionary over HTTP: concept lookup, hierarchy
// traversal, mapping management, and enrichment runs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
	"github.com/indicate-eu/data-dictionary/internal/middleware"
	"github.com/indicate-eu/data-dictionary/internal/service"
)

// Dependencies carries the wired components the handlers need. Vocabulary
// and Resolver may be nil when no vocabulary release has been imported; the
// affected endpoints answer 503 in that state.
type Dependencies struct {
	Vocabulary domain.VocabularyStore
	Mappings   domain.MappingStore
	Concepts   domain.GeneralConceptRepository
	History    domain.HistoryRepository
	Resolver   domain.ConceptResolver
	Enricher   *service.Enricher
	Hierarchy  *service.HierarchyService
	Statistics *service.StatisticsService
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(corsMiddleware())

	server := &Server{
		configManager: configManager,
		deps:          deps,
		log:           logger,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the underlying gin engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.log.WithField("addr", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/concepts/:id", s.handleGetConcept)
		v1.GET("/concepts/:id/hierarchy/count", s.handleHierarchyCount)
		v1.GET("/concepts/:id/hierarchy", s.handleHierarchyGraph)

		v1.GET("/general-concepts", s.handleListGeneralConcepts)
		v1.POST("/general-concepts", s.handleCreateGeneralConcept)
		v1.GET("/general-concepts/:id", s.handleGetGeneralConcept)
		v1.PUT("/general-concepts/:id", s.handleUpdateGeneralConcept)
		v1.DELETE("/general-concepts/:id", s.handleDeleteGeneralConcept)
		v1.GET("/general-concepts/:id/mappings", s.handleListMappings)
		v1.PUT("/general-concepts/:id/mappings/:conceptId", s.handleUpsertMapping)
		v1.DELETE("/general-concepts/:id/mappings/:conceptId", s.handleDeleteMapping)
		v1.GET("/general-concepts/:id/history", s.handleConceptHistory)

		v1.POST("/enrichment/run", s.handleEnrichmentRun)

		v1.GET("/mappings/export", s.handleExportMappings)
		v1.POST("/mappings/import", s.handleImportMappings)

		v1.GET("/statistics", s.handleStatistics)
		v1.GET("/history", s.handleRecentHistory)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         time.Now(),
		"vocabulary_loaded": s.deps.Vocabulary != nil,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
