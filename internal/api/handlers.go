package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// respondError maps domain errors onto HTTP status codes and the shared
// error envelope.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString("correlation_id")

	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, "resource not found", err.Error(), requestID))
	case errors.Is(err, domain.ErrVocabularyNotConfigured):
		c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(domain.ErrNotConfigured, "vocabulary store not configured", err.Error(), requestID))
	case errors.Is(err, domain.ErrHierarchyDepthOutOfRange):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid hierarchy bounds", err.Error(), requestID))
	case errors.Is(err, domain.ErrDuplicateMapping):
		c.JSON(http.StatusConflict, domain.NewAPIError(domain.ErrInvalidInput, "mapping already exists", err.Error(), requestID))
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrValidation, validationErr.Error(), "", requestID))
	default:
		s.log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrInternalServer, "internal server error", "", requestID))
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid "+name+" parameter", "", c.GetString("correlation_id")))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid "+name+" parameter", "", c.GetString("correlation_id")))
		return 0, false
	}
	return v, true
}

// handleGetConcept resolves an OMOP concept, locally or via the remote
// fallback.
func (s *Server) handleGetConcept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if s.deps.Resolver == nil {
		s.respondError(c, domain.ErrVocabularyNotConfigured)
		return
	}

	concept, err := s.deps.Resolver.Resolve(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, concept)
}

func (s *Server) hierarchyBounds(c *gin.Context) (maxUp, maxDown int, ok bool) {
	cfg := s.configManager.GetHierarchyConfig()
	if maxUp, ok = queryInt(c, "levels_up", cfg.DefaultLevelsUp); !ok {
		return
	}
	maxDown, ok = queryInt(c, "levels_down", cfg.DefaultLevelsDown)
	return
}

// handleHierarchyCount is the pre-flight count for the hierarchy view.
func (s *Server) handleHierarchyCount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	maxUp, maxDown, ok := s.hierarchyBounds(c)
	if !ok {
		return
	}

	count, err := s.deps.Hierarchy.CountHierarchy(c.Request.Context(), id, maxUp, maxDown)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"concept_id":        id,
		"levels_up":         maxUp,
		"levels_down":       maxDown,
		"counts":            count,
		"exceeds_threshold": s.deps.Hierarchy.ExceedsThreshold(count),
		"warn_threshold":    s.deps.Hierarchy.WarnThreshold(),
	})
}

// handleHierarchyGraph materializes the hierarchy view.
func (s *Server) handleHierarchyGraph(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	maxUp, maxDown, ok := s.hierarchyBounds(c)
	if !ok {
		return
	}

	var previous *int64
	if raw := c.Query("previous_concept_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid previous_concept_id parameter", "", c.GetString("correlation_id")))
			return
		}
		previous = &v
	}

	graph, err := s.deps.Hierarchy.BuildGraph(c.Request.Context(), id, maxUp, maxDown, previous)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

func (s *Server) handleListGeneralConcepts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	concepts, err := s.deps.Concepts.List(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if concepts == nil {
		concepts = []*domain.GeneralConcept{}
	}
	c.JSON(http.StatusOK, gin.H{"concepts": concepts})
}

func (s *Server) handleCreateGeneralConcept(c *gin.Context) {
	var concept domain.GeneralConcept
	if err := c.ShouldBindJSON(&concept); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
		return
	}

	if err := s.deps.Concepts.Create(c.Request.Context(), &concept); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, concept.ID, domain.ActionConceptCreated, concept.Name)
	c.JSON(http.StatusCreated, concept)
}

func (s *Server) handleGetGeneralConcept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	concept, err := s.deps.Concepts.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, concept)
}

func (s *Server) handleUpdateGeneralConcept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var concept domain.GeneralConcept
	if err := c.ShouldBindJSON(&concept); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
		return
	}
	concept.ID = id

	if err := s.deps.Concepts.Update(c.Request.Context(), &concept); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, id, domain.ActionConceptUpdated, concept.Name)
	c.JSON(http.StatusOK, concept)
}

func (s *Server) handleDeleteGeneralConcept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.deps.Concepts.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, id, domain.ActionConceptDeleted, "")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMappings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	mappings, err := s.deps.Mappings.LoadByGeneralConcept(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if mappings == nil {
		mappings = []domain.ConceptMapping{}
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

type upsertMappingRequest struct {
	UnitConceptID *int64 `json:"unit_concept_id"`
	Recommended   bool   `json:"recommended"`
}

// handleUpsertMapping creates or updates a manual mapping. The mapping
// identity comes from the path; only curator-editable fields are in the body.
func (s *Server) handleUpsertMapping(c *gin.Context) {
	generalID, ok := pathID(c, "id")
	if !ok {
		return
	}
	conceptID, ok := pathID(c, "conceptId")
	if !ok {
		return
	}

	var req upsertMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
		return
	}

	mapping := domain.ConceptMapping{
		GeneralConceptID: generalID,
		OMOPConceptID:    conceptID,
		UnitConceptID:    req.UnitConceptID,
		Recommended:      req.Recommended,
		Provenance:       domain.PROVENANCE_MANUAL,
	}

	if err := s.deps.Mappings.Upsert(c.Request.Context(), &mapping); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, generalID, domain.ActionMappingCreated, strconv.FormatInt(conceptID, 10))
	c.JSON(http.StatusOK, mapping)
}

func (s *Server) handleDeleteMapping(c *gin.Context) {
	generalID, ok := pathID(c, "id")
	if !ok {
		return
	}
	conceptID, ok := pathID(c, "conceptId")
	if !ok {
		return
	}

	key := domain.MappingKey{GeneralConceptID: generalID, OMOPConceptID: conceptID}
	if err := s.deps.Mappings.Delete(c.Request.Context(), key); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, generalID, domain.ActionMappingDeleted, strconv.FormatInt(conceptID, 10))
	c.Status(http.StatusNoContent)
}

type enrichmentRunRequest struct {
	PreserveRecommended *bool `json:"preserve_recommended"`
}

// handleEnrichmentRun executes a full enrichment pass: load the mapping set,
// expand it, and persist the result atomically.
func (s *Server) handleEnrichmentRun(c *gin.Context) {
	var req enrichmentRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
			return
		}
	}

	preserve := s.configManager.GetEnrichmentConfig().PreserveRecommended
	if req.PreserveRecommended != nil {
		preserve = *req.PreserveRecommended
	}

	ctx := c.Request.Context()
	mappings, err := s.deps.Mappings.Load(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.deps.Enricher.Enrich(ctx, s.deps.Vocabulary, mappings, preserve)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.deps.Mappings.Replace(ctx, result.Mappings); err != nil {
		s.respondError(c, err)
		return
	}

	s.recordHistory(c, 0, domain.ActionEnrichmentRun,
		"derived_added="+strconv.Itoa(result.DerivedAdded)+" derived_dropped="+strconv.Itoa(result.DerivedDropped))

	c.JSON(http.StatusOK, gin.H{
		"manual_expanded": result.ManualExpanded,
		"derived_added":   result.DerivedAdded,
		"derived_dropped": result.DerivedDropped,
		"skipped_orphans": result.SkippedOrphans,
		"elapsed":         result.Elapsed.String(),
	})
}

func (s *Server) handleExportMappings(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="concept_mappings.csv"`)

	if err := s.deps.Mappings.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		s.log.WithError(err).Error("Mapping export failed")
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) handleImportMappings(c *gin.Context) {
	imported, skipped, err := s.deps.Mappings.ImportCSV(c.Request.Context(), c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "invalid CSV payload", err.Error(), c.GetString("correlation_id")))
		return
	}

	s.recordHistory(c, 0, domain.ActionMappingsImport, "imported="+strconv.Itoa(imported))
	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}

func (s *Server) handleStatistics(c *gin.Context) {
	stats, err := s.deps.Statistics.Collect(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleConceptHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	entries, err := s.deps.History.ListByGeneralConcept(c.Request.Context(), id, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (s *Server) handleRecentHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	entries, err := s.deps.History.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// recordHistory appends an audit entry. Failures are logged, not surfaced:
// the primary operation already succeeded.
func (s *Server) recordHistory(c *gin.Context, generalConceptID int64, action, detail string) {
	if s.deps.History == nil {
		return
	}
	entry := &domain.HistoryEntry{
		GeneralConceptID: generalConceptID,
		Action:           action,
		Detail:           detail,
		Actor:            c.GetHeader("X-User"),
	}
	if err := s.deps.History.Append(c.Request.Context(), entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"error":  err,
		}).Warn("Failed to record history entry")
	}
}
