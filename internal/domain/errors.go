package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the dictionary layers.
var (
	ErrNotFound                 = errors.New("not found")
	ErrVocabularyNotConfigured  = errors.New("vocabulary store not loaded: configure the vocabulary database path and import a vocabulary release")
	ErrDuplicateMapping         = errors.New("mapping already exists for this general concept and OMOP concept")
	ErrHierarchyDepthOutOfRange = errors.New("hierarchy depth must be non-negative")
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput    = "INVALID_INPUT"
	ErrDatabaseError   = "DATABASE_ERROR"
	ErrVocabularyError = "VOCABULARY_ERROR"
	ErrEnrichmentError = "ENRICHMENT_ERROR"
	ErrNotFoundCode    = "NOT_FOUND"
	ErrInternalServer  = "INTERNAL_SERVER_ERROR"
	ErrValidation      = "VALIDATION_ERROR"
	ErrNotConfigured   = "NOT_CONFIGURED"
	ErrExternalAPI     = "EXTERNAL_API_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
