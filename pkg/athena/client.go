// Package athena provides a client for the OHDSI Athena concept API. It backs
// the dictionary's remote concept resolution when a concept ID is not present
// in the locally imported vocabulary release.
package athena

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// ConceptCache caches resolved concepts across processes. A nil cache
// disables caching.
type ConceptCache interface {
	GetConcept(ctx context.Context, conceptID int64) (*domain.Concept, bool, error)
	SetConcept(ctx context.Context, concept *domain.Concept) error
}

// Client handles interactions with the Athena concept API
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      ConceptCache
	retryCount int
	log        *logrus.Logger
}

// NewClient creates a new Athena API client
func NewClient(config domain.AthenaConfig, cache ConceptCache, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://athena.ohdsi.org/api/v1/"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.RetryCount == 0 {
		config.RetryCount = 2
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Athena",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    breaker,
		cache:      cache,
		retryCount: config.RetryCount,
		log:        logger,
	}
}

// conceptResponse is the JSON shape Athena returns for a single concept.
type conceptResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DomainID        string `json:"domainId"`
	VocabularyID    string `json:"vocabularyId"`
	ConceptClassID  string `json:"className"`
	StandardConcept string `json:"standardConcept"`
	Code            string `json:"code"`
	InvalidReason   string `json:"invalidReason"`
}

// Concept fetches a single concept from Athena. Missing concepts yield
// domain.ErrNotFound.
func (c *Client) Concept(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	if c.cache != nil {
		cached, ok, err := c.cache.GetConcept(ctx, conceptID)
		if err != nil {
			c.log.WithError(err).Warn("Concept cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchConcept(ctx, conceptID)
	})
	if err != nil {
		return nil, err
	}
	concept := result.(*domain.Concept)

	if c.cache != nil {
		if err := c.cache.SetConcept(ctx, concept); err != nil {
			c.log.WithError(err).Warn("Concept cache write failed")
		}
	}
	return concept, nil
}

func (c *Client) fetchConcept(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	endpoint := c.baseURL + "/concepts/" + strconv.FormatInt(conceptID, 10)

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if err := c.rateLimit.Wait(ctx); err != nil {
			return nil, err
		}

		concept, retryable, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return concept, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		c.log.WithFields(logrus.Fields{
			"concept_id": conceptID,
			"attempt":    attempt + 1,
			"error":      err,
		}).Debug("Athena request failed, retrying")
	}

	return nil, fmt.Errorf("fetching concept %d from Athena: %w", conceptID, lastErr)
}

func (c *Client) doRequest(ctx context.Context, endpoint string) (concept *domain.Concept, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("Athena returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("Athena returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	var payload conceptResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}

	return fromResponse(&payload), false, nil
}

// fromResponse maps Athena's display values onto the vocabulary table codes.
func fromResponse(payload *conceptResponse) *domain.Concept {
	concept := &domain.Concept{
		ConceptID:      payload.ID,
		Name:           payload.Name,
		DomainID:       payload.DomainID,
		VocabularyID:   payload.VocabularyID,
		ConceptClassID: payload.ConceptClassID,
		Code:           payload.Code,
	}

	switch payload.StandardConcept {
	case "Standard", "S":
		concept.StandardTier = domain.STANDARD
	case "Classification", "C":
		concept.StandardTier = domain.CLASSIFICATION
	default:
		concept.StandardTier = domain.NON_STANDARD
	}

	if payload.InvalidReason != "" && !strings.EqualFold(payload.InvalidReason, "Valid") {
		concept.InvalidReason = payload.InvalidReason
	}

	return concept
}
