package athena

import (
	"context"
	"errors"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// Resolver implements domain.ConceptResolver: it answers from the local
// vocabulary store first and falls back to the remote Athena API. Either side
// may be nil; a resolver with neither always misses.
type Resolver struct {
	local  domain.VocabularyStore
	remote *Client
}

// NewResolver creates a resolver over a local store and an optional remote
// client.
func NewResolver(local domain.VocabularyStore, remote *Client) *Resolver {
	return &Resolver{
		local:  local,
		remote: remote,
	}
}

// Resolve looks up a concept locally, then remotely.
func (r *Resolver) Resolve(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	if r.local != nil {
		concept, err := r.local.Concept(ctx, conceptID)
		if err == nil {
			return concept, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if r.remote == nil {
		return nil, domain.ErrNotFound
	}
	return r.remote.Concept(ctx, conceptID)
}
