package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// CountCache caches hierarchy pre-flight counts keyed by concept and bounds.
// Implementations may be backed by Redis; a nil cache disables caching.
type CountCache interface {
	GetCount(ctx context.Context, conceptID int64, maxUp, maxDown int) (*domain.HierarchyCount, bool)
	SetCount(ctx context.Context, conceptID int64, maxUp, maxDown int, count *domain.HierarchyCount)
}

// HierarchyService computes bounded ancestor/descendant traversals over the
// vocabulary graph. The level caps are the primary defense against unbounded
// work: the underlying relation can be arbitrarily large, so callers are
// expected to CountHierarchy first and confirm past the warn threshold before
// building the full graph.
type HierarchyService struct {
	store         domain.VocabularyStore
	counts        CountCache
	warnThreshold int
	logger        *logrus.Logger
}

// NewHierarchyService creates a hierarchy service. counts may be nil.
func NewHierarchyService(store domain.VocabularyStore, counts CountCache, warnThreshold int, logger *logrus.Logger) *HierarchyService {
	if warnThreshold <= 0 {
		warnThreshold = 100
	}
	return &HierarchyService{
		store:         store,
		counts:        counts,
		warnThreshold: warnThreshold,
		logger:        logger,
	}
}

// WarnThreshold returns the configured soft size guard.
func (h *HierarchyService) WarnThreshold() int {
	return h.warnThreshold
}

// ExceedsThreshold reports whether a count is past the soft size guard.
func (h *HierarchyService) ExceedsThreshold(count *domain.HierarchyCount) bool {
	return count.TotalCount > h.warnThreshold
}

// CountHierarchy performs the bounded traversal counting distinct concept IDs
// only, without materializing nodes. The result is the exact node set
// BuildGraph would produce for the same bounds, so callers can decide to
// proceed or abort on the count alone.
//
// An unknown concept yields zero counts, not an error.
func (h *HierarchyService) CountHierarchy(ctx context.Context, conceptID int64, maxUp, maxDown int) (*domain.HierarchyCount, error) {
	if err := h.checkArgs(maxUp, maxDown); err != nil {
		return nil, err
	}

	if h.counts != nil {
		if cached, ok := h.counts.GetCount(ctx, conceptID, maxUp, maxDown); ok {
			return cached, nil
		}
	}

	if known, err := h.conceptKnown(ctx, conceptID); err != nil {
		return nil, err
	} else if !known {
		return &domain.HierarchyCount{}, nil
	}

	t, err := h.traverse(ctx, conceptID, maxUp, maxDown)
	if err != nil {
		return nil, err
	}

	count := &domain.HierarchyCount{
		AncestorCount:   len(t.ancestors),
		DescendantCount: len(t.descendants),
		TotalCount:      len(t.ancestors) + len(t.descendants),
	}

	if h.counts != nil {
		h.counts.SetCount(ctx, conceptID, maxUp, maxDown, count)
	}
	return count, nil
}

// BuildGraph performs the same bounded traversal as CountHierarchy but
// materializes a node per distinct concept and an edge per direct
// parent→child relation traversed. The focal concept is flagged current;
// previousConceptID (if non-nil and present) is flagged previous so a caller
// can show where the user recentred from.
func (h *HierarchyService) BuildGraph(ctx context.Context, conceptID int64, maxUp, maxDown int, previousConceptID *int64) (*domain.HierarchyGraph, error) {
	if err := h.checkArgs(maxUp, maxDown); err != nil {
		return nil, err
	}

	if known, err := h.conceptKnown(ctx, conceptID); err != nil {
		return nil, err
	} else if !known {
		// Nothing to show is a normal state, not an error.
		return &domain.HierarchyGraph{Nodes: []domain.HierarchyNode{}, Edges: []domain.HierarchyEdge{}}, nil
	}

	t, err := h.traverse(ctx, conceptID, maxUp, maxDown)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, 1+len(t.ancestors)+len(t.descendants))
	ids = append(ids, conceptID)
	for id := range t.ancestors {
		ids = append(ids, id)
	}
	for id := range t.descendants {
		ids = append(ids, id)
	}

	concepts, err := h.store.Concepts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving hierarchy node labels: %w", err)
	}

	label := func(id int64) string {
		if c, ok := concepts[id]; ok {
			return c.Name
		}
		// Closure rows can reference concepts missing from the concept
		// table after a partial vocabulary refresh.
		return "concept " + strconv.FormatInt(id, 10)
	}

	nodes := make([]domain.HierarchyNode, 0, len(ids))
	nodes = append(nodes, domain.HierarchyNode{
		ConceptID: conceptID,
		Label:     label(conceptID),
		Level:     0,
		Tier:      domain.TierSelf,
		Current:   true,
		Previous:  previousConceptID != nil && *previousConceptID == conceptID,
	})
	for id, level := range t.ancestors {
		nodes = append(nodes, domain.HierarchyNode{
			ConceptID: id,
			Label:     label(id),
			Level:     -level,
			Tier:      domain.TierAncestor,
			Previous:  previousConceptID != nil && *previousConceptID == id,
		})
	}
	for id, level := range t.descendants {
		nodes = append(nodes, domain.HierarchyNode{
			ConceptID: id,
			Label:     label(id),
			Level:     level,
			Tier:      domain.TierDescendant,
			Previous:  previousConceptID != nil && *previousConceptID == id,
		})
	}

	stats := domain.HierarchyCount{
		AncestorCount:   len(t.ancestors),
		DescendantCount: len(t.descendants),
		TotalCount:      len(t.ancestors) + len(t.descendants),
	}

	return &domain.HierarchyGraph{
		Nodes: nodes,
		Edges: t.edges,
		Stats: stats,
	}, nil
}

func (h *HierarchyService) checkArgs(maxUp, maxDown int) error {
	if h.store == nil {
		return fmt.Errorf("hierarchy traversal: %w", domain.ErrVocabularyNotConfigured)
	}
	if maxUp < 0 || maxDown < 0 {
		return fmt.Errorf("hierarchy traversal: %w", domain.ErrHierarchyDepthOutOfRange)
	}
	return nil
}

// conceptKnown distinguishes "concept absent" (empty result) from store
// failures.
func (h *HierarchyService) conceptKnown(ctx context.Context, conceptID int64) (bool, error) {
	_, err := h.store.Concept(ctx, conceptID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("looking up hierarchy focal concept %d: %w", conceptID, err)
	}
	return true, nil
}

// traversal holds the outcome of a bounded BFS in both directions. The maps
// record each reached concept at the shallowest level it was seen; the focal
// concept is excluded.
type traversal struct {
	ancestors   map[int64]int
	descendants map[int64]int
	edges       []domain.HierarchyEdge
}

// traverse runs an independent level-bounded BFS up and down from the focal
// concept. The two directions share a visited set seeded with the focal
// concept, so a concept reachable both ways is reported once (ancestors win,
// as the up pass runs first).
func (h *HierarchyService) traverse(ctx context.Context, conceptID int64, maxUp, maxDown int) (*traversal, error) {
	t := &traversal{
		ancestors:   make(map[int64]int),
		descendants: make(map[int64]int),
		edges:       []domain.HierarchyEdge{},
	}
	visited := map[int64]struct{}{conceptID: {}}
	edgeSeen := make(map[domain.HierarchyEdge]struct{})

	addEdge := func(parent, child int64) {
		edge := domain.HierarchyEdge{ParentConceptID: parent, ChildConceptID: child}
		if _, ok := edgeSeen[edge]; ok {
			return
		}
		edgeSeen[edge] = struct{}{}
		t.edges = append(t.edges, edge)
	}

	// Upward pass
	frontier := []int64{conceptID}
	for level := 1; level <= maxUp && len(frontier) > 0; level++ {
		var next []int64
		for _, id := range frontier {
			parents, err := h.store.Parents(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("expanding ancestors of concept %d: %w", id, err)
			}
			for _, parent := range parents {
				addEdge(parent, id)
				if _, seen := visited[parent]; seen {
					continue
				}
				visited[parent] = struct{}{}
				t.ancestors[parent] = level
				next = append(next, parent)
			}
		}
		frontier = next
	}

	// Downward pass, capped independently of the upward one
	frontier = []int64{conceptID}
	for level := 1; level <= maxDown && len(frontier) > 0; level++ {
		var next []int64
		for _, id := range frontier {
			children, err := h.store.Children(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("expanding descendants of concept %d: %w", id, err)
			}
			for _, child := range children {
				addEdge(id, child)
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				t.descendants[child] = level
				next = append(next, child)
			}
		}
		frontier = next
	}

	return t, nil
}
