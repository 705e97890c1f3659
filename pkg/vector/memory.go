package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/soundprediction/factgraph/pkg/embedder"
	"github.com/soundprediction/factgraph/pkg/types"
)

// MemoryIndex is an in-process Index with a flat cosine scan per entity.
type MemoryIndex struct {
	embedder embedder.Client

	mu      sync.RWMutex
	buckets map[string]map[string]point // tenant "/" entity -> point id -> point
}

// NewMemoryIndex creates an empty in-memory index over the given embedder.
func NewMemoryIndex(embedderClient embedder.Client) *MemoryIndex {
	return &MemoryIndex{
		embedder: embedderClient,
		buckets:  make(map[string]map[string]point),
	}
}

func bucketKey(tenantID, entityID string) string {
	return escapeScope(tenantID) + "/" + escapeScope(entityID)
}

// AddSemantic upserts a point for (tenantID, entityID, fact, verb).
func (m *MemoryIndex) AddSemantic(ctx context.Context, tenantID, entityID string, fact types.Fact, verb string) (bool, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return false, err
	}
	if verb == "" {
		return false, types.NewValidationError("verb", types.ErrEmptyVerb)
	}
	if err := fact.Validate(); err != nil {
		return false, types.NewValidationError("fact", err)
	}

	vectorData, err := m.embedder.EmbedSingle(ctx, Sentence(fact, verb))
	if err != nil {
		return false, fmt.Errorf("failed to embed fact sentence: %w", err)
	}

	factID := fact.ID()
	p := point{
		ID:              PointID(tenantID, entityID, verb, factID),
		TenantID:        tenantID,
		EntityID:        entityID,
		FactID:          factID,
		Verb:            verb,
		RelationshipKey: relationshipKey(entityID, factID, verb),
		Type:            "semantic",
		Vector:          vectorData,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := bucketKey(tenantID, entityID)
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]point)
	}
	// Deterministic id: a repeat call overwrites instead of duplicating.
	m.buckets[bucket][p.ID] = p
	return true, nil
}

// SearchSemantic returns scored hits scoped strictly to (tenantID, entityID).
func (m *MemoryIndex) SearchSemantic(ctx context.Context, tenantID, entityID, query string, topK int, minScore float64) ([]Hit, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return nil, err
	}

	queryVector, err := m.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.mu.RLock()
	bucket := m.buckets[bucketKey(tenantID, entityID)]
	candidates := make([]point, 0, len(bucket))
	for _, p := range bucket {
		candidates = append(candidates, p)
	}
	m.mu.RUnlock()

	return rankPoints(candidates, queryVector, topK, minScore), nil
}

// DeleteSemantic removes one point; absent points are not an error.
func (m *MemoryIndex) DeleteSemantic(ctx context.Context, tenantID, entityID, factID, verb string) (bool, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.buckets[bucketKey(tenantID, entityID)]
	id := PointID(tenantID, entityID, verb, factID)
	if _, ok := bucket[id]; !ok {
		return false, nil
	}
	delete(bucket, id)
	return true, nil
}

// DeleteAllForEntity removes every point for the entity.
func (m *MemoryIndex) DeleteAllForEntity(ctx context.Context, tenantID, entityID string) (int, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := bucketKey(tenantID, entityID)
	count := len(m.buckets[bucket])
	delete(m.buckets, bucket)
	return count, nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error { return nil }

var _ Index = (*MemoryIndex)(nil)
