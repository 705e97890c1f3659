package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soundprediction/factgraph/pkg/types"
)

// MemoryStore is an embedded Store with the same semantics as Neo4jStore.
// A single mutex serializes every operation, so the count-before-delete steps
// of the cascades are trivially atomic.
type MemoryStore struct {
	mu sync.Mutex

	entities    map[string]types.Entity
	identifiers map[string]types.Identifier // identifier key -> node
	facts       map[string]types.Fact       // fact id -> node
	sources     map[string]types.Source     // source id -> node

	hasIdentifier map[string]map[string]types.HasIdentifier // entity id -> identifier key -> edge
	hasFact       map[string]map[string]types.HasFact       // entity id -> fact id + "|" + verb -> edge
	derivedFrom   map[string]map[string]struct{}            // fact id -> source id set
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:      make(map[string]types.Entity),
		identifiers:   make(map[string]types.Identifier),
		facts:         make(map[string]types.Fact),
		sources:       make(map[string]types.Source),
		hasIdentifier: make(map[string]map[string]types.HasIdentifier),
		hasFact:       make(map[string]map[string]types.HasFact),
		derivedFrom:   make(map[string]map[string]struct{}),
	}
}

// CreateEntity implements the identifier-keyed merge from Store.
func (m *MemoryStore) CreateEntity(ctx context.Context, entity types.Entity, identifier types.Identifier, rel types.HasIdentifier) (*types.Entity, *types.Identifier, *types.HasIdentifier, error) {
	if err := identifier.Validate(); err != nil {
		return nil, nil, nil, types.NewValidationError("identifier", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := identifier.Key()
	if owner, edge, ok := m.ownerOf(key); ok {
		existing := m.entities[owner]
		return &existing, &identifier, &edge, nil
	}

	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = entity.CreatedAt
	}
	rel.EntityID = entity.ID

	m.entities[entity.ID] = entity
	m.identifiers[key] = identifier
	if m.hasIdentifier[entity.ID] == nil {
		m.hasIdentifier[entity.ID] = make(map[string]types.HasIdentifier)
	}
	m.hasIdentifier[entity.ID][key] = rel

	return &entity, &identifier, &rel, nil
}

// ownerOf returns an entity owning the identifier key, preferring primary
// ownership edges, then the oldest edge. Caller holds the lock.
func (m *MemoryStore) ownerOf(identKey string) (string, types.HasIdentifier, bool) {
	var (
		found    bool
		bestID   string
		bestEdge types.HasIdentifier
	)
	for entityID, edges := range m.hasIdentifier {
		edge, ok := edges[identKey]
		if !ok {
			continue
		}
		if !found || (edge.IsPrimary && !bestEdge.IsPrimary) ||
			(edge.IsPrimary == bestEdge.IsPrimary && edge.CreatedAt.Before(bestEdge.CreatedAt)) {
			found = true
			bestID = entityID
			bestEdge = edge
		}
	}
	return bestID, bestEdge, found
}

// FindEntityByIdentifier returns the entity owning (value, typ) with all facts.
func (m *MemoryStore) FindEntityByIdentifier(ctx context.Context, value string, typ types.IdentifierType) (*types.EntityView, error) {
	identifier := types.Identifier{Value: value, Type: typ}
	if err := identifier.Validate(); err != nil {
		return nil, types.NewValidationError("identifier", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entityID, _, ok := m.ownerOf(identifier.Key())
	if !ok {
		return nil, types.ErrEntityNotFound
	}
	return m.buildView(entityID)
}

// FindEntityByID returns the entity with the given id, selecting its primary
// identifier when several exist.
func (m *MemoryStore) FindEntityByID(ctx context.Context, id string) (*types.EntityView, error) {
	if id == "" {
		return nil, types.NewValidationError("entity id", types.ErrEmptyEntityID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildView(id)
}

// buildView assembles the full read model for one entity. Caller holds the lock.
func (m *MemoryStore) buildView(entityID string) (*types.EntityView, error) {
	entity, ok := m.entities[entityID]
	if !ok {
		return nil, types.ErrEntityNotFound
	}

	view := &types.EntityView{Entity: entity}

	// Primary identifier tie-break, then oldest edge.
	var haveIdent bool
	for identKey, edge := range m.hasIdentifier[entityID] {
		if !haveIdent || (edge.IsPrimary && !view.Relationship.IsPrimary) ||
			(edge.IsPrimary == view.Relationship.IsPrimary && edge.CreatedAt.Before(view.Relationship.CreatedAt)) {
			haveIdent = true
			view.Identifier = m.identifiers[identKey]
			view.Relationship = edge
		}
	}

	for _, edge := range m.hasFact[entityID] {
		fws := types.FactWithSource{
			Fact:         m.facts[edge.FactID],
			Relationship: edge,
		}
		for sourceID := range m.derivedFrom[edge.FactID] {
			source := m.sources[sourceID]
			fws.Source = &source
			break
		}
		view.Facts = append(view.Facts, fws)
	}
	return view, nil
}

// AddFactToEntity merges fact and source by natural key and attaches them under
// verb, unless the (entity, fact_id, verb) triple already exists.
func (m *MemoryStore) AddFactToEntity(ctx context.Context, entityID string, fact types.Fact, source types.Source, verb string, confidence float64) (*types.FactAttachment, error) {
	if err := fact.Validate(); err != nil {
		return nil, types.NewValidationError("fact", err)
	}
	if err := source.Validate(); err != nil {
		return nil, types.NewValidationError("source", err)
	}
	if verb == "" {
		return nil, types.NewValidationError("verb", types.ErrEmptyVerb)
	}
	if confidence < 0 || confidence > 1 {
		return nil, types.NewValidationError("confidence", types.ErrConfidenceOutOfRange)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[entityID]; !ok {
		return nil, types.ErrEntityNotFound
	}

	factID := fact.ID()
	edgeKey := factID + "|" + verb

	if existing, ok := m.hasFact[entityID][edgeKey]; ok {
		attachment := &types.FactAttachment{
			Fact:    m.facts[factID],
			HasFact: existing,
		}
		for sourceID := range m.derivedFrom[factID] {
			attachment.Source = m.sources[sourceID]
			attachment.DerivedFrom = types.DerivedFrom{FactID: factID, SourceID: sourceID}
			break
		}
		return attachment, nil
	}

	// Merge by natural key: an existing node wins over the incoming payload.
	persisted, ok := m.facts[factID]
	if !ok {
		persisted = types.NewFact(fact.Name, fact.Type)
		m.facts[factID] = persisted
	}
	if persisted.ID() != factID {
		return nil, fmt.Errorf("%w: persisted fact id %q, computed %q",
			types.ErrIdempotencyViolation, persisted.ID(), factID)
	}
	if source.Timestamp.IsZero() {
		source.Timestamp = time.Now().UTC()
	}
	if _, ok := m.sources[source.ID]; !ok {
		m.sources[source.ID] = source
	}

	edge := types.HasFact{
		EntityID:   entityID,
		FactID:     factID,
		Verb:       verb,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if m.hasFact[entityID] == nil {
		m.hasFact[entityID] = make(map[string]types.HasFact)
	}
	m.hasFact[entityID][edgeKey] = edge

	if m.derivedFrom[factID] == nil {
		m.derivedFrom[factID] = make(map[string]struct{})
	}
	m.derivedFrom[factID][source.ID] = struct{}{}

	return &types.FactAttachment{
		Fact:        persisted,
		Source:      m.sources[source.ID],
		HasFact:     edge,
		DerivedFrom: types.DerivedFrom{FactID: factID, SourceID: source.ID},
	}, nil
}

// factRefCount counts entities holding at least one HAS_FACT edge to factID,
// excluding excludeEntity. Caller holds the lock.
func (m *MemoryStore) factRefCount(factID, excludeEntity string) int {
	count := 0
	for entityID, edges := range m.hasFact {
		if entityID == excludeEntity {
			continue
		}
		for _, edge := range edges {
			if edge.FactID == factID {
				count++
				break
			}
		}
	}
	return count
}

// deleteFactWithSourceGC removes the fact node and any source it leaves
// unreferenced. Caller holds the lock.
func (m *MemoryStore) deleteFactWithSourceGC(factID string) {
	sources := m.derivedFrom[factID]
	delete(m.derivedFrom, factID)
	delete(m.facts, factID)

	for sourceID := range sources {
		referenced := false
		for _, set := range m.derivedFrom {
			if _, ok := set[sourceID]; ok {
				referenced = true
				break
			}
		}
		if !referenced {
			delete(m.sources, sourceID)
		}
	}
}

// RemoveFactFromEntity deletes the HAS_FACT edge(s) and garbage-collects the
// fact and its source when they become unreferenced.
func (m *MemoryStore) RemoveFactFromEntity(ctx context.Context, entityID, factID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	edges := m.hasFact[entityID]
	removed := false
	for edgeKey, edge := range edges {
		if edge.FactID == factID {
			delete(edges, edgeKey)
			removed = true
		}
	}
	if !removed {
		return false, nil
	}

	if m.factRefCount(factID, "") == 0 {
		m.deleteFactWithSourceGC(factID)
	}
	return true, nil
}

// DeleteEntityByID implements the cascading delete: counts are taken before the
// entity's own edges are removed.
func (m *MemoryStore) DeleteEntityByID(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[id]; !ok {
		return false, nil
	}

	doomedFacts := make([]string, 0)
	seen := make(map[string]struct{})
	for _, edge := range m.hasFact[id] {
		if _, dup := seen[edge.FactID]; dup {
			continue
		}
		seen[edge.FactID] = struct{}{}
		if m.factRefCount(edge.FactID, id) == 0 {
			doomedFacts = append(doomedFacts, edge.FactID)
		}
	}

	doomedIdents := make([]string, 0)
	for identKey := range m.hasIdentifier[id] {
		shared := false
		for entityID, edges := range m.hasIdentifier {
			if entityID == id {
				continue
			}
			if _, ok := edges[identKey]; ok {
				shared = true
				break
			}
		}
		if !shared {
			doomedIdents = append(doomedIdents, identKey)
		}
	}

	delete(m.hasFact, id)
	delete(m.hasIdentifier, id)
	delete(m.entities, id)

	for _, factID := range doomedFacts {
		m.deleteFactWithSourceGC(factID)
	}
	for _, identKey := range doomedIdents {
		delete(m.identifiers, identKey)
	}
	return true, nil
}

// FindFactByID returns a fact and its source, if any.
func (m *MemoryStore) FindFactByID(ctx context.Context, factID string) (*types.FactWithSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fact, ok := m.facts[factID]
	if !ok {
		return nil, types.ErrFactNotFound
	}

	out := &types.FactWithSource{Fact: fact}
	for sourceID := range m.derivedFrom[factID] {
		source := m.sources[sourceID]
		out.Source = &source
		break
	}
	return out, nil
}

// CreateIndices is a no-op for the in-memory store.
func (m *MemoryStore) CreateIndices(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close(ctx context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
