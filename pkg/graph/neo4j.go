package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/soundprediction/factgraph/pkg/types"
)

// Neo4jStore implements Store on Neo4j.
//
// Every multi-statement operation runs its statements inside one managed write
// transaction, so a cascading delete commits atomically: a concurrent write
// cannot observe edges removed but the node intact, and the reference counts
// taken at the start of the transaction hold for its duration.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a store backed by the Neo4j instance at uri.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: client, database: database}, nil
}

func (n *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

// entityViewTail is shared by the two find operations; the caller supplies the
// MATCH clause selecting (e, r, i).
const entityViewTail = `
	WITH e, r, i
	ORDER BY r.is_primary DESC, r.created_at ASC
	LIMIT 1
	OPTIONAL MATCH (e)-[hf:HAS_FACT]->(f:Fact)
	OPTIONAL MATCH (f)-[:DERIVED_FROM]->(s:Source)
	RETURN e, r, i, collect({fact: f, rel: hf, source: s}) AS facts
`

// CreateEntity implements the identifier-keyed merge from Store.
func (n *Neo4jStore) CreateEntity(ctx context.Context, entity types.Entity, identifier types.Identifier, rel types.HasIdentifier) (*types.Entity, *types.Identifier, *types.HasIdentifier, error) {
	if err := identifier.Validate(); err != nil {
		return nil, nil, nil, types.NewValidationError("identifier", err)
	}

	metadata, err := encodeMetadata(entity.Metadata)
	if err != nil {
		return nil, nil, nil, types.NewValidationError("entity metadata", err)
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = entity.CreatedAt
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Existing owner wins: the merge is keyed on the identifier, so the
		// entity payload of a repeat call is ignored. MERGE locks the
		// identifier node, so concurrent creates for the same identifier
		// serialize instead of committing duplicates.
		res, err := tx.Run(ctx, `
			MERGE (i:Identifier {value: $value, type: $type})
			WITH i
			OPTIONAL MATCH (existing:Entity)-[er:HAS_IDENTIFIER]->(i)
			WITH i, existing, er
			ORDER BY er.is_primary DESC, er.created_at ASC
			LIMIT 1
			FOREACH (_ IN CASE WHEN existing IS NULL THEN [1] ELSE [] END |
				CREATE (n:Entity {id: $id, created_at: $created_at, metadata: $metadata})
				CREATE (n)-[:HAS_IDENTIFIER {is_primary: $is_primary, created_at: $rel_created_at}]->(i)
			)
			WITH i
			MATCH (e:Entity)-[r:HAS_IDENTIFIER]->(i)
			RETURN e, r
			ORDER BY r.is_primary DESC, r.created_at ASC
			LIMIT 1
		`, map[string]any{
			"value":          identifier.Value,
			"type":           string(identifier.Type),
			"id":             entity.ID,
			"created_at":     entity.CreatedAt.Format(time.RFC3339Nano),
			"metadata":       metadata,
			"is_primary":     rel.IsPrimary,
			"rel_created_at": rel.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, nil, nil, types.NewStorageError("CreateEntity", err)
	}

	record, ok := result.(*db.Record)
	if !ok {
		return nil, nil, nil, types.NewStorageError("CreateEntity", newDecodeError("*db.Record", result, "record"))
	}
	entityValue, _ := record.Get("e")
	relValue, _ := record.Get("r")

	entityNode, err := asNode(entityValue, "e")
	if err != nil {
		return nil, nil, nil, types.NewStorageError("CreateEntity", err)
	}
	relEdge, err := asRelationship(relValue, "r")
	if err != nil {
		return nil, nil, nil, types.NewStorageError("CreateEntity", err)
	}

	persisted, err := entityFromNode(entityNode)
	if err != nil {
		return nil, nil, nil, types.NewStorageError("CreateEntity", err)
	}
	ownership := hasIdentifierFromRel(relEdge, persisted.ID)
	return &persisted, &identifier, &ownership, nil
}

// FindEntityByIdentifier returns the entity owning (value, typ) with all facts.
func (n *Neo4jStore) FindEntityByIdentifier(ctx context.Context, value string, typ types.IdentifierType) (*types.EntityView, error) {
	identifier := types.Identifier{Value: value, Type: typ}
	if err := identifier.Validate(); err != nil {
		return nil, types.NewValidationError("identifier", err)
	}

	query := `
		MATCH (e:Entity)-[r:HAS_IDENTIFIER]->(i:Identifier {value: $value, type: $type})
	` + entityViewTail
	return n.readEntityView(ctx, "FindEntityByIdentifier", query, map[string]any{
		"value": value,
		"type":  string(typ),
	})
}

// FindEntityByID returns the entity with the given id, selecting its primary
// identifier when several exist.
func (n *Neo4jStore) FindEntityByID(ctx context.Context, id string) (*types.EntityView, error) {
	if id == "" {
		return nil, types.NewValidationError("entity id", types.ErrEmptyEntityID)
	}

	query := `
		MATCH (e:Entity {id: $id})-[r:HAS_IDENTIFIER]->(i:Identifier)
	` + entityViewTail
	return n.readEntityView(ctx, "FindEntityByID", query, map[string]any{"id": id})
}

func (n *Neo4jStore) readEntityView(ctx context.Context, op, query string, params map[string]any) (*types.EntityView, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, types.NewStorageError(op, err)
	}

	records, ok := result.([]*db.Record)
	if !ok {
		return nil, types.NewStorageError(op, newDecodeError("[]*db.Record", result, "records"))
	}
	if len(records) == 0 {
		return nil, types.ErrEntityNotFound
	}
	view, err := n.decodeEntityView(records[0])
	if err != nil {
		return nil, types.NewStorageError(op, err)
	}
	return view, nil
}

func (n *Neo4jStore) decodeEntityView(record *db.Record) (*types.EntityView, error) {
	entityValue, _ := record.Get("e")
	relValue, _ := record.Get("r")
	identValue, _ := record.Get("i")
	factsValue, _ := record.Get("facts")

	entityNode, err := asNode(entityValue, "e")
	if err != nil {
		return nil, err
	}
	relEdge, err := asRelationship(relValue, "r")
	if err != nil {
		return nil, err
	}
	identNode, err := asNode(identValue, "i")
	if err != nil {
		return nil, err
	}

	entity, err := entityFromNode(entityNode)
	if err != nil {
		return nil, err
	}
	facts, err := factsFromCollected(entity.ID, factsValue)
	if err != nil {
		return nil, err
	}

	return &types.EntityView{
		Entity:       entity,
		Identifier:   identifierFromNode(identNode),
		Relationship: hasIdentifierFromRel(relEdge, entity.ID),
		Facts:        facts,
	}, nil
}

// AddFactToEntity merges fact and source by natural key and attaches them under
// verb, unless the (entity, fact_id, verb) triple already exists.
func (n *Neo4jStore) AddFactToEntity(ctx context.Context, entityID string, fact types.Fact, source types.Source, verb string, confidence float64) (*types.FactAttachment, error) {
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

	factID := fact.ID()
	now := time.Now().UTC()
	if source.Timestamp.IsZero() {
		source.Timestamp = now
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $entity_id})
			RETURN e.id
		`, map[string]any{"entity_id": entityID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, types.ErrEntityNotFound
		}

		// Existing (entity, fact_id, verb) triple returns unchanged.
		res, err = tx.Run(ctx, `
			MATCH (e:Entity {id: $entity_id})-[hf:HAS_FACT {verb: $verb}]->(f:Fact {fact_id: $fact_id})
			OPTIONAL MATCH (f)-[:DERIVED_FROM]->(s:Source)
			RETURN f, hf, s
			LIMIT 1
		`, map[string]any{
			"entity_id": entityID,
			"fact_id":   factID,
			"verb":      verb,
		})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records[0], nil
		}

		res, err = tx.Run(ctx, `
			MATCH (e:Entity {id: $entity_id})
			MERGE (f:Fact {fact_id: $fact_id})
			ON CREATE SET f.name = $name, f.type = $type
			MERGE (s:Source {id: $source_id})
			ON CREATE SET s.content = $content, s.timestamp = $timestamp
			CREATE (e)-[hf:HAS_FACT {verb: $verb, confidence: $confidence, created_at: $created_at}]->(f)
			MERGE (f)-[:DERIVED_FROM]->(s)
			RETURN f, hf, s
		`, map[string]any{
			"entity_id":  entityID,
			"fact_id":    factID,
			"name":       fact.Name,
			"type":       fact.Type,
			"source_id":  source.ID,
			"content":    source.Content,
			"timestamp":  source.Timestamp.Format(time.RFC3339Nano),
			"verb":       verb,
			"confidence": confidence,
			"created_at": now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if types.IsNotFound(err) {
			return nil, err
		}
		return nil, types.NewStorageError("AddFactToEntity", err)
	}

	record, ok := result.(*db.Record)
	if !ok {
		return nil, types.NewStorageError("AddFactToEntity", newDecodeError("*db.Record", result, "record"))
	}
	attachment, err := n.decodeFactAttachment(record, entityID)
	if err != nil {
		return nil, types.NewStorageError("AddFactToEntity", err)
	}

	// Key invariant: the persisted fact must carry the computed key.
	if attachment.Fact.FactID != factID {
		return nil, fmt.Errorf("%w: persisted fact id %q, computed %q",
			types.ErrIdempotencyViolation, attachment.Fact.FactID, factID)
	}
	return attachment, nil
}

func (n *Neo4jStore) decodeFactAttachment(record *db.Record, entityID string) (*types.FactAttachment, error) {
	factValue, _ := record.Get("f")
	relValue, _ := record.Get("hf")
	sourceValue, _ := record.Get("s")

	factNode, err := asNode(factValue, "f")
	if err != nil {
		return nil, err
	}
	relEdge, err := asRelationship(relValue, "hf")
	if err != nil {
		return nil, err
	}

	fact := factFromNode(factNode)
	attachment := &types.FactAttachment{
		Fact:    fact,
		HasFact: hasFactFromRel(relEdge, entityID, fact.ID()),
	}
	if sourceValue != nil {
		sourceNode, err := asNode(sourceValue, "s")
		if err != nil {
			return nil, err
		}
		attachment.Source = sourceFromNode(sourceNode)
		attachment.DerivedFrom = types.DerivedFrom{FactID: fact.ID(), SourceID: attachment.Source.ID}
	}
	return attachment, nil
}

// RemoveFactFromEntity deletes the HAS_FACT edge(s) and garbage-collects the
// fact and its source when they become unreferenced.
func (n *Neo4jStore) RemoveFactFromEntity(ctx context.Context, entityID, factID string) (bool, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Count other owners before touching this entity's edges.
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $entity_id})-[hf:HAS_FACT]->(f:Fact {fact_id: $fact_id})
			OPTIONAL MATCH (other:Entity)-[:HAS_FACT]->(f)
			WHERE other.id <> $entity_id
			RETURN count(hf) AS edges, count(DISTINCT other) AS others
		`, map[string]any{
			"entity_id": entityID,
			"fact_id":   factID,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		edgesValue, _ := record.Get("edges")
		othersValue, _ := record.Get("others")
		edges, _ := edgesValue.(int64)
		others, _ := othersValue.(int64)
		if edges == 0 {
			return false, nil
		}

		if _, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $entity_id})-[hf:HAS_FACT]->(f:Fact {fact_id: $fact_id})
			DELETE hf
		`, map[string]any{
			"entity_id": entityID,
			"fact_id":   factID,
		}); err != nil {
			return nil, err
		}

		if others == 0 {
			if err := deleteFactsWithSourceGC(ctx, tx, []string{factID}); err != nil {
				return nil, err
			}
		}
		return true, nil
	})
	if err != nil {
		return false, types.NewStorageError("RemoveFactFromEntity", err)
	}
	removed, _ := result.(bool)
	return removed, nil
}

// DeleteEntityByID implements the cascading delete. Reference counts for facts
// and the identifier are taken before the entity's own edges are removed; all
// steps commit in one transaction.
func (n *Neo4jStore) DeleteEntityByID(ctx context.Context, id string) (bool, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $id})
			RETURN e.id
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return false, nil
		}

		// Facts owned solely by this entity are doomed.
		res, err = tx.Run(ctx, `
			MATCH (e:Entity {id: $id})-[:HAS_FACT]->(f:Fact)
			OPTIONAL MATCH (other:Entity)-[:HAS_FACT]->(f)
			WHERE other.id <> $id
			WITH f, count(DISTINCT other) AS refs
			WHERE refs = 0
			RETURN f.fact_id AS fact_id
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		doomedFacts := make([]string, 0, len(records))
		for _, record := range records {
			v, _ := record.Get("fact_id")
			if factID, ok := v.(string); ok {
				doomedFacts = append(doomedFacts, factID)
			}
		}

		// Same count-before-delete for the identifier nodes.
		res, err = tx.Run(ctx, `
			MATCH (e:Entity {id: $id})-[:HAS_IDENTIFIER]->(i:Identifier)
			OPTIONAL MATCH (other:Entity)-[:HAS_IDENTIFIER]->(i)
			WHERE other.id <> $id
			WITH i, count(DISTINCT other) AS refs
			WHERE refs = 0
			RETURN i.value AS value, i.type AS type
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		type identKey struct{ value, typ string }
		doomedIdents := make([]identKey, 0, len(records))
		for _, record := range records {
			valueV, _ := record.Get("value")
			typeV, _ := record.Get("type")
			value, _ := valueV.(string)
			typ, _ := typeV.(string)
			doomedIdents = append(doomedIdents, identKey{value: value, typ: typ})
		}

		if _, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $id})
			DETACH DELETE e
		`, map[string]any{"id": id}); err != nil {
			return nil, err
		}

		if err := deleteFactsWithSourceGC(ctx, tx, doomedFacts); err != nil {
			return nil, err
		}

		for _, ident := range doomedIdents {
			if _, err := tx.Run(ctx, `
				MATCH (i:Identifier {value: $value, type: $type})
				WHERE NOT (:Entity)-[:HAS_IDENTIFIER]->(i)
				DELETE i
			`, map[string]any{"value": ident.value, "type": ident.typ}); err != nil {
				return nil, err
			}
		}
		return true, nil
	})
	if err != nil {
		return false, types.NewStorageError("DeleteEntityByID", err)
	}
	deleted, _ := result.(bool)
	return deleted, nil
}

// deleteFactsWithSourceGC deletes the given fact nodes and any source that
// loses its last DERIVED_FROM reference as a result.
func deleteFactsWithSourceGC(ctx context.Context, tx neo4j.ManagedTransaction, factIDs []string) error {
	if len(factIDs) == 0 {
		return nil
	}

	res, err := tx.Run(ctx, `
		MATCH (f:Fact)-[:DERIVED_FROM]->(s:Source)
		WHERE f.fact_id IN $fact_ids
		RETURN DISTINCT s.id AS source_id
	`, map[string]any{"fact_ids": factIDs})
	if err != nil {
		return err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	sourceIDs := make([]string, 0, len(records))
	for _, record := range records {
		v, _ := record.Get("source_id")
		if sourceID, ok := v.(string); ok {
			sourceIDs = append(sourceIDs, sourceID)
		}
	}

	if _, err := tx.Run(ctx, `
		MATCH (f:Fact)
		WHERE f.fact_id IN $fact_ids
		DETACH DELETE f
	`, map[string]any{"fact_ids": factIDs}); err != nil {
		return err
	}

	if len(sourceIDs) == 0 {
		return nil
	}
	_, err = tx.Run(ctx, `
		MATCH (s:Source)
		WHERE s.id IN $source_ids AND NOT (:Fact)-[:DERIVED_FROM]->(s)
		DELETE s
	`, map[string]any{"source_ids": sourceIDs})
	return err
}

// FindFactByID returns a fact and its source, if any.
func (n *Neo4jStore) FindFactByID(ctx context.Context, factID string) (*types.FactWithSource, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (f:Fact {fact_id: $fact_id})
			OPTIONAL MATCH (f)-[:DERIVED_FROM]->(s:Source)
			RETURN f, s
			LIMIT 1
		`, map[string]any{"fact_id": factID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, types.NewStorageError("FindFactByID", err)
	}

	records, ok := result.([]*db.Record)
	if !ok {
		return nil, types.NewStorageError("FindFactByID", newDecodeError("[]*db.Record", result, "records"))
	}
	if len(records) == 0 {
		return nil, types.ErrFactNotFound
	}

	factValue, _ := records[0].Get("f")
	sourceValue, _ := records[0].Get("s")
	factNode, err := asNode(factValue, "f")
	if err != nil {
		return nil, types.NewStorageError("FindFactByID", err)
	}

	out := &types.FactWithSource{Fact: factFromNode(factNode)}
	if sourceValue != nil {
		sourceNode, err := asNode(sourceValue, "s")
		if err != nil {
			return nil, types.NewStorageError("FindFactByID", err)
		}
		source := sourceFromNode(sourceNode)
		out.Source = &source
	}
	return out, nil
}

// CreateIndices creates uniqueness constraints and lookup indexes.
func (n *Neo4jStore) CreateIndices(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT fact_id IF NOT EXISTS FOR (f:Fact) REQUIRE f.fact_id IS UNIQUE`,
		`CREATE CONSTRAINT source_id IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE`,
		`CREATE CONSTRAINT identifier_key IF NOT EXISTS FOR (i:Identifier) REQUIRE (i.value, i.type) IS UNIQUE`,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, statement := range statements {
			if _, err := tx.Run(ctx, statement, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return types.NewStorageError("CreateIndices", err)
	}
	return nil
}

// Close releases the underlying driver.
func (n *Neo4jStore) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

var _ Store = (*Neo4jStore)(nil)
