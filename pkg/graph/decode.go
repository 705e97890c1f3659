package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/factgraph/pkg/types"
)

// Typed decoding of Neo4j records. Backend results are converted to value
// types exactly once, at this boundary; loose maps never reach business logic.

// DecodeError represents a malformed backend response.
type DecodeError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("decode error: expected %s, got %s", e.Expected, e.Actual)
}

// Is reports types.ErrStorage: a malformed response is a storage failure.
func (e *DecodeError) Is(target error) bool { return target == types.ErrStorage }

func newDecodeError(expected string, v any, field string) *DecodeError {
	return &DecodeError{Expected: expected, Actual: fmt.Sprintf("%T", v), Field: field}
}

func asNode(v any, field string) (dbtype.Node, error) {
	node, ok := v.(dbtype.Node)
	if !ok {
		return dbtype.Node{}, newDecodeError("dbtype.Node", v, field)
	}
	return node, nil
}

func asRelationship(v any, field string) (dbtype.Relationship, error) {
	rel, ok := v.(dbtype.Relationship)
	if !ok {
		return dbtype.Relationship{}, newDecodeError("dbtype.Relationship", v, field)
	}
	return rel, nil
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propBool(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func propFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func propTime(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	case time.Time:
		return v
	case dbtype.LocalDateTime:
		return v.Time()
	}
	return time.Time{}
}

func entityFromNode(node dbtype.Node) (types.Entity, error) {
	entity := types.Entity{
		ID:        propString(node.Props, "id"),
		CreatedAt: propTime(node.Props, "created_at"),
	}
	if entity.ID == "" {
		return types.Entity{}, newDecodeError("entity with id", node.Props["id"], "id")
	}
	if raw := propString(node.Props, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &entity.Metadata); err != nil {
			return types.Entity{}, fmt.Errorf("decode entity metadata: %w", err)
		}
	}
	return entity, nil
}

func identifierFromNode(node dbtype.Node) types.Identifier {
	return types.Identifier{
		Value: propString(node.Props, "value"),
		Type:  types.IdentifierType(propString(node.Props, "type")),
	}
}

func factFromNode(node dbtype.Node) types.Fact {
	return types.Fact{
		Name:   propString(node.Props, "name"),
		Type:   propString(node.Props, "type"),
		FactID: propString(node.Props, "fact_id"),
	}
}

func sourceFromNode(node dbtype.Node) types.Source {
	return types.Source{
		ID:        propString(node.Props, "id"),
		Content:   propString(node.Props, "content"),
		Timestamp: propTime(node.Props, "timestamp"),
	}
}

func hasIdentifierFromRel(rel dbtype.Relationship, entityID string) types.HasIdentifier {
	return types.HasIdentifier{
		EntityID:  entityID,
		IsPrimary: propBool(rel.Props, "is_primary"),
		CreatedAt: propTime(rel.Props, "created_at"),
	}
}

func hasFactFromRel(rel dbtype.Relationship, entityID, factID string) types.HasFact {
	return types.HasFact{
		EntityID:   entityID,
		FactID:     factID,
		Verb:       propString(rel.Props, "verb"),
		Confidence: propFloat(rel.Props, "confidence"),
		CreatedAt:  propTime(rel.Props, "created_at"),
	}
}

// factsFromCollected decodes the collect() payload returned by the entity view
// queries: a list of {fact, rel, source} maps. A fact attached under several
// verbs contributes one FactWithSource per verb; duplicate (fact, verb) rows
// produced by multi-source provenance keep the first source seen.
func factsFromCollected(entityID string, raw any) ([]types.FactWithSource, error) {
	rows, ok := raw.([]any)
	if !ok {
		return nil, newDecodeError("[]any", raw, "facts")
	}

	seen := make(map[string]int)
	facts := make([]types.FactWithSource, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			return nil, newDecodeError("map[string]any", row, "facts row")
		}
		if m["fact"] == nil {
			continue
		}
		factNode, err := asNode(m["fact"], "fact")
		if err != nil {
			return nil, err
		}
		relValue, err := asRelationship(m["rel"], "rel")
		if err != nil {
			return nil, err
		}

		fact := factFromNode(factNode)
		rel := hasFactFromRel(relValue, entityID, fact.ID())

		var source *types.Source
		if m["source"] != nil {
			sourceNode, err := asNode(m["source"], "source")
			if err != nil {
				return nil, err
			}
			s := sourceFromNode(sourceNode)
			source = &s
		}

		key := rel.Key()
		if idx, dup := seen[key]; dup {
			if facts[idx].Source == nil {
				facts[idx].Source = source
			}
			continue
		}
		seen[key] = len(facts)
		facts = append(facts, types.FactWithSource{Fact: fact, Source: source, Relationship: rel})
	}
	return facts, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode entity metadata: %w", err)
	}
	return string(raw), nil
}
