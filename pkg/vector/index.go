package vector

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/soundprediction/factgraph/pkg/types"
)

// pointNamespace is the UUIDv5 namespace for semantic point identifiers.
var pointNamespace = uuid.MustParse("8f0c52f2-6a86-4e3b-9c3f-3a4d7c1d9b6e")

// Index is the contract for the semantic vector index. All operations are
// idempotent; deleting a non-existent point is not an error.
type Index interface {
	// AddSemantic embeds a synthetic sentence for (fact, verb) and upserts a
	// point keyed deterministically off (tenantID, entityID, verb, fact id).
	AddSemantic(ctx context.Context, tenantID, entityID string, fact types.Fact, verb string) (bool, error)

	// SearchSemantic embeds the query and returns hits filtered strictly by
	// tenantID and entityID, ordered by descending score, truncated to topK
	// and, when minScore > 0, to hits scoring at least minScore.
	SearchSemantic(ctx context.Context, tenantID, entityID, query string, topK int, minScore float64) ([]Hit, error)

	// DeleteSemantic removes the point for (tenantID, entityID, factID, verb).
	// Returns false when no such point existed.
	DeleteSemantic(ctx context.Context, tenantID, entityID, factID, verb string) (bool, error)

	// DeleteAllForEntity removes every point for the entity and returns how
	// many were deleted.
	DeleteAllForEntity(ctx context.Context, tenantID, entityID string) (int, error)

	// Close releases all resources held by the index.
	Close() error
}

// Hit is one scored search result. FactID must be verified against the graph
// before the hit is trusted.
type Hit struct {
	FactID          string  `json:"fact_id"`
	Verb            string  `json:"verb"`
	RelationshipKey string  `json:"relationship_key"`
	Score           float64 `json:"score"`
}

// point is the stored payload for one semantic vector.
type point struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	EntityID        string    `json:"entity_id"`
	FactID          string    `json:"fact_id"`
	Verb            string    `json:"verb"`
	RelationshipKey string    `json:"relationship_key"`
	Type            string    `json:"type"`
	Vector          []float32 `json:"vector"`
}

// PointID computes the deterministic UUIDv5 identifier for a semantic point.
func PointID(tenantID, entityID, verb, factID string) string {
	key := tenantID + ":" + entityID + ":" + verb + ":" + factID
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// Sentence renders the synthetic text embedded for a fact relationship.
func Sentence(fact types.Fact, verb string) string {
	return fmt.Sprintf("The entity %s %s: %s", verb, fact.Type, fact.Name)
}

// relationshipKey mirrors types.HasFact.Key for a point payload.
func relationshipKey(entityID, factID, verb string) string {
	return entityID + "|" + factID + "|" + verb
}

// scopeEscaper percent-encodes the composite-key separator and the escape
// character itself, so (tenant "a", entity "b/c") and (tenant "a/b",
// entity "c") key distinct scopes.
var scopeEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

func escapeScope(s string) string {
	return scopeEscaper.Replace(s)
}

func validateScope(tenantID, entityID string) error {
	if tenantID == "" {
		return types.NewValidationError("tenant id", types.ErrEmptyTenant)
	}
	if entityID == "" {
		return types.NewValidationError("entity id", types.ErrEmptyEntityID)
	}
	return nil
}

// cosineSimilarity computes the cosine similarity of two vectors, 0 when the
// dimensions differ or either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankPoints scores candidates against the query vector and returns the topK
// hits ordered by descending score, honoring minScore when positive.
func rankPoints(candidates []point, queryVector []float32, topK int, minScore float64) []Hit {
	hits := make([]Hit, 0, len(candidates))
	for i := range candidates {
		score := cosineSimilarity(queryVector, candidates[i].Vector)
		if minScore > 0 && score < minScore {
			continue
		}
		hits = append(hits, Hit{
			FactID:          candidates[i].FactID,
			Verb:            candidates[i].Verb,
			RelationshipKey: candidates[i].RelationshipKey,
			Score:           score,
		})
	}

	// Insertion sort by descending score; candidate sets are per-entity and small.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
