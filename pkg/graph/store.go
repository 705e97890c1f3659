package graph

import (
	"context"

	"github.com/soundprediction/factgraph/pkg/types"
)

// Store is the contract for the canonical property graph. All operations take
// and return immutable value types and are safe to retry: they are designed to
// be idempotent, converging on the same end state when called twice with the
// same inputs.
//
// Absence of an entity or fact is signalled with types.ErrEntityNotFound /
// types.ErrFactNotFound; backend failures wrap types.ErrStorage. The
// boolean-returning delete operations report (false, nil) when the target did
// not exist.
type Store interface {
	// CreateEntity finds an existing entity for (identifier.Value,
	// identifier.Type) and returns it unchanged if found; otherwise it merges a
	// new Entity, Identifier, and HAS_IDENTIFIER edge in one logical unit. The
	// merge is identifier-keyed, not entity-id-keyed: calling twice with the
	// same identifier returns the same entity both times, regardless of a
	// differing entity payload on the second call.
	CreateEntity(ctx context.Context, entity types.Entity, identifier types.Identifier, rel types.HasIdentifier) (*types.Entity, *types.Identifier, *types.HasIdentifier, error)

	// FindEntityByIdentifier returns the entity owning (value, typ) together
	// with the ownership edge and all attached facts with provenance.
	FindEntityByIdentifier(ctx context.Context, value string, typ types.IdentifierType) (*types.EntityView, error)

	// FindEntityByID returns the same shape as FindEntityByIdentifier, selecting
	// the primary identifier when several exist (tie-break: prefer
	// is_primary = true, otherwise the first encountered).
	FindEntityByID(ctx context.Context, id string) (*types.EntityView, error)

	// AddFactToEntity merges the Fact and Source nodes by their natural keys and
	// creates the HAS_FACT / DERIVED_FROM edges only if the (entity, fact_id,
	// verb) triple does not already exist. When it does, the existing data is
	// returned unchanged: no duplicate edges, no confidence overwrite.
	AddFactToEntity(ctx context.Context, entityID string, fact types.Fact, source types.Source, verb string, confidence float64) (*types.FactAttachment, error)

	// RemoveFactFromEntity deletes the HAS_FACT edge(s) between the entity and
	// the fact. If no other entity still references the fact, the Fact node is
	// deleted and its Source cascades when it too becomes unreferenced.
	// Returns false when the relationship did not exist.
	RemoveFactFromEntity(ctx context.Context, entityID, factID string) (bool, error)

	// DeleteEntityByID cascades: reference counts for each attached fact and the
	// identifier are taken before any of the entity's own edges are removed,
	// then the entity and every satellite node that became unreferenced are
	// deleted. Returns false when the entity did not exist.
	DeleteEntityByID(ctx context.Context, id string) (bool, error)

	// FindFactByID returns a fact and its source, if any.
	FindFactByID(ctx context.Context, factID string) (*types.FactWithSource, error)

	// CreateIndices creates uniqueness constraints and lookup indexes.
	CreateIndices(ctx context.Context) error

	// Close releases all resources held by the store.
	Close(ctx context.Context) error
}
