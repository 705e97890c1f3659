package factgraph

import (
	"context"

	"github.com/soundprediction/factgraph/pkg/types"
)

// DeleteEntity removes the entity and cascades to its satellite nodes in the
// graph, then clears the entity's vector points. Returns false when the
// entity did not exist. Vector cleanup failures degrade instead of failing
// the deletion: the graph is already consistent and orphaned points can never
// pass hit verification.
func (c *Client) DeleteEntity(ctx context.Context, entityID string) (bool, error) {
	if entityID == "" {
		return false, types.NewValidationError("entity id", types.ErrEmptyEntityID)
	}

	deleted, err := c.store.DeleteEntityByID(ctx, entityID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if c.index != nil {
		if removed, err := c.index.DeleteAllForEntity(ctx, c.config.TenantID, entityID); err != nil {
			if !c.config.DegradeOnVectorError {
				return true, err
			}
			c.logger.Warn("vector cleanup failed after entity deletion",
				"entity_id", entityID,
				"error", err)
		} else {
			c.logger.Info("deleted entity",
				"entity_id", entityID,
				"vector_points_removed", removed)
		}
	}

	return true, nil
}

// RemoveFact detaches the fact from the entity, garbage-collecting the Fact
// and Source nodes when no other entity references them, then removes the
// matching vector points. Returns false when the attachment did not exist.
func (c *Client) RemoveFact(ctx context.Context, entityID, factID string) (bool, error) {
	if entityID == "" {
		return false, types.NewValidationError("entity id", types.ErrEmptyEntityID)
	}
	if factID == "" {
		return false, types.NewValidationError("fact id", types.ErrEmptyFactName)
	}

	// Capture the attached verbs before the edges go away so the matching
	// vector points can be addressed afterwards.
	var verbs []string
	if c.index != nil {
		if view, err := c.store.FindEntityByID(ctx, entityID); err == nil {
			for _, f := range view.Facts {
				if f.Fact.ID() == factID {
					verbs = append(verbs, f.Relationship.Verb)
				}
			}
		}
	}

	removed, err := c.store.RemoveFactFromEntity(ctx, entityID, factID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	for _, verb := range verbs {
		if _, err := c.index.DeleteSemantic(ctx, c.config.TenantID, entityID, factID, verb); err != nil {
			if !c.config.DegradeOnVectorError {
				return true, err
			}
			c.logger.Warn("vector cleanup failed after fact removal",
				"entity_id", entityID,
				"fact_id", factID,
				"verb", verb,
				"error", err)
		}
	}

	return true, nil
}
