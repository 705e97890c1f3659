package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/soundprediction/factgraph/pkg/embedder"
	"github.com/soundprediction/factgraph/pkg/types"
)

// BadgerIndex is a persistent Index over a Badger key-value store. Points are
// keyed by tenant/entity prefix, so scoped search and bulk deletion are prefix
// scans; scoring is the same brute-force cosine ranking as MemoryIndex.
type BadgerIndex struct {
	db       *badger.DB
	embedder embedder.Client
}

// NewBadgerIndex opens (or creates) a Badger-backed index at path.
func NewBadgerIndex(path string, embedderClient embedder.Client) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index at %s: %w", path, err)
	}
	return &BadgerIndex{db: db, embedder: embedderClient}, nil
}

func pointKey(tenantID, entityID, pointID string) []byte {
	return []byte("point/" + escapeScope(tenantID) + "/" + escapeScope(entityID) + "/" + pointID)
}

func entityPrefix(tenantID, entityID string) []byte {
	return []byte("point/" + escapeScope(tenantID) + "/" + escapeScope(entityID) + "/")
}

// AddSemantic upserts a point for (tenantID, entityID, fact, verb).
func (b *BadgerIndex) AddSemantic(ctx context.Context, tenantID, entityID string, fact types.Fact, verb string) (bool, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return false, err
	}
	if verb == "" {
		return false, types.NewValidationError("verb", types.ErrEmptyVerb)
	}
	if err := fact.Validate(); err != nil {
		return false, types.NewValidationError("fact", err)
	}

	vectorData, err := b.embedder.EmbedSingle(ctx, Sentence(fact, verb))
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

	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to encode point: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pointKey(tenantID, entityID, p.ID), payload)
	})
	if err != nil {
		return false, types.NewStorageError("AddSemantic", err)
	}
	return true, nil
}

// SearchSemantic returns scored hits scoped strictly to (tenantID, entityID).
func (b *BadgerIndex) SearchSemantic(ctx context.Context, tenantID, entityID, query string, topK int, minScore float64) ([]Hit, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return nil, err
	}

	queryVector, err := b.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var candidates []point
	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entityPrefix(tenantID, entityID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p point
				if err := json.Unmarshal(val, &p); err != nil {
					return fmt.Errorf("failed to decode point: %w", err)
				}
				// The stored scope is authoritative over the key prefix.
				if p.TenantID != tenantID || p.EntityID != entityID {
					return nil
				}
				candidates = append(candidates, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.NewStorageError("SearchSemantic", err)
	}

	return rankPoints(candidates, queryVector, topK, minScore), nil
}

// DeleteSemantic removes one point; absent points are not an error.
func (b *BadgerIndex) DeleteSemantic(ctx context.Context, tenantID, entityID, factID, verb string) (bool, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return false, err
	}

	key := pointKey(tenantID, entityID, PointID(tenantID, entityID, verb, factID))
	existed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, types.NewStorageError("DeleteSemantic", err)
	}
	return existed, nil
}

// DeleteAllForEntity removes every point for the entity.
func (b *BadgerIndex) DeleteAllForEntity(ctx context.Context, tenantID, entityID string) (int, error) {
	if err := validateScope(tenantID, entityID); err != nil {
		return 0, err
	}

	count := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entityPrefix(tenantID, entityID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, types.NewStorageError("DeleteAllForEntity", err)
	}
	return count, nil
}

// Close releases the underlying database.
func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

var _ Index = (*BadgerIndex)(nil)
