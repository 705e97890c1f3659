package vector_test

import (
	"context"
	"testing"

	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/soundprediction/factgraph/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerIndex(t *testing.T) *vector.BadgerIndex {
	t.Helper()
	index, err := vector.NewBadgerIndex(t.TempDir(), letterEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, index.Close())
	})
	return index
}

func TestBadgerIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	fact := types.NewFact("Paris", "Location")
	ok, err := index.AddSemantic(ctx, "t1", "e1", fact, "lives_in")
	require.NoError(t, err)
	assert.True(t, ok)

	hits, err := index.SearchSemantic(ctx, "t1", "e1", "Location Paris", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Location:Paris", hits[0].FactID)
	assert.Equal(t, "lives_in", hits[0].Verb)
	assert.Equal(t, "e1|Location:Paris|lives_in", hits[0].RelationshipKey)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestBadgerIndexAddIdempotent(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	fact := types.NewFact("Engineer", "Profession")
	for i := 0; i < 3; i++ {
		_, err := index.AddSemantic(ctx, "t1", "e1", fact, "works_as")
		require.NoError(t, err)
	}

	count, err := index.DeleteAllForEntity(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBadgerIndexTenantIsolation(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	_, err := index.AddSemantic(ctx, "t1", "e1", types.NewFact("Paris", "Location"), "lives_in")
	require.NoError(t, err)
	_, err = index.AddSemantic(ctx, "t2", "e1", types.NewFact("London", "Location"), "lives_in")
	require.NoError(t, err)

	hits, err := index.SearchSemantic(ctx, "t1", "e1", "Location", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Location:Paris", hits[0].FactID)
}

func TestBadgerIndexScopeSeparatorCollision(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	// Ids containing the key separator must not shift the tenant/entity split.
	_, err := index.AddSemantic(ctx, "a", "b/c", types.NewFact("Paris", "Location"), "lives_in")
	require.NoError(t, err)

	hits, err := index.SearchSemantic(ctx, "a/b", "c", "Location Paris", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	count, err := index.DeleteAllForEntity(ctx, "a/b", "c")
	require.NoError(t, err)
	assert.Zero(t, count)

	hits, err = index.SearchSemantic(ctx, "a", "b/c", "Location Paris", 10, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBadgerIndexDelete(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	fact := types.NewFact("Paris", "Location")
	_, err := index.AddSemantic(ctx, "t1", "e1", fact, "lives_in")
	require.NoError(t, err)

	deleted, err := index.DeleteSemantic(ctx, "t1", "e1", fact.ID(), "lives_in")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = index.DeleteSemantic(ctx, "t1", "e1", fact.ID(), "lives_in")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBadgerIndexDeleteAllForEntity(t *testing.T) {
	ctx := context.Background()
	index := newBadgerIndex(t)

	_, err := index.AddSemantic(ctx, "t1", "e1", types.NewFact("Paris", "Location"), "lives_in")
	require.NoError(t, err)
	_, err = index.AddSemantic(ctx, "t1", "e1", types.NewFact("Engineer", "Profession"), "works_as")
	require.NoError(t, err)
	_, err = index.AddSemantic(ctx, "t1", "e2", types.NewFact("Chess", "Hobby"), "enjoys")
	require.NoError(t, err)

	count, err := index.DeleteAllForEntity(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Neighboring entities under the same tenant are untouched.
	hits, err := index.SearchSemantic(ctx, "t1", "e2", "Hobby Chess", 10, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
