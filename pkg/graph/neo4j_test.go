package graph_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/factgraph/pkg/graph"
	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newNeo4jStore connects to the Neo4j instance configured in the environment,
// skipping the test when none is available.
func newNeo4jStore(t *testing.T) *graph.Neo4jStore {
	t.Helper()

	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set; skipping Neo4j integration test")
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("NEO4J_PASSWORD")

	store, err := graph.NewNeo4jStore(uri, user, password, os.Getenv("NEO4J_DATABASE"))
	if err != nil {
		t.Skipf("Neo4j not available at %s: %v", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.CreateIndices(ctx); err != nil {
		t.Skipf("Neo4j connection failed: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	return store
}

func TestNeo4jCreateEntityIdempotent(t *testing.T) {
	store := newNeo4jStore(t)
	ctx := context.Background()

	ident := types.Identifier{Value: uuid.New().String() + "@x.com", Type: types.IdentifierEmail}

	first, _, _, err := store.CreateEntity(ctx, newEntity(), ident, types.HasIdentifier{IsPrimary: true})
	require.NoError(t, err)
	second, _, _, err := store.CreateEntity(ctx, newEntity(), ident, types.HasIdentifier{IsPrimary: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	deleted, err := store.DeleteEntityByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestNeo4jConcurrentCreateSameIdentifier(t *testing.T) {
	store := newNeo4jStore(t)
	ctx := context.Background()

	ident := types.Identifier{Value: uuid.New().String() + "@x.com", Type: types.IdentifierEmail}

	const writers = 8
	ids := make([]string, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entity, _, _, err := store.CreateEntity(ctx, newEntity(), ident, types.HasIdentifier{IsPrimary: true})
			errs[i] = err
			if err == nil {
				ids[i] = entity.ID
			}
		}(i)
	}
	wg.Wait()

	// Every racer must land on the same entity; the identifier merge is the
	// serialization point.
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	deleted, err := store.DeleteEntityByID(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestNeo4jFactLifecycle(t *testing.T) {
	store := newNeo4jStore(t)
	ctx := context.Background()

	identA := types.Identifier{Value: uuid.New().String() + "@x.com", Type: types.IdentifierEmail}
	identB := types.Identifier{Value: uuid.New().String() + "@x.com", Type: types.IdentifierEmail}

	a, _, _, err := store.CreateEntity(ctx, newEntity(), identA, types.HasIdentifier{IsPrimary: true})
	require.NoError(t, err)
	b, _, _, err := store.CreateEntity(ctx, newEntity(), identB, types.HasIdentifier{IsPrimary: true})
	require.NoError(t, err)

	// Namespace the fact per run so parallel test runs do not collide.
	factName := "City-" + uuid.New().String()
	fact := types.NewFact(factName, "Location")
	source := newSource("integration provenance")

	_, err = store.AddFactToEntity(ctx, a.ID, fact, source, "lives_in", 0.9)
	require.NoError(t, err)
	_, err = store.AddFactToEntity(ctx, b.ID, fact, source, "lives_in", 0.8)
	require.NoError(t, err)

	// Idempotent re-add.
	again, err := store.AddFactToEntity(ctx, a.ID, fact, newSource("other"), "lives_in", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, again.HasFact.Confidence)

	// A's deletion leaves the shared fact for B.
	deleted, err := store.DeleteEntityByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	viewB, err := store.FindEntityByIdentifier(ctx, identB.Value, identB.Type)
	require.NoError(t, err)
	assert.True(t, viewB.HasFactID(fact.ID()))

	deleted, err = store.DeleteEntityByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.FindFactByID(ctx, fact.ID())
	assert.ErrorIs(t, err, types.ErrFactNotFound)
}
