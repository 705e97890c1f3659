package factgraph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/graph"
	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/soundprediction/factgraph/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder maps text to a letter-frequency vector, so similarity tracks
// textual overlap deterministically.
type wordEmbedder struct{}

func (wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = freqVector(text)
	}
	return out, nil
}

func (wordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return freqVector(text), nil
}

func (wordEmbedder) Dimensions() int { return 26 }
func (wordEmbedder) Close() error    { return nil }

func freqVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

// failingIndex simulates a broken vector backend.
type failingIndex struct{}

func (failingIndex) AddSemantic(ctx context.Context, tenantID, entityID string, fact types.Fact, verb string) (bool, error) {
	return false, assert.AnError
}

func (failingIndex) SearchSemantic(ctx context.Context, tenantID, entityID, query string, topK int, minScore float64) ([]vector.Hit, error) {
	return nil, assert.AnError
}

func (failingIndex) DeleteSemantic(ctx context.Context, tenantID, entityID, factID, verb string) (bool, error) {
	return false, assert.AnError
}

func (failingIndex) DeleteAllForEntity(ctx context.Context, tenantID, entityID string) (int, error) {
	return 0, assert.AnError
}

func (failingIndex) Close() error { return nil }

// stubExtractor returns a fixed fact list for every call.
type stubExtractor struct {
	facts []types.ExtractedFact
}

func (s *stubExtractor) ExtractFacts(ctx context.Context, content string, identifier types.Identifier, history []string) ([]types.ExtractedFact, error) {
	return s.facts, nil
}

// stubSummarizer joins fact names.
type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, question string, facts []types.FactWithSource, lang string) (string, error) {
	names := make([]string, len(facts))
	for i, f := range facts {
		names[i] = f.Fact.Name
	}
	return strings.Join(names, ", "), nil
}

func emailIdentifier(value string) types.Identifier {
	return types.Identifier{Value: value, Type: types.IdentifierEmail}
}

func floatPtr(v float64) *float64 { return &v }

func newTestClient(t *testing.T, facts []types.ExtractedFact) *factgraph.Client {
	t.Helper()
	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		vector.NewMemoryIndex(wordEmbedder{}),
		&stubExtractor{facts: facts},
		stubSummarizer{},
		factgraph.DefaultConfig("tenant-1"),
		nil,
	)
	require.NoError(t, err)
	return client
}

func johnFacts() []types.ExtractedFact {
	return []types.ExtractedFact{
		{Name: "Paris", Type: "Location", Verb: "lives_in", Confidence: 0.9},
		{Name: "Engineer", Type: "Profession", Verb: "works_as", Confidence: 0.8},
	}
}

func TestAssimilateCreatesEntityAndFacts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.EntityID)
	assert.NotEmpty(t, result.SourceID)
	require.Len(t, result.Facts, 2)
	assert.Equal(t, 0, result.VectorFailures)
	assert.Equal(t, "Location:Paris", result.Facts[0].Fact.ID())
}

func TestAssimilateIsIdempotentPerIdentifier(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	req := factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	}

	first, err := client.Assimilate(ctx, req)
	require.NoError(t, err)
	second, err := client.Assimilate(ctx, req)
	require.NoError(t, err)

	// Same identifier resolves to the same entity, and re-attaching the same
	// facts creates no new edges.
	assert.Equal(t, first.EntityID, second.EntityID)

	view, err := client.GetStore().FindEntityByID(ctx, first.EntityID)
	require.NoError(t, err)
	assert.Len(t, view.Facts, 2)
}

func TestAssimilateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	_, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: types.Identifier{Value: "", Type: types.IdentifierEmail},
		Content:    "something",
	})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "   ",
	})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLookupReturnsVerifiedFacts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	_, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	result, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live? Location Paris",
		TopK:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Debug.GraphFacts)
	assert.Equal(t, 1, result.Debug.VectorHits)
	assert.Equal(t, 1, result.Debug.VerifiedHits)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "Paris", result.Facts[0].Fact.Name)
}

func TestLookupWithoutQueryReturnsAllFacts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	_, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	result, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Facts, 2)
	assert.Zero(t, result.Debug.VectorHits)
}

func TestLookupUnknownIdentifier(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	_, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("nobody@example.com"),
	})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestLookupNeverLeaksStaleVectorHits(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	// Remove one fact from the graph only, leaving its vector point behind.
	removed, err := client.GetStore().RemoveFactFromEntity(ctx, result.EntityID, "Location:Paris")
	require.NoError(t, err)
	require.True(t, removed)

	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live? Location Paris",
	})
	require.NoError(t, err)

	// The stale point may still be hit, but it must never be served.
	for _, f := range lookup.Facts {
		assert.NotEqual(t, "Location:Paris", f.Fact.ID())
	}
	assert.Equal(t, lookup.Debug.VectorHits-lookup.Debug.VerifiedHits, lookup.Debug.DiscardedHits)
}

func TestLookupSummarizes(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	_, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	result, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live? Location Paris",
		TopK:       1,
		Summarize:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Answer)
}

func TestVectorFailureDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		failingIndex{},
		&stubExtractor{facts: johnFacts()},
		stubSummarizer{},
		factgraph.DefaultConfig("tenant-1"),
		nil,
	)
	require.NoError(t, err)

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.VectorFailures)

	// Lookup still answers from the graph alone.
	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live?",
	})
	require.NoError(t, err)
	assert.Len(t, lookup.Facts, 2)
	assert.True(t, lookup.Debug.VectorDegraded)
}

func TestVectorFailureFatalWhenStrict(t *testing.T) {
	ctx := context.Background()
	cfg := factgraph.DefaultConfig("tenant-1")
	cfg.DegradeOnVectorError = false

	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		failingIndex{},
		&stubExtractor{facts: johnFacts()},
		nil,
		cfg,
		nil,
	)
	require.NoError(t, err)

	_, err = client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris.",
	})
	assert.Error(t, err)

	// Seed the graph directly so a lookup has an entity to hit; the failing
	// search must surface in strict mode.
	_, _, _, err = client.GetStore().CreateEntity(ctx, types.Entity{ID: "e-strict"}, emailIdentifier("jane@example.com"), types.HasIdentifier{IsPrimary: true})
	require.NoError(t, err)

	_, err = client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("jane@example.com"),
		Query:      "Where does Jane live?",
	})
	assert.Error(t, err)
}

func TestLookupEmptyVerifiedSetIsValid(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	_, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	// A query sharing no letters with any indexed sentence scores below the
	// floor everywhere; the narrowed result is empty, not an error.
	result, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "zzzz",
		MinScore:   floatPtr(0.5),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Facts)
	assert.Equal(t, 2, result.Debug.GraphFacts)
	assert.Zero(t, result.Debug.VerifiedHits)
}

func TestDeleteEntity(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	deleted, err := client.DeleteEntity(ctx, result.EntityID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
	})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	// Deleting again reports false, not an error.
	deleted, err = client.DeleteEntity(ctx, result.EntityID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRemoveFact(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	removed, err := client.RemoveFact(ctx, result.EntityID, "Location:Paris")
	require.NoError(t, err)
	assert.True(t, removed)

	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
	})
	require.NoError(t, err)
	require.Len(t, lookup.Facts, 1)
	assert.Equal(t, "Engineer", lookup.Facts[0].Fact.Name)

	// The matching vector point is gone too.
	hits, err := client.GetIndex().SearchSemantic(ctx, "tenant-1", result.EntityID, "Location Paris", 10, 0)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "Location:Paris", hit.FactID)
	}

	removed, err = client.RemoveFact(ctx, result.EntityID, "Location:Paris")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestClientWithoutVectorIndex(t *testing.T) {
	ctx := context.Background()
	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		nil,
		&stubExtractor{facts: johnFacts()},
		stubSummarizer{},
		factgraph.DefaultConfig("tenant-1"),
		nil,
	)
	require.NoError(t, err)

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)
	require.Len(t, result.Facts, 2)
	assert.Zero(t, result.VectorFailures)

	// A query without an index serves the full graph fact set.
	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live?",
	})
	require.NoError(t, err)
	assert.Len(t, lookup.Facts, 2)
	assert.Zero(t, lookup.Debug.VectorHits)

	removed, err := client.RemoveFact(ctx, result.EntityID, "Location:Paris")
	require.NoError(t, err)
	assert.True(t, removed)

	deleted, err := client.DeleteEntity(ctx, result.EntityID)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, client.Close(ctx))
}

func TestLookupDebugPayload(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, johnFacts())

	result, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	// Strand one vector point by removing its fact from the graph only.
	removed, err := client.GetStore().RemoveFactFromEntity(ctx, result.EntityID, "Location:Paris")
	require.NoError(t, err)
	require.True(t, removed)

	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live? Location Paris",
		Debug:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Where does John live? Location Paris", lookup.Debug.Query)
	assert.Equal(t, 10, lookup.Debug.TopK)
	require.Len(t, lookup.Debug.Hits, lookup.Debug.VectorHits)

	verifiedCount := 0
	for _, hit := range lookup.Debug.Hits {
		if hit.FactID == "Location:Paris" {
			assert.False(t, hit.Verified)
		}
		if hit.Verified {
			verifiedCount++
		}
	}
	assert.Equal(t, lookup.Debug.VerifiedHits, verifiedCount)

	// Without the flag the extended payload stays empty.
	lookup, err = client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "Where does John live? Location Paris",
	})
	require.NoError(t, err)
	assert.Empty(t, lookup.Debug.Query)
	assert.Empty(t, lookup.Debug.Hits)
}

func TestLookupMinScoreZeroOverridesDefaultFloor(t *testing.T) {
	ctx := context.Background()
	cfg := factgraph.DefaultConfig("tenant-1")
	cfg.MinScore = 0.95

	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		vector.NewMemoryIndex(wordEmbedder{}),
		&stubExtractor{facts: johnFacts()},
		stubSummarizer{},
		cfg,
		nil,
	)
	require.NoError(t, err)

	_, err = client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris and works as an engineer.",
	})
	require.NoError(t, err)

	// The configured floor filters every hit for an unrelated query.
	result, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "zzzz",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Facts)

	// An explicit zero disables the floor instead of restoring the default.
	result, err = client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("john@example.com"),
		Query:      "zzzz",
		MinScore:   floatPtr(0),
	})
	require.NoError(t, err)
	assert.Len(t, result.Facts, 2)
}

func TestSharedFactSurvivesOtherOwnerDeletion(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, []types.ExtractedFact{
		{Name: "Paris", Type: "Location", Verb: "lives_in", Confidence: 0.9},
	})

	john, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("john@example.com"),
		Content:    "John lives in Paris.",
	})
	require.NoError(t, err)
	jane, err := client.Assimilate(ctx, factgraph.AssimilateRequest{
		Identifier: emailIdentifier("jane@example.com"),
		Content:    "Jane lives in Paris.",
	})
	require.NoError(t, err)
	require.NotEqual(t, john.EntityID, jane.EntityID)

	deleted, err := client.DeleteEntity(ctx, john.EntityID)
	require.NoError(t, err)
	require.True(t, deleted)

	// Jane still has the shared fact.
	lookup, err := client.Lookup(ctx, factgraph.LookupRequest{
		Identifier: emailIdentifier("jane@example.com"),
	})
	require.NoError(t, err)
	require.Len(t, lookup.Facts, 1)
	assert.Equal(t, "Location:Paris", lookup.Facts[0].Fact.ID())
}
