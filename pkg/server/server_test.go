package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/config"
	"github.com/soundprediction/factgraph/pkg/graph"
	"github.com/soundprediction/factgraph/pkg/server"
	"github.com/soundprediction/factgraph/pkg/server/dto"
	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/soundprediction/factgraph/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEmbedder struct{}

func (testEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = testVector(text)
	}
	return out, nil
}

func (testEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return testVector(text), nil
}

func (testEmbedder) Dimensions() int { return 26 }
func (testEmbedder) Close() error    { return nil }

func testVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

type testExtractor struct{}

func (testExtractor) ExtractFacts(ctx context.Context, content string, identifier types.Identifier, history []string) ([]types.ExtractedFact, error) {
	return []types.ExtractedFact{
		{Name: "Paris", Type: "Location", Verb: "lives_in", Confidence: 0.9},
	}, nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	client, err := factgraph.NewClient(
		graph.NewMemoryStore(),
		vector.NewMemoryIndex(testEmbedder{}),
		testExtractor{},
		nil,
		factgraph.DefaultConfig("tenant-1"),
		nil,
	)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	return server.New(cfg, client)
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func assimilateJohn(t *testing.T, srv *server.Server) dto.AssimilateResponse {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/v1/assimilate", dto.AssimilateRequest{
		Identifier: dto.Identifier{Value: "john@example.com", Type: "email"},
		Content:    "John lives in Paris.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.AssimilateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		w := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestAssimilateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := assimilateJohn(t, srv)
	assert.NotEmpty(t, resp.EntityID)
	assert.NotEmpty(t, resp.SourceID)
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "Location:Paris", resp.Facts[0].FactID)
	assert.Equal(t, "lives_in", resp.Facts[0].Verb)
}

func TestAssimilateEndpointRejectsBadIdentifier(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/assimilate", dto.AssimilateRequest{
		Identifier: dto.Identifier{Value: "john", Type: "passport"},
		Content:    "John lives in Paris.",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_request", errResp.Error)
}

func TestLookupEndpoint(t *testing.T) {
	srv := newTestServer(t)
	assimilateJohn(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/lookup", dto.LookupRequest{
		Identifier: dto.Identifier{Value: "john@example.com", Type: "email"},
		Query:      "Where does John live? Location Paris",
		Debug:      true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.LookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "Location:Paris", resp.Facts[0].FactID)
	assert.Equal(t, 1, resp.Debug.GraphFacts)
	assert.Equal(t, "Where does John live? Location Paris", resp.Debug.Query)
	require.Len(t, resp.Debug.Hits, resp.Debug.VectorHits)
	assert.True(t, resp.Debug.Hits[0].Verified)
}

func TestLookupEndpointUnknownIdentifier(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/lookup", dto.LookupRequest{
		Identifier: dto.Identifier{Value: "nobody@example.com", Type: "email"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEntityEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := assimilateJohn(t, srv)

	w := doJSON(t, srv, http.MethodDelete, "/api/v1/entity/"+resp.EntityID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second delete misses.
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/entity/"+resp.EntityID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveFactEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := assimilateJohn(t, srv)

	w := doJSON(t, srv, http.MethodDelete, "/api/v1/entity/"+resp.EntityID+"/fact/Location:Paris", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, srv, http.MethodDelete, "/api/v1/entity/"+resp.EntityID+"/fact/Location:Paris", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
