package factgraph

import (
	"context"
	"log/slog"

	"github.com/soundprediction/factgraph/pkg/graph"
	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/soundprediction/factgraph/pkg/vector"
)

// FactExtractor turns unstructured content into structured facts. The
// identifier names the subject the content is about; history carries earlier
// content about the same subject for context and may be empty.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, content string, identifier types.Identifier, history []string) ([]types.ExtractedFact, error)
}

// Summarizer renders a short natural-language answer from verified facts.
// lang selects the answer language; empty means the model's default.
type Summarizer interface {
	Summarize(ctx context.Context, question string, facts []types.FactWithSource, lang string) (string, error)
}

// Config holds configuration for the fusion client.
type Config struct {
	// TenantID scopes every vector operation. Required.
	TenantID string
	// TopK is the default number of vector hits requested per lookup.
	TopK int
	// MinScore is the default similarity floor for vector hits; 0 disables it.
	MinScore float64
	// DegradeOnVectorError keeps Assimilate and Lookup succeeding on graph
	// data alone when the vector index fails. When false, vector failures
	// are returned to the caller.
	DegradeOnVectorError bool
}

// DefaultConfig returns a config with sensible lookup defaults.
func DefaultConfig(tenantID string) *Config {
	return &Config{
		TenantID:             tenantID,
		TopK:                 10,
		MinScore:             0,
		DegradeOnVectorError: true,
	}
}

// Client coordinates the graph store, the vector index, and the language
// model helpers. The graph is authoritative; the index is advisory.
type Client struct {
	store      graph.Store
	index      vector.Index
	extractor  FactExtractor
	summarizer Summarizer
	config     *Config
	logger     *slog.Logger
}

// NewClient creates a fusion client. extractor and summarizer may be nil when
// the caller only ingests pre-structured facts or never asks for summaries.
// index may be nil for graph-only deployments: writes then skip indexing and
// lookups serve the full graph fact set.
func NewClient(store graph.Store, index vector.Index, extractor FactExtractor, summarizer Summarizer, config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig("default")
	}
	if config.TenantID == "" {
		return nil, types.NewValidationError("tenant id", types.ErrEmptyTenant)
	}
	if config.TopK <= 0 {
		config.TopK = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		store:      store,
		index:      index,
		extractor:  extractor,
		summarizer: summarizer,
		config:     config,
		logger:     logger,
	}, nil
}

// GetStore returns the underlying graph store.
func (c *Client) GetStore() graph.Store {
	return c.store
}

// GetIndex returns the underlying vector index.
func (c *Client) GetIndex() vector.Index {
	return c.index
}

// CreateIndices creates graph constraints and indexes.
func (c *Client) CreateIndices(ctx context.Context) error {
	return c.store.CreateIndices(ctx)
}

// Close closes the store and the index. The first error wins; both are
// always attempted.
func (c *Client) Close(ctx context.Context) error {
	storeErr := c.store.Close(ctx)
	var indexErr error
	if c.index != nil {
		indexErr = c.index.Close()
	}
	if storeErr != nil {
		return storeErr
	}
	return indexErr
}
