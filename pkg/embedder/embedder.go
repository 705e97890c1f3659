// Package embedder provides text embedding clients for vector representations.
//
// The Client interface is consumed by pkg/vector to turn synthetic fact
// sentences and search queries into vectors. Implementations must produce
// vectors of a fixed dimensionality per deployment.
package embedder

import "context"

// Client defines the interface for embedding providers.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds configuration common to embedding providers.
type Config struct {
	Model     string `json:"model"`
	BaseURL   string `json:"base_url,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}
