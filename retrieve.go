package factgraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/factgraph/pkg/types"
	"github.com/soundprediction/factgraph/pkg/vector"
)

// LookupRequest asks a question about one identified subject.
type LookupRequest struct {
	// Identifier names the subject.
	Identifier types.Identifier
	// Query is the natural-language question. When empty, every graph fact
	// is returned without semantic narrowing.
	Query string
	// TopK overrides the client default when positive.
	TopK int
	// MinScore overrides the client default similarity floor. Nil keeps the
	// default; a pointer to zero disables the floor entirely.
	MinScore *float64
	// Summarize asks for a natural-language answer on top of the facts.
	Summarize bool
	// Language selects the answer language; empty means the model's default.
	Language string
	// Debug attaches the echoed query parameters and the raw hit list,
	// verified flags included, to the result.
	Debug bool
}

// HitDebug describes one raw vector hit and whether it survived graph
// verification.
type HitDebug struct {
	FactID   string  `json:"fact_id"`
	Verb     string  `json:"verb"`
	Score    float64 `json:"score"`
	Verified bool    `json:"verified"`
}

// LookupDebug exposes per-phase observations for one lookup. Query, TopK,
// MinScore, and Hits are populated only when the request asks for debug.
type LookupDebug struct {
	Query          string        `json:"query,omitempty"`
	TopK           int           `json:"top_k,omitempty"`
	MinScore       float64       `json:"min_score,omitempty"`
	Hits           []HitDebug    `json:"hits,omitempty"`
	GraphFacts     int           `json:"graph_facts"`
	VectorHits     int           `json:"vector_hits"`
	VerifiedHits   int           `json:"verified_hits"`
	DiscardedHits  int           `json:"discarded_hits"`
	VectorDegraded bool          `json:"vector_degraded"`
	GraphDuration  time.Duration `json:"graph_duration"`
	VectorDuration time.Duration `json:"vector_duration"`
	AnswerDuration time.Duration `json:"answer_duration"`
}

// LookupResult is the answer to one lookup: the verified facts, optionally a
// summarized answer, and debug observations.
type LookupResult struct {
	EntityID string                 `json:"entity_id"`
	Facts    []types.FactWithSource `json:"facts"`
	Answer   string                 `json:"answer,omitempty"`
	Debug    LookupDebug            `json:"debug"`
}

// Lookup retrieves facts about the identified subject. The graph supplies
// the candidate set; the vector index narrows it semantically. A vector hit
// survives only when its fact id is present among the entity's graph facts,
// so the index can never surface stale or foreign data. An empty verified
// set is a valid answer. When no index is configured, or the index fails and
// the client degrades on vector errors, the full graph fact set is served
// instead.
func (c *Client) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	if err := req.Identifier.Validate(); err != nil {
		return nil, types.NewValidationError("identifier", err)
	}

	graphStart := time.Now()
	view, err := c.store.FindEntityByIdentifier(ctx, req.Identifier.Value, req.Identifier.Type)
	if err != nil {
		return nil, err
	}

	result := &LookupResult{
		EntityID: view.Entity.ID,
		Facts:    view.Facts,
	}
	result.Debug.GraphFacts = len(view.Facts)
	result.Debug.GraphDuration = time.Since(graphStart)

	if strings.TrimSpace(req.Query) != "" && c.index != nil {
		if err := c.narrowWithVector(ctx, req, view, result); err != nil {
			return nil, err
		}
	}

	if req.Summarize && c.summarizer != nil {
		answerStart := time.Now()
		answer, err := c.summarizer.Summarize(ctx, req.Query, result.Facts, req.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize facts: %w", err)
		}
		result.Answer = answer
		result.Debug.AnswerDuration = time.Since(answerStart)
	}

	return result, nil
}

// narrowWithVector replaces result.Facts with the graph-verified subset the
// index surfaced, preserving hit order. An empty verified set replaces too.
// A search failure leaves the full graph fact set in place and marks the
// lookup degraded, unless the client is configured to fail on vector errors.
func (c *Client) narrowWithVector(ctx context.Context, req LookupRequest, view *types.EntityView, result *LookupResult) error {
	topK := req.TopK
	if topK <= 0 {
		topK = c.config.TopK
	}
	minScore := c.config.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	if req.Debug {
		result.Debug.Query = req.Query
		result.Debug.TopK = topK
		result.Debug.MinScore = minScore
	}

	vectorStart := time.Now()
	hits, err := c.index.SearchSemantic(ctx, c.config.TenantID, view.Entity.ID, req.Query, topK, minScore)
	result.Debug.VectorDuration = time.Since(vectorStart)
	if err != nil {
		if !c.config.DegradeOnVectorError {
			return fmt.Errorf("vector search failed: %w", err)
		}
		result.Debug.VectorDegraded = true
		c.logger.Warn("vector search failed, serving graph facts",
			"entity_id", view.Entity.ID,
			"error", err)
		return nil
	}
	result.Debug.VectorHits = len(hits)

	verified, flags := verifyHits(hits, view)
	if req.Debug {
		result.Debug.Hits = make([]HitDebug, len(hits))
		for i, hit := range hits {
			result.Debug.Hits[i] = HitDebug{
				FactID:   hit.FactID,
				Verb:     hit.Verb,
				Score:    hit.Score,
				Verified: flags[i],
			}
		}
	}
	result.Debug.VerifiedHits = len(verified)
	result.Debug.DiscardedHits = len(hits) - len(verified)
	if result.Debug.DiscardedHits > 0 {
		c.logger.Warn("discarded unverified vector hits",
			"entity_id", view.Entity.ID,
			"discarded", result.Debug.DiscardedHits)
	}

	result.Facts = verified
	return nil
}

// verifyHits keeps the hits whose (fact id, verb) attachment exists in the
// graph view, in hit order, and reports a per-hit verified flag. Everything
// else is discarded as stale.
func verifyHits(hits []vector.Hit, view *types.EntityView) ([]types.FactWithSource, []bool) {
	byKey := make(map[string]types.FactWithSource, len(view.Facts))
	for _, f := range view.Facts {
		byKey[f.Fact.ID()+"|"+f.Relationship.Verb] = f
	}

	flags := make([]bool, len(hits))
	verified := make([]types.FactWithSource, 0, len(hits))
	for i, hit := range hits {
		if f, ok := byKey[hit.FactID+"|"+hit.Verb]; ok {
			flags[i] = true
			verified = append(verified, f)
		}
	}
	return verified, flags
}
